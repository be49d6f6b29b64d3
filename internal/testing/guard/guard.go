package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("CLARION_TEST_MODE") == "" {
			_ = os.Setenv("CLARION_TEST_MODE", "1")
		}
	})
}

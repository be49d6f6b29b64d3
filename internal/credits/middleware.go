package credits

import (
	"context"
	"net/http"
	"time"

	"github.com/clarion-qa/clarion/internal/tenant"
)

// TrackAPICalls records one advisory API call per scoped request. Fire and
// forget: the request path never waits on the counter write.
func TrackAPICalls(service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := tenant.ScopeFromContext(r.Context())
			if scope.InstanceID != "" {
				go func(instanceID string) {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					service.RecordAPICall(ctx, instanceID)
				}(scope.InstanceID)
			}
			next.ServeHTTP(w, r)
		})
	}
}

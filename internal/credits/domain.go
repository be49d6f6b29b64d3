// Package credits implements the per-tenant usage ledger gating billable
// operations: audit credits, token credits, and advisory API call counters.
package credits

import "time"

// Unlimited is the sentinel total meaning the balance never exhausts.
const Unlimited int64 = -1

// BillingType classifies how a tenant instance is billed.
type BillingType string

const (
	BillingPrepaid      BillingType = "prepaid"
	BillingSubscription BillingType = "subscription"
	BillingTrial        BillingType = "trial"
)

// Balance is the credit state owned by a tenant instance. It is created when
// the instance is provisioned and never deleted while the instance exists.
type Balance struct {
	InstanceID  string
	UsedAudits  int64
	TotalAudits int64
	UsedTokens  int64
	TotalTokens int64
	APICalls    int64
	BillingType BillingType
	UpdatedAt   time.Time
}

// AuditsExhausted reports whether the audit ceiling has been reached.
func (b Balance) AuditsExhausted() bool {
	if b.TotalAudits == Unlimited {
		return false
	}
	return b.UsedAudits >= b.TotalAudits
}

// UsedFraction returns the consumed share of audit credits in [0,1].
// Unlimited balances never count as consumed.
func (b Balance) UsedFraction() float64 {
	if b.TotalAudits == Unlimited {
		return 0
	}
	if b.TotalAudits <= 0 {
		return 1
	}
	used := float64(b.UsedAudits) / float64(b.TotalAudits)
	if used > 1 {
		return 1
	}
	return used
}

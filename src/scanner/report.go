package scanner

import "time"

// Pass results used in reports and metrics.
const (
	ResultOK          = "ok"
	ResultUnavailable = "unavailable"
	ResultCanceled    = "canceled"
)

// Report describes one pass.
type Report struct {
	RunID      string    `json:"run_id"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Result     string    `json:"result"`
	Error      string    `json:"error,omitempty"`

	Listed        int `json:"listed"`
	DetailFetches int `json:"detail_fetches"`

	NewAnnounced    int `json:"new_announced"`
	PassedAnnounced int `json:"passed_announced"`
	DeniedAnnounced int `json:"denied_announced"`
	DeniedSilent    int `json:"denied_silent"`
	Pending         int `json:"pending"`

	SkippedMetadata    int `json:"skipped_metadata"`
	SkippedUnavailable int `json:"skipped_unavailable"`
	SkippedMalformed   int `json:"skipped_malformed"`
	StoreErrors        int `json:"store_errors"`

	Delivered          int `json:"delivered"`
	DeliveryFailures   int `json:"delivery_failures"`
	DeliverySuppressed int `json:"delivery_suppressed"`

	// Emitted lists the announced vote ids in emission order.
	Emitted []int64 `json:"emitted,omitempty"`
}

// Duration is the wall time of the pass.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

package harness

// Trace event types.
const (
	EventStep         = "step"
	EventRejected     = "rejected"
	EventRequest      = "request"
	EventNotification = "notification"
	EventOutcome      = "outcome"
)

// TraceProduct is one resolved product in a products_retrieved outcome.
type TraceProduct struct {
	ID            string `json:"id"`
	Price         string `json:"price"`
	TransactionID string `json:"transaction_id,omitempty"`
	Receipt       string `json:"receipt,omitempty"`
}

// TraceEvent is one observable event of a scenario run: a step the
// scenario took, an outbound request, a delivered notification or a
// callback outcome.
type TraceEvent struct {
	Seq           int64          `json:"seq"`
	Type          string         `json:"type"`
	Name          string         `json:"name"`
	ProductID     string         `json:"product_id,omitempty"`
	Identifiers   []string       `json:"identifiers,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Receipt       string         `json:"receipt,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Message       string         `json:"message,omitempty"`
	Products      []TraceProduct `json:"products,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace holds every event in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds step and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outcomes returns the outcome events in order.
func (r *Result) Outcomes() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventOutcome {
			out = append(out, e)
		}
	}
	return out
}

// Requests returns the outbound request names in order.
func (r *Result) Requests() []string {
	var out []string
	for _, e := range r.Trace {
		if e.Type == EventRequest {
			out = append(out, e.Name)
		}
	}
	return out
}

package webapi

import (
	"slices"
	"sync"
)

// Outbound call names recorded by RecordingAPI.
const (
	CallRequestItemList     = "request_item_list"
	CallRequestUserItemList = "request_user_item_list"
	CallPurchaseItems       = "purchase_items"
)

// Call is one recorded outbound request.
type Call struct {
	Method      string   `json:"method"`
	Identifiers []string `json:"identifiers,omitempty"`
}

// RecordingAPI implements API by recording calls and never answering them.
// Tests deliver the matching notifications themselves.
type RecordingAPI struct {
	mu     sync.Mutex
	token  string
	status Status
	calls  []Call

	// OnCall, if set, observes each call after it is recorded.
	OnCall func(Call)
}

// NewRecordingAPI creates a ready recording API with the given auth token.
func NewRecordingAPI(token string) *RecordingAPI {
	return &RecordingAPI{token: token, status: StatusReady}
}

// SetStatus overrides the reported status.
func (r *RecordingAPI) SetStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
}

func (r *RecordingAPI) RequestItemList() {
	r.record(Call{Method: CallRequestItemList})
}

func (r *RecordingAPI) RequestUserItemList() {
	r.record(Call{Method: CallRequestUserItemList})
}

func (r *RecordingAPI) PurchaseItems(identifiers []string) {
	r.record(Call{Method: CallPurchaseItems, Identifiers: slices.Clone(identifiers)})
}

func (r *RecordingAPI) GameAuthToken() string {
	return r.token
}

func (r *RecordingAPI) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Calls returns a copy of the recorded calls in order.
func (r *RecordingAPI) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Reset forgets recorded calls.
func (r *RecordingAPI) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *RecordingAPI) record(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	hook := r.OnCall
	r.mu.Unlock()

	if hook != nil {
		hook(c)
	}
}

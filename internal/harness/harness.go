package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/kongstore/internal/catalog"
	"github.com/roach88/kongstore/internal/journal"
	"github.com/roach88/kongstore/internal/purchasing"
	"github.com/roach88/kongstore/internal/webapi"
)

// Harness runs one scenario against a real store.
//
// The store talks to a RecordingAPI, which records outbound requests and
// never answers them; the scenario's deliver steps play the web API's
// part. Every step and delivery runs as its own turn of a webapi.Loop, so
// the store sees exactly the turn structure it sees in production.
type Harness struct {
	scenario *Scenario
	api      *webapi.RecordingAPI
	loop     *webapi.Loop
	store    *purchasing.Store
	clock    *journal.Clock
	result   *Result
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// A failing step or assertion is reported in the result, not as an error.
// An error means the scenario itself could not be executed.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with store and loop logs sent to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	if scenario == nil {
		return nil, errors.New("scenario is nil")
	}

	token := scenario.AuthToken
	if token == "" {
		token = DefaultAuthToken
	}

	h := &Harness{
		scenario: scenario,
		api:      webapi.NewRecordingAPI(token),
		clock:    journal.NewClock(),
		result:   NewResult(),
		logger:   logger,
	}

	bus := webapi.NewBus()
	// Subscribed before the store so a delivery is traced before the
	// store reacts to it.
	bus.SubscribeAll(h.traceNotification)
	h.api.OnCall = h.traceRequest
	h.loop = webapi.NewLoop(bus, webapi.WithLoopLogger(logger))

	h.store = purchasing.New(h.api, bus,
		purchasing.WithLogger(logger),
		purchasing.WithOperationIDs(purchasing.NewFixedGenerator(scenario.Name)),
	)
	h.store.Initialize(&traceCallback{h: h})
	defer h.store.Close()

	if scenario.Ready {
		h.deliver(webapi.BecameReady())
	}

	byID, all := scenario.definitions()
	for i, step := range scenario.Steps {
		if err := h.runStep(i, step, byID, all); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	actx := &AssertionContext{Store: h.store}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}

	return h.result, nil
}

func (h *Harness) runStep(
	index int,
	step Step,
	byID map[string]catalog.ProductDefinition,
	all []catalog.ProductDefinition,
) error {
	switch step.Action {
	case ActionRetrieve:
		products := all
		var ids []string
		if len(step.Products) > 0 {
			products = make([]catalog.ProductDefinition, len(step.Products))
			for i, id := range step.Products {
				products[i] = byID[id]
			}
		}
		for _, p := range products {
			ids = append(ids, p.ID)
		}
		h.turn(func() {
			h.record(TraceEvent{Type: EventStep, Name: ActionRetrieve, Identifiers: ids})
			h.checkStepError(index, step, h.store.RetrieveProducts(products))
		})

	case ActionPurchase:
		product := byID[step.Product]
		h.turn(func() {
			h.record(TraceEvent{Type: EventStep, Name: ActionPurchase, ProductID: product.ID})
			h.checkStepError(index, step, h.store.Purchase(product, ""))
		})

	case ActionFinish:
		product := byID[step.Product]
		h.turn(func() {
			h.record(TraceEvent{
				Type:          EventStep,
				Name:          ActionFinish,
				ProductID:     product.ID,
				TransactionID: step.TransactionID,
			})
			h.store.FinishTransaction(product, step.TransactionID)
		})

	case ActionDeliver:
		kind, err := webapi.ParseKind(step.Kind)
		if err != nil {
			return err
		}
		h.deliver(webapi.Notification{
			Kind:        kind,
			StoreItems:  step.StoreItems,
			UserItems:   step.UserItems,
			Identifiers: step.Identifiers,
		})

	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return nil
}

// turn runs fn as one loop turn and processes everything it enqueues.
func (h *Harness) turn(fn func()) {
	h.loop.Submit(fn)
	h.loop.Drain()
}

func (h *Harness) deliver(n webapi.Notification) {
	h.loop.Enqueue(n)
	h.loop.Drain()
}

// checkStepError compares a step's returned error with its expect_error.
func (h *Harness) checkStepError(index int, step Step, err error) {
	code := errorCode(err)
	if err != nil {
		h.record(TraceEvent{Type: EventRejected, Name: step.Action, Error: code})
	}

	switch {
	case step.ExpectError == "" && err != nil:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", index, step.Action, err))
	case step.ExpectError != "" && err == nil:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got none", index, step.Action, step.ExpectError))
	case step.ExpectError != "" && code != step.ExpectError:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %s", index, step.Action, step.ExpectError, code))
	}
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var pe *purchasing.PreconditionError
	if errors.As(err, &pe) {
		return string(pe.Code)
	}
	if errors.Is(err, purchasing.ErrNotInitialized) {
		return string(purchasing.ErrCodeNotInitialized)
	}
	return err.Error()
}

func (h *Harness) record(e TraceEvent) {
	e.Seq = h.clock.Next()
	h.result.Trace = append(h.result.Trace, e)
}

func (h *Harness) traceRequest(c webapi.Call) {
	h.record(TraceEvent{Type: EventRequest, Name: c.Method, Identifiers: c.Identifiers})
}

func (h *Harness) traceNotification(n webapi.Notification) {
	e := TraceEvent{Type: EventNotification, Name: n.Kind.String()}
	switch n.Kind {
	case webapi.KindStoreItems:
		for _, item := range n.StoreItems {
			e.Identifiers = append(e.Identifiers, item.Identifier)
		}
	case webapi.KindUserItems:
		for _, item := range n.UserItems {
			e.Identifiers = append(e.Identifiers, fmt.Sprintf("%s:%d", item.Identifier, item.ID))
		}
	default:
		e.Identifiers = n.Identifiers
	}
	h.record(e)
}

// traceCallback records store results as outcome events.
type traceCallback struct {
	h *Harness
}

func (c *traceCallback) OnProductsRetrieved(products []catalog.ProductDescription) {
	e := TraceEvent{Type: EventOutcome, Name: string(purchasing.OutcomeProductsRetrieved)}
	for _, p := range products {
		e.Products = append(e.Products, TraceProduct{
			ID:            p.StoreSpecificID,
			Price:         p.Metadata.LocalizedPriceString,
			TransactionID: p.TransactionID,
			Receipt:       p.Receipt,
		})
	}
	c.h.record(e)
}

func (c *traceCallback) OnSetupFailed(reason purchasing.InitializationFailureReason) {
	c.h.record(TraceEvent{
		Type:   EventOutcome,
		Name:   string(purchasing.OutcomeSetupFailed),
		Reason: string(reason),
	})
}

func (c *traceCallback) OnPurchaseSucceeded(productID, receipt, transactionID string) {
	c.h.record(TraceEvent{
		Type:          EventOutcome,
		Name:          string(purchasing.OutcomePurchaseSucceeded),
		ProductID:     productID,
		TransactionID: transactionID,
		Receipt:       receipt,
	})
}

func (c *traceCallback) OnPurchaseFailed(f purchasing.PurchaseFailure) {
	c.h.record(TraceEvent{
		Type:      EventOutcome,
		Name:      string(purchasing.OutcomePurchaseFailed),
		ProductID: f.ProductID,
		Reason:    string(f.Reason),
		Message:   f.Message,
	})
}

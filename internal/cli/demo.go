package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/kongstore/internal/catalog"
	"github.com/roach88/kongstore/internal/config"
	"github.com/roach88/kongstore/internal/journal"
	"github.com/roach88/kongstore/internal/metrics"
	"github.com/roach88/kongstore/internal/productspec"
	"github.com/roach88/kongstore/internal/purchasing"
	"github.com/roach88/kongstore/internal/webapi"
)

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	Fixture     string
	Products    string
	Buy         string
	AuthToken   string
	Platform    string
	Journal     string
	MetricsFile string
	Timeout     time.Duration
}

// DemoPurchase is the purchase part of the demo output.
type DemoPurchase struct {
	OperationID   string `json:"operation_id"`
	ProductID     string `json:"product_id"`
	Succeeded     bool   `json:"succeeded"`
	TransactionID string `json:"transaction_id,omitempty"`
	Receipt       string `json:"receipt,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Message       string `json:"message,omitempty"`
}

// DemoResult is the demo command output.
type DemoResult struct {
	RefreshOperationID string                       `json:"refresh_operation_id"`
	Products           []catalog.ProductDescription `json:"products"`
	Purchase           *DemoPurchase                `json:"purchase,omitempty"`
}

// lastOperationID is the id of the last operation the demo ran.
func (r DemoResult) lastOperationID() string {
	if r.Purchase != nil {
		return r.Purchase.OperationID
	}
	return r.RefreshOperationID
}

func (r DemoResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d products\n", len(r.Products))
	for _, p := range r.Products {
		owned := ""
		if p.Owned() {
			owned = fmt.Sprintf("  owned (transaction %s)", p.TransactionID)
		}
		fmt.Fprintf(&b, "  %-16s %-24s %s%s\n", p.StoreSpecificID, p.Metadata.LocalizedTitle, p.Metadata.LocalizedPriceString, owned)
	}
	if p := r.Purchase; p != nil {
		if p.Succeeded {
			fmt.Fprintf(&b, "purchase %s succeeded: transaction %s", p.ProductID, p.TransactionID)
		} else {
			fmt.Fprintf(&b, "purchase %s failed: %s (%s)", p.ProductID, p.Reason, p.Message)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the store against a simulated web API",
		Long: `Drive the store end to end against an in-memory web API simulator.

The demo configures the store, retrieves the product catalog and, with
--buy, purchases one product and finishes the transaction. The simulator
answers every request asynchronously through the event loop, just as the
real web API does.

Exit codes:
  0 - Catalog retrieved (and purchase succeeded, if requested)
  1 - Store unavailable, setup failed or purchase failed
  2 - Command error (bad fixture, invalid products, etc.)

Examples:
  kongstore demo --fixture store.yaml
  kongstore demo --fixture store.yaml --products ./products --buy sword
  kongstore demo --fixture store.yaml --buy gold --journal demo.db --metrics-file demo.prom`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Fixture, "fixture", "", "simulator fixture YAML (required)")
	cmd.Flags().StringVar(&opts.Products, "products", "", "directory of CUE product definitions (default: every catalog item as consumable)")
	cmd.Flags().StringVar(&opts.Buy, "buy", "", "product id to purchase after retrieving the catalog")
	cmd.Flags().StringVar(&opts.AuthToken, "auth-token", "", "override the fixture's auth token")
	cmd.Flags().StringVar(&opts.Platform, "platform", "webgl", "host platform (webgl|desktop|mobile)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "SQLite journal path")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "time to wait for each result")
	_ = cmd.MarkFlagRequired("fixture")

	return cmd
}

// demoCallback forwards store results to the waiting command.
type demoCallback struct {
	retrieved chan []catalog.ProductDescription
	setup     chan purchasing.InitializationFailureReason
	purchased chan DemoPurchase
}

func newDemoCallback() *demoCallback {
	return &demoCallback{
		retrieved: make(chan []catalog.ProductDescription, 1),
		setup:     make(chan purchasing.InitializationFailureReason, 1),
		purchased: make(chan DemoPurchase, 1),
	}
}

func (c *demoCallback) OnProductsRetrieved(products []catalog.ProductDescription) {
	c.retrieved <- products
}

func (c *demoCallback) OnSetupFailed(reason purchasing.InitializationFailureReason) {
	c.setup <- reason
}

func (c *demoCallback) OnPurchaseSucceeded(productID, receipt, transactionID string) {
	c.purchased <- DemoPurchase{ProductID: productID, Succeeded: true, TransactionID: transactionID, Receipt: receipt}
}

func (c *demoCallback) OnPurchaseFailed(f purchasing.PurchaseFailure) {
	c.purchased <- DemoPurchase{ProductID: f.ProductID, Reason: string(f.Reason), Message: f.Message}
}

func runDemo(opts *DemoOptions, cmd *cobra.Command) error {
	cfg, err := demoSettings(opts, cmd)
	if err != nil {
		return err
	}
	logger := opts.logger()
	out := opts.formatter(cmd)

	fixture, err := webapi.LoadFixture(opts.Fixture)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load fixture", err)
	}
	if cfg.AuthToken != "" {
		fixture.AuthToken = cfg.AuthToken
	}

	products, err := demoProducts(opts.Products, fixture)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	bus := webapi.NewBus()
	loop := webapi.NewLoop(bus, webapi.WithLoopLogger(logger))
	sim := webapi.NewSimulator(loop, *fixture)

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	observers := purchasing.MultiObserver{collector}

	if cfg.Journal != "" {
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer j.Close()
		rec := journal.NewRecorder(ctx, j, logger)
		bus.SubscribeAll(rec.Notification)
		observers = append(observers, rec)
	}

	registry := purchasing.Registry{}
	store, err := purchasing.Configure(registry, sim, bus, cfg.Platform,
		purchasing.WithLogger(logger),
		purchasing.WithObserver(observers),
		purchasing.WithReconciler(catalog.NewReconciler(catalog.WithLocale(cfg.Locale), catalog.WithLogger(logger))),
	)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to configure store", err)
	}
	if store == nil {
		msg := fmt.Sprintf("%s store unavailable on platform %s", purchasing.StoreName, cfg.Platform)
		_ = out.Error(ErrCodeStoreUnavailable, msg, nil)
		return NewExitError(ExitFailure, msg)
	}
	defer store.Close()

	cb := newDemoCallback()
	store.Initialize(cb)

	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()
	defer func() {
		loop.Stop()
		<-loopDone
		if opts.MetricsFile != "" {
			if err := prometheus.WriteToTextfile(opts.MetricsFile, reg); err != nil {
				logger.Error("failed to write metrics", "path", opts.MetricsFile, "error", err)
			}
		}
	}()

	sim.Start()

	result := DemoResult{}
	retrieved, refreshID, err := demoRetrieve(opts, loop, store, cb, products)
	if err != nil {
		_ = out.Error(ErrCodeOperationFailed, err.Error(), nil)
		return err
	}
	result.RefreshOperationID = refreshID
	result.Products = retrieved

	if opts.Buy != "" {
		purchase, err := demoPurchase(opts, loop, store, cb, logger, products)
		if err != nil {
			_ = out.Error(ErrCodeOperationFailed, err.Error(), nil)
			return err
		}
		result.Purchase = purchase
	}

	if err := out.OperationResult(result.lastOperationID(), result); err != nil {
		return err
	}
	if result.Purchase != nil && !result.Purchase.Succeeded {
		return NewExitError(ExitFailure, fmt.Sprintf("purchase of %s failed: %s", result.Purchase.ProductID, result.Purchase.Reason))
	}
	return nil
}

// demoSettings merges demo flags into the resolved config. Flags bound
// through the root command are already in opts.Config.
func demoSettings(opts *DemoOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := opts.settings()
	if err != nil {
		return nil, err
	}
	if opts.RootOptions.Config == nil {
		if cmd.Flags().Changed("auth-token") {
			cfg.AuthToken = opts.AuthToken
		}
		if cmd.Flags().Changed("journal") {
			cfg.Journal = opts.Journal
		}
		if cmd.Flags().Changed("platform") {
			cfg.Platform = purchasing.Platform(opts.Platform)
			if err := cfg.Validate(); err != nil {
				return nil, NewExitError(ExitCommandError, err.Error())
			}
		}
	}
	return cfg, nil
}

// demoProducts loads CUE definitions from dir, or treats every catalog
// item as a consumable when dir is empty.
func demoProducts(dir string, fixture *webapi.Fixture) ([]catalog.ProductDefinition, error) {
	if dir == "" {
		defs := make([]catalog.ProductDefinition, len(fixture.Catalog))
		for i, item := range fixture.Catalog {
			defs[i] = catalog.ProductDefinition{ID: item.Identifier, Type: catalog.Consumable}
		}
		return defs, nil
	}

	result, errs := productspec.Load(dir)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "product definitions invalid", errors.Join(errs...))
	}
	return result.Definitions(), nil
}

// startOperation runs start as a loop turn and returns the id of the
// operation it left pending.
func startOperation(loop *webapi.Loop, store *purchasing.Store, timeout time.Duration, start func() error) (string, error) {
	type started struct {
		id  string
		err error
	}
	done := make(chan started, 1)
	ok := loop.Submit(func() {
		if err := start(); err != nil {
			done <- started{err: err}
			return
		}
		done <- started{id: store.Pending().ID}
	})
	if !ok {
		return "", errors.New("event loop stopped")
	}
	select {
	case s := <-done:
		return s.id, s.err
	case <-time.After(timeout):
		return "", errors.New("timed out waiting for the event loop")
	}
}

func demoRetrieve(
	opts *DemoOptions,
	loop *webapi.Loop,
	store *purchasing.Store,
	cb *demoCallback,
	products []catalog.ProductDefinition,
) ([]catalog.ProductDescription, string, error) {
	id, err := startOperation(loop, store, opts.Timeout, func() error { return store.RetrieveProducts(products) })
	if err != nil {
		return nil, "", WrapExitError(ExitFailure, "failed to start catalog refresh", err)
	}

	select {
	case products := <-cb.retrieved:
		return products, id, nil
	case reason := <-cb.setup:
		return nil, id, NewExitError(ExitFailure, fmt.Sprintf("setup failed: %s", reason))
	case <-time.After(opts.Timeout):
		return nil, id, NewExitError(ExitFailure, "timed out waiting for the catalog")
	}
}

func demoPurchase(
	opts *DemoOptions,
	loop *webapi.Loop,
	store *purchasing.Store,
	cb *demoCallback,
	logger *slog.Logger,
	products []catalog.ProductDefinition,
) (*DemoPurchase, error) {
	product := catalog.ProductDefinition{ID: opts.Buy, Type: catalog.Consumable}
	for _, p := range products {
		if p.ID == opts.Buy {
			product = p
			break
		}
	}

	id, err := startOperation(loop, store, opts.Timeout, func() error { return store.Purchase(product, "") })
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to start purchase", err)
	}

	var result DemoPurchase
	select {
	case result = <-cb.purchased:
		result.OperationID = id
	case <-time.After(opts.Timeout):
		return nil, NewExitError(ExitFailure, fmt.Sprintf("timed out waiting for purchase of %s", opts.Buy))
	}

	if result.Succeeded {
		loop.Submit(func() { store.FinishTransaction(product, result.TransactionID) })
		logger.Debug("transaction finished", "product_id", product.ID, "transaction_id", result.TransactionID)
	}
	return &result, nil
}

package purchasing

import (
	"log/slog"
	"slices"
	"strconv"

	"github.com/roach88/kongstore/internal/catalog"
	"github.com/roach88/kongstore/internal/webapi"
)

// Notifier is the inbound half of the web API. Implemented by *webapi.Bus.
type Notifier interface {
	Subscribe(kind webapi.Kind, handler webapi.Handler) (unsubscribe func())
	WhenReady(fn func())
}

// catalogRefresh tracks a pending catalog refresh. The have* flags
// distinguish an empty batch from one that has not arrived.
type catalogRefresh struct {
	op         Operation
	storeItems []webapi.StoreItem
	userItems  []webapi.UserItem
	haveStore  bool
	haveUser   bool
}

// pendingPurchase tracks a pending purchase.
type pendingPurchase struct {
	op               Operation
	product          catalog.ProductDefinition
	developerPayload string
	confirmed        bool
}

// Store coordinates catalog refreshes and purchases against the web API.
//
// INVARIANTS:
//   - refresh and purchase are never both non-nil (checked on entry)
//   - every terminal outcome leaves refresh and purchase nil
//   - cached batches live only inside refresh and die with it
type Store struct {
	api        webapi.API
	notifier   Notifier
	reconciler *catalog.Reconciler
	ids        OperationIDGenerator
	observer   Observer
	logger     *slog.Logger

	callback    Callback
	unsubscribe []func()

	refresh  *catalogRefresh
	purchase *pendingPurchase
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithObserver attaches a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.observer = o
	}
}

// WithOperationIDs sets the operation id generator. Default: UUIDv7Generator.
func WithOperationIDs(g OperationIDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithReconciler sets the catalog reconciler, e.g. for a different locale.
func WithReconciler(r *catalog.Reconciler) Option {
	return func(s *Store) {
		s.reconciler = r
	}
}

// New creates a store bound to api and notifier. Call Initialize before use.
func New(api webapi.API, notifier Notifier, opts ...Option) *Store {
	s := &Store{
		api:      api,
		notifier: notifier,
		ids:      UUIDv7Generator{},
		observer: nopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reconciler == nil {
		s.reconciler = catalog.NewReconciler(catalog.WithLogger(s.logger))
	}
	return s
}

// Initialize registers callback and subscribes to the four result
// notifications. Calling it again replaces the callback and the
// subscriptions.
func (s *Store) Initialize(callback Callback) {
	s.Close()
	s.callback = callback

	// The solicitation check for ownership batches runs before either flow,
	// so it sees the pending state as it was when the batch arrived.
	s.subscribe(webapi.KindUserItems, s.checkUserItemsSolicited)

	s.subscribe(webapi.KindStoreItems, s.onStoreItems)
	s.subscribe(webapi.KindUserItems, s.onUserItemsForCatalog)
	s.subscribe(webapi.KindUserItems, s.onUserItemsForPurchase)
	s.subscribe(webapi.KindPurchaseSucceeded, s.onPurchaseSucceeded)
	s.subscribe(webapi.KindPurchaseFailed, s.onPurchaseFailed)
}

// Close removes the store's subscriptions. Pending state is left as is.
// Safe to call more than once.
func (s *Store) Close() {
	for _, unsub := range s.unsubscribe {
		unsub()
	}
	s.unsubscribe = nil
}

func (s *Store) subscribe(kind webapi.Kind, h webapi.Handler) {
	s.unsubscribe = append(s.unsubscribe, s.notifier.Subscribe(kind, h))
}

// Pending returns a snapshot of the pending operation.
func (s *Store) Pending() Operation {
	switch {
	case s.refresh != nil:
		return s.refresh.op
	case s.purchase != nil:
		return s.purchase.op
	default:
		return Operation{Kind: OperationNone}
	}
}

// CachedBatches reports which catalog refresh batches are currently held.
func (s *Store) CachedBatches() (store, user bool) {
	if s.refresh == nil {
		return false, false
	}
	return s.refresh.haveStore, s.refresh.haveUser
}

// RetrieveProducts starts a catalog refresh for products. Once the API is
// ready it requests the store item list and the user item list; the
// result arrives through Callback.OnProductsRetrieved or OnSetupFailed.
//
// Returns a *PreconditionError if any operation is already pending.
func (s *Store) RetrieveProducts(products []catalog.ProductDefinition) error {
	if err := s.checkIdle(OperationCatalogRefresh); err != nil {
		return err
	}

	r := &catalogRefresh{op: catalogRefreshOperation(s.ids.Generate(), products)}
	s.refresh = r
	s.logger.Info("catalog refresh started",
		"operation_id", r.op.ID,
		"products", len(products),
	)
	s.observer.OperationStarted(r.op)

	// Runs immediately when the API is already ready.
	s.notifier.WhenReady(func() {
		if s.refresh != r {
			return
		}
		s.logger.Debug("requesting store and user items", "operation_id", r.op.ID)
		s.api.RequestItemList()
		s.api.RequestUserItemList()
	})

	return nil
}

// Purchase starts a purchase of product. The result arrives through
// Callback.OnPurchaseSucceeded or OnPurchaseFailed.
//
// Returns a *PreconditionError if any operation is already pending.
func (s *Store) Purchase(product catalog.ProductDefinition, developerPayload string) error {
	if err := s.checkIdle(OperationPurchase); err != nil {
		return err
	}

	p := &pendingPurchase{
		op:               purchaseOperation(s.ids.Generate(), product.ID),
		product:          product,
		developerPayload: developerPayload,
	}
	s.purchase = p
	s.logger.Info("purchase started",
		"operation_id", p.op.ID,
		"product_id", product.ID,
	)
	s.observer.OperationStarted(p.op)

	s.api.PurchaseItems([]string{product.ID})
	return nil
}

// FinishTransaction acknowledges a completed transaction. The API consumes
// purchases server-side, so this always succeeds immediately and has no
// external effect.
func (s *Store) FinishTransaction(product catalog.ProductDefinition, transactionID string) {
	s.logger.Debug("finish transaction",
		"product_id", product.ID,
		"transaction_id", transactionID,
	)
}

func (s *Store) checkIdle(attempted OperationKind) error {
	if s.callback == nil {
		return ErrNotInitialized
	}
	if pending := s.Pending(); !pending.IsNone() {
		err := newPreconditionError(attempted, pending)
		s.logger.Error("operation rejected", "error", err, "reason", string(err.Reason))
		return err
	}
	return nil
}

func (s *Store) ignore(kind webapi.Kind, reason string, attrs ...any) {
	args := append([]any{"kind", kind.String(), "reason", reason}, attrs...)
	s.logger.Error("ignoring notification", args...)
	s.observer.NotificationIgnored(kind, reason)
}

// --- catalog refresh flow ---

func (s *Store) onStoreItems(n webapi.Notification) {
	if s.refresh == nil {
		s.ignore(n.Kind, "no catalog refresh in progress", "items", len(n.StoreItems))
		return
	}

	// A later batch replaces an earlier one.
	s.refresh.storeItems = slices.Clone(n.StoreItems)
	s.refresh.haveStore = true
	s.logger.Debug("store items cached",
		"operation_id", s.refresh.op.ID,
		"items", len(n.StoreItems),
	)
	s.mergeIfComplete()
}

func (s *Store) checkUserItemsSolicited(n webapi.Notification) {
	if s.refresh == nil && s.purchase == nil {
		s.ignore(n.Kind, "no operation in progress", "items", len(n.UserItems))
	}
}

func (s *Store) onUserItemsForCatalog(n webapi.Notification) {
	if s.refresh == nil {
		return
	}

	s.refresh.userItems = slices.Clone(n.UserItems)
	s.refresh.haveUser = true
	s.logger.Debug("user items cached",
		"operation_id", s.refresh.op.ID,
		"items", len(n.UserItems),
	)
	s.mergeIfComplete()
}

// mergeIfComplete runs the reconciler once both batches are cached and
// emits the terminal result. The refresh is cleared on every path.
func (s *Store) mergeIfComplete() {
	r := s.refresh
	if !r.haveStore || !r.haveUser {
		return
	}
	defer func() {
		if s.refresh == r {
			s.refresh = nil
		}
	}()

	products, err := s.reconciler.Merge(r.op.Products, r.storeItems, r.userItems, s.api.GameAuthToken())
	if err != nil {
		s.logger.Error("catalog merge failed",
			"operation_id", r.op.ID,
			"error", err,
		)
		s.observer.OperationCompleted(r.op, Outcome{
			Status:  OutcomeSetupFailed,
			Reason:  string(NoProductsAvailable),
			Message: err.Error(),
		})
		s.callback.OnSetupFailed(NoProductsAvailable)
		return
	}

	s.logger.Info("catalog refresh completed",
		"operation_id", r.op.ID,
		"requested", len(r.op.Products),
		"resolved", len(products),
	)
	s.observer.OperationCompleted(r.op, Outcome{
		Status:   OutcomeProductsRetrieved,
		Products: len(products),
	})
	s.callback.OnProductsRetrieved(products)
}

// --- purchase flow ---

func (s *Store) onPurchaseSucceeded(n webapi.Notification) {
	if s.purchase == nil {
		s.ignore(n.Kind, "no purchase in progress", "identifiers", n.Identifiers)
		return
	}

	// The success notification carries no instance id, so fetch the user's
	// items to find the one that was just granted.
	s.purchase.confirmed = true
	s.logger.Debug("purchase confirmed, requesting user items",
		"operation_id", s.purchase.op.ID,
		"identifiers", n.Identifiers,
	)
	s.api.RequestUserItemList()
}

func (s *Store) onPurchaseFailed(n webapi.Notification) {
	p := s.purchase
	if p == nil {
		s.ignore(n.Kind, "no purchase in progress", "identifiers", n.Identifiers)
		return
	}
	defer s.clearPurchase(p)

	s.failPurchase(p, UserCancelled, "User closed purchase dialog")
}

func (s *Store) onUserItemsForPurchase(n webapi.Notification) {
	p := s.purchase
	if p == nil {
		return
	}
	defer s.clearPurchase(p)

	// First match wins. With several owned instances of the product this may
	// be an older instance; the API offers nothing better to go on.
	idx := slices.IndexFunc(n.UserItems, func(item webapi.UserItem) bool {
		return item.Identifier == p.product.ID
	})
	if idx < 0 {
		s.failPurchase(p, Unknown, "Purchased product not found in user's items")
		return
	}
	item := n.UserItems[idx]

	receipt, err := catalog.NewReceipt(s.api.GameAuthToken(), item.ID).JSON()
	if err != nil {
		s.failPurchase(p, Unknown, err.Error())
		return
	}
	transactionID := strconv.FormatInt(item.ID, 10)

	s.logger.Info("purchase completed",
		"operation_id", p.op.ID,
		"product_id", item.Identifier,
		"transaction_id", transactionID,
		"confirmed", p.confirmed,
	)
	s.observer.OperationCompleted(p.op, Outcome{
		Status:        OutcomePurchaseSucceeded,
		ProductID:     item.Identifier,
		TransactionID: transactionID,
	})
	s.callback.OnPurchaseSucceeded(item.Identifier, receipt, transactionID)
}

func (s *Store) failPurchase(p *pendingPurchase, reason PurchaseFailureReason, message string) {
	s.logger.Info("purchase failed",
		"operation_id", p.op.ID,
		"product_id", p.product.ID,
		"reason", string(reason),
	)
	s.observer.OperationCompleted(p.op, Outcome{
		Status:    OutcomePurchaseFailed,
		ProductID: p.product.ID,
		Reason:    string(reason),
		Message:   message,
	})
	s.callback.OnPurchaseFailed(PurchaseFailure{
		ProductID: p.product.ID,
		Reason:    reason,
		Message:   message,
	})
}

func (s *Store) clearPurchase(p *pendingPurchase) {
	if s.purchase == p {
		s.purchase = nil
	}
}

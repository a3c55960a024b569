package purchasing

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kongstore/internal/catalog"
	"github.com/roach88/kongstore/internal/webapi"
)

// recordingCallback captures every terminal result.
type recordingCallback struct {
	retrieved   [][]catalog.ProductDescription
	setupFailed []InitializationFailureReason
	succeeded   []purchaseSuccess
	failed      []PurchaseFailure

	// panicOnRetrieve makes OnProductsRetrieved panic after recording.
	panicOnRetrieve bool
}

type purchaseSuccess struct {
	ProductID     string
	Receipt       string
	TransactionID string
}

func (c *recordingCallback) OnProductsRetrieved(products []catalog.ProductDescription) {
	c.retrieved = append(c.retrieved, products)
	if c.panicOnRetrieve {
		panic("callback exploded")
	}
}

func (c *recordingCallback) OnSetupFailed(reason InitializationFailureReason) {
	c.setupFailed = append(c.setupFailed, reason)
}

func (c *recordingCallback) OnPurchaseSucceeded(productID, receipt, transactionID string) {
	c.succeeded = append(c.succeeded, purchaseSuccess{productID, receipt, transactionID})
}

func (c *recordingCallback) OnPurchaseFailed(f PurchaseFailure) {
	c.failed = append(c.failed, f)
}

func (c *recordingCallback) total() int {
	return len(c.retrieved) + len(c.setupFailed) + len(c.succeeded) + len(c.failed)
}

// recordingObserver captures lifecycle events.
type recordingObserver struct {
	started   []Operation
	completed []Outcome
	ignored   []webapi.Kind
}

func (o *recordingObserver) OperationStarted(op Operation) { o.started = append(o.started, op) }
func (o *recordingObserver) OperationCompleted(op Operation, out Outcome) {
	o.completed = append(o.completed, out)
}
func (o *recordingObserver) NotificationIgnored(kind webapi.Kind, reason string) {
	o.ignored = append(o.ignored, kind)
}

type fixture struct {
	bus      *webapi.Bus
	api      *webapi.RecordingAPI
	store    *Store
	callback *recordingCallback
	observer *recordingObserver
}

func newFixture(t *testing.T, ready bool) *fixture {
	t.Helper()

	f := &fixture{
		bus:      webapi.NewBus(),
		api:      webapi.NewRecordingAPI("tok"),
		callback: &recordingCallback{},
		observer: &recordingObserver{},
	}
	f.store = New(f.api, f.bus,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithOperationIDs(NewFixedGenerator("op-1", "op-2", "op-3")),
		WithObserver(f.observer),
	)
	f.store.Initialize(f.callback)
	if ready {
		f.bus.Publish(webapi.BecameReady())
	}
	return f
}

func (f *fixture) assertIdle(t *testing.T) {
	t.Helper()
	assert.True(t, f.store.Pending().IsNone(), "pending operation should be None, got %s", f.store.Pending())
	haveStore, haveUser := f.store.CachedBatches()
	assert.False(t, haveStore, "store batch should be cleared")
	assert.False(t, haveUser, "user batch should be cleared")
}

func products(ids ...string) []catalog.ProductDefinition {
	out := make([]catalog.ProductDefinition, len(ids))
	for i, id := range ids {
		out[i] = catalog.ProductDefinition{ID: id, Type: catalog.Consumable}
	}
	return out
}

func product(id string) catalog.ProductDefinition {
	return catalog.ProductDefinition{ID: id, Type: catalog.Consumable}
}

var (
	storeBatch = []webapi.StoreItem{
		{ID: 1, Identifier: "a", Name: "A", Description: "first", Price: 10},
		{ID: 2, Identifier: "b", Name: "B", Description: "second", Price: 20},
	}
	userBatch = []webapi.UserItem{
		{ID: 5, Identifier: "b"},
		{ID: 9, Identifier: "b"},
	}
)

// --- mutual exclusion ---

func TestStore_PurchaseWhileCatalogRefreshPending(t *testing.T) {
	for _, id := range []string{"a", "b", "", "zzz"} {
		f := newFixture(t, true)
		require.NoError(t, f.store.RetrieveProducts(products("a")))

		err := f.store.Purchase(product(id), "")

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrOperationPending)
		assert.True(t, IsPreconditionError(err))

		var pe *PreconditionError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, OperationPurchase, pe.Attempted)
		assert.Equal(t, OperationCatalogRefresh, pe.Pending.Kind)
		assert.Empty(t, pe.Reason)

		assert.Equal(t, OperationCatalogRefresh, f.store.Pending().Kind, "rejected start leaves state unchanged")
		for _, c := range f.api.Calls() {
			assert.NotEqual(t, webapi.CallPurchaseItems, c.Method, "no purchase request issued")
		}
	}
}

func TestStore_CatalogRefreshWhilePurchasePending(t *testing.T) {
	for _, ids := range [][]string{{"a"}, {"a", "b"}, nil} {
		f := newFixture(t, true)
		require.NoError(t, f.store.Purchase(product("x"), "payload"))

		err := f.store.RetrieveProducts(products(ids...))

		assert.ErrorIs(t, err, ErrOperationPending)
		assert.Equal(t, OperationPurchase, f.store.Pending().Kind)
		assert.Equal(t, "x", f.store.Pending().ProductID)
	}
}

func TestStore_SecondOperationOfSameKindRejected(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.store.Purchase(product("x"), ""))

	err := f.store.Purchase(product("y"), "")

	assert.ErrorIs(t, err, ErrOperationPending)
	assert.Equal(t, "x", f.store.Pending().ProductID)
	assert.Len(t, f.api.Calls(), 1)

	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ExistingPurchasePending, pe.Reason)
	assert.Empty(t, f.callback.failed, "a rejected start is not a failed purchase")
}

func TestStore_NotInitialized(t *testing.T) {
	s := New(webapi.NewRecordingAPI("tok"), webapi.NewBus())

	assert.ErrorIs(t, s.RetrieveProducts(products("a")), ErrNotInitialized)
	assert.ErrorIs(t, s.Purchase(product("a"), ""), ErrNotInitialized)
}

// --- catalog refresh ---

func TestStore_CatalogRefresh_WaitsForReady(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, f.store.RetrieveProducts(products("a")))
	assert.Empty(t, f.api.Calls(), "no requests before the API is ready")

	f.bus.Publish(webapi.BecameReady())

	assert.Equal(t, []webapi.Call{
		{Method: webapi.CallRequestItemList},
		{Method: webapi.CallRequestUserItemList},
	}, f.api.Calls())
}

func TestStore_CatalogRefresh_ReadyAlready(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.store.RetrieveProducts(products("a")))

	assert.Equal(t, []webapi.Call{
		{Method: webapi.CallRequestItemList},
		{Method: webapi.CallRequestUserItemList},
	}, f.api.Calls())
}

func TestStore_CatalogRefresh_WaitsForBothBatches(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.store.RetrieveProducts(products("a", "b")))

	f.bus.Publish(webapi.StoreItemsReceived(storeBatch))

	assert.Zero(t, f.callback.total(), "no result with only one batch")
	haveStore, haveUser := f.store.CachedBatches()
	assert.True(t, haveStore)
	assert.False(t, haveUser)

	f.bus.Publish(webapi.UserItemsReceived(userBatch))

	require.Len(t, f.callback.retrieved, 1)
	f.assertIdle(t)
}

func TestStore_CatalogRefresh_MergeIsCommutative(t *testing.T) {
	run := func(storeFirst bool) []catalog.ProductDescription {
		f := newFixture(t, true)
		require.NoError(t, f.store.RetrieveProducts(products("a", "b", "c")))
		if storeFirst {
			f.bus.Publish(webapi.StoreItemsReceived(storeBatch))
			f.bus.Publish(webapi.UserItemsReceived(userBatch))
		} else {
			f.bus.Publish(webapi.UserItemsReceived(userBatch))
			f.bus.Publish(webapi.StoreItemsReceived(storeBatch))
		}
		require.Len(t, f.callback.retrieved, 1)
		f.assertIdle(t)
		return f.callback.retrieved[0]
	}

	storeFirst := run(true)
	userFirst := run(false)

	assert.Equal(t, storeFirst, userFirst)
	require.Len(t, storeFirst, 2)
}

func TestStore_CatalogRefresh_OwnershipRoundTrip(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.store.RetrieveProducts(products("a", "b")))

	f.bus.Publish(webapi.StoreItemsReceived(storeBatch))
	f.bus.Publish(webapi.UserItemsReceived(userBatch))

	require.Len(t, f.callback.retrieved, 1)
	got := f.callback.retrieved[0]
	require.Len(t, got, 2)

	assert.False(t, got[0].Owned())
	assert.Equal(t, "b", got[1].StoreSpecificID)
	assert.Equal(t, "5,9", got[1].TransactionID)

	receipt, err := catalog.ParseReceipt(got[1].Receipt)
	require.NoError(t, err)
	assert.Equal(t, "tok", receipt.AuthToken)
	assert.Equal(t, []int64{5, 9}, receipt.Items)
}

func TestStore_CatalogRefresh_MissingCatalogEntryDropped(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.store.RetrieveProducts(products("a", "b")))

	f.bus.Publish(webapi.StoreItemsReceived([]webapi.StoreItem{{Identifier: "b", Price: 1}}))
	f.bus.Publish(webapi.UserItemsReceived(nil))

	require.Len(t, f.callback.retrieved, 1)
	require.Len(t, f.callback.retrieved[0], 1)
	assert.Equal(t, "b", f.callback.retrieved[0][0].StoreSpecificID)
}

func TestStore_CatalogRefresh_LaterBatchReplacesEarlier(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.store.RetrieveProducts(products("a", "b")))

	f.bus.Publish(webapi.StoreItemsReceived([]webapi.StoreItem{{Identifier: "a", Price: 1}}))
	f.bus.Publish(webapi.StoreItemsReceived([]webapi.StoreItem{{Identifier: "b", Price: 2}}))
	f.bus.Publish(webapi.UserItemsReceived(nil))

	require.Len(t, f.callback.retrieved, 1)
	require.Len(t, f.callback.retrieved[0], 1)
	assert.Equal(t, "b", f.callback.retrieved[0][0].StoreSpecificID)
}

func TestStore_CatalogRefresh_MergeFailureReportsSetupFailed(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.store.RetrieveProducts(products("a")))

	f.bus.Publish(webapi.StoreItemsReceived([]webapi.StoreItem{{Identifier: "a"}, {Identifier: "a"}}))
	f.bus.Publish(webapi.UserItemsReceived(nil))

	assert.Empty(t, f.callback.retrieved, "no partial catalog")
	assert.Equal(t, []InitializationFailureReason{NoProductsAvailable}, f.callback.setupFailed)
	f.assertIdle(t)

	require.Len(t, f.observer.completed, 1)
	assert.Equal(t, OutcomeSetupFailed, f.observer.completed[0].Status)
	assert.Contains(t, f.observer.completed[0].Message, "DUPLICATE_ID")
}

func TestStore_CatalogRefresh_UnrequestedMalformedEntriesDoNotFail(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.store.RetrieveProducts(products("sword")))

	f.bus.Publish(webapi.StoreItemsReceived([]webapi.StoreItem{
		{Identifier: "sword", Price: 10},
		{Identifier: "", Price: 5},
	}))
	f.bus.Publish(webapi.UserItemsReceived([]webapi.UserItem{{ID: -1, Identifier: "shield"}}))

	assert.Empty(t, f.callback.setupFailed)
	require.Len(t, f.callback.retrieved, 1)
	require.Len(t, f.callback.retrieved[0], 1)
	assert.Equal(t, "sword", f.callback.retrieved[0][0].StoreSpecificID)
	f.assertIdle(t)
}

func TestStore_CatalogRefresh_CleanupSurvivesCallbackPanic(t *testing.T) {
	f := newFixture(t, true)
	f.callback.panicOnRetrieve = true
	require.NoError(t, f.store.RetrieveProducts(products("a")))
	f.bus.Publish(webapi.StoreItemsReceived(storeBatch))

	assert.Panics(t, func() {
		f.bus.Publish(webapi.UserItemsReceived(nil))
	})

	f.assertIdle(t)
	assert.NoError(t, f.store.Purchase(product("a"), ""), "store is not wedged")
}

func TestStore_CatalogRefresh_StoreItemsWithoutRefreshIgnored(t *testing.T) {
	f := newFixture(t, true)

	f.bus.Publish(webapi.StoreItemsReceived(storeBatch))

	assert.Zero(t, f.callback.total())
	assert.Equal(t, []webapi.Kind{webapi.KindStoreItems}, f.observer.ignored)
	f.assertIdle(t)
}

// --- purchase ---

func TestStore_Purchase_IssuesRequest(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.store.Purchase(product("x"), "dev-payload"))

	assert.Equal(t, []webapi.Call{{Method: webapi.CallPurchaseItems, Identifiers: []string{"x"}}}, f.api.Calls())
	assert.Equal(t, Operation{Kind: OperationPurchase, ID: "op-1", ProductID: "x"}, f.store.Pending())
}

func TestStore_Purchase_SuccessPath(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.store.Purchase(product("x"), ""))

	f.bus.Publish(webapi.PurchaseSucceeded("x"))

	assert.Zero(t, f.callback.total(), "success notification alone is not terminal")
	assert.Equal(t, webapi.CallRequestUserItemList, f.api.Calls()[1].Method, "re-requests ownership")
	assert.Equal(t, OperationPurchase, f.store.Pending().Kind)

	f.bus.Publish(webapi.UserItemsReceived([]webapi.UserItem{{ID: 42, Identifier: "x"}}))

	require.Len(t, f.callback.succeeded, 1)
	got := f.callback.succeeded[0]
	assert.Equal(t, "x", got.ProductID)
	assert.Equal(t, "42", got.TransactionID)
	assert.JSONEq(t, `{"authToken":"tok","items":[42]}`, got.Receipt)
	f.assertIdle(t)
}

func TestStore_Purchase_FirstMatchingInstanceWins(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.store.Purchase(product("x"), ""))
	f.bus.Publish(webapi.PurchaseSucceeded("x"))

	f.bus.Publish(webapi.UserItemsReceived([]webapi.UserItem{
		{ID: 3, Identifier: "y"},
		{ID: 7, Identifier: "x"},
		{ID: 42, Identifier: "x"},
	}))

	require.Len(t, f.callback.succeeded, 1)
	assert.Equal(t, "7", f.callback.succeeded[0].TransactionID)
}

// Two purchases resolving to the same ownership data yield the same
// transaction id. The limitation is kept, not papered over.
func TestStore_Purchase_TransactionIDNotUniqueAcrossPurchases(t *testing.T) {
	f := newFixture(t, true)
	owned := []webapi.UserItem{{ID: 7, Identifier: "x"}}

	for i := 0; i < 2; i++ {
		require.NoError(t, f.store.Purchase(product("x"), ""))
		f.bus.Publish(webapi.PurchaseSucceeded("x"))
		f.bus.Publish(webapi.UserItemsReceived(owned))
	}

	require.Len(t, f.callback.succeeded, 2)
	assert.Equal(t, f.callback.succeeded[0].TransactionID, f.callback.succeeded[1].TransactionID)
}

func TestStore_Purchase_NotFoundInOwnership(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.store.Purchase(product("x"), ""))

	f.bus.Publish(webapi.PurchaseSucceeded("x"))
	f.bus.Publish(webapi.UserItemsReceived([]webapi.UserItem{}))

	require.Len(t, f.callback.failed, 1)
	assert.Equal(t, "x", f.callback.failed[0].ProductID)
	assert.Equal(t, Unknown, f.callback.failed[0].Reason)
	assert.NotEmpty(t, f.callback.failed[0].Message)
	assert.Empty(t, f.callback.succeeded)
	f.assertIdle(t)
}

func TestStore_Purchase_Cancelled(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.store.Purchase(product("x"), ""))

	f.bus.Publish(webapi.PurchaseFailed("x"))

	require.Len(t, f.callback.failed, 1)
	assert.Equal(t, PurchaseFailure{
		ProductID: "x",
		Reason:    UserCancelled,
		Message:   "User closed purchase dialog",
	}, f.callback.failed[0])
	f.assertIdle(t)

	// A late ownership batch after the terminal outcome is unsolicited.
	f.bus.Publish(webapi.UserItemsReceived([]webapi.UserItem{{ID: 1, Identifier: "x"}}))
	assert.Len(t, f.callback.failed, 1)
	assert.Empty(t, f.callback.succeeded)
}

func TestStore_Purchase_DuplicateSuccessNotifications(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.store.Purchase(product("x"), ""))

	f.bus.Publish(webapi.PurchaseSucceeded("x"))
	f.bus.Publish(webapi.PurchaseSucceeded("x"))
	f.bus.Publish(webapi.UserItemsReceived([]webapi.UserItem{{ID: 42, Identifier: "x"}}))
	f.bus.Publish(webapi.PurchaseSucceeded("x"))

	assert.Len(t, f.callback.succeeded, 1)
	assert.Equal(t, []webapi.Kind{webapi.KindPurchaseSucceeded}, f.observer.ignored)
	f.assertIdle(t)
}

// --- unsolicited notifications ---

func TestStore_UnsolicitedNotificationsIgnored(t *testing.T) {
	tests := []webapi.Notification{
		webapi.PurchaseFailed("z"),
		webapi.PurchaseSucceeded("z"),
		webapi.UserItemsReceived([]webapi.UserItem{{ID: 1, Identifier: "z"}}),
		webapi.StoreItemsReceived(storeBatch),
	}

	for _, n := range tests {
		t.Run(n.Kind.String(), func(t *testing.T) {
			f := newFixture(t, true)

			assert.NotPanics(t, func() { f.bus.Publish(n) })

			assert.Zero(t, f.callback.total(), "no callback invoked")
			assert.Empty(t, f.api.Calls(), "no request issued")
			assert.Equal(t, []webapi.Kind{n.Kind}, f.observer.ignored)
			f.assertIdle(t)
		})
	}
}

// --- lifecycle ---

func TestStore_FinishTransactionIsNoOp(t *testing.T) {
	f := newFixture(t, true)

	f.store.FinishTransaction(product("x"), "42")

	assert.Empty(t, f.api.Calls())
	assert.Zero(t, f.callback.total())
	f.assertIdle(t)
}

func TestStore_CloseUnsubscribes(t *testing.T) {
	f := newFixture(t, true)
	require.Equal(t, 3, f.bus.Subscribers(webapi.KindUserItems))

	f.store.Close()
	f.store.Close()

	for _, k := range webapi.Kinds {
		assert.Zero(t, f.bus.Subscribers(k), "kind %s", k)
	}
}

func TestStore_ReinitializeReplacesSubscriptions(t *testing.T) {
	f := newFixture(t, true)
	second := &recordingCallback{}

	f.store.Initialize(second)
	require.NoError(t, f.store.Purchase(product("x"), ""))
	f.bus.Publish(webapi.PurchaseFailed("x"))

	assert.Equal(t, 1, f.bus.Subscribers(webapi.KindPurchaseFailed))
	assert.Zero(t, f.callback.total())
	assert.Len(t, second.failed, 1)
}

func TestStore_ObserverSeesLifecycle(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.store.RetrieveProducts(products("a")))
	f.bus.Publish(webapi.StoreItemsReceived(storeBatch))
	f.bus.Publish(webapi.UserItemsReceived(nil))
	require.NoError(t, f.store.Purchase(product("a"), ""))
	f.bus.Publish(webapi.PurchaseFailed("a"))

	require.Len(t, f.observer.started, 2)
	assert.Equal(t, "op-1", f.observer.started[0].ID)
	assert.Equal(t, OperationCatalogRefresh, f.observer.started[0].Kind)
	assert.Equal(t, "op-2", f.observer.started[1].ID)

	require.Len(t, f.observer.completed, 2)
	assert.Equal(t, Outcome{Status: OutcomeProductsRetrieved, Products: 1}, f.observer.completed[0])
	assert.Equal(t, OutcomePurchaseFailed, f.observer.completed[1].Status)
	assert.Equal(t, string(UserCancelled), f.observer.completed[1].Reason)
}

func TestStore_StaleReadyCallbackDoesNotRequest(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.store.RetrieveProducts(products("a")))

	// The refresh resolves before the API reports ready, so the deferred
	// requests must not fire.
	f.store.refresh.haveStore = true
	f.store.refresh.haveUser = true
	f.store.mergeIfComplete()
	f.assertIdle(t)

	f.bus.Publish(webapi.BecameReady())

	assert.Empty(t, f.api.Calls())
}

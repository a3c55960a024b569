package metrics

import (
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kongstore/internal/catalog"
	"github.com/roach88/kongstore/internal/purchasing"
	"github.com/roach88/kongstore/internal/webapi"
)

func TestCollector_CountsLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	purchase := purchasing.Operation{Kind: purchasing.OperationPurchase, ID: "op-1", ProductID: "x"}
	c.OperationStarted(purchase)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pending))

	c.OperationCompleted(purchase, purchasing.Outcome{Status: purchasing.OutcomePurchaseFailed})
	c.NotificationIgnored(webapi.KindUserItems, "no operation in progress")
	c.NotificationIgnored(webapi.KindUserItems, "no operation in progress")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.started.WithLabelValues("purchase")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.completed.WithLabelValues("purchase", "purchase_failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.ignored.WithLabelValues("user_items_received")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.pending))
}

func TestCollector_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)

	_, err = NewCollector(reg)
	assert.Error(t, err)
}

func TestCollector_WiredIntoStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	bus := webapi.NewBus()
	api := webapi.NewRecordingAPI("tok")
	s := purchasing.New(api, bus,
		purchasing.WithObserver(c),
		purchasing.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Initialize(nopCallback{})
	bus.Publish(webapi.BecameReady())

	require.NoError(t, s.Purchase(catalog.ProductDefinition{ID: "x", Type: catalog.Consumable}, ""))
	bus.Publish(webapi.PurchaseSucceeded("x"))
	bus.Publish(webapi.UserItemsReceived([]webapi.UserItem{{ID: 42, Identifier: "x"}}))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.started.WithLabelValues("purchase")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.completed.WithLabelValues("purchase", "purchase_succeeded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.pending))
}

type nopCallback struct{}

func (nopCallback) OnProductsRetrieved([]catalog.ProductDescription)     {}
func (nopCallback) OnSetupFailed(purchasing.InitializationFailureReason) {}
func (nopCallback) OnPurchaseSucceeded(string, string, string)           {}
func (nopCallback) OnPurchaseFailed(purchasing.PurchaseFailure)          {}

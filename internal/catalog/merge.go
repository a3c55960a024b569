package catalog

import (
	"fmt"
	"log/slog"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/kongstore/internal/webapi"
)

// Reconciler builds product descriptions from a store batch and an
// ownership batch. The zero value is not usable; call NewReconciler.
type Reconciler struct {
	printer *message.Printer
	logger  *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLocale formats price strings for tag.
func WithLocale(tag language.Tag) Option {
	return func(r *Reconciler) {
		r.printer = message.NewPrinter(tag)
	}
}

// WithLogger sets the logger for skipped entries. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// NewReconciler creates a reconciler. Prices are formatted for English
// unless WithLocale is given.
func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{
		printer: message.NewPrinter(language.English),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Merge resolves requested products against storeItems and userItems.
//
// Requested products missing from storeItems are dropped; the caller treats
// them as unavailable. Products with one or more entries in userItems carry a
// receipt listing every owned instance id, in userItems order, and a
// transaction id joining those ids.
//
// Only entries keyed by a requested id are checked. A malformed requested
// entry abandons the merge: Merge returns a nil slice and a
// *MalformedEntryError, never a partial result. Entries for other products
// are skipped and logged.
func (r *Reconciler) Merge(
	requested []ProductDefinition,
	storeItems []webapi.StoreItem,
	userItems []webapi.UserItem,
	authToken string,
) ([]ProductDescription, error) {
	wanted := make(map[string]bool, len(requested))
	for i, product := range requested {
		if product.ID == "" {
			return nil, &MalformedEntryError{
				Code:    ErrCodeMalformedEntry,
				Batch:   "request",
				Index:   i,
				Message: "product id is empty",
			}
		}
		wanted[product.ID] = true
	}

	store, err := r.indexStoreItems(storeItems, wanted)
	if err != nil {
		return nil, err
	}
	owned, err := r.groupUserItems(userItems, wanted)
	if err != nil {
		return nil, err
	}

	results := make([]ProductDescription, 0, len(requested))
	for _, product := range requested {
		item, ok := store[product.ID]
		if !ok {
			continue
		}

		desc, err := r.describe(product, item, owned[product.ID], authToken)
		if err != nil {
			return nil, fmt.Errorf("describe %s: %w", product.ID, err)
		}
		results = append(results, desc)
	}

	return results, nil
}

// Metadata derives display metadata from a store item.
func (r *Reconciler) Metadata(item webapi.StoreItem) ProductMetadata {
	return ProductMetadata{
		LocalizedPriceString: r.printer.Sprintf("%d Kreds", item.Price),
		LocalizedTitle:       norm.NFC.String(item.Name),
		LocalizedDescription: norm.NFC.String(item.Description),
		ISOCurrencyCode:      CurrencyCode,
		LocalizedPrice:       item.Price,
	}
}

func (r *Reconciler) describe(
	product ProductDefinition,
	item webapi.StoreItem,
	ownedIDs []int64,
	authToken string,
) (ProductDescription, error) {
	desc := ProductDescription{
		StoreSpecificID: product.ID,
		Metadata:        r.Metadata(item),
	}
	if len(ownedIDs) == 0 {
		return desc, nil
	}

	receipt := NewReceipt(authToken, ownedIDs...)
	payload, err := receipt.JSON()
	if err != nil {
		return ProductDescription{}, err
	}
	desc.Receipt = payload
	desc.TransactionID = receipt.TransactionID()
	return desc, nil
}

// indexStoreItems keys the requested store items by identifier.
func (r *Reconciler) indexStoreItems(items []webapi.StoreItem, wanted map[string]bool) (map[string]webapi.StoreItem, error) {
	index := make(map[string]webapi.StoreItem, len(wanted))
	for i, item := range items {
		if !wanted[item.Identifier] {
			if item.Identifier == "" || item.Price < 0 {
				r.logger.Warn("skipping malformed store item",
					"index", i,
					"identifier", item.Identifier,
					"price", item.Price,
				)
			}
			continue
		}
		if item.Price < 0 {
			return nil, &MalformedEntryError{
				Code:       ErrCodeMalformedEntry,
				Batch:      "store",
				Index:      i,
				Identifier: item.Identifier,
				Message:    fmt.Sprintf("negative price %d", item.Price),
			}
		}
		if _, dup := index[item.Identifier]; dup {
			return nil, &MalformedEntryError{
				Code:       ErrCodeDuplicateID,
				Batch:      "store",
				Index:      i,
				Identifier: item.Identifier,
				Message:    "identifier appears more than once",
			}
		}
		index[item.Identifier] = item
	}
	return index, nil
}

// groupUserItems collects owned-instance ids per requested product,
// preserving batch order.
func (r *Reconciler) groupUserItems(items []webapi.UserItem, wanted map[string]bool) (map[string][]int64, error) {
	groups := make(map[string][]int64)
	for i, item := range items {
		if !wanted[item.Identifier] {
			if item.Identifier == "" || item.ID < 0 {
				r.logger.Warn("skipping malformed user item",
					"index", i,
					"identifier", item.Identifier,
					"id", item.ID,
				)
			}
			continue
		}
		if item.ID < 0 {
			return nil, &MalformedEntryError{
				Code:       ErrCodeMalformedEntry,
				Batch:      "user",
				Index:      i,
				Identifier: item.Identifier,
				Message:    fmt.Sprintf("negative instance id %d", item.ID),
			}
		}
		groups[item.Identifier] = append(groups[item.Identifier], item.ID)
	}
	return groups, nil
}

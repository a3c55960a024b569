package webapi

import "fmt"

// StoreItem is one entry of the store catalog as reported by the web API.
// Identifiers are unique within a batch.
type StoreItem struct {
	ID          int64  `json:"id" yaml:"id"`
	Identifier  string `json:"identifier" yaml:"identifier"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Price       int64  `json:"price" yaml:"price"`
}

// UserItem is one owned instance of a product. A user may own several
// instances of the same product, each with its own ID.
type UserItem struct {
	ID         int64          `json:"id" yaml:"id"`
	Identifier string         `json:"identifier" yaml:"identifier"`
	Data       map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Status is the initialization state of the web API.
type Status int

const (
	StatusUninitialized Status = iota
	StatusInitializing
	StatusReady
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Kind distinguishes notification types.
type Kind int

const (
	// KindStoreItems carries a full store catalog batch.
	KindStoreItems Kind = iota + 1
	// KindUserItems carries the full list of items the user owns.
	KindUserItems
	// KindPurchaseSucceeded reports that the purchase dialog completed.
	KindPurchaseSucceeded
	// KindPurchaseFailed reports that the purchase dialog was closed or failed.
	KindPurchaseFailed
	// KindBecameReady reports that the API finished initializing.
	KindBecameReady
)

// Kinds lists every notification kind in declaration order.
var Kinds = []Kind{KindStoreItems, KindUserItems, KindPurchaseSucceeded, KindPurchaseFailed, KindBecameReady}

func (k Kind) String() string {
	switch k {
	case KindStoreItems:
		return "store_items_received"
	case KindUserItems:
		return "user_items_received"
	case KindPurchaseSucceeded:
		return "purchase_succeeded"
	case KindPurchaseFailed:
		return "purchase_failed"
	case KindBecameReady:
		return "became_ready"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind returns the Kind whose String form is s.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown notification kind %q", s)
}

// Notification is a single inbound event. Only the payload field matching
// Kind is populated.
type Notification struct {
	Kind        Kind
	StoreItems  []StoreItem
	UserItems   []UserItem
	Identifiers []string
}

// StoreItemsReceived builds a store catalog notification.
func StoreItemsReceived(items []StoreItem) Notification {
	return Notification{Kind: KindStoreItems, StoreItems: items}
}

// UserItemsReceived builds an ownership notification.
func UserItemsReceived(items []UserItem) Notification {
	return Notification{Kind: KindUserItems, UserItems: items}
}

// PurchaseSucceeded builds a purchase success notification.
func PurchaseSucceeded(identifiers ...string) Notification {
	return Notification{Kind: KindPurchaseSucceeded, Identifiers: identifiers}
}

// PurchaseFailed builds a purchase failure notification.
func PurchaseFailed(identifiers ...string) Notification {
	return Notification{Kind: KindPurchaseFailed, Identifiers: identifiers}
}

// BecameReady builds a readiness notification.
func BecameReady() Notification {
	return Notification{Kind: KindBecameReady}
}

// API is the outbound half of the web API. Every call returns immediately;
// results surface later as notifications.
type API interface {
	RequestItemList()
	RequestUserItemList()
	PurchaseItems(identifiers []string)

	// GameAuthToken is embedded in every synthesized receipt.
	GameAuthToken() string
	Status() Status
}

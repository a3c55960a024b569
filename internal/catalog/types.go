// Package catalog merges store catalog entries and user ownership entries
// into enriched product descriptions.
//
// The merge is a pure function of its inputs: it never touches pending
// operation state, and the result does not depend on which batch arrived
// first.
package catalog

import "fmt"

// CurrencyCode is the ISO-like code of the API's single virtual currency.
const CurrencyCode = "kreds"

// ProductType classifies a product definition.
type ProductType string

const (
	Consumable    ProductType = "consumable"
	NonConsumable ProductType = "non_consumable"
	Subscription  ProductType = "subscription"
)

// Valid reports whether t is a known product type.
func (t ProductType) Valid() bool {
	switch t {
	case Consumable, NonConsumable, Subscription:
		return true
	}
	return false
}

// ProductDefinition is a product the caller asks the store to resolve.
type ProductDefinition struct {
	ID   string      `json:"id" yaml:"id"`
	Type ProductType `json:"type" yaml:"type"`
}

func (d ProductDefinition) String() string {
	return fmt.Sprintf("%s(%s)", d.ID, d.Type)
}

// ProductMetadata is the display data derived from a store catalog entry.
type ProductMetadata struct {
	LocalizedPriceString string `json:"localized_price_string"`
	LocalizedTitle       string `json:"localized_title"`
	LocalizedDescription string `json:"localized_description"`
	ISOCurrencyCode      string `json:"iso_currency_code"`
	LocalizedPrice       int64  `json:"localized_price"`
}

// ProductDescription is one resolved product. Receipt and TransactionID are
// set only when the user already owns at least one instance.
type ProductDescription struct {
	StoreSpecificID string          `json:"store_specific_id"`
	Metadata        ProductMetadata `json:"metadata"`
	Receipt         string          `json:"receipt,omitempty"`
	TransactionID   string          `json:"transaction_id,omitempty"`
}

// Owned reports whether the description carries an ownership proof.
func (d ProductDescription) Owned() bool {
	return d.Receipt != ""
}

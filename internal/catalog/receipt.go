package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TransactionIDSeparator joins owned-instance ids into a transaction id.
const TransactionIDSeparator = ","

// Receipt is the ownership proof handed to the caller as JSON.
//
// Serialized shape: {"authToken": "...", "items": [5, 9]}
type Receipt struct {
	AuthToken string  `json:"authToken"`
	Items     []int64 `json:"items"`
}

// NewReceipt builds a receipt for the given owned-instance ids.
func NewReceipt(authToken string, items ...int64) Receipt {
	if items == nil {
		items = []int64{}
	}
	return Receipt{AuthToken: authToken, Items: items}
}

// JSON serializes the receipt payload.
func (r Receipt) JSON() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal receipt: %w", err)
	}
	return string(data), nil
}

// TransactionID joins the receipt's item ids with TransactionIDSeparator.
//
// The API has no transaction id of its own, so this is synthesized. It is
// stable but not unique: two reads of an unchanged ownership set yield the
// same id, and so does a repeat purchase whose confirmation resolves to the
// same instance.
func (r Receipt) TransactionID() string {
	return TransactionID(r.Items)
}

// TransactionID joins ids as decimal strings in the given order.
func TransactionID(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, TransactionIDSeparator)
}

// ParseReceipt decodes a receipt payload.
func ParseReceipt(payload string) (Receipt, error) {
	var r Receipt
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return Receipt{}, fmt.Errorf("parse receipt: %w", err)
	}
	return r, nil
}

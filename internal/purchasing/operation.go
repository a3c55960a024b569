package purchasing

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/kongstore/internal/catalog"
)

// OperationKind is the tag of the pending-operation variant.
type OperationKind int

const (
	OperationNone OperationKind = iota
	OperationCatalogRefresh
	OperationPurchase
)

func (k OperationKind) String() string {
	switch k {
	case OperationNone:
		return "none"
	case OperationCatalogRefresh:
		return "catalog_refresh"
	case OperationPurchase:
		return "purchase"
	default:
		return fmt.Sprintf("operation(%d)", int(k))
	}
}

// Operation is a snapshot of the pending operation.
//
// Exactly one of the payload fields is meaningful:
//   - OperationNone: none
//   - OperationCatalogRefresh: Products
//   - OperationPurchase: ProductID
type Operation struct {
	Kind OperationKind

	// ID correlates log lines, journal entries and metrics for one operation.
	ID string

	Products  []catalog.ProductDefinition
	ProductID string
}

// IsNone reports whether no operation is pending.
func (o Operation) IsNone() bool {
	return o.Kind == OperationNone
}

func (o Operation) String() string {
	switch o.Kind {
	case OperationCatalogRefresh:
		return fmt.Sprintf("catalog_refresh[%s](%d products)", o.ID, len(o.Products))
	case OperationPurchase:
		return fmt.Sprintf("purchase[%s](%s)", o.ID, o.ProductID)
	default:
		return o.Kind.String()
	}
}

func catalogRefreshOperation(id string, products []catalog.ProductDefinition) Operation {
	return Operation{Kind: OperationCatalogRefresh, ID: id, Products: slices.Clone(products)}
}

func purchaseOperation(id, productID string) Operation {
	return Operation{Kind: OperationPurchase, ID: id, ProductID: productID}
}

// OperationIDGenerator produces operation correlation ids.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type OperationIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 operation ids.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids for deterministic tests.
//
// Once the list is exhausted it keeps returning ids derived from the last
// one ("op-2" then "op-2#2", "op-2#3", ...), so long scenarios never panic.
type FixedGenerator struct {
	mu    sync.Mutex
	ids   []string
	idx   int
	extra int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	if len(ids) == 0 {
		ids = []string{"op"}
	}
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx < len(g.ids) {
		id := g.ids[g.idx]
		g.idx++
		return id
	}
	g.extra++
	return fmt.Sprintf("%s#%d", g.ids[len(g.ids)-1], g.extra+1)
}

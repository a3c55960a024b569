// Package productspec compiles product definitions written in CUE into the
// catalog's ProductDefinition values.
//
// A definition file declares products under the top-level product field:
//
//	product: gold_pack: {
//		type:     "consumable"
//		store_id: "gold-500"
//	}
//
// store_id defaults to the product label.
package productspec

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/kongstore/internal/catalog"
)

// Product is a compiled product definition.
type Product struct {
	Name    string
	StoreID string
	Type    catalog.ProductType
}

// Definition returns the catalog definition keyed by the store id.
func (p Product) Definition() catalog.ProductDefinition {
	return catalog.ProductDefinition{ID: p.StoreID, Type: p.Type}
}

// CompileError is a definition error with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileProduct parses a CUE value into a Product. The value should be
// the product struct itself, e.g. the value at path "product.gold_pack".
func CompileProduct(v cue.Value) (*Product, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	p := &Product{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		p.Name = labels[len(labels)-1].String()
	}
	if p.Name == "" {
		return nil, &CompileError{Field: "product", Message: "product label is required", Pos: v.Pos()}
	}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return nil, &CompileError{Field: "type", Message: "type is required", Pos: v.Pos()}
	}
	typ, err := typeVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	p.Type = catalog.ProductType(typ)
	if !p.Type.Valid() {
		return nil, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unknown product type %q (want consumable, non_consumable or subscription)", typ),
			Pos:     typeVal.Pos(),
		}
	}

	p.StoreID = p.Name
	if idVal := v.LookupPath(cue.ParsePath("store_id")); idVal.Exists() {
		id, err := idVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if id == "" {
			return nil, &CompileError{Field: "store_id", Message: "store_id must not be empty", Pos: idVal.Pos()}
		}
		p.StoreID = id
	}

	return p, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

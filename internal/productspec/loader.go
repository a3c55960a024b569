package productspec

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/kongstore/internal/catalog"
)

// LoadResult holds the products compiled from a directory.
type LoadResult struct {
	Products  []Product
	FileCount int
}

// Definitions returns the catalog definitions in declaration order.
func (r *LoadResult) Definitions() []catalog.ProductDefinition {
	defs := make([]catalog.ProductDefinition, len(r.Products))
	for i, p := range r.Products {
		defs[i] = p.Definition()
	}
	return defs
}

// Load compiles every product in the CUE package in dir. All compile
// errors are collected; products that compiled are still returned.
func Load(dir string) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("product definitions directory: %w", err)}
	}
	if !info.IsDir() {
		return nil, []error{fmt.Errorf("not a directory: %s", dir)}
	}

	files, err := findCUEFiles(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("scanning %s: %w", dir, err)}
	}
	if len(files) == 0 {
		return nil, []error{fmt.Errorf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{fmt.Errorf("no CUE instances loaded from %s", dir)}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{fmt.Errorf("loading CUE files: %w", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	result, errs := CompileAll(value)
	if result != nil {
		result.FileCount = len(files)
	}
	return result, errs
}

// CompileAll compiles every field under the top-level product field of v.
// Two products sharing a store id is an error.
func CompileAll(v cue.Value) (*LoadResult, []error) {
	productsVal := v.LookupPath(cue.ParsePath("product"))
	if !productsVal.Exists() {
		return nil, []error{&CompileError{Field: "product", Message: "no products defined", Pos: v.Pos()}}
	}

	iter, err := productsVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		result = &LoadResult{}
		errs   []error
		seen   = make(map[string]string)
	)
	for iter.Next() {
		p, err := CompileProduct(iter.Value())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if other, dup := seen[p.StoreID]; dup {
			errs = append(errs, &CompileError{
				Field:   "store_id",
				Message: fmt.Sprintf("store id %q used by both %s and %s", p.StoreID, other, p.Name),
				Pos:     iter.Value().Pos(),
			})
			continue
		}
		seen[p.StoreID] = p.Name
		result.Products = append(result.Products, *p)
	}

	return result, errs
}

func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

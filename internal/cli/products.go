package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/kongstore/internal/productspec"
)

// ProductInfo is one product in the products command output.
type ProductInfo struct {
	Name    string `json:"name"`
	StoreID string `json:"store_id"`
	Type    string `json:"type"`
}

// ProductsResult is the products command output.
type ProductsResult struct {
	Products  []ProductInfo `json:"products"`
	FileCount int           `json:"file_count"`
}

func (r ProductsResult) String() string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTORE ID\tTYPE")
	for _, p := range r.Products {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.StoreID, p.Type)
	}
	tw.Flush()
	fmt.Fprintf(&b, "\n%d products from %d files", len(r.Products), r.FileCount)
	return b.String()
}

// NewProductsCommand creates the products command.
func NewProductsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "products <dir>",
		Short: "Compile and list CUE product definitions",
		Long: `Compile every product definition in a directory of CUE files.

Each product is declared under the top-level product field:

  product: gold_pack: {
      type:     "consumable"
      store_id: "gold-500"
  }

Exit codes:
  0 - All products compiled
  2 - Directory not found or a definition is invalid`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProducts(rootOpts, args[0], cmd)
		},
	}
}

func runProducts(opts *RootOptions, dir string, cmd *cobra.Command) error {
	if _, err := opts.settings(); err != nil {
		return err
	}
	out := opts.formatter(cmd)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		_ = out.Error(ErrCodeNotFound, fmt.Sprintf("directory not found: %s", dir), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("directory not found: %s", dir))
	}

	result, errs := productspec.Load(dir)
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		_ = out.Error(ErrCodeLoadFailed, fmt.Sprintf("%d invalid product definition(s)", len(errs)), msgs)
		return WrapExitError(ExitCommandError, "product definitions invalid", errors.Join(errs...))
	}

	info := ProductsResult{FileCount: result.FileCount, Products: make([]ProductInfo, len(result.Products))}
	for i, p := range result.Products {
		info.Products[i] = ProductInfo{Name: p.Name, StoreID: p.StoreID, Type: string(p.Type)}
	}
	out.VerboseLog("compiled %d products from %s", len(info.Products), dir)
	return out.Success(info)
}

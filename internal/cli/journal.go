package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/kongstore/internal/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Operation string
}

// JournalResult is the journal command output.
type JournalResult struct {
	Entries []journal.Entry `json:"entries"`
}

func (r JournalResult) String() string {
	if len(r.Entries) == 0 {
		return "no entries"
	}
	var b strings.Builder
	for _, e := range r.Entries {
		fmt.Fprintf(&b, "%4d  %-21s %-28s", e.Seq, e.Category, e.Name)
		if e.ProductID != "" {
			fmt.Fprintf(&b, " product=%s", e.ProductID)
		}
		if e.OperationID != "" {
			fmt.Fprintf(&b, " op=%s", e.OperationID)
		}
		b.WriteString(formatDetail(e.Detail))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatDetail renders detail as sorted key=value pairs.
func formatDetail(detail map[string]any) string {
	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, detail[k])
	}
	return b.String()
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal <db>",
		Short: "Print a store activity journal",
		Long: `Print the entries of a SQLite journal written by "kongstore demo --journal".

Entries are printed in sequence order. With --operation only the entries
of one operation are printed.

Exit codes:
  0 - Journal printed
  2 - Journal not found or unreadable`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Operation, "operation", "", "only print entries of this operation id")

	return cmd
}

func runJournal(opts *JournalOptions, path string, cmd *cobra.Command) error {
	if _, err := opts.settings(); err != nil {
		return err
	}
	out := opts.formatter(cmd)

	// Opening creates the database, so check first.
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = out.Error(ErrCodeNotFound, fmt.Sprintf("journal not found: %s", path), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", path))
	}

	j, err := journal.Open(path)
	if err != nil {
		_ = out.Error(ErrCodeLoadFailed, "failed to open journal", err.Error())
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	ctx := commandContext(cmd)
	var entries []journal.Entry
	if opts.Operation != "" {
		entries, err = j.ReadOperation(ctx, opts.Operation)
	} else {
		entries, err = j.ReadEntries(ctx)
	}
	if err != nil {
		_ = out.Error(ErrCodeLoadFailed, "failed to read journal", err.Error())
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	if entries == nil {
		entries = []journal.Entry{}
	}
	return out.OperationResult(opts.Operation, JournalResult{Entries: entries})
}

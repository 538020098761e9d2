package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/feichai0017/filing-pipeline/internal/ledger"
	"github.com/feichai0017/filing-pipeline/internal/printer"
)

var compactLedger string

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Fold event ledger objects into the flat CSV ledger",
	Long: `Compact reads every event object written by the "events" ledger backend
and rewrites the single CSV ledger object from them. Events are kept, so
compaction can be repeated at any time.`,
	RunE: runCompact,
}

func init() {
	compactCmd.Flags().StringVar(&compactLedger, "ledger", "success", "Ledger to compact: success, failure or extraction")
	rootCmd.AddCommand(compactCmd)
}

func runCompact(cmd *cobra.Command, args []string) error {
	p := printer.NewWriters(cmd.OutOrStdout(), cmd.ErrOrStderr())

	c, log, st, err := setup(cmd.Context())
	if err != nil {
		return p.Error("Failed to start", err.Error())
	}
	defer log.Sync()

	var id string
	var header []string
	switch compactLedger {
	case "success":
		id, header = c.Layout.SuccessLedger, ledger.SuccessHeader
	case "failure":
		id, header = c.Layout.FailureLedger, ledger.FailureHeader
	case "extraction":
		id, header = c.Extract.Ledger, ledger.ExtractionHeader
	default:
		return p.Error("Unknown ledger", fmt.Sprintf("%q is not one of success, failure or extraction.", compactLedger))
	}
	if c.Ledger.Backend != "events" {
		p.Warning("ledger.backend is %q; only the events backend writes event objects", c.Ledger.Backend)
	}

	n, err := ledger.NewEventStore(st, c.Layout.LedgerRoot, log.Named("ledger")).Compact(cmd.Context(), id, header)
	if err != nil {
		return p.Error("Compaction failed", err.Error())
	}
	p.OK(c.Layout.LedgerRoot+id, fmt.Sprintf("%d rows", n))
	return nil
}

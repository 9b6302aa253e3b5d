package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/spf13/cobra"
)

var (
	watch    bool
	interval time.Duration
	asJSON   bool
)

var statusCmd = &cobra.Command{
	Use:   "status [batch-id]",
	Short: "Show the status of every file in a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batchID := args[0]
		for {
			st, err := fetchStatus(cmd.Context(), batchID)
			if err != nil {
				return err
			}
			if asJSON {
				if err := printJSON(cmd.OutOrStdout(), st); err != nil {
					return err
				}
			} else {
				printStatus(cmd.OutOrStdout(), st)
			}
			if !watch || settled(st) {
				return nil
			}
			select {
			case <-time.After(interval):
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		}
	},
}

func fetchStatus(ctx context.Context, batchID string) (models.BatchStatusResponse, error) {
	var st models.BatchStatusResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/batch_status/"+url.PathEscape(batchID), nil)
	if err != nil {
		return st, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return st, fmt.Errorf("status request failed: %w", err)
	}
	return st, decodeResponse(resp, &st)
}

// settled reports whether every file has reached a terminal status.
func settled(st models.BatchStatusResponse) bool {
	for _, f := range st.Files {
		if !f.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func printStatus(w io.Writer, st models.BatchStatusResponse) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "batch %s\n", st.BatchID)
	fmt.Fprintln(tw, "FILE\tTYPE\tSTATUS\tLABEL\tOUTPUTS\tERROR")
	for _, f := range st.Files {
		label := "-"
		if f.Classification != nil {
			label = fmt.Sprintf("%s (%.2f)", f.Classification.Label, f.Classification.Confidence)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", f.FileName, f.FileType, f.Status, label, len(f.EnhancedRefs), f.Error)
	}
	_ = tw.Flush()
}

func init() {
	statusCmd.Flags().BoolVarP(&watch, "watch", "w", false, "poll until every file is enhanced or failed")
	statusCmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "polling interval with --watch")
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status response")
	rootCmd.AddCommand(statusCmd)
}

package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/Lllllllleong/documentrestoreflow/internal/classify"
	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/Lllllllleong/documentrestoreflow/internal/objectstore"
	"github.com/Lllllllleong/documentrestoreflow/internal/services"
	"github.com/spf13/cobra"
)

var outDir string

var restoreCmd = &cobra.Command{
	Use:   "restore [file...]",
	Short: "Restore and classify files locally",
	Long: `Run the restoration pipeline on local files without any service: pages are
deskewed, contrast corrected, deblurred and classified, and the restored
pages (plus a reassembled PDF for PDF inputs) are written to --out.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cls, closeCls, err := classify.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeCls()

		gw := objectstore.NewMemoryGateway("local")
		proc := services.NewProcessor(gw, cls, nil, services.ProcessorConfig{
			Policy:          services.WorkerPolicy(cfg),
			PageConcurrency: cfg.Worker.PageConcurrency,
		})

		items, err := stageInputs(ctx, gw, args)
		if err != nil {
			return err
		}
		req := models.ProcessBatchRequest{BatchID: "local", Items: items}

		resp, err := proc.ProcessBatch(ctx, req)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ORIGINAL\tPAGE\tLABEL\tOUTPUT\tERROR")
		for _, r := range resp.Details {
			out := ""
			if !r.Failed() {
				if out, err = writeOutput(cmd, gw, r.Enhanced); err != nil {
					return err
				}
			}
			label := r.Label
			if label != "" {
				label = fmt.Sprintf("%s (%.2f)", r.Label, r.Confidence)
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", models.Basename(r.Original), r.Page, label, out, r.Error)
		}
		return tw.Flush()
	},
}

// stageInputs copies the files into gw. Keys carry the argument position so
// files sharing a basename do not overwrite each other.
func stageInputs(ctx context.Context, gw objectstore.Gateway, paths []string) ([]models.ProcessItem, error) {
	items := make([]models.ProcessItem, 0, len(paths))
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		ref, err := gw.Put(ctx, fmt.Sprintf("local/%03d_%s", i+1, filepath.Base(p)), data, "")
		if err != nil {
			return nil, err
		}
		items = append(items, models.ProcessItem{ObjectRef: ref.String()})
	}
	return items, nil
}

func writeOutput(cmd *cobra.Command, gw objectstore.Gateway, enhanced string) (string, error) {
	ref, err := models.ParseObjectRef(enhanced)
	if err != nil {
		return "", err
	}
	data, err := gw.Get(cmd.Context(), ref)
	if err != nil {
		return "", err
	}
	path := filepath.Join(outDir, ref.Basename())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func init() {
	restoreCmd.Flags().StringVarP(&outDir, "out", "o", "restored", "directory for restored output")
	rootCmd.AddCommand(restoreCmd)
}

// Package commands implements the docflow command line client.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Lllllllleong/documentrestoreflow/internal/config"
	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	serverURL string

	// cfg is loaded once before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "docflow",
	Short:         "Submit scanned documents for restoration and track their batches",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if serverURL == "" {
			serverURL = cfg.Ingestion.BaseURL
		}
		serverURL = strings.TrimRight(serverURL, "/")
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "ingestion service base URL (default ingestion.base_url)")
}

var httpClient = &http.Client{Timeout: 5 * time.Minute}

// decodeResponse decodes a JSON body into out, or turns an error body into an
// error.
func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e models.ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			if e.BatchID != "" {
				return fmt.Errorf("%s: %s (batch %s)", resp.Status, e.Error, e.BatchID)
			}
			return fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

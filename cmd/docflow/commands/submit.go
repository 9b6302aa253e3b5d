package commands

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/Lllllllleong/documentrestoreflow/internal/services"
	"github.com/spf13/cobra"
)

var (
	branchID   string
	uploaderID string
)

var submitCmd = &cobra.Command{
	Use:   "submit [file...]",
	Short: "Upload files as one batch",
	Long:  `Upload one or more images or PDFs to the ingestion service as a single batch and print the batch id.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, contentType, err := uploadBody(args)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, serverURL+"/upload", body)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		var out models.UploadResponse
		if err := decodeResponse(resp, &out); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func uploadBody(paths []string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if branchID != "" {
		_ = mw.WriteField("branch_id", branchID)
	}
	if uploaderID != "" {
		_ = mw.WriteField("uploader_id", uploaderID)
	}
	for _, p := range paths {
		if err := addFilePart(mw, p); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func addFilePart(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	name := filepath.Base(path)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, name))
	if ct := services.ResolveContentType("", name); ct != "" {
		h.Set("Content-Type", ct)
	}
	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

func init() {
	submitCmd.Flags().StringVar(&branchID, "branch", "", "branch id recorded with the batch")
	submitCmd.Flags().StringVar(&uploaderID, "uploader", "", "uploader id recorded with the batch")
	rootCmd.AddCommand(submitCmd)
}

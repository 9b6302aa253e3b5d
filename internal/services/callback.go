package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/Lllllllleong/documentrestoreflow/internal/retry"
)

// CallbackPath is the ingestion endpoint that receives batch results.
const CallbackPath = "/preprocess_callback"

// CallbackClient posts batch results back to the ingestion service.
type CallbackClient struct {
	url    string
	client *http.Client
	policy retry.Policy
}

// NewCallbackClient targets baseURL + /preprocess_callback. attempts below 1
// are treated as one attempt.
func NewCallbackClient(baseURL string, timeout time.Duration, attempts int) *CallbackClient {
	return &CallbackClient{
		url:    strings.TrimRight(baseURL, "/") + CallbackPath,
		client: &http.Client{Timeout: timeout},
		policy: retry.Policy{Attempts: attempts, Backoff: retry.Default.Backoff},
	}
}

// Send delivers one batch-completion callback. Server errors and transport
// failures are retried; a 4xx answer is not.
func (c *CallbackClient) Send(ctx context.Context, req models.PreprocessCallbackRequest) (models.PreprocessCallbackResponse, error) {
	logCtx := slog.With("batchId", req.BatchID, "callbackUrl", c.url)
	var out models.PreprocessCallbackResponse

	body, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("failed to marshal callback: %w", err)
	}

	err = retry.Do(ctx, logCtx, "preprocess callback", c.policy, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return &retry.Permanent{Err: fmt.Errorf("failed to build callback request: %w", err)}
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("callback request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := fmt.Errorf("callback returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return &retry.Permanent{Err: err}
			}
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return &retry.Permanent{Err: fmt.Errorf("failed to decode callback response: %w", err)}
		}
		return nil
	})
	if err != nil {
		return out, err
	}
	logCtx.Info("Callback delivered.", "updated", out.UpdatedRecords, "failed", out.FailedRecords, "unmatched", out.UnmatchedResults)
	return out, nil
}

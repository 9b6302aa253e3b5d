package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/googleapis/gax-go/v2"
)

type executionCreator interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
}

// WorkflowsDispatcher starts one Cloud Workflows execution per batch. The
// workflow posts the argument to /process_batch.
type WorkflowsDispatcher struct {
	client executionCreator
	parent string
}

func NewWorkflowsDispatcher(ctx context.Context, projectID, location, workflowID string) (*WorkflowsDispatcher, error) {
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	slog.Info("Workflows dispatcher initialized.", "workflowId", workflowID)
	return newWorkflowsDispatcher(client, projectID, location, workflowID), nil
}

func newWorkflowsDispatcher(client executionCreator, projectID, location, workflowID string) *WorkflowsDispatcher {
	return &WorkflowsDispatcher{
		client: client,
		parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID),
	}
}

// Submit returns the execution name as the job handle.
func (d *WorkflowsDispatcher) Submit(ctx context.Context, job models.BatchJob) (string, error) {
	payloadBytes, err := json.Marshal(job.Request())
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: d.parent,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := d.client.CreateExecution(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	slog.Info("Workflow execution started.", "batchId", job.BatchID, "execution", exec.GetName())
	return exec.GetName(), nil
}

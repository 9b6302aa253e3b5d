package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Document Classifier Prompts ---
const ClassifierSystemPrompt = "You are an identity document classifier for scanned Indian KYC documents. You look at one page image and decide which kind of document it shows. You must output your response as a single valid JSON object."
const ClassifierUserPrompt = `Classify the attached scanned page into exactly one of these labels:

- "aadhaar": Aadhaar card or letter issued by UIDAI.
- "pan": Permanent Account Number card issued by the Income Tax Department.
- "voter_id": Elector's Photo Identity Card issued by the Election Commission of India.
- "driving_license": Driving licence issued by a state transport authority.
- "photo": A photograph of a person, such as a selfie or passport photo, that is not an identity document.

Return a JSON object with exactly two keys:
- "label": one of the labels above.
- "confidence": a number between 0 and 1 expressing how sure you are.

Example output:
{"label": "pan", "confidence": 0.93}`

// VertexClient holds the pre-configured generative models for our app.
type VertexClient struct {
	ClassifierModel *genai.GenerativeModel
	baseClient      *genai.Client
}

// NewVertexClient creates a client with the classifier model configured once.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	classifierModel := baseClient.GenerativeModel(modelName)
	classifierModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ClassifierSystemPrompt)},
	}
	classifierModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		ClassifierModel: classifierModel,
		baseClient:      baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

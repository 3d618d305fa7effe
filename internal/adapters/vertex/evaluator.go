// Package vertex adapts a Gemini model on Vertex AI to the content evaluator port.
package vertex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"feedbackpay/internal/ports"
)

const evaluatorSystemPrompt = "You review feedback written about a submitted document and decide whether it deserves a reward. You always answer with a single JSON object that matches the response schema."

// Evaluator holds a model configured for structured approve/reject answers.
type Evaluator struct {
	model      *genai.GenerativeModel
	baseClient *genai.Client
}

var _ ports.Evaluator = (*Evaluator)(nil)

// New creates a Vertex AI backed evaluator.
func New(ctx context.Context, projectID, region, modelName string) (*Evaluator, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("vertex.New: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := baseClient.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(evaluatorSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
		ResponseSchema:   responseSchema(),
	}

	return &Evaluator{model: model, baseClient: baseClient}, nil
}

func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"approved": {
				Type:        genai.TypeBoolean,
				Description: "True if the feedback is relevant, at least 10 characters long and free of abusive content.",
			},
			"reason": {
				Type:        genai.TypeString,
				Description: "Short reason the feedback was not approved. Empty when approved is true.",
				Nullable:    true,
			},
		},
		Required: []string{"approved"},
	}
}

// Evaluate sends prompt to the model and decodes the structured answer.
func (e *Evaluator) Evaluate(ctx context.Context, prompt string) (ports.Evaluation, error) {
	resp, err := e.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return ports.Evaluation{}, fmt.Errorf("generate content: %w", err)
	}
	return parseEvaluation(responseText(resp))
}

func (e *Evaluator) Close() error {
	if e.baseClient != nil {
		return e.baseClient.Close()
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

// parseEvaluation decodes the model's JSON. A missing "approved" field is
// passed through as a nil Approved for the caller to judge.
func parseEvaluation(text string) (ports.Evaluation, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return ports.Evaluation{}, errors.New("empty evaluator response")
	}

	var out struct {
		Approved *bool   `json:"approved"`
		Reason   *string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return ports.Evaluation{}, fmt.Errorf("decode evaluator response: %w", err)
	}
	ev := ports.Evaluation{Approved: out.Approved}
	if out.Reason != nil {
		ev.Reason = strings.TrimSpace(*out.Reason)
	}
	return ev, nil
}

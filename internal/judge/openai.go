package judge

import (
	"context"

	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/pkg/openai"
)

// OpenAIJudge scores reviews with a GPT model.
type OpenAIJudge struct {
	name      string
	model     string
	maxTokens int
	client    openai.Client
}

// NewOpenAI creates a GPT judge. maxTokens defaults to 512.
func NewOpenAI(name, modelID string, client openai.Client, maxTokens int) *OpenAIJudge {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &OpenAIJudge{name: name, model: modelID, maxTokens: maxTokens, client: client}
}

func (j *OpenAIJudge) Name() string     { return j.name }
func (j *OpenAIJudge) Provider() string { return "openai" }

func (j *OpenAIJudge) Judge(ctx context.Context, req Request) (*model.ModelScore, error) {
	resp, err := j.client.Complete(ctx, openai.CompletionRequest{
		Model:        j.model,
		SystemPrompt: SystemPrompt,
		UserPrompt:   userPrompt(req),
		MaxTokens:    j.maxTokens,
		JSON:         true,
	})
	if err != nil {
		return nil, classify(err, openai.StatusCode(err))
	}
	resp.Usage.Log(j.model, req.Key.String())
	return ParseResponse(j.name, resp.Content)
}

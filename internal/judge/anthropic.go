package judge

import (
	"context"

	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/pkg/anthropic"
)

// AnthropicJudge scores reviews with a Claude model.
type AnthropicJudge struct {
	name      string
	model     string
	maxTokens int64
	client    anthropic.Client
}

// NewAnthropic creates a Claude judge. maxTokens defaults to 512.
func NewAnthropic(name, modelID string, client anthropic.Client, maxTokens int64) *AnthropicJudge {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &AnthropicJudge{name: name, model: modelID, maxTokens: maxTokens, client: client}
}

func (j *AnthropicJudge) Name() string     { return j.name }
func (j *AnthropicJudge) Provider() string { return "anthropic" }

func (j *AnthropicJudge) Judge(ctx context.Context, req Request) (*model.ModelScore, error) {
	temp := 0.0
	resp, err := j.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       j.model,
		MaxTokens:   j.maxTokens,
		System:      anthropic.CachedSystem(SystemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: userPrompt(req)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, classify(err, anthropic.StatusCode(err))
	}
	resp.Usage.LogCost(j.model, req.Key.String())
	return ParseResponse(j.name, resp.Text())
}

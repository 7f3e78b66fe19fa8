package judge

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/internal/resilience"
	"github.com/thomaspryor/broadwayscore/pkg/anthropic"
	"github.com/thomaspryor/broadwayscore/pkg/openai"
)

type mockAnthropic struct{ mock.Mock }

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*anthropic.MessageResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockOpenAI struct{ mock.Mock }

func (m *mockOpenAI) Complete(ctx context.Context, req openai.CompletionRequest) (*openai.CompletionResponse, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*openai.CompletionResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

var wicked = Request{
	Key:    model.ReviewKey{ShowID: "wicked", OutletID: "new-york-times", CriticID: "ben-brantley"},
	Outlet: "The New York Times",
	Critic: "Ben Brantley",
	Text:   "A spirited, overstuffed spectacle that mostly earns its sentiment.",
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		bucket     model.Bucket
		score      int
		confidence model.Confidence
	}{
		{"plain", `{"bucket":"positive","score":78,"confidence":"high","reasoning":"warm"}`, model.BucketPositive, 78, model.ConfidenceHigh},
		{"fenced", "```json\n{\"bucket\":\"rave\",\"score\":92}\n```", model.BucketRave, 92, model.ConfidenceMedium},
		{"prose around object", `Here you go: {"bucket":"Mixed","score":61.6,"confidence":"LOW"} thanks`, model.BucketMixed, 62, model.ConfidenceLow},
		{"score above bucket clamped", `{"bucket":"positive","score":90}`, model.BucketPositive, 84, model.ConfidenceMedium},
		{"score below bucket clamped", `{"bucket":"negative","score":20}`, model.BucketNegative, 35, model.ConfidenceMedium},
		{"unknown confidence", `{"bucket":"pan","score":10,"confidence":"certain"}`, model.BucketPan, 10, model.ConfidenceMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ms, err := ParseResponse("claude-sonnet", tt.raw)
			require.NoError(t, err)
			assert.Equal(t, "claude-sonnet", ms.Model)
			assert.Equal(t, tt.bucket, ms.Bucket)
			assert.Equal(t, tt.score, ms.Score)
			assert.Equal(t, tt.confidence, ms.Confidence)
			assert.True(t, ms.Valid())
		})
	}
}

func TestParseResponse_Malformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"I loved it",
		`{"bucket":"great","score":80}`,
		`{"bucket":"positive"}`,
		`{"bucket":"rave","score":140}`,
		`{"bucket":"rave","score":"high"}`,
	} {
		_, err := ParseResponse("gpt", raw)
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, ErrMalformed, raw)
		assert.False(t, resilience.IsTransient(err), raw)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	base := errors.New("api failure")
	assert.True(t, resilience.IsTransient(classify(base, http.StatusTooManyRequests)))
	assert.True(t, resilience.IsTransient(classify(base, 529)))
	assert.False(t, resilience.IsTransient(classify(base, http.StatusBadRequest)))
	assert.Same(t, base, classify(base, 0))
}

func TestAnthropicJudge(t *testing.T) {
	t.Parallel()

	client := new(mockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-sonnet-4-5-20250929" &&
			len(req.System) == 1 && req.System[0].CacheControl != nil &&
			len(req.Messages) == 1 && req.Messages[0].Role == "user"
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: `{"bucket":"positive","score":76,"confidence":"high"}`}},
	}, nil)

	j := NewAnthropic("claude-sonnet", "claude-sonnet-4-5-20250929", client, 0)
	assert.Equal(t, "anthropic", j.Provider())

	ms, err := j.Judge(context.Background(), wicked)
	require.NoError(t, err)
	assert.Equal(t, model.BucketPositive, ms.Bucket)
	assert.Equal(t, 76, ms.Score)
	client.AssertExpectations(t)
}

func TestOpenAIJudge(t *testing.T) {
	t.Parallel()

	client := new(mockOpenAI)
	client.On("Complete", mock.Anything, mock.MatchedBy(func(req openai.CompletionRequest) bool {
		return req.JSON && req.SystemPrompt == SystemPrompt
	})).Return(&openai.CompletionResponse{Content: `{"bucket":"mixed","score":58}`}, nil)

	ms, err := NewOpenAI("gpt", "gpt-4o", client, 0).Judge(context.Background(), wicked)
	require.NoError(t, err)
	assert.Equal(t, model.BucketMixed, ms.Bucket)
	assert.Equal(t, 58, ms.Score)
}

func TestOpenAIJudge_StatusMapping(t *testing.T) {
	t.Parallel()

	client := new(mockOpenAI)
	client.On("Complete", mock.Anything, mock.Anything).
		Return(nil, &goopenai.APIError{HTTPStatusCode: http.StatusServiceUnavailable, Message: "overloaded"}).Once()
	client.On("Complete", mock.Anything, mock.Anything).
		Return(nil, &goopenai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}).Once()

	j := NewOpenAI("gpt", "gpt-4o", client, 0)
	_, err := j.Judge(context.Background(), wicked)
	assert.True(t, resilience.IsTransient(err))

	_, err = j.Judge(context.Background(), wicked)
	var pe *resilience.PermanentError
	assert.ErrorAs(t, err, &pe)
}

func TestUserPrompt(t *testing.T) {
	t.Parallel()

	p := userPrompt(wicked)
	assert.Contains(t, p, "Outlet: The New York Times")
	assert.Contains(t, p, "Critic: Ben Brantley")
	assert.Contains(t, p, "overstuffed spectacle")

	bare := userPrompt(Request{Text: "  Fine.  "})
	assert.NotContains(t, bare, "Outlet:")
	assert.Contains(t, bare, "Review:\nFine.")
}

package judge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/internal/resilience"
)

type fakeJudge struct {
	name     string
	provider string
	calls    atomic.Int32
	fn       func(ctx context.Context, call int) (*model.ModelScore, error)
}

func (f *fakeJudge) Name() string     { return f.name }
func (f *fakeJudge) Provider() string { return f.provider }

func (f *fakeJudge) Judge(ctx context.Context, _ Request) (*model.ModelScore, error) {
	return f.fn(ctx, int(f.calls.Add(1)))
}

func scoreOf(b model.Bucket, s int) func(context.Context, int) (*model.ModelScore, error) {
	return func(context.Context, int) (*model.ModelScore, error) {
		return &model.ModelScore{Bucket: b, Score: s, Confidence: model.ConfidenceHigh}, nil
	}
}

func testPanel(judges ...Judge) *Panel {
	p := NewPanel(config.JudgesConfig{BreakerThreshold: 5, BreakerCooldownSecs: 60}, judges...)
	p.timeout = 50 * time.Millisecond
	p.policy = resilience.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2}
	return p
}

func TestPanel_AllSucceed(t *testing.T) {
	t.Parallel()

	p := testPanel(
		&fakeJudge{name: "claude-sonnet", provider: "anthropic", fn: scoreOf(model.BucketPositive, 78)},
		&fakeJudge{name: "claude-haiku", provider: "anthropic", fn: scoreOf(model.BucketPositive, 74)},
		&fakeJudge{name: "gpt", provider: "openai", fn: scoreOf(model.BucketRave, 86)},
	)
	assert.Equal(t, []string{"claude-sonnet", "claude-haiku", "gpt"}, p.Names())

	v, err := p.Score(context.Background(), wicked)
	require.NoError(t, err)
	require.Len(t, v.Scores, 3)
	assert.Empty(t, v.Failures)
	assert.Equal(t, "claude-sonnet", v.Scores[0].Model)
	assert.Equal(t, "gpt", v.Scores[2].Model)
	assert.Equal(t, 86, v.Scores[2].Score)
}

func TestPanel_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	flaky := &fakeJudge{name: "gpt", provider: "openai", fn: func(_ context.Context, call int) (*model.ModelScore, error) {
		if call < 3 {
			return nil, resilience.NewTransientError(errors.New("rate limited"), 429)
		}
		return &model.ModelScore{Bucket: model.BucketMixed, Score: 60}, nil
	}}
	p := testPanel(flaky)

	v, err := p.Score(context.Background(), wicked)
	require.NoError(t, err)
	assert.Empty(t, v.Failures)
	assert.Equal(t, 60, v.Scores[0].Score)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestPanel_FailedSlotsCarryErrors(t *testing.T) {
	t.Parallel()

	malformed := &fakeJudge{name: "claude-haiku", provider: "anthropic", fn: func(context.Context, int) (*model.ModelScore, error) {
		return ParseResponse("claude-haiku", "no json here")
	}}
	slow := &fakeJudge{name: "gpt", provider: "openai", fn: func(ctx context.Context, _ int) (*model.ModelScore, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	p := testPanel(
		&fakeJudge{name: "claude-sonnet", provider: "anthropic", fn: scoreOf(model.BucketPositive, 80)},
		malformed,
		slow,
	)

	v, err := p.Score(context.Background(), wicked)
	require.NoError(t, err)
	require.Len(t, v.Scores, 3)
	assert.True(t, v.Scores[0].Valid())

	assert.False(t, v.Scores[1].Valid())
	assert.Contains(t, v.Scores[1].Error, "malformed")
	assert.Equal(t, int32(1), malformed.calls.Load(), "malformed output is not retried")

	assert.False(t, v.Scores[2].Valid())
	assert.NotEmpty(t, v.Scores[2].Error)
	assert.Equal(t, int32(1), slow.calls.Load(), "a timed out call is a definitive failure")

	require.Len(t, v.Failures, 2)
	assert.Equal(t, "claude-haiku", v.Failures[0].Judge)
	assert.Equal(t, "gpt", v.Failures[1].Judge)
}

func TestPanel_BreakerOpensAcrossReviews(t *testing.T) {
	t.Parallel()

	down := &fakeJudge{name: "gpt", provider: "openai", fn: func(context.Context, int) (*model.ModelScore, error) {
		return nil, resilience.NewTransientError(errors.New("503"), 503)
	}}
	p := NewPanel(config.JudgesConfig{BreakerThreshold: 2, BreakerCooldownSecs: 600}, down)
	p.policy = resilience.Policy{MaxAttempts: 1}

	for range 2 {
		_, err := p.Score(context.Background(), wicked)
		require.NoError(t, err)
	}
	assert.Equal(t, resilience.Open, p.BreakerStates()["gpt"])

	v, err := p.Score(context.Background(), wicked)
	require.NoError(t, err)
	assert.Contains(t, v.Scores[0].Error, "circuit breaker open")
	assert.Equal(t, int32(2), down.calls.Load())
}

func TestPanel_ParentCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := testPanel(&fakeJudge{name: "gpt", provider: "openai", fn: scoreOf(model.BucketRave, 90)})

	_, err := p.Score(ctx, wicked)
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Judges: config.JudgesConfig{Slots: []config.JudgeSlot{
		{Name: "claude-sonnet", Provider: "anthropic", Model: "claude-sonnet-4-5-20250929"},
		{Name: "gpt", Provider: "openai", Model: "gpt-4o"},
	}}}
	p, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"claude-sonnet", "gpt"}, p.Names())

	cfg.Judges.Slots = append(cfg.Judges.Slots, config.JudgeSlot{Name: "x", Provider: "cohere"})
	_, err = FromConfig(cfg)
	assert.Error(t, err)

	cfg.Judges.Slots = nil
	_, err = FromConfig(cfg)
	assert.Error(t, err)
}

func TestAdaptiveLimiter(t *testing.T) {
	t.Parallel()

	l := NewAdaptiveLimiter("openai", 4, 1)
	l.OnRateLimit()
	assert.InDelta(t, 2.0, float64(l.Limit()), 1e-9)
	l.OnRateLimit()
	l.OnRateLimit()
	assert.InDelta(t, 1.0, float64(l.Limit()), 1e-9)
	for range 20 {
		l.OnSuccess()
	}
	assert.InDelta(t, 8.0, float64(l.Limit()), 1e-9)

	unlimited := NewAdaptiveLimiter("anthropic", 0, 0)
	require.NoError(t, unlimited.Wait(context.Background()))
	unlimited.OnRateLimit()
	assert.True(t, unlimited.Limit() > 1e6)
}

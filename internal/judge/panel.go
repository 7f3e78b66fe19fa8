package judge

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/thomaspryor/broadwayscore/internal/barrier"
	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/internal/resilience"
	"github.com/thomaspryor/broadwayscore/pkg/anthropic"
	"github.com/thomaspryor/broadwayscore/pkg/openai"
)

// MaxJudges is the size of a full panel.
const MaxJudges = 3

// SlotFailure describes a judge that produced no usable score.
type SlotFailure struct {
	Judge    string
	Attempts int
	TimedOut bool
	Err      error
}

// Verdict is the panel's output for one review. Scores holds one entry per
// judge in panel order; failed slots carry only Model and Error.
type Verdict struct {
	Scores   []*model.ModelScore
	Failures []SlotFailure
}

// Panel runs every judge concurrently for each review.
type Panel struct {
	judges   []Judge
	limiters map[string]*AdaptiveLimiter
	breakers *resilience.Breakers
	policy   resilience.Policy
	timeout  time.Duration
}

// NewPanel creates a panel over judges using the retry, rate and breaker
// settings in cfg.
func NewPanel(cfg config.JudgesConfig, judges ...Judge) *Panel {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	limiters := make(map[string]*AdaptiveLimiter)
	for _, j := range judges {
		if _, ok := limiters[j.Provider()]; !ok {
			limiters[j.Provider()] = NewAdaptiveLimiter(j.Provider(), cfg.RatePerSecond, cfg.Burst)
		}
	}
	return &Panel{
		judges:   judges,
		limiters: limiters,
		breakers: resilience.NewBreakers(cfg),
		policy:   resilience.PolicyFrom(cfg),
		timeout:  timeout,
	}
}

// FromConfig builds the panel described by the judge slots in cfg.
func FromConfig(cfg *config.Config) (*Panel, error) {
	if len(cfg.Judges.Slots) == 0 || len(cfg.Judges.Slots) > MaxJudges {
		return nil, eris.Errorf("judge: panel needs 1 to %d slots, got %d", MaxJudges, len(cfg.Judges.Slots))
	}

	var (
		ac     anthropic.Client
		oc     openai.Client
		judges []Judge
	)
	for _, s := range cfg.Judges.Slots {
		switch s.Provider {
		case "anthropic":
			if ac == nil {
				ac = anthropic.NewClient(cfg.Anthropic.Key)
			}
			judges = append(judges, NewAnthropic(s.Name, s.Model, ac, cfg.Anthropic.MaxTokens))
		case "openai":
			if oc == nil {
				oc = openai.NewClient(cfg.OpenAI.Key, cfg.OpenAI.BaseURL)
			}
			judges = append(judges, NewOpenAI(s.Name, s.Model, oc, cfg.OpenAI.MaxTokens))
		default:
			return nil, eris.Errorf("judge: unknown provider %q for slot %s", s.Provider, s.Name)
		}
	}
	return NewPanel(cfg.Judges, judges...), nil
}

// Names lists the judges in panel order.
func (p *Panel) Names() []string {
	out := make([]string, len(p.judges))
	for i, j := range p.judges {
		out[i] = j.Name()
	}
	return out
}

// BreakerStates reports each judge's circuit breaker.
func (p *Panel) BreakerStates() map[string]resilience.State {
	return p.breakers.Snapshot()
}

// Score asks every judge about req and waits for all of them. The error is
// non-nil only when ctx ends; individual judge failures are reported in the
// verdict.
func (p *Panel) Score(ctx context.Context, req Request) (Verdict, error) {
	attempts := make([]atomic.Int32, len(p.judges))
	tasks := make([]barrier.Task[*model.ModelScore], len(p.judges))
	for i, j := range p.judges {
		tasks[i] = func(ctx context.Context) (*model.ModelScore, error) {
			return p.call(ctx, j, req, &attempts[i])
		}
	}

	res, err := barrier.Gather(ctx, barrier.Config{Need: 1, Timeout: p.slotBudget()}, tasks...)
	if err != nil {
		return Verdict{}, eris.Wrap(err, "judge: score")
	}

	v := Verdict{Scores: make([]*model.ModelScore, len(p.judges))}
	for i, o := range res.Outcomes {
		name := p.judges[i].Name()
		if o.OK() && o.Value != nil {
			o.Value.Model = name
			v.Scores[i] = o.Value
			continue
		}

		err := o.Err
		if err == nil {
			err = eris.Wrapf(ErrMalformed, "%s: empty judgment", name)
		}
		if o.TimedOut {
			err = eris.Wrapf(err, "%s: timed out after %s", name, o.Elapsed.Round(time.Millisecond))
		}
		v.Scores[i] = &model.ModelScore{Model: name, Error: err.Error()}
		v.Failures = append(v.Failures, SlotFailure{
			Judge:    name,
			Attempts: int(attempts[i].Load()),
			TimedOut: o.TimedOut,
			Err:      err,
		})
		zap.L().Warn("judge: slot failed",
			zap.String("review", req.Key.String()),
			zap.String("model", name),
			zap.Bool("timed_out", o.TimedOut),
			zap.Error(err),
		)
	}
	return v, nil
}

func (p *Panel) call(ctx context.Context, j Judge, req Request, attempts *atomic.Int32) (*model.ModelScore, error) {
	lim := p.limiters[j.Provider()]
	policy := p.policy
	policy.OnRetry = resilience.LogRetries(j.Name(), req.Key.String())

	return resilience.Retry(ctx, policy, func(ctx context.Context) (*model.ModelScore, error) {
		attempts.Add(1)
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "judge: rate limit wait")
		}
		return resilience.Call(ctx, p.breakers.Get(j.Name()), func(ctx context.Context) (*model.ModelScore, error) {
			cctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()

			ms, err := j.Judge(cctx, req)
			var te *resilience.TransientError
			switch {
			case err == nil:
				lim.OnSuccess()
			case errors.As(err, &te) && te.StatusCode == 429:
				lim.OnRateLimit()
			}
			return ms, err
		})
	})
}

// slotBudget bounds a whole slot, retries included, so one stuck judge cannot
// hold the review.
func (p *Panel) slotBudget() time.Duration {
	n := time.Duration(p.policy.MaxAttempts)
	return n*p.timeout + (n-1)*p.policy.MaxBackoff
}

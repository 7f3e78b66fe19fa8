// Package judge asks language models to place a review's text in a bucket
// and assign a score within it. A Panel runs up to three judges concurrently
// and returns one slot per judge, failed or not.
package judge

import (
	"context"

	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/internal/resilience"
)

// Request is the text handed to every judge for one review.
type Request struct {
	Key    model.ReviewKey
	Outlet string
	Critic string
	Text   string
}

// Judge scores one review's text.
type Judge interface {
	// Name identifies the judge in ensemble results and logs.
	Name() string
	// Provider is the API behind the judge, used to share rate limits.
	Provider() string
	Judge(ctx context.Context, req Request) (*model.ModelScore, error)
}

// classify turns an API failure into a retryable or permanent error using
// the HTTP status when one is known. Errors without a status pass through
// unchanged so network failures are classified by resilience.IsTransient.
func classify(err error, status int) error {
	switch {
	case status == 0:
		return err
	case resilience.IsTransientStatus(status):
		return resilience.NewTransientError(err, status)
	default:
		return resilience.NewPermanentError(err)
	}
}

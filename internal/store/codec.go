package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/thomaspryor/broadwayscore/internal/model"
)

// encodeReview serializes a review for the data column. Per-model judgments
// travel inside the ensemble result and are never stored elsewhere.
func encodeReview(r *model.Review) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal review %s", r.Key())
	}
	return data, nil
}

func decodeReview(data []byte) (*model.Review, error) {
	var r model.Review
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal review")
	}
	return &r, nil
}

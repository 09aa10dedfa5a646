package orchestrator

import (
	"context"
	"errors"

	"github.com/kabrony/VOTSai/internal/backend"
)

// invokeWithRetry calls the backend, retrying exactly once when the
// failure was a timeout. Confirmed backend faults are surfaced
// immediately: retrying them is wasted work. Returns the number of
// attempts made alongside the result.
func invokeWithRetry(ctx context.Context, b backend.Backend, req backend.AnswerRequest) (*backend.AnswerResult, int, error) {
	attempts := 0
	for {
		attempts++
		res, err := b.Answer(ctx, req)
		if err == nil {
			return res, attempts, nil
		}
		if !errors.Is(err, backend.ErrTimeout) || attempts >= 2 {
			return nil, attempts, err
		}
	}
}

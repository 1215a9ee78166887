package input

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSources is returned by First when called without waits.
var ErrNoSources = errors.New("input: no event sources")

type result struct {
	index int
	err   error
}

// First runs every wait concurrently and returns the index of the one that
// completes without error. The losers are cancelled and First waits for
// them to return, so each wait must honour ctx. When several waits succeed
// in the same race the lowest index wins.
//
// If ctx ends first, First returns -1 and ctx.Err(). If every wait fails,
// the first non-cancellation error is returned.
func First(ctx context.Context, waits ...func(context.Context) error) (int, error) {
	if len(waits) == 0 {
		return -1, ErrNoSources
	}
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result, len(waits))
	for i, wait := range waits {
		go func() {
			results <- result{index: i, err: wait(raceCtx)}
		}()
	}

	winner := -1
	var firstErr error
	for range waits {
		r := <-results
		cancel()
		switch {
		case r.err == nil:
			if winner < 0 || r.index < winner {
				winner = r.index
			}
		case firstErr == nil && !errors.Is(r.err, context.Canceled):
			firstErr = fmt.Errorf("source %d: %w", r.index, r.err)
		}
	}

	switch {
	case winner >= 0:
		return winner, nil
	case ctx.Err() != nil:
		return -1, ctx.Err()
	case firstErr != nil:
		return -1, firstErr
	default:
		return -1, context.Canceled
	}
}

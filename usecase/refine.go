// usecase/refine.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/vitovidale/clip-processor-service/domain"
)

const DefaultRefineTimeout = 2 * time.Minute

type RefinementOutcome string

const (
	RefinementRefined  RefinementOutcome = "refined"
	RefinementSkipped  RefinementOutcome = "skipped"
	RefinementTimedOut RefinementOutcome = "timed_out"
	RefinementFailed   RefinementOutcome = "failed"
)

type RefinementAttempt struct {
	Outcome RefinementOutcome
	Result  *domain.RefinementResult
	Err     error
}

// refineWithin calls the refiner under a deadline. It never blocks past the
// deadline even if the refiner ignores cancellation.
func (p *Pipeline) refineWithin(ctx context.Context, t *domain.Transcription) RefinementAttempt {
	if p.Refiner == nil {
		return RefinementAttempt{Outcome: RefinementSkipped}
	}
	if len(t.Segments) == 0 && t.FullText == "" {
		return RefinementAttempt{Outcome: RefinementSkipped}
	}
	timeout := p.RefineTimeout
	if timeout <= 0 {
		timeout = DefaultRefineTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan RefinementAttempt, 1)
	go func() {
		res, err := p.Refiner.Refine(rctx, t)
		switch {
		case err != nil:
			done <- RefinementAttempt{Outcome: RefinementFailed, Err: err}
		case res == nil || (res.FullText == "" && len(res.Segments) == 0):
			done <- RefinementAttempt{Outcome: RefinementFailed, Err: errors.New("refiner returned an empty transcript")}
		default:
			done <- RefinementAttempt{Outcome: RefinementRefined, Result: res}
		}
	}()

	select {
	case a := <-done:
		if a.Outcome == RefinementFailed && errors.Is(rctx.Err(), context.DeadlineExceeded) {
			a.Outcome = RefinementTimedOut
		}
		return a
	case <-rctx.Done():
		if errors.Is(rctx.Err(), context.DeadlineExceeded) {
			return RefinementAttempt{Outcome: RefinementTimedOut, Err: rctx.Err()}
		}
		return RefinementAttempt{Outcome: RefinementSkipped, Err: rctx.Err()}
	}
}

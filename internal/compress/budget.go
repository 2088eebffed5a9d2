package compress

import (
	"context"

	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

// converge drives compression toward a token budget. The first pass keeps
// every message inside the recency window (window = full transcript), so a
// transcript already under budget comes back unchanged. Otherwise the
// window shrinks by binary search to the largest value that still fits,
// never below the configured minimum. When even the minimum window misses
// the budget the floor result is returned with Fits=false and the real
// count, so callers see exactly how far off they are.
func converge(ctx context.Context, messages []transcript.Message, set settings) *Result {
	n := len(messages)

	unrestricted := runWindow(ctx, messages, set, n)
	if count := resultTokens(unrestricted); count <= set.tokenBudget {
		return withFit(unrestricted, true, count)
	}

	lo, hi := set.minRecency, n-1
	var best *Result
	bestCount := 0
	for lo <= hi {
		mid := lo + (hi-lo)/2
		probe := runWindow(ctx, messages, set, mid)
		if count := resultTokens(probe); count <= set.tokenBudget {
			best, bestCount = probe, count
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best != nil {
		return withFit(best, true, bestCount)
	}

	floor := runWindow(ctx, messages, set, set.minRecency)
	count := resultTokens(floor)
	return withFit(floor, count <= set.tokenBudget, count)
}

func resultTokens(r *Result) int {
	return transcript.EstimateTotalTokens(r.Messages)
}

func withFit(r *Result, fits bool, count int) *Result {
	r.Fits = &fits
	r.TokenCount = &count
	return r
}

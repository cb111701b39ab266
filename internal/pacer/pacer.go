// Package pacer provides fixed-delay pacing between outbound requests.
package pacer

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer blocks until the next request is allowed to go out.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Fixed returns a Pacer that enforces one full delay per Wait call.
// A non-positive delay returns a no-op pacer.
func Fixed(delay time.Duration) Pacer {
	if delay <= 0 {
		return Nop()
	}
	lim := rate.NewLimiter(rate.Every(delay), 1)
	// Consume the initial token so the very first Wait already blocks;
	// callers Wait after each request, including the first.
	lim.Allow()
	return &fixed{lim: lim}
}

type fixed struct{ lim *rate.Limiter }

func (p *fixed) Wait(ctx context.Context) error { return p.lim.Wait(ctx) }

// Nop returns a Pacer that never blocks. Used in tests.
func Nop() Pacer { return nop{} }

type nop struct{}

func (nop) Wait(context.Context) error { return nil }

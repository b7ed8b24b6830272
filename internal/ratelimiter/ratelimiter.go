// Package ratelimiter paces FTP control-channel commands using a token
// bucket. A number of production FTP servers throttle or outright drop
// clients that burst commands (directory scans issue one LIST per directory,
// mirror runs issue hundreds), so the session layer asks the limiter for a
// token before every command.
package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// CommandPacer limits the sustained rate of FTP commands on one session.
//
// This wraps golang.org/x/time/rate to provide:
//   - Token bucket pacing (bursts allowed up to the bucket size)
//   - Context-aware waiting (respects cancellation and deadlines)
//   - Thread-safe operation
//
// Tokens are added at a constant rate (commands per second); each command
// consumes one. An empty bucket makes the next command wait, which is the
// behavior the session layer wants — FTP commands are sequenced anyway, so
// rejecting makes no sense there.
//
// Thread safety:
// All methods are safe for concurrent use.
type CommandPacer struct {
	limiter *rate.Limiter
}

// New creates a CommandPacer with the given sustained rate and burst size.
//
// Parameters:
//   - commandsPerSecond: maximum sustained command rate
//   - burst: bucket capacity (commands that may run back-to-back)
//
// Special cases:
//   - commandsPerSecond = 0: no pacing (unlimited)
//   - burst = 0: no burst allowed (only the sustained rate)
func New(commandsPerSecond, burst uint) *CommandPacer {
	if commandsPerSecond == 0 {
		// Unlimited rate: use a very high limit
		// rate.Inf would be ideal but has edge cases, so use a large value
		commandsPerSecond = 1_000_000_000
		burst = commandsPerSecond
	}

	return &CommandPacer{
		limiter: rate.NewLimiter(rate.Limit(commandsPerSecond), int(burst)),
	}
}

// Wait blocks until a token is available or the context is cancelled.
//
// This is what the session layer calls before each command. Returns nil once
// a token was acquired, or the context error if cancelled first.
func (p *CommandPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Allow reports whether a command may run right now, consuming a token if so.
//
// Used by KeepAlive, which should be skipped rather than queued when the
// session is already busy enough to exhaust the bucket.
func (p *CommandPacer) Allow() bool {
	return p.limiter.Allow()
}

// AllowN consumes n tokens if all are available, for batched sequences such
// as RNFR/RNTO pairs that must not be split by a pacing pause.
func (p *CommandPacer) AllowN(n uint) bool {
	return p.limiter.AllowN(time.Now(), int(n))
}

// SetLimit updates the sustained rate without recreating the pacer.
//
// The burst is adjusted along with the rate when it was at the default
// ratio (2x the old rate) or at/below the old rate, so the bucket can still
// hold tokens accumulated at the new rate.
func (p *CommandPacer) SetLimit(commandsPerSecond uint) {
	if commandsPerSecond == 0 {
		commandsPerSecond = 1_000_000_000
	}

	oldRate := uint(p.limiter.Limit())
	oldBurst := uint(p.limiter.Burst())
	p.limiter.SetLimit(rate.Limit(commandsPerSecond))

	if oldBurst == oldRate*2 || oldBurst <= oldRate {
		p.limiter.SetBurst(int(commandsPerSecond * 2))
	}
}

// Tokens returns the current number of available tokens, for monitoring.
func (p *CommandPacer) Tokens() float64 {
	return p.limiter.Tokens()
}

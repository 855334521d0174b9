// Package bot implements the chat channels announcements are delivered to,
// along with the liveness probe each of them answers.
package bot

import (
	"context"
	"strings"
	"time"
)

// Probe answers a fixed phrase so operators can check the bot is alive.
type Probe struct {
	Phrase string
	Reply  string
	Delay  time.Duration
}

// DefaultProbe returns the stock phrase and reply.
func DefaultProbe() Probe {
	return Probe{Phrase: "bot u with us", Reply: "yep", Delay: 945 * time.Millisecond}
}

// Enabled reports whether the probe has a phrase and a reply.
func (p Probe) Enabled() bool {
	return strings.TrimSpace(p.Phrase) != "" && p.Reply != ""
}

// Matches reports whether text is the probe phrase, ignoring case.
func (p Probe) Matches(text string) bool {
	return p.Enabled() && strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(p.Phrase))
}

// wait sleeps for the probe delay or until ctx ends.
func (p Probe) wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

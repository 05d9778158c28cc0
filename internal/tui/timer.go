package tui

import (
	"fmt"
	"time"
)

// Timer is the exam countdown. A new timer is running unless it starts at
// zero.
type Timer struct {
	remaining time.Duration
	running   bool
}

// NewTimer starts a countdown of d.
func NewTimer(d time.Duration) Timer {
	return Timer{remaining: d, running: d > 0}
}

// Tick advances a running timer by elapsed. It stops at zero.
func (t *Timer) Tick(elapsed time.Duration) {
	if !t.running {
		return
	}
	t.remaining -= elapsed
	if t.remaining <= 0 {
		t.remaining = 0
		t.running = false
	}
}

// Toggle pauses or resumes. An expired timer stays stopped.
func (t *Timer) Toggle() {
	if t.remaining > 0 {
		t.running = !t.running
	}
}

func (t Timer) Remaining() time.Duration { return t.remaining }
func (t Timer) Running() bool            { return t.running }
func (t Timer) Expired() bool            { return t.remaining <= 0 }

// Clock formats the remaining time as HH:MM:SS.
func (t Timer) Clock() string {
	s := int(t.remaining.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s%3600/60, s%60)
}

// Render colours the clock by urgency: red under 30 minutes, yellow under
// an hour.
func (t Timer) Render(st Styles) string {
	clock := t.Clock()
	switch {
	case t.Expired():
		return st.Bad.Bold(true).Render("TIME'S UP!")
	case !t.running:
		return st.Dim.Render(clock + " (paused)")
	case t.remaining < 30*time.Minute:
		return st.Bad.Bold(true).Render(clock)
	case t.remaining < time.Hour:
		return st.Warn.Render(clock)
	default:
		return st.Good.Render(clock)
	}
}

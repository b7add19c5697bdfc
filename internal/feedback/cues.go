package feedback

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

const title = "relaymic"

// Cues plays short tones and desktop notifications for host transitions.
// Failures are logged and otherwise ignored.
type Cues struct {
	Sounds        bool
	Notifications bool

	beep   func(freq float64, ms int) error
	notify func(title, message string) error
}

func NewCues(sounds, notifications bool) *Cues {
	return &Cues{
		Sounds:        sounds,
		Notifications: notifications,
		beep:          func(freq float64, ms int) error { return beeep.Beep(freq, ms) },
		notify:        func(t, m string) error { return beeep.Notify(t, m, "") },
	}
}

func (c *Cues) RecordingStarted() {
	c.tone(880, 120)
	c.note("Listening")
}

func (c *Cues) RecordingStopped() {
	c.tone(660, 120)
}

func (c *Cues) TranscriptReady() {
	c.note("Transcript ready")
}

func (c *Cues) Failed(message string) {
	c.tone(220, 300)
	c.note(message)
}

func (c *Cues) tone(freq float64, ms int) {
	if c == nil || !c.Sounds {
		return
	}
	if err := c.beep(freq, ms); err != nil {
		slog.Debug("audio cue failed", "error", err)
	}
}

func (c *Cues) note(message string) {
	if c == nil || !c.Notifications || message == "" {
		return
	}
	if err := c.notify(title, message); err != nil {
		slog.Debug("notification failed", "error", err)
	}
}

package domain

import "time"

// Interop constants shared by host and requester.
const (
	PollInterval       = 500 * time.Millisecond
	MeterInterval      = 200 * time.Millisecond
	SilenceThresholdDB = -40.0
	SilenceDuration    = 3000 * time.Millisecond
	MaxCaptureDuration = 300000 * time.Millisecond
	StaleAfter         = 60000 * time.Millisecond
	HeartbeatInterval  = 30000 * time.Millisecond
	ErrorGrace         = 2 * time.Second

	StopSentinel = "stop"
)

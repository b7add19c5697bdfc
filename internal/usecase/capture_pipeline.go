package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"relaymic/internal/domain"
	"relaymic/internal/ports"
	"relaymic/internal/sched"
)

// CaptureConfig tunes auto-stop. Zero values take the interop defaults.
type CaptureConfig struct {
	Audio              ports.AudioConfig
	MeterInterval      time.Duration
	SilenceThresholdDB float64
	SilenceDuration    time.Duration
	MaxDuration        time.Duration
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.MeterInterval <= 0 {
		c.MeterInterval = domain.MeterInterval
	}
	if c.SilenceThresholdDB == 0 {
		c.SilenceThresholdDB = domain.SilenceThresholdDB
	}
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = domain.SilenceDuration
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = domain.MaxCaptureDuration
	}
	return c
}

// CapturePipeline owns one microphone capture at a time and derives an
// auto-stop signal from its level and age.
type CapturePipeline struct {
	audio ports.AudioCapture
	clock sched.Clock
	cfg   CaptureConfig

	mu           sync.Mutex
	generation   uint64
	session      ports.AudioSession
	meter        sched.Timer
	maxTimer     sched.Timer
	silentSince  time.Time
	silent       bool
	onAutoStop   func(domain.StopReason)
	autoStopSent bool
}

func NewCapturePipeline(audio ports.AudioCapture, clock sched.Clock, cfg CaptureConfig) *CapturePipeline {
	return &CapturePipeline{audio: audio, clock: clock, cfg: cfg.withDefaults()}
}

// Start begins recording. onAutoStop is called at most once, from a timer
// goroutine, when silence or the duration cap ends the capture.
func (p *CapturePipeline) Start(ctx context.Context, onAutoStop func(domain.StopReason)) error {
	p.mu.Lock()
	if p.session != nil {
		p.mu.Unlock()
		return errors.New("capture already active")
	}
	p.mu.Unlock()

	session, err := p.audio.Start(ctx, p.cfg.Audio)
	if err != nil {
		if errors.Is(err, domain.ErrCaptureStart) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrCaptureStart, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	gen := p.generation
	p.session = session
	p.onAutoStop = onAutoStop
	p.autoStopSent = false
	p.silent = false
	p.meter = p.clock.Every(p.cfg.MeterInterval, func() { p.sample(gen) })
	p.maxTimer = p.clock.AfterFunc(p.cfg.MaxDuration, func() { p.fire(gen, domain.StopReasonMaxDuration) })
	p.sampleLocked(gen)
	return nil
}

// Active reports whether a capture is running.
func (p *CapturePipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session != nil
}

// Stop halts capture and returns the recording. With nothing recording it
// returns ok=false and no error.
func (p *CapturePipeline) Stop() (rec ports.Recording, ok bool, err error) {
	session := p.detach()
	if session == nil {
		return ports.Recording{}, false, nil
	}
	rec, err = session.Stop()
	if err != nil {
		if errors.Is(err, domain.ErrCaptureProduce) {
			return ports.Recording{}, true, err
		}
		return ports.Recording{}, true, fmt.Errorf("%w: %v", domain.ErrCaptureProduce, err)
	}
	return rec, true, nil
}

func (p *CapturePipeline) detach() ports.AudioSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	p.meter.Stop()
	p.maxTimer.Stop()
	session := p.session
	p.session = nil
	p.onAutoStop = nil
	p.generation++
	return session
}

func (p *CapturePipeline) sample(gen uint64) {
	reason, callback := func() (domain.StopReason, func(domain.StopReason)) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if !p.sampleLocked(gen) {
			return "", nil
		}
		return p.claimAutoStopLocked(gen, domain.StopReasonSilence)
	}()
	if callback != nil {
		callback(reason)
	}
}

// sampleLocked updates silence tracking and reports whether the silent period
// has reached the configured duration.
func (p *CapturePipeline) sampleLocked(gen uint64) bool {
	if gen != p.generation || p.session == nil {
		return false
	}
	level, ok := p.session.Level()
	if !ok {
		return false
	}
	now := p.clock.Now()
	if level >= p.cfg.SilenceThresholdDB {
		p.silent = false
		return false
	}
	if !p.silent {
		p.silent = true
		p.silentSince = now
	}
	return now.Sub(p.silentSince) >= p.cfg.SilenceDuration
}

func (p *CapturePipeline) fire(gen uint64, reason domain.StopReason) {
	p.mu.Lock()
	reason, callback := p.claimAutoStopLocked(gen, reason)
	p.mu.Unlock()
	if callback != nil {
		callback(reason)
	}
}

func (p *CapturePipeline) claimAutoStopLocked(gen uint64, reason domain.StopReason) (domain.StopReason, func(domain.StopReason)) {
	if gen != p.generation || p.session == nil || p.autoStopSent || p.onAutoStop == nil {
		return "", nil
	}
	p.autoStopSent = true
	p.meter.Stop()
	p.maxTimer.Stop()
	return reason, p.onAutoStop
}

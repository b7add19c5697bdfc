package usecase

import (
	"context"
	"sync"

	"relaymic/internal/domain"
)

type activeSession struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	phaseMu sync.Mutex
	phase   domain.Phase
}

func newActiveSession(parent context.Context, id string) *activeSession {
	ctx, cancel := context.WithCancel(parent)
	return &activeSession{id: id, ctx: ctx, cancel: cancel, phase: domain.PhaseRecording}
}

func (s *activeSession) setPhase(phase domain.Phase) {
	s.phaseMu.Lock()
	defer s.phaseMu.Unlock()
	s.phase = phase
}

func (s *activeSession) getPhase() domain.Phase {
	s.phaseMu.Lock()
	defer s.phaseMu.Unlock()
	return s.phase
}

// swapPhase moves from one phase to another and reports whether it did.
func (s *activeSession) swapPhase(from, to domain.Phase) bool {
	s.phaseMu.Lock()
	defer s.phaseMu.Unlock()
	if s.phase != from {
		return false
	}
	s.phase = to
	return true
}

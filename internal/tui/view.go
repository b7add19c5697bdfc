package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"relaymic/internal/domain"
)

// ProgramView forwards requester status into a running program in order.
// Render never blocks; statuses rendered before Attach are delivered once a
// program is attached.
type ProgramView struct {
	mu    sync.Mutex
	queue []domain.RequesterStatus
	wake  chan struct{}
}

func NewProgramView() *ProgramView {
	return &ProgramView{wake: make(chan struct{}, 1)}
}

// Attach starts delivering to p until ctx is done.
func (v *ProgramView) Attach(ctx context.Context, p *tea.Program) {
	go v.forward(ctx, p)
	v.signal()
}

func (v *ProgramView) Render(status domain.RequesterStatus) {
	v.mu.Lock()
	v.queue = append(v.queue, status)
	v.mu.Unlock()
	v.signal()
}

func (v *ProgramView) signal() {
	select {
	case v.wake <- struct{}{}:
	default:
	}
}

func (v *ProgramView) drain() []domain.RequesterStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.queue
	v.queue = nil
	return out
}

func (v *ProgramView) forward(ctx context.Context, p *tea.Program) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-v.wake:
		}
		for _, status := range v.drain() {
			p.Send(StatusMsg{Status: status})
		}
	}
}

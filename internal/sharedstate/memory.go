package sharedstate

import (
	"context"
	"encoding/json"
	"sync"

	"relaymic/internal/domain"
)

// Memory is an in-process StateStore. It keeps the same encoded form as
// SQLite so decode rules apply identically.
type Memory struct {
	mu         sync.Mutex
	values     map[string]string
	failWrites bool
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) LoadState(context.Context) (domain.DictationState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.values[KeyDictationState]
	if !ok {
		return domain.DictationState{}, false, nil
	}
	state, ok := decodeState(raw)
	return state, ok, nil
}

func (m *Memory) SaveState(_ context.Context, state domain.DictationState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return m.set(map[string]string{KeyDictationState: string(payload)})
}

func (m *Memory) LoadLiveness(context.Context) (domain.Liveness, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return decodeLiveness(m.values[KeySessionActive], m.values[KeySessionPing]), nil
}

func (m *Memory) SaveLiveness(_ context.Context, liveness domain.Liveness) error {
	active, ping := encodeLiveness(liveness)
	return m.set(map[string]string{KeySessionActive: active, KeySessionPing: ping})
}

// SetRaw stores an arbitrary value under key.
func (m *Memory) SetRaw(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// SetFailWrites makes every save fail until cleared.
func (m *Memory) SetFailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

func (m *Memory) set(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return domain.ErrStoreWrite
	}
	for key, value := range values {
		m.values[key] = value
	}
	return nil
}

package rules

import (
	"context"

	"relaymic/internal/ports"
)

// Enhancer runs the engine as an offline enhancement pass. Agent mode has no
// special meaning here; both modes get the same substitutions.
type Enhancer struct {
	engine *Engine
}

func NewEnhancer(engine *Engine) *Enhancer {
	return &Enhancer{engine: engine}
}

func (e *Enhancer) Name() string { return "rules" }

func (e *Enhancer) Enhance(_ context.Context, req ports.EnhanceRequest) (string, error) {
	return e.engine.Apply(req.Text)
}

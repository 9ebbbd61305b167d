package runtime

import (
	"fmt"
	"sync"
)

// StageHandler runs one pipeline stage against a claimed job.
type StageHandler interface {
	Stage() string
	Run(jc *Context) error
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]StageHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]StageHandler)}
}

func (r *Registry) Register(h StageHandler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	stage := h.Stage()
	if stage == "" {
		return fmt.Errorf("handler Stage() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[stage]; exists {
		return fmt.Errorf("handler already registered for stage=%s", stage)
	}
	r.handlers[stage] = h
	return nil
}

func (r *Registry) Get(stage string) (StageHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[stage]
	return h, ok
}

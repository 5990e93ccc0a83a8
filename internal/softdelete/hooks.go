package softdelete

import (
	"context"
	"sync"
)

// HookEvent identifies a point in a transition pipeline.
type HookEvent string

const (
	BeforeHide    HookEvent = "before_hide"
	AfterHide     HookEvent = "after_hide"
	BeforeRestore HookEvent = "before_restore"
	AfterRestore  HookEvent = "after_restore"
)

// Hook runs at a transition point. Returning an error aborts the transition.
type Hook[T any] func(ctx context.Context, record T) error

// HookRegistry stores transition hooks for an entity type.
// Hooks accumulate in registration order; nothing is ever replaced.
type HookRegistry[T any] struct {
	mu    sync.RWMutex
	hooks map[HookEvent][]Hook[T]
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{
		hooks: make(map[HookEvent][]Hook[T]),
	}
}

// On registers a hook for the specified event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[event] = append(r.hooks[event], hook)
}

// Len returns the number of hooks registered for event.
func (r *HookRegistry[T]) Len(event HookEvent) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[event])
}

// Run executes all hooks for the specified event, stopping at the first error.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, record T) error {
	r.mu.RLock()
	hooks := r.hooks[event]
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

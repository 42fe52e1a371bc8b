package broker

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps queue names to their handlers. It is built and validated
// at startup; a queue without a handler is a configuration error detected
// before consuming begins, not a per-message surprise.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

func (r *Registry) Register(queueName string, handler Handler) error {
	if queueName == "" {
		return fmt.Errorf("queue name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler for queue %s cannot be nil", queueName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[queueName]; exists {
		return fmt.Errorf("handler already registered for queue %s", queueName)
	}

	r.handlers[queueName] = handler
	return nil
}

func (r *Registry) Handler(queueName string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[queueName]
	return handler, ok
}

// Validate reports the queues that have no registered handler.
func (r *Registry) Validate(queueNames []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, name := range queueNames {
		if _, ok := r.handlers[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("no handler registered for queues: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Package lazy provides deferred, once-on-success initialization of a value.
package lazy

import "sync"

type InitializerFn[T any] func() (T, error)

// Lazy defers construction of a value of the underlying type to the first
// call of GetValue. A failed initializer is retried on the next call.
type Lazy[T any] struct {
	initialized bool
	initializer InitializerFn[T]
	value       T
	err         error
	mutex       sync.Mutex
}

func NewLazy[T any](initializer InitializerFn[T]) *Lazy[T] {
	return &Lazy[T]{
		initializer: initializer,
	}
}

// GetValue runs the initializer if it has not yet succeeded and returns the
// resulting value. Concurrent callers block until the in-flight
// initialization completes.
func (l *Lazy[T]) GetValue() (T, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if !l.initialized {
		value, err := l.initializer()
		if err == nil {
			l.value = value
			l.err = nil
			l.initialized = true
		} else {
			l.err = err
		}
	}

	return l.value, l.err
}

// SetValue short-circuits the initializer with an already constructed value.
func (l *Lazy[T]) SetValue(value T) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.value = value
	l.err = nil
	l.initialized = true
}

// Package stage times pipeline steps and reports them to an Observer.
package stage

import (
	"log"
	"time"
)

// Observer receives the duration and output size of every timed stage.
type Observer interface {
	ObserveStage(name string, d time.Duration, rows int)
}

// Run executes fn, logs how long it took and how many rows it produced, and
// forwards the measurement to obs when it is non-nil.
func Run[T any](obs Observer, name string, fn func() ([]T, error)) ([]T, error) {
	start := time.Now()
	out, err := fn()
	d := time.Since(start)
	if err != nil {
		log.Printf("stage %s failed after %s: %v", name, d, err)
		return nil, err
	}
	log.Printf("stage %s took %s records=%d", name, d, len(out))
	if obs != nil {
		obs.ObserveStage(name, d, len(out))
	}
	return out, nil
}

// Pure is Run for stages that cannot fail.
func Pure[T any](obs Observer, name string, fn func() []T) []T {
	out, _ := Run(obs, name, func() ([]T, error) { return fn(), nil })
	return out
}

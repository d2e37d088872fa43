package pipeline

import "context"

// gate is a counting semaphore bounding how many goroutines may hold a
// capacity slot at once. Each stage of paper processing (download,
// conversion, field extraction) is throttled by its own gate, so a slow
// stage never starves the others of workers.
type gate struct {
	slots chan struct{}
}

func newGate(capacity int) *gate {
	if capacity < 1 {
		capacity = 1
	}
	return &gate{slots: make(chan struct{}, capacity)}
}

// acquire blocks until a slot is free or the context is cancelled.
func (g *gate) acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release frees a slot previously obtained via acquire.
func (g *gate) release() {
	<-g.slots
}

// held reports how many slots are currently in use.
func (g *gate) held() int {
	return len(g.slots)
}

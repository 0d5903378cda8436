package market

import (
	"math/rand"
	"sync"
	"time"
)

// StepSource feeds randomness into the pricing model. Tests substitute
// deterministic sequences to pin down clamp and recovery behaviour.
type StepSource interface {
	Float64() float64
}

type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewStepSource returns a goroutine-safe source. A zero seed picks a
// time-based one.
func NewStepSource(seed int64) StepSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedSource{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedSource) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

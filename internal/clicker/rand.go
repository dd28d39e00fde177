package clicker

import (
	"math/rand"
	"time"
)

// Rand supplies the randomness for tap jitter and inter-click delays.
// Tests swap in a scripted source.
type Rand interface {
	// Intn returns a value in [0, n). n must be > 0.
	Intn(n int) int
	// Float64 returns a value in [0, 1).
	Float64() float64
}

type mathRand struct {
	r *rand.Rand
}

// NewRand returns a time-seeded source.
func NewRand() Rand {
	return &mathRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (m *mathRand) Intn(n int) int   { return m.r.Intn(n) }
func (m *mathRand) Float64() float64 { return m.r.Float64() }

package service

import (
	"hash/fnv"
	"math/rand"
	"sync"
	"time"
)

// tieBreakRange bounds the perturbation added to candidate scores so it only
// separates equally-scored faculty and never outweighs a real penalty.
const tieBreakRange = 1.0

// TieBreaker produces a small score perturbation for a (faculty, session)
// pair to avoid deterministic starvation among equally-scored candidates.
type TieBreaker interface {
	Jitter(facultyID, sessionKey string) float64
}

// NewTieBreaker returns the hash-based deterministic source when
// deterministic is true, otherwise a seeded random source.
func NewTieBreaker(deterministic bool) TieBreaker {
	if deterministic {
		return HashTieBreaker{}
	}
	return &randTieBreaker{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

type randTieBreaker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (t *randTieBreaker) Jitter(string, string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rng.Float64() * tieBreakRange
}

// HashTieBreaker derives the perturbation from the pair identity, so repeated
// runs over identical inputs rank candidates identically. Tests and preview
// comparisons rely on it.
type HashTieBreaker struct{}

// Jitter implements TieBreaker.
func (HashTieBreaker) Jitter(facultyID, sessionKey string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(facultyID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(sessionKey))
	return float64(h.Sum64()%10000) / 10000.0 * tieBreakRange
}

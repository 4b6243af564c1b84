package infra

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// CryptoRoller implements domain.Roller on crypto/rand. Runs using it are not reproducible.
type CryptoRoller struct{}

// NewCryptoRoller creates a roller backed by the system CSPRNG.
func NewCryptoRoller() domain.Roller {
	return &CryptoRoller{}
}

// Float64 returns a uniform value in [0,1) built from 53 random bits.
func (r *CryptoRoller) Float64() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}

// SeededRoller implements domain.Roller with a deterministic PRNG so a run can be replayed.
type SeededRoller struct {
	seed int64
	rng  *mrand.Rand
}

// NewSeededRoller creates a roller that yields the same sequence for the same seed.
func NewSeededRoller(seed int64) *SeededRoller {
	return &SeededRoller{seed: seed, rng: mrand.New(mrand.NewSource(seed))}
}

func (r *SeededRoller) Float64() float64 { return r.rng.Float64() }

// Seed returns the seed the roller was created with.
func (r *SeededRoller) Seed() int64 { return r.seed }

// RandomSeed draws a seed from crypto/rand for runs that did not ask for one.
func RandomSeed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1
	}
	return int64(binary.BigEndian.Uint64(b[:]) >> 1)
}

// FixedRoller replays a fixed list of rolls, repeating the last one. Used by scenario tests and plans.
type FixedRoller struct {
	rolls []float64
	next  int
}

// NewFixedRoller creates a roller returning rolls in order.
func NewFixedRoller(rolls ...float64) *FixedRoller {
	if len(rolls) == 0 {
		rolls = []float64{0}
	}
	return &FixedRoller{rolls: rolls}
}

func (r *FixedRoller) Float64() float64 {
	v := r.rolls[r.next]
	if r.next < len(r.rolls)-1 {
		r.next++
	}
	return v
}

// Ensure every roller implements domain.Roller.
var (
	_ domain.Roller = (*CryptoRoller)(nil)
	_ domain.Roller = (*SeededRoller)(nil)
	_ domain.Roller = (*FixedRoller)(nil)
)

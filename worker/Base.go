package worker

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"

	"github.com/offpolicy/harvest/environment"
)

// envSeedRange bounds the derived environment seed, mirroring the
// convention of drawing it from [0, 1000)
const envSeedRange = 1000

// Base holds the identity and collaborators every worker shares: its
// process-unique rank, device affinity, environment handle, and a
// logger pre-tagged with both.
//
// Seeding is fully determined by rank: the worker's own random seed is
// the rank itself, and a single draw from a rank-seeded source picks
// the environment seed. Repeated runs with the same rank assignment
// therefore reproduce the same interaction trajectory.
type Base struct {
	rank    int
	device  string
	env     environment.Environment
	envSeed uint64
	log     *logrus.Entry
}

// NewBase seeds the environment from the worker's rank and returns the
// shared worker state
func NewBase(rank int, device string, env environment.Environment,
	logger *logrus.Logger) (*Base, error) {
	if rank < 0 {
		return nil, fmt.Errorf("newbase: rank must be non-negative "+
			"\n\thave(%v)", rank)
	}
	if env == nil {
		return nil, fmt.Errorf("newbase: no environment given")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	rng := rand.New(rand.NewSource(uint64(rank)))
	envSeed := uint64(rng.Intn(envSeedRange))
	env.Seed(envSeed)

	return &Base{
		rank:    rank,
		device:  device,
		env:     env,
		envSeed: envSeed,
		log: logger.WithFields(logrus.Fields{
			"rank":   rank,
			"device": device,
		}),
	}, nil
}

// Rank returns the worker's process-unique rank
func (b *Base) Rank() int {
	return b.rank
}

// Device returns the worker's logical compute target
func (b *Base) Device() string {
	return b.device
}

// Env returns the worker's environment handle
func (b *Base) Env() environment.Environment {
	return b.env
}

// EnvSeed returns the environment seed derived from the worker's rank
func (b *Base) EnvSeed() uint64 {
	return b.envSeed
}

// Log returns the worker's logger, tagged with rank and device
func (b *Base) Log() *logrus.Entry {
	return b.log
}

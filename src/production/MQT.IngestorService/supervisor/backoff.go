package supervisor

import (
	"math/rand"
	"sync"
	"time"

	config "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Config"
)

const backoffMultiplier = 2

// Backoff yields reconnect delays. Each delay is the current step plus up to
// 25% jitter; exponential steps double from the floor up to the cap.
type Backoff struct {
	mu          sync.Mutex
	exponential bool
	floor       time.Duration
	ceiling     time.Duration
	current     time.Duration
	rnd         *rand.Rand
}

func NewBackoff(strategy string, floor, ceiling time.Duration) *Backoff {
	if floor <= 0 {
		floor = 5 * time.Second
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &Backoff{
		exponential: strategy != config.BackoffFixed,
		floor:       floor,
		ceiling:     ceiling,
		current:     floor,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay before the next attempt and advances the step
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current
	if quarter := int64(delay / 4); quarter > 0 {
		delay += time.Duration(b.rnd.Int63n(quarter + 1))
	}

	if b.exponential {
		next := b.current * backoffMultiplier
		if next > b.ceiling || next < b.current {
			next = b.ceiling
		}
		b.current = next
	}

	return delay
}

// Reset returns to the floor after a successful connect
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.current = b.floor
	b.mu.Unlock()
}

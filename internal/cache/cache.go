// Package cache holds small in-process caches and their expiry sweeper.
package cache

import (
	"sync"
	"time"

	"famledger/internal/log"
)

// Cache is a keyed store of values of one type.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	Len() int
}

// Sweeper is implemented by caches whose entries expire.
type Sweeper interface {
	SweepExpired() int
}

// Janitor periodically sweeps expired entries from registered caches.
type Janitor struct {
	logger *log.Logger

	mu      sync.Mutex
	caches  []Sweeper
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewJanitor(logger *log.Logger) *Janitor {
	if logger == nil {
		logger = log.Default()
	}
	return &Janitor{logger: logger.WithComponent(log.ComponentCache)}
}

func (j *Janitor) Register(c Sweeper) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.caches = append(j.caches, c)
}

// Sweep runs one pass over all caches and returns the number of evicted entries.
func (j *Janitor) Sweep() int {
	j.mu.Lock()
	caches := append([]Sweeper(nil), j.caches...)
	j.mu.Unlock()

	n := 0
	for _, c := range caches {
		n += c.SweepExpired()
	}
	if n > 0 {
		j.logger.Debug("Expired cache entries swept", log.FieldCount, n)
	}
	return n
}

// Start sweeps every interval until Stop. Calling Start twice is a no-op.
func (j *Janitor) Start(interval time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	go j.loop(interval, j.stopCh, j.doneCh)
}

func (j *Janitor) loop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			j.Sweep()
		case <-stop:
			return
		}
	}
}

func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	stop, done := j.stopCh, j.doneCh
	j.mu.Unlock()

	close(stop)
	<-done
}

// Package lease implements the single-holder advisory lease the fetch
// scheduler and renderer use to gate concurrent invocations for the same
// (job, frequency, shard) key (§9 "Advisory file-lock scheduler gating").
package lease

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lease is a non-blocking single-holder lock. Acquisition failure is not
// an error condition by contract: the caller simply returns immediately,
// leaving the tick to the process already holding it.
type Lease struct {
	fl *flock.Flock
}

// New returns a Lease keyed by name, backed by a lock file under dir.
func New(dir, name string) (*Lease, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lease dir: %w", err)
	}
	path := filepath.Join(dir, name+".lock")
	return &Lease{fl: flock.New(path)}, nil
}

// KeyFor builds the lease name for a (job, frequency, shard) tuple.
func KeyFor(job, frequency string, shard int) string {
	return fmt.Sprintf("%s.%s.shard%d", job, frequency, shard)
}

// TryAcquire attempts to take the lease without blocking. ok=false means
// another process currently holds it — not an error.
func (l *Lease) TryAcquire() (ok bool, err error) {
	return l.fl.TryLock()
}

// Release gives up the lease.
func (l *Lease) Release() error {
	return l.fl.Unlock()
}

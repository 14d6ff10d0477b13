// Package lock implements the advisory client locks shared with the OCS
// communication server. A lock is a row in the locks table; rows older than
// the lockValidity preference are stale and may be taken over.
package lock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"braintacle/database"

	"go.uber.org/zap"
)

// ErrLocked is returned when a client is locked by someone else.
var ErrLocked = errors.New("client is locked")

// Validity returns how long a lock stays valid.
type Validity func() (time.Duration, error)

// Locker acquires and releases client locks on behalf of one operation.
// Locks taken through the same Locker nest: every Lock needs a matching
// Unlock before the row is deleted. Concurrent operations must use separate
// Lockers, otherwise they would share each other's locks.
type Locker struct {
	db       database.DBTX
	validity Validity
	logger   *zap.Logger
	now      func() time.Time

	mu   sync.Mutex
	held map[int64]*heldLock
}

type heldLock struct {
	since time.Time
	count int
}

// Option configures a Locker.
type Option func(*Locker)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Locker) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Locker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewLocker(db database.DBTX, validity Validity, opts ...Option) *Locker {
	l := &Locker{
		db:       db,
		validity: validity,
		logger:   zap.NewNop(),
		now:      time.Now,
		held:     make(map[int64]*heldLock),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FixedValidity returns a Validity that always yields d.
func FixedValidity(d time.Duration) Validity {
	return func() (time.Duration, error) { return d, nil }
}

func (l *Locker) timestamp() time.Time {
	return l.now().UTC().Truncate(time.Second)
}

// Lock tries to lock a client. It reports false if a valid lock held by
// someone else exists.
func (l *Locker) Lock(clientID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.held[clientID]; ok {
		// still ours unless it expired and was taken over
		since, err := database.GetLockSince(l.db, clientID)
		if err != nil {
			return false, err
		}
		if since != nil && since.Equal(h.since) {
			h.count++
			return true, nil
		}
		delete(l.held, clientID)
	}

	now := l.timestamp()
	inserted, err := database.InsertLock(l.db, clientID, now)
	if err != nil {
		return false, err
	}
	if !inserted {
		since, err := database.GetLockSince(l.db, clientID)
		if err != nil {
			return false, err
		}
		if since == nil {
			// released between insert and read
			inserted, err = database.InsertLock(l.db, clientID, now)
			if err != nil || !inserted {
				return false, err
			}
		} else {
			validity, err := l.validity()
			if err != nil {
				return false, fmt.Errorf("failed to get lock validity: %w", err)
			}
			if now.Sub(*since) < validity || now.Equal(*since) {
				return false, nil
			}
			replaced, err := database.ReplaceStaleLock(l.db, clientID, *since, now)
			if err != nil || !replaced {
				return false, err
			}
			l.logger.Info("Took over stale lock",
				zap.Int64("client", clientID), zap.Time("since", *since))
		}
	}
	l.held[clientID] = &heldLock{since: now, count: 1}
	return true, nil
}

// MustLock is Lock returning ErrLocked instead of false.
func (l *Locker) MustLock(clientID int64) error {
	ok, err := l.Lock(clientID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("client %d: %w", clientID, ErrLocked)
	}
	return nil
}

// Unlock releases one level of a lock held by this Locker. Unlocking a
// client this Locker does not hold is a no-op.
func (l *Locker) Unlock(clientID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.held[clientID]
	if !ok {
		return nil
	}
	h.count--
	if h.count > 0 {
		return nil
	}
	delete(l.held, clientID)
	// another process may have taken over an expired lock; leave its row alone
	return database.DeleteLock(l.db, clientID, h.since)
}

// Forget drops the bookkeeping for a client without touching the database.
// It is used after the lock row was deleted together with the client.
func (l *Locker) Forget(clientID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, clientID)
}

// IsLocked reports whether a valid lock exists for the client, regardless
// of who holds it.
func (l *Locker) IsLocked(clientID int64) (bool, error) {
	since, err := database.GetLockSince(l.db, clientID)
	if err != nil || since == nil {
		return false, err
	}
	validity, err := l.validity()
	if err != nil {
		return false, fmt.Errorf("failed to get lock validity: %w", err)
	}
	return l.timestamp().Sub(*since) < validity, nil
}

// Held reports whether this Locker holds a lock on the client.
func (l *Locker) Held(clientID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[clientID]
	return ok
}

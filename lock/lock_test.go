package lock

import (
	"errors"
	"testing"
	"time"

	"braintacle/database"
	"braintacle/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestLockAndUnlock(t *testing.T) {
	db := testutil.OpenDB(t)
	l := NewLocker(db, FixedValidity(time.Minute))

	ok, err := l.Lock(1)
	require.NoError(t, err)
	assert.True(t, ok)

	locked, err := l.IsLocked(1)
	require.NoError(t, err)
	assert.True(t, locked)
	assert.True(t, l.Held(1))

	require.NoError(t, l.Unlock(1))
	locked, err = l.IsLocked(1)
	require.NoError(t, err)
	assert.False(t, locked)
	assert.False(t, l.Held(1))
}

func TestLockHeldByOther(t *testing.T) {
	db := testutil.OpenDB(t)
	c := &clock{t: testutil.Date(2024, 5, 1)}
	first := NewLocker(db, FixedValidity(time.Minute), WithClock(c.now))
	second := NewLocker(db, FixedValidity(time.Minute), WithClock(c.now))

	require.NoError(t, first.MustLock(7))

	ok, err := second.Lock(7)
	require.NoError(t, err)
	assert.False(t, ok)

	err = second.MustLock(7)
	assert.True(t, errors.Is(err, ErrLocked))

	// unlocking a lock we do not hold leaves it in place
	require.NoError(t, second.Unlock(7))
	locked, err := first.IsLocked(7)
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestLockNesting(t *testing.T) {
	db := testutil.OpenDB(t)
	l := NewLocker(db, FixedValidity(time.Minute))

	require.NoError(t, l.MustLock(3))
	require.NoError(t, l.MustLock(3))

	require.NoError(t, l.Unlock(3))
	locked, err := l.IsLocked(3)
	require.NoError(t, err)
	assert.True(t, locked, "lock must survive until the last unlock")

	require.NoError(t, l.Unlock(3))
	locked, err = l.IsLocked(3)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestStaleLockIsTakenOver(t *testing.T) {
	db := testutil.OpenDB(t)
	c := &clock{t: testutil.Date(2024, 5, 1)}
	stale := NewLocker(db, FixedValidity(time.Minute), WithClock(c.now))
	fresh := NewLocker(db, FixedValidity(time.Minute), WithClock(c.now))

	require.NoError(t, stale.MustLock(9))

	c.t = c.t.Add(30 * time.Second)
	ok, err := fresh.Lock(9)
	require.NoError(t, err)
	assert.False(t, ok)

	c.t = c.t.Add(31 * time.Second)
	ok, err = fresh.Lock(9)
	require.NoError(t, err)
	assert.True(t, ok)

	since, err := database.GetLockSince(db, 9)
	require.NoError(t, err)
	require.NotNil(t, since)
	assert.True(t, since.Equal(c.t))

	// the former holder must not release the new lock
	require.NoError(t, stale.Unlock(9))
	locked, err := fresh.IsLocked(9)
	require.NoError(t, err)
	assert.True(t, locked)

	// and relocking through the former holder does not nest into it
	ok, err = stale.Lock(9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidityError(t *testing.T) {
	db := testutil.OpenDB(t)
	broken := func() (time.Duration, error) { return 0, errors.New("boom") }
	first := NewLocker(db, FixedValidity(time.Minute))
	second := NewLocker(db, broken)

	require.NoError(t, first.MustLock(1))
	_, err := second.Lock(1)
	assert.Error(t, err)
}

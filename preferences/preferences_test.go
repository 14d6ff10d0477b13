package preferences

import (
	"errors"
	"testing"
	"time"

	"braintacle/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	store := NewStore(testutil.OpenDB(t))

	v, err := store.GetInt("lockValidity")
	require.NoError(t, err)
	assert.Equal(t, int64(600), v)

	b, err := store.GetBool("packageDeployment")
	require.NoError(t, err)
	assert.True(t, b)

	s, err := store.GetString("defaultPlatform")
	require.NoError(t, err)
	assert.Equal(t, "windows", s)
}

func TestSetAndGet(t *testing.T) {
	store := NewStore(testutil.OpenDB(t))

	require.NoError(t, store.Set("lockValidity", float64(120)))
	require.NoError(t, store.Set("scanSnmp", "true"))
	require.NoError(t, store.Set("packagePath", "/srv/download"))

	v, err := store.GetInt("lockValidity")
	require.NoError(t, err)
	assert.Equal(t, int64(120), v)

	b, err := store.GetBool("scanSnmp")
	require.NoError(t, err)
	assert.True(t, b)

	all, err := store.All()
	require.NoError(t, err)
	assert.Equal(t, "/srv/download", all["packagePath"])
	assert.Equal(t, int64(12), all["contactInterval"])
	assert.Len(t, all, len(Names()))
}

func TestSetRejectsInvalidValues(t *testing.T) {
	store := NewStore(testutil.OpenDB(t))

	err := store.Set("lockValidity", "ten")
	assert.True(t, errors.Is(err, ErrInvalidValue))

	err = store.Set("lockValidity", 1.5)
	assert.True(t, errors.Is(err, ErrInvalidValue))

	err = store.Set("scanSnmp", 2)
	assert.True(t, errors.Is(err, ErrInvalidValue))

	err = store.Set("packagePath", 42)
	assert.True(t, errors.Is(err, ErrInvalidValue))

	err = store.Set("noSuchOption", 1)
	assert.True(t, errors.Is(err, ErrUnknownOption))
}

func TestSetAllIsAllOrNothing(t *testing.T) {
	store := NewStore(testutil.OpenDB(t))

	err := store.SetAll(map[string]interface{}{
		"contactInterval": 24,
		"lockValidity":    "bad",
	})
	require.Error(t, err)

	v, err := store.GetInt("contactInterval")
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)
}

func TestLockValidity(t *testing.T) {
	store := NewStore(testutil.OpenDB(t))
	d, err := store.LockValidity()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, d)

	require.NoError(t, store.Set("lockValidity", 30))
	d, err = store.LockValidity()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}

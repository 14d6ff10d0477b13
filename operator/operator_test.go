package operator

import (
	"testing"

	"braintacle/database"
	"braintacle/model"
	"braintacle/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(testutil.OpenDB(t), nil, WithCost(bcrypt.MinCost))
}

func TestCreateAndAuthenticate(t *testing.T) {
	s := newService(t)
	o, err := s.Create(" admin ", "secret", model.Operator{FirstName: "Ada", ID: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "admin", o.ID)
	assert.NotEqual(t, "secret", o.PasswordHash)

	got, err := s.Authenticate("admin", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)

	_, err = s.Authenticate("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate("nobody", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateValidation(t *testing.T) {
	s := newService(t)
	_, err := s.Create("", "secret", model.Operator{})
	assert.ErrorIs(t, err, ErrInvalidLogin)
	_, err = s.Create("admin", "", model.Operator{})
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = s.Create("admin", "secret", model.Operator{})
	require.NoError(t, err)
	_, err = s.Create("admin", "other", model.Operator{})
	assert.ErrorIs(t, err, database.ErrDuplicateName)
}

func TestUpdateAndSetPassword(t *testing.T) {
	s := newService(t)
	_, err := s.Create("admin", "secret", model.Operator{})
	require.NoError(t, err)

	require.NoError(t, s.Update("admin", model.Operator{MailAddress: "admin@example.com"}))
	o, err := s.Get("admin")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", o.MailAddress)

	// updating attributes keeps the password
	_, err = s.Authenticate("admin", "secret")
	require.NoError(t, err)

	require.NoError(t, s.SetPassword("admin", "changed"))
	_, err = s.Authenticate("admin", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate("admin", "changed")
	assert.NoError(t, err)

	assert.ErrorIs(t, s.Update("nobody", model.Operator{}), database.ErrNotFound)
	assert.ErrorIs(t, s.SetPassword("nobody", "x"), database.ErrNotFound)
	assert.ErrorIs(t, s.SetPassword("admin", ""), ErrInvalidPassword)
}

func TestDelete(t *testing.T) {
	s := newService(t)
	_, err := s.Create("admin", "secret", model.Operator{})
	require.NoError(t, err)

	require.NoError(t, s.Delete("admin"))
	operators, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, operators)
	assert.ErrorIs(t, s.Delete("admin"), database.ErrNotFound)
}

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ycoin/marketsim/internal/config"
	"github.com/ycoin/marketsim/internal/engine"
)

func newTestService() *Service {
	return NewService(engine.New(config.Default(), nil), "test-secret")
}

func TestService_RegisterAndLogin(t *testing.T) {
	s := newTestService()

	user, err := s.Register("alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "password123", user.PasswordHash)

	// registration grants the starting wallet
	cash, coin, err := s.Core.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, cash)
	assert.Equal(t, 0.0, coin)

	token, err := s.Login("alice", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	username, err := s.UserFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestService_LoginWrongPassword(t *testing.T) {
	s := newTestService()
	_, err := s.Register("alice", "password123")
	require.NoError(t, err)

	_, err = s.Login("alice", "wrong")
	assert.Error(t, err)

	_, err = s.Login("nobody", "password123")
	assert.Error(t, err)
}

func TestService_RegisterValidation(t *testing.T) {
	s := newTestService()

	_, err := s.Register("", "password")
	assert.Error(t, err)

	_, err = s.Register("alice", "")
	assert.Error(t, err)

	long := make([]byte, 51)
	for i := range long {
		long[i] = 'a'
	}
	_, err = s.Register(string(long), "password")
	assert.Error(t, err)

	_, err = s.Register("alice", "password")
	require.NoError(t, err)
	_, err = s.Register("alice", "password")
	assert.Error(t, err, "duplicate username must be rejected")
}

func TestService_InvalidToken(t *testing.T) {
	s := newTestService()

	_, err := s.UserFromToken("not-a-token")
	assert.Error(t, err)

	// token signed with a different secret is rejected
	other := NewService(engine.New(config.Default(), nil), "other-secret")
	_, err = other.Register("alice", "password")
	require.NoError(t, err)
	token, err := other.Login("alice", "password")
	require.NoError(t, err)

	_, err = s.UserFromToken(token)
	assert.Error(t, err)
}

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xtplay/internal/xtream"
)

func TestNewNormalisesBaseURL(t *testing.T) {
	s, err := New("http://panel.example:8080/", "bob", "x")
	require.NoError(t, err)
	assert.Equal(t, "http://panel.example:8080", s.Credentials().BaseURL)
	assert.False(t, s.IsDemo())
	assert.False(t, s.Authenticated())
}

func TestNewValidation(t *testing.T) {
	_, err := New("panel.example", "bob", "x")
	assert.Error(t, err)
	_, err = New("http://panel.example", "", "x")
	assert.Error(t, err)

	demo, err := New("", "", "")
	require.NoError(t, err)
	assert.True(t, demo.IsDemo())
}

func TestReinitResetsStrategyCacheAndAuth(t *testing.T) {
	s, err := New("http://panel.example", "bob", "x")
	require.NoError(t, err)

	gen := s.Generation()
	require.True(t, s.MarkAuthenticated(gen, &xtream.UserInfo{Auth: 1}, &xtream.ServerInfo{Port: "8080"}))
	s.StrategyCache().Set("public:corsproxy.io")

	require.NoError(t, s.Reinit("http://other.example", "alice", "y"))
	assert.Empty(t, s.StrategyCache().Get())
	assert.False(t, s.Authenticated())
	assert.Nil(t, s.ServerInfo())
	assert.NotEqual(t, gen, s.Generation())
}

func TestMarkAuthenticatedIgnoresStaleGeneration(t *testing.T) {
	s, err := New("http://panel.example", "bob", "x")
	require.NoError(t, err)

	stale := s.Generation()
	require.NoError(t, s.Reinit("http://panel.example", "bob", "other"))

	assert.False(t, s.MarkAuthenticated(stale, &xtream.UserInfo{Auth: 1}, nil))
	assert.False(t, s.Authenticated())
}

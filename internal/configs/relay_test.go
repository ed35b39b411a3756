package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRelayDisabled(t *testing.T) {
	cfg, err := ResolveRelay(MapEnvironment{})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestResolveRelay(t *testing.T) {
	cfg, err := ResolveRelay(MapEnvironment{
		ENV_FLASHBOTS_RELAY_URL:  FLASHBOTS_RELAY_URL,
		ENV_FLASHBOTS_SIGNER_KEY: testKey,
	})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, FLASHBOTS_RELAY_URL, cfg.URL)

	key, err := cfg.AuthKey()
	require.NoError(t, err)
	assert.NotNil(t, key)
}

func TestResolveRelayEphemeralKey(t *testing.T) {
	cfg, err := ResolveRelay(MapEnvironment{ENV_FLASHBOTS_RELAY_URL: FLASHBOTS_RELAY_URL})
	require.NoError(t, err)

	a, err := cfg.AuthKey()
	require.NoError(t, err)
	b, err := cfg.AuthKey()
	require.NoError(t, err)
	assert.NotEqual(t, a.D, b.D)
}

func TestResolveRelayInvalid(t *testing.T) {
	_, err := ResolveRelay(MapEnvironment{ENV_FLASHBOTS_RELAY_URL: "relay.flashbots.net"})
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = ResolveRelay(MapEnvironment{
		ENV_FLASHBOTS_RELAY_URL:  FLASHBOTS_RELAY_URL,
		ENV_FLASHBOTS_SIGNER_KEY: "0xnothex",
	})
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.NotContains(t, err.Error(), "nothex")
}

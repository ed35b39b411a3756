package configs

import (
	"crypto/ecdsa"
	"net/url"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	ENV_FLASHBOTS_RELAY_URL  = "FLASHBOTS_RELAY_URL"
	ENV_FLASHBOTS_SIGNER_KEY = "FLASHBOTS_SIGNER_KEY"

	FLASHBOTS_RELAY_URL = "https://relay.flashbots.net"
)

// RelayConfig enables a Flashbots eth_callBundle preflight of the creation tx.
type RelayConfig struct {
	URL string
	// SignerKey only identifies requests to the relay; it holds no funds.
	SignerKey Secret
}

// ResolveRelay returns nil when FLASHBOTS_RELAY_URL is unset.
func ResolveRelay(env Environment) (*RelayConfig, error) {
	raw, ok := env.Lookup(ENV_FLASHBOTS_RELAY_URL)
	if !ok {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return nil, &ConfigError{Kind: InvalidValue, Missing: []string{ENV_FLASHBOTS_RELAY_URL}}
	}

	cfg := &RelayConfig{URL: raw}
	if key, ok := env.Lookup(ENV_FLASHBOTS_SIGNER_KEY); ok {
		if _, err := Secret(key).PrivateKey(); err != nil {
			return nil, invalid(ENV_FLASHBOTS_SIGNER_KEY, err)
		}
		cfg.SignerKey = Secret(key)
	}
	return cfg, nil
}

// AuthKey returns the relay signing key, generating a throwaway one when
// none is configured.
func (c *RelayConfig) AuthKey() (*ecdsa.PrivateKey, error) {
	if c.SignerKey.IsZero() {
		return crypto.GenerateKey()
	}
	return c.SignerKey.PrivateKey()
}

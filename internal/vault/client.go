// Package vault retrieves exchange credentials from HashiCorp Vault so
// they never need to live in config files on disk.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

// Config holds the Vault connection settings.
type Config struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	SecretPath string `json:"secret_path"` // KV v2 path holding the exchange keys
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// Credentials are the exchange API credentials.
type Credentials struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	Passphrase string `json:"passphrase"`
}

// Client wraps the Vault API client with a read-through cache.
type Client struct {
	client *api.Client
	cfg    Config

	mu     sync.RWMutex
	cached *Credentials
}

// NewClient creates a Vault client. With cfg.Enabled false the client only
// serves credentials seeded via Seed, which keeps dev setups working.
func NewClient(cfg Config) (*Client, error) {
	c := &Client{cfg: cfg}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("configure vault tls: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	c.client = client
	return c, nil
}

// Seed places credentials in the cache without touching Vault.
func (c *Client) Seed(creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = &creds
}

// GetCredentials returns the exchange credentials, reading Vault at most
// once per process.
func (c *Client) GetCredentials(ctx context.Context) (*Credentials, error) {
	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return c.cached, nil
	}
	c.mu.RUnlock()

	if !c.cfg.Enabled {
		return nil, fmt.Errorf("credentials not seeded and vault is disabled")
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.cfg.SecretPath)
	if err != nil {
		return nil, fmt.Errorf("read vault secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret at %s", c.cfg.SecretPath)
	}

	// KV v2 nests the payload under "data".
	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		data = nested
	}

	creds := &Credentials{
		APIKey:     stringField(data, "api_key"),
		SecretKey:  stringField(data, "secret_key"),
		Passphrase: stringField(data, "passphrase"),
	}
	if creds.APIKey == "" || creds.SecretKey == "" {
		return nil, fmt.Errorf("incomplete credentials at %s", c.cfg.SecretPath)
	}

	c.mu.Lock()
	c.cached = creds
	c.mu.Unlock()
	return creds, nil
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

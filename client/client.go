package client

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thysk/rucio/config"
	"github.com/Thysk/rucio/source"
)

// Client serves rucio.cfg values from a repository and keeps the
// snapshot fresh in the background.
type Client struct {
	Repository      source.Repository
	RefreshInterval time.Duration
	cancel          context.CancelFunc
}

// NewClient creates a new Client with the provided context, repository,
// and refresh interval. The repository is refreshed once before the
// Client is returned, so getters never observe an unloaded snapshot;
// if that first refresh fails the error is returned and no background
// routine is started. Afterwards a goroutine refreshes the
// configuration data periodically until Close is called or the context
// is canceled.
func NewClient(ctx context.Context, repository source.Repository, refreshInterval time.Duration) (*Client, error) {
	// Create a new context and its corresponding cancel function
	// for the Client. This allows us to control the lifetime of the
	// background refresh goroutine.
	ctx, cancel := context.WithCancel(ctx)

	client := &Client{
		Repository:      repository,
		RefreshInterval: refreshInterval,
		cancel:          cancel,
	}

	if err := client.Repository.Refresh(); err != nil {
		cancel()
		return nil, err
	}

	// Start the background refresh goroutine with the newly created
	// context and the client as arguments.
	go refresh(ctx, client)

	return client, nil
}

// refresh is a goroutine that periodically refreshes the configuration data
// from the repository based on the provided refresh interval. It stops
// refreshing when the given context is canceled.
func refresh(ctx context.Context, client *Client) {
	ticker := time.NewTicker(client.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// The ticker has ticked, indicating it's time to refresh the data.
			// The previous snapshot stays in place when the refresh fails.
			if err := client.Repository.Refresh(); err != nil {
				logrus.WithError(err).Error("error refreshing repository")
			}
		case <-ctx.Done():
			// The context is canceled, indicating the refresh routine should stop
			return
		}
	}
}

// Close stops the background refresh goroutine of the Client by canceling
// its associated context. It should be called when the Client is no
// longer needed to release resources properly.
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}

// snapshot returns the repository's current configuration. The snapshot
// is nil until the repository has refreshed successfully at least once.
func (c *Client) snapshot() (*config.Config, error) {
	cfg := c.Repository.Config()
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// GetString retrieves the value of section.key from the current
// configuration snapshot.
func (c *Client) GetString(section, key string) (string, error) {
	cfg, err := c.snapshot()
	if err != nil {
		return "", err
	}
	return cfg.String(section, key)
}

// GetInt retrieves section.key as an integer.
func (c *Client) GetInt(section, key string) (int, error) {
	cfg, err := c.snapshot()
	if err != nil {
		return 0, err
	}
	return cfg.Int(section, key)
}

// GetBool retrieves section.key as a boolean.
func (c *Client) GetBool(section, key string) (bool, error) {
	cfg, err := c.snapshot()
	if err != nil {
		return false, err
	}
	return cfg.Bool(section, key)
}

// GetFloat retrieves section.key as a float.
func (c *Client) GetFloat(section, key string) (float64, error) {
	cfg, err := c.snapshot()
	if err != nil {
		return 0, err
	}
	return cfg.Float64(section, key)
}

// GetDuration retrieves section.key as a duration. Bare integers count
// seconds, matching the timeout convention of rucio.cfg.
func (c *Client) GetDuration(section, key string) (time.Duration, error) {
	cfg, err := c.snapshot()
	if err != nil {
		return 0, err
	}
	return cfg.Duration(section, key)
}

// Settings validates the current snapshot and returns the typed client
// settings derived from it.
func (c *Client) Settings() (config.ClientSettings, error) {
	cfg, err := c.snapshot()
	if err != nil {
		return config.ClientSettings{}, err
	}
	return cfg.Settings()
}

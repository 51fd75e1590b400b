package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Thysk/rucio/config"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// WebRepository is a struct that implements the Repository interface for
// configuration data fetched from a remote HTTP endpoint, such as another
// deployment's configuration server.
type WebRepository struct {
	sync.RWMutex                // RWMutex to synchronize access to data during refresh
	Name         string         // Name of the configuration source
	URL          *url.URL       // URL of the remote rucio.cfg endpoint
	APIKey       string         // Optional API key for X-API-Key header authentication
	Retries      int            // Retry budget per fetch, request_retries default when zero
	cfg          *config.Config // Parsed snapshot of the configuration
	rawData      []byte         // Raw bytes of the configuration file
	client       *http.Client   // Retrying HTTP client instance
	clientOnce   sync.Once      // Ensures client is initialized only once
}

// GetName returns the name of the configuration source.
func (w *WebRepository) GetName() string {
	return w.Name
}

// GetData returns the effective value of section.key from the snapshot.
func (w *WebRepository) GetData(section, key string) (string, bool) {
	w.RLock()
	defer w.RUnlock()
	return lookup(w.cfg, section, key)
}

// GetRawData returns the raw bytes of the configuration file.
func (w *WebRepository) GetRawData() []byte {
	w.RLock()
	defer w.RUnlock()
	return w.rawData
}

// Config returns the parsed snapshot, nil before the first successful refresh.
func (w *WebRepository) Config() *config.Config {
	w.RLock()
	defer w.RUnlock()
	return w.cfg
}

// httpClient builds the retrying HTTP client on first use. Connection errors
// and 5xx responses are retried with backoff, the way the original client
// rides out proxies that briefly answer 502.
func (w *WebRepository) httpClient() *http.Client {
	w.clientOnce.Do(func() {
		retryClient := retryablehttp.NewClient()
		retryClient.RetryMax = config.DefaultRequestRetries
		if w.Retries > 0 {
			retryClient.RetryMax = w.Retries
		}
		retryClient.RetryWaitMin = 500 * time.Millisecond
		retryClient.RetryWaitMax = 10 * time.Second
		retryClient.Logger = nil
		w.client = retryClient.StandardClient()
	})
	return w.client
}

// Refresh fetches the rucio.cfg file from the remote HTTP endpoint and
// parses it into the snapshot.
func (w *WebRepository) Refresh() error {
	ctx := context.Background()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, w.URL.String(), nil)
	if err != nil {
		logrus.Debug("error creating request")
		return err
	}

	// Set X-API-Key header if API key is configured
	if w.APIKey != "" {
		request.Header.Set("X-API-Key", w.APIKey)
	}

	resp, err := w.httpClient().Do(request)
	if err != nil {
		logrus.Debug("error doing request")
		return err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			logrus.WithError(err).Debug("error closing response body")
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %s", w.URL, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		logrus.Debug("error reading file")
		return err
	}

	// Parse to a temp variable outside the lock to prevent data corruption on error
	tempCfg, err := config.Parse(data)
	if err != nil {
		logrus.Debug("error parsing file")
		return err
	}

	// Only lock for atomic data swap
	w.Lock()
	w.cfg = tempCfg
	w.rawData = data
	w.Unlock()

	return nil
}

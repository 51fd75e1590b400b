package source

import (
	"context"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/Thysk/rucio/config"
	"google.golang.org/api/option"
)

// GcpStorageRepository is a struct that implements the Repository interface
// for configuration data stored in a rucio.cfg file within a GCS bucket.
type GcpStorageRepository struct {
	sync.RWMutex                  // RWMutex to synchronize access to data during refresh
	Name          string          // Name of the configuration source
	BucketName    string          // Name of the GCS bucket
	ObjectName    string          // Name of the rucio.cfg file within the GCS bucket
	Anonymous     bool            // Skip authentication, for publicly readable buckets
	Client        *storage.Client // GCS client instance
	cfg           *config.Config  // Parsed snapshot of the configuration
	rawData       []byte          // Raw bytes of the configuration file
	clientOnce    sync.Once       // Ensures client is initialized only once
	clientInitErr error           // Stores error from client initialization
}

// Refresh reads the rucio.cfg file from the GCS bucket and parses it into
// the snapshot.
func (g *GcpStorageRepository) Refresh() error {
	ctx := context.Background()

	// Thread-safe client initialization using sync.Once (only if client not pre-configured)
	if g.Client == nil {
		g.clientOnce.Do(func() {
			var options []option.ClientOption
			if g.Anonymous {
				options = append(options, option.WithoutAuthentication())
			}
			g.Client, g.clientInitErr = storage.NewClient(ctx, options...)
		})
		if g.clientInitErr != nil {
			return g.clientInitErr
		}
	}

	// Network I/O outside lock for better performance
	bucket := g.Client.Bucket(g.BucketName)
	obj := bucket.Object(g.ObjectName)
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return err
	}
	defer reader.Close()

	// Read the file content from the reader.
	fileContent, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	// Parse to a temp variable outside the lock to prevent data corruption on error
	tempCfg, err := config.Parse(fileContent)
	if err != nil {
		return err
	}

	// Only lock for atomic data swap
	g.Lock()
	g.cfg = tempCfg
	g.rawData = fileContent
	g.Unlock()

	return nil
}

// GetName returns the name of the configuration source.
func (g *GcpStorageRepository) GetName() string {
	return g.Name
}

// GetData returns the effective value of section.key from the snapshot.
func (g *GcpStorageRepository) GetData(section, key string) (string, bool) {
	g.RLock()
	defer g.RUnlock()
	return lookup(g.cfg, section, key)
}

// GetRawData returns the raw bytes of the configuration file.
func (g *GcpStorageRepository) GetRawData() []byte {
	g.RLock()
	defer g.RUnlock()
	return g.rawData
}

// Config returns the parsed snapshot, nil before the first successful refresh.
func (g *GcpStorageRepository) Config() *config.Config {
	g.RLock()
	defer g.RUnlock()
	return g.cfg
}

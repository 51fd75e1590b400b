package source

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Thysk/rucio/config"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Write and create events within this window collapse into one refresh, so
// editors that save in several steps do not trigger a refresh per step.
const watchDebounce = 500 * time.Millisecond

// FileRepository is a struct that implements the Repository interface for
// configuration data stored in a rucio.cfg file on local disk.
type FileRepository struct {
	sync.RWMutex                // RWMutex to synchronize access to data during refresh
	Name         string         // Name of the configuration source
	Path         string         // File path of the rucio.cfg configuration file
	cfg          *config.Config // Parsed snapshot of the configuration
	rawData      []byte         // Raw bytes of the configuration file
}

// GetName returns the name of the configuration source.
func (f *FileRepository) GetName() string {
	return f.Name
}

// GetData returns the effective value of section.key from the snapshot.
func (f *FileRepository) GetData(section, key string) (string, bool) {
	f.RLock()
	defer f.RUnlock()
	return lookup(f.cfg, section, key)
}

// GetRawData returns the raw bytes of the configuration file.
func (f *FileRepository) GetRawData() []byte {
	f.RLock()
	defer f.RUnlock()
	return f.rawData
}

// Config returns the parsed snapshot, nil before the first successful refresh.
func (f *FileRepository) Config() *config.Config {
	f.RLock()
	defer f.RUnlock()
	return f.cfg
}

// Refresh reads the rucio.cfg file and parses it into the snapshot.
func (f *FileRepository) Refresh() error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		logrus.Debug("error reading file")
		return err
	}

	// Parse outside the lock so a malformed file cannot clobber the snapshot
	tempCfg, err := config.Parse(data)
	if err != nil {
		logrus.Debug("error parsing file")
		return err
	}

	// Only lock for atomic data swap
	f.Lock()
	f.cfg = tempCfg
	f.rawData = data
	f.Unlock()

	return nil
}

// Watch refreshes the repository whenever the file changes on disk, and
// blocks until ctx is canceled. Failed refreshes are logged and the previous
// snapshot stays in place, so a half-saved edit does not take anything down.
func (f *FileRepository) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(f.Path); err != nil {
		return fmt.Errorf("watch %s: %w", f.Path, err)
	}
	logrus.WithField("path", f.Path).Debug("watching configuration file")

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Write and Create cover vim, nano and plain writes
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(watchDebounce, func() {
					if err := f.Refresh(); err != nil {
						logrus.WithError(err).Error("error refreshing repository")
					}
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logrus.WithError(err).Error("configuration watcher error")
		}
	}
}

// lookup resolves section.key against a snapshot, shared by every repository.
func lookup(cfg *config.Config, section, key string) (string, bool) {
	if cfg == nil {
		return "", false
	}
	value, err := cfg.String(section, key)
	if err != nil {
		return "", false
	}
	return value, true
}

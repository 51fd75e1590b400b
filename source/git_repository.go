package source

import (
	"context"
	"io"
	"net/url"
	"sync"

	"github.com/Thysk/rucio/config"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/sirupsen/logrus"
)

// GitRepository is a struct that implements the Repository interface for
// configuration data stored in a rucio.cfg file within a git repository.
// The repository is cloned into memory on the first refresh and pulled on
// every refresh after that.
type GitRepository struct {
	sync.RWMutex                   // RWMutex to synchronize access to data during refresh
	Name          string           // Name of the configuration source
	URL           *url.URL         // URL of the git repository
	Path          string           // Path to the rucio.cfg file within the repository
	Branch        string           // Branch to check out, the remote HEAD when empty
	Auth          *http.BasicAuth  // BasicAuth to use when cloning the repository
	gitRepository *git.Repository  // Go-Git repository instance for the in-memory clone
	fs            billy.Filesystem // Filesystem holding the in-memory clone
	cfg           *config.Config   // Parsed snapshot of the configuration
	rawData       []byte           // Raw bytes of the configuration file
}

// GetName returns the name of the configuration source.
func (g *GitRepository) GetName() string {
	return g.Name
}

// GetData returns the effective value of section.key from the snapshot.
func (g *GitRepository) GetData(section, key string) (string, bool) {
	g.RLock()
	defer g.RUnlock()
	return lookup(g.cfg, section, key)
}

// GetRawData returns the raw bytes of the configuration file.
func (g *GitRepository) GetRawData() []byte {
	g.RLock()
	defer g.RUnlock()
	return g.rawData
}

// Config returns the parsed snapshot, nil before the first successful refresh.
func (g *GitRepository) Config() *config.Config {
	g.RLock()
	defer g.RUnlock()
	return g.cfg
}

// Refresh clones or pulls the git repository in memory and parses the
// rucio.cfg file from its worktree into the snapshot.
func (g *GitRepository) Refresh() error {
	g.Lock()
	defer g.Unlock()

	if g.fs == nil {
		g.fs = memfs.New()
		logrus.Debugf("cloning %s into memory", g.URL.String())
		cloneOptions := &git.CloneOptions{
			URL:  g.URL.String(),
			Auth: g.Auth,
		}
		if g.Branch != "" {
			cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(g.Branch)
			cloneOptions.SingleBranch = true
		}
		r, err := git.CloneContext(context.Background(), memory.NewStorage(), g.fs, cloneOptions)
		if err != nil {
			// Drop the half-built filesystem so the next refresh re-clones
			g.fs = nil
			return err
		}
		logrus.Debug("cloned")
		g.gitRepository = r
	} else {
		w, err := g.gitRepository.Worktree()
		if err != nil {
			return err
		}

		pullOptions := &git.PullOptions{
			Auth: g.Auth,
		}
		if g.Branch != "" {
			pullOptions.ReferenceName = plumbing.NewBranchReferenceName(g.Branch)
			pullOptions.SingleBranch = true
			pullOptions.Force = true
		}

		err = w.PullContext(context.Background(), pullOptions)
		if err != nil && err != git.NoErrAlreadyUpToDate {
			return err
		}
		if err == git.NoErrAlreadyUpToDate {
			logrus.Debug("already up to date")
		} else {
			logrus.Debug("pulled")
		}
	}

	file, err := g.fs.Open(g.Path)
	if err != nil {
		return err
	}
	defer func(file billy.File) {
		err := file.Close()
		if err != nil {
			logrus.WithError(err).Error("error closing file")
		}
	}(file)

	fileContent, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	tempCfg, err := config.Parse(fileContent)
	if err != nil {
		logrus.Debug("error parsing file")
		return err
	}

	g.cfg = tempCfg
	g.rawData = fileContent

	return nil
}

package server

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/Thysk/rucio/source"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"gopkg.in/yaml.v3"
)

// Manifest describes a configuration server deployment: where to listen,
// how often to refresh, and which repositories to serve. It is written by
// operators, so unknown YAML fields are rejected instead of ignored.
type Manifest struct {
	Listen          string           `yaml:"listen"`
	AuthKey         string           `yaml:"auth_key"`
	RefreshInterval int              `yaml:"refresh_interval"` // seconds
	Metrics         bool             `yaml:"metrics"`
	Repositories    []RepositorySpec `yaml:"repositories"`
}

// RepositorySpec describes one repository entry. Type selects the backend;
// the other fields apply per type.
type RepositorySpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // file, web, git, s3 or gcs

	// file and git
	Path string `yaml:"path,omitempty"`

	// web and git
	URL string `yaml:"url,omitempty"`

	// web
	APIKey  string `yaml:"api_key,omitempty"`
	Retries int    `yaml:"retries,omitempty"`

	// git
	Branch   string `yaml:"branch,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// s3 and gcs
	Bucket string `yaml:"bucket,omitempty"`
	Object string `yaml:"object,omitempty"`

	// s3
	Region          string `yaml:"region,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`

	// gcs
	Anonymous bool `yaml:"anonymous,omitempty"`
}

// LoadManifest reads and validates a deployment manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Listen == "" {
		m.Listen = ":8080"
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Interval returns the refresh interval as a duration.
func (m *Manifest) Interval() time.Duration {
	return time.Duration(m.RefreshInterval) * time.Second
}

func (m *Manifest) validate() error {
	if len(m.Repositories) == 0 {
		return fmt.Errorf("manifest needs at least one repository")
	}
	names := make(map[string]struct{}, len(m.Repositories))
	for _, spec := range m.Repositories {
		if spec.Name == "" {
			return fmt.Errorf("repository with empty name")
		}
		if _, ok := names[spec.Name]; ok {
			return fmt.Errorf("duplicate repository name %q", spec.Name)
		}
		names[spec.Name] = struct{}{}

		switch spec.Type {
		case "file":
			if spec.Path == "" {
				return fmt.Errorf("repository %q: file type needs a path", spec.Name)
			}
		case "web":
			if spec.URL == "" {
				return fmt.Errorf("repository %q: web type needs a url", spec.Name)
			}
		case "git":
			if spec.URL == "" || spec.Path == "" {
				return fmt.Errorf("repository %q: git type needs a url and a path", spec.Name)
			}
		case "s3", "gcs":
			if spec.Bucket == "" || spec.Object == "" {
				return fmt.Errorf("repository %q: %s type needs a bucket and an object", spec.Name, spec.Type)
			}
		default:
			return fmt.Errorf("repository %q: unknown type %q", spec.Name, spec.Type)
		}
	}
	return nil
}

// Build constructs the repository set the manifest describes.
func (m *Manifest) Build() ([]source.Repository, error) {
	repositories := make([]source.Repository, 0, len(m.Repositories))
	for _, spec := range m.Repositories {
		repository, err := spec.build()
		if err != nil {
			return nil, fmt.Errorf("repository %q: %w", spec.Name, err)
		}
		repositories = append(repositories, repository)
	}
	return repositories, nil
}

func (spec RepositorySpec) build() (source.Repository, error) {
	switch spec.Type {
	case "file":
		return &source.FileRepository{Name: spec.Name, Path: spec.Path}, nil
	case "web":
		u, err := url.Parse(spec.URL)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		return &source.WebRepository{Name: spec.Name, URL: u, APIKey: spec.APIKey, Retries: spec.Retries}, nil
	case "git":
		u, err := url.Parse(spec.URL)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		var auth *http.BasicAuth
		if spec.Username != "" {
			auth = &http.BasicAuth{Username: spec.Username, Password: spec.Password}
		}
		return &source.GitRepository{Name: spec.Name, URL: u, Path: spec.Path, Branch: spec.Branch, Auth: auth}, nil
	case "s3":
		return &source.AwsS3Repository{
			Name:            spec.Name,
			BucketName:      spec.Bucket,
			ObjectName:      spec.Object,
			Region:          spec.Region,
			AccessKeyID:     spec.AccessKeyID,
			SecretAccessKey: spec.SecretAccessKey,
		}, nil
	case "gcs":
		return &source.GcpStorageRepository{
			Name:       spec.Name,
			BucketName: spec.Bucket,
			ObjectName: spec.Object,
			Anonymous:  spec.Anonymous,
		}, nil
	}
	return nil, fmt.Errorf("unknown type %q", spec.Type)
}

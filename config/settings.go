package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Thysk/rucio/cfg"
	"github.com/Thysk/rucio/policy"
)

var (
	// ErrProtocolNotFound is returned for an endpoint without a usable
	// scheme or host.
	ErrProtocolNotFound = errors.New("client protocol not found")

	// ErrProtocolNotSupported is returned for an endpoint whose scheme the
	// client cannot speak.
	ErrProtocolNotSupported = errors.New("client protocol not supported")
)

// Defaults applied when the configuration leaves a key unset.
const (
	DefaultAuthType       = "userpass"
	DefaultRequestRetries = 3
)

// AuthTypes lists the accepted [client] auth_type values.
var AuthTypes = []string{"userpass", "x509", "x509_proxy", "gss", "ssh", "saml", "oidc"}

// PolicySettings is the typed view of the [policy] section.
type PolicySettings struct {
	Package          string
	LFN2PFNAlgorithm string
	Support          string
	SupportRucio     string
}

// ClientSettings is the validated, typed view of a client configuration.
type ClientSettings struct {
	RucioHost      string
	AuthHost       string
	AuthType       string
	X509Proxy      string
	RequestRetries int

	Policy PolicySettings

	// Zero when the template's commented-out defaults are in effect.
	UploadTransferTimeout   time.Duration
	DownloadTransferTimeout time.Duration
}

// CheckEndpoint verifies that an endpoint URL names a protocol the client can
// speak. A missing scheme or host is ErrProtocolNotFound; a scheme other than
// http or https is ErrProtocolNotSupported.
func CheckEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("%q: %w", endpoint, ErrProtocolNotFound)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q: %w", endpoint, ErrProtocolNotSupported)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host: %w", endpoint, ErrProtocolNotFound)
	}
	return nil
}

// settingsErrors accumulates findings so a single pass reports everything
// wrong with a configuration instead of stopping at the first problem.
type settingsErrors struct {
	errs []error
}

func (e *settingsErrors) add(context string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s: %w", context, err))
}

func (e *settingsErrors) addf(context, format string, args ...interface{}) {
	e.errs = append(e.errs, fmt.Errorf("%s: %s", context, fmt.Sprintf(format, args...)))
}

func (e *settingsErrors) err() error {
	return errors.Join(e.errs...)
}

// Settings validates the client-facing sections and returns them as one
// typed value. All findings are accumulated into the returned error; the
// endpoint findings match ErrProtocolNotFound and ErrProtocolNotSupported
// via errors.Is.
func (c *Config) Settings() (ClientSettings, error) {
	var problems settingsErrors
	s := ClientSettings{
		AuthType:       DefaultAuthType,
		RequestRetries: DefaultRequestRetries,
		Policy:         PolicySettings{LFN2PFNAlgorithm: policy.DefaultAlgorithm},
	}

	s.RucioHost = c.endpoint(cfg.KeyRucioHost, &problems)
	s.AuthHost = c.endpoint(cfg.KeyAuthHost, &problems)

	if value, err := c.String(cfg.SectionClient, cfg.KeyAuthType); err == nil {
		s.AuthType = strings.TrimSpace(value)
	}
	if !validAuthType(s.AuthType) {
		problems.addf("client.auth_type", "%q is not one of %s",
			s.AuthType, strings.Join(AuthTypes, ", "))
	}
	if s.AuthType == "x509_proxy" {
		value, err := c.String(cfg.SectionClient, cfg.KeyClientX509Proxy)
		if err != nil {
			problems.addf("client.client_x509_proxy", "required when auth_type is x509_proxy")
		}
		s.X509Proxy = value
	}

	if c.Has(cfg.SectionClient, cfg.KeyRequestRetries) {
		retries, err := c.Int(cfg.SectionClient, cfg.KeyRequestRetries)
		switch {
		case err != nil:
			problems.errs = append(problems.errs, err)
		case retries < 0:
			problems.addf("client.request_retries", "%d is negative", retries)
		default:
			s.RequestRetries = retries
		}
	}

	s.Policy.Package, _ = c.String(cfg.SectionPolicy, cfg.KeyPolicyPackage)
	s.Policy.Support, _ = c.String(cfg.SectionPolicy, cfg.KeyPolicySupport)
	s.Policy.SupportRucio, _ = c.String(cfg.SectionPolicy, cfg.KeyPolicySupportRepo)
	if value, err := c.String(cfg.SectionPolicy, cfg.KeyLFN2PFNAlgorithm); err == nil {
		s.Policy.LFN2PFNAlgorithm = strings.TrimSpace(value)
	}
	if _, ok := policy.Lookup(s.Policy.LFN2PFNAlgorithm); !ok {
		problems.addf("policy.lfn2pfn_algorithm_default", "unknown algorithm %q, have %s",
			s.Policy.LFN2PFNAlgorithm, strings.Join(policy.Names(), ", "))
	}

	s.UploadTransferTimeout = c.timeout(cfg.SectionUpload, &problems)
	s.DownloadTransferTimeout = c.timeout(cfg.SectionDownload, &problems)

	return s, problems.err()
}

func (c *Config) endpoint(key string, problems *settingsErrors) string {
	value, err := c.String(cfg.SectionClient, key)
	if err != nil {
		problems.errs = append(problems.errs, err)
		return ""
	}
	if err := CheckEndpoint(value); err != nil {
		problems.add(cfg.SectionClient+"."+key, err)
	}
	return value
}

func (c *Config) timeout(section string, problems *settingsErrors) time.Duration {
	if !c.Has(section, cfg.KeyTransferTimeout) {
		return 0
	}
	d, err := c.Duration(section, cfg.KeyTransferTimeout)
	switch {
	case err != nil:
		problems.errs = append(problems.errs, err)
	case d < 0:
		problems.addf(section+"."+cfg.KeyTransferTimeout, "%s is negative", d)
	default:
		return d
	}
	return 0
}

func validAuthType(authType string) bool {
	for _, known := range AuthTypes {
		if authType == known {
			return true
		}
	}
	return false
}

package cfg

// Section and key names shared with the config loader.
const (
	SectionClient   = "client"
	SectionPolicy   = "policy"
	SectionUpload   = "upload"
	SectionDownload = "download"

	KeyRucioHost       = "rucio_host"
	KeyAuthHost        = "auth_host"
	KeyClientX509Proxy = "client_x509_proxy"
	KeyRequestRetries  = "request_retries"
	KeyAuthType        = "auth_type"

	KeyPolicyPackage     = "package"
	KeyLFN2PFNAlgorithm  = "lfn2pfn_algorithm_default"
	KeyPolicySupport     = "support"
	KeyPolicySupportRepo = "support_rucio"

	KeyTransferTimeout = "transfer_timeout"
)

// ClientKeys lists, in template order, the keys a [client] section carries.
var ClientKeys = []string{
	KeyRucioHost,
	KeyAuthHost,
	KeyClientX509Proxy,
	KeyRequestRetries,
	KeyAuthType,
}

// ClientTemplate returns the canonical client configuration. The [client]
// section carries exactly the keys in ClientKeys, both endpoints point at the
// production servers over https, and authentication is wired for an X.509
// proxy read from $X509_USER_PROXY at load time. Transfer timeouts ship
// disabled so the built-in defaults apply until a site uncomments them.
func ClientTemplate() *Document {
	return &Document{
		Preamble: "Rucio client configuration\n" +
			"\n" +
			"Copy this file to /opt/rucio/etc/rucio.cfg, or point RUCIO_CONFIG at it,\n" +
			"and adjust the values once per deployment. The client reads it at\n" +
			"startup and never writes to it.",
		Sections: []Section{
			{
				Name: SectionClient,
				Entries: []Entry{
					{Key: KeyRucioHost, Value: "https://voatlasrucio-server-prod.cern.ch:443"},
					{Key: KeyAuthHost, Value: "https://voatlasrucio-auth-prod.cern.ch:443"},
					{Key: KeyClientX509Proxy, Value: "$X509_USER_PROXY"},
					{Key: KeyRequestRetries, Value: "3"},
					{Key: KeyAuthType, Value: "x509_proxy"},
				},
			},
			{
				Name: SectionPolicy,
				Entries: []Entry{
					{Key: KeyPolicyPackage, Value: "atlas_rucio_policy"},
					{Key: KeyLFN2PFNAlgorithm, Value: "hash"},
					{Key: KeyPolicySupport, Value: "hn-atlas-dist-analysis-help@cern.ch"},
					{Key: KeyPolicySupportRepo, Value: "https://github.com/rucio/rucio/issues/"},
				},
			},
			{
				Name: SectionUpload,
				Entries: []Entry{
					{Key: KeyTransferTimeout, Value: "3600", Disabled: true},
				},
			},
			{
				Name: SectionDownload,
				Entries: []Entry{
					{Key: KeyTransferTimeout, Value: "3600", Disabled: true},
				},
			},
		},
	}
}

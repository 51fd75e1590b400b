package cfg

import (
	"bytes"
	"strings"
	"testing"
)

const renderedTemplate = `# Rucio client configuration
#
# Copy this file to /opt/rucio/etc/rucio.cfg, or point RUCIO_CONFIG at it,
# and adjust the values once per deployment. The client reads it at
# startup and never writes to it.

[client]
rucio_host = https://voatlasrucio-server-prod.cern.ch:443
auth_host = https://voatlasrucio-auth-prod.cern.ch:443
client_x509_proxy = $X509_USER_PROXY
request_retries = 3
auth_type = x509_proxy

[policy]
package = atlas_rucio_policy
lfn2pfn_algorithm_default = hash
support = hn-atlas-dist-analysis-help@cern.ch
support_rucio = https://github.com/rucio/rucio/issues/

[upload]
# transfer_timeout = 3600

[download]
# transfer_timeout = 3600
`

func TestRenderTemplate(t *testing.T) {
	got := string(ClientTemplate().Render())
	if got != renderedTemplate {
		t.Errorf("rendered template does not match: got\n%s\nwant\n%s", got, renderedTemplate)
	}
}

func TestWriteTo(t *testing.T) {
	doc := ClientTemplate()
	var buf bytes.Buffer
	n, err := doc.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo returned error: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("WriteTo reported %d bytes, wrote %d", n, buf.Len())
	}
	if !bytes.Equal(buf.Bytes(), doc.Render()) {
		t.Errorf("WriteTo output differs from Render output")
	}
}

func TestLookup(t *testing.T) {
	doc := ClientTemplate()

	value, ok := doc.Lookup(SectionClient, KeyAuthType)
	if !ok {
		t.Fatalf("expected client.auth_type to be present")
	}
	if value != "x509_proxy" {
		t.Errorf("client.auth_type: got %q want %q", value, "x509_proxy")
	}

	if _, ok := doc.Lookup(SectionUpload, KeyTransferTimeout); ok {
		t.Errorf("disabled upload.transfer_timeout should not resolve")
	}
	if _, ok := doc.Lookup("nosuch", "key"); ok {
		t.Errorf("lookup in a missing section should fail")
	}
	if _, ok := doc.Lookup(SectionClient, "nosuch"); ok {
		t.Errorf("lookup of a missing key should fail")
	}
}

func TestSectionEntry(t *testing.T) {
	doc := ClientTemplate()

	sec := doc.Section(SectionDownload)
	if sec == nil {
		t.Fatalf("expected a [download] section")
	}
	e := sec.Entry(KeyTransferTimeout)
	if e == nil {
		t.Fatalf("expected a transfer_timeout entry")
	}
	if !e.Disabled {
		t.Errorf("download.transfer_timeout should ship disabled")
	}
	if e.Value != "3600" {
		t.Errorf("download.transfer_timeout: got %q want %q", e.Value, "3600")
	}
	if doc.Section("nosuch") != nil {
		t.Errorf("Section should return nil for an unknown name")
	}
}

func TestValidate(t *testing.T) {
	if err := ClientTemplate().Validate(); err != nil {
		t.Errorf("template should validate, got %v", err)
	}

	dupSection := &Document{Sections: []Section{{Name: "client"}, {Name: "client"}}}
	if err := dupSection.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate section") {
		t.Errorf("expected a duplicate section error, got %v", err)
	}

	dupKey := &Document{Sections: []Section{{
		Name:    "client",
		Entries: []Entry{{Key: "auth_type", Value: "x509"}, {Key: "auth_type", Value: "userpass"}},
	}}}
	if err := dupKey.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate key") {
		t.Errorf("expected a duplicate key error, got %v", err)
	}

	emptySection := &Document{Sections: []Section{{Name: "  "}}}
	if err := emptySection.Validate(); err == nil {
		t.Errorf("expected an error for an empty section name")
	}

	emptyKey := &Document{Sections: []Section{{Name: "client", Entries: []Entry{{Key: ""}}}}}
	if err := emptyKey.Validate(); err == nil {
		t.Errorf("expected an error for an empty key")
	}
}

func TestRenderComments(t *testing.T) {
	doc := &Document{
		Sections: []Section{{
			Name:    "client",
			Comment: "connection settings",
			Entries: []Entry{
				{Key: "rucio_host", Value: "https://rucio.example.org", Comment: "server endpoint"},
			},
		}},
	}
	got := string(doc.Render())
	want := "# connection settings\n[client]\n# server endpoint\nrucio_host = https://rucio.example.org\n"
	if got != want {
		t.Errorf("rendered document: got\n%s\nwant\n%s", got, want)
	}
}

// Package cfg models the rucio.cfg configuration document: named sections
// holding ordered key/value entries, plus the canonical client template and a
// well-formedness checker for edited copies.
package cfg

import (
	"fmt"
	"io"
	"strings"
)

// Entry is a single key/value pair within a section. A disabled entry is
// rendered commented out: the key ships with the template but stays inactive
// until an operator uncomments it.
type Entry struct {
	Key      string
	Value    string
	Comment  string // Comment lines rendered above the entry
	Disabled bool   // Rendered as "# key = value"
}

// Section groups entries under a [name] header.
type Section struct {
	Name    string
	Comment string
	Entries []Entry
}

// Document is an ordered rucio.cfg document: an optional preamble comment
// followed by named sections. It is created by an operator from the template,
// edited once per deployment and read at client startup; nothing mutates it at
// runtime.
type Document struct {
	Preamble string
	Sections []Section
}

// Section returns the named section, or nil when the document has none.
func (d *Document) Section(name string) *Section {
	for i := range d.Sections {
		if d.Sections[i].Name == name {
			return &d.Sections[i]
		}
	}
	return nil
}

// Lookup returns the value of an active entry. Disabled entries are invisible
// here: they exist only as rendered text.
func (d *Document) Lookup(section, key string) (string, bool) {
	s := d.Section(section)
	if s == nil {
		return "", false
	}
	e := s.Entry(key)
	if e == nil || e.Disabled {
		return "", false
	}
	return e.Value, true
}

// Entry returns the entry for key, disabled or not, or nil when absent.
func (s *Section) Entry(key string) *Entry {
	for i := range s.Entries {
		if s.Entries[i].Key == key {
			return &s.Entries[i]
		}
	}
	return nil
}

// Validate checks the structural invariants: section names are unique and
// non-empty, and keys are unique within their section.
func (d *Document) Validate() error {
	sections := make(map[string]struct{}, len(d.Sections))
	for _, sec := range d.Sections {
		if strings.TrimSpace(sec.Name) == "" {
			return fmt.Errorf("section with empty name")
		}
		if _, ok := sections[sec.Name]; ok {
			return fmt.Errorf("duplicate section %q", sec.Name)
		}
		sections[sec.Name] = struct{}{}

		keys := make(map[string]struct{}, len(sec.Entries))
		for _, e := range sec.Entries {
			if strings.TrimSpace(e.Key) == "" {
				return fmt.Errorf("section %q has an entry with an empty key", sec.Name)
			}
			if _, ok := keys[e.Key]; ok {
				return fmt.Errorf("duplicate key %q in section %q", e.Key, sec.Name)
			}
			keys[e.Key] = struct{}{}
		}
	}
	return nil
}

// Render returns the document in the rucio.cfg text format.
func (d *Document) Render() []byte {
	var b strings.Builder
	d.render(&b)
	return []byte(b.String())
}

// WriteTo writes the rendered document to w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	d.render(&b)
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func (d *Document) render(b *strings.Builder) {
	if d.Preamble != "" {
		writeComment(b, d.Preamble)
		b.WriteByte('\n')
	}
	for i, sec := range d.Sections {
		if i > 0 {
			b.WriteByte('\n')
		}
		writeComment(b, sec.Comment)
		b.WriteByte('[')
		b.WriteString(sec.Name)
		b.WriteString("]\n")
		for _, e := range sec.Entries {
			writeComment(b, e.Comment)
			if e.Disabled {
				b.WriteString("# ")
			}
			b.WriteString(e.Key)
			b.WriteString(" = ")
			b.WriteString(e.Value)
			b.WriteByte('\n')
		}
	}
}

func writeComment(b *strings.Builder, comment string) {
	if comment == "" {
		return
	}
	for _, line := range strings.Split(comment, "\n") {
		if line == "" {
			b.WriteString("#\n")
			continue
		}
		b.WriteString("# ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

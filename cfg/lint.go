package cfg

import (
	"bufio"
	"bytes"
	"fmt"
	"net/url"
	"strings"
)

// Issue is a single well-formedness finding in a rucio.cfg file.
type Issue struct {
	Line    int    // 1-based line number
	Context string // "[section]" or "section.key", empty when unknown
	Message string
}

func (i Issue) String() string {
	if i.Context == "" {
		return fmt.Sprintf("line %d: %s", i.Line, i.Message)
	}
	return fmt.Sprintf("line %d: %s: %s", i.Line, i.Context, i.Message)
}

// Check scans a rendered configuration line by line and reports every
// well-formedness issue it finds. It works on the raw text rather than a
// parsed form so duplicate keys and line numbers survive; parsers collapse
// both. An empty slice means the file is clean.
//
// The rules: every line is a section header, a key/value entry, a comment or
// blank; entries appear only below a section header; section names and the
// keys within a section are unique; the [client] endpoints are https URLs.
func Check(raw []byte) []Issue {
	var issues []Issue

	section := ""
	sections := map[string]int{}
	keys := map[string]int{}

	line := 0
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())

		switch {
		case text == "" || strings.HasPrefix(text, "#"):
			continue

		case strings.HasPrefix(text, "["):
			name, ok := sectionName(text)
			if !ok {
				issues = append(issues, Issue{line, "", "malformed section header"})
				continue
			}
			if first, dup := sections[name]; dup {
				issues = append(issues, Issue{line, "[" + name + "]",
					fmt.Sprintf("section already declared on line %d", first)})
			} else {
				sections[name] = line
			}
			section = name
			keys = map[string]int{}

		case strings.Contains(text, "="):
			key := strings.TrimSpace(text[:strings.Index(text, "=")])
			value := strings.TrimSpace(text[strings.Index(text, "=")+1:])
			if key == "" {
				issues = append(issues, Issue{line, "", "entry with an empty key"})
				continue
			}
			if section == "" {
				issues = append(issues, Issue{line, key, "entry before the first section header"})
				continue
			}
			ctx := section + "." + key
			if first, dup := keys[key]; dup {
				issues = append(issues, Issue{line, ctx,
					fmt.Sprintf("key already set on line %d", first)})
			} else {
				keys[key] = line
			}
			if section == SectionClient && (key == KeyRucioHost || key == KeyAuthHost) {
				if msg := checkEndpoint(value); msg != "" {
					issues = append(issues, Issue{line, ctx, msg})
				}
			}

		default:
			issues = append(issues, Issue{line, "", "line is neither a section header, an entry, a comment nor blank"})
		}
	}
	return issues
}

func sectionName(text string) (string, bool) {
	if !strings.HasSuffix(text, "]") {
		return "", false
	}
	name := strings.TrimSpace(text[1 : len(text)-1])
	if name == "" || strings.ContainsAny(name, "[]") {
		return "", false
	}
	return name, true
}

func checkEndpoint(value string) string {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Sprintf("endpoint %q is not a URL", value)
	}
	if u.Scheme != "https" {
		return fmt.Sprintf("endpoint %q must use https", value)
	}
	return ""
}

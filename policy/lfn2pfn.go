// Package policy holds the pluggable pieces a deployment configures through
// the [policy] section: the LFN-to-PFN algorithms that map a scoped logical
// file name onto a storage path, and the registry a policy package extends
// with its own algorithms.
package policy

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultAlgorithm names the algorithm used when a deployment does not set
// lfn2pfn_algorithm_default.
const DefaultAlgorithm = "hash"

// Algorithm maps a scope and a logical file name to the path component of a
// physical file name on deterministic storage.
type Algorithm func(scope, name string) (string, error)

var (
	mu         sync.RWMutex
	algorithms = map[string]Algorithm{
		"identity": Identity,
		"hash":     Hash,
	}
)

// Register adds an algorithm under the given name. Registering an existing
// name replaces it; that is how a policy package overrides a built-in.
func Register(name string, algorithm Algorithm) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("lfn2pfn algorithm needs a name")
	}
	if algorithm == nil {
		return fmt.Errorf("lfn2pfn algorithm %q is nil", name)
	}
	mu.Lock()
	defer mu.Unlock()
	algorithms[name] = algorithm
	return nil
}

// Lookup returns the named algorithm.
func Lookup(name string) (Algorithm, bool) {
	mu.RLock()
	defer mu.RUnlock()
	algorithm, ok := algorithms[name]
	return algorithm, ok
}

// Names returns the registered algorithm names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Identity maps scope:name to scope/name. User and group scopes expand their
// dots into path separators, so user.jdoe becomes user/jdoe.
func Identity(scope, name string) (string, error) {
	if err := checkDID(scope, name); err != nil {
		return "", err
	}
	return expandScope(scope) + "/" + name, nil
}

// Hash prefixes the file name with two levels taken from the md5 of
// "scope:name", spreading files evenly across storage directories:
// scope/ab/cd/name. User and group scopes expand like in Identity. The
// digest is fixed by data already on disk at every site and must never
// change.
func Hash(scope, name string) (string, error) {
	if err := checkDID(scope, name); err != nil {
		return "", err
	}
	digest := md5.Sum([]byte(scope + ":" + name))
	hstr := hex.EncodeToString(digest[:])
	return fmt.Sprintf("%s/%s/%s/%s", expandScope(scope), hstr[0:2], hstr[2:4], name), nil
}

func expandScope(scope string) string {
	if strings.HasPrefix(scope, "user") || strings.HasPrefix(scope, "group") {
		return strings.ReplaceAll(scope, ".", "/")
	}
	return scope
}

func checkDID(scope, name string) error {
	if scope == "" {
		return fmt.Errorf("empty scope")
	}
	if name == "" {
		return fmt.Errorf("empty name")
	}
	return nil
}

package registry

import (
	"flag"
	"fmt"
	"sort"
	"strings"
	"sync"

	"xdao.co/pora/storage"
)

// Option documents one key a backend accepts in its options map.
type Option struct {
	Name    string
	Default string
	Usage   string
}

// Backend is a build-time plugin that can open a storage.Backend.
//
// Backends typically register themselves in init():
//
//	registry.MustRegister(registry.Backend{ ... })
//
// The binary must import the backend package for registration to occur.
type Backend struct {
	Name        string
	Description string
	Usage       Usage
	Options     []Option

	// Open constructs the backend from options keyed by Option.Name. Keys
	// absent from opts take their Option.Default.
	Open func(opts map[string]string) (storage.Backend, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("registry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("registry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("registry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("registry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// Open opens the named backend if it exists and matches usage. Unknown option
// keys are rejected so typos in config files surface at startup.
func Open(name string, usage Usage, opts map[string]string) (storage.Backend, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return storage.Backend{}, fmt.Errorf("unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return storage.Backend{}, fmt.Errorf("backend %q not supported in this binary", name)
	}

	merged := make(map[string]string, len(b.Options))
	known := make(map[string]bool, len(b.Options))
	for _, o := range b.Options {
		known[o.Name] = true
		if o.Default != "" {
			merged[o.Name] = o.Default
		}
	}
	for k, v := range opts {
		if !known[k] {
			return storage.Backend{}, fmt.Errorf("backend %q: unknown option %q", name, k)
		}
		merged[k] = v
	}
	return b.Open(merged)
}

// Flags holds per-backend option values registered on a FlagSet as
// --<backend>-<option>.
type Flags struct {
	values map[string]map[string]*string
}

// RegisterFlags registers flags for all backends matching usage.
//
// This enables single-pass flag parsing (Go's flag package rejects unknown flags).
func RegisterFlags(fs *flag.FlagSet, usage Usage) *Flags {
	f := &Flags{values: map[string]map[string]*string{}}
	for _, b := range List(usage) {
		vals := map[string]*string{}
		for _, o := range b.Options {
			name := b.Name + "-" + o.Name
			vals[o.Name] = fs.String(name, "", fmt.Sprintf("%s (for backend %s)", o.Usage, b.Name))
		}
		f.values[b.Name] = vals
	}
	return f
}

// Options returns the non-empty flag values set for backend, overlaid on base.
func (f *Flags) Options(backend string, base map[string]string) map[string]string {
	out := make(map[string]string, len(base))
	for k, v := range base {
		out[k] = v
	}
	if f == nil {
		return out
	}
	for k, v := range f.values[backend] {
		if s := strings.TrimSpace(*v); s != "" {
			out[k] = s
		}
	}
	return out
}

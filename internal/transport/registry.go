package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Factory constructs a backend on first selection.
type Factory func() (Transport, error)

// Registry stores backend factories by name.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Factory)}
}

var defaultRegistry = NewRegistry()

// Default returns the registry backends add themselves to from init.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a backend to the default registry. It panics on duplicate
// names, like a second driver registering under the same name.
func Register(name string, f Factory) {
	if err := defaultRegistry.Register(name, f); err != nil {
		panic(err)
	}
}

func (r *Registry) Register(name string, f Factory) error {
	if f == nil {
		return ErrNilFactory
	}
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[name]; ok {
		return fmt.Errorf("%w: %q", ErrTransportExists, name)
	}
	r.items[name] = f
	return nil
}

func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.items[name]
	return f, ok
}

// Names returns registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Recognized reports whether name is a transport option the selector
// understands, whether or not it is compiled in.
func Recognized(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameUnix, NameMach:
		return true
	default:
		return false
	}
}

// DefaultName is the compiled default: the kernel-port backend when the
// build includes it, the local-socket backend otherwise.
func (r *Registry) DefaultName() string {
	if _, ok := r.Lookup(NameMach); ok {
		return NameMach
	}
	return NameUnix
}

// Selector resolves the active backend exactly once. The first caller wins
// and every later caller observes the same transport or the same error.
type Selector struct {
	registry   *Registry
	configured string
	logger     zerolog.Logger

	once      sync.Once
	name      string
	transport Transport
	err       error
}

type SelectorOption func(*Selector)

// WithSelectorLogger routes selection diagnostics to logger.
func WithSelectorLogger(logger zerolog.Logger) SelectorOption {
	return func(s *Selector) {
		s.logger = logger
	}
}

// NewSelector prepares a selector over reg for the configured option. An
// absent or unrecognized option falls back to the registry default.
func NewSelector(reg *Registry, configured string, opts ...SelectorOption) *Selector {
	if reg == nil {
		reg = defaultRegistry
	}
	s := &Selector{registry: reg, configured: configured, logger: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fixed returns a selector already resolved to t.
func Fixed(t Transport) *Selector {
	s := &Selector{name: t.Name(), transport: t}
	s.once.Do(func() {})
	return s
}

// Transport returns the resolved backend, resolving it on first use.
func (s *Selector) Transport() (Transport, error) {
	s.once.Do(s.resolve)
	return s.transport, s.err
}

// Name returns the selected backend name once resolved.
func (s *Selector) Name() string {
	s.once.Do(s.resolve)
	return s.name
}

func (s *Selector) resolve() {
	name := strings.ToLower(strings.TrimSpace(s.configured))
	if !Recognized(name) {
		if name != "" {
			s.logger.Warn().Str("transport", s.configured).Msg("unrecognized transport option, using default")
		}
		name = s.registry.DefaultName()
	}
	s.name = name

	f, ok := s.registry.Lookup(name)
	if !ok {
		s.err = fmt.Errorf("%w: %q", ErrTransportUnavailable, name)
		return
	}
	t, err := f()
	if err != nil {
		s.err = fmt.Errorf("transport: init %q: %w", name, err)
		return
	}
	s.transport = t
	s.logger.Debug().Str("transport", name).Msg("transport selected")
}

// Package provider owns the native library for the lifetime of the service.
// The library is loaded on first use with the configured backend and
// reloaded whenever the configured path changes.
package provider

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bsaid97/go-lwgeom-fixer/config"
	"github.com/bsaid97/go-lwgeom-fixer/geoslib"
	"github.com/bsaid97/go-lwgeom-fixer/lwgeom"
	"github.com/bsaid97/go-lwgeom-fixer/native"
	"github.com/bsaid97/go-lwgeom-fixer/proclog"
	"github.com/bsaid97/go-lwgeom-fixer/runner"
)

// MultithreadWarning is logged when more than one worker is configured.
const MultithreadWarning = "WARNING: Multithread execution has problems. Native calls are serialized, set server.workers to 1"

// Opener loads a library for backend. path is empty for backends that do not
// load a file.
type Opener func(backend, path string, sink proclog.Sink) (native.Library, error)

// Open is the default Opener.
func Open(backend, path string, sink proclog.Sink) (native.Library, error) {
	switch backend {
	case config.BackendGEOS:
		return geoslib.New(sink), nil
	case config.BackendLwgeom:
		b, err := lwgeom.Open(path, sink)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: backend %q", config.ErrInvalid, backend)
	}
}

// Provider hands out runners bound to the current library.
type Provider struct {
	mu sync.Mutex

	cfg     *config.Config
	locator config.Locator
	open    Opener
	log     *proclog.Log
	logger  *zap.Logger

	lib     native.Library
	backend string
	path    string
}

// Option configures a Provider.
type Option func(*Provider)

// WithLocator sets how the library is found when lwgeom.path is empty.
func WithLocator(l config.Locator) Option {
	return func(p *Provider) { p.locator = l }
}

// WithOpener replaces the library loader.
func WithOpener(o Opener) Option {
	return func(p *Provider) { p.open = o }
}

// WithLogger sets the process logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New returns a provider. Nothing is loaded until the first Runner or
// Library call.
func New(cfg *config.Config, opts ...Option) *Provider {
	p := &Provider{
		cfg:     cfg,
		locator: config.DefaultLocator(),
		open:    Open,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = proclog.New(p.logger)
	return p
}

// Log returns the processing log every library reports to.
func (p *Provider) Log() *proclog.Log {
	return p.log
}

// Config returns the current settings.
func (p *Provider) Config() *config.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// SetConfig replaces the settings. A changed backend or path takes effect on
// the next Library call.
func (p *Provider) SetConfig(cfg *config.Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

// Library returns the loaded library, loading it first if needed.
func (p *Provider) Library() (native.Library, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	backend := p.cfg.Backend
	var path string
	if backend == config.BackendLwgeom {
		var err error
		if path, err = p.cfg.LibraryPath(p.locator); err != nil {
			return nil, err
		}
	}

	if p.lib != nil && p.backend == backend && p.path == path {
		return p.lib, nil
	}
	if p.lib != nil {
		p.logger.Info("native library settings changed, reloading",
			zap.String("old", p.lib.Name()), zap.String("backend", backend), zap.String("path", path))
		p.release()
	}

	lib, err := p.open(backend, path, p.log)
	if err != nil {
		return nil, err
	}
	p.logger.Info("native library loaded", zap.String("backend", backend), zap.String("name", lib.Name()))
	p.lib, p.backend, p.path = lib, backend, path
	return lib, nil
}

// Runner returns a runner for op on the current library.
func (p *Provider) Runner(op runner.Operation) (*runner.Runner, error) {
	lib, err := p.Library()
	if err != nil {
		return nil, err
	}
	return runner.New(lib, op, p.log)
}

// Descriptors lists the algorithms offered.
func (p *Provider) Descriptors() []runner.Descriptor {
	ops := runner.Operations()
	out := make([]runner.Descriptor, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.Describe())
	}
	return out
}

// Workers returns the number of workers to run. Native calls cannot run in
// parallel, so anything above one is logged and reduced to one.
func (p *Provider) Workers() int {
	n := p.Config().Server.Workers
	if n > 1 {
		p.log.Append(proclog.Warning, MultithreadWarning)
	}
	return 1
}

// Close unloads the library.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.release()
}

func (p *Provider) release() error {
	if p.lib == nil {
		return nil
	}
	err := p.lib.Close()
	if err != nil {
		p.logger.Warn("failed to unload native library", zap.String("name", p.lib.Name()), zap.Error(err))
	}
	p.lib, p.backend, p.path = nil, "", ""
	return err
}

package program

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"job-scheduler/internal/domain"
	http_infra "job-scheduler/internal/infra/http"
	shell_infra "job-scheduler/internal/infra/shell"

	"github.com/cockroachdb/errors"
)

// Options configures the programs a Registry builds.
type Options struct {
	HTTPTimeout  time.Duration
	ShellTimeout time.Duration
}

// Registry builds programs from their persisted descriptors and holds the
// table of in-process services reachable by service id.
type Registry struct {
	mu       sync.RWMutex
	services map[string]ServiceFunc

	httpClient   *http.Client
	shellTimeout time.Duration
	logger       *slog.Logger
}

// NewRegistry creates a registry with no services registered.
func NewRegistry(opts Options, logger *slog.Logger) *Registry {
	return &Registry{
		services:     make(map[string]ServiceFunc),
		httpClient:   http_infra.NewHttpClient(opts.HTTPTimeout),
		shellTimeout: opts.ShellTimeout,
		logger:       logger.With("component", "program-registry"),
	}
}

// RegisterService makes fn reachable by jobs whose service id is id.
func (r *Registry) RegisterService(id string, fn ServiceFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[id]; ok {
		r.logger.Warn("replacing registered service", "service_id", id)
	}
	r.services[id] = fn
}

// HasService reports whether a service is registered under id.
func (r *Registry) HasService(id string) bool {
	_, ok := r.service(id)
	return ok
}

func (r *Registry) service(id string) (ServiceFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.services[id]
	return fn, ok
}

// Build returns the program described by desc.
func (r *Registry) Build(desc *domain.ProgramDescriptor) (domain.DescribedProgram, error) {
	if desc == nil {
		return nil, errors.Wrap(domain.ErrUnknownProgram, "missing program descriptor")
	}

	switch desc.Type {
	case domain.ProgramTypeHTTP:
		if desc.URL == "" {
			return nil, errors.New("program URL cannot be empty for http program")
		}
		return http_infra.NewHttpProgram(r.httpClient, desc.URL, desc.Method), nil
	case domain.ProgramTypeShell:
		if desc.Command == "" {
			return nil, errors.New("program command cannot be empty for shell program")
		}
		return shell_infra.NewShellProgram(desc.Command, r.shellTimeout, r.logger), nil
	case domain.ProgramTypeService:
		return &serviceProgram{registry: r, args: append([]string(nil), desc.Args...)}, nil
	default:
		return nil, errors.Wrapf(domain.ErrUnknownProgram, "%q", desc.Type)
	}
}

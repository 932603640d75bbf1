package program

import (
	"context"

	"job-scheduler/internal/domain"

	"github.com/cockroachdb/errors"
)

// ServiceFunc is an in-process service a job can invoke by its service id.
type ServiceFunc func(ctx context.Context, runner domain.Runner, args []string) error

// serviceProgram resolves the running job's service id in the registry and
// calls the registered function with the stored arguments.
type serviceProgram struct {
	registry *Registry
	args     []string
}

func (p *serviceProgram) Descriptor() domain.ProgramDescriptor {
	return domain.ProgramDescriptor{
		Type: domain.ProgramTypeService,
		Args: append([]string(nil), p.args...),
	}
}

func (p *serviceProgram) Execute(ctx context.Context, runner domain.Runner) error {
	if runner == nil || runner.Job() == nil {
		return errors.New("service program requires a runner bound to a job")
	}
	serviceID := runner.Job().ServiceID()

	fn, ok := p.registry.service(serviceID)
	if !ok {
		return errors.Wrapf(domain.ErrUnknownService, "service %q", serviceID)
	}
	return fn(ctx, runner, p.args)
}

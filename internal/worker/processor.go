// Package worker runs due jobs through their registered processors.
package worker

import (
	"context"
	"errors"

	"github.com/sumire/autopost/internal/domain"
)

// ErrNoProcessor is the failure recorded for a job whose type nothing handles.
var ErrNoProcessor = errors.New("no processor")

// Result is what a processor leaves on a completed job.
type Result struct {
	URL     string
	Message string
}

// Processor executes one kind of job. A returned error fails the job with
// the error's message.
type Processor interface {
	CanProcess(job *domain.Job) bool
	Process(ctx context.Context, jobID string) (Result, error)
}

// Registry resolves jobs to processors. It is built once at startup.
type Registry struct {
	processors []Processor
}

func NewRegistry(processors ...Processor) *Registry {
	return &Registry{processors: processors}
}

// Resolve returns the first processor that accepts job.
func (r *Registry) Resolve(job *domain.Job) (Processor, bool) {
	for _, p := range r.processors {
		if p.CanProcess(job) {
			return p, true
		}
	}
	return nil, false
}

package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/nt-accruals/internal/domain"
)

// PipelineStep represents a single step in the processing of one work unit.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *UnitState) error
}

// UnitState holds the shared state across all steps of one work unit.
type UnitState struct {
	Unit       domain.WorkUnit
	Table      *domain.Table
	RawPath    string
	ArchiveURI string

	// LoadErr is set when the warehouse load failed but the failure was not
	// promoted to a step error.
	LoadErr error
}

// StepError identifies the step that stopped a unit.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs the steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *UnitState) error {
	for _, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return &StepError{Step: step.Name(), Err: err}
		}
	}
	return nil
}

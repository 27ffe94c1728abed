package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Step is one stage of a bootstrap pipeline.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Recorder receives step outcomes, typically backed by the journal.
// Implementations must be best-effort: a recording failure never fails
// the bootstrap.
type Recorder interface {
	RecordStep(name, status string, took time.Duration, errMsg string)
}

// Pipeline runs steps strictly in order. The first failing step aborts
// the whole run; there is no rollback.
type Pipeline struct {
	log      *zap.SugaredLogger
	recorder Recorder
	steps    []Step
}

// New creates a Pipeline. recorder may be nil.
func New(log *zap.SugaredLogger, recorder Recorder) *Pipeline {
	return &Pipeline{log: log, recorder: recorder}
}

// Add appends a step to the pipeline.
func (p *Pipeline) Add(name string, run func(ctx context.Context) error) {
	p.steps = append(p.steps, Step{Name: name, Run: run})
}

// Run executes all steps in order, fail-fast.
func (p *Pipeline) Run(ctx context.Context) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		p.log.Infof("starting step %s", step.Name)
		start := time.Now()
		err := step.Run(ctx)
		took := time.Since(start)

		if err != nil {
			p.log.Errorf("step %s failed after %s: %v", step.Name, took.Round(time.Millisecond), err)
			p.record(step.Name, "failed", took, err.Error())
			return fmt.Errorf("step %s: %w", step.Name, err)
		}

		p.log.Infof("step %s done in %s", step.Name, took.Round(time.Millisecond))
		p.record(step.Name, "ok", took, "")
	}
	return nil
}

func (p *Pipeline) record(name, status string, took time.Duration, errMsg string) {
	if p.recorder == nil {
		return
	}
	p.recorder.RecordStep(name, status, took, errMsg)
}

// Package scheduler triggers recurring sync cycles from a cron expression.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a task on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
}

// New creates a Scheduler that runs task per the given cron expression.
func New(spec string, task func()) (*Scheduler, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, task); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c}, nil
}

// Start begins triggering the task.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule, letting a running task finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

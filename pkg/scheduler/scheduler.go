// Package scheduler runs the script methods of a program cooperatively, one
// step of each runnable method per tick.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zurustar/hsvm/pkg/logger"
	"github.com/zurustar/hsvm/pkg/script"
	"github.com/zurustar/hsvm/pkg/vm"
)

// Status is the run state of one script method.
type Status int

const (
	// RunOnce runs until the method completes, then terminates.
	RunOnce Status = iota
	// RunContinuous restarts the method every time it completes.
	RunContinuous
	// Sleeping waits for a tick count or for wake.
	Sleeping
	// Terminated never runs again.
	Terminated
)

var statusNames = [...]string{"run_once", "run_continuous", "sleeping", "terminated"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// InitialStatus maps a method lifecycle to the status it starts in, along
// with the status it resumes when woken.
func InitialStatus(l script.Lifecycle) (status, resume Status) {
	switch l {
	case script.Startup:
		return RunOnce, RunOnce
	case script.Continuous:
		return RunContinuous, RunContinuous
	case script.Dormant:
		return Sleeping, RunOnce
	default:
		return Terminated, Terminated
	}
}

// Task is the scheduling record of one script method.
type Task struct {
	Index  int
	Method script.MethodDefinition

	Status Status
	// SleepTicks is the number of ticks left to sleep, or vm.Forever.
	SleepTicks int
	// State is the call stack of the method.
	State *vm.State

	// Runs counts completed executions of the method.
	Runs int
	// Err is the error that terminated the method, if any.
	Err error

	resume Status
}

// String renders the task as one status line.
func (t *Task) String() string {
	detail := ""
	switch {
	case t.Err != nil:
		detail = "error"
	case t.Status == Sleeping && t.SleepTicks == vm.Forever:
		detail = "until woken"
	case t.Status == Sleeping:
		detail = fmt.Sprintf("%d ticks", t.SleepTicks)
	}
	return fmt.Sprintf("%-24s %-10s %-14s %-12s runs %d",
		t.Method.Name, t.Method.Lifecycle, t.Status, detail, t.Runs)
}

// Scheduler owns one task per script method.
type Scheduler struct {
	it      *vm.Interpreter
	tasks   []*Task
	byName  map[string]*Task
	ticks   uint64
	current *Task
	log     *slog.Logger
}

// Option is a functional option for configuring the Scheduler.
type Option func(*Scheduler)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) {
		s.log = log
	}
}

// New creates a scheduler with one task per method of the interpreter's
// program.
func New(it *vm.Interpreter, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		it:     it,
		byName: make(map[string]*Task),
		log:    logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for i, m := range it.Program().Methods {
		state, err := it.CreateState(m.EntryIndex)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", m.Name, err)
		}
		status, resume := InitialStatus(m.Lifecycle)
		t := &Task{
			Index:  i,
			Method: m,
			Status: status,
			State:  state,
			resume: resume,
		}
		if status == Sleeping {
			t.SleepTicks = vm.Forever
		}
		s.tasks = append(s.tasks, t)
		if m.Name != "" {
			s.byName[m.Name] = t
		}
	}

	s.log.Debug("Scheduler created", "tasks", len(s.tasks))
	return s, nil
}

// Tick runs one step of every runnable method in method order, then advances
// every sleeping method by one tick. Methods that fail are terminated; their
// errors are joined into the returned error.
func (s *Scheduler) Tick() error {
	s.ticks++
	var errs []error
	for _, t := range s.tasks {
		if t.Status == RunOnce || t.Status == RunContinuous {
			if err := s.step(t); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", t.Method.Name, err))
			}
		}
		if t.Status == Sleeping && t.SleepTicks != vm.Forever {
			t.SleepTicks--
			if t.SleepTicks <= 0 {
				t.SleepTicks = 0
				t.Status = t.resume
				s.log.Debug("Script woke", "script", t.Method.Name, "tick", s.ticks)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) step(t *Task) error {
	s.current = t
	defer func() { s.current = nil }()

	done, err := s.it.Step(t.State)
	if err != nil {
		t.Err = err
		t.Status = Terminated
		var re *vm.RuntimeError
		if errors.As(err, &re) {
			s.log.Error("Script terminated", "script", t.Method.Name, "tick", s.ticks,
				"error", err, "callStack", re.CallStack)
		} else {
			s.log.Error("Script terminated", "script", t.Method.Name, "tick", s.ticks, "error", err)
		}
		return err
	}

	if !done {
		if t.Status == Sleeping {
			// Put to sleep through Sleep while it was running.
			return nil
		}
		t.resume = t.Status
		t.Status = Sleeping
		t.SleepTicks = t.State.Delay
		return nil
	}

	t.Runs++
	if err := s.it.ResetState(t.State); err != nil {
		t.Err = err
		t.Status = Terminated
		return err
	}
	if t.Status == RunOnce {
		t.Status = Terminated
		s.log.Debug("Script finished", "script", t.Method.Name, "tick", s.ticks)
	}
	return nil
}

// Wake makes a sleeping method runnable again.
func (s *Scheduler) Wake(index int) error {
	t, err := s.task(index)
	if err != nil {
		return err
	}
	if t.Status != Sleeping {
		return nil
	}
	t.SleepTicks = 0
	t.Status = t.resume
	s.log.Debug("Script woken", "script", t.Method.Name, "tick", s.ticks)
	return nil
}

// Sleep suspends a runnable method for ticks, or until woken when ticks is
// vm.Forever.
func (s *Scheduler) Sleep(index int, ticks int) error {
	t, err := s.task(index)
	if err != nil {
		return err
	}
	if t.Status == Terminated {
		return nil
	}
	if t.Status != Sleeping {
		t.resume = t.Status
	}
	t.Status = Sleeping
	t.SleepTicks = ticks
	return nil
}

// SetStatus forces the status of a method. A method set to Sleeping waits
// until woken.
func (s *Scheduler) SetStatus(index int, status Status) error {
	t, err := s.task(index)
	if err != nil {
		return err
	}
	if status == Sleeping {
		return s.Sleep(index, vm.Forever)
	}
	t.Status = status
	t.resume = status
	return nil
}

// Discard drops the in-progress execution of a method so that it starts
// from its entry node the next time it runs.
func (s *Scheduler) Discard(index int) error {
	t, err := s.task(index)
	if err != nil {
		return err
	}
	return s.it.ResetState(t.State)
}

func (s *Scheduler) task(index int) (*Task, error) {
	if index < 0 || index >= len(s.tasks) {
		return nil, fmt.Errorf("no script with index %d", index)
	}
	return s.tasks[index], nil
}

// Current returns the index of the method being stepped, or -1 between
// steps.
func (s *Scheduler) Current() int {
	if s.current == nil {
		return -1
	}
	return s.current.Index
}

// Tasks returns all tasks in method order.
func (s *Scheduler) Tasks() []*Task {
	return s.tasks
}

// Lookup returns the task of the named method.
func (s *Scheduler) Lookup(name string) (*Task, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// TickCount returns the number of ticks run so far.
func (s *Scheduler) TickCount() uint64 {
	return s.ticks
}

// Done reports whether no method can run again without being woken.
func (s *Scheduler) Done() bool {
	for _, t := range s.tasks {
		switch t.Status {
		case RunOnce, RunContinuous:
			return false
		case Sleeping:
			if t.SleepTicks != vm.Forever {
				return false
			}
		}
	}
	return true
}

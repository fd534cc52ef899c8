// Package debugger provides an interactive tick stepper over a running
// program.
package debugger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/zurustar/hsvm/pkg/opcode"
	"github.com/zurustar/hsvm/pkg/scheduler"
	"github.com/zurustar/hsvm/pkg/vm"
)

const (
	prompt      = "hsvm> "
	historyFile = ".hsvm_history"

	// defaultRunLimit bounds "run" without an explicit tick count.
	defaultRunLimit = 100000
)

const helpText = `commands:
  step [n]              run n ticks (default 1)
  run [max]             run until every script is done or sleeping forever
  tasks                 list scripts and their status
  stack <script>        show the call stack of a script
  vars                  list script variables
  var <name|index>      show one script variable
  globals               list engine globals
  wake <script>         wake a sleeping script
  sleep <script> [n]    put a script to sleep for n ticks (default forever)
  reset <script>        discard the in-progress execution of a script
  timings               show time spent per operation
  help                  show this help
  quit                  exit
`

// Debugger executes stepper commands against a scheduler.
type Debugger struct {
	sched   *scheduler.Scheduler
	it      *vm.Interpreter
	timings *vm.MethodTimings
	out     io.Writer
}

// New creates a debugger. timings may be nil.
func New(sched *scheduler.Scheduler, it *vm.Interpreter, timings *vm.MethodTimings, out io.Writer) *Debugger {
	return &Debugger{
		sched:   sched,
		it:      it,
		timings: timings,
		out:     out,
	}
}

// Run reads commands from the terminal until quit or EOF.
func (d *Debugger) Run() error {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(d.complete)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	fmt.Fprintf(d.out, "%d scripts loaded. Type help for commands.\n", len(d.sched.Tasks()))
	for {
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(d.out)
			break
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read command: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)

		quit, err := d.Exec(line)
		if err != nil {
			fmt.Fprintln(d.out, "error:", err)
		}
		if quit {
			break
		}
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return nil
}

func (d *Debugger) complete(line string) []string {
	var out []string
	for _, c := range []string{"step", "run", "tasks", "stack", "vars", "var", "globals", "wake", "sleep", "reset", "timings", "help", "quit"} {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}
	return out
}

// Exec runs one command line. It reports whether the session should end.
func (d *Debugger) Exec(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	args := fields[1:]

	switch strings.ToLower(fields[0]) {
	case "step", "s":
		n, err := optionalInt(args, 1)
		if err != nil {
			return false, err
		}
		return false, d.step(n)
	case "run", "r":
		n, err := optionalInt(args, defaultRunLimit)
		if err != nil {
			return false, err
		}
		return false, d.run(n)
	case "tasks", "ps":
		d.tasks()
	case "stack", "bt":
		t, err := d.task(args)
		if err != nil {
			return false, err
		}
		d.stack(t)
	case "vars":
		d.vars()
	case "var":
		return false, d.variable(args)
	case "globals":
		d.globals()
	case "wake":
		t, err := d.task(args)
		if err != nil {
			return false, err
		}
		return false, d.sched.Wake(t.Index)
	case "sleep":
		t, err := d.task(args)
		if err != nil {
			return false, err
		}
		n, err := optionalInt(args[1:], vm.Forever)
		if err != nil {
			return false, err
		}
		return false, d.sched.Sleep(t.Index, n)
	case "reset":
		t, err := d.task(args)
		if err != nil {
			return false, err
		}
		return false, d.sched.Discard(t.Index)
	case "timings":
		d.printTimings()
	case "help", "?":
		fmt.Fprint(d.out, helpText)
	case "quit", "exit", "q":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q, type help for help", fields[0])
	}
	return false, nil
}

func optionalInt(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid count %q", args[0])
	}
	return n, nil
}

func (d *Debugger) step(n int) error {
	for i := 0; i < n; i++ {
		if err := d.sched.Tick(); err != nil {
			fmt.Fprintf(d.out, "tick %d: %v\n", d.sched.TickCount(), err)
		}
	}
	fmt.Fprintf(d.out, "tick %d\n", d.sched.TickCount())
	return nil
}

func (d *Debugger) run(limit int) error {
	start := d.sched.TickCount()
	for i := 0; i < limit && !d.sched.Done(); i++ {
		if err := d.sched.Tick(); err != nil {
			fmt.Fprintf(d.out, "tick %d: %v\n", d.sched.TickCount(), err)
		}
	}
	fmt.Fprintf(d.out, "ran %d ticks, now at tick %d\n", d.sched.TickCount()-start, d.sched.TickCount())
	return nil
}

func (d *Debugger) tasks() {
	for _, t := range d.sched.Tasks() {
		fmt.Fprintf(d.out, "%3d %s\n", t.Index, t)
	}
}

// task resolves a script by name or index from the first argument.
func (d *Debugger) task(args []string) (*scheduler.Task, error) {
	if len(args) == 0 {
		return nil, errors.New("missing script name")
	}
	if t, ok := d.sched.Lookup(args[0]); ok {
		return t, nil
	}
	if i, err := strconv.Atoi(args[0]); err == nil && i >= 0 && i < len(d.sched.Tasks()) {
		return d.sched.Tasks()[i], nil
	}
	return nil, fmt.Errorf("no script %q", args[0])
}

func (d *Debugger) stack(t *scheduler.Task) {
	if t.Err != nil {
		fmt.Fprintf(d.out, "terminated: %v\n", t.Err)
		var re *vm.RuntimeError
		if errors.As(t.Err, &re) && re.CallStack != "" {
			fmt.Fprint(d.out, re.CallStack)
		}
		return
	}
	if t.State.FrameCount() == 0 {
		fmt.Fprintln(d.out, "no active frames")
		return
	}
	fmt.Fprint(d.out, t.State.CallStack())
}

func (d *Debugger) vars() {
	for i, def := range d.it.Program().Variables {
		v, _ := d.it.Variable(i)
		fmt.Fprintf(d.out, "%3d %-24s %s\n", i, def.Name, v.Format())
	}
}

func (d *Debugger) variable(args []string) error {
	if len(args) == 0 {
		return errors.New("missing variable name")
	}
	defs := d.it.Program().Variables
	for i, def := range defs {
		if def.Name == args[0] {
			v, _ := d.it.Variable(i)
			fmt.Fprintf(d.out, "%s = %s\n", def.Name, v.Format())
			return nil
		}
	}
	if i, err := strconv.Atoi(args[0]); err == nil {
		if v, ok := d.it.Variable(i); ok {
			fmt.Fprintf(d.out, "%s = %s\n", defs[i].Name, v.Format())
			return nil
		}
	}
	return fmt.Errorf("no variable %q", args[0])
}

func (d *Debugger) globals() {
	g := d.it.Globals()
	for _, id := range g.IDs() {
		v, _ := g.Get(id)
		fmt.Fprintf(d.out, "%3d %-24s %s\n", id, g.Name(id), v.Format())
	}
}

func (d *Debugger) printTimings() {
	if d.timings == nil || len(d.timings.Calls) == 0 {
		fmt.Fprintln(d.out, "no timings recorded")
		return
	}
	ops := make([]opcode.Op, 0, len(d.timings.Calls))
	for op := range d.timings.Calls {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return d.timings.Total[ops[i]] > d.timings.Total[ops[j]] })
	for _, op := range ops {
		fmt.Fprintf(d.out, "%-20s %8d calls %12v\n", op, d.timings.Calls[op], d.timings.Total[op])
	}
}

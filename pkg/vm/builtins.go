package vm

import (
	"log/slog"
	"sort"
	"time"

	"github.com/zurustar/hsvm/pkg/opcode"
	"github.com/zurustar/hsvm/pkg/script"
)

// BuiltinFunc is the signature for engine-provided functions.
// Builtins receive their evaluated arguments in order and return a value,
// or Void() for no value.
type BuiltinFunc func(call *Call, args []Value) (Value, error)

// Builtins is the registry of engine-provided functions, keyed by operation
// id with a fallback on the operation name.
type Builtins struct {
	byOp   map[opcode.Op]BuiltinFunc
	byName map[string]BuiltinFunc
}

// NewBuiltins creates an empty registry.
func NewBuiltins() *Builtins {
	return &Builtins{
		byOp:   make(map[opcode.Op]BuiltinFunc),
		byName: make(map[string]BuiltinFunc),
	}
}

// Register registers fn under an operation name.
func (b *Builtins) Register(name string, fn BuiltinFunc) {
	b.byName[name] = fn
}

// RegisterOp registers fn under an operation id.
func (b *Builtins) RegisterOp(op opcode.Op, fn BuiltinFunc) {
	b.byOp[op] = fn
}

// Lookup returns the function registered for op.
func (b *Builtins) Lookup(op opcode.Op) (BuiltinFunc, bool) {
	if fn, ok := b.byOp[op]; ok {
		return fn, true
	}
	fn, ok := b.byName[op.String()]
	return fn, ok
}

// Names returns the registered names, sorted.
func (b *Builtins) Names() []string {
	names := make([]string, 0, len(b.byOp)+len(b.byName))
	for op := range b.byOp {
		names = append(names, op.String())
	}
	for name := range b.byName {
		if op, ok := opcode.Lookup(name); ok {
			if _, dup := b.byOp[op]; dup {
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call is the context a builtin runs in.
type Call struct {
	Op   opcode.Op
	Node script.Node

	it    *Interpreter
	state *State
}

// Delay makes the calling script yield for ticks once the builtin returns.
// Pass Forever to sleep until woken.
func (c *Call) Delay(ticks int) {
	c.it.yield(c.state, ticks)
}

// Logger returns the interpreter logger.
func (c *Call) Logger() *slog.Logger {
	return c.it.log
}

// TicksPerSecond returns the tick rate the interpreter was configured with.
func (c *Call) TicksPerSecond() int {
	return c.it.ticksPerSecond
}

// Interpreter returns the interpreter executing the call.
func (c *Call) Interpreter() *Interpreter {
	return c.it
}

// MethodTimer receives the wall time spent in each eagerly evaluated
// operation.
type MethodTimer interface {
	RecordMethodTiming(op opcode.Op, elapsed time.Duration)
}

// MethodTimings is a MethodTimer that accumulates totals per operation.
type MethodTimings struct {
	Calls map[opcode.Op]int
	Total map[opcode.Op]time.Duration
}

// NewMethodTimings creates an empty MethodTimings.
func NewMethodTimings() *MethodTimings {
	return &MethodTimings{
		Calls: make(map[opcode.Op]int),
		Total: make(map[opcode.Op]time.Duration),
	}
}

// RecordMethodTiming implements MethodTimer.
func (m *MethodTimings) RecordMethodTiming(op opcode.Op, elapsed time.Duration) {
	m.Calls[op]++
	m.Total[op] += elapsed
}

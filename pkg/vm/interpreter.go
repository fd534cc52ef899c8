// Package vm provides the iterative interpreter for level scripts.
//
// Every script method runs on its own State: a fixed-depth stack of frames,
// one per invocation being evaluated. Step advances a state until its stack
// empties or the script yields on sleep or sleep_until, so many scripts can
// be interleaved cooperatively on one goroutine.
package vm

import (
	"log/slog"
	"math"
	"time"

	"github.com/zurustar/hsvm/pkg/logger"
	"github.com/zurustar/hsvm/pkg/opcode"
	"github.com/zurustar/hsvm/pkg/script"
)

// DefaultTicksPerSecond is the default tick rate and the default polling
// interval of sleep_until.
const DefaultTicksPerSecond = 30

// Interpreter executes the nodes of one program.
// It is not safe for concurrent use; all states of a program are stepped
// from the same goroutine.
type Interpreter struct {
	program *script.Program

	variables []Value
	globals   *Globals
	builtins  *Builtins

	ticksPerSecond int
	timer          MethodTimer

	log *slog.Logger
}

// Option is a functional option for configuring the Interpreter.
type Option func(*Interpreter)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(it *Interpreter) {
		it.log = log
	}
}

// WithBuiltins sets the engine function registry.
func WithBuiltins(b *Builtins) Option {
	return func(it *Interpreter) {
		it.builtins = b
	}
}

// WithGlobals sets the engine global table.
func WithGlobals(g *Globals) Option {
	return func(it *Interpreter) {
		it.globals = g
	}
}

// WithTicksPerSecond sets the tick rate used as the default sleep_until
// polling interval.
func WithTicksPerSecond(tps int) Option {
	return func(it *Interpreter) {
		if tps > 0 {
			it.ticksPerSecond = tps
		}
	}
}

// WithMethodTimer records the duration of every eagerly evaluated operation.
func WithMethodTimer(t MethodTimer) Option {
	return func(it *Interpreter) {
		it.timer = t
	}
}

// NewInterpreter creates an interpreter for program and evaluates the
// default value of every script variable.
func NewInterpreter(program *script.Program, opts ...Option) (*Interpreter, error) {
	if err := program.Validate(); err != nil {
		return nil, err
	}
	it := &Interpreter{
		program:        program,
		ticksPerSecond: DefaultTicksPerSecond,
		log:            logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(it)
	}
	if it.builtins == nil {
		it.builtins = NewBuiltins()
	}
	if it.globals == nil {
		it.globals = NewGlobals()
	}

	if err := it.initVariables(); err != nil {
		return nil, err
	}
	it.log.Debug("Interpreter created",
		"nodes", len(program.Nodes),
		"methods", len(program.Methods),
		"variables", len(program.Variables))
	return it, nil
}

// Program returns the program being executed.
func (it *Interpreter) Program() *script.Program {
	return it.program
}

// CreateState creates a state positioned at the entry node.
func (it *Interpreter) CreateState(entry uint16) (*State, error) {
	state := NewState(entry)
	if err := it.ResetState(state); err != nil {
		return nil, err
	}
	return state, nil
}

// ResetState rewinds state to the start of its entry node.
func (it *Interpreter) ResetState(state *State) error {
	state.Reset()
	node, ok := it.program.Node(state.OriginalNodeIndex)
	if !ok {
		return newRuntimeErrorf(ErrorMalformedNode, "entry index %d out of range", state.OriginalNodeIndex)
	}
	return it.pushEntry(state, state.OriginalNodeIndex, node)
}

// Step runs state until its call stack empties or it yields.
// It returns true when the entry expression has completed, in which case
// state.Result holds its value.
func (it *Interpreter) Step(state *State) (bool, error) {
	state.Yield = false
	state.Delay = 0
	for state.FrameCount() > 0 && !state.Yield {
		if err := it.interpretFrame(state); err != nil {
			return false, withContext(err, state)
		}
	}
	return !state.Yield, nil
}

// Run evaluates the entry node to completion. It fails if the expression
// yields.
func (it *Interpreter) Run(entry uint16) (Value, error) {
	state, err := it.CreateState(entry)
	if err != nil {
		return Value{}, err
	}
	done, err := it.Step(state)
	if err != nil {
		return Value{}, err
	}
	if !done {
		return Value{}, newRuntimeErrorf(ErrorInvalidOperation, "expression at %d yielded", entry)
	}
	return state.Result, nil
}

// pushEntry pushes the first frame of a state. Entries that are not
// themselves invocations or scopes are wrapped in a synthetic begin so that
// their value is delivered through the usual completion path.
func (it *Interpreter) pushEntry(state *State, index uint16, node script.Node) error {
	switch node.NodeType {
	case script.BuiltinInvocation, script.ScriptInvocation:
		return it.pushInvocation(state, node)
	case script.Scope:
		return it.pushScope(state, node)
	}
	begin := script.Node{
		OperationID:  opcode.Begin,
		DataType:     node.DataType,
		NodeType:     script.BuiltinInvocation,
		NextIndex:    script.Sentinel,
		NextCheckval: script.Sentinel,
	}
	head := script.Node{
		OperationID:  opcode.Begin,
		DataType:     script.MethodOrOperator,
		NodeType:     script.Expression,
		NextIndex:    index,
		NextCheckval: node.Checkval,
	}
	return state.Push(begin, head)
}

// follow resolves a linked index and verifies its check value.
func (it *Interpreter) follow(index, checkval uint16) (script.Node, error) {
	node, ok := it.program.Node(index)
	if !ok {
		return script.Node{}, newRuntimeErrorf(ErrorMalformedNode, "linked index %d out of range", index)
	}
	if node.Checkval != checkval {
		return script.Node{}, NewCheckValueMismatchError(index, checkval, node.Checkval)
	}
	return node, nil
}

func (it *Interpreter) interpretFrame(state *State) error {
	top := state.Top()
	switch top.OriginatingNode.NodeType {
	case script.BuiltinInvocation, script.Scope:
		if top.Next != script.Sentinel {
			node, err := it.follow(top.Next, top.NextCheck)
			if err != nil {
				return err
			}
			top.Next = script.Sentinel
			return it.interpret(state, node)
		}
		return it.dispatch(state)
	case script.ScriptInvocation:
		return it.interpretScriptFrame(state)
	default:
		return newRuntimeErrorf(ErrorUnsupportedNode, "frame originating from %s", top.OriginatingNode.NodeType)
	}
}

// interpretScriptFrame evaluates the body of the called method on the first
// pass and completes with its value on the second.
func (it *Interpreter) interpretScriptFrame(state *State) error {
	top := state.Top()
	if !top.started {
		index := int(top.Current.OperationID)
		if index >= len(it.program.Methods) {
			return newRuntimeErrorf(ErrorMalformedNode, "script invocation of undefined method %d", index)
		}
		entry := it.program.Methods[index].EntryIndex
		node, ok := it.program.Node(entry)
		if !ok {
			return newRuntimeErrorf(ErrorMalformedNode, "method %d entry index %d out of range", index, entry)
		}
		top.started = true
		return it.interpret(state, node)
	}
	if top.OriginatingNode.DataType == script.Void {
		return it.completeVoid(state)
	}
	v, ok := top.Locals.Dequeue()
	if !ok {
		v = Void()
	}
	return it.complete(state, v)
}

// interpret evaluates node in the context of the innermost frame.
func (it *Interpreter) interpret(state *State, node script.Node) error {
	switch node.NodeType {
	case script.BuiltinInvocation, script.ScriptInvocation:
		return it.pushInvocation(state, node)
	case script.Scope:
		return it.pushScope(state, node)
	case script.Expression:
		v, err := it.literal(node)
		if err != nil {
			return err
		}
		return it.produce(state, node, v)
	case script.VariableAccess:
		v, err := it.load(node)
		if err != nil {
			return err
		}
		return it.produce(state, node, v)
	default:
		return newRuntimeErrorf(ErrorUnsupportedNode, "cannot evaluate %s node", node.NodeType)
	}
}

func (it *Interpreter) produce(state *State, node script.Node, v Value) error {
	top := state.Top()
	top.Locals.Enqueue(v)
	top.Current = node
	return nil
}

// pushInvocation validates the operator head of an invocation and pushes
// its frame.
func (it *Interpreter) pushInvocation(state *State, node script.Node) error {
	head, err := it.follow(node.ChildIndex(), node.ChildCheckval())
	if err != nil {
		return err
	}
	if head.NodeType != script.Expression || head.DataType != script.MethodOrOperator {
		return newRuntimeErrorf(ErrorMalformedNode, "invocation head is %s %s", head.NodeType, head.DataType)
	}
	if head.OperationID != node.OperationID {
		return newRuntimeErrorf(ErrorMalformedNode, "invocation of %s has head %s", node.OperationID, head.OperationID)
	}
	if top := state.Top(); top != nil {
		top.Current = node
	}
	return state.Push(node, head)
}

// pushScope pushes a begin frame over the body of a scope node.
func (it *Interpreter) pushScope(state *State, node script.Node) error {
	if top := state.Top(); top != nil {
		top.Current = node
	}
	frame := node
	frame.OperationID = opcode.Begin
	head := script.Node{
		OperationID:  opcode.Begin,
		DataType:     script.MethodOrOperator,
		NodeType:     script.Expression,
		NextIndex:    node.ChildIndex(),
		NextCheckval: node.ChildCheckval(),
	}
	return state.Push(frame, head)
}

// literal decodes the payload of an expression node.
func (it *Interpreter) literal(node script.Node) (Value, error) {
	t := node.DataType
	switch t.Storage() {
	case script.StorageVoid:
		return Void(), nil
	case script.StorageBool:
		return FromBool(node.Byte(3) == 1), nil
	case script.StorageFloat:
		return FromFloat(math.Float32frombits(node.Data)).As(t), nil
	case script.StorageShort, script.StorageInt:
		return FromRaw(t, node.Data), nil
	}

	switch t {
	case script.MethodOrOperator:
		return Value{}, newRuntimeErrorf(ErrorMalformedNode, "operator head %s evaluated as a value", node.OperationID)
	case script.String:
		s, err := it.program.String(node.StringOffset)
		if err != nil {
			return Value{}, newRuntimeErrorf(ErrorMalformedNode, "%v", err)
		}
		return FromString(s), nil
	case script.ScriptReference, script.AIScript:
		if node.Low16() == script.Sentinel {
			return FromRef(t, nil), nil
		}
		return FromRef(t, MethodRef(node.Low16())), nil
	case script.List:
		obj, err := it.program.Object(script.Entity, node.Low16())
		if err != nil {
			return Value{}, newRuntimeErrorf(ErrorMalformedNode, "%v", err)
		}
		if obj == nil {
			return FromRef(t, ObjectList{}), nil
		}
		return FromRef(t, ObjectList{obj}), nil
	}

	table := t
	if isEntity(t) {
		table = script.Entity
	}
	obj, err := it.program.Object(table, node.Low16())
	if err != nil {
		return Value{}, newRuntimeErrorf(ErrorMalformedNode, "%v", err)
	}
	return FromRef(t, obj), nil
}

// isEntity reports whether t is one of the kinds resolved through the
// scenario's shared object table.
func isEntity(t script.DataType) bool {
	switch t {
	case script.Entity, script.Unit, script.Vehicle, script.WeaponReference, script.Device, script.Scenery:
		return true
	default:
		return false
	}
}

// prepareNextArgument schedules the sibling of the current child. It
// reports whether one remained.
func (it *Interpreter) prepareNextArgument(state *State) bool {
	top := state.Top()
	if !top.Current.HasNext() {
		return false
	}
	top.Next = top.Current.NextIndex
	top.NextCheck = top.Current.NextCheckval
	return true
}

// complete pops the innermost frame and delivers v to its parent, or to
// state.Result when it was the last frame.
func (it *Interpreter) complete(state *State, v Value) error {
	top := state.Top()
	if top == nil {
		return NewRuntimeError(ErrorStackUnderflow, "complete on an empty call stack")
	}
	dest := top.OriginatingNode.DataType
	if dest == script.Void {
		return it.completeVoid(state)
	}
	if v.Type != dest {
		var err error
		if v, err = castTo(v, dest); err != nil {
			return err
		}
	}
	if _, err := state.Pop(); err != nil {
		return err
	}
	if top := state.Top(); top != nil {
		top.Locals.Enqueue(v)
	} else {
		state.Result = v
	}
	return nil
}

func (it *Interpreter) completeVoid(state *State) error {
	_, err := state.Pop()
	return err
}

func (it *Interpreter) yield(state *State, ticks int) {
	state.Yield = true
	state.Delay = ticks
	it.log.Debug("Script yielded", "entry", state.OriginalNodeIndex, "ticks", ticks)
}

// dispatch evaluates the operation of the innermost builtin frame once the
// frame has no child scheduled.
func (it *Interpreter) dispatch(state *State) error {
	top := state.Top()
	op := top.OriginatingNode.OperationID

	switch op {
	case opcode.Begin, opcode.BeginRandom:
		return it.begin(state)
	case opcode.If:
		return it.ifThen(state)
	case opcode.And:
		return it.and(state)
	case opcode.Or:
		return it.or(state)
	case opcode.Set:
		return it.set(state)
	case opcode.SleepUntil:
		return it.sleepUntil(state)
	}

	if it.prepareNextArgument(state) {
		return nil
	}

	var start time.Time
	if it.timer != nil {
		start = time.Now()
	}
	err := it.evaluate(state, op)
	if it.timer != nil {
		it.timer.RecordMethodTiming(op, time.Since(start))
	}
	return err
}

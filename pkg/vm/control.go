package vm

import (
	"github.com/zurustar/hsvm/pkg/script"
)

// Control-flow operations are dispatched before their arguments are
// gathered. Each call advances the frame by at most one child; the number of
// values in Locals tells the handler which phase it is in.

// begin evaluates its arguments in order and completes with the last value.
func (it *Interpreter) begin(state *State) error {
	remaining := it.prepareNextArgument(state)
	top := state.Top()

	result, ok := top.Locals.Dequeue()
	if !ok {
		result = Void()
	}
	if remaining {
		return nil
	}
	if top.OriginatingNode.DataType == script.Void {
		return it.completeVoid(state)
	}
	return it.complete(state, result)
}

// ifThen evaluates the condition, then exactly one branch.
func (it *Interpreter) ifThen(state *State) error {
	top := state.Top()
	void := top.OriginatingNode.DataType == script.Void

	switch top.Locals.Len() {
	case 0:
		if !it.prepareNextArgument(state) {
			return newRuntimeErrorf(ErrorMalformedNode, "if without a condition")
		}
		return nil

	case 1:
		cond, _ := top.Locals.Peek()
		if !it.prepareNextArgument(state) {
			return newRuntimeErrorf(ErrorMalformedNode, "if without a branch")
		}
		if void {
			// Keeps the count at two when the branch produces no value.
			top.Locals.Enqueue(Void())
		}
		if cond.Bool() {
			return nil
		}

		then, err := it.follow(top.Next, top.NextCheck)
		if err != nil {
			return err
		}
		if then.HasNext() {
			top.Next = then.NextIndex
			top.NextCheck = then.NextCheckval
			return nil
		}
		if void {
			return it.completeVoid(state)
		}
		return it.complete(state, zeroValue(top.OriginatingNode.DataType))

	default:
		if void {
			return it.completeVoid(state)
		}
		top.Locals.Dequeue()
		result, _ := top.Locals.Dequeue()
		return it.complete(state, result)
	}
}

// and completes false at the first false operand without evaluating the
// rest, or true when every operand was true.
func (it *Interpreter) and(state *State) error {
	remaining := it.prepareNextArgument(state)
	top := state.Top()
	if v, ok := top.Locals.Dequeue(); ok && !v.Bool() {
		return it.complete(state, FromBool(false))
	}
	if !remaining {
		return it.complete(state, FromBool(true))
	}
	return nil
}

// or completes true at the first true operand without evaluating the rest,
// or false when every operand was false.
func (it *Interpreter) or(state *State) error {
	remaining := it.prepareNextArgument(state)
	top := state.Top()
	if v, ok := top.Locals.Dequeue(); ok && v.Bool() {
		return it.complete(state, FromBool(true))
	}
	if !remaining {
		return it.complete(state, FromBool(false))
	}
	return nil
}

// set writes its second operand into the variable its first operand was
// read from.
func (it *Interpreter) set(state *State) error {
	top := state.Top()
	if top.Locals.Len() != 2 {
		if !it.prepareNextArgument(state) {
			return newRuntimeErrorf(ErrorMalformedNode, "set takes a variable and a value, got %d operands", top.Locals.Len())
		}
		return nil
	}

	target, _ := top.Locals.Dequeue()
	value, _ := top.Locals.Dequeue()
	slot, ok := target.Slot()
	if !ok {
		return newRuntimeErrorf(ErrorInvalidOperation, "set target of kind %s is not a variable", target.Type)
	}
	if err := it.store(slot, value); err != nil {
		return err
	}
	return it.completeVoid(state)
}

// sleepUntil re-evaluates its condition every frequency ticks until it is
// true or the optional timeout has elapsed.
func (it *Interpreter) sleepUntil(state *State) error {
	if it.prepareNextArgument(state) {
		return nil
	}
	top := state.Top()
	cond, ok := top.Locals.Dequeue()
	if !ok {
		return newRuntimeErrorf(ErrorMalformedNode, "sleep_until without a condition")
	}
	frequency := it.ticksPerSecond
	if v, ok := top.Locals.Dequeue(); ok {
		frequency = int(v.Short())
	}
	timeout := -1
	if v, ok := top.Locals.Dequeue(); ok {
		timeout = int(v.Int())
	}

	if cond.Bool() || (timeout >= 0 && state.waited >= timeout) {
		state.waited = 0
		return it.complete(state, FromBool(cond.Bool()))
	}

	node := top.OriginatingNode
	if _, err := state.Pop(); err != nil {
		return err
	}
	if err := it.pushInvocation(state, node); err != nil {
		return err
	}
	delay := max(frequency, 1)
	if timeout >= 0 {
		// Wake in time to give up exactly when the timeout is reached.
		delay = min(delay, max(timeout-state.waited, 1))
	}
	state.waited += delay
	it.yield(state, delay)
	return nil
}

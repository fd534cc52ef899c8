package vm

import (
	"errors"

	"github.com/zurustar/hsvm/pkg/opcode"
	"github.com/zurustar/hsvm/pkg/script"
)

// evaluate runs an eager operation once all its arguments are in Locals.
func (it *Interpreter) evaluate(state *State, op opcode.Op) error {
	top := state.Top()

	switch op {
	case opcode.Sleep:
		ticks, ok := top.Locals.Dequeue()
		if !ok {
			return newRuntimeErrorf(ErrorMalformedNode, "sleep without a duration")
		}
		// Negative durations wake on the next tick like sleep(0); only
		// builtins can sleep until woken.
		it.yield(state, max(int(ticks.Short()), 0))
		return it.completeVoid(state)

	case opcode.Not:
		args := top.Locals.Drain()
		if len(args) != 1 {
			return arity(op, 1, len(args))
		}
		return it.complete(state, FromBool(!args[0].Bool()))

	case opcode.Equals, opcode.NotEquals:
		args := top.Locals.Drain()
		if len(args) != 2 {
			return arity(op, 2, len(args))
		}
		eq, err := args[0].Equal(args[1])
		if err != nil {
			return err
		}
		return it.complete(state, FromBool(eq == (op == opcode.Equals)))

	case opcode.GreaterThan, opcode.LessThan, opcode.GreaterThanOrEqual, opcode.LessThanOrEqual:
		args := top.Locals.Drain()
		if len(args) != 2 {
			return arity(op, 2, len(args))
		}
		c, err := args[0].Compare(args[1])
		if err != nil {
			return err
		}
		var r bool
		switch op {
		case opcode.GreaterThan:
			r = c > 0
		case opcode.LessThan:
			r = c < 0
		case opcode.GreaterThanOrEqual:
			r = c >= 0
		default:
			r = c <= 0
		}
		return it.complete(state, FromBool(r))

	case opcode.Add, opcode.Subtract, opcode.Multiply, opcode.Divide, opcode.Min, opcode.Max:
		args := top.Locals.Drain()
		if len(args) == 0 {
			return arity(op, 1, 0)
		}
		acc := args[0]
		for _, arg := range args[1:] {
			var err error
			switch op {
			case opcode.Add:
				acc, err = acc.Add(arg)
			case opcode.Subtract:
				acc, err = acc.Sub(arg)
			case opcode.Multiply:
				acc, err = acc.Mul(arg)
			case opcode.Divide:
				acc, err = acc.Div(arg)
			case opcode.Min:
				acc, err = acc.Min(arg)
			default:
				acc, err = acc.Max(arg)
			}
			if err != nil {
				return err
			}
		}
		return it.complete(state, acc)
	}

	return it.dispatchMethod(state, op)
}

// dispatchMethod hands the gathered arguments to the registered builtin.
func (it *Interpreter) dispatchMethod(state *State, op opcode.Op) error {
	top := state.Top()
	fn, ok := it.builtins.Lookup(op)
	if !ok {
		return NewUndefinedFunctionError(op)
	}
	call := &Call{
		Op:    op,
		Node:  top.OriginatingNode,
		it:    it,
		state: state,
	}
	result, err := fn(call, top.Locals.Drain())
	if err != nil {
		var re *RuntimeError
		if errors.As(err, &re) {
			return re
		}
		return &RuntimeError{
			Type:    ErrorInvalidOperation,
			Message: op.String() + ": " + err.Error(),
			Err:     err,
		}
	}
	if top.OriginatingNode.DataType == script.Void {
		return it.completeVoid(state)
	}
	return it.complete(state, result)
}

func arity(op opcode.Op, want, got int) error {
	return newRuntimeErrorf(ErrorMalformedNode, "%s takes %d operands, got %d", op, want, got)
}

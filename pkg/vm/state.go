package vm

import (
	"fmt"
	"strings"

	"github.com/emirpasic/gods/queues/arrayqueue"
	"github.com/zurustar/hsvm/pkg/script"
)

// MaxFrames is the fixed depth of a call stack.
const MaxFrames = 32

// Locals is the FIFO of values produced by a frame's evaluated children.
type Locals struct {
	q *arrayqueue.Queue
}

func newLocals() Locals {
	return Locals{q: arrayqueue.New()}
}

// Enqueue appends v.
func (l Locals) Enqueue(v Value) {
	l.q.Enqueue(v)
}

// Dequeue removes and returns the oldest value.
func (l Locals) Dequeue() (Value, bool) {
	if l.q == nil {
		return Value{}, false
	}
	v, ok := l.q.Dequeue()
	if !ok {
		return Value{}, false
	}
	return v.(Value), true
}

// Peek returns the oldest value without removing it.
func (l Locals) Peek() (Value, bool) {
	if l.q == nil {
		return Value{}, false
	}
	v, ok := l.q.Peek()
	if !ok {
		return Value{}, false
	}
	return v.(Value), true
}

// Len returns the number of queued values.
func (l Locals) Len() int {
	if l.q == nil {
		return 0
	}
	return l.q.Size()
}

// Drain removes and returns all queued values in order.
func (l Locals) Drain() []Value {
	out := make([]Value, 0, l.Len())
	for {
		v, ok := l.Dequeue()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// StackFrame is the activation record of one invocation being evaluated.
type StackFrame struct {
	Locals Locals

	// OriginatingNode is the invocation or scope node that pushed the frame.
	OriginatingNode script.Node
	// Current is the most recently evaluated child. Its sibling link is the
	// next argument.
	Current script.Node
	// Next is the index of a child scheduled for evaluation, or
	// script.Sentinel.
	Next      uint16
	NextCheck uint16

	started bool
}

// State is the call stack and yield status of one script method.
type State struct {
	frames [MaxFrames]StackFrame
	top    int

	// OriginalNodeIndex is the entry node the state was created from.
	OriginalNodeIndex uint16

	// Yield is set when the last step stopped because the script asked to wait.
	Yield bool
	// Delay is the wait requested by the last yield, in ticks.
	// Forever means the script sleeps until it is woken.
	Delay int

	// Result is the value of the entry expression once the stack empties.
	Result Value

	// waited accumulates the ticks spent in the current sleep_until.
	waited int
}

// Forever is the Delay of a script that sleeps until woken.
const Forever = -1

// NewState creates an empty state for the given entry node.
func NewState(entry uint16) *State {
	return &State{
		top:               -1,
		OriginalNodeIndex: entry,
	}
}

// Reset empties the call stack and clears the yield status.
func (s *State) Reset() {
	for i := 0; i <= s.top; i++ {
		s.frames[i] = StackFrame{}
	}
	s.top = -1
	s.Yield = false
	s.Delay = 0
	s.Result = Void()
	s.waited = 0
}

// FrameCount returns the number of active frames.
func (s *State) FrameCount() int {
	return s.top + 1
}

// Top returns the innermost frame, or nil when the stack is empty.
func (s *State) Top() *StackFrame {
	if s.top < 0 {
		return nil
	}
	return &s.frames[s.top]
}

// Push adds a frame for originating with its first child current.
func (s *State) Push(originating, current script.Node) error {
	if s.top+1 >= MaxFrames {
		return NewStackOverflowError(s.top + 2)
	}
	s.top++
	s.frames[s.top] = StackFrame{
		Locals:          newLocals(),
		OriginatingNode: originating,
		Current:         current,
		Next:            script.Sentinel,
		NextCheck:       script.Sentinel,
	}
	return nil
}

// Pop removes and returns the innermost frame.
func (s *State) Pop() (StackFrame, error) {
	if s.top < 0 {
		return StackFrame{}, NewRuntimeError(ErrorStackUnderflow, "pop on an empty call stack")
	}
	f := s.frames[s.top]
	s.frames[s.top] = StackFrame{}
	s.top--
	return f, nil
}

// Frames returns a copy of the active frames, outermost first.
func (s *State) Frames() []StackFrame {
	return append([]StackFrame(nil), s.frames[:s.top+1]...)
}

// CallStack renders one line per active frame, outermost first.
func (s *State) CallStack() string {
	var sb strings.Builder
	for i := 0; i <= s.top; i++ {
		f := &s.frames[i]
		fmt.Fprintf(&sb, "#%d at %s %s consuming %s %s", i,
			f.OriginatingNode.NodeType, f.OriginatingNode.OperationID,
			f.Current.NodeType, f.Current.OperationID)
		if f.Next != script.Sentinel {
			fmt.Fprintf(&sb, " next %d", f.Next)
		}
		fmt.Fprintf(&sb, " locals %d\n", f.Locals.Len())
	}
	return sb.String()
}

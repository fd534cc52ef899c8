package script

import (
	"errors"
	"fmt"
	"math"

	"github.com/zurustar/hsvm/pkg/opcode"
	"golang.org/x/text/transform"
)

// Expr is a tree-shaped description of a syntax subtree.
// The Builder flattens it into the node table.
type Expr struct {
	Kind   NodeType
	Type   DataType
	Op     opcode.Op
	Data   uint32
	Text   string
	Args   []Expr
	Global bool
}

// Call describes a builtin invocation of op producing a value of type t.
func Call(t DataType, op opcode.Op, args ...Expr) Expr {
	return Expr{Kind: BuiltinInvocation, Type: t, Op: op, Args: args}
}

// Invoke describes a call of the script method with the given index.
func Invoke(t DataType, method uint16) Expr {
	return Expr{Kind: ScriptInvocation, Type: t, Op: opcode.Op(method)}
}

// Block describes a scope node whose body is evaluated like begin.
func Block(t DataType, body ...Expr) Expr {
	return Expr{Kind: Scope, Type: t, Op: opcode.Begin, Args: body}
}

// Bool describes a boolean literal.
func Bool(v bool) Expr {
	var data uint32
	if v {
		data = 1
	}
	return Expr{Kind: Expression, Type: Boolean, Data: data}
}

// ShortLit describes a 16-bit integer literal.
func ShortLit(v int16) Expr {
	return Expr{Kind: Expression, Type: Short, Data: uint32(uint16(v))}
}

// IntLit describes a 32-bit integer literal.
func IntLit(v int32) Expr {
	return Expr{Kind: Expression, Type: Int, Data: uint32(v)}
}

// Real describes a 32-bit float literal.
func Real(v float32) Expr {
	return Expr{Kind: Expression, Type: Float, Data: math.Float32bits(v)}
}

// Text describes a string literal.
func Text(s string) Expr {
	return Expr{Kind: Expression, Type: String, Text: s}
}

// Object describes a literal of an enumerated kind that indexes a definition
// table (or, for short-stored kinds, carries the value itself).
func Object(t DataType, index uint16) Expr {
	return Expr{Kind: Expression, Type: t, Data: uint32(index)}
}

// Var describes a read of script variable index.
func Var(t DataType, index uint16) Expr {
	return Expr{Kind: VariableAccess, Type: t, Data: uint32(index)}
}

// GlobalVar describes a read of engine global id.
func GlobalVar(t DataType, id uint16) Expr {
	return Expr{Kind: VariableAccess, Type: t, Data: DatumRef(id, Sentinel), Global: true}
}

// Builder lays out expression trees as a flat node table with sibling links
// and check values, the way a compiled level stores them.
type Builder struct {
	nodes     []Node
	strings   []byte
	stringAt  map[string]uint16
	encoding  string
	methods   []MethodDefinition
	variables []VariableDefinition
	objects   map[DataType][]any
	errs      []error
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithEncoding makes the builder encode string literals with the named encoding.
func WithEncoding(name string) BuilderOption {
	return func(b *Builder) {
		b.encoding = name
	}
}

// NewBuilder creates an empty builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		stringAt: make(map[string]uint16),
		encoding: EncodingUTF8,
		objects:  make(map[DataType][]any),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit appends e to the node table and returns the index of its root node.
func (b *Builder) Emit(e Expr) uint16 {
	switch e.Kind {
	case BuiltinInvocation, ScriptInvocation, Scope:
		return b.emitInvocation(e)
	default:
		idx := b.add(Node{
			OperationID: e.Op,
			DataType:    e.Type,
			NodeType:    e.Kind,
			Data:        e.Data,
		})
		if e.Kind == Expression && e.Type == String {
			b.nodes[idx].StringOffset = b.intern(e.Text)
		}
		if e.Kind == VariableAccess && !e.Global {
			b.nodes[idx].Data = e.Data & 0xFFFF
		}
		return idx
	}
}

func (b *Builder) emitInvocation(e Expr) uint16 {
	idx := b.add(Node{
		OperationID: e.Op,
		DataType:    e.Type,
		NodeType:    e.Kind,
	})
	if idx == Sentinel {
		return idx
	}

	var first uint16
	prev := -1
	if e.Kind == Scope {
		first = Sentinel
	} else {
		first = b.add(Node{
			OperationID: e.Op,
			DataType:    MethodOrOperator,
			NodeType:    Expression,
		})
		prev = int(first)
	}

	for _, arg := range e.Args {
		child := b.Emit(arg)
		if prev < 0 {
			first = child
		} else {
			b.link(uint16(prev), child)
		}
		prev = int(child)
	}

	if first == Sentinel {
		b.errs = append(b.errs, fmt.Errorf("node %d: scope has an empty body", idx))
		return idx
	}
	b.nodes[idx].Data = DatumRef(first, b.nodes[first].Checkval)
	return idx
}

func (b *Builder) add(n Node) uint16 {
	idx := len(b.nodes)
	if idx >= int(Sentinel) {
		b.errs = append(b.errs, errors.New("node table is full"))
		return Sentinel
	}
	n.Checkval = CheckvalFor(idx)
	n.NextIndex = Sentinel
	n.NextCheckval = Sentinel
	b.nodes = append(b.nodes, n)
	return uint16(idx)
}

func (b *Builder) link(from, to uint16) {
	if from == Sentinel || to == Sentinel {
		return
	}
	b.nodes[from].NextIndex = to
	b.nodes[from].NextCheckval = b.nodes[to].Checkval
}

func (b *Builder) intern(s string) uint16 {
	if off, ok := b.stringAt[s]; ok {
		return off
	}
	enc, err := LookupEncoding(b.encoding)
	if err != nil {
		b.errs = append(b.errs, err)
		return 0
	}
	encoded, _, err := transform.Bytes(enc.NewEncoder(), []byte(s))
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("failed to encode %q: %w", s, err))
		return 0
	}
	if len(b.strings)+len(encoded)+1 > int(Sentinel) {
		b.errs = append(b.errs, errors.New("string table is full"))
		return 0
	}
	off := uint16(len(b.strings))
	b.strings = append(b.strings, encoded...)
	b.strings = append(b.strings, 0)
	b.stringAt[s] = off
	return off
}

// Method emits body and registers it as a script method. It returns the
// method index.
func (b *Builder) Method(name string, lifecycle Lifecycle, returnType DataType, body Expr) uint16 {
	entry := b.Emit(body)
	b.methods = append(b.methods, MethodDefinition{
		Name:       name,
		Lifecycle:  lifecycle,
		ReturnType: returnType,
		EntryIndex: entry,
	})
	return uint16(len(b.methods) - 1)
}

// Variable emits the default-value expression and registers a script
// variable. It returns the variable index.
func (b *Builder) Variable(name string, t DataType, value Expr) uint16 {
	def := b.Emit(value)
	b.variables = append(b.variables, VariableDefinition{
		Name:         name,
		DataType:     t,
		DefaultIndex: def,
	})
	return uint16(len(b.variables) - 1)
}

// Objects sets the definition table for kind t.
func (b *Builder) Objects(t DataType, table ...any) {
	b.objects[t] = table
}

// Node returns a copy of the node at index, for inspection in tests.
func (b *Builder) Node(index uint16) Node {
	return b.nodes[index]
}

// Len returns the number of emitted nodes.
func (b *Builder) Len() int {
	return len(b.nodes)
}

// Program returns the built program.
func (b *Builder) Program() (*Program, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	p := &Program{
		Nodes:     append([]Node(nil), b.nodes...),
		Strings:   append([]byte(nil), b.strings...),
		Encoding:  b.encoding,
		Methods:   append([]MethodDefinition(nil), b.methods...),
		Variables: append([]VariableDefinition(nil), b.variables...),
		Objects:   b.objects,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

package vm

import (
	"sort"

	"github.com/zurustar/hsvm/pkg/script"
)

// Globals is the table of engine globals, addressed by id from variable
// accesses whose upper payload half is script.Sentinel.
type Globals struct {
	values map[uint16]Value
	names  map[uint16]string
}

// NewGlobals creates an empty table.
func NewGlobals() *Globals {
	return &Globals{
		values: make(map[uint16]Value),
		names:  make(map[uint16]string),
	}
}

// Register declares global id with an initial value.
func (g *Globals) Register(id uint16, name string, initial Value) {
	g.names[id] = name
	g.values[id] = initial.withSlot(Slot{Index: id, Global: true})
}

// Get returns the value of global id.
func (g *Globals) Get(id uint16) (Value, bool) {
	v, ok := g.values[id]
	return v, ok
}

// Set replaces the value of a registered global id.
func (g *Globals) Set(id uint16, v Value) error {
	old, ok := g.values[id]
	if !ok {
		return NewUndefinedVariableError(id, true)
	}
	if old.Type != script.Void && v.Type != old.Type {
		var err error
		if v, err = castTo(v, old.Type); err != nil {
			return err
		}
	}
	g.values[id] = v.withSlot(Slot{Index: id, Global: true})
	return nil
}

// Name returns the name global id was registered with.
func (g *Globals) Name(id uint16) string {
	return g.names[id]
}

// IDs returns the registered ids in ascending order.
func (g *Globals) IDs() []uint16 {
	ids := make([]uint16, 0, len(g.values))
	for id := range g.values {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Variable returns the current value of script variable index.
func (it *Interpreter) Variable(index int) (Value, bool) {
	if index < 0 || index >= len(it.variables) {
		return Value{}, false
	}
	return it.variables[index], true
}

// Globals returns the engine global table.
func (it *Interpreter) Globals() *Globals {
	return it.globals
}

func (it *Interpreter) load(node script.Node) (Value, error) {
	index := node.Low16()
	if node.High16() == script.Sentinel {
		v, ok := it.globals.Get(index)
		if !ok {
			return Value{}, NewUndefinedVariableError(index, true)
		}
		return v, nil
	}
	if int(index) >= len(it.variables) {
		return Value{}, NewUndefinedVariableError(index, false)
	}
	return it.variables[index], nil
}

func (it *Interpreter) store(slot Slot, v Value) error {
	if slot.Global {
		return it.globals.Set(slot.Index, v)
	}
	if int(slot.Index) >= len(it.variables) {
		return NewUndefinedVariableError(slot.Index, false)
	}
	if t := it.program.Variables[slot.Index].DataType; t != script.Void && v.Type != t {
		var err error
		if v, err = castTo(v, t); err != nil {
			return err
		}
	}
	it.variables[slot.Index] = v.withSlot(slot)
	return nil
}

// initVariables evaluates every default-value expression in declaration
// order. Initializers may read variables declared before them.
func (it *Interpreter) initVariables() error {
	it.variables = make([]Value, len(it.program.Variables))
	for i := range it.variables {
		it.variables[i] = zeroValue(it.program.Variables[i].DataType).withSlot(Slot{Index: uint16(i)})
	}
	for i, def := range it.program.Variables {
		state, err := it.CreateState(def.DefaultIndex)
		if err != nil {
			return err
		}
		done, err := it.Step(state)
		if err != nil {
			return err
		}
		if !done {
			return newRuntimeErrorf(ErrorYieldInInitialize, "initializer of %s yielded", def.Name)
		}
		if err := it.store(Slot{Index: uint16(i)}, state.Result); err != nil {
			return err
		}
	}
	return nil
}

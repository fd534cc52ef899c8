package script

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// MethodDefinition describes one script method: a named entry node with a
// lifecycle that decides when the scheduler runs it.
type MethodDefinition struct {
	Name       string
	Lifecycle  Lifecycle
	ReturnType DataType
	EntryIndex uint16
}

// VariableDefinition describes one script variable and the node that
// computes its initial value.
type VariableDefinition struct {
	Name         string
	DataType     DataType
	DefaultIndex uint16
}

// ObjectRef is the placeholder reference produced for a game-object literal
// when the program carries no object table for its kind.
type ObjectRef struct {
	Type  DataType
	Index uint16
}

// Program is the immutable input of an interpreter.
type Program struct {
	Nodes     []Node
	Strings   []byte
	Encoding  string
	Methods   []MethodDefinition
	Variables []VariableDefinition

	// Objects holds the definition tables that enumerated game-object
	// literals index into, keyed by kind.
	Objects map[DataType][]any
}

// Encodings supported for the string table.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
	EncodingShiftJIS    = "shift_jis"
)

// LookupEncoding returns the text encoding registered under name.
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EncodingUTF8, "utf8":
		return unicode.UTF8, nil
	case EncodingWindows1252, "cp1252", "latin1":
		return charmap.Windows1252, nil
	case EncodingShiftJIS, "sjis", "shift-jis":
		return japanese.ShiftJIS, nil
	default:
		return nil, fmt.Errorf("unsupported string encoding: %s", name)
	}
}

// Validate checks the cross references of the program tables.
func (p *Program) Validate() error {
	if len(p.Nodes) >= int(Sentinel) {
		return fmt.Errorf("program has %d nodes, maximum is %d", len(p.Nodes), Sentinel-1)
	}
	for i, m := range p.Methods {
		if int(m.EntryIndex) >= len(p.Nodes) {
			return fmt.Errorf("method %d (%s): entry index %d out of range", i, m.Name, m.EntryIndex)
		}
	}
	for i, v := range p.Variables {
		if int(v.DefaultIndex) >= len(p.Nodes) {
			return fmt.Errorf("variable %d (%s): default index %d out of range", i, v.Name, v.DefaultIndex)
		}
	}
	if _, err := LookupEncoding(p.Encoding); err != nil {
		return err
	}
	return nil
}

// Node returns the node at index and whether it exists.
func (p *Program) Node(index uint16) (Node, bool) {
	if int(index) >= len(p.Nodes) {
		return Node{}, false
	}
	return p.Nodes[index], true
}

// MethodIndex returns the index of the method with the given name.
func (p *Program) MethodIndex(name string) (int, bool) {
	for i, m := range p.Methods {
		if m.Name == name {
			return i, true
		}
	}
	return -1, false
}

// String reads the NUL-terminated string starting at offset in the string
// table and decodes it to UTF-8.
func (p *Program) String(offset uint16) (string, error) {
	if int(offset) > len(p.Strings) {
		return "", fmt.Errorf("string offset %d out of range (table size %d)", offset, len(p.Strings))
	}
	raw := p.Strings[offset:]
	if end := bytes.IndexByte(raw, 0); end >= 0 {
		raw = raw[:end]
	}

	enc, err := LookupEncoding(p.Encoding)
	if err != nil {
		return "", err
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode string at %d: %w", offset, err)
	}
	return string(decoded), nil
}

// Object resolves a game-object literal of kind t.
// A payload index of Sentinel is the nil reference.
func (p *Program) Object(t DataType, index uint16) (any, error) {
	if index == Sentinel {
		return nil, nil
	}
	table, ok := p.Objects[t]
	if !ok {
		return ObjectRef{Type: t, Index: index}, nil
	}
	if int(index) >= len(table) {
		return nil, fmt.Errorf("%s index %d out of range (table size %d)", t, index, len(table))
	}
	return table[index], nil
}

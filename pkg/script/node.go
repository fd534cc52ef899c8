// Package script provides the program model of the level-script runtime:
// the flat syntax-node table, the string table, and the method and variable
// definitions an interpreter is constructed from.
package script

import "github.com/zurustar/hsvm/pkg/opcode"

// Sentinel marks "no node" in every index field.
const Sentinel uint16 = 0xFFFF

// Node is one fixed-size record of the flat syntax graph.
// Nodes are addressed by index and never mutated by the interpreter.
//
// Invocation and scope nodes store a datum reference in Data: the low 16 bits
// are the index of the first child and the high 16 bits are that child's
// Checkval.
type Node struct {
	Checkval     uint16
	OperationID  opcode.Op
	DataType     DataType
	NodeType     NodeType
	NextIndex    uint16
	NextCheckval uint16
	StringOffset uint16
	Data         uint32
}

// Low16 returns the low half of the payload.
func (n Node) Low16() uint16 { return uint16(n.Data) }

// High16 returns the high half of the payload.
func (n Node) High16() uint16 { return uint16(n.Data >> 16) }

// Byte returns payload byte i, where byte 0 is the most significant.
func (n Node) Byte(i int) byte { return byte(n.Data >> (24 - 8*uint(i&3))) }

// HasNext reports whether the node has a following sibling.
func (n Node) HasNext() bool { return n.NextIndex != Sentinel }

// ChildIndex returns the referenced first-child index of an invocation or scope.
func (n Node) ChildIndex() uint16 { return n.Low16() }

// ChildCheckval returns the expected Checkval of the referenced first child.
func (n Node) ChildCheckval() uint16 { return n.High16() }

// IsInvocation reports whether the node pushes its own frame when evaluated.
func (n Node) IsInvocation() bool {
	return n.NodeType == BuiltinInvocation || n.NodeType == ScriptInvocation
}

// DatumRef packs a child index and its check value into a node payload.
func DatumRef(index, checkval uint16) uint32 {
	return uint32(index) | uint32(checkval)<<16
}

// CheckvalFor returns the check value the Builder assigns to node index i.
func CheckvalFor(i int) uint16 {
	return uint16(0xE373 + i)
}

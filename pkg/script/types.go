package script

import (
	"fmt"
	"strings"
)

// NodeType classifies a syntax node.
type NodeType uint16

const (
	// Scope groups a chain of child expressions evaluated like begin.
	Scope NodeType = iota
	// BuiltinInvocation calls an operator or engine method.
	BuiltinInvocation
	// ScriptInvocation calls another script method of the same program.
	ScriptInvocation
	// Expression is a literal or the method-or-operator head of an invocation.
	Expression
	// VariableAccess reads a script variable or an engine global.
	VariableAccess
)

var nodeTypeNames = map[NodeType]string{
	Scope:             "scope",
	BuiltinInvocation: "builtin_invocation",
	ScriptInvocation:  "script_invocation",
	Expression:        "expression",
	VariableAccess:    "variable_access",
}

func (t NodeType) String() string {
	if name, ok := nodeTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("node_type#%d", uint16(t))
}

// DataType is the value kind of a node or of a runtime value.
type DataType uint16

const (
	Void DataType = iota
	Boolean
	Short
	Int
	Float
	String
	MethodOrOperator
	ScriptReference
	AIScript
	StringID
	VehicleSeat
	Trigger
	LocationFlag
	CameraPathTarget
	CinematicTitle
	DeviceGroup
	AI
	AIBehavior
	AIOrders
	StartingProfile
	Bsp
	NavigationPoint
	SpatialPoint
	List
	Sound
	Effect
	DamageEffect
	LoopingSound
	TagReference
	Animation
	Model
	GameDifficulty
	Team
	DamageState
	Entity
	Unit
	Vehicle
	WeaponReference
	Device
	Scenery
	EntityIdentifier

	dataTypeCount
)

var dataTypeNames = [dataTypeCount]string{
	Void:             "void",
	Boolean:          "boolean",
	Short:            "short",
	Int:              "int",
	Float:            "float",
	String:           "string",
	MethodOrOperator: "method_or_operator",
	ScriptReference:  "script",
	AIScript:         "ai_script",
	StringID:         "string_id",
	VehicleSeat:      "vehicle_seat",
	Trigger:          "trigger_volume",
	LocationFlag:     "cutscene_flag",
	CameraPathTarget: "cutscene_camera_point",
	CinematicTitle:   "cutscene_title",
	DeviceGroup:      "device_group",
	AI:               "ai",
	AIBehavior:       "ai_behavior",
	AIOrders:         "ai_orders",
	StartingProfile:  "starting_profile",
	Bsp:              "structure_bsp",
	NavigationPoint:  "navpoint",
	SpatialPoint:     "point_reference",
	List:             "object_list",
	Sound:            "sound",
	Effect:           "effect",
	DamageEffect:     "damage",
	LoopingSound:     "looping_sound",
	TagReference:     "any_tag",
	Animation:        "animation_graph",
	Model:            "render_model",
	GameDifficulty:   "game_difficulty",
	Team:             "team",
	DamageState:      "actor_type",
	Entity:           "object",
	Unit:             "unit",
	Vehicle:          "vehicle",
	WeaponReference:  "weapon",
	Device:           "device",
	Scenery:          "scenery",
	EntityIdentifier: "object_name",
}

func (t DataType) String() string {
	if t < dataTypeCount {
		return dataTypeNames[t]
	}
	return fmt.Sprintf("data_type#%d", uint16(t))
}

// ParseDataType resolves the script name of a data type (case-insensitive).
func ParseDataType(name string) (DataType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Void, nil
	}
	// Common spellings used by hand-written programs.
	switch name {
	case "bool":
		return Boolean, nil
	case "real":
		return Float, nil
	case "long":
		return Int, nil
	}
	for i, n := range dataTypeNames {
		if n == name {
			return DataType(i), nil
		}
	}
	return Void, fmt.Errorf("unknown data type: %s", name)
}

// Storage is the runtime representation class of a data type.
type Storage uint8

const (
	StorageVoid Storage = iota
	StorageBool
	StorageShort
	StorageInt
	StorageFloat
	StorageRef
)

// Storage returns how values of this type are held at runtime.
func (t DataType) Storage() Storage {
	switch t {
	case Void:
		return StorageVoid
	case Boolean:
		return StorageBool
	case Short, GameDifficulty, Team, AIBehavior, NavigationPoint, DamageState:
		return StorageShort
	case Int, StringID, VehicleSeat:
		return StorageInt
	case Float:
		return StorageFloat
	default:
		return StorageRef
	}
}

// IsNumeric reports whether t is one of the plain numeric kinds.
func (t DataType) IsNumeric() bool {
	return t == Short || t == Int || t == Float
}

// Lifecycle is the static run classification of a script method.
type Lifecycle uint16

const (
	Startup Lifecycle = iota
	Dormant
	Continuous
	Static
	Stub
	CommandScript
)

var lifecycleNames = map[Lifecycle]string{
	Startup:       "startup",
	Dormant:       "dormant",
	Continuous:    "continuous",
	Static:        "static",
	Stub:          "stub",
	CommandScript: "command_script",
}

func (l Lifecycle) String() string {
	if name, ok := lifecycleNames[l]; ok {
		return name
	}
	return fmt.Sprintf("lifecycle#%d", uint16(l))
}

// ParseLifecycle resolves the script name of a lifecycle.
func ParseLifecycle(name string) (Lifecycle, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for l, n := range lifecycleNames {
		if n == name {
			return l, nil
		}
	}
	return Startup, fmt.Errorf("unknown lifecycle: %s", name)
}

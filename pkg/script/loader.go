package script

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zurustar/hsvm/pkg/opcode"
	"gopkg.in/yaml.v3"
)

// programFile is the YAML form of a program. Expressions are written as
// trees and flattened by the Builder on load.
type programFile struct {
	Encoding  string           `yaml:"encoding"`
	Objects   map[string][]any `yaml:"objects"`
	Variables []variableFile   `yaml:"variables"`
	Methods   []methodFile     `yaml:"methods"`
}

type variableFile struct {
	Name  string   `yaml:"name"`
	Type  string   `yaml:"type"`
	Value exprFile `yaml:"value"`
}

type methodFile struct {
	Name      string   `yaml:"name"`
	Lifecycle string   `yaml:"lifecycle"`
	Type      string   `yaml:"type"`
	Body      exprFile `yaml:"body"`
}

type exprFile struct {
	Call   string     `yaml:"call"`
	Op     *uint16    `yaml:"op"`
	Type   string     `yaml:"type"`
	Args   []exprFile `yaml:"args"`
	Scope  []exprFile `yaml:"scope"`
	Script string     `yaml:"script"`

	Bool   *bool    `yaml:"bool"`
	Short  *int16   `yaml:"short"`
	Int    *int32   `yaml:"int"`
	Real   *float32 `yaml:"real"`
	String *string  `yaml:"string"`

	Var    string  `yaml:"var"`
	Global *uint16 `yaml:"global"`

	Object string  `yaml:"object"`
	Index  *uint16 `yaml:"index"`
}

// LoadFile reads a YAML program from path. Level files copied off
// case-insensitive file systems are found regardless of the case of their
// name.
func LoadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if found, ferr := findFileCaseInsensitive(filepath.Dir(path), filepath.Base(path)); ferr == nil {
			data, err = os.ReadFile(found)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return p, nil
}

func findFileCaseInsensitive(dir, name string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(entry.Name(), name) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("file not found: %s (searched in %s)", name, dir)
}

// Parse decodes a YAML program.
func Parse(data []byte) (*Program, error) {
	var file programFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse program: %w", err)
	}
	return file.build()
}

type resolver struct {
	methods   map[string]int
	variables map[string]int
}

func (f *programFile) build() (*Program, error) {
	b := NewBuilder(WithEncoding(f.Encoding))

	r := &resolver{
		methods:   make(map[string]int, len(f.Methods)),
		variables: make(map[string]int, len(f.Variables)),
	}
	for i, m := range f.Methods {
		if _, dup := r.methods[m.Name]; dup {
			return nil, fmt.Errorf("duplicate method: %s", m.Name)
		}
		r.methods[m.Name] = i
	}
	for i, v := range f.Variables {
		if _, dup := r.variables[v.Name]; dup {
			return nil, fmt.Errorf("duplicate variable: %s", v.Name)
		}
		r.variables[v.Name] = i
	}

	for kind, table := range f.Objects {
		t, err := ParseDataType(kind)
		if err != nil {
			return nil, fmt.Errorf("objects: %w", err)
		}
		b.Objects(t, table...)
	}

	for _, v := range f.Variables {
		t, err := ParseDataType(v.Type)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.Name, err)
		}
		value, err := r.expr(v.Value)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.Name, err)
		}
		b.Variable(v.Name, t, value)
	}

	for _, m := range f.Methods {
		lifecycle, err := ParseLifecycle(m.Lifecycle)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", m.Name, err)
		}
		t, err := ParseDataType(m.Type)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", m.Name, err)
		}
		body, err := r.expr(m.Body)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", m.Name, err)
		}
		b.Method(m.Name, lifecycle, t, body)
	}

	return b.Program()
}

func (r *resolver) expr(e exprFile) (Expr, error) {
	switch {
	case e.Call != "" || e.Op != nil:
		return r.call(e)
	case e.Scope != nil:
		t, err := ParseDataType(e.Type)
		if err != nil {
			return Expr{}, err
		}
		body, err := r.list(e.Scope)
		if err != nil {
			return Expr{}, err
		}
		return Block(t, body...), nil
	case e.Script != "":
		idx, ok := r.methods[e.Script]
		if !ok {
			return Expr{}, fmt.Errorf("unknown script: %s", e.Script)
		}
		t, err := ParseDataType(e.Type)
		if err != nil {
			return Expr{}, err
		}
		return Invoke(t, uint16(idx)), nil
	case e.Bool != nil:
		return Bool(*e.Bool), nil
	case e.Short != nil:
		return ShortLit(*e.Short), nil
	case e.Int != nil:
		return IntLit(*e.Int), nil
	case e.Real != nil:
		return Real(*e.Real), nil
	case e.String != nil:
		return Text(*e.String), nil
	case e.Var != "":
		idx, ok := r.variables[e.Var]
		if !ok {
			return Expr{}, fmt.Errorf("unknown variable: %s", e.Var)
		}
		t, err := ParseDataType(e.Type)
		if err != nil {
			return Expr{}, err
		}
		return Var(t, uint16(idx)), nil
	case e.Global != nil:
		t, err := ParseDataType(e.Type)
		if err != nil {
			return Expr{}, err
		}
		return GlobalVar(t, *e.Global), nil
	case e.Object != "":
		t, err := ParseDataType(e.Object)
		if err != nil {
			return Expr{}, err
		}
		index := Sentinel
		if e.Index != nil {
			index = *e.Index
		}
		return Object(t, index), nil
	default:
		return Expr{}, fmt.Errorf("empty expression")
	}
}

func (r *resolver) call(e exprFile) (Expr, error) {
	var op opcode.Op
	if e.Op != nil {
		op = opcode.Op(*e.Op)
	} else {
		var ok bool
		op, ok = opcode.Lookup(strings.TrimSpace(e.Call))
		if !ok {
			return Expr{}, fmt.Errorf("unknown operation: %s", e.Call)
		}
	}
	t, err := ParseDataType(e.Type)
	if err != nil {
		return Expr{}, err
	}
	args, err := r.list(e.Args)
	if err != nil {
		return Expr{}, fmt.Errorf("%s: %w", op, err)
	}
	return Call(t, op, args...), nil
}

func (r *resolver) list(in []exprFile) ([]Expr, error) {
	out := make([]Expr, 0, len(in))
	for i, e := range in {
		x, err := r.expr(e)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out = append(out, x)
	}
	return out, nil
}

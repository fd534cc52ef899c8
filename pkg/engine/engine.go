// Package engine provides the reference engine builtins and globals that
// level scripts call into.
package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/zurustar/hsvm/pkg/logger"
	"github.com/zurustar/hsvm/pkg/opcode"
	"github.com/zurustar/hsvm/pkg/script"
	"github.com/zurustar/hsvm/pkg/vm"
)

// Engine global ids.
const (
	GlobalGameSpeed uint16 = iota
	GlobalCheatDeathlessPlayer
	GlobalDebugScripting
)

// ErrNotAttached is returned by builtins that need the scheduler before one
// was attached.
var ErrNotAttached = errors.New("no scheduler attached")

// TaskControl is the part of the scheduler the builtins drive.
type TaskControl interface {
	Wake(index int) error
	Sleep(index int, ticks int) error
	Current() int
	TickCount() uint64
}

// Engine is the host side of a running program.
type Engine struct {
	playtest bool
	random   *rand.Rand
	out      io.Writer
	tasks    TaskControl
	globals  *vm.Globals
	log      *slog.Logger
}

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithPlaytest sets the value game_is_playtest reports.
func WithPlaytest(playtest bool) Option {
	return func(e *Engine) {
		e.playtest = playtest
	}
}

// WithSeed makes the random builtins deterministic.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.random = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithOutput sets where print writes.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) {
		e.out = w
	}
}

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// New creates an engine with its globals registered.
func New(opts ...Option) *Engine {
	now := uint64(time.Now().UnixNano())
	e := &Engine{
		random:  rand.New(rand.NewPCG(now, now)),
		out:     os.Stdout,
		globals: vm.NewGlobals(),
		log:     logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.globals.Register(GlobalGameSpeed, "game_speed", vm.FromFloat(1))
	e.globals.Register(GlobalCheatDeathlessPlayer, "cheat_deathless_player", vm.FromBool(false))
	e.globals.Register(GlobalDebugScripting, "debug_scripting", vm.FromBool(false))
	return e
}

// Attach connects the builtins that control scripts to a scheduler.
func (e *Engine) Attach(tasks TaskControl) {
	e.tasks = tasks
}

// Globals returns the engine global table.
func (e *Engine) Globals() *vm.Globals {
	return e.globals
}

// Builtins returns a registry holding every engine builtin.
func (e *Engine) Builtins() *vm.Builtins {
	b := vm.NewBuiltins()
	b.RegisterOp(opcode.Print, e.print)
	b.RegisterOp(opcode.GameIsPlaytest, e.gameIsPlaytest)
	b.RegisterOp(opcode.GameTickGet, e.gameTickGet)
	b.RegisterOp(opcode.RandomRange, e.randomRange)
	b.RegisterOp(opcode.RealRandomRange, e.realRandomRange)
	b.RegisterOp(opcode.Wake, e.wake)
	b.RegisterOp(opcode.SleepForever, e.sleepForever)
	return b
}

func (e *Engine) print(call *vm.Call, args []vm.Value) (vm.Value, error) {
	if len(args) != 1 {
		return vm.Void(), fmt.Errorf("print requires 1 argument, got %d", len(args))
	}
	msg := args[0].String()
	if args[0].Type != script.String {
		msg = args[0].Format()
	}
	e.log.Info("print", "message", msg)
	if e.out != nil {
		fmt.Fprintln(e.out, msg)
	}
	return vm.Void(), nil
}

func (e *Engine) gameIsPlaytest(call *vm.Call, args []vm.Value) (vm.Value, error) {
	return vm.FromBool(e.playtest), nil
}

func (e *Engine) gameTickGet(call *vm.Call, args []vm.Value) (vm.Value, error) {
	if e.tasks == nil {
		return vm.FromInt(0), nil
	}
	return vm.FromInt(int32(e.tasks.TickCount())), nil
}

// randomRange returns a short in [low, high).
func (e *Engine) randomRange(call *vm.Call, args []vm.Value) (vm.Value, error) {
	if len(args) != 2 {
		return vm.Void(), fmt.Errorf("random_range requires 2 arguments, got %d", len(args))
	}
	low, high := args[0].Short(), args[1].Short()
	if high <= low {
		return vm.FromShort(low), nil
	}
	return vm.FromShort(low + int16(e.random.IntN(int(high)-int(low)))), nil
}

// realRandomRange returns a float in [low, high).
func (e *Engine) realRandomRange(call *vm.Call, args []vm.Value) (vm.Value, error) {
	if len(args) != 2 {
		return vm.Void(), fmt.Errorf("real_random_range requires 2 arguments, got %d", len(args))
	}
	low, high := args[0].Float(), args[1].Float()
	if high <= low {
		return vm.FromFloat(low), nil
	}
	return vm.FromFloat(low + e.random.Float32()*(high-low)), nil
}

func (e *Engine) wake(call *vm.Call, args []vm.Value) (vm.Value, error) {
	if e.tasks == nil {
		return vm.Void(), ErrNotAttached
	}
	index, err := scriptArg(args, 0)
	if err != nil {
		return vm.Void(), fmt.Errorf("wake: %w", err)
	}
	return vm.Void(), e.tasks.Wake(index)
}

// sleepForever suspends the calling script, or the script given as its
// argument, until woken.
func (e *Engine) sleepForever(call *vm.Call, args []vm.Value) (vm.Value, error) {
	if len(args) == 0 {
		call.Delay(vm.Forever)
		return vm.Void(), nil
	}
	if e.tasks == nil {
		return vm.Void(), ErrNotAttached
	}
	index, err := scriptArg(args, 0)
	if err != nil {
		return vm.Void(), fmt.Errorf("sleep_forever: %w", err)
	}
	if index == e.tasks.Current() {
		call.Delay(vm.Forever)
		return vm.Void(), nil
	}
	return vm.Void(), e.tasks.Sleep(index, vm.Forever)
}

func scriptArg(args []vm.Value, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing script argument")
	}
	ref, ok := args[i].Ref().(vm.MethodRef)
	if !ok {
		return 0, fmt.Errorf("argument %d of kind %s is not a script", i, args[i].Type)
	}
	return int(ref), nil
}

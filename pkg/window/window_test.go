package window

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/zurustar/hsvm/pkg/scheduler"
	"github.com/zurustar/hsvm/pkg/script"
	"github.com/zurustar/hsvm/pkg/vm"
)

// fakeRunner はテスト用のRunner実装
type fakeRunner struct {
	ticks   uint64
	doneAt  uint64
	failAt  uint64
	failErr error
	tasks   []*scheduler.Task
}

func (r *fakeRunner) Tick() error {
	r.ticks++
	if r.failAt > 0 && r.ticks == r.failAt {
		return r.failErr
	}
	return nil
}

func (r *fakeRunner) Done() bool {
	return r.doneAt > 0 && r.ticks >= r.doneAt
}

func (r *fakeRunner) TickCount() uint64 {
	return r.ticks
}

func (r *fakeRunner) Tasks() []*scheduler.Task {
	return r.tasks
}

func TestNewGame(t *testing.T) {
	runner := &fakeRunner{}
	game := NewGame(runner, Options{TicksPerSecond: 60, Timeout: 10 * time.Second})

	if game == nil {
		t.Fatal("NewGame returned nil")
	}
	if game.opts.Timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %v", game.opts.Timeout)
	}
	if game.paused {
		t.Error("expected game not to start paused")
	}
}

func TestLayout(t *testing.T) {
	game := NewGame(&fakeRunner{}, Options{})

	width, height := game.Layout(0, 0)

	if width != 640 {
		t.Errorf("expected width 640, got %d", width)
	}
	if height != 480 {
		t.Errorf("expected height 480, got %d", height)
	}
}

func TestUpdate_Timeout(t *testing.T) {
	// 非常に短いタイムアウトを設定
	game := NewGame(&fakeRunner{}, Options{Timeout: time.Nanosecond})

	// 少し待機
	time.Sleep(10 * time.Millisecond)

	// Update を呼び出すとタイムアウトで終了するはず
	if err := game.Update(); !errors.Is(err, ebiten.Termination) {
		t.Errorf("expected ebiten.Termination, got %v", err)
	}
}

func TestUpdate_TicksScheduler(t *testing.T) {
	runner := &fakeRunner{}
	game := NewGame(runner, Options{})

	for i := 0; i < 3; i++ {
		if err := game.Update(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if runner.ticks != 3 {
		t.Errorf("expected 3 ticks, got %d", runner.ticks)
	}
}

func TestUpdate_Paused(t *testing.T) {
	runner := &fakeRunner{}
	game := NewGame(runner, Options{})
	game.paused = true

	// 一時停止中はティックが進まない
	if err := game.Update(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.ticks != 0 {
		t.Errorf("expected no ticks while paused, got %d", runner.ticks)
	}
}

func TestTick_Termination(t *testing.T) {
	t.Run("max ticks", func(t *testing.T) {
		game := NewGame(&fakeRunner{}, Options{MaxTicks: 2})
		if err := game.tick(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := game.tick(); !errors.Is(err, ebiten.Termination) {
			t.Errorf("expected ebiten.Termination, got %v", err)
		}
	})

	t.Run("exit when done", func(t *testing.T) {
		game := NewGame(&fakeRunner{doneAt: 1}, Options{ExitWhenDone: true})
		if err := game.tick(); !errors.Is(err, ebiten.Termination) {
			t.Errorf("expected ebiten.Termination, got %v", err)
		}
	})

	t.Run("fatal error", func(t *testing.T) {
		fatal := vm.NewRuntimeError(vm.ErrorCheckValueMismatch, "corrupt")
		game := NewGame(&fakeRunner{failAt: 1, failErr: fatal}, Options{})
		if err := game.tick(); !errors.Is(err, ebiten.Termination) {
			t.Errorf("expected ebiten.Termination, got %v", err)
		}
		if !errors.Is(game.Err(), fatal) {
			t.Errorf("expected fatal error to be kept, got %v", game.Err())
		}
	})

	t.Run("script error keeps running", func(t *testing.T) {
		nonFatal := vm.NewRuntimeError(vm.ErrorDivisionByZero, "division by zero")
		game := NewGame(&fakeRunner{failAt: 1, failErr: nonFatal}, Options{})
		if err := game.tick(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
		if game.Err() != nil {
			t.Errorf("expected no fatal error, got %v", game.Err())
		}
	})
}

func TestStatusLines(t *testing.T) {
	tasks := []*scheduler.Task{
		{Method: script.MethodDefinition{Name: "intro", Lifecycle: script.Startup}, Status: scheduler.Sleeping, SleepTicks: 12},
		{Method: script.MethodDefinition{Name: "waiter", Lifecycle: script.Dormant}, Status: scheduler.Sleeping, SleepTicks: vm.Forever},
		{Method: script.MethodDefinition{Name: "broken", Lifecycle: script.Continuous}, Status: scheduler.Terminated, Err: errors.New("boom")},
	}

	lines := StatusLines(tasks)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	tests := []struct {
		line int
		want []string
	}{
		{0, []string{"intro", "sleeping", "12 ticks"}},
		{1, []string{"waiter", "until woken"}},
		{2, []string{"broken", "terminated", "error"}},
	}
	for _, tt := range tests {
		for _, w := range tt.want {
			if !strings.Contains(lines[tt.line], w) {
				t.Errorf("line %d %q does not contain %q", tt.line, lines[tt.line], w)
			}
		}
	}
}

func TestRunHeadless_MaxTicks(t *testing.T) {
	runner := &fakeRunner{}
	err := RunHeadless(context.Background(), runner, Options{MaxTicks: 25})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.ticks != 25 {
		t.Errorf("expected 25 ticks, got %d", runner.ticks)
	}
}

func TestRunHeadless_ExitWhenDone(t *testing.T) {
	runner := &fakeRunner{doneAt: 7}
	err := RunHeadless(context.Background(), runner, Options{ExitWhenDone: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.ticks != 7 {
		t.Errorf("expected 7 ticks, got %d", runner.ticks)
	}
}

func TestRunHeadless_FatalError(t *testing.T) {
	fatal := vm.NewRuntimeError(vm.ErrorYieldInInitialize, "initializer yielded")
	runner := &fakeRunner{failAt: 3, failErr: fatal}
	err := RunHeadless(context.Background(), runner, Options{})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if runner.ticks != 3 {
		t.Errorf("expected 3 ticks, got %d", runner.ticks)
	}
}

func TestRunHeadless_Timeout(t *testing.T) {
	runner := &fakeRunner{}
	start := time.Now()
	err := RunHeadless(context.Background(), runner, Options{TicksPerSecond: 100, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("expected to stop near the timeout, took %v", elapsed)
	}
	if runner.ticks == 0 {
		t.Error("expected at least one tick before the timeout")
	}
}

func TestRunHeadless_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &fakeRunner{}
	if err := RunHeadless(ctx, runner, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.ticks != 0 {
		t.Errorf("expected no ticks after cancellation, got %d", runner.ticks)
	}
}

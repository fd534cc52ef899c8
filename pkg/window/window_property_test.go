package window

import (
	"context"
	"testing"
	"testing/quick"
)

// Property: RunHeadlessは最大ティック数ちょうどで停止する
func TestProperty_RunHeadlessStopsAtMaxTicks(t *testing.T) {
	property := func(n uint8) bool {
		maxTicks := uint64(n) + 1
		runner := &fakeRunner{}
		if err := RunHeadless(context.Background(), runner, Options{MaxTicks: maxTicks}); err != nil {
			return false
		}
		return runner.ticks == maxTicks
	}

	config := &quick.Config{MaxCount: 100}
	if err := quick.Check(property, config); err != nil {
		t.Errorf("Property failed: %v", err)
	}
}

// Property: 全スクリプト終了時の停止はMaxTicksより先に判定される
func TestProperty_RunHeadlessStopsWhenDone(t *testing.T) {
	property := func(done, limit uint8) bool {
		doneAt := uint64(done) + 1
		maxTicks := uint64(limit) + 1
		runner := &fakeRunner{doneAt: doneAt}
		if err := RunHeadless(context.Background(), runner, Options{MaxTicks: maxTicks, ExitWhenDone: true}); err != nil {
			return false
		}
		return runner.ticks == min(doneAt, maxTicks)
	}

	config := &quick.Config{MaxCount: 100}
	if err := quick.Check(property, config); err != nil {
		t.Errorf("Property failed: %v", err)
	}
}

// Property: 一時停止中のUpdateはティックを進めない
func TestProperty_PausedUpdateDoesNotTick(t *testing.T) {
	property := func(updates uint8) bool {
		runner := &fakeRunner{}
		game := NewGame(runner, Options{})
		game.paused = true
		for i := 0; i < int(updates); i++ {
			if err := game.Update(); err != nil {
				return false
			}
		}
		return runner.ticks == 0
	}

	config := &quick.Config{MaxCount: 100}
	if err := quick.Check(property, config); err != nil {
		t.Errorf("Property failed: %v", err)
	}
}

package window

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/zurustar/hsvm/pkg/logger"
	"github.com/zurustar/hsvm/pkg/scheduler"
	"github.com/zurustar/hsvm/pkg/vm"
	"golang.org/x/image/font/basicfont"
)

var (
	// 背景色
	backgroundColor = color.RGBA{0x10, 0x18, 0x20, 0xFF}
	// テキスト色（白）
	textColor = color.White
	// 終了したスクリプトの色（灰色）
	terminatedColor = color.RGBA{0x80, 0x80, 0x80, 0xFF}
	// エラーの色（赤）
	errorColor = color.RGBA{0xFF, 0x50, 0x50, 0xFF}
	// デフォルトフォント
	defaultFace = text.NewGoXFace(basicfont.Face7x13)
)

const (
	screenWidth  = 640
	screenHeight = 480
	lineHeight   = 16
)

// Runner はウィンドウから駆動されるスケジューラのインターフェース
type Runner interface {
	Tick() error
	Done() bool
	TickCount() uint64
	Tasks() []*scheduler.Task
}

// Options はウィンドウ/ヘッドレス実行の設定を保持する
type Options struct {
	TicksPerSecond int           // 1秒あたりのティック数
	Timeout        time.Duration // タイムアウト時間（0は無制限）
	MaxTicks       uint64        // 最大ティック数（0は無制限）
	ExitWhenDone   bool          // 全スクリプト終了時に終了する
}

// Game はEbitengineのゲームインターフェースを実装する
type Game struct {
	runner    Runner
	opts      Options
	startTime time.Time
	paused    bool
	err       error // 致命的なエラー
	lastErr   error // 直近のティックのエラー
}

// NewGame Gameを作成
func NewGame(runner Runner, opts Options) *Game {
	return &Game{
		runner:    runner,
		opts:      opts,
		startTime: time.Now(),
	}
}

// Update ゲームロジックの更新（Ebitengineが毎フレーム呼び出す）
func (g *Game) Update() error {
	// タイムアウトチェック
	if g.opts.Timeout > 0 && time.Since(g.startTime) >= g.opts.Timeout {
		return ebiten.Termination
	}

	// Escキーで終了
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	// Spaceキーで一時停止/再開
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
	}

	// 一時停止中はNキーで1ティックだけ進める
	if g.paused && !inpututil.IsKeyJustPressed(ebiten.KeyN) {
		return nil
	}

	return g.tick()
}

// tick スケジューラを1ティック進める
func (g *Game) tick() error {
	err := g.runner.Tick()
	g.lastErr = err
	if IsFatal(err) {
		g.err = err
		return ebiten.Termination
	}
	if g.opts.MaxTicks > 0 && g.runner.TickCount() >= g.opts.MaxTicks {
		return ebiten.Termination
	}
	if g.opts.ExitWhenDone && g.runner.Done() {
		return ebiten.Termination
	}
	return nil
}

// Draw 画面描画（Ebitengineが毎フレーム呼び出す）
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)

	header := fmt.Sprintf("tick %d", g.runner.TickCount())
	if g.paused {
		header += "  [paused: SPACE resume, N step]"
	}
	drawLine(screen, 0, header, textColor)

	for i, line := range StatusLines(g.runner.Tasks()) {
		clr := textColor
		switch {
		case g.runner.Tasks()[i].Err != nil:
			clr = errorColor
		case g.runner.Tasks()[i].Status == scheduler.Terminated:
			clr = terminatedColor
		}
		drawLine(screen, i+2, line, clr)
	}

	if g.lastErr != nil {
		msg := strings.SplitN(g.lastErr.Error(), "\n", 2)[0]
		drawLine(screen, screenHeight/lineHeight-2, msg, errorColor)
	}
}

func drawLine(screen *ebiten.Image, row int, s string, clr color.Color) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(8, float64(8+row*lineHeight))
	op.ColorScale.ScaleWithColor(clr)
	text.Draw(screen, s, defaultFace, op)
}

// Layout 画面サイズを返す
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

// Err 致命的なエラーを返す
func (g *Game) Err() error {
	return g.err
}

// StatusLines スクリプトごとの状態を1行ずつ整形する
func StatusLines(tasks []*scheduler.Task) []string {
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, t.String())
	}
	return lines
}

// IsFatal エラーがプログラム全体を停止すべきものか判定する
func IsFatal(err error) bool {
	var re *vm.RuntimeError
	return errors.As(err, &re) && re.IsFatal()
}

// Run GUIモードでウィンドウを実行
func Run(runner Runner, opts Options) error {
	game := NewGame(runner, opts)

	if opts.TicksPerSecond > 0 {
		ebiten.SetTPS(opts.TicksPerSecond)
	}
	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("hsvm - level script runtime")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	// ゲームを実行
	if err := ebiten.RunGame(game); err != nil {
		return fmt.Errorf("failed to run game: %w", err)
	}
	return game.Err()
}

// RunHeadless ヘッドレスモードでスケジューラを実行
// TicksPerSecondが0の場合は待機せずに実行する
func RunHeadless(ctx context.Context, runner Runner, opts Options) error {
	log := logger.GetLogger()

	// タイムアウト処理用のコンテキスト
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var tick <-chan time.Time
	if opts.TicksPerSecond > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(opts.TicksPerSecond))
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("Timeout reached, terminating", "ticks", runner.TickCount())
			return nil
		default:
		}

		if err := runner.Tick(); IsFatal(err) {
			return err
		}
		if opts.MaxTicks > 0 && runner.TickCount() >= opts.MaxTicks {
			log.Info("Tick limit reached, terminating", "ticks", runner.TickCount())
			return nil
		}
		if opts.ExitWhenDone && runner.Done() {
			log.Info("All scripts finished", "ticks", runner.TickCount())
			return nil
		}

		if tick != nil {
			select {
			case <-ctx.Done():
			case <-tick:
			}
		}
	}
}

package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/zurustar/hsvm/pkg/cli"
	"github.com/zurustar/hsvm/pkg/debugger"
	"github.com/zurustar/hsvm/pkg/engine"
	"github.com/zurustar/hsvm/pkg/logger"
	"github.com/zurustar/hsvm/pkg/scheduler"
	"github.com/zurustar/hsvm/pkg/script"
	"github.com/zurustar/hsvm/pkg/vm"
	"github.com/zurustar/hsvm/pkg/window"
)

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	config  *cli.Config
	log     *slog.Logger
	out     io.Writer
	program *script.Program
	sched   *scheduler.Scheduler
	it      *vm.Interpreter
	timings *vm.MethodTimings
}

// New Applicationを作成
func New() *Application {
	return &Application{
		out: os.Stdout,
	}
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	// 1. コマンドライン引数の解析
	if err := app.parseArgs(args); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}

	if app.config.ShowHelp {
		cli.PrintHelp()
		return nil
	}
	if app.config.ProgramPath == "" {
		return fmt.Errorf("no program specified (see --help)")
	}

	// 2. ロガーの初期化
	if err := app.initLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.log.Info("Application started")

	// 3. プログラムの読み込み
	program, err := script.LoadFile(app.config.ProgramPath)
	if err != nil {
		return fmt.Errorf("failed to load program: %w", err)
	}
	app.program = program

	app.log.Info("Program loaded",
		"path", app.config.ProgramPath,
		"nodes", len(program.Nodes),
		"methods", len(program.Methods),
		"variables", len(program.Variables))
	app.log.Debug("Methods", "methods", formatMethodsPreview(program.Methods, 10))

	// 4. インタプリタとスケジューラの構築
	if err := app.build(); err != nil {
		return fmt.Errorf("failed to start program: %w", err)
	}

	// 5. 実行
	if err := app.execute(); err != nil {
		return fmt.Errorf("failed to run program: %w", err)
	}

	app.log.Info("Application terminated normally", "ticks", app.sched.TickCount())
	return nil
}

// parseArgs コマンドライン引数を解析
func (app *Application) parseArgs(args []string) error {
	config, err := cli.ParseArgs(args)
	if err != nil {
		return err
	}
	app.config = config
	return nil
}

// initLogger ロガーを初期化
func (app *Application) initLogger() error {
	if err := logger.InitLoggerWithFormat(app.config.LogLevel, app.config.LogFormat, os.Stderr); err != nil {
		return err
	}
	app.log = logger.GetLogger()
	return nil
}

// build エンジン、インタプリタ、スケジューラを組み立てる
func (app *Application) build() error {
	engineOpts := []engine.Option{
		engine.WithPlaytest(app.config.Playtest),
		engine.WithOutput(app.out),
		engine.WithLogger(app.log),
	}
	if app.config.Seed != 0 {
		engineOpts = append(engineOpts, engine.WithSeed(app.config.Seed))
	}
	eng := engine.New(engineOpts...)

	app.timings = vm.NewMethodTimings()
	it, err := vm.NewInterpreter(app.program,
		vm.WithLogger(app.log),
		vm.WithBuiltins(eng.Builtins()),
		vm.WithGlobals(eng.Globals()),
		vm.WithTicksPerSecond(app.config.TicksPerSecond),
		vm.WithMethodTimer(app.timings),
	)
	if err != nil {
		return err
	}
	app.it = it

	sched, err := scheduler.New(it, scheduler.WithLogger(app.log))
	if err != nil {
		return err
	}
	eng.Attach(sched)
	app.sched = sched
	return nil
}

// execute 設定に応じてデバッガ、ヘッドレス、GUIのいずれかで実行
func (app *Application) execute() error {
	opts := window.Options{
		TicksPerSecond: app.config.TicksPerSecond,
		Timeout:        app.config.Timeout,
		MaxTicks:       app.config.MaxTicks,
	}

	switch {
	case app.config.Debug:
		app.log.Info("Starting debugger")
		return debugger.New(app.sched, app.it, app.timings, app.out).Run()

	case app.config.Headless:
		// ヘッドレスモードでは全スクリプト終了時に終了する
		opts.ExitWhenDone = true
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		app.log.Info("Headless mode", "tps", opts.TicksPerSecond, "maxTicks", opts.MaxTicks)
		return window.RunHeadless(ctx, app.sched, opts)

	default:
		app.log.Info("Starting window", "tps", opts.TicksPerSecond)
		return window.Run(app.sched, opts)
	}
}

// formatMethodsPreview メソッド一覧のプレビューを生成（デバッグ用）
func formatMethodsPreview(methods []script.MethodDefinition, maxCount int) string {
	if len(methods) == 0 {
		return "[]"
	}

	count := min(len(methods), maxCount)
	parts := make([]string, 0, count+1)
	for _, m := range methods[:count] {
		parts = append(parts, fmt.Sprintf("%s(%s)", m.Name, m.Lifecycle))
	}
	if len(methods) > maxCount {
		parts = append(parts, fmt.Sprintf("... (%d more)", len(methods)-maxCount))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFile は暗黙に読み込まれる環境変数ファイル
const DefaultEnvFile = ".env"

// Config はコマンドライン引数から解析された設定を保持する
type Config struct {
	ProgramPath    string        // YAMLプログラムのパス
	Timeout        time.Duration // タイムアウト時間（0は無制限）
	LogLevel       string        // ログレベル（debug, info, warn, error）
	LogFormat      string        // ログ形式（text, json）
	Headless       bool          // ヘッドレスモード
	Debug          bool          // 対話デバッガで実行
	TicksPerSecond int           // 1秒あたりのティック数
	MaxTicks       uint64        // 最大ティック数（0は無制限）
	Playtest       bool          // game_is_playtestの値
	Seed           uint64        // 乱数シード（0は時刻から生成）
	EnvFile        string        // 環境変数ファイル
	ShowHelp       bool          // ヘルプ表示フラグ
}

// boolFlags は値を取らないフラグ
var boolFlags = map[string]bool{
	"-h": true, "--h": true, "-help": true, "--help": true,
	"-headless": true, "--headless": true,
	"-debug": true, "--debug": true,
	"-playtest": true, "--playtest": true,
}

// ParseArgs コマンドライン引数を解析してConfigを返す
// 優先順位: コマンドラインフラグ > 環境変数 > .envファイル > デフォルト値
func ParseArgs(args []string) (*Config, error) {
	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("hsvm", flag.ContinueOnError)

	config := &Config{}

	var timeoutSec int
	fs.IntVar(&timeoutSec, "timeout", 0, "タイムアウト時間（秒）")
	fs.IntVar(&timeoutSec, "t", 0, "タイムアウト時間（秒）（短縮形）")
	fs.StringVar(&config.LogLevel, "log-level", "info", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogLevel, "l", "info", "ログレベル（短縮形）")
	fs.StringVar(&config.LogFormat, "log-format", "text", "ログ形式（text, json）")
	fs.BoolVar(&config.Headless, "headless", false, "ヘッドレスモード")
	fs.BoolVar(&config.Debug, "debug", false, "対話デバッガで実行")
	fs.IntVar(&config.TicksPerSecond, "tps", 30, "1秒あたりのティック数")
	fs.Uint64Var(&config.MaxTicks, "max-ticks", 0, "最大ティック数（0は無制限）")
	fs.BoolVar(&config.Playtest, "playtest", false, "game_is_playtestをtrueにする")
	fs.Uint64Var(&config.Seed, "seed", 0, "乱数シード")
	fs.StringVar(&config.EnvFile, "env-file", DefaultEnvFile, "環境変数ファイル")
	fs.BoolVar(&config.ShowHelp, "help", false, "ヘルプを表示")
	fs.BoolVar(&config.ShowHelp, "h", false, "ヘルプを表示（短縮形）")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, err
	}

	// 明示的に指定されたフラグを記録
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// .envファイルの読み込み（既存の環境変数は上書きしない）
	if err := godotenv.Load(config.EnvFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) || set["env-file"] {
			return nil, fmt.Errorf("failed to load env file %s: %w", config.EnvFile, err)
		}
	}

	// 環境変数からの設定（コマンドラインフラグが優先）
	if !set["headless"] {
		if headlessEnv := os.Getenv("HSVM_HEADLESS"); headlessEnv != "" {
			config.Headless = headlessEnv == "1" || strings.ToLower(headlessEnv) == "true"
		}
	}

	// 環境変数からタイムアウトを取得（コマンドラインフラグが優先）
	if !set["timeout"] && !set["t"] {
		if timeoutEnv := os.Getenv("HSVM_TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}

	// 環境変数からログレベルを取得（コマンドラインフラグが優先）
	if !set["log-level"] && !set["l"] {
		if logLevelEnv := os.Getenv("HSVM_LOG_LEVEL"); logLevelEnv != "" {
			config.LogLevel = strings.ToLower(logLevelEnv)
		}
	}
	if !set["log-format"] {
		if formatEnv := os.Getenv("HSVM_LOG_FORMAT"); formatEnv != "" {
			config.LogFormat = strings.ToLower(formatEnv)
		}
	}

	// 環境変数からティック設定を取得
	if !set["tps"] {
		if tpsEnv := os.Getenv("HSVM_TPS"); tpsEnv != "" {
			tps, err := strconv.Atoi(tpsEnv)
			if err != nil {
				return nil, fmt.Errorf("invalid HSVM_TPS: %s", tpsEnv)
			}
			config.TicksPerSecond = tps
		}
	}
	if !set["max-ticks"] {
		if maxEnv := os.Getenv("HSVM_MAX_TICKS"); maxEnv != "" {
			n, err := strconv.ParseUint(maxEnv, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid HSVM_MAX_TICKS: %s", maxEnv)
			}
			config.MaxTicks = n
		}
	}

	// タイムアウトの検証
	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	config.Timeout = time.Duration(timeoutSec) * time.Second

	// ティック数の検証
	if config.TicksPerSecond <= 0 {
		return nil, fmt.Errorf("tps must be positive, got %d", config.TicksPerSecond)
	}

	// ログレベルの検証
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.LogLevel)
	}
	if config.LogFormat != "text" && config.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log format: %s (must be text or json)", config.LogFormat)
	}

	// 位置引数（YAMLプログラムのパス）
	if fs.NArg() > 0 {
		config.ProgramPath = fs.Arg(0)
	}

	return config, nil
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// フラグかどうかを判定（-または--で始まる）
		if len(arg) > 0 && arg[0] == '-' {
			flags = append(flags, arg)

			// 次の引数が値である可能性をチェック
			// （-t 5 のような場合、--tps=60 の場合は不要）
			if strings.Contains(arg, "=") || boolFlags[arg] {
				continue
			}
			if i+1 < len(args) && len(args[i+1]) > 0 && args[i+1][0] != '-' {
				i++
				flags = append(flags, args[i])
			}
		} else {
			// 位置引数
			positional = append(positional, arg)
		}
	}

	// フラグを前に、位置引数を後ろに配置
	return append(flags, positional...)
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp() {
	fmt.Fprintf(os.Stdout, `hsvm - level script runtime

Usage:
  hsvm [options] <program.yaml>

Arguments:
  program.yaml  実行するYAMLプログラムのパス

Options:
  -t, --timeout <seconds>     指定秒数後にプログラムを終了（デフォルト: 無制限）
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  --log-format <format>       ログ形式: text, json（デフォルト: text）
  --headless                  ヘッドレスモード（GUIなし）
  --debug                     対話デバッガでティックごとに実行
  --tps <n>                   1秒あたりのティック数（デフォルト: 30）
  --max-ticks <n>             指定ティック数で終了（デフォルト: 無制限）
  --playtest                  game_is_playtestをtrueにする
  --seed <n>                  乱数シード（デフォルト: 時刻から生成）
  --env-file <path>           環境変数ファイル（デフォルト: .env）
  -h, --help                  このヘルプを表示

Environment Variables:
  HSVM_HEADLESS=1             ヘッドレスモードを有効化
  HSVM_TIMEOUT=<seconds>      タイムアウト時間（秒）
  HSVM_LOG_LEVEL=<level>      ログレベル
  HSVM_LOG_FORMAT=<format>    ログ形式
  HSVM_TPS=<n>                1秒あたりのティック数
  HSVM_MAX_TICKS=<n>          最大ティック数

Examples:
  hsvm level.yaml                         ウィンドウで実行
  hsvm --headless --max-ticks 300 level.yaml  300ティックだけヘッドレスで実行
  hsvm --debug level.yaml                 デバッガで実行
  HSVM_HEADLESS=1 hsvm level.yaml         環境変数でヘッドレスモード
`)
}

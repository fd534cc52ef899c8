package cli

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// clearEnv はテスト中にHSVM_*環境変数を空にする
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"HSVM_HEADLESS", "HSVM_TIMEOUT", "HSVM_LOG_LEVEL", "HSVM_LOG_FORMAT", "HSVM_TPS", "HSVM_MAX_TICKS"} {
		t.Setenv(name, "")
	}
}

func TestParseArgs_ValidArgs(t *testing.T) {
	defaults := Config{
		LogLevel:       "info",
		LogFormat:      "text",
		TicksPerSecond: 30,
		EnvFile:        DefaultEnvFile,
	}
	with := func(f func(c *Config)) Config {
		c := defaults
		f(&c)
		return c
	}

	tests := []struct {
		name     string
		args     []string
		expected Config
	}{
		{
			name:     "デフォルト設定",
			args:     []string{},
			expected: defaults,
		},
		{
			name:     "プログラムパス指定",
			args:     []string{"/path/to/level.yaml"},
			expected: with(func(c *Config) { c.ProgramPath = "/path/to/level.yaml" }),
		},
		{
			name:     "タイムアウト指定",
			args:     []string{"--timeout", "10"},
			expected: with(func(c *Config) { c.Timeout = 10 * time.Second }),
		},
		{
			name:     "タイムアウト指定（短縮形）",
			args:     []string{"-t", "5"},
			expected: with(func(c *Config) { c.Timeout = 5 * time.Second }),
		},
		{
			name:     "ログレベル指定（短縮形）",
			args:     []string{"-l", "error"},
			expected: with(func(c *Config) { c.LogLevel = "error" }),
		},
		{
			name:     "ログ形式指定",
			args:     []string{"--log-format=json"},
			expected: with(func(c *Config) { c.LogFormat = "json" }),
		},
		{
			name:     "ヘッドレスモード",
			args:     []string{"--headless"},
			expected: with(func(c *Config) { c.Headless = true }),
		},
		{
			name:     "ヘルプ表示（短縮形）",
			args:     []string{"-h"},
			expected: with(func(c *Config) { c.ShowHelp = true }),
		},
		{
			name: "ティック設定",
			args: []string{"--tps", "60", "--max-ticks", "900", "--seed", "7"},
			expected: with(func(c *Config) {
				c.TicksPerSecond = 60
				c.MaxTicks = 900
				c.Seed = 7
			}),
		},
		{
			name: "位置引数が最初（順序に関係なく動作）",
			args: []string{"level.yaml", "--debug", "--playtest", "--tps", "15"},
			expected: with(func(c *Config) {
				c.ProgramPath = "level.yaml"
				c.Debug = true
				c.Playtest = true
				c.TicksPerSecond = 15
			}),
		},
		{
			name: "複数オプション",
			args: []string{"--timeout", "30", "--log-level", "warn", "--headless", "levels/a10.yaml"},
			expected: with(func(c *Config) {
				c.ProgramPath = "levels/a10.yaml"
				c.Timeout = 30 * time.Second
				c.LogLevel = "warn"
				c.Headless = true
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			config, err := ParseArgs(tt.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(*config, tt.expected) {
				t.Errorf("ParseArgs(%v) = %+v, want %+v", tt.args, *config, tt.expected)
			}
		})
	}
}

func TestParseArgs_InvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{
			name: "負のタイムアウト",
			args: []string{"--timeout", "-10"},
		},
		{
			name: "無効なログレベル",
			args: []string{"--log-level", "invalid"},
		},
		{
			name: "無効なログ形式",
			args: []string{"--log-format", "xml"},
		},
		{
			name: "ティック数が0",
			args: []string{"--tps", "0"},
		},
		{
			name: "存在しない環境変数ファイル",
			args: []string{"--env-file", "/nonexistent/hsvm.env"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := ParseArgs(tt.args)
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParseArgs_Environment(t *testing.T) {
	t.Run("環境変数から設定", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HSVM_HEADLESS", "true")
		t.Setenv("HSVM_TIMEOUT", "12")
		t.Setenv("HSVM_LOG_LEVEL", "DEBUG")
		t.Setenv("HSVM_TPS", "60")
		t.Setenv("HSVM_MAX_TICKS", "100")

		config, err := ParseArgs([]string{"level.yaml"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !config.Headless {
			t.Error("expected headless from HSVM_HEADLESS")
		}
		if config.Timeout != 12*time.Second {
			t.Errorf("Timeout = %v, want 12s", config.Timeout)
		}
		if config.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", config.LogLevel)
		}
		if config.TicksPerSecond != 60 {
			t.Errorf("TicksPerSecond = %d, want 60", config.TicksPerSecond)
		}
		if config.MaxTicks != 100 {
			t.Errorf("MaxTicks = %d, want 100", config.MaxTicks)
		}
	})

	t.Run("コマンドラインフラグが優先", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HSVM_TPS", "60")
		t.Setenv("HSVM_LOG_LEVEL", "error")

		config, err := ParseArgs([]string{"--tps", "20", "-l", "warn"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.TicksPerSecond != 20 {
			t.Errorf("TicksPerSecond = %d, want 20", config.TicksPerSecond)
		}
		if config.LogLevel != "warn" {
			t.Errorf("LogLevel = %q, want warn", config.LogLevel)
		}
	})

	t.Run("不正なHSVM_TPS", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HSVM_TPS", "fast")

		if _, err := ParseArgs(nil); err == nil {
			t.Error("expected error, got nil")
		}
	})
}

func TestParseArgs_EnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("HSVM_LOG_LEVEL", "error")
	// 空文字でも設定済み扱いになるため削除しておく（後始末はt.Setenvが行う）
	os.Unsetenv("HSVM_MAX_TICKS")

	path := filepath.Join(t.TempDir(), "hsvm.env")
	content := "HSVM_MAX_TICKS=450\nHSVM_LOG_LEVEL=debug\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	config, err := ParseArgs([]string{"--env-file", path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// .envファイルの値が使われる
	if config.MaxTicks != 450 {
		t.Errorf("MaxTicks = %d, want 450", config.MaxTicks)
	}
	// 既存の環境変数は.envファイルより優先される
	if config.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error", config.LogLevel)
	}
}

func TestReorderArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "位置引数を後ろへ",
			args: []string{"level.yaml", "--tps", "60"},
			want: []string{"--tps", "60", "level.yaml"},
		},
		{
			name: "ブール型フラグは値を取らない",
			args: []string{"--headless", "level.yaml"},
			want: []string{"--headless", "level.yaml"},
		},
		{
			name: "=形式のフラグ",
			args: []string{"--tps=60", "level.yaml"},
			want: []string{"--tps=60", "level.yaml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reorderArgs(tt.args)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("reorderArgs(%v) = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pinbot/pkg/logx"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
telegram:
  token: "123:abc"
  owner_chat_id: 42
  poll_timeout: "10s"
  rate_per_sec: 25
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
storage:
  path: ./data/pinbot.db
  busy_timeout: "5s"
admin:
  enabled: true
  addr: "127.0.0.1:8421"
broadcast:
  concurrency: 3
  chunk_size: 30
  chunk_pause: "50ms"
  retry_max: 3
  backoff_cap: "30s"
unpin:
  concurrency: 5
  chunk_size: 40
cooldown: "1m"
sweep:
  enabled: true
  schedule: "0 4 * * *"
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", validYAML)
	cfg, err := NewManager(path, logx.Nop()).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.OwnerChatID != 42 {
		t.Fatalf("owner chat id = %d, want 42", cfg.Telegram.OwnerChatID)
	}
	if cfg.Broadcast.Concurrency != 3 || cfg.Broadcast.ChunkSize != 30 {
		t.Fatalf("broadcast section = %+v", cfg.Broadcast)
	}
	if cfg.Unpin.Concurrency != 5 {
		t.Fatalf("unpin concurrency = %d, want 5", cfg.Unpin.Concurrency)
	}
	if !cfg.Sweep.Enabled || cfg.Sweep.Schedule != "0 4 * * *" {
		t.Fatalf("sweep = %+v", cfg.Sweep)
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "123:abc"},
		"logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
		"storage": {"path": "./pinbot.db"}
	}`)
	cfg, err := NewManager(path, logx.Nop()).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Path != "./pinbot.db" {
		t.Fatalf("storage path = %q", cfg.Storage.Path)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  tokne_typo: "oops"
logging:
  level: info
  console: true
  file: {enabled: false, path: ""}
storage:
  path: ./pinbot.db
`)
	if _, err := NewManager(path, logx.Nop()).Load(); err == nil {
		t.Fatal("expected unknown-key rejection")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Telegram: TelegramConfig{Token: "123:abc"},
			Storage:  StorageConfig{Path: "./pinbot.db"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = " " }, wantErr: "telegram.token"},
		{name: "missing storage path", mutate: func(c *Config) { c.Storage.Path = "" }, wantErr: "storage.path"},
		{name: "bad cooldown", mutate: func(c *Config) { c.Cooldown = "soon" }, wantErr: "cooldown"},
		{name: "negative cooldown", mutate: func(c *Config) { c.Cooldown = "-1m" }, wantErr: "cooldown"},
		{name: "bad chunk pause", mutate: func(c *Config) { c.Broadcast.ChunkPause = "5x" }, wantErr: "broadcast.chunk_pause"},
		{name: "negative concurrency", mutate: func(c *Config) { c.Unpin.Concurrency = -1 }, wantErr: "unpin"},
		{name: "sweep without schedule", mutate: func(c *Config) { c.Sweep.Enabled = true }, wantErr: "sweep.schedule"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	d, err := ParseDurationOrDefault("x", "", 7)
	if err != nil || d != 7 {
		t.Fatalf("empty = (%v, %v), want default", d, err)
	}
	d, err = ParseDurationOrDefault("x", "5s", 7)
	if err != nil || d.Seconds() != 5 {
		t.Fatalf("explicit = (%v, %v)", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "nope", 7); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{Telegram: TelegramConfig{Token: "a"}, Cooldown: "1m"}
	newCfg := &Config{Telegram: TelegramConfig{Token: "a"}, Cooldown: "2m",
		Broadcast: FanoutSection{Concurrency: 5}}

	changed, _ := SummarizeChange(oldCfg, newCfg)
	want := []string{"broadcast", "cooldown"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
}

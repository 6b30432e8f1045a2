package config

import (
	"reflect"
	"sort"
	"strings"

	"pinbot/pkg/logx"
)

// SummarizeChange returns the list of changed sections plus structured
// attrs safe for logging. The bot token is never included, only whether
// it changed.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.Int64("telegram.owner_chat_id", newCfg.Telegram.OwnerChatID),
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.rate_per_sec", newCfg.Telegram.RatePerSec),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	if oldCfg.Admin != newCfg.Admin {
		changed = append(changed, "admin")
		attrs = append(attrs,
			logx.Bool("admin.enabled", newCfg.Admin.Enabled),
			logx.String("admin.addr", strings.TrimSpace(newCfg.Admin.Addr)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Broadcast, newCfg.Broadcast) {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.Int("broadcast.concurrency", newCfg.Broadcast.Concurrency),
			logx.Int("broadcast.chunk_size", newCfg.Broadcast.ChunkSize),
			logx.Int("broadcast.retry_max", newCfg.Broadcast.RetryMax),
		)
	}

	if !reflect.DeepEqual(oldCfg.Unpin, newCfg.Unpin) {
		changed = append(changed, "unpin")
		attrs = append(attrs,
			logx.Int("unpin.concurrency", newCfg.Unpin.Concurrency),
			logx.Int("unpin.chunk_size", newCfg.Unpin.ChunkSize),
		)
	}

	if strings.TrimSpace(oldCfg.Cooldown) != strings.TrimSpace(newCfg.Cooldown) {
		changed = append(changed, "cooldown")
		attrs = append(attrs, logx.String("cooldown", strings.TrimSpace(newCfg.Cooldown)))
	}

	if oldCfg.Sweep != newCfg.Sweep {
		changed = append(changed, "sweep")
		attrs = append(attrs,
			logx.Bool("sweep.enabled", newCfg.Sweep.Enabled),
			logx.String("sweep.schedule", strings.TrimSpace(newCfg.Sweep.Schedule)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

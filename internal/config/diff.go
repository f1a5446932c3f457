package config

import (
	"sort"
	"strings"

	logx "refetch/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and log fields
// describing their new values.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 2)
	attrs := make([]logx.Field, 0, 8)

	if !strings.EqualFold(strings.TrimSpace(oldCfg.Logging.Level), strings.TrimSpace(newCfg.Logging.Level)) ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	o, n := oldCfg.Refetch, newCfg.Refetch
	if strings.TrimSpace(o.Interval) != strings.TrimSpace(n.Interval) ||
		strings.TrimSpace(o.Schedule) != strings.TrimSpace(n.Schedule) ||
		o.MaxListeners != n.MaxListeners {
		changed = append(changed, "refetch")
		attrs = append(attrs,
			logx.String("refetch.interval", strings.TrimSpace(n.Interval)),
			logx.String("refetch.schedule", strings.TrimSpace(n.Schedule)),
			logx.Int("refetch.max_listeners", n.MaxListeners),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

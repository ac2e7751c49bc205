package service

import (
	"strings"
	"sync/atomic"

	licensedomain "github.com/bitbonsai/license-server/internal/license/domain"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type fallbackTier struct {
	Name              string `mapstructure:"name"`
	MaxNodes          int    `mapstructure:"maxNodes"`
	MaxConcurrentJobs int    `mapstructure:"maxConcurrentJobs"`
}

// FallbackHolder serves the static entitlement table, optionally overridden
// by a pricing.yml file that is hot-reloaded on change.
type FallbackHolder struct {
	current atomic.Value // holds map[licensedomain.Tier]licensedomain.Limits
}

// NewFallbackHolder loads pricing.yml from dir if present, else serves the
// built-in table. A config file that later appears or changes is picked up
// without a restart; an invalid file is ignored.
func NewFallbackHolder(dir string, log *zap.Logger) (*FallbackHolder, error) {
	holder := &FallbackHolder{}
	holder.current.Store(copyFallback())

	v := viper.New()
	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		return holder, nil
	}

	if table, ok := parseFallback(v, log); ok {
		holder.current.Store(table)
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		table, ok := parseFallback(v, log)
		if !ok {
			return
		}
		holder.current.Store(table)
		log.Info("pricing fallback reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// Limits returns the fallback limits for tier.
func (h *FallbackHolder) Limits(tier licensedomain.Tier) (licensedomain.Limits, bool) {
	table := h.current.Load().(map[licensedomain.Tier]licensedomain.Limits)
	limits, ok := table[tier]
	return limits, ok
}

func parseFallback(v *viper.Viper, log *zap.Logger) (map[licensedomain.Tier]licensedomain.Limits, bool) {
	var entries []fallbackTier
	if err := v.UnmarshalKey("tiers", &entries); err != nil {
		log.Warn("invalid pricing fallback ignored", zap.Error(err))
		return nil, false
	}

	table := copyFallback()
	for _, entry := range entries {
		tier, err := licensedomain.ParseTier(entry.Name)
		if err != nil {
			log.Warn("unknown tier in pricing fallback ignored", zap.String("name", entry.Name))
			continue
		}
		if entry.MaxNodes <= 0 || entry.MaxConcurrentJobs <= 0 {
			log.Warn("non-positive limits in pricing fallback ignored", zap.String("name", strings.ToUpper(entry.Name)))
			continue
		}
		table[tier] = licensedomain.Limits{
			MaxNodes:          entry.MaxNodes,
			MaxConcurrentJobs: entry.MaxConcurrentJobs,
		}
	}
	return table, true
}

func copyFallback() map[licensedomain.Tier]licensedomain.Limits {
	table := make(map[licensedomain.Tier]licensedomain.Limits, len(licensedomain.FallbackLimits))
	for tier, limits := range licensedomain.FallbackLimits {
		table[tier] = limits
	}
	return table
}

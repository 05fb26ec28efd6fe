package config

import (
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// SweeperConfig tunes the daily expiration sweep.
type SweeperConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Schedule  string        `mapstructure:"schedule"`
	BatchSize int           `mapstructure:"batchSize"`
	Timeout   time.Duration `mapstructure:"timeout"`
	LockTTL   time.Duration `mapstructure:"lockTTL"`
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Enabled:   true,
		Schedule:  "@daily",
		BatchSize: 100,
		Timeout:   10 * time.Minute,
		LockTTL:   26 * time.Hour,
	}
}

type SweeperConfigHolder struct {
	current atomic.Value // holds SweeperConfig

	mu        sync.Mutex
	listeners []func(SweeperConfig)
}

// NewStaticSweeperConfigHolder wraps a fixed config, used by tests and one-off commands.
func NewStaticSweeperConfigHolder(cfg SweeperConfig) *SweeperConfigHolder {
	holder := &SweeperConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSweeperConfigHolder() (*SweeperConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("sweeper")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/mealsub")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MEALSUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSweeperConfig()
	v.SetDefault("sweeper.enabled", defaults.Enabled)
	v.SetDefault("sweeper.schedule", defaults.Schedule)
	v.SetDefault("sweeper.batchSize", defaults.BatchSize)
	v.SetDefault("sweeper.timeout", defaults.Timeout)
	v.SetDefault("sweeper.lockTTL", defaults.LockTTL)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg SweeperConfig
	if err := v.UnmarshalKey("sweeper", &cfg); err != nil {
		return nil, err
	}
	if err := validateSweeperConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticSweeperConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SweeperConfig
		if err := v.UnmarshalKey("sweeper", &updated); err != nil {
			log.Printf("[sweeper-config] reload failed: %v", err)
			return
		}
		if err := validateSweeperConfig(updated); err != nil {
			log.Printf("[sweeper-config] invalid config ignored: %v", err)
			return
		}
		holder.set(updated)
		log.Printf("[sweeper-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *SweeperConfigHolder) Get() SweeperConfig {
	return h.current.Load().(SweeperConfig)
}

// OnChange registers fn to be called after every successful reload.
func (h *SweeperConfigHolder) OnChange(fn func(SweeperConfig)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

func (h *SweeperConfigHolder) set(cfg SweeperConfig) {
	h.current.Store(cfg)

	h.mu.Lock()
	listeners := append([]func(SweeperConfig){}, h.listeners...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

func validateSweeperConfig(cfg SweeperConfig) error {
	if strings.TrimSpace(cfg.Schedule) == "" {
		return errors.New("sweeper.schedule cannot be empty")
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return errors.New("sweeper.schedule is not a valid cron spec")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("sweeper.batchSize must be positive")
	}
	if cfg.Timeout <= 0 {
		return errors.New("sweeper.timeout must be positive")
	}
	return nil
}

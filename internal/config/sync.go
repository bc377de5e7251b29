package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SyncPolicy controls how account state is loaded from and written back to
// the usage store.
type SyncPolicy struct {
	LoadTimeout       time.Duration `mapstructure:"loadTimeout"`
	SaveTimeout       time.Duration `mapstructure:"saveTimeout"`
	MaxAttempts       uint          `mapstructure:"maxAttempts"`
	InitialBackoff    time.Duration `mapstructure:"initialBackoff"`
	MaxBackoff        time.Duration `mapstructure:"maxBackoff"`
	FlushTimeout      time.Duration `mapstructure:"flushTimeout"`
	MaxElapsedBackoff time.Duration `mapstructure:"maxElapsedBackoff"`
}

func DefaultSyncPolicy() SyncPolicy {
	return SyncPolicy{
		LoadTimeout:       3 * time.Second,
		SaveTimeout:       2 * time.Second,
		MaxAttempts:       5,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		FlushTimeout:      10 * time.Second,
		MaxElapsedBackoff: time.Minute,
	}
}

type SyncPolicyHolder struct {
	current atomic.Value // holds SyncPolicy
}

// NewSyncPolicyHolder reads sync.yml from the usual config locations and
// watches it for changes. A missing file yields the defaults.
func NewSyncPolicyHolder(log *zap.Logger) (*SyncPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("sync")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/bizdash/config")
	v.AddConfigPath("/etc/bizdash")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BIZDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return newSyncPolicyHolder(v, log)
}

// StaticSyncPolicy returns a holder that never reloads.
func StaticSyncPolicy(policy SyncPolicy) *SyncPolicyHolder {
	holder := &SyncPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func newSyncPolicyHolder(v *viper.Viper, log *zap.Logger) (*SyncPolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.sync")

	defaults := DefaultSyncPolicy()
	v.SetDefault("sync.loadTimeout", defaults.LoadTimeout)
	v.SetDefault("sync.saveTimeout", defaults.SaveTimeout)
	v.SetDefault("sync.maxAttempts", defaults.MaxAttempts)
	v.SetDefault("sync.initialBackoff", defaults.InitialBackoff)
	v.SetDefault("sync.maxBackoff", defaults.MaxBackoff)
	v.SetDefault("sync.flushTimeout", defaults.FlushTimeout)
	v.SetDefault("sync.maxElapsedBackoff", defaults.MaxElapsedBackoff)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	policy, err := decodeSyncPolicy(v)
	if err != nil {
		return nil, err
	}

	holder := StaticSyncPolicy(policy)
	if !fileLoaded {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSyncPolicy(v)
		if err != nil {
			log.Warn("sync policy reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("sync policy reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *SyncPolicyHolder) Get() SyncPolicy {
	return h.current.Load().(SyncPolicy)
}

// decodeSyncPolicy reads every key on its own so a file that sets only some
// of them keeps the defaults for the rest.
func decodeSyncPolicy(v *viper.Viper) (SyncPolicy, error) {
	policy := SyncPolicy{
		LoadTimeout:       v.GetDuration("sync.loadTimeout"),
		SaveTimeout:       v.GetDuration("sync.saveTimeout"),
		MaxAttempts:       v.GetUint("sync.maxAttempts"),
		InitialBackoff:    v.GetDuration("sync.initialBackoff"),
		MaxBackoff:        v.GetDuration("sync.maxBackoff"),
		FlushTimeout:      v.GetDuration("sync.flushTimeout"),
		MaxElapsedBackoff: v.GetDuration("sync.maxElapsedBackoff"),
	}
	if err := validateSyncPolicy(policy); err != nil {
		return SyncPolicy{}, err
	}
	return policy, nil
}

func validateSyncPolicy(policy SyncPolicy) error {
	if policy.LoadTimeout <= 0 {
		return errors.New("sync.loadTimeout must be positive")
	}
	if policy.SaveTimeout <= 0 {
		return errors.New("sync.saveTimeout must be positive")
	}
	if policy.MaxAttempts == 0 {
		return errors.New("sync.maxAttempts must be at least 1")
	}
	if policy.InitialBackoff <= 0 {
		return errors.New("sync.initialBackoff must be positive")
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		return errors.New("sync.maxBackoff cannot be lower than sync.initialBackoff")
	}
	if policy.FlushTimeout <= 0 {
		return errors.New("sync.flushTimeout must be positive")
	}
	return nil
}

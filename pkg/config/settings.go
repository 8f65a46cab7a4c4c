package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlsession/cache"
	"github.com/goliatone/go-sqlsession/mapping"
)

// EnvPrefix is prepended to every variable read by Load.
const EnvPrefix = "SQLSESSION_"

const TextCodeInvalidSettings = "INVALID_SETTINGS"

// Settings is the runtime configuration read from the environment.
type Settings struct {
	Driver          string `env:"DRIVER" envDefault:"sqlite3" json:"driver"`
	DSN             string `env:"DSN" envDefault:"file::memory:" json:"dsn"`
	EnvironmentID   string `env:"ENVIRONMENT_ID" json:"environment_id"`
	AutoCommit      bool   `env:"AUTO_COMMIT" envDefault:"false" json:"auto_commit"`
	ExecutorType    string `env:"EXECUTOR_TYPE" envDefault:"simple" json:"executor_type"`
	LocalCacheScope string `env:"LOCAL_CACHE_SCOPE" envDefault:"session" json:"local_cache_scope"`

	CacheEnabled            bool          `env:"CACHE_ENABLED" envDefault:"true" json:"cache_enabled"`
	CacheCapacity           int           `env:"CACHE_CAPACITY" envDefault:"10000" json:"cache_capacity"`
	CacheShards             int           `env:"CACHE_SHARDS" envDefault:"256" json:"cache_shards"`
	CacheTTL                time.Duration `env:"CACHE_TTL" envDefault:"5m" json:"cache_ttl"`
	CacheEvictionPercentage int           `env:"CACHE_EVICTION_PERCENTAGE" envDefault:"10" json:"cache_eviction_percentage"`
	CacheSerialized         bool          `env:"CACHE_SERIALIZED" envDefault:"false" json:"cache_serialized"`
}

// Load reads Settings from the process environment.
func Load() (Settings, error) {
	return LoadFrom(nil)
}

// LoadFrom reads Settings from environ instead of the process environment when environ
// is not nil. Keys include the prefix.
func LoadFrom(environ map[string]string) (Settings, error) {
	var s Settings
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return Settings{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "parse settings").
			WithTextCode(TextCodeInvalidSettings)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks every field.
func (s Settings) Validate() error {
	err := validation.ValidateStruct(&s,
		validation.Field(&s.Driver, validation.Required, validation.In("sqlite3", "postgres")),
		validation.Field(&s.DSN, validation.Required),
		validation.Field(&s.ExecutorType, validation.Required,
			validation.In(string(mapping.ExecutorSimple), string(mapping.ExecutorReuse))),
		validation.Field(&s.LocalCacheScope, validation.Required,
			validation.In(string(mapping.ScopeSession), string(mapping.ScopeStatement))),
		validation.Field(&s.CacheCapacity, validation.Min(1)),
		validation.Field(&s.CacheShards, validation.Min(1)),
		validation.Field(&s.CacheTTL, validation.Min(time.Second)),
		validation.Field(&s.CacheEvictionPercentage, validation.Min(1), validation.Max(100)),
	)
	if err == nil {
		return nil
	}
	return goerrors.FromOzzoValidation(err, "invalid settings").
		WithTextCode(TextCodeInvalidSettings)
}

// CacheConfig returns the shared cache store configuration.
func (s Settings) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Capacity = s.CacheCapacity
	cfg.NumShards = s.CacheShards
	cfg.TTL = s.CacheTTL
	cfg.EvictionPercentage = s.CacheEvictionPercentage
	cfg.Serialized = s.CacheSerialized
	return cfg
}

// MappingOptions returns the options for mapping.NewConfiguration.
func (s Settings) MappingOptions() []mapping.Option {
	return []mapping.Option{
		mapping.WithEnvironmentID(s.EnvironmentID),
		mapping.WithCacheEnabled(s.CacheEnabled),
		mapping.WithDefaultExecutorType(mapping.ExecutorType(s.ExecutorType)),
		mapping.WithLocalCacheScope(mapping.LocalCacheScope(s.LocalCacheScope)),
	}
}

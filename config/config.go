package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tcriess/lightspeed-rooms/globals"
)

const (
	defaultAddr                 = "localhost:8000"
	defaultAdminUser            = "admin"
	defaultRoom                 = "lobby"
	defaultLogLevel             = "INFO"
	defaultHistorySize          = 20
	defaultPersistenceType      = "buntdb"
	defaultPersistenceDSN       = "lightspeed-rooms.db"
	defaultRatePerSecond        = 5.0
	defaultRateBurst            = 10
	defaultSweepSpec            = "@every 10m"
	defaultPrivateRoomCacheSize = 1024
)

// Config is the global configuration object which is filled via the configuration file, the environment
// (prefix LSROOMS_) and the command line flags.
type Config struct {
	Addr                 string            `mapstructure:"addr"`
	LogLevel             string            `mapstructure:"log_level"`
	AdminUser            string            `mapstructure:"admin_user"`
	DefaultRoom          string            `mapstructure:"default_room"`
	HistoryConfig        HistoryConfig     `mapstructure:"history"`
	OIDCConfigs          []OIDCConfig      `mapstructure:"oidc"`
	PersistenceConfig    PersistenceConfig `mapstructure:"persistence"`
	RateLimitConfig      RateLimitConfig   `mapstructure:"rate_limit"`
	AnonymousConfig      AnonymousConfig   `mapstructure:"anonymous"`
	PrivateRoomCacheSize int               `mapstructure:"private_room_cache_size"`
}

// HistoryConfig configures the size of the per-room message history that is kept in memory in a ring buffer and
// sent to newly connected clients
type HistoryConfig struct {
	HistorySize int `mapstructure:"history_size"`
}

// An OIDCConfig  object configures an OpenID Connect provider that is used to authenticate users. Users provide
// an ID token and the name of the provider, the authentication is then performed via verification of the token.
type OIDCConfig struct {
	Name        string `mapstructure:"name"`
	ClientId    string `mapstructure:"client_id"`
	ProviderUrl string `mapstructure:"provider_url"` // f.e. "https://accounts.google.com", this is used to construct the discovery url and subsequently discover the openid endpoints
}

// PersistenceConfig selects the persistence backend: "buntdb" (DSN is a file name or ":memory:"), "sqlite" or
// "postgres" (both via gorm, DSN is passed to the driver).
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// RateLimitConfig limits how many lines a single session may send.
type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

// AnonymousConfig controls the cleanup of guest users left behind by crashed sessions.
type AnonymousConfig struct {
	SweepSpec string `mapstructure:"sweep_spec"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("admin-user", "a", "", "name of the owner of the default room")
	flagSet.String("addr", "", "ws service address (including port)")
	flagSet.String("log-level", "", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	flagSet.String("default-room", "", "name of the room that is created on startup")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", defaultAddr)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("admin_user", defaultAdminUser)
	v.SetDefault("default_room", defaultRoom)
	v.SetDefault("history.history_size", defaultHistorySize)
	v.SetDefault("persistence.type", defaultPersistenceType)
	v.SetDefault("persistence.dsn", defaultPersistenceDSN)
	v.SetDefault("rate_limit.per_second", defaultRatePerSecond)
	v.SetDefault("rate_limit.burst", defaultRateBurst)
	v.SetDefault("anonymous.sweep_spec", defaultSweepSpec)
	v.SetDefault("private_room_cache_size", defaultPrivateRoomCacheSize)
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either point to a single TOML
// file or to a directory, in which case all *.toml files in this directory are concatenated. It returns a Config
// object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if flagSet != nil {
		flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
		// only flags that were actually given override the file, the defaults are defined above
		flagSet.VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				err := v.BindPFlag(f.Name, f)
				if err != nil {
					globals.AppLogger.Error("could not bind flag (ignored)", "flag", f.Name, "error", err)
				}
			}
		})
	}
	v.SetEnvPrefix("LSROOMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		v.SetConfigType("toml")
		err = v.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			return nil, err
		}
	}
	cfg := Config{}
	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	globals.AppLogger.Debug("config", "cfg", cfg)
	return &cfg, nil
}

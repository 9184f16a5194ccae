package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "RECORDHUB"

const (
	KeyHTTPAddr               = "http.addr"
	KeyHTTPTrustProxy         = "http.trust_proxy"
	KeyStoreDriver            = "store.driver"
	KeyDatabaseURL            = "database.url"
	KeyRecordListMaxSizeLimit = "recordListMaxSizeLimit"
	KeyExportDisabled         = "exportDisabled"
	KeyExportDir              = "export.dir"
	KeyMetadataPath           = "metadata.path"
	KeyTenantsPath            = "tenants.path"
	KeyRoutingAllowlist       = "routing.allowlist"
	KeyAuthzModel             = "authz.model"
	KeyAuthzPolicy            = "authz.policy"
	KeyAuthzSettings          = "authz.settings"
	KeyAuthzMode              = "authz.mode"
	KeyAuthzUnsafeDisabled    = "authz.unsafe_allow_disabled"
	KeyJWTSecret              = "auth.jwt_secret"
	KeyLogLevel               = "log.level"
	KeyLogFormat              = "log.format"
)

const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// Config is read-only after Load.
type Config struct {
	v *viper.Viper
}

// Load reads path when it exists and layers RECORDHUB_* environment
// variables over it, with dots in keys mapped to underscores.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	c := &Config{v: v}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyHTTPTrustProxy, false)
	v.SetDefault(KeyStoreDriver, StoreDriverMemory)
	v.SetDefault(KeyDatabaseURL, "")
	v.SetDefault(KeyRecordListMaxSizeLimit, 200)
	v.SetDefault(KeyExportDisabled, false)
	v.SetDefault(KeyExportDir, filepath.Join(os.TempDir(), "recordhub-exports"))
	v.SetDefault(KeyMetadataPath, "config/metadata/entities.yaml")
	v.SetDefault(KeyTenantsPath, "config/tenants.yaml")
	v.SetDefault(KeyRoutingAllowlist, "config/routing/allowlist.yaml")
	v.SetDefault(KeyAuthzModel, "config/access/model.conf")
	v.SetDefault(KeyAuthzPolicy, "config/access/policy.csv")
	v.SetDefault(KeyAuthzSettings, "config/access/settings.rego")
	v.SetDefault(KeyAuthzMode, "enforce")
	v.SetDefault(KeyAuthzUnsafeDisabled, false)
	v.SetDefault(KeyJWTSecret, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
}

func (c *Config) validate() error {
	switch c.StoreDriver() {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.GetString(KeyDatabaseURL, "") == "" {
			return errors.New("config: database.url is required for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.StoreDriver())
	}
	if c.GetInt(KeyRecordListMaxSizeLimit, 0) <= 0 {
		return errors.New("config: recordListMaxSizeLimit must be positive")
	}
	return nil
}

func (c *Config) StoreDriver() string {
	return strings.ToLower(c.GetString(KeyStoreDriver, StoreDriverMemory))
}

func (c *Config) GetInt(key string, def int) int {
	if !c.v.IsSet(key) {
		return def
	}
	return c.v.GetInt(key)
}

func (c *Config) GetBool(key string, def bool) bool {
	if !c.v.IsSet(key) {
		return def
	}
	return c.v.GetBool(key)
}

func (c *Config) GetString(key string, def string) string {
	if !c.v.IsSet(key) {
		return def
	}
	return strings.TrimSpace(c.v.GetString(key))
}

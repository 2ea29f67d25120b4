// Package config provides configuration management for the application
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by the application,
// e.g. LIVEROOM_BACKEND_BASE_URL or LIVEROOM_REDIS_ENABLED
const EnvPrefix = "LIVEROOM"

// Config keys
const (
	KeyBackendBaseURL = "backend.base_url"
	KeyBackendTimeout = "backend.timeout"

	KeyRedisEnabled       = "redis.enabled"
	KeyRedisURI           = "redis.uri"
	KeyRedisHost          = "redis.host"
	KeyRedisPort          = "redis.port"
	KeyRedisUsername      = "redis.username"
	KeyRedisPassword      = "redis.password"
	KeyRedisDB            = "redis.db"
	KeyRedisKeyPrefix     = "redis.key_prefix"
	KeyRedisCredentialTTL = "redis.credential_ttl"

	KeyJitsiDomain     = "jitsi.domain"
	KeyJitsiScriptURL  = "jitsi.script_url"
	KeyJitsiRoomPrefix = "jitsi.room_prefix"
	KeyJitsiLanguage   = "jitsi.language"

	KeyServerPort         = "server.port"
	KeyServerReadTimeout  = "server.read_timeout"
	KeyServerIdleTimeout  = "server.idle_timeout"
	KeyServerCookieSecure = "server.cookie_secure"

	KeyPushVAPIDPublicKey = "push.vapid_public_key"

	KeyToken = "token"
)

// BackendConfig points at the conference REST backend
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RedisConfig holds Redis/Valkey configuration
type RedisConfig struct {
	Enabled bool
	// URI is prioritized if provided, otherwise individual connection parameters are used
	URI       string
	Host      string
	Port      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	// TTL for stored credentials (0 means no expiration)
	CredentialTTL time.Duration
}

// JitsiConfig describes where the video widget is served from
type JitsiConfig struct {
	Domain     string
	ScriptURL  string
	RoomPrefix string
	Language   string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	IdleTimeout  time.Duration
	CookieSecure bool
}

// PushConfig holds the web push settings
type PushConfig struct {
	VAPIDPublicKey string
}

// Config is the complete application configuration
type Config struct {
	Backend BackendConfig
	Redis   RedisConfig
	Jitsi   JitsiConfig
	Server  ServerConfig
	Push    PushConfig
	// Token is a bearer token used by CLI commands when no login was performed
	Token string
}

// SetDefaults registers default values and environment lookups on v
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyBackendBaseURL, "http://localhost:8001")
	v.SetDefault(KeyBackendTimeout, 10*time.Second)

	v.SetDefault(KeyRedisEnabled, false)
	v.SetDefault(KeyRedisHost, "localhost")
	v.SetDefault(KeyRedisPort, "6379")
	v.SetDefault(KeyRedisDB, 0)
	v.SetDefault(KeyRedisKeyPrefix, "liveroom:")
	v.SetDefault(KeyRedisCredentialTTL, 24*time.Hour)

	v.SetDefault(KeyJitsiDomain, "localhost:8443")
	v.SetDefault(KeyJitsiRoomPrefix, "vrtlconf-conference")
	v.SetDefault(KeyJitsiLanguage, "fr")

	v.SetDefault(KeyServerPort, "8080")
	v.SetDefault(KeyServerReadTimeout, 15*time.Second)
	v.SetDefault(KeyServerIdleTimeout, 60*time.Second)
	v.SetDefault(KeyServerCookieSecure, false)
}

// Load reads the typed configuration out of v. SetDefaults must have been called.
func Load(v *viper.Viper) Config {
	cfg := Config{
		Backend: BackendConfig{
			BaseURL: strings.TrimRight(v.GetString(KeyBackendBaseURL), "/"),
			Timeout: v.GetDuration(KeyBackendTimeout),
		},
		Redis: RedisConfig{
			Enabled:       v.GetBool(KeyRedisEnabled),
			URI:           v.GetString(KeyRedisURI),
			Host:          v.GetString(KeyRedisHost),
			Port:          v.GetString(KeyRedisPort),
			Username:      v.GetString(KeyRedisUsername),
			Password:      v.GetString(KeyRedisPassword),
			DB:            v.GetInt(KeyRedisDB),
			KeyPrefix:     v.GetString(KeyRedisKeyPrefix),
			CredentialTTL: v.GetDuration(KeyRedisCredentialTTL),
		},
		Jitsi: JitsiConfig{
			Domain:     v.GetString(KeyJitsiDomain),
			ScriptURL:  v.GetString(KeyJitsiScriptURL),
			RoomPrefix: v.GetString(KeyJitsiRoomPrefix),
			Language:   v.GetString(KeyJitsiLanguage),
		},
		Server: ServerConfig{
			Port:         v.GetString(KeyServerPort),
			ReadTimeout:  v.GetDuration(KeyServerReadTimeout),
			IdleTimeout:  v.GetDuration(KeyServerIdleTimeout),
			CookieSecure: v.GetBool(KeyServerCookieSecure),
		},
		Push: PushConfig{
			VAPIDPublicKey: v.GetString(KeyPushVAPIDPublicKey),
		},
		Token: v.GetString(KeyToken),
	}

	if cfg.Jitsi.ScriptURL == "" {
		cfg.Jitsi.ScriptURL = "https://" + cfg.Jitsi.Domain + "/external_api.js"
	}
	return cfg
}

// IsBackendConfigValid checks that a backend base URL is present
func (c BackendConfig) IsBackendConfigValid() bool {
	return c.BaseURL != ""
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Irrigation limits accepted by Validate.
const (
	MinZoneRunTime        = 1
	MaxZoneRunTime        = 1440
	MinEnabledZones       = 1
	MaxEnabledZones       = 16
	MinTimezoneHalfHours  = -24
	MaxTimezoneHalfHours  = 28
	MaxHardwareZones      = 48
	MaxActiveZonesLimit   = 8
	minJWTSecretLength    = 32
	minPollIntervalMillis = 100
)

// Config is the root configuration structure for the irrigation controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site           SiteConfig           `yaml:"site"`
	Controller     ControllerConfig     `yaml:"controller"`
	Irrigation     IrrigationConfig     `yaml:"irrigation"`
	Database       DatabaseConfig       `yaml:"database"`
	MQTT           MQTTConfig           `yaml:"mqtt"`
	API            APIConfig            `yaml:"api"`
	WebSocket      WebSocketConfig      `yaml:"websocket"`
	InfluxDB       InfluxDBConfig       `yaml:"influxdb"`
	Logging        LoggingConfig        `yaml:"logging"`
	Security       SecurityConfig       `yaml:"security"`
	ScheduleServer ScheduleServerConfig `yaml:"schedule_server"`
	EventLog       EventLogConfig       `yaml:"event_log"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ControllerConfig identifies this controller and sets the host poll cadence.
type ControllerConfig struct {
	DeviceID       string `yaml:"device_id"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
	Valve          string `yaml:"valve"` // "mqtt" or "log"
}

// IrrigationConfig contains the zone limits and local-time parameters the
// scheduling engine works with.
type IrrigationConfig struct {
	// ZoneCount is the number of physical zones wired to the controller.
	ZoneCount int `yaml:"zone_count"`

	// MaxActiveZones is how many zones the hardware can power at once.
	MaxActiveZones int `yaml:"max_active_zones"`

	// MaxEnabledZones limits which zones may run: 1..MaxEnabledZones.
	MaxEnabledZones int `yaml:"max_enabled_zones"`

	// MaxZoneRunTime is the longest accepted run in minutes.
	MaxZoneRunTime int `yaml:"max_zone_run_time"`

	// PumpSafety turns the pump off whenever no zone is running.
	PumpSafety bool `yaml:"pump_safety"`

	SchedulingEnabled bool `yaml:"scheduling_enabled"`

	// TimezoneOffsetHalfHours is the UTC offset in 30 minute steps (e.g. 11 = +5:30).
	TimezoneOffsetHalfHours int  `yaml:"timezone_offset_half_hours"`
	DaylightSaving          bool `yaml:"daylight_saving"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Retain      bool                `yaml:"retain"`
	Discovery   bool                `yaml:"discovery"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains rotating log file settings.
// An empty Path disables file logging.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

// SecurityConfig contains API authentication settings.
type SecurityConfig struct {
	Enabled bool         `yaml:"enabled"`
	JWT     JWTConfig    `yaml:"jwt"`
	Users   []UserConfig `yaml:"users"`
}

// UserConfig is a local API account. PasswordHash is an Argon2id PHC
// string as printed by "irrigationd hash-password".
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"` // viewer, operator or admin
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// ScheduleServerConfig points at the remote service that pushes AI schedules
// and receives watering event reports.
type ScheduleServerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Timeout    int    `yaml:"timeout"` // seconds
	MaxRetries int    `yaml:"max_retries"`
	RetryDelay int    `yaml:"retry_delay"` // seconds
	FetchDays  int    `yaml:"fetch_days"`
	SyncCron   string `yaml:"sync_cron"`
}

// EventLogConfig contains watering event history settings.
type EventLogConfig struct {
	RetentionDays   int    `yaml:"retention_days"`
	PruneCron       string `yaml:"prune_cron"`
	ReportQueueSize int    `yaml:"report_queue_size"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. A .env file next to the working directory, if present
//  3. YAML file values (override defaults)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: IRRIGATION_SECTION_KEY
// For example: IRRIGATION_DATABASE_PATH, IRRIGATION_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	// .env only seeds the process environment; real env vars win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with the controller's factory defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Irrigation Controller",
		},
		Controller: ControllerConfig{
			DeviceID:       "irrigation-01",
			PollIntervalMS: 1000,
			Valve:          "mqtt",
		},
		Irrigation: IrrigationConfig{
			ZoneCount:         16,
			MaxActiveZones:    2,
			MaxEnabledZones:   8,
			MaxZoneRunTime:    240,
			PumpSafety:        true,
			SchedulingEnabled: true,
		},
		Database: DatabaseConfig{
			Path:        "./data/irrigation.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "irrigationd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "irrigation/",
			Retain:      true,
			Discovery:   true,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    10,
				MaxBackups: 5,
				MaxAge:     30,
			},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		ScheduleServer: ScheduleServerConfig{
			Timeout:    10,
			MaxRetries: 3,
			RetryDelay: 2,
			FetchDays:  5,
			SyncCron:   "0 5 * * *",
		},
		EventLog: EventLogConfig{
			RetentionDays:   365,
			PruneCron:       "@daily",
			ReportQueueSize: 64,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IRRIGATION_DEVICE_ID"); v != "" {
		cfg.Controller.DeviceID = v
	}
	if v := os.Getenv("IRRIGATION_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("IRRIGATION_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := envInt("IRRIGATION_MQTT_PORT"); v != nil {
		cfg.MQTT.Broker.Port = *v
	}
	if v := os.Getenv("IRRIGATION_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("IRRIGATION_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("IRRIGATION_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := envInt("IRRIGATION_API_PORT"); v != nil {
		cfg.API.Port = *v
	}

	// InfluxDB
	if v := os.Getenv("IRRIGATION_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("IRRIGATION_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	if v := os.Getenv("IRRIGATION_SCHEDULE_SERVER_URL"); v != "" {
		cfg.ScheduleServer.URL = v
	}

	// Irrigation
	if v := envInt("IRRIGATION_TIMEZONE_OFFSET_HALF_HOURS"); v != nil {
		cfg.Irrigation.TimezoneOffsetHalfHours = *v
	}
	if v := os.Getenv("IRRIGATION_DAYLIGHT_SAVING"); v != "" {
		cfg.Irrigation.DaylightSaving = parseBool(v)
	}
	if v := os.Getenv("IRRIGATION_SCHEDULING_ENABLED"); v != "" {
		cfg.Irrigation.SchedulingEnabled = parseBool(v)
	}
}

// envInt returns the integer value of an environment variable, or nil when
// it is unset or not a number.
func envInt(key string) *int {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Controller.DeviceID == "" {
		errs = append(errs, "controller.device_id is required")
	}
	if c.Controller.PollIntervalMS < minPollIntervalMillis || c.Controller.PollIntervalMS > int(time.Minute/time.Millisecond) {
		errs = append(errs, "controller.poll_interval_ms must be between 100 and 60000")
	}
	switch c.Controller.Valve {
	case "mqtt", "log":
	default:
		errs = append(errs, "controller.valve must be \"mqtt\" or \"log\"")
	}

	errs = append(errs, c.Irrigation.validate()...)

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.Controller.Valve == "mqtt" && !c.MQTT.Enabled {
		errs = append(errs, "controller.valve \"mqtt\" requires mqtt.enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Tokens signed with a short secret can be brute forced offline.
	if c.Security.Enabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when security is enabled (set IRRIGATION_JWT_SECRET)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
		for i, u := range c.Security.Users {
			if u.Username == "" || u.PasswordHash == "" {
				errs = append(errs, fmt.Sprintf("security.users[%d] needs username and password_hash", i))
			}
			switch u.Role {
			case "viewer", "operator", "admin":
			default:
				errs = append(errs, fmt.Sprintf("security.users[%d].role %q must be viewer, operator or admin", i, u.Role))
			}
		}
	}

	if c.ScheduleServer.Enabled {
		if c.ScheduleServer.URL == "" {
			errs = append(errs, "schedule_server.url is required when the schedule server is enabled")
		}
		if c.ScheduleServer.FetchDays < 1 || c.ScheduleServer.FetchDays > 14 {
			errs = append(errs, "schedule_server.fetch_days must be between 1 and 14")
		}
	}

	if c.EventLog.RetentionDays < 1 {
		errs = append(errs, "event_log.retention_days must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate applies the controller limits to the irrigation section.
func (ic IrrigationConfig) validate() []string {
	var errs []string
	if ic.ZoneCount < 1 || ic.ZoneCount > MaxHardwareZones {
		errs = append(errs, fmt.Sprintf("irrigation.zone_count must be between 1 and %d", MaxHardwareZones))
	}
	if ic.MaxActiveZones < 1 || ic.MaxActiveZones > MaxActiveZonesLimit {
		errs = append(errs, fmt.Sprintf("irrigation.max_active_zones must be between 1 and %d", MaxActiveZonesLimit))
	}
	if ic.MaxEnabledZones < MinEnabledZones || ic.MaxEnabledZones > MaxEnabledZones {
		errs = append(errs, fmt.Sprintf("irrigation.max_enabled_zones must be between %d and %d", MinEnabledZones, MaxEnabledZones))
	} else if ic.MaxEnabledZones > ic.ZoneCount && ic.ZoneCount > 0 {
		errs = append(errs, "irrigation.max_enabled_zones cannot exceed irrigation.zone_count")
	}
	if ic.MaxZoneRunTime < MinZoneRunTime || ic.MaxZoneRunTime > MaxZoneRunTime {
		errs = append(errs, fmt.Sprintf("irrigation.max_zone_run_time must be between %d and %d minutes", MinZoneRunTime, MaxZoneRunTime))
	}
	if ic.TimezoneOffsetHalfHours < MinTimezoneHalfHours || ic.TimezoneOffsetHalfHours > MaxTimezoneHalfHours {
		errs = append(errs, fmt.Sprintf("irrigation.timezone_offset_half_hours must be between %d and %d", MinTimezoneHalfHours, MaxTimezoneHalfHours))
	}
	return errs
}

// PollInterval returns the host poll cadence as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Controller.PollIntervalMS) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

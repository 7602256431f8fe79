package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to the lobby
// server and its tools.
type Config struct {
	// Hostname or IP address on which the server will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// Port on which the lobby accepts game clients.
	Port int `mapstructure:"port"`
	// Maximum number of concurrent connections before accepting is paused.
	MaxConnections int `mapstructure:"max_connections"`
	// Largest payload a client may declare in a frame header.
	MaxPacketSize int `mapstructure:"max_packet_size"`

	TCPKeepAlive struct {
		Idle     time.Duration `mapstructure:"idle"`
		Interval time.Duration `mapstructure:"interval"`
		Count    int           `mapstructure:"count"`
	} `mapstructure:"tcp_keepalive"`

	Logging struct {
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
		// Include file and line number in log lines.
		IncludeCaller bool `mapstructure:"include_caller"`
	} `mapstructure:"logging"`

	Database struct {
		// Either sqlite or postgres.
		Engine string `mapstructure:"engine"`
		// Path of the database file when using sqlite.
		Filename string `mapstructure:"filename"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Name     string `mapstructure:"name"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		// Set to verify-full if the Postgres instance supports SSL.
		SSLMode string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Control struct {
		// Unix socket of the supervisor.
		Address string `mapstructure:"address"`
		// File descriptor inherited from the supervisor. Takes precedence over Address.
		FD int `mapstructure:"fd"`
	} `mapstructure:"control"`

	Lobby struct {
		// Name shown in the second roster slot of the waiting room.
		Banner string `mapstructure:"banner"`
		// Sender name used for server chat lines.
		ServerName          string        `mapstructure:"server_name"`
		KeepAliveMessage    string        `mapstructure:"keepalive_message"`
		KeepAliveInterval   time.Duration `mapstructure:"keepalive_interval"`
		StatsInterval       time.Duration `mapstructure:"stats_interval"`
		MatchmakingInterval time.Duration `mapstructure:"matchmaking_interval"`
		InjectInterval      time.Duration `mapstructure:"inject_interval"`
		// Process aborts if the event loop stalls for longer than this.
		WatchdogGrace     time.Duration `mapstructure:"watchdog_grace"`
		MinSecondsWaiting int           `mapstructure:"min_seconds_waiting"`
		MaxSecondsWaiting int           `mapstructure:"max_seconds_waiting"`
		// Accept "ipchange" packets from a fronting proxy.
		TrustIPChange bool `mapstructure:"trust_ip_change"`
	} `mapstructure:"lobby"`

	Duel struct {
		Rule             uint8         `mapstructure:"rule"`
		DrawCount        uint8         `mapstructure:"draw_count"`
		StartHand        uint8         `mapstructure:"start_hand"`
		TimeLimit        uint16        `mapstructure:"time_limit"`
		StartLP          uint32        `mapstructure:"start_lp"`
		LFList           uint32        `mapstructure:"lflist"`
		EnablePriority   bool          `mapstructure:"enable_priority"`
		NoCheckDeck      bool          `mapstructure:"no_check_deck"`
		NoShuffleDeck    bool          `mapstructure:"no_shuffle_deck"`
		WaitingTimeout   time.Duration `mapstructure:"waiting_timeout"`
		UserTimeout      time.Duration `mapstructure:"user_timeout"`
		ReconnectTimeout time.Duration `mapstructure:"reconnect_timeout"`
		ZombieTimeout    time.Duration `mapstructure:"zombie_timeout"`
	} `mapstructure:"duel"`

	// Path to the lflist.conf holding the forbidden/limited lists.
	ForbiddenListFile string `mapstructure:"forbidden_list_file"`

	GeoIP struct {
		Networks []GeoIPNetwork `mapstructure:"networks"`
		CacheTTL time.Duration  `mapstructure:"cache_ttl"`
	} `mapstructure:"geoip"`

	Scores struct {
		DefaultScore int           `mapstructure:"default_score"`
		KFactor      int           `mapstructure:"k_factor"`
		CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"scores"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the server.
		Enabled bool `mapstructure:"enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
		// Dump inbound frames to the log.
		PacketLoggingEnabled bool `mapstructure:"packet_logging_enabled"`
		// Enable database-level query logging.
		DatabaseLoggingEnabled bool `mapstructure:"database_logging_enabled"`
	} `mapstructure:"debugging"`
}

// GeoIPNetwork maps an address block to a two letter country code.
type GeoIPNetwork struct {
	CIDR string `mapstructure:"cidr"`
	Code string `mapstructure:"code"`
}

const envVarPrefix = "CHECKMATE"

var defaults = map[string]interface{}{
	"hostname":                   "0.0.0.0",
	"port":                       7911,
	"max_connections":            500,
	"max_packet_size":            0x2000,
	"tcp_keepalive.idle":         "120s",
	"tcp_keepalive.interval":     "30s",
	"tcp_keepalive.count":        4,
	"logging.log_level":          "info",
	"database.engine":            "sqlite",
	"database.filename":          "checkmate.db",
	"lobby.banner":               "Checkmate Server!",
	"lobby.server_name":          "CheckMate",
	"lobby.keepalive_interval":   "600s",
	"lobby.stats_interval":       "5s",
	"lobby.matchmaking_interval": "1s",
	"lobby.inject_interval":      "200ms",
	"lobby.watchdog_grace":       "30s",
	"lobby.min_seconds_waiting":  4,
	"lobby.max_seconds_waiting":  20,
	"duel.rule":                  2,
	"duel.draw_count":            1,
	"duel.start_hand":            5,
	"duel.time_limit":            120,
	"duel.start_lp":              8000,
	"duel.lflist":                1,
	"duel.waiting_timeout":       "300s",
	"duel.user_timeout":          "180s",
	"duel.reconnect_timeout":     "30s",
	"duel.zombie_timeout":        "60s",
	"forbidden_list_file":        "lflist.conf",
	"geoip.cache_ttl":            "1h",
	"scores.default_score":       1000,
	"scores.k_factor":            32,
	"scores.cache_ttl":           "30s",
	"debugging.pprof_port":       4000,
}

// LoadConfig reads config.yaml from configPath into a new Config. Every key
// can also be set through the environment, e.g. CHECKMATE_DATABASE_HOST.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("no config file in path %s", configPath)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, database.host can be set using: <envVarPrefix>_DATABASE_HOST
	for _, k := range v.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("error binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config object: %w", err)
	}
	return config, nil
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns a database URL generated from the provided config values.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		databaseURITemplate,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Username,
		c.Database.Password,
		c.Database.SSLMode,
	)
}

// ListenAddress is the host:port pair game clients connect to.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Port)
}

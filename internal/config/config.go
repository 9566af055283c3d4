package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "NODE"

type HeartbeatConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Timeout      time.Duration `mapstructure:"timeout"`
	// Transport is "http" (control plane endpoint) or "nats".
	Transport     string `mapstructure:"transport"`
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Config struct {
	Mode      string `mapstructure:"mode"`
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	NodeID          string `mapstructure:"node_id"`
	NodeAPIKey      string `mapstructure:"node_api_key"`
	ControlPlaneURL string `mapstructure:"control_plane_url"`

	ReadLimit          int64         `mapstructure:"read_limit"`
	PingPeriod         time.Duration `mapstructure:"ping_period"`
	PongWait           time.Duration `mapstructure:"pong_wait"`
	WriteWait          time.Duration `mapstructure:"write_wait"`
	SendBuffer         int           `mapstructure:"send_buffer"`
	BackpressurePolicy string        `mapstructure:"backpressure_policy"`

	DefaultMaxParticipants int           `mapstructure:"default_max_participants"`
	JoinRateLimit          int           `mapstructure:"join_rate_limit"`
	JoinRateWindow         time.Duration `mapstructure:"join_rate_window"`

	Heartbeat          HeartbeatConfig `mapstructure:"heartbeat"`
	LoadSampleInterval time.Duration   `mapstructure:"load_sample_interval"`
	ShutdownTimeout    time.Duration   `mapstructure:"shutdown_timeout"`

	ICEServers []ICEServer `mapstructure:"ice_servers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8081)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	v.SetDefault("node_id", "CHANGE_ME_NODE_ID")
	v.SetDefault("node_api_key", "")
	v.SetDefault("control_plane_url", "http://127.0.0.1:8000")

	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("backpressure_policy", "drop")

	v.SetDefault("default_max_participants", 20)
	v.SetDefault("join_rate_limit", 0)
	v.SetDefault("join_rate_window", "10s")

	v.SetDefault("heartbeat.interval", "10s")
	v.SetDefault("heartbeat.initial_delay", "2s")
	v.SetDefault("heartbeat.timeout", "5s")
	v.SetDefault("heartbeat.transport", "http")
	v.SetDefault("heartbeat.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("heartbeat.subject_prefix", "nodes")
	v.SetDefault("load_sample_interval", "5s")
	v.SetDefault("shutdown_timeout", "5s")

	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
}

// bindLegacyEnv keeps the variable names the node service has always used.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("node_id", envPrefix+"_NODE_ID", "NODE_ID")
	_ = v.BindEnv("node_api_key", envPrefix+"_NODE_API_KEY", "NODE_API_KEY")
	_ = v.BindEnv("control_plane_url", envPrefix+"_CONTROL_PLANE_URL", "CONTROL_PLANE_URL")
	_ = v.BindEnv("heartbeat_interval_seconds", "HEARTBEAT_INTERVAL_SECONDS")
}

// Load reads config/config.<CONFIG_ENV>.yaml (CONFIG_ENV defaults to dev).
// A missing file is not an error: defaults and environment apply.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return load(fmt.Sprintf("config/config.%s.yaml", env), false)
}

// LoadFile reads an explicit config file, which must exist.
func LoadFile(path string) (*Config, error) {
	return load(path, true)
}

func load(fileName string, required bool) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	bindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if required || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if secs := v.GetInt("heartbeat_interval_seconds"); secs > 0 {
		cfg.Heartbeat.Interval = time.Duration(secs) * time.Second
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("node_id", cfg.NodeID).Str("heartbeat", cfg.Heartbeat.Transport).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.NodeID == "" {
		errs = append(errs, errors.New("node_id is required"))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, errors.New("read_limit must be positive"))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, errors.New("send_buffer must be positive"))
	}
	if c.PingPeriod < 0 || (c.PingPeriod > 0 && c.PongWait <= c.PingPeriod) {
		errs = append(errs, errors.New("pong_wait must be longer than ping_period"))
	}
	if c.WriteWait <= 0 {
		errs = append(errs, errors.New("write_wait must be positive"))
	}
	switch c.BackpressurePolicy {
	case "drop", "kick":
	default:
		errs = append(errs, fmt.Errorf("unknown backpressure_policy %q", c.BackpressurePolicy))
	}
	if c.JoinRateLimit < 0 || (c.JoinRateLimit > 0 && c.JoinRateWindow <= 0) {
		errs = append(errs, errors.New("join_rate_window must be positive when join_rate_limit is set"))
	}
	if c.Heartbeat.Interval <= 0 {
		errs = append(errs, errors.New("heartbeat.interval must be positive"))
	}
	if c.Heartbeat.InitialDelay < 0 {
		errs = append(errs, errors.New("heartbeat.initial_delay must not be negative"))
	}
	if c.LoadSampleInterval <= 0 {
		errs = append(errs, errors.New("load_sample_interval must be positive"))
	}
	switch c.Heartbeat.Transport {
	case "http":
		if u, err := url.Parse(c.ControlPlaneURL); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid control_plane_url %q", c.ControlPlaneURL))
		}
	case "nats":
		if c.Heartbeat.NATSURL == "" {
			errs = append(errs, errors.New("heartbeat.nats_url is required for nats transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown heartbeat.transport %q", c.Heartbeat.Transport))
	}
	for i, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			errs = append(errs, fmt.Errorf("ice_servers[%d] has no urls", i))
		}
	}
	return errors.Join(errs...)
}

// PeerICEServers converts the configured ICE servers to the form browsers and
// pion peers consume.
func (c *Config) PeerICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		srv := webrtc.ICEServer{URLs: append([]string(nil), s.URLs...)}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}

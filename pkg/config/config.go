package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/cache"
	"github.com/code-100-precent/LingCollect/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/ulule/limiter/v3"
)

// Config main configuration structure. It is built once by Load and passed
// down explicitly.
type Config struct {
	Server    ServerConfig
	Log       logger.LogConfig
	Cache     cache.Config
	LiveKit   LiveKitConfig
	Media     MediaConfig
	Agent     AgentConfig
	Recording RecordingConfig
	Monitor   MonitorConfig
	Providers ProvidersConfig
}

// ServerConfig worker HTTP surface
type ServerConfig struct {
	Addr          string `env:"ADDR"`
	Mode          string `env:"MODE"`
	APIPrefix     string `env:"API_PREFIX"`
	MonitorPrefix string `env:"MONITOR_PREFIX"`
	// JobRateLimit is a limiter rate such as 60-M, empty disables it
	JobRateLimit string `env:"JOB_RATE_LIMIT"`
}

// LiveKitConfig room and telephony control plane
type LiveKitConfig struct {
	URL        string        `env:"LIVEKIT_URL"`
	APIKey     string        `env:"LIVEKIT_API_KEY"`
	APISecret  string        `env:"LIVEKIT_API_SECRET"`
	SIPTrunkID string        `env:"LIVEKIT_SIP_TRUNK_ID"`
	AgentName  string        `env:"AGENT_NAME"`
	Timeout    time.Duration `env:"LIVEKIT_TIMEOUT"`
}

// MediaConfig room media bridge
type MediaConfig struct {
	BridgeURL     string        `env:"MEDIA_BRIDGE_URL"`
	FrameInterval time.Duration `env:"MEDIA_FRAME_INTERVAL"`
}

// AgentConfig conversation defaults
type AgentConfig struct {
	Persona            string        `env:"AGENT_PERSONA"`
	VADThreshold       float64       `env:"VAD_THRESHOLD"`
	VADMinSpeech       time.Duration `env:"VAD_MIN_SPEECH"`
	VADMinSilence      time.Duration `env:"VAD_MIN_SILENCE"`
	VADServiceURL      string        `env:"VAD_SERVICE_URL"`
	OpeningCacheTTL    time.Duration `env:"OPENING_CACHE_TTL"`
	DefaultParticipant string        `env:"DEFAULT_PARTICIPANT_NAME"`
}

// RecordingConfig call recording
type RecordingConfig struct {
	Enabled     bool          `env:"RECORDING_ENABLED"`
	Dir         string        `env:"RECORDING_DIR"`
	Layout      string        `env:"RECORDING_LAYOUT"`
	StopTimeout time.Duration `env:"RECORDING_STOP_TIMEOUT"`
}

// MonitorConfig room status polling
type MonitorConfig struct {
	Attempts        int           `env:"POLL_ATTEMPTS"`
	Interval        time.Duration `env:"POLL_INTERVAL"`
	ActiveThreshold int           `env:"ACTIVE_PARTICIPANT_THRESHOLD"`
	SnapshotTTL     time.Duration `env:"STATUS_SNAPSHOT_TTL"`
}

// ProvidersConfig speech and language providers
type ProvidersConfig struct {
	OpenAI   OpenAIConfig
	Deepgram DeepgramConfig
	Cartesia CartesiaConfig
}

type OpenAIConfig struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	BaseURL string `env:"OPENAI_BASE_URL"`
}

type DeepgramConfig struct {
	APIKey string `env:"DEEPGRAM_API_KEY"`
	URL    string `env:"DEEPGRAM_URL"`
}

type CartesiaConfig struct {
	APIKey  string `env:"CARTESIA_API_KEY"`
	URL     string `env:"CARTESIA_URL"`
	Version string `env:"CARTESIA_VERSION"`
}

// MissingError lists required settings that are absent.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// RequiredKeys are the settings without which no call can be placed.
var RequiredKeys = []string{"LIVEKIT_URL", "LIVEKIT_API_KEY", "LIVEKIT_API_SECRET"}

// Load reads .env files for the current APP_ENV (missing files are fine)
// and builds the configuration from the environment.
func Load() (*Config, error) {
	if err := loadEnv(os.Getenv("APP_ENV")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:          getStringOrDefault("ADDR", ":7080"),
			Mode:          getStringOrDefault("MODE", "development"),
			APIPrefix:     getStringOrDefault("API_PREFIX", "/api"),
			MonitorPrefix: getStringOrDefault("MONITOR_PREFIX", "/metrics"),
			JobRateLimit:  getStringOrDefault("JOB_RATE_LIMIT", "60-M"),
		},
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/agent.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG_DAILY", false),
		},
		Cache: cache.Config{
			Type:              getStringOrDefault("CACHE_TYPE", cache.KindGoCache),
			DefaultExpiration: getDurationOrDefault("CACHE_DEFAULT_EXPIRATION", 30*time.Minute),
			CleanupInterval:   getDurationOrDefault("CACHE_CLEANUP_INTERVAL", 10*time.Minute),
			Size:              getIntOrDefault("CACHE_SIZE", 1024),
			Redis: cache.RedisConfig{
				Addr:        getStringOrDefault("REDIS_ADDR", "localhost:6379"),
				Password:    getStringOrDefault("REDIS_PASSWORD", ""),
				DB:          getIntOrDefault("REDIS_DB", 0),
				PoolSize:    getIntOrDefault("REDIS_POOL_SIZE", 10),
				DialTimeout: getDurationOrDefault("REDIS_DIAL_TIMEOUT", 5*time.Second),
				KeyPrefix:   getStringOrDefault("REDIS_KEY_PREFIX", "lingcollect:"),
			},
		},
		LiveKit: LiveKitConfig{
			URL:        getStringOrDefault("LIVEKIT_URL", ""),
			APIKey:     getStringOrDefault("LIVEKIT_API_KEY", ""),
			APISecret:  getStringOrDefault("LIVEKIT_API_SECRET", ""),
			SIPTrunkID: getStringOrDefault("LIVEKIT_SIP_TRUNK_ID", ""),
			AgentName:  getStringOrDefault("AGENT_NAME", "debt-collection-agent"),
			Timeout:    getDurationOrDefault("LIVEKIT_TIMEOUT", 10*time.Second),
		},
		Media: MediaConfig{
			BridgeURL:     getStringOrDefault("MEDIA_BRIDGE_URL", ""),
			FrameInterval: getDurationOrDefault("MEDIA_FRAME_INTERVAL", 20*time.Millisecond),
		},
		Agent: AgentConfig{
			Persona:            getStringOrDefault("AGENT_PERSONA", "sarah"),
			VADThreshold:       getFloatOrDefault("VAD_THRESHOLD", 500),
			VADMinSpeech:       getDurationOrDefault("VAD_MIN_SPEECH", 100*time.Millisecond),
			VADMinSilence:      getDurationOrDefault("VAD_MIN_SILENCE", 400*time.Millisecond),
			VADServiceURL:      getStringOrDefault("VAD_SERVICE_URL", ""),
			OpeningCacheTTL:    getDurationOrDefault("OPENING_CACHE_TTL", 24*time.Hour),
			DefaultParticipant: getStringOrDefault("DEFAULT_PARTICIPANT_NAME", "Outbound Call"),
		},
		Recording: RecordingConfig{
			Enabled:     getBoolOrDefault("RECORDING_ENABLED", true),
			Dir:         getStringOrDefault("RECORDING_DIR", "recordings"),
			Layout:      getStringOrDefault("RECORDING_LAYOUT", "speaker"),
			StopTimeout: getDurationOrDefault("RECORDING_STOP_TIMEOUT", 10*time.Second),
		},
		Monitor: MonitorConfig{
			Attempts:        getIntOrDefault("POLL_ATTEMPTS", 10),
			Interval:        getDurationOrDefault("POLL_INTERVAL", 5*time.Second),
			ActiveThreshold: getIntOrDefault("ACTIVE_PARTICIPANT_THRESHOLD", 1),
			SnapshotTTL:     getDurationOrDefault("STATUS_SNAPSHOT_TTL", 10*time.Minute),
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:  getStringOrDefault("OPENAI_API_KEY", ""),
				BaseURL: getStringOrDefault("OPENAI_BASE_URL", ""),
			},
			Deepgram: DeepgramConfig{
				APIKey: getStringOrDefault("DEEPGRAM_API_KEY", ""),
				URL:    getStringOrDefault("DEEPGRAM_URL", "wss://api.deepgram.com/v1/listen"),
			},
			Cartesia: CartesiaConfig{
				APIKey:  getStringOrDefault("CARTESIA_API_KEY", ""),
				URL:     getStringOrDefault("CARTESIA_URL", "https://api.cartesia.ai"),
				Version: getStringOrDefault("CARTESIA_VERSION", "2024-06-10"),
			},
		},
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	values := []string{c.LiveKit.URL, c.LiveKit.APIKey, c.LiveKit.APISecret}
	var missing []string
	for i, key := range RequiredKeys {
		if strings.TrimSpace(values[i]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}

	if c.Monitor.ActiveThreshold < 0 {
		return errors.New("active participant threshold must not be negative")
	}
	if c.Monitor.Attempts <= 0 {
		return errors.New("poll attempts must be positive")
	}
	if c.Server.Addr == "" {
		return errors.New("server address is required")
	}
	if c.Server.JobRateLimit != "" {
		if _, err := limiter.NewRateFromFormatted(c.Server.JobRateLimit); err != nil {
			return fmt.Errorf("invalid job rate limit %q: %w", c.Server.JobRateLimit, err)
		}
	}
	return nil
}

// loadEnv loads .env.<env> (when env is set) and then .env. Values already
// present in the process environment win.
func loadEnv(env string) error {
	files := make([]string, 0, 2)
	if env != "" {
		files = append(files, ".env."+env)
	}
	files = append(files, ".env")

	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// getStringOrDefault gets environment variable value, returns default if empty
func getStringOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	raw := getStringOrDefault(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func getIntOrDefault(key string, defaultValue int) int {
	raw := getStringOrDefault(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	raw := getStringOrDefault(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

// getDurationOrDefault accepts Go duration strings such as "5s" or "250ms"
func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	raw := getStringOrDefault(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := cast.ToDurationE(raw)
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

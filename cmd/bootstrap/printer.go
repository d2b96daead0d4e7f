package bootstrap

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/code-100-precent/LingCollect/pkg/cache"
	"github.com/code-100-precent/LingCollect/pkg/config"
	"go.uber.org/zap"
)

// Banner is printed when the worker starts
const Banner = ` _     _              ____      _ _           _
| |   (_)_ __   __ _ / ___|___ | | | ___  ___| |_
| |   | | '_ \ / _' | |   / _ \| | |/ _ \/ __| __|
| |___| | | | | (_| | |__| (_) | | |  __/ (__| |_
|_____|_|_| |_|\__, |\____\___/|_|_|\___|\___|\__|
               |___/`

var bannerColors = []string{
	"\x1b[38;5;165m",
	"\x1b[38;5;189m",
	"\x1b[38;5;207m",
	"\x1b[38;5;219m",
	"\x1b[38;5;225m",
	"\x1b[38;5;231m",
}

// Mask hides all but the last four characters of a secret
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}

// LogConfigInfo logs the effective configuration with secrets masked
func LogConfigInfo(logger *zap.Logger, cfg *config.Config) {
	logger.Info("system config load finished")
	logger.Info("server config",
		zap.String("addr", cfg.Server.Addr),
		zap.String("mode", cfg.Server.Mode),
		zap.String("api_prefix", cfg.Server.APIPrefix),
		zap.String("monitor_prefix", cfg.Server.MonitorPrefix),
		zap.String("job_rate_limit", cfg.Server.JobRateLimit),
	)
	cacheFields := []zap.Field{zap.String("type", cfg.Cache.Type)}
	if cfg.Cache.Type == cache.KindRedis {
		cacheFields = append(cacheFields,
			zap.String("redis_addr", cfg.Cache.Redis.Addr),
			zap.String("redis_password", Mask(cfg.Cache.Redis.Password)),
			zap.Int("redis_db", cfg.Cache.Redis.DB))
	}
	logger.Info("cache config", cacheFields...)
	logger.Info("livekit config",
		zap.String("url", cfg.LiveKit.URL),
		zap.String("api_key", Mask(cfg.LiveKit.APIKey)),
		zap.String("api_secret", Mask(cfg.LiveKit.APISecret)),
		zap.String("sip_trunk_id", cfg.LiveKit.SIPTrunkID),
		zap.String("agent_name", cfg.LiveKit.AgentName),
	)
	logger.Info("agent config",
		zap.String("persona", cfg.Agent.Persona),
		zap.String("media_bridge_url", cfg.Media.BridgeURL),
		zap.Bool("recording_enabled", cfg.Recording.Enabled),
		zap.String("recording_dir", cfg.Recording.Dir),
		zap.Int("poll_attempts", cfg.Monitor.Attempts),
		zap.Duration("poll_interval", cfg.Monitor.Interval),
		zap.Int("active_threshold", cfg.Monitor.ActiveThreshold),
	)
	logger.Info("provider config",
		zap.String("openai_api_key", Mask(cfg.Providers.OpenAI.APIKey)),
		zap.String("deepgram_api_key", Mask(cfg.Providers.Deepgram.APIKey)),
		zap.String("cartesia_api_key", Mask(cfg.Providers.Cartesia.APIKey)),
	)
	logger.Info("log config",
		zap.String("log_level", cfg.Log.Level),
		zap.String("log_filename", cfg.Log.Filename),
		zap.Int("log_max_size", cfg.Log.MaxSize),
		zap.Int("log_max_age", cfg.Log.MaxAge),
		zap.Int("log_max_backups", cfg.Log.MaxBackups),
	)
}

// PrintBanner writes banner line by line in cycling colours
func PrintBanner(w io.Writer, banner string) {
	for i, line := range strings.Split(banner, "\n") {
		fmt.Fprintln(w, bannerColors[i%len(bannerColors)]+line+"\x1b[0m")
	}
}

// PrintBannerFromFile prints the banner stored in filename
func PrintBannerFromFile(w io.Writer, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	PrintBanner(w, string(data))
	return nil
}

// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	HTTP       HTTP
	App        App
	Job        Job
	Engine     Engine
	Dir        Dir
	Store      Store
	DepManager DepManager
}

// App holds application-wide configuration.
type App struct {
	LogLevel string `env:"CLIPD_APP_LOG_LEVEL" envDefault:"info"`
}

// Job holds orchestrator configuration.
type Job struct {
	// MaxConcurrent caps the number of simultaneously active downloads.
	MaxConcurrent int `env:"CLIPD_JOB_MAX_CONCURRENT" envDefault:"3"`
	// SchedulerTick is the periodic interval at which queued jobs are promoted.
	SchedulerTick time.Duration `env:"CLIPD_JOB_SCHEDULER_TICK" envDefault:"1s"`
	// EventBuffer is the per-subscriber event channel capacity.
	EventBuffer int `env:"CLIPD_JOB_EVENT_BUFFER" envDefault:"64"`
}

// Engine holds download engine configuration. Timeout and MaxRetries are
// passed through to the engine at initialization only; no timeout logic lives
// in the orchestrator.
type Engine struct {
	Timeout      time.Duration `env:"CLIPD_ENGINE_TIMEOUT"       envDefault:"30m"`
	MaxRetries   int           `env:"CLIPD_ENGINE_MAX_RETRIES"   envDefault:"3"`
	ProgressFreq time.Duration `env:"CLIPD_ENGINE_PROGRESS_FREQ" envDefault:"500ms"`
}

// Store holds persistence configuration.
type Store struct {
	// File is the JSON file holding terminal download records.
	File string `env:"CLIPD_STORE_FILE" envDefault:"./data/downloads.json"`
}

// HTTP holds HTTP server configuration.
type HTTP struct {
	Port            string        `env:"CLIPD_HTTP_PORT"             envDefault:":8573"`
	HandlerTimeout  time.Duration `env:"CLIPD_HTTP_HANDLER_TIMEOUT"  envDefault:"20s"`
	ShutdownTimeout time.Duration `env:"CLIPD_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Dir holds directory paths for downloads and the engine cache.
type Dir struct {
	Downloads string `env:"CLIPD_DIR_DOWNLOAD" envDefault:"./data/downloads"`
	Cache     string `env:"CLIPD_DIR_CACHE"    envDefault:"./data/cache"`

	// must contain cookies.txt file
	// see: https://github.com/yt-dlp/yt-dlp/wiki/FAQ#how-do-i-pass-cookies-to-yt-dlp
	CookieFile string `env:"CLIPD_DIR_COOKIE_FILE" envDefault:""`

	// see: https://github.com/yt-dlp/yt-dlp/blob/2025.09.05/README.md#output-template
	FilenameTemplate string `env:"CLIPD_DIR_FILENAME_TEMPLATE" envDefault:"%(title)s [%(id)s].%(ext)s"`
}

// SetAbsPaths converts all directory paths to absolute paths.
func (c *Dir) SetAbsPaths() error {
	var err error
	if c.Downloads, err = filepath.Abs(c.Downloads); err != nil {
		return fmt.Errorf("downloads: %w", err)
	}

	if c.Cache, err = filepath.Abs(c.Cache); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if c.CookieFile != "" {
		if c.CookieFile, err = filepath.Abs(c.CookieFile); err != nil {
			return fmt.Errorf("cookie file: %w", err)
		}
	}

	if c.FilenameTemplate, err = filepath.Abs(filepath.Join(c.Downloads, c.FilenameTemplate)); err != nil {
		return fmt.Errorf("filename template: %w", err)
	}

	return nil
}

// DepManager holds binary dependency management configuration.
type DepManager struct {
	// BinsDir is the directory where managed binaries are stored.
	BinsDir string `env:"CLIPD_DEPMANAGER_BINS_DIR" envDefault:"./bins"`
	// UseSystemBinaries indicates whether to use system-installed binaries or download them.
	UseSystemBinaries bool `env:"CLIPD_DEPMANAGER_USE_SYSTEM_BINARIES" envDefault:"false"`
	// UpdateInterval is how often to check for binary updates.
	UpdateInterval time.Duration `env:"CLIPD_DEPMANAGER_UPDATE_INTERVAL" envDefault:"24h"`

	// ffmpeg binary URLs per platform.
	FFmpegSHA256SumsURL string `env:"CLIPD_DEPMANAGER_FFMPEG_SHA256SUMS_URL" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/checksums.sha256"`                        //nolint:lll
	FFmpegLinuxARM64    string `env:"CLIPD_DEPMANAGER_FFMPEG_LINUX_ARM64" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linuxarm64-gpl.tar.xz"` //nolint:lll
	FFmpegLinuxAMD64    string `env:"CLIPD_DEPMANAGER_FFMPEG_LINUX_AMD64" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linux64-gpl.tar.xz"`    //nolint:lll

	// yt-dlp binary URLs per platform.
	YTdlpSHA256SumsURL string `env:"CLIPD_DEPMANAGER_YTDLP_SHA256SUMS_URL" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/SHA2-256SUMS"`      //nolint:lll
	YTdlpLinuxARM64    string `env:"CLIPD_DEPMANAGER_YTDLP_LINUX_ARM64" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux_aarch64"` //nolint:lll
	YTdlpLinuxAMD64    string `env:"CLIPD_DEPMANAGER_YTDLP_LINUX_AMD64" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux"`         //nolint:lll
}

// SetAbsPaths converts the BinsDir path to an absolute path.
func (d *DepManager) SetAbsPaths() error {
	var err error
	if d.BinsDir, err = filepath.Abs(d.BinsDir); err != nil {
		return fmt.Errorf("bins dir: %w", err)
	}

	return nil
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	cfg := &Config{}

	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	err = cfg.Dir.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set absolute paths: %w", err)
	}

	err = cfg.DepManager.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set dep manager absolute paths: %w", err)
	}

	if cfg.Store.File, err = filepath.Abs(cfg.Store.File); err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	return cfg, nil
}

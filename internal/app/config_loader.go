package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/blackdown/video-downloader/internal/domain"
)

// LoadConfig loads configuration from file and environment with
// load-or-default semantics: a missing config file falls back to
// defaults and unknown keys are ignored.
func LoadConfig(configPath string) (*domain.Config, error) {
	// A .env file, when present, feeds the environment before viper
	// reads it. Ignore absence.
	_ = godotenv.Load()

	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.video-downloader")
		v.AddConfigPath("/etc/video-downloader")
	}

	v.SetEnvPrefix("VIDEODL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.OutputDir = expandPath(config.Download.OutputDir)
	config.Queue.DatabasePath = expandPath(config.Queue.DatabasePath)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	if strings.Contains(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return path
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.OutputDir == "" {
		return fmt.Errorf("output directory not configured")
	}

	if config.Download.ConcurrentLimit < 1 {
		return fmt.Errorf("concurrent limit must be at least 1")
	}

	if config.Download.YTDLPBinary == "" {
		return fmt.Errorf("downloader binary not configured")
	}

	if config.Queue.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if config.Probe.AccessTimeout <= 0 || config.Probe.ExtractorTimeout <= 0 {
		return fmt.Errorf("probe timeouts must be positive")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	// Keys are set individually so the written file uses the same names
	// LoadConfig reads back
	v.Set("server.host", config.Server.Host)
	v.Set("server.port", config.Server.Port)
	v.Set("download.output_dir", config.Download.OutputDir)
	v.Set("download.temp_subdir", config.Download.TempSubdir)
	v.Set("download.concurrent_limit", config.Download.ConcurrentLimit)
	v.Set("download.quality_cap_1080", config.Download.QualityCap1080)
	v.Set("download.fast_mode", config.Download.FastMode)
	v.Set("download.use_aria2", config.Download.UseAria2)
	v.Set("download.skip_cookies", config.Download.SkipCookies)
	v.Set("download.browser", config.Download.Browser)
	v.Set("download.browser_profile", config.Download.BrowserProfile)
	v.Set("download.ytdlp_binary", config.Download.YTDLPBinary)
	v.Set("download.tail_lines", config.Download.TailLines)
	v.Set("queue.database_path", config.Queue.DatabasePath)
	v.Set("queue.poll_interval", config.Queue.PollInterval.String())
	v.Set("probe.access_timeout", config.Probe.AccessTimeout.String())
	v.Set("probe.extractor_timeout", config.Probe.ExtractorTimeout.String())
	v.Set("notification.enabled", config.Notification.Enabled)
	v.Set("notification.sound", config.Notification.Sound)
	v.Set("notification.method", config.Notification.Method)
	v.Set("window.width", config.Window.Width)
	v.Set("window.height", config.Window.Height)
	v.Set("window.theme", config.Window.Theme)
	v.Set("logging.level", config.Logging.Level)
	v.Set("logging.format", config.Logging.Format)
	v.Set("logging.output_path", config.Logging.OutputPath)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Probe        ProbeConfig        `mapstructure:"probe"`
	Notification NotificationConfig `mapstructure:"notification"`
	Window       WindowConfig       `mapstructure:"window"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains HTTP API configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	// TempSubdir is the subfolder under OutputDir that receives
	// temporary and partial files
	TempSubdir      string `mapstructure:"temp_subdir"`
	ConcurrentLimit int    `mapstructure:"concurrent_limit"`
	QualityCap1080  bool   `mapstructure:"quality_cap_1080"`
	FastMode        bool   `mapstructure:"fast_mode"`
	UseAria2        bool   `mapstructure:"use_aria2"`
	SkipCookies     bool   `mapstructure:"skip_cookies"`
	Browser         string `mapstructure:"browser"`
	BrowserProfile  string `mapstructure:"browser_profile"`
	YTDLPBinary     string `mapstructure:"ytdlp_binary"`
	TailLines       int    `mapstructure:"tail_lines"`
}

// QueueConfig contains scheduler configuration
type QueueConfig struct {
	DatabasePath string        `mapstructure:"database_path"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ProbeConfig contains network probe timeouts
type ProbeConfig struct {
	AccessTimeout    time.Duration `mapstructure:"access_timeout"`
	ExtractorTimeout time.Duration `mapstructure:"extractor_timeout"`
}

// NotificationConfig contains desktop notification configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send, etc.
}

// WindowConfig persists desktop shell geometry between sessions
type WindowConfig struct {
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	Theme  string `mapstructure:"theme"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Download: DownloadConfig{
			OutputDir:       "$HOME/Downloads/videos",
			TempSubdir:      ".downloading",
			ConcurrentLimit: 1,
			QualityCap1080:  false,
			FastMode:        false,
			UseAria2:        false,
			SkipCookies:     false,
			Browser:         "chrome",
			BrowserProfile:  "",
			YTDLPBinary:     "yt-dlp",
			TailLines:       20,
		},
		Queue: QueueConfig{
			DatabasePath: "$HOME/Downloads/videos/.queue/jobs.db",
			PollInterval: 200 * time.Millisecond,
		},
		Probe: ProbeConfig{
			AccessTimeout:    10 * time.Second,
			ExtractorTimeout: 45 * time.Second,
		},
		Notification: NotificationConfig{
			Enabled: true,
			Sound:   true,
			Method:  "osascript",
		},
		Window: WindowConfig{
			Width:  900,
			Height: 600,
			Theme:  "dark",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}

// CookieSpec builds the browser cookie descriptor passed to the
// downloader, or empty when cookie extraction is skipped
func (c DownloadConfig) CookieSpec() string {
	if c.SkipCookies {
		return ""
	}
	if c.BrowserProfile != "" {
		return c.Browser + ":" + c.BrowserProfile
	}
	return c.Browser
}

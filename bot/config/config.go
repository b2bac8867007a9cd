package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/watzon/cubeglobe-bot/world"
)

// ErrInvalidConfig is wrapped by every error caused by a missing, malformed or
// inconsistent configuration file.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultDescription is the alt text attached to every posted image.
const DefaultDescription = "A procedurally generated landscape composed of cuboid blocks, rendered in isometric perspective."

// Config holds all configuration for the bot
type Config struct {
	Bot         BotConfig   `toml:"bot"`
	Credentials Credentials `toml:"credentials"`
	MQTT        MQTTConfig  `toml:"mqtt"`
}

// BotConfig controls posting cadence, world generation and the status itself.
type BotConfig struct {
	// Seconds between posts, and the maximum random offset applied to it.
	SleepTime int64 `toml:"sleep_time"`
	Jitter    int64 `toml:"jitter"`

	// Optional cron expression; overrides sleep_time and jitter when set.
	Schedule string `toml:"schedule"`
	Timezone string `toml:"timezone"`

	// World generation
	MapSize       int      `toml:"map_size"`
	MapHeight     int      `toml:"map_height"`
	MinFrequency  *float64 `toml:"min_frequency"`
	MaxFrequency  *float64 `toml:"max_frequency"`
	LayerHeight   *int     `toml:"layer_height"`
	MinSoilCutoff *int     `toml:"min_soil_cutoff"`
	MaxWaterLevel *int     `toml:"max_water_level"`

	// Status
	Status      string `toml:"status"`
	Description string `toml:"description"`
	Visibility  string `toml:"visibility"`
	Sensitive   bool   `toml:"sensitive"`
	SpoilerText string `toml:"spoiler_text"`
	ShowSeed    bool   `toml:"show_seed"`

	// Storage
	StatePath string `toml:"state_path"`
	ImagesDir string `toml:"images_dir"`

	// Image limits
	MaxWidth       int `toml:"max_width"`
	MaxHeight      int `toml:"max_height"`
	MaxUploadBytes int `toml:"max_upload_bytes"`
}

// Credentials are the Mastodon application and user credentials. The operator
// registers the application and obtains the access token out of band.
type Credentials struct {
	Base         string `toml:"base"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	Redirect     string `toml:"redirect"`
	Token        string `toml:"token"`
}

// MQTTConfig enables post announcements when Broker is set.
type MQTTConfig struct {
	Broker   string `toml:"broker"`
	ClientID string `toml:"client_id"`
	Topic    string `toml:"topic"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// Enabled reports whether announcements should be published.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			SleepTime:      3600,
			Jitter:         300,
			MapSize:        32,
			Status:         "⛰️",
			Description:    DefaultDescription,
			Visibility:     "public",
			StatePath:      "state",
			ImagesDir:      "images",
			MaxWidth:       1600,
			MaxHeight:      1600,
			MaxUploadBytes: 8 << 20,
		},
		MQTT: MQTTConfig{
			ClientID: "cubeglobe-bot",
			Topic:    "cubeglobe-bot/posts",
		},
	}
}

// Load reads the TOML file at path on top of the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read %s: %v", ErrInvalidConfig, path, err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: problem reading %s: %v", ErrInvalidConfig, path, err)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides credentials from the environment and takes the default
// timezone from TZ. Call godotenv.Load first to pick up a .env file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MASTODON_BASE"); v != "" {
		c.Credentials.Base = v
	}
	if v := os.Getenv("MASTODON_CLIENT_ID"); v != "" {
		c.Credentials.ClientID = v
	}
	if v := os.Getenv("MASTODON_CLIENT_SECRET"); v != "" {
		c.Credentials.ClientSecret = v
	}
	if v := os.Getenv("MASTODON_ACCESS_TOKEN"); v != "" {
		c.Credentials.Token = v
	}
	// An unusable TZ falls back to UTC rather than failing the whole config.
	if tz := os.Getenv("TZ"); c.Bot.Timezone == "" && tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			c.Bot.Timezone = tz
		}
	}
}

// Validate checks the configuration before any post is attempted.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Credentials.Base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: credentials.base must be an http(s) URL, got %q", ErrInvalidConfig, c.Credentials.Base)
	}
	if c.Credentials.Token == "" {
		return fmt.Errorf("%w: credentials.token is required", ErrInvalidConfig)
	}

	b := c.Bot
	if b.MapSize <= 0 {
		return fmt.Errorf("%w: bot.map_size must be positive", ErrInvalidConfig)
	}
	if b.MapHeight < 0 {
		return fmt.Errorf("%w: bot.map_height must not be negative", ErrInvalidConfig)
	}
	if b.SleepTime <= 0 {
		return fmt.Errorf("%w: bot.sleep_time must be positive", ErrInvalidConfig)
	}
	if b.Jitter < 0 || b.Jitter >= b.SleepTime {
		return fmt.Errorf("%w: bot.jitter must be in [0, sleep_time)", ErrInvalidConfig)
	}
	if (b.MinFrequency == nil) != (b.MaxFrequency == nil) {
		return fmt.Errorf("%w: bot.min_frequency and bot.max_frequency must be set together", ErrInvalidConfig)
	}
	if b.MinFrequency != nil {
		if *b.MinFrequency <= 0 || *b.MaxFrequency <= 0 || *b.MinFrequency > *b.MaxFrequency {
			return fmt.Errorf("%w: bot frequencies must be positive with min <= max", ErrInvalidConfig)
		}
	}
	for name, v := range map[string]*int{
		"layer_height":    b.LayerHeight,
		"min_soil_cutoff": b.MinSoilCutoff,
		"max_water_level": b.MaxWaterLevel,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: bot.%s must not be negative", ErrInvalidConfig, name)
		}
	}

	if _, err := world.NewGenerator(b.WorldOptions()); err != nil {
		return fmt.Errorf("%w: bot: %v", ErrInvalidConfig, err)
	}

	switch b.Visibility {
	case "public", "unlisted", "private", "direct":
	default:
		return fmt.Errorf("%w: bot.visibility %q is not one of public, unlisted, private, direct", ErrInvalidConfig, b.Visibility)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: bot.timezone: %v", ErrInvalidConfig, err)
	}
	if b.Schedule != "" {
		if _, err := cron.ParseStandard(b.Schedule); err != nil {
			return fmt.Errorf("%w: bot.schedule: %v", ErrInvalidConfig, err)
		}
	}

	if b.MaxWidth <= 0 || b.MaxHeight <= 0 || b.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: bot image limits must be positive", ErrInvalidConfig)
	}
	if c.MQTT.Enabled() && c.MQTT.Topic == "" {
		return fmt.Errorf("%w: mqtt.topic is required when mqtt.broker is set", ErrInvalidConfig)
	}
	return nil
}

// Location resolves the configured timezone, defaulting to UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Bot.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Bot.Timezone)
}

// WorldOptions maps the world settings onto generator options. Unset optional
// values keep the generator defaults for the map size.
func (b BotConfig) WorldOptions() world.Options {
	opts := world.DefaultOptions(b.MapSize)
	if b.MapHeight > 0 {
		opts.Height = b.MapHeight
		opts.MinSoilCutoff = b.MapHeight * 2 / 3
		opts.MaxWaterLevel = b.MapHeight / 4
	}
	if b.MinFrequency != nil && b.MaxFrequency != nil {
		opts.MinFrequency = *b.MinFrequency
		opts.MaxFrequency = *b.MaxFrequency
	}
	if b.LayerHeight != nil && *b.LayerHeight > 0 {
		opts.LayerHeight = *b.LayerHeight
	}
	if b.MinSoilCutoff != nil {
		opts.MinSoilCutoff = *b.MinSoilCutoff
	}
	if b.MaxWaterLevel != nil {
		opts.MaxWaterLevel = *b.MaxWaterLevel
	}
	return opts
}

// SleepDuration returns the base interval between posts.
func (b BotConfig) SleepDuration() time.Duration {
	return time.Duration(b.SleepTime) * time.Second
}

// JitterDuration returns the maximum random offset applied to the interval.
func (b BotConfig) JitterDuration() time.Duration {
	return time.Duration(b.Jitter) * time.Second
}

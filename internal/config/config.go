package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "PLATEGATE"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	HTTP          HTTPConfig          `mapstructure:"http"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Camera        CameraConfig        `mapstructure:"camera"`
	ROI           ROIConfig           `mapstructure:"roi"`
	NotifyFilters NotifyFiltersConfig `mapstructure:"notify_filters"`
	Direction     DirectionConfig     `mapstructure:"direction"`
	Rules         RulesConfig         `mapstructure:"rules"`
	Notify        NotifyConfig        `mapstructure:"notify"`
	Actions       ActionsConfig       `mapstructure:"actions"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
}

type HTTPConfig struct {
	Addr        string   `mapstructure:"addr" validate:"required"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	// DSN is a Postgres connection string; empty runs without persistence.
	DSN string `mapstructure:"dsn"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	File              string `mapstructure:"file"`
	Pretty            bool   `mapstructure:"pretty"`
	ForwardToTelegram bool   `mapstructure:"forward_to_telegram"`
}

type CameraConfig struct {
	ID string `mapstructure:"id"`
}

type ROIConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Mode    string      `mapstructure:"mode" validate:"oneof=rectangle polygon"`
	Rect    []float64   `mapstructure:"rect"`
	Polygon [][]float64 `mapstructure:"polygon"`
}

type NotifyFiltersConfig struct {
	MinBoxAreaPx    float64 `mapstructure:"min_box_area_px" validate:"gte=0"`
	MaxBoxAreaPx    float64 `mapstructure:"max_box_area_px" validate:"gte=0"`
	OnlyInDirection bool    `mapstructure:"only_in_direction"`
}

type DirectionConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	Axis             string   `mapstructure:"axis" validate:"oneof=x y"`
	Invert           bool     `mapstructure:"invert"`
	MinDisplacement  float64  `mapstructure:"min_displacement" validate:"gte=0"`
	GateLine         *float64 `mapstructure:"gate_line"`
	RequireLineCross bool     `mapstructure:"require_line_cross"`
	TrackTimeoutSec  float64  `mapstructure:"track_timeout_sec" validate:"gt=0"`
}

type RulesConfig struct {
	AllowedCSV    string  `mapstructure:"allowed_csv"`
	DeniedCSV     string  `mapstructure:"denied_csv"`
	WatchlistCSV  string  `mapstructure:"watchlist_csv"`
	IgnoredCSV    string  `mapstructure:"ignored_csv"`
	DebounceSec   float64 `mapstructure:"debounce_sec" validate:"gte=0"`
	MinPlateLen   int     `mapstructure:"min_plate_len" validate:"gte=0"`
	NotifyUnknown bool    `mapstructure:"notify_unknown"`
}

type NotifyConfig struct {
	RouteReadable   string         `mapstructure:"route_readable" validate:"oneof=main debug"`
	RouteUnreadable string         `mapstructure:"route_unreadable" validate:"oneof=main debug"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled      bool               `mapstructure:"enabled"`
	BotToken     string             `mapstructure:"bot_token"`
	ChatIDs      []int64            `mapstructure:"chat_ids"`
	GroupRoutes  map[string][]int64 `mapstructure:"group_routes"`
	DebugChatIDs []int64            `mapstructure:"debug_chat_ids"`
	SendPhotos   bool               `mapstructure:"send_photos"`
	RatePerSec   float64            `mapstructure:"rate_per_sec" validate:"gt=0"`

	NotifyUnreadable            bool    `mapstructure:"notify_unreadable"`
	UnreadableDebounceSec       float64 `mapstructure:"unreadable_debounce_sec" validate:"gte=0"`
	UnreadableGlobalCooldownSec float64 `mapstructure:"unreadable_global_cooldown_sec" validate:"gte=0"`
	UnreadableDHashThreshold    int     `mapstructure:"unreadable_dhash_threshold" validate:"gte=0"`
	UnreadableMinHits           int     `mapstructure:"unreadable_min_hits" validate:"gte=1"`
	HitTTLSec                   float64 `mapstructure:"hit_ttl_sec" validate:"gte=0"`
	CenterTolerancePx           float64 `mapstructure:"center_tolerance_px" validate:"gte=0"`
}

type ActuatorHTTPConfig struct {
	OpenURL         string            `mapstructure:"open_url"`
	CloseURL        string            `mapstructure:"close_url"`
	TriggerURL      string            `mapstructure:"trigger_url"`
	Method          string            `mapstructure:"method" validate:"oneof=GET POST PUT get post put"`
	Headers         map[string]string `mapstructure:"headers"`
	PayloadTemplate map[string]string `mapstructure:"payload_template"`
	TimeoutSec      float64           `mapstructure:"timeout_sec" validate:"gt=0"`
}

type ActuatorConfig struct {
	Mode string             `mapstructure:"mode" validate:"oneof=dry_run http"`
	HTTP ActuatorHTTPConfig `mapstructure:"http"`
}

type ActionsConfig struct {
	Gate  ActuatorConfig `mapstructure:"gate"`
	Alarm ActuatorConfig `mapstructure:"alarm"`
}

type PipelineConfig struct {
	QueueSize int `mapstructure:"queue_size" validate:"gt=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.pretty", true)
	v.SetDefault("logging.forward_to_telegram", false)
	v.SetDefault("camera.id", "gate-cam")

	v.SetDefault("roi.enabled", false)
	v.SetDefault("roi.mode", "rectangle")
	v.SetDefault("roi.rect", []float64{})
	v.SetDefault("roi.polygon", [][]float64{})

	v.SetDefault("notify_filters.min_box_area_px", 0)
	v.SetDefault("notify_filters.max_box_area_px", 0)
	v.SetDefault("notify_filters.only_in_direction", false)

	v.SetDefault("direction.enabled", false)
	v.SetDefault("direction.axis", "y")
	v.SetDefault("direction.invert", false)
	v.SetDefault("direction.min_displacement", 8)
	v.SetDefault("direction.require_line_cross", false)
	v.SetDefault("direction.track_timeout_sec", 5)

	v.SetDefault("rules.allowed_csv", "data/allowed.csv")
	v.SetDefault("rules.denied_csv", "data/denied.csv")
	v.SetDefault("rules.watchlist_csv", "data/watchlist.csv")
	v.SetDefault("rules.ignored_csv", "data/ignored.csv")
	v.SetDefault("rules.debounce_sec", 15)
	v.SetDefault("rules.min_plate_len", 4)
	v.SetDefault("rules.notify_unknown", true)

	v.SetDefault("notify.route_readable", "main")
	v.SetDefault("notify.route_unreadable", "debug")
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_ids", []int64{})
	v.SetDefault("notify.telegram.debug_chat_ids", []int64{})
	v.SetDefault("notify.telegram.send_photos", true)
	v.SetDefault("notify.telegram.rate_per_sec", 1)
	v.SetDefault("notify.telegram.notify_unreadable", false)
	v.SetDefault("notify.telegram.unreadable_debounce_sec", 30)
	v.SetDefault("notify.telegram.unreadable_global_cooldown_sec", 10)
	v.SetDefault("notify.telegram.unreadable_dhash_threshold", 6)
	v.SetDefault("notify.telegram.unreadable_min_hits", 1)
	v.SetDefault("notify.telegram.hit_ttl_sec", 1.0)
	v.SetDefault("notify.telegram.center_tolerance_px", 40)

	for _, a := range []string{"gate", "alarm"} {
		v.SetDefault("actions."+a+".mode", "dry_run")
		v.SetDefault("actions."+a+".http.method", "POST")
		v.SetDefault("actions."+a+".http.timeout_sec", 5)
	}

	v.SetDefault("pipeline.queue_size", 64)
}

// Load reads path (YAML, optional), applies PLATEGATE_* environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("notify.telegram.bot_token", EnvPrefix+"_NOTIFY_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("database.dsn", EnvPrefix+"_DATABASE_DSN", "DATABASE_DSN")
	_ = v.BindEnv("auth.jwt_secret", EnvPrefix+"_AUTH_JWT_SECRET", "JWT_SECRET")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.ROI.Enabled {
		switch c.ROI.Mode {
		case "rectangle":
			if len(c.ROI.Rect) != 4 {
				return fmt.Errorf("%w: roi.rect needs 4 numbers, got %d", ErrInvalidConfig, len(c.ROI.Rect))
			}
		case "polygon":
			if len(c.ROI.Polygon) < 3 {
				return fmt.Errorf("%w: roi.polygon needs at least 3 points", ErrInvalidConfig)
			}
			for i, pt := range c.ROI.Polygon {
				if len(pt) != 2 {
					return fmt.Errorf("%w: roi.polygon[%d] must be [x, y]", ErrInvalidConfig, i)
				}
			}
		}
	}
	if c.NotifyFilters.MaxBoxAreaPx > 0 && c.NotifyFilters.MaxBoxAreaPx < c.NotifyFilters.MinBoxAreaPx {
		return fmt.Errorf("%w: notify_filters.max_box_area_px below min_box_area_px", ErrInvalidConfig)
	}
	if c.Direction.RequireLineCross && c.Direction.GateLine == nil {
		return fmt.Errorf("%w: direction.require_line_cross needs direction.gate_line", ErrInvalidConfig)
	}
	if c.Actions.Gate.Mode == "http" && c.Actions.Gate.HTTP.OpenURL == "" {
		return fmt.Errorf("%w: actions.gate.http.open_url required in http mode", ErrInvalidConfig)
	}
	if c.Actions.Alarm.Mode == "http" && c.Actions.Alarm.HTTP.TriggerURL == "" {
		return fmt.Errorf("%w: actions.alarm.http.trigger_url required in http mode", ErrInvalidConfig)
	}
	return nil
}

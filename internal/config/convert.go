package config

import (
	"time"

	"plate-gate/internal/actuator"
	"plate-gate/internal/dedup"
	"plate-gate/internal/direction"
	"plate-gate/internal/domain/anpr"
	"plate-gate/internal/geometry"
	"plate-gate/internal/notify"
	"plate-gate/internal/pipeline"
	"plate-gate/internal/rules"
)

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// PipelineConfig resolves the decision pipeline settings.
func (c *Config) PipelineConfig() pipeline.Config {
	tg := c.Notify.Telegram

	roi := geometry.RegionOfInterest{
		Enabled: c.ROI.Enabled,
		Mode:    c.ROI.Mode,
	}
	if len(c.ROI.Rect) == 4 {
		copy(roi.Rect[:], c.ROI.Rect)
	}
	for _, pt := range c.ROI.Polygon {
		if len(pt) == 2 {
			roi.Polygon = append(roi.Polygon, anpr.Point{X: pt[0], Y: pt[1]})
		}
	}

	return pipeline.Config{
		ROI: roi,
		Filters: geometry.Filters{
			MinBoxArea: c.NotifyFilters.MinBoxAreaPx,
			MaxBoxArea: c.NotifyFilters.MaxBoxAreaPx,
		},
		OnlyInDirection: c.NotifyFilters.OnlyInDirection,
		Direction: direction.Config{
			Enabled:          c.Direction.Enabled,
			Axis:             c.Direction.Axis,
			Invert:           c.Direction.Invert,
			MinDisplacement:  c.Direction.MinDisplacement,
			GateLine:         c.Direction.GateLine,
			RequireLineCross: c.Direction.RequireLineCross,
			TrackTimeout:     seconds(c.Direction.TrackTimeoutSec),
		},
		MinPlateLen:      c.Rules.MinPlateLen,
		NotifyUnknown:    c.Rules.NotifyUnknown,
		NotifyUnreadable: tg.NotifyUnreadable,
		SendPhotos:       tg.SendPhotos,
		PlateDebounce:    seconds(c.Rules.DebounceSec),
		Unreadable: dedup.UnreadableConfig{
			Threshold: tg.UnreadableDHashThreshold,
			Debounce:  seconds(tg.UnreadableDebounceSec),
			Cooldown:  seconds(tg.UnreadableGlobalCooldownSec),
		},
		Hits: dedup.HitConfig{
			MinHits:   tg.UnreadableMinHits,
			TTL:       seconds(tg.HitTTLSec),
			Tolerance: tg.CenterTolerancePx,
		},
		RouteReadable:   anpr.Route(c.Notify.RouteReadable),
		RouteUnreadable: anpr.Route(c.Notify.RouteUnreadable),
	}
}

func (c *Config) TelegramConfig() notify.Config {
	tg := c.Notify.Telegram
	return notify.Config{
		Enabled:      tg.Enabled,
		BotToken:     tg.BotToken,
		ChatIDs:      tg.ChatIDs,
		GroupRoutes:  tg.GroupRoutes,
		DebugChatIDs: tg.DebugChatIDs,
		SendPhotos:   tg.SendPhotos,
		RatePerSec:   tg.RatePerSec,
	}
}

func (a ActuatorConfig) HTTPConfig() actuator.HTTPConfig {
	return actuator.HTTPConfig{
		OpenURL:         a.HTTP.OpenURL,
		CloseURL:        a.HTTP.CloseURL,
		TriggerURL:      a.HTTP.TriggerURL,
		Method:          a.HTTP.Method,
		Headers:         a.HTTP.Headers,
		PayloadTemplate: a.HTTP.PayloadTemplate,
		Timeout:         seconds(a.HTTP.TimeoutSec),
	}
}

func (c *Config) RuleFiles() rules.Files {
	return rules.Files{
		Allowed:   c.Rules.AllowedCSV,
		Denied:    c.Rules.DeniedCSV,
		Watchlist: c.Rules.WatchlistCSV,
		Ignored:   c.Rules.IgnoredCSV,
	}
}

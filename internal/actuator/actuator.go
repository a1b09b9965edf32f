// Package actuator drives the physical gate and alarm, either for real over
// HTTP or as a logged dry run.
package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	ModeDryRun = "dry_run"
	ModeHTTP   = "http"
)

const defaultTimeout = 5 * time.Second

var ErrNoEndpoint = errors.New("actuator endpoint not configured")

type Gate interface {
	OpenGate(ctx context.Context, plate string) error
	CloseGate(ctx context.Context, plate string) error
}

type Alarm interface {
	Trigger(ctx context.Context, plate, reason string) error
}

// HTTPConfig describes the controller endpoints. PayloadTemplate fields are
// sent with every request alongside the plate.
type HTTPConfig struct {
	OpenURL         string
	CloseURL        string
	TriggerURL      string
	Method          string
	Headers         map[string]string
	PayloadTemplate map[string]string
	Timeout         time.Duration
}

type endpoint struct {
	mode   string
	cfg    HTTPConfig
	client *http.Client
	log    zerolog.Logger
}

func newEndpoint(mode string, cfg HTTPConfig, log zerolog.Logger) endpoint {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return endpoint{
		mode:   mode,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

func (e endpoint) call(ctx context.Context, url string, fields map[string]string) error {
	if e.mode != ModeHTTP {
		return nil
	}
	if url == "" {
		return ErrNoEndpoint
	}

	method := strings.ToUpper(e.cfg.Method)
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if method != http.MethodGet {
		payload := make(map[string]string, len(e.cfg.PayloadTemplate)+len(fields))
		for k, v := range e.cfg.PayloadTemplate {
			payload[k] = v
		}
		for k, v := range fields {
			payload[k] = v
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode actuator payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build actuator request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range e.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("actuator request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("actuator %s returned status %d", url, resp.StatusCode)
	}
	return nil
}

// GateActuator opens and closes the gate.
type GateActuator struct {
	endpoint
}

func NewGate(mode string, cfg HTTPConfig, log zerolog.Logger) *GateActuator {
	return &GateActuator{endpoint: newEndpoint(mode, cfg, log.With().Str("actuator", "gate").Logger())}
}

func (g *GateActuator) OpenGate(ctx context.Context, plate string) error {
	g.log.Info().Str("plate", plate).Str("mode", g.mode).Msg("gate open requested")
	return g.call(ctx, g.cfg.OpenURL, map[string]string{"plate": plate})
}

func (g *GateActuator) CloseGate(ctx context.Context, plate string) error {
	g.log.Info().Str("plate", plate).Str("mode", g.mode).Msg("gate close requested")
	return g.call(ctx, g.cfg.CloseURL, map[string]string{"plate": plate})
}

// AlarmActuator raises the alarm for denied plates.
type AlarmActuator struct {
	endpoint
}

func NewAlarm(mode string, cfg HTTPConfig, log zerolog.Logger) *AlarmActuator {
	return &AlarmActuator{endpoint: newEndpoint(mode, cfg, log.With().Str("actuator", "alarm").Logger())}
}

func (a *AlarmActuator) Trigger(ctx context.Context, plate, reason string) error {
	a.log.Warn().Str("plate", plate).Str("reason", reason).Str("mode", a.mode).Msg("alarm triggered")
	return a.call(ctx, a.cfg.TriggerURL, map[string]string{"plate": plate, "reason": reason})
}

// Package notify delivers decision notifications through the Telegram Bot API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"plate-gate/internal/domain/anpr"
)

const (
	DefaultAPIURL   = "https://api.telegram.org"
	defaultTimeout  = 5 * time.Second
	defaultRate     = 1.0
	maxCaptionRunes = 1024
)

var ErrSendFailed = errors.New("telegram send failed")

// Message is a notification with its routing hints.
type Message struct {
	Text  string
	Group string
	Route anpr.Route
}

type Notifier interface {
	SendText(ctx context.Context, msg Message) error
	SendPhoto(ctx context.Context, photo []byte, msg Message) error
}

type Config struct {
	Enabled      bool
	BotToken     string
	ChatIDs      []int64
	GroupRoutes  map[string][]int64
	DebugChatIDs []int64
	SendPhotos   bool
	// RatePerSec throttles outgoing API calls across all chats.
	RatePerSec float64
	APIURL     string
	Timeout    time.Duration
}

type Telegram struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewTelegram(cfg Config, log zerolog.Logger) *Telegram {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRate
	}
	return &Telegram{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), len(cfg.ChatIDs)+len(cfg.DebugChatIDs)+1),
		log:     log.With().Str("component", "telegram").Logger(),
	}
}

func (t *Telegram) active() bool {
	return t.cfg.Enabled && t.cfg.BotToken != ""
}

// Chats resolves the recipients for msg. Debug routing falls back to the
// main chats when no debug chat is configured.
func (t *Telegram) Chats(msg Message) []int64 {
	if msg.Route == anpr.RouteDebug {
		if len(t.cfg.DebugChatIDs) > 0 {
			return t.cfg.DebugChatIDs
		}
		return t.cfg.ChatIDs
	}
	if msg.Group != "" {
		if chats, ok := t.cfg.GroupRoutes[msg.Group]; ok {
			return chats
		}
	}
	return t.cfg.ChatIDs
}

func (t *Telegram) SendText(ctx context.Context, msg Message) error {
	if !t.active() {
		return nil
	}
	var errs []error
	for _, chatID := range t.Chats(msg) {
		body, err := json.Marshal(map[string]any{"chat_id": chatID, "text": msg.Text})
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
		if err := t.post(ctx, "sendMessage", "application/json", body); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// SendPhoto sends a JPEG with the message as caption. Without photo support
// or image data it degrades to SendText.
func (t *Telegram) SendPhoto(ctx context.Context, photo []byte, msg Message) error {
	if !t.active() {
		return nil
	}
	if !t.cfg.SendPhotos || len(photo) == 0 {
		return t.SendText(ctx, msg)
	}

	var errs []error
	for _, chatID := range t.Chats(msg) {
		body, contentType, err := photoForm(chatID, photo, msg.Text)
		if err != nil {
			return err
		}
		if err := t.post(ctx, "sendPhoto", contentType, body); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func photoForm(chatID int64, photo []byte, caption string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("caption", truncate(caption, maxCaptionRunes)); err != nil {
		return nil, "", err
	}
	part, err := w.CreateFormFile("photo", "frame.jpg")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(photo); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func (t *Telegram) post(ctx context.Context, method, contentType string, body []byte) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.cfg.APIURL, t.cfg.BotToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		// err embeds the URL, which carries the bot token.
		return fmt.Errorf("%w: %s", ErrSendFailed, method)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.log.Warn().Str("method", method).Int("status", resp.StatusCode).Msg("telegram api rejected request")
		return fmt.Errorf("%w: %s returned %d", ErrSendFailed, method, resp.StatusCode)
	}
	return nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

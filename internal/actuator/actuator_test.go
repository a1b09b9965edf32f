package actuator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_DryRunMakesNoRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("dry run must not call the controller")
	}))
	defer srv.Close()

	g := NewGate(ModeDryRun, HTTPConfig{OpenURL: srv.URL}, zerolog.Nop())
	assert.NoError(t, g.OpenGate(context.Background(), "ABC123"))
	assert.NoError(t, g.CloseGate(context.Background(), "ABC123"))
}

func TestGate_HTTPPostsTemplateAndPlate(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/open", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	g := NewGate(ModeHTTP, HTTPConfig{
		OpenURL:         srv.URL + "/open",
		Headers:         map[string]string{"Authorization": "Token abc"},
		PayloadTemplate: map[string]string{"relay": "1"},
	}, zerolog.Nop())

	require.NoError(t, g.OpenGate(context.Background(), "ABC123"))
	assert.Equal(t, "Token abc", auth)
	assert.Equal(t, map[string]string{"relay": "1", "plate": "ABC123"}, got)
}

func TestGate_HTTPGetSendsNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, int64(0), r.ContentLength)
	}))
	defer srv.Close()

	g := NewGate(ModeHTTP, HTTPConfig{CloseURL: srv.URL, Method: "get"}, zerolog.Nop())
	assert.NoError(t, g.CloseGate(context.Background(), "ABC123"))
}

func TestAlarm_HTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "deny_list", body["reason"])
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAlarm(ModeHTTP, HTTPConfig{TriggerURL: srv.URL}, zerolog.Nop())
	assert.Error(t, a.Trigger(context.Background(), "XYZ999", "deny_list"))

	missing := NewAlarm(ModeHTTP, HTTPConfig{}, zerolog.Nop())
	assert.ErrorIs(t, missing.Trigger(context.Background(), "XYZ999", "deny_list"), ErrNoEndpoint)
}

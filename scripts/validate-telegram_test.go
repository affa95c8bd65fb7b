package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/transit-flow/internal/config"
)

type fakeTelegram struct {
	mu      sync.Mutex
	methods []string
	bodies  []string
	down    bool
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	f.mu.Lock()
	f.methods = append(f.methods, method)
	f.bodies = append(f.bodies, string(body))
	down := f.down
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case down:
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	case method == "getMe":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":7,"is_bot":true,"first_name":"Flow Bot","username":"flow_bot"}}`))
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}
}

func fakeServer(t *testing.T, fake *fakeTelegram) bot.Option {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return bot.WithServerURL(server.URL)
}

func TestValidate_MissingSettings(t *testing.T) {
	var out bytes.Buffer

	err := validate(context.Background(), config.TelegramConfig{}, false, &out)
	assert.ErrorContains(t, err, "TELEGRAM_BOT_TOKEN")

	err = validate(context.Background(), config.TelegramConfig{BotToken: "123:abc"}, false, &out)
	assert.ErrorContains(t, err, "TELEGRAM_CHAT_ID")
	assert.Contains(t, out.String(), "length: 7")
}

func TestValidate_GetMe(t *testing.T) {
	fake := &fakeTelegram{}
	var out bytes.Buffer

	err := validate(context.Background(), config.TelegramConfig{BotToken: "123:abc", ChatID: 42}, false, &out, fakeServer(t, fake))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "@flow_bot")
	assert.Contains(t, out.String(), "Bot ID: 7")
	assert.Equal(t, []string{"getMe"}, fake.methods)
}

func TestValidate_SendsSample(t *testing.T) {
	fake := &fakeTelegram{}
	var out bytes.Buffer

	err := validate(context.Background(), config.TelegramConfig{BotToken: "123:abc", ChatID: 42}, true, &out, fakeServer(t, fake))
	require.NoError(t, err)
	require.Equal(t, []string{"getMe", "sendMessage"}, fake.methods)
	assert.Contains(t, fake.bodies[1], "notification_check")
	assert.Contains(t, out.String(), "Sample notification sent")
}

func TestValidate_Unauthorized(t *testing.T) {
	fake := &fakeTelegram{down: true}
	var out bytes.Buffer

	err := validate(context.Background(), config.TelegramConfig{BotToken: "123:abc", ChatID: 42}, false, &out, fakeServer(t, fake))
	assert.ErrorContains(t, err, "failed to get bot info")
}

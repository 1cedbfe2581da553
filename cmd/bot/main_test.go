package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadConfigMissingFile(t *testing.T) {
	assert := require.New(t)
	path := filepath.Join(t.TempDir(), "config.json")
	var out bytes.Buffer

	_, ok, err := loadConfig(path, &out)

	assert.NoError(err)
	assert.False(ok)
	assert.Equal("Please create "+path+" file.\nExample:\n{\n  \"telegram_api_token\": \"telegramtoken:data\"\n}\n", out.String())
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	assert := require.New(t)
	path := filepath.Join(t.TempDir(), "config.json")
	assert.NoError(os.WriteFile(path, []byte(`{"telegram_api_token": "abc",}`), 0o600))
	var out bytes.Buffer

	_, ok, err := loadConfig(path, &out)

	assert.NoError(err)
	assert.False(ok)
	assert.Contains(out.String(), "Error parsing "+path+": ")
	assert.Contains(out.String(), "invalid character '}'")
}

func TestLoadConfigUnreadable(t *testing.T) {
	assert := require.New(t)
	file := filepath.Join(t.TempDir(), "not-a-dir")
	assert.NoError(os.WriteFile(file, []byte("{}"), 0o600))
	path := filepath.Join(file, "config.json")
	var out bytes.Buffer

	_, ok, err := loadConfig(path, &out)

	assert.Error(err)
	assert.False(ok)
	assert.True(strings.HasPrefix(out.String(), "Can't read file "+path+": "), out.String())
	assert.NotContains(out.String(), "{\"level\"")
}

func TestLoadConfigValid(t *testing.T) {
	assert := require.New(t)
	path := filepath.Join(t.TempDir(), "config.json")
	assert.NoError(os.WriteFile(path, []byte(`{"telegram_api_token": "123:abc"}`), 0o600))
	var out bytes.Buffer

	cfg, ok, err := loadConfig(path, &out)

	assert.NoError(err)
	assert.True(ok)
	assert.Equal("123:abc", cfg.TelegramAPIToken)
	assert.Empty(out.String())
}

type stopRecorder struct {
	stopped chan struct{}
}

func (s *stopRecorder) Stop() {
	close(s.stopped)
}

func TestStopOnSignal(t *testing.T) {
	orig := signalNotify
	var captured chan<- os.Signal
	registered := make(chan struct{})
	signalNotify = func(c chan<- os.Signal, _ ...os.Signal) {
		captured = c
		close(registered)
	}
	t.Cleanup(func() { signalNotify = orig })

	rec := &stopRecorder{stopped: make(chan struct{})}
	go stopOnSignal(rec, zap.NewNop())

	<-registered
	captured <- syscall.SIGTERM

	select {
	case <-rec.stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop was not called after signal")
	}
}

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPath = "config.json"

	tokenKey = "telegram_api_token"

	defaultPollTimeout      = 10 * time.Second
	defaultRepliesPerSecond = 25.0
	defaultReplyBurst       = 5
)

// ErrNotFound is returned by Load when the configuration path does not name a regular file.
var ErrNotFound = errors.New("config file not found")

// ParseError reports a configuration file that exists but cannot be used.
type ParseError struct {
	Path string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Path, e.Msg)
}

// Config holds everything the bot reads at startup. It is never mutated after Load.
type Config struct {
	TelegramAPIToken string        `json:"telegram_api_token" mapstructure:"telegram_api_token"`
	PollTimeout      time.Duration `json:"poll_timeout,omitempty" mapstructure:"poll_timeout"`
	RepliesPerSecond float64       `json:"replies_per_second,omitempty" mapstructure:"replies_per_second"`
	ReplyBurst       int           `json:"reply_burst,omitempty" mapstructure:"reply_burst"`
	Verbose          bool          `json:"verbose,omitempty" mapstructure:"verbose"`
}

// Load reads the JSON file at path. Keys may be overridden by REPLYBOT_*
// environment variables, but the file itself is mandatory.
func Load(path string) (Config, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return Config{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return Config{}, fmt.Errorf("stat config: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")

	v.SetEnvPrefix("REPLYBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("poll_timeout", defaultPollTimeout)
	v.SetDefault("replies_per_second", defaultRepliesPerSecond)
	v.SetDefault("reply_burst", defaultReplyBurst)
	v.SetDefault("verbose", false)

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		var parseErr viper.ConfigParseError
		if errors.As(err, &parseErr) {
			return Config{}, &ParseError{Path: path, Msg: parseMessage(parseErr)}
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	token, err := fileToken(data)
	if err != nil {
		return Config{}, &ParseError{Path: path, Msg: err.Error()}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &ParseError{Path: path, Msg: err.Error()}
	}

	if _, ok := os.LookupEnv("REPLYBOT_TELEGRAM_API_TOKEN"); !ok {
		cfg.TelegramAPIToken = token
	}

	if err := validate(cfg); err != nil {
		return Config{}, &ParseError{Path: path, Msg: err.Error()}
	}
	return cfg, nil
}

// fileToken looks the token up by its exact key; viper folds key case.
func fileToken(data []byte) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", err
	}

	value, ok := raw[tokenKey]
	if !ok || value == nil {
		return "", fmt.Errorf("missing field `%s`", tokenKey)
	}
	token, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("invalid type for field `%s`, expected a string", tokenKey)
	}
	return token, nil
}

func validate(cfg Config) error {
	if cfg.PollTimeout <= 0 {
		return fmt.Errorf("poll_timeout must be positive, got %s", cfg.PollTimeout)
	}
	if cfg.RepliesPerSecond < 0 {
		return fmt.Errorf("replies_per_second must be >= 0, got %v", cfg.RepliesPerSecond)
	}
	if cfg.RepliesPerSecond > 0 && cfg.ReplyBurst <= 0 {
		return fmt.Errorf("reply_burst must be positive, got %d", cfg.ReplyBurst)
	}
	return nil
}

// viper prefixes decoder errors with its own wording; keep only the decoder's message.
func parseMessage(err viper.ConfigParseError) string {
	if inner := errors.Unwrap(err); inner != nil {
		return inner.Error()
	}
	return strings.TrimPrefix(err.Error(), "While parsing config: ")
}

// Example returns the minimal configuration a user has to write.
func Example() string {
	example := struct {
		TelegramAPIToken string `json:"telegram_api_token"`
	}{
		TelegramAPIToken: "telegramtoken:data",
	}
	out, _ := json.MarshalIndent(example, "", "  ")
	return string(out)
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eliseohh/replybot/internal/bot"
	"github.com/eliseohh/replybot/internal/config"
	"github.com/eliseohh/replybot/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	app := kingpin.New("replybot", "Telegram bot that answers every message with \"test\"")
	configPath := app.Flag("config", "Path to the JSON configuration file").Default(config.DefaultPath).String()
	debug := app.Flag("debug", "Log every inbound message").Bool()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger, err := logging.New(*debug)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	cfg, ok, err := loadConfig(*configPath, os.Stdout)
	if err != nil {
		logger.Error("failed to load configuration", zap.String("path", *configPath), zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	if !ok {
		return
	}

	b, err := bot.New(bot.Config{
		Token:            cfg.TelegramAPIToken,
		PollTimeout:      cfg.PollTimeout,
		RepliesPerSecond: cfg.RepliesPerSecond,
		ReplyBurst:       cfg.ReplyBurst,
		Verbose:          cfg.Verbose,
	}, logger)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	fmt.Printf("Authorized on account %s\n", b.Username())

	go stopOnSignal(b, logger)
	b.Start()
}

// loadConfig reports configuration problems to the user and returns ok=false.
// Only an unreadable file is returned as err; the caller exits non-zero.
func loadConfig(path string, out io.Writer) (config.Config, bool, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, true, nil
	}

	var parseErr *config.ParseError
	switch {
	case errors.Is(err, config.ErrNotFound):
		fmt.Fprintf(out, "Please create %s file.\nExample:\n%s\n", path, config.Example())
		return config.Config{}, false, nil
	case errors.As(err, &parseErr):
		fmt.Fprintf(out, "Error parsing %s: %s\n", parseErr.Path, parseErr.Msg)
		return config.Config{}, false, nil
	default:
		fmt.Fprintf(out, "Can't read file %s: %v\n", path, err)
		return config.Config{}, false, err
	}
}

type stopper interface {
	Stop()
}

func stopOnSignal(s stopper, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGTERM)

	sig := <-quit
	logger.Info("shutting down", zap.String("signal", sig.String()))
	s.Stop()
}

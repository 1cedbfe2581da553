package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"
	"gopkg.in/telebot.v3/middleware"
)

// ReplyText is sent back for every inbound message.
const ReplyText = "test"

type Bot struct {
	api     *tele.Bot
	limiter *rate.Limiter
	logger  *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

type Config struct {
	Token string
	// URL overrides the Bot API endpoint. Empty means api.telegram.org.
	URL              string
	PollTimeout      time.Duration
	RepliesPerSecond float64
	ReplyBurst       int
	Verbose          bool
}

// New authenticates against the Bot API. telebot issues a single getMe call
// here; a rejected token surfaces as the returned error.
func New(cfg Config, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	bot := &Bot{logger: logger, ctx: ctx, cancel: cancel}
	if cfg.RepliesPerSecond > 0 {
		bot.limiter = rate.NewLimiter(rate.Limit(cfg.RepliesPerSecond), cfg.ReplyBurst)
	}

	pref := tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.URL,
		Poller:  tele.NewMiddlewarePoller(&tele.LongPoller{Timeout: cfg.PollTimeout}, bot.intercept),
		Verbose: cfg.Verbose,
		OnError: bot.onError,
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	bot.api = b
	return bot, nil
}

// Username is the name of the account the token belongs to.
func (b *Bot) Username() string {
	return b.api.Me.Username
}

// Start blocks in the receive loop until Stop is called.
func (b *Bot) Start() {
	b.logger.Info("receive loop started", zap.String("account", b.Username()))
	b.api.Start()
}

// Stop ends the receive loop and waits for replies already under way.
// It must only be called once Start is running.
func (b *Bot) Stop() {
	b.cancel()
	b.api.Stop()
	b.inflight.Wait()
	b.logger.Info("receive loop stopped")
}

// intercept answers every update carrying a new message exactly once.
// Nothing reaches telebot's endpoint routing: it fires once per joined user
// and skips polls and commands addressed to other bots.
func (b *Bot) intercept(u *tele.Update) bool {
	if u.Message == nil {
		return false
	}

	c := b.api.NewContext(*u)
	handler := middleware.Recover(b.onError)(b.trace(b.reply))

	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		if err := handler(c); err != nil {
			b.onError(err, c)
		}
	}()
	return false
}

func (b *Bot) reply(c tele.Context) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(b.ctx); err != nil {
			return fmt.Errorf("reply budget: %w", err)
		}
	}
	return c.Send(ReplyText)
}

func (b *Bot) trace(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if ce := b.logger.Check(zap.DebugLevel, "inbound message"); ce != nil {
			fields := []zap.Field{zap.Int("update_id", c.Update().ID)}
			if chat := c.Chat(); chat != nil {
				fields = append(fields, zap.Int64("chat_id", chat.ID))
			}
			ce.Write(fields...)
		}
		return next(c)
	}
}

func (b *Bot) onError(err error, c tele.Context) {
	if errors.Is(err, context.Canceled) {
		return
	}

	fields := []zap.Field{zap.Error(err)}
	if c != nil {
		fields = append(fields, zap.Int("update_id", c.Update().ID))
		if chat := c.Chat(); chat != nil {
			fields = append(fields, zap.Int64("chat_id", chat.ID))
		}
	}
	b.logger.Error("handler failed", fields...)
}

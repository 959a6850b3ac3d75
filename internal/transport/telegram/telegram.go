package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

const (
	// Bot API file-size ceiling on api.telegram.org.
	DefaultBotCeiling = 50 << 20
	// Self-hosted Bot API servers accept uploads up to 2 GB.
	DefaultUserCeiling = 2 << 30
)

type Config struct {
	Name  string
	Kind  transport.Kind
	Token string

	// APIURL overrides the Bot API endpoint. Set it to a self-hosted
	// server to unlock the higher upload ceiling.
	APIURL string

	SizeCeiling int64
	RatePerSec  int

	// Offline skips the initial getMe probe. Used in tests.
	Offline bool
}

// Adapter delivers content through the Telegram Bot API.
//
// The same adapter backs both transports: the primary talks to
// api.telegram.org with a bot token, the secondary talks to a
// self-hosted Bot API server bound to a user session.
type Adapter struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is empty")
	}
	if cfg.Name == "" {
		cfg.Name = string(cfg.Kind)
	}
	if cfg.Kind == "" {
		cfg.Kind = transport.KindBot
	}
	if cfg.SizeCeiling <= 0 {
		if cfg.Kind == transport.KindUser {
			cfg.SizeCeiling = DefaultUserCeiling
		} else {
			cfg.SizeCeiling = DefaultBotCeiling
		}
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:     cfg,
		log:     log.With(logx.String("transport", cfg.Name)),
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}, nil
}

func (a *Adapter) Name() string         { return a.cfg.Name }
func (a *Adapter) Kind() transport.Kind { return a.cfg.Kind }
func (a *Adapter) SizeCeiling() int64   { return a.cfg.SizeCeiling }

func (a *Adapter) Send(ctx context.Context, to transport.Target, c transport.Content) (transport.MessageRef, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return transport.MessageRef{}, a.wrapErr("send", err)
	}

	what, err := payloadFor(c)
	if err != nil {
		return transport.MessageRef{}, a.wrapErr("send", err)
	}

	var opts []any
	if markup := buttonMarkup(c.Buttons); markup != nil {
		opts = append(opts, markup)
	}

	msg, err := a.bot.Send(to, what, opts...)
	if err != nil {
		return transport.MessageRef{}, a.wrapErr("send", err)
	}
	ref := transport.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ID}
	a.log.Debug("message sent",
		logx.Int64("chat_id", ref.ChatID),
		logx.Int("message_id", ref.MessageID),
		logx.String("content_type", c.Type))
	return ref, nil
}

func (a *Adapter) Delete(ctx context.Context, ref transport.MessageRef) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return a.wrapErr("delete", err)
	}
	err := a.bot.Delete(&tele.StoredMessage{
		MessageID: strconv.Itoa(ref.MessageID),
		ChatID:    ref.ChatID,
	})
	if err != nil {
		return a.wrapErr("delete", err)
	}
	return nil
}

// RefreshFile asks the platform for a fresh handle to a previously
// uploaded file. Used when a stored handle has gone stale.
func (a *Adapter) RefreshFile(ctx context.Context, fileID string) (string, int64, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", 0, a.wrapErr("refresh", err)
	}
	f, err := a.bot.FileByID(fileID)
	if err != nil {
		return "", 0, a.wrapErr("refresh", err)
	}
	return f.FileID, int64(f.FileSize), nil
}

// payloadFor maps transport content onto a telebot sendable.
func payloadFor(c transport.Content) (any, error) {
	switch c.Type {
	case "", "text":
		if strings.TrimSpace(c.Payload) == "" {
			return nil, errors.New("empty text payload")
		}
		return c.Payload, nil
	case "photo":
		p := &tele.Photo{File: tele.File{FileID: c.Payload}, Caption: c.Caption}
		return p, nil
	case "video":
		v := &tele.Video{File: tele.File{FileID: c.Payload}, Caption: c.Caption}
		if c.Thumb != "" {
			v.Thumbnail = &tele.Photo{File: tele.File{FileID: c.Thumb}}
		}
		return v, nil
	case "document":
		d := &tele.Document{File: tele.File{FileID: c.Payload}, Caption: c.Caption}
		if c.Thumb != "" {
			d.Thumbnail = &tele.Photo{File: tele.File{FileID: c.Thumb}}
		}
		return d, nil
	default:
		return nil, errors.New("unsupported content type: " + c.Type)
	}
}

func buttonMarkup(btns []transport.Button) *tele.ReplyMarkup {
	if len(btns) == 0 {
		return nil
	}
	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(btns))
	for _, b := range btns {
		rows = append(rows, markup.Row(markup.URL(b.Text, b.URL)))
	}
	markup.Inline(rows...)
	return markup
}

// wrapErr converts telebot failures into the structured transport error
// the classifier consumes.
func (a *Adapter) wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	e := &transport.Error{
		Transport:   a.cfg.Name,
		Op:          op,
		Description: err.Error(),
		Err:         err,
	}
	// FloodError keeps its inner *Error unexported; the message text is
	// already captured above via err.Error().
	var flood tele.FloodError
	if errors.As(err, &flood) {
		e.Code = 429
		e.RetryAfter = time.Duration(flood.RetryAfter) * time.Second
		return e
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		e.Code = apiErr.Code
		e.Description = apiErr.Description
	}
	return e
}

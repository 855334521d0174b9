package bot

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stake-plus/dao-monitor/src/render"
	"go.uber.org/zap"
)

// TelegramAPI is the part of *tgbotapi.BotAPI the channel needs.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Telegram delivers HTML announcements to chats and answers the probe.
type Telegram struct {
	api    TelegramAPI
	probe  Probe
	logger *zap.Logger
	wg     sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTelegram authenticates with the bot token.
func NewTelegram(token string, probe Probe, logger *zap.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: authenticate: %w", err)
	}
	if logger != nil {
		logger.Info("telegram bot authorized", zap.String("username", api.Self.UserName))
	}
	return NewTelegramWithAPI(api, probe, logger), nil
}

// NewTelegramWithAPI wraps an existing client.
func NewTelegramWithAPI(api TelegramAPI, probe Probe, logger *zap.Logger) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{api: api, probe: probe, logger: logger.With(zap.String("component", "telegram"))}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Format(msg render.Message) string { return msg.HTML() }

// Deliver sends text to the chat id in target.
func (t *Telegram) Deliver(_ context.Context, target string, _ render.Message, text string) error {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", target, err)
	}
	cfg := tgbotapi.NewMessage(chatID, text)
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.DisableWebPagePreview = true
	if _, err := t.api.Send(cfg); err != nil {
		return fmt.Errorf("telegram: send to %d: %w", chatID, err)
	}
	return nil
}

// Listen polls for updates and answers probes until ctx ends.
func (t *Telegram) Listen(ctx context.Context) error {
	if !t.probe.Enabled() {
		<-ctx.Done()
		return nil
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.api.GetUpdatesChan(u)
	defer t.wg.Wait()
	defer t.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, upd)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || !t.probe.Matches(msg.Text) {
		return
	}
	chatID := msg.Chat.ID
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.probe.wait(ctx); err != nil {
			return
		}
		if _, err := t.api.Send(tgbotapi.NewMessage(chatID, t.probe.Reply)); err != nil {
			t.logger.Warn("probe reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}()
}

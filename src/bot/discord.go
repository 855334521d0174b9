package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/dao-monitor/src/discord"
	"github.com/stake-plus/dao-monitor/src/render"
	"go.uber.org/zap"
)

// DiscordSession is the part of *discordgo.Session the channel needs.
type DiscordSession interface {
	discord.MessageSender
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
}

// Discord delivers markdown announcements to channels and answers the probe.
type Discord struct {
	session DiscordSession
	probe   Probe
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDiscord creates a bot session for token. Call Open to connect.
func NewDiscord(token string, probe Probe, logger *zap.Logger) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	return NewDiscordWithSession(session, probe, logger), nil
}

// NewDiscordWithSession wraps an existing session.
func NewDiscordWithSession(session DiscordSession, probe Probe, logger *zap.Logger) *Discord {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Discord{
		session: session,
		probe:   probe,
		logger:  logger.With(zap.String("component", "discord")),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Format(msg render.Message) string { return msg.Markdown() }

// Deliver posts text to the channel id in target.
func (d *Discord) Deliver(ctx context.Context, target string, _ render.Message, text string) error {
	if _, err := discord.SendMessageNoEmbed(d.session, target, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send to %s: %w", target, err)
	}
	return nil
}

// Open registers handlers and connects the gateway.
func (d *Discord) Open() error {
	d.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		d.logger.Info("discord session ready", zap.String("user", r.User.Username))
	})
	d.session.AddHandler(d.onMessageCreate)
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	return nil
}

// Close disconnects and waits for pending probe replies.
func (d *Discord) Close() error {
	d.cancel()
	d.wg.Wait()
	return d.session.Close()
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s != nil && s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	d.handleProbe(m.ChannelID, m.Content)
}

func (d *Discord) handleProbe(channelID, content string) {
	if !d.probe.Matches(content) {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.probe.wait(d.ctx); err != nil {
			return
		}
		if _, err := discord.SendMessageNoEmbed(d.session, channelID, d.probe.Reply); err != nil {
			d.logger.Warn("probe reply failed", zap.String("channel_id", channelID), zap.Error(err))
		}
	}()
}

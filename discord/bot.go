// Package discord connects the branding service to Discord: guild join and
// leave events register guilds, "$random icon" / "$random banner" messages
// trigger a manual update, and icons and banners are pushed with GuildEdit.
package discord

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/hazyhaar/guildbrand/catalog"
)

// Handler receives guild events. Satisfied by *brand.Service.
type Handler interface {
	GuildAvailable(ctx context.Context, guildID, name string) error
	GuildUnavailable(ctx context.Context, guildID string) error
	Command(ctx context.Context, guildID string, size catalog.SizeClass) error
}

// guildEditor is the part of *discordgo.Session used to push artifacts.
type guildEditor interface {
	GuildEdit(guildID string, g *discordgo.GuildParams, options ...discordgo.RequestOption) (*discordgo.Guild, error)
}

// Config configures the bot.
type Config struct {
	Token string
	// CommandPrefix precedes "icon" / "banner". Default: "$random".
	CommandPrefix string
}

// Bot is a Discord gateway client and the transport for artifacts.
type Bot struct {
	session *discordgo.Session
	editor  guildEditor
	handler Handler
	prefix  string
	logger  *slog.Logger
	ctx     context.Context
}

// New creates a bot. Handlers are attached but the gateway is not opened.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "$random"
	}
	if logger == nil {
		logger = slog.Default()
	}

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: new session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	b := &Bot{
		session: s,
		editor:  s,
		handler: handler,
		prefix:  cfg.CommandPrefix,
		logger:  logger,
		ctx:     context.Background(),
	}
	s.AddHandler(b.onReady)
	s.AddHandler(b.onGuildCreate)
	s.AddHandler(b.onGuildDelete)
	s.AddHandler(b.onMessageCreate)
	return b, nil
}

// Open connects to the gateway. Event handlers run under ctx.
func (b *Bot) Open(ctx context.Context) error {
	b.ctx = ctx
	b.logger.Info("discord: starting up")
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	return b.session.Close()
}

// SetIcon replaces the guild icon with an animated GIF.
func (b *Bot) SetIcon(ctx context.Context, guildID string, gif []byte) error {
	return b.edit(ctx, guildID, &discordgo.GuildParams{Icon: DataURI("image/gif", gif)})
}

// SetBanner replaces the guild banner.
func (b *Bot) SetBanner(ctx context.Context, guildID string, jpeg []byte) error {
	return b.edit(ctx, guildID, &discordgo.GuildParams{Banner: DataURI("image/jpeg", jpeg)})
}

func (b *Bot) edit(ctx context.Context, guildID string, params *discordgo.GuildParams) error {
	if _, err := b.editor.GuildEdit(guildID, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: edit guild %s: %w", guildID, err)
	}
	return nil
}

// DataURI encodes data as a base64 data URI.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseCommand recognises "<prefix> icon" and "<prefix> banner".
func ParseCommand(content, prefix string) (catalog.SizeClass, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(content), prefix+" ")
	if !ok {
		return 0, false
	}
	switch rest {
	case "icon":
		return catalog.Icon, true
	case "banner":
		return catalog.Banner, true
	}
	return 0, false
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("discord: connected", "user", r.User.Username, "guilds", len(r.Guilds))
}

func (b *Bot) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	if err := b.handler.GuildAvailable(b.ctx, g.ID, g.Name); err != nil {
		b.logger.Warn("discord: register guild", "guild_id", g.ID, "error", err)
	}
}

func (b *Bot) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Guild == nil {
		return
	}
	if err := b.handler.GuildUnavailable(b.ctx, g.ID); err != nil {
		b.logger.Warn("discord: unregister guild", "guild_id", g.ID, "error", err)
	}
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.GuildID == "" {
		return
	}
	if m.Author != nil && m.Author.Bot {
		return
	}
	size, ok := ParseCommand(m.Content, b.prefix)
	if !ok {
		return
	}
	b.logger.Info("discord: command", "guild_id", m.GuildID, "kind", size.String())
	if err := b.handler.Command(b.ctx, m.GuildID, size); err != nil {
		b.logger.Warn("discord: command failed", "guild_id", m.GuildID, "kind", size.String(), "error", err)
	}
}

package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/NgigiN/walletsync/internal/app"
	"github.com/NgigiN/walletsync/internal/logger"
)

// Bot ingests M-PESA confirmations posted to one channel and answers ledger
// and backup commands there.
type Bot struct {
	session   *discordgo.Session
	app       *app.App
	channelID string
	startTime time.Time
	health    *healthServer

	// mu serializes message handling; a migration swaps the live store.
	mu sync.Mutex
}

func NewBot(a *app.App) (*Bot, error) {
	if err := a.Config.RequireDiscord(); err != nil {
		return nil, err
	}
	session, err := discordgo.New("Bot " + a.Config.DiscordBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	bot := &Bot{
		session:   session,
		app:       a,
		channelID: a.Config.DiscordChannelId,
		startTime: time.Now(),
	}
	bot.health = newHealthServer(a.Config.HTTPAddr, bot)

	session.AddHandler(bot.handleMessage)
	session.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentMessageContent
	return bot, nil
}

func (b *Bot) Start() error {
	go b.health.run()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	return nil
}

// Stop disconnects and takes one last forced backup.
func (b *Bot) Stop(ctx context.Context) {
	b.session.Close()
	b.health.shutdown(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.app.BackupIfNeeded(ctx, true)
}

func (b *Bot) connected() bool {
	return b.session != nil && b.session.State != nil && b.session.State.User != nil
}

// reply sends msg to the channel, logging rather than failing on errors.
func (b *Bot) reply(s *discordgo.Session, channelID, msg string) {
	if _, err := s.ChannelMessageSend(channelID, msg); err != nil {
		logger.L.Warn("failed to send Discord message", "channel", channelID, "error", err)
	}
}

func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	if m.ChannelID != b.channelID {
		return
	}
	ctx := logger.ToContext(context.Background(), logger.L.With("message", m.ID))

	b.mu.Lock()
	defer b.mu.Unlock()

	if strings.HasPrefix(m.Content, "!") {
		b.reply(s, m.ChannelID, b.command(ctx, m.Content))
		return
	}
	b.reply(s, m.ChannelID, b.ingest(ctx, m.Content))
}

// command runs a !command and returns the reply.
func (b *Bot) command(ctx context.Context, content string) string {
	args := strings.Fields(content)
	switch args[0] {
	case "!summary":
		return b.summaryCommand(ctx, args[1:])
	case "!backup":
		force := len(args) > 1 && args[1] == "force"
		return fmt.Sprintf("Backup %s.", b.app.BackupIfNeeded(ctx, force))
	case "!restore":
		restored, err := b.app.RestoreIfNeeded(ctx)
		switch {
		case err != nil:
			return fmt.Sprintf("Restore failed: %v", err)
		case restored:
			return "Ledger restored from snapshot."
		default:
			return "Nothing restored: the ledger already has data or no snapshot exists."
		}
	case "!migrate":
		if len(args) != 2 {
			return "Usage: !migrate <local|cloud>"
		}
		return b.migrateCommand(ctx, args[1])
	case "!status":
		return formatStatus(b.app.Status())
	}
	return "Unknown command. Use: !summary [category], !backup [force], !restore, !migrate <local|cloud>, !status"
}

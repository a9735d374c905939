package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"discord-github-bridge/models"
	"discord-github-bridge/services"
)

// DiscordIntents はブリッジが必要とする Gateway Intents
const DiscordIntents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent

// SlashCommands はギルドに登録するコマンド定義
var SlashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        CommandLinkIssue,
		Description: "Link this thread to an existing GitHub issue",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "number",
				Description: "GitHub issue number",
				Required:    true,
			},
		},
	},
	{
		Name:        CommandCloseIssue,
		Description: "Close the GitHub issue linked to this thread",
	},
	{
		Name:        CommandSyncStatus,
		Description: "Show the link status for this thread",
	},
}

// RegisterSlashCommands はギルドコマンドを上書き登録する（Open の後に呼ぶ）
func RegisterSlashCommands(s *discordgo.Session, guildID string) error {
	if s.State == nil || s.State.User == nil {
		return fmt.Errorf("discord session is not ready")
	}
	if _, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, SlashCommands); err != nil {
		return fmt.Errorf("failed to register slash commands: %w", err)
	}
	slog.Info("slash commands registered", "guild_id", guildID, "count", len(SlashCommands))
	return nil
}

// RegisterDiscordHandlers は Gateway のイベントを Bridge に振り分ける
// discordgo はイベントごとに goroutine を起こすので、異なるスレッドの処理は並行に進む
func RegisterDiscordHandlers(ctx context.Context, s *discordgo.Session, b *Bridge) {
	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("discord bot ready", "user", r.User.Username)
	})

	s.AddHandler(func(s *discordgo.Session, e *discordgo.ThreadCreate) {
		thread, ok := services.ChannelFromDiscord(e.Channel).AsThread()
		if !ok {
			return
		}
		b.OnThreadCreate(ctx, thread, e.NewlyCreated)
	})

	s.AddHandler(func(s *discordgo.Session, e *discordgo.ThreadUpdate) {
		thread, ok := services.ChannelFromDiscord(e.Channel).AsThread()
		if !ok {
			return
		}
		var old *models.Thread
		if e.BeforeUpdate != nil {
			old, _ = services.ChannelFromDiscord(e.BeforeUpdate).AsThread()
		}
		b.OnThreadUpdate(ctx, old, thread)
	})

	s.AddHandler(func(s *discordgo.Session, e *discordgo.ThreadDelete) {
		b.OnThreadDelete(ctx, e.ID)
	})

	s.AddHandler(func(s *discordgo.Session, e *discordgo.MessageCreate) {
		if e.GuildID == "" {
			return
		}
		channel, err := b.Chat.FetchChannel(ctx, e.ChannelID)
		if err != nil {
			slog.Debug("message create ignored: channel unavailable", "channel_id", e.ChannelID, "error", err)
			return
		}
		b.OnMessageCreate(ctx, channel, services.MessageFromDiscord(e.Message))
	})

	s.AddHandler(func(s *discordgo.Session, e *discordgo.MessageUpdate) {
		msg := e.Message
		// 部分的な更新（埋め込みの展開など）は作者が含まれないので取り直す
		if msg.Author == nil {
			full, err := s.ChannelMessage(e.ChannelID, e.ID, discordgo.WithContext(ctx))
			if err != nil {
				slog.Debug("message update ignored: message unavailable", "channel_id", e.ChannelID, "message_id", e.ID, "error", err)
				return
			}
			msg = full
		}
		channel, err := b.Chat.FetchChannel(ctx, msg.ChannelID)
		if err != nil {
			slog.Debug("message update ignored: channel unavailable", "channel_id", msg.ChannelID, "error", err)
			return
		}
		b.OnMessageUpdate(ctx, channel, services.MessageFromDiscord(msg))
	})

	s.AddHandler(func(s *discordgo.Session, e *discordgo.MessageDelete) {
		channel, err := b.Chat.FetchChannel(ctx, e.ChannelID)
		if err != nil {
			slog.Debug("message delete ignored: channel unavailable", "channel_id", e.ChannelID, "error", err)
			return
		}
		b.OnMessageDelete(ctx, channel, e.ID)
	})

	s.AddHandler(func(s *discordgo.Session, e *discordgo.InteractionCreate) {
		if e.Type != discordgo.InteractionApplicationCommand {
			return
		}
		handleInteraction(ctx, s, b, e.Interaction)
	})
}

func handleInteraction(ctx context.Context, s *discordgo.Session, b *Bridge, i *discordgo.Interaction) {
	data := i.ApplicationCommandData()

	req := CommandRequest{Name: data.Name}
	for _, opt := range data.Options {
		if opt.Name == "number" {
			req.IssueNumber = int(opt.IntValue())
		}
	}
	if i.Member != nil && i.Member.User != nil {
		req.UserName = memberDisplayName(i.Member)
	} else if i.User != nil {
		req.UserName = i.User.Username
	}

	channel, err := b.Chat.FetchChannel(ctx, i.ChannelID)
	if err != nil {
		channel = &models.OtherChannel{ID: i.ChannelID}
	}
	req.Channel = channel

	reply := b.HandleCommand(ctx, req)

	resp := &discordgo.InteractionResponseData{Content: reply.Content}
	if reply.Ephemeral {
		resp.Flags = discordgo.MessageFlagsEphemeral
	}
	err = s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: resp,
	})
	if err != nil {
		slog.Error("failed to respond to interaction", "command", req.Name, "error", err)
	}
}

func memberDisplayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"discord-github-bridge/models"
)

// ErrChannelNotFound はチャンネル（スレッド）が削除済みの場合に返る
var ErrChannelNotFound = errors.New("channel not found")

// DiscordClient は Discord のスレッド/メッセージを操作する
type DiscordClient struct {
	session *discordgo.Session
}

func NewDiscordClient(session *discordgo.Session) *DiscordClient {
	return &DiscordClient{session: session}
}

func (d *DiscordClient) SendMessage(ctx context.Context, channelID, content string) (*models.Message, error) {
	msg, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to send message to %s: %w", channelID, err)
	}
	m := MessageFromDiscord(msg)
	return &m, nil
}

func (d *DiscordClient) SendEmbed(ctx context.Context, channelID string, embed models.Embed) (*models.Message, error) {
	msg, err := d.session.ChannelMessageSendEmbed(channelID, embedToDiscord(embed), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to send embed to %s: %w", channelID, err)
	}
	m := MessageFromDiscord(msg)
	return &m, nil
}

func (d *DiscordClient) EditEmbed(ctx context.Context, channelID, messageID string, embed models.Embed) error {
	_, err := d.session.ChannelMessageEditEmbed(channelID, messageID, embedToDiscord(embed), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to edit message %s: %w", messageID, err)
	}
	return nil
}

func (d *DiscordClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := d.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete message %s: %w", messageID, err)
	}
	return nil
}

// FetchChannel はステートキャッシュを優先し、なければ REST で取得する
func (d *DiscordClient) FetchChannel(ctx context.Context, channelID string) (models.Channel, error) {
	if d.session.State != nil {
		if ch, err := d.session.State.Channel(channelID); err == nil {
			return ChannelFromDiscord(ch), nil
		}
	}

	ch, err := d.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
		}
		return nil, fmt.Errorf("failed to fetch channel %s: %w", channelID, err)
	}
	return ChannelFromDiscord(ch), nil
}

// FetchStarterMessage はフォーラムスレッドの最初のメッセージを取得する
// フォーラムではスターターメッセージのIDはスレッドIDと同じ。削除済みなら nil を返す
func (d *DiscordClient) FetchStarterMessage(ctx context.Context, threadID string) (*models.Message, error) {
	msg, err := d.session.ChannelMessage(threadID, threadID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch starter message of %s: %w", threadID, err)
	}
	m := MessageFromDiscord(msg)
	return &m, nil
}

// FetchMessage は部分的な更新イベントを補完するために使う
func (d *DiscordClient) FetchMessage(ctx context.Context, channelID, messageID string) (*models.Message, error) {
	msg, err := d.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", messageID, err)
	}
	m := MessageFromDiscord(msg)
	return &m, nil
}

func (d *DiscordClient) FetchForumTags(ctx context.Context, forumID string) ([]models.ForumTag, error) {
	var forum *discordgo.Channel
	if d.session.State != nil {
		forum, _ = d.session.State.Channel(forumID)
	}
	if forum == nil {
		ch, err := d.session.Channel(forumID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch forum %s: %w", forumID, err)
		}
		forum = ch
	}

	tags := make([]models.ForumTag, 0, len(forum.AvailableTags))
	for _, tag := range forum.AvailableTags {
		tags = append(tags, models.ForumTag{ID: tag.ID, Name: tag.Name})
	}
	return tags, nil
}

func (d *DiscordClient) SetThreadArchived(ctx context.Context, threadID string, archived bool) error {
	_, err := d.session.ChannelEdit(threadID, &discordgo.ChannelEdit{Archived: &archived}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to set archived=%t on thread %s: %w", archived, threadID, err)
	}
	return nil
}

func (d *DiscordClient) SetThreadName(ctx context.Context, threadID, name string) error {
	_, err := d.session.ChannelEdit(threadID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to rename thread %s: %w", threadID, err)
	}
	return nil
}

func (d *DiscordClient) SetThreadTags(ctx context.Context, threadID string, tagIDs []string) error {
	tags := append([]string{}, tagIDs...)
	_, err := d.session.ChannelEdit(threadID, &discordgo.ChannelEdit{AppliedTags: &tags}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to set tags on thread %s: %w", threadID, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

// ChannelFromDiscord はスレッドなら *models.Thread、それ以外は *models.OtherChannel に変換する
func ChannelFromDiscord(ch *discordgo.Channel) models.Channel {
	switch ch.Type {
	case discordgo.ChannelTypeGuildPublicThread, discordgo.ChannelTypeGuildPrivateThread, discordgo.ChannelTypeGuildNewsThread:
		thread := &models.Thread{
			ID:          ch.ID,
			ParentID:    ch.ParentID,
			Name:        ch.Name,
			Public:      ch.Type != discordgo.ChannelTypeGuildPrivateThread,
			AppliedTags: append([]string{}, ch.AppliedTags...),
		}
		if ch.ThreadMetadata != nil {
			thread.Archived = ch.ThreadMetadata.Archived
		}
		return thread
	default:
		return &models.OtherChannel{ID: ch.ID}
	}
}

func MessageFromDiscord(m *discordgo.Message) models.Message {
	msg := models.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}

	switch m.Type {
	case discordgo.MessageTypeDefault:
		msg.Kind = models.MessageKindDefault
	case discordgo.MessageTypeReply:
		msg.Kind = models.MessageKindReply
	default:
		msg.Kind = models.MessageKindSystem
	}

	if m.Author != nil {
		msg.Author = models.Author{
			ID:          m.Author.ID,
			DisplayName: displayName(m),
			Bot:         m.Author.Bot,
		}
	}

	for _, att := range m.Attachments {
		msg.Attachments = append(msg.Attachments, models.Attachment{
			ID:          att.ID,
			Name:        att.Filename,
			ContentType: att.ContentType,
			URL:         att.URL,
		})
	}
	return msg
}

// displayName はサーバーのニックネーム、グローバル表示名、ユーザー名の順に使う
func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

func embedToDiscord(e models.Embed) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		URL:         e.URL,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.Author.Name != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{
			Name:    e.Author.Name,
			URL:     e.Author.URL,
			IconURL: e.Author.IconURL,
		}
	}
	if !e.Timestamp.IsZero() {
		embed.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return embed
}

package handlers

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"discord-github-bridge/models"
	"discord-github-bridge/services"
)

// ChatClient は Discord 側の操作
type ChatClient interface {
	SendMessage(ctx context.Context, channelID, content string) (*models.Message, error)
	SendEmbed(ctx context.Context, channelID string, embed models.Embed) (*models.Message, error)
	EditEmbed(ctx context.Context, channelID, messageID string, embed models.Embed) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	FetchChannel(ctx context.Context, channelID string) (models.Channel, error)
	FetchStarterMessage(ctx context.Context, threadID string) (*models.Message, error)
	FetchForumTags(ctx context.Context, forumID string) ([]models.ForumTag, error)
	SetThreadArchived(ctx context.Context, threadID string, archived bool) error
	SetThreadName(ctx context.Context, threadID, name string) error
	SetThreadTags(ctx context.Context, threadID string, tagIDs []string) error
}

// IssueTracker は GitHub 側の操作
type IssueTracker interface {
	CreateIssue(ctx context.Context, title, body string, labels []string) (*models.Issue, error)
	CloseIssue(ctx context.Context, number int, comment string) error
	AddComment(ctx context.Context, number int, body string) (int64, error)
	EditComment(ctx context.Context, commentID int64, body string) error
	DeleteComment(ctx context.Context, commentID int64) error
	GetIssue(ctx context.Context, number int) (*models.Issue, error)
	UpdateIssueTitle(ctx context.Context, number int, title string) error
	UpdateIssueBody(ctx context.Context, number int, body string) error
}

// Bridge はフォーラムスレッドと Issue の双方向同期を行う
type Bridge struct {
	Store          *services.MappingStore
	Guard          *services.BotActionGuard
	Chat           ChatClient
	Tracker        IssueTracker
	ForumChannelID string
	WebhookSecret  []byte
}

func NewBridge(store *services.MappingStore, guard *services.BotActionGuard, chat ChatClient, tracker IssueTracker, forumChannelID string, webhookSecret []byte) *Bridge {
	return &Bridge{
		Store:          store,
		Guard:          guard,
		Chat:           chat,
		Tracker:        tracker,
		ForumChannelID: forumChannelID,
		WebhookSecret:  webhookSecret,
	}
}

// isForumThread は設定されたフォーラム配下の公開スレッドかどうか
func (b *Bridge) isForumThread(thread *models.Thread) bool {
	return thread != nil && thread.Public && thread.ParentID == b.ForumChannelID
}

// eventLogger はイベントごとの sync_id を付けたロガー
func eventLogger(event string) *slog.Logger {
	return slog.With("event", event, "sync_id", uuid.NewString())
}

// step は 1 イベントで実行する操作の 1 つ
type step struct {
	name string
	run  func(ctx context.Context) error
}

// runSteps は登録順にすべての step を実行し、失敗はそれぞれログに残す
// ある step の失敗は後続の step を止めない。失敗数を返す
func runSteps(ctx context.Context, log *slog.Logger, steps ...step) int {
	failed := 0
	for _, s := range steps {
		if err := s.run(ctx); err != nil {
			failed++
			log.ErrorContext(ctx, "sync step failed", "step", s.name, "error", err)
		}
	}
	return failed
}

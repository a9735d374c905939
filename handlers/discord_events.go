package handlers

import (
	"context"
	"fmt"

	"discord-github-bridge/models"
	"discord-github-bridge/services"
)

const (
	threadArchivedComment = "Thread archived in Discord — closing issue."
	issueCreateFailed     = "Failed to create GitHub issue. Please try again later."
)

// OnThreadCreate はフォーラムに新しく作られたスレッドから Issue を作成する
func (b *Bridge) OnThreadCreate(ctx context.Context, thread *models.Thread, newlyCreated bool) {
	if !newlyCreated || thread == nil {
		return
	}
	log := eventLogger("thread_create").With("thread_id", thread.ID)

	if thread.ParentID != b.ForumChannelID {
		log.WarnContext(ctx, "thread create ignored: parent is not the forum channel",
			"parent_id", thread.ParentID, "expected_parent_id", b.ForumChannelID)
		return
	}
	if !thread.Public {
		log.WarnContext(ctx, "thread create ignored: only public threads are supported")
		return
	}

	log.InfoContext(ctx, "creating github issue from discord thread")

	starter, err := b.Chat.FetchStarterMessage(ctx, thread.ID)
	if err != nil {
		log.ErrorContext(ctx, "failed to fetch starter message", "error", err)
		b.notifyIssueCreateFailed(ctx, thread.ID)
		return
	}
	if starter == nil {
		log.WarnContext(ctx, "no starter message found")
		return
	}

	// フォーラムタグをラベルに変換
	var labels []string
	if len(thread.AppliedTags) > 0 {
		catalogue, err := b.Chat.FetchForumTags(ctx, thread.ParentID)
		if err != nil {
			log.WarnContext(ctx, "failed to fetch forum tags, creating issue without labels", "error", err)
		} else {
			labels = services.TagNames(thread.AppliedTags, catalogue)
		}
	}

	body := services.AddMarker(services.FormatIssueBody(*starter))
	issue, err := b.Tracker.CreateIssue(ctx, thread.Name, body, labels)
	if err != nil {
		log.ErrorContext(ctx, "failed to create issue from thread", "error", err)
		b.notifyIssueCreateFailed(ctx, thread.ID)
		return
	}

	if err := b.Store.LinkThreadToIssue(ctx, thread.ID, issue.Number); err != nil {
		// Issue は作成済みだがマッピングが残らない（部分同期）
		log.ErrorContext(ctx, "issue created but mapping was not recorded", "issue_number", issue.Number, "error", err)
		b.notifyIssueCreateFailed(ctx, thread.ID)
		return
	}

	confirmation := fmt.Sprintf("Issue created: [#%d](%s)", issue.Number, issue.HTMLURL)
	if _, err := b.Chat.SendMessage(ctx, thread.ID, confirmation); err != nil {
		log.ErrorContext(ctx, "failed to post issue confirmation", "issue_number", issue.Number, "error", err)
	}

	log.InfoContext(ctx, "thread linked to issue", "issue_number", issue.Number)
}

func (b *Bridge) notifyIssueCreateFailed(ctx context.Context, threadID string) {
	// 通知自体の失敗は無視する
	_, _ = b.Chat.SendMessage(ctx, threadID, issueCreateFailed)
}

// OnMessageCreate は紐付いたスレッドへの投稿を Issue コメントにする
func (b *Bridge) OnMessageCreate(ctx context.Context, channel models.Channel, msg models.Message) {
	// ボット自身の投稿とシステムメッセージは無視（エコー防止）
	if msg.Author.Bot || msg.Kind == models.MessageKindSystem {
		return
	}

	thread, ok := channel.AsThread()
	if !ok || !b.isForumThread(thread) {
		return
	}

	log := eventLogger("message_create").With("thread_id", thread.ID, "message_id", msg.ID)

	issueNumber, found, err := b.Store.GetIssueByThread(ctx, thread.ID)
	if err != nil {
		log.ErrorContext(ctx, "failed to look up issue", "error", err)
		return
	}
	if !found {
		return
	}

	body := services.AddMarker(services.FormatCommentBody(msg))
	commentID, err := b.Tracker.AddComment(ctx, issueNumber, body)
	if err != nil {
		log.ErrorContext(ctx, "failed to sync message to github", "issue_number", issueNumber, "error", err)
		return
	}

	if err := b.Store.LinkMessageToComment(ctx, msg.ID, commentID, thread.ID, issueNumber); err != nil {
		log.ErrorContext(ctx, "comment created but mapping was not recorded", "comment_id", commentID, "error", err)
		return
	}

	log.InfoContext(ctx, "synced discord message to github comment", "issue_number", issueNumber, "comment_id", commentID)
}

// OnMessageUpdate はスターターメッセージの編集を Issue 本文に、それ以外をコメントに反映する
func (b *Bridge) OnMessageUpdate(ctx context.Context, channel models.Channel, msg models.Message) {
	if msg.Author.Bot {
		return
	}

	thread, ok := channel.AsThread()
	if !ok || !b.isForumThread(thread) {
		return
	}

	log := eventLogger("message_update").With("thread_id", thread.ID, "message_id", msg.ID)

	issueNumber, found, err := b.Store.GetIssueByThread(ctx, thread.ID)
	if err != nil {
		log.ErrorContext(ctx, "failed to look up issue", "error", err)
		return
	}
	if !found {
		return
	}

	// スターターメッセージのIDはスレッドIDと同じ
	if msg.ID == thread.ID {
		body := services.AddMarker(services.FormatIssueBody(msg))
		if err := b.Tracker.UpdateIssueBody(ctx, issueNumber, body); err != nil {
			log.ErrorContext(ctx, "failed to sync starter message edit", "issue_number", issueNumber, "error", err)
			return
		}
		log.InfoContext(ctx, "synced starter message edit to issue body", "issue_number", issueNumber)
		return
	}

	mapping, found, err := b.Store.GetCommentByMessage(ctx, msg.ID)
	if err != nil {
		log.ErrorContext(ctx, "failed to look up comment", "error", err)
		return
	}
	if !found {
		return
	}

	body := services.AddMarker(services.FormatCommentBody(msg))
	if err := b.Tracker.EditComment(ctx, mapping.GithubCommentID, body); err != nil {
		log.ErrorContext(ctx, "failed to sync message edit", "comment_id", mapping.GithubCommentID, "error", err)
		return
	}

	log.InfoContext(ctx, "synced discord message edit to github comment", "comment_id", mapping.GithubCommentID)
}

// OnMessageDelete は同期済みメッセージの削除をコメント削除として反映する
func (b *Bridge) OnMessageDelete(ctx context.Context, channel models.Channel, messageID string) {
	thread, ok := channel.AsThread()
	if !ok || !b.isForumThread(thread) {
		return
	}

	log := eventLogger("message_delete").With("thread_id", thread.ID, "message_id", messageID)

	mapping, found, err := b.Store.GetCommentByMessage(ctx, messageID)
	if err != nil {
		log.ErrorContext(ctx, "failed to look up comment", "error", err)
		return
	}
	if !found {
		return
	}

	if err := b.Tracker.DeleteComment(ctx, mapping.GithubCommentID); err != nil {
		log.ErrorContext(ctx, "failed to sync message delete", "comment_id", mapping.GithubCommentID, "error", err)
		return
	}
	if err := b.Store.UnlinkMessage(ctx, messageID); err != nil {
		log.ErrorContext(ctx, "comment deleted but mapping was not removed", "error", err)
		return
	}

	log.InfoContext(ctx, "synced discord message delete to github comment", "comment_id", mapping.GithubCommentID)
}

// OnThreadUpdate はアーカイブを Issue のクローズに、名前変更をタイトル変更に反映する
// old が nil の場合（キャッシュになかった場合）はアーカイブの遷移を判定できないので何もしない
func (b *Bridge) OnThreadUpdate(ctx context.Context, old, thread *models.Thread) {
	if thread == nil || thread.ParentID != b.ForumChannelID {
		return
	}

	log := eventLogger("thread_update").With("thread_id", thread.ID)

	issueNumber, found, err := b.Store.GetIssueByThread(ctx, thread.ID)
	if err != nil {
		log.ErrorContext(ctx, "failed to look up issue", "error", err)
		return
	}
	if !found {
		return
	}

	if old == nil {
		return
	}

	// アーカイブ状態の変化だけがブリッジ自身の操作として記録される（1 回だけ消費）
	if old.Archived != thread.Archived {
		if b.Guard.IsBotAction(thread.ID) {
			log.DebugContext(ctx, "archive change suppressed: bot action", "issue_number", issueNumber)
		} else if thread.Archived {
			if err := b.Tracker.CloseIssue(ctx, issueNumber, services.AddMarker(threadArchivedComment)); err != nil {
				log.ErrorContext(ctx, "failed to close issue on thread archive", "issue_number", issueNumber, "error", err)
			} else {
				log.InfoContext(ctx, "closed issue due to thread archival", "issue_number", issueNumber)
			}
		}
	}

	// 名前の変更はアーカイブとは独立に反映する
	if old.Name != thread.Name && thread.Name != "" {
		if err := b.Tracker.UpdateIssueTitle(ctx, issueNumber, thread.Name); err != nil {
			log.ErrorContext(ctx, "failed to sync thread rename", "issue_number", issueNumber, "error", err)
		} else {
			log.InfoContext(ctx, "synced thread rename to issue title", "issue_number", issueNumber)
		}
	}
}

// OnThreadDelete はスレッドのマッピングを削除する（Issue はそのまま残す）
func (b *Bridge) OnThreadDelete(ctx context.Context, threadID string) {
	log := eventLogger("thread_delete").With("thread_id", threadID)

	if _, found, err := b.Store.GetIssueByThread(ctx, threadID); err != nil || !found {
		if err != nil {
			log.ErrorContext(ctx, "failed to look up issue", "error", err)
		}
		return
	}

	removed, err := b.Store.UnlinkMessagesByThread(ctx, threadID)
	if err != nil {
		log.ErrorContext(ctx, "failed to remove message mappings", "error", err)
	}
	if err := b.Store.UnlinkThread(ctx, threadID); err != nil {
		log.ErrorContext(ctx, "failed to unlink deleted thread", "error", err)
		return
	}

	log.InfoContext(ctx, "unlinked deleted thread", "removed_messages", removed)
}

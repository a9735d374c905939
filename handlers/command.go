package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"discord-github-bridge/models"
	"discord-github-bridge/services"
)

const (
	CommandLinkIssue  = "link-issue"
	CommandCloseIssue = "close-issue"
	CommandSyncStatus = "sync-status"
)

const (
	replyNotForumThread = "This command can only be used in forum threads."
	replyNotLinked      = "This thread is not linked to any GitHub issue."
	replyError          = "An error occurred."
)

// CommandReply はスラッシュコマンドへの返信
// Ephemeral は実行したユーザーにだけ見える返信
type CommandReply struct {
	Content   string
	Ephemeral bool
}

func ephemeral(content string) CommandReply {
	return CommandReply{Content: content, Ephemeral: true}
}

// CommandRequest はスラッシュコマンドの入力
type CommandRequest struct {
	Name        string
	Channel     models.Channel
	UserName    string
	IssueNumber int // link-issue のみ
}

// HandleCommand はコマンド名で処理を振り分ける
// 処理中のエラーは利用者には一般的なメッセージだけ返す
func (b *Bridge) HandleCommand(ctx context.Context, req CommandRequest) CommandReply {
	var (
		reply CommandReply
		err   error
	)

	switch req.Name {
	case CommandLinkIssue:
		reply, err = b.LinkIssue(ctx, req.Channel, req.IssueNumber)
	case CommandCloseIssue:
		reply, err = b.CloseIssue(ctx, req.Channel, req.UserName)
	case CommandSyncStatus:
		reply, err = b.SyncStatus(ctx, req.Channel)
	default:
		return ephemeral(fmt.Sprintf("Unknown command: %s", req.Name))
	}

	if err != nil {
		slog.ErrorContext(ctx, "error handling command", "command", req.Name, "channel_id", req.Channel.ChannelID(), "error", err)
		return ephemeral(replyError)
	}
	return reply
}

// forumThread はコマンドがフォーラムスレッド内で実行されたかを確認する
func (b *Bridge) forumThread(channel models.Channel) (*models.Thread, bool) {
	if channel == nil {
		return nil, false
	}
	thread, ok := channel.AsThread()
	if !ok || !b.isForumThread(thread) {
		return nil, false
	}
	return thread, true
}

// LinkIssue はスレッドを既存の Issue に手動で紐付ける
func (b *Bridge) LinkIssue(ctx context.Context, channel models.Channel, issueNumber int) (CommandReply, error) {
	thread, ok := b.forumThread(channel)
	if !ok {
		return ephemeral(replyNotForumThread), nil
	}
	if issueNumber <= 0 {
		return ephemeral("Issue number must be a positive integer."), nil
	}

	existing, found, err := b.Store.GetIssueByThread(ctx, thread.ID)
	if err != nil {
		return CommandReply{}, err
	}
	if found {
		return ephemeral(fmt.Sprintf("This thread is already linked to issue #%d.", existing)), nil
	}

	// 1 つの Issue に複数のスレッドが紐付くと逆引きが曖昧になる
	otherThread, found, err := b.Store.GetThreadByIssue(ctx, issueNumber)
	if err != nil {
		return CommandReply{}, err
	}
	if found && otherThread != thread.ID {
		return ephemeral(fmt.Sprintf("Issue #%d is already linked to <#%s>.", issueNumber, otherThread)), nil
	}

	issue, err := b.Tracker.GetIssue(ctx, issueNumber)
	if err != nil {
		return CommandReply{}, err
	}
	if err := b.Store.LinkThreadToIssue(ctx, thread.ID, issueNumber); err != nil {
		return CommandReply{}, err
	}

	slog.InfoContext(ctx, "thread linked to issue manually", "thread_id", thread.ID, "issue_number", issueNumber)
	return CommandReply{
		Content: fmt.Sprintf("Linked to [#%d — %s](%s) (%s)", issueNumber, issue.Title, issue.HTMLURL, issue.State),
	}, nil
}

// CloseIssue はスレッドに紐付いた Issue を閉じる
func (b *Bridge) CloseIssue(ctx context.Context, channel models.Channel, userName string) (CommandReply, error) {
	thread, ok := b.forumThread(channel)
	if !ok {
		return ephemeral(replyNotForumThread), nil
	}

	issueNumber, found, err := b.Store.GetIssueByThread(ctx, thread.ID)
	if err != nil {
		return CommandReply{}, err
	}
	if !found {
		return ephemeral(replyNotLinked), nil
	}

	comment := services.AddMarker(fmt.Sprintf("Closed from Discord by **%s**.", userName))
	if err := b.Tracker.CloseIssue(ctx, issueNumber, comment); err != nil {
		return CommandReply{}, err
	}

	return CommandReply{Content: fmt.Sprintf("Issue #%d closed.", issueNumber)}, nil
}

// SyncStatus はスレッドの紐付け状況を表示する
func (b *Bridge) SyncStatus(ctx context.Context, channel models.Channel) (CommandReply, error) {
	thread, ok := b.forumThread(channel)
	if !ok {
		return ephemeral(replyNotForumThread), nil
	}

	issueNumber, found, err := b.Store.GetIssueByThread(ctx, thread.ID)
	if err != nil {
		return CommandReply{}, err
	}
	if !found {
		return ephemeral(replyNotLinked), nil
	}

	issue, err := b.Tracker.GetIssue(ctx, issueNumber)
	if err != nil {
		return CommandReply{}, err
	}

	labels := "none"
	if len(issue.Labels) > 0 {
		quoted := make([]string, len(issue.Labels))
		for i, l := range issue.Labels {
			quoted[i] = "`" + l + "`"
		}
		labels = strings.Join(quoted, ", ")
	}

	return CommandReply{
		Content: strings.Join([]string{
			fmt.Sprintf("**Issue:** [#%d — %s](%s)", issueNumber, issue.Title, issue.HTMLURL),
			fmt.Sprintf("**Status:** %s", issue.State),
			fmt.Sprintf("**Labels:** %s", labels),
		}, "\n"),
	}, nil
}

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v71/github"

	"discord-github-bridge/models"
	"discord-github-bridge/services"
)

const (
	embedColorCreated = 0x238636
	embedColorEdited  = 0xd29922
)

// HandleGitHubWebhook は GitHub の webhook を検証して各イベントの処理に振り分ける
// 同期処理の失敗は GitHub に返さずログにだけ残す
func (b *Bridge) HandleGitHubWebhook() gin.HandlerFunc {
	return func(c *gin.Context) {
		deliveryID := c.GetHeader("X-GitHub-Delivery")
		eventType := github.WebHookType(c.Request)

		payload, err := github.ValidatePayload(c.Request, b.WebhookSecret)
		if err != nil {
			slog.Warn("webhook signature validation failed", "delivery_id", deliveryID, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}

		event, err := github.ParseWebHook(eventType, payload)
		if err != nil {
			slog.Warn("cannot parse webhook", "delivery_id", deliveryID, "event_type", eventType, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot parse webhook"})
			return
		}

		ctx := c.Request.Context()
		switch e := event.(type) {
		case *github.IssuesEvent:
			b.HandleIssueEvent(ctx, e)
		case *github.IssueCommentEvent:
			b.HandleIssueCommentEvent(ctx, e)
		case *github.PullRequestEvent:
			b.HandlePullRequestEvent(ctx, e)
		case *github.PingEvent:
			slog.Info("webhook ping received", "delivery_id", deliveryID, "zen", e.GetZen())
		default:
			slog.Debug("webhook event ignored", "delivery_id", deliveryID, "event_type", eventType)
		}

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// threadFor は Issue に紐付いたスレッドを返す。紐付いていなければ nil
func (b *Bridge) threadFor(ctx context.Context, log *slog.Logger, issueNumber int) *models.Thread {
	threadID, found, err := b.Store.GetThreadByIssue(ctx, issueNumber)
	if err != nil {
		log.ErrorContext(ctx, "failed to look up thread", "error", err)
		return nil
	}
	if !found {
		return nil
	}

	channel, err := b.Chat.FetchChannel(ctx, threadID)
	if err != nil {
		log.ErrorContext(ctx, "failed to fetch thread", "thread_id", threadID, "error", err)
		return nil
	}
	thread, ok := channel.AsThread()
	if !ok {
		log.WarnContext(ctx, "mapped channel is not a thread", "thread_id", threadID)
		return nil
	}
	return thread
}

// HandleIssueEvent は Issue の状態変化をスレッドに反映する
func (b *Bridge) HandleIssueEvent(ctx context.Context, e *github.IssuesEvent) {
	issue := e.GetIssue()
	log := eventLogger("issues").With("issue_number", issue.GetNumber(), "action", e.GetAction())

	thread := b.threadFor(ctx, log, issue.GetNumber())
	if thread == nil {
		return
	}
	log = log.With("thread_id", thread.ID)

	sender := services.GetDisplayName(e.GetSender())
	issueLink := fmt.Sprintf("Issue [#%d](%s)", issue.GetNumber(), issue.GetHTMLURL())

	var steps []step
	switch e.GetAction() {
	case "closed":
		// アーカイブ済みスレッドへの投稿はアーカイブを解除してしまうので、投稿してからアーカイブする
		steps = []step{
			b.notifyStep(thread.ID, fmt.Sprintf("%s closed by **%s**", issueLink, sender)),
			b.archiveStep(thread.ID, true),
		}
	case "reopened":
		steps = []step{
			b.archiveStep(thread.ID, false),
			b.notifyStep(thread.ID, fmt.Sprintf("%s reopened by **%s**", issueLink, sender)),
		}
	case "edited":
		if issue.GetTitle() != "" && issue.GetTitle() != thread.Name {
			steps = []step{b.renameStep(thread.ID, issue.GetTitle())}
		}
	case "labeled", "unlabeled":
		// 通知できなくてもタグは Issue のラベルに合わせる
		if e.Label != nil {
			verb := "added"
			if e.GetAction() == "unlabeled" {
				verb = "removed"
			}
			steps = append(steps, b.notifyStep(thread.ID, fmt.Sprintf("Label `%s` %s by **%s**", e.Label.GetName(), verb, sender)))
		}
		labels := services.LabelNames(issue.Labels)
		steps = append(steps, step{name: "reconcile-tags", run: func(ctx context.Context) error {
			return b.reconcileTags(ctx, thread, labels)
		}})
	case "assigned":
		if e.Assignee != nil {
			steps = []step{b.notifyStep(thread.ID, fmt.Sprintf("Issue assigned to **%s** by **%s**", e.Assignee.GetLogin(), sender))}
		}
	case "unassigned":
		if e.Assignee != nil {
			steps = []step{b.notifyStep(thread.ID, fmt.Sprintf("**%s** unassigned by **%s**", e.Assignee.GetLogin(), sender))}
		}
	case "milestoned":
		steps = []step{b.notifyStep(thread.ID, fmt.Sprintf("Milestone `%s` set by **%s**", issue.GetMilestone().GetTitle(), sender))}
	case "demilestoned":
		steps = []step{b.notifyStep(thread.ID, fmt.Sprintf("Milestone removed by **%s**", sender))}
	default:
		return
	}

	if len(steps) == 0 {
		return
	}
	if failed := runSteps(ctx, log, steps...); failed == 0 {
		log.InfoContext(ctx, "synced issue event to discord")
	}
}

func (b *Bridge) notifyStep(threadID, message string) step {
	return step{name: "notify", run: func(ctx context.Context) error {
		_, err := b.Chat.SendMessage(ctx, threadID, message)
		return err
	}}
}

// archiveStep は自分の操作として記録してからアーカイブ状態を変える
func (b *Bridge) archiveStep(threadID string, archived bool) step {
	name := "archive"
	if !archived {
		name = "unarchive"
	}
	return step{name: name, run: func(ctx context.Context) error {
		b.Guard.MarkBotAction(threadID)
		return b.Chat.SetThreadArchived(ctx, threadID, archived)
	}}
}

// renameStep は記録しない。戻ってくる名前変更は同じタイトルへの更新になるだけ
func (b *Bridge) renameStep(threadID, name string) step {
	return step{name: "rename", run: func(ctx context.Context) error {
		return b.Chat.SetThreadName(ctx, threadID, name)
	}}
}

// HandleIssueCommentEvent は GitHub のコメントをスレッドに埋め込みとして転送する
func (b *Bridge) HandleIssueCommentEvent(ctx context.Context, e *github.IssueCommentEvent) {
	comment := e.GetComment()
	// ブリッジ自身が書いたコメントは転送しない
	if services.HasMarker(comment.GetBody()) {
		return
	}

	issueNumber := e.GetIssue().GetNumber()
	log := eventLogger("issue_comment").With("issue_number", issueNumber, "comment_id", comment.GetID(), "action", e.GetAction())
	sender := services.GetDisplayName(e.GetSender())

	switch e.GetAction() {
	case "created":
		threadID, found, err := b.Store.GetThreadByIssue(ctx, issueNumber)
		if err != nil {
			log.ErrorContext(ctx, "failed to look up thread", "error", err)
			return
		}
		if !found {
			return
		}

		sent, err := b.Chat.SendEmbed(ctx, threadID, services.CommentEmbed(comment, sender, embedColorCreated))
		if err != nil {
			log.ErrorContext(ctx, "failed to sync comment to discord", "thread_id", threadID, "error", err)
			return
		}
		if err := b.Store.LinkMessageToComment(ctx, sent.ID, comment.GetID(), threadID, issueNumber); err != nil {
			log.ErrorContext(ctx, "message sent but mapping was not recorded", "message_id", sent.ID, "error", err)
			return
		}
		log.InfoContext(ctx, "synced github comment to discord", "thread_id", threadID, "message_id", sent.ID)

	case "edited":
		mapping, found, err := b.Store.GetMessageByComment(ctx, comment.GetID())
		if err != nil {
			log.ErrorContext(ctx, "failed to look up message", "error", err)
			return
		}
		if !found {
			return
		}
		embed := services.CommentEmbed(comment, sender, embedColorEdited)
		if err := b.Chat.EditEmbed(ctx, mapping.ThreadID, mapping.DiscordMessageID, embed); err != nil {
			log.ErrorContext(ctx, "failed to sync comment edit to discord", "message_id", mapping.DiscordMessageID, "error", err)
			return
		}
		log.InfoContext(ctx, "synced github comment edit to discord", "message_id", mapping.DiscordMessageID)

	case "deleted":
		mapping, found, err := b.Store.GetMessageByComment(ctx, comment.GetID())
		if err != nil {
			log.ErrorContext(ctx, "failed to look up message", "error", err)
			return
		}
		if !found {
			return
		}
		if err := b.Chat.DeleteMessage(ctx, mapping.ThreadID, mapping.DiscordMessageID); err != nil {
			log.ErrorContext(ctx, "failed to sync comment delete to discord", "message_id", mapping.DiscordMessageID, "error", err)
			return
		}
		if err := b.Store.UnlinkMessage(ctx, mapping.DiscordMessageID); err != nil {
			log.ErrorContext(ctx, "message deleted but mapping was not removed", "error", err)
			return
		}
		log.InfoContext(ctx, "synced github comment delete to discord", "message_id", mapping.DiscordMessageID)
	}
}

// HandlePullRequestEvent は PR が参照している Issue のスレッドに通知する
func (b *Bridge) HandlePullRequestEvent(ctx context.Context, e *github.PullRequestEvent) {
	action := e.GetAction()
	if action != "opened" && action != "closed" {
		return
	}

	pr := e.GetPullRequest()
	log := eventLogger("pull_request").With("pr_number", pr.GetNumber(), "action", action)

	refs := services.ExtractIssueRefs(pr.GetTitle() + " " + pr.GetBody())
	if len(refs) == 0 {
		return
	}

	sender := services.GetDisplayName(e.GetSender())
	prLink := fmt.Sprintf("PR [#%d %s](%s)", pr.GetNumber(), pr.GetTitle(), pr.GetHTMLURL())

	var message string
	switch {
	case action == "opened":
		message = fmt.Sprintf("%s opened by **%s** references this issue", prLink, sender)
	case pr.GetMerged():
		message = fmt.Sprintf("%s merged by **%s**", prLink, sender)
	default:
		message = fmt.Sprintf("%s closed by **%s**", prLink, sender)
	}

	// 1 つのスレッドへの失敗は他のスレッドへの通知を止めない
	for _, issueNumber := range refs {
		issueLog := log.With("issue_number", issueNumber)

		threadID, found, err := b.Store.GetThreadByIssue(ctx, issueNumber)
		if err != nil {
			issueLog.ErrorContext(ctx, "failed to look up thread", "error", err)
			continue
		}
		if !found {
			continue
		}

		if _, err := b.Chat.SendMessage(ctx, threadID, message); err != nil {
			issueLog.ErrorContext(ctx, "failed to sync pr event to discord", "thread_id", threadID, "error", err)
			continue
		}
		issueLog.InfoContext(ctx, "synced pr event to discord", "thread_id", threadID)
	}
}

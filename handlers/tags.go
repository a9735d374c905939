package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"discord-github-bridge/models"
	"discord-github-bridge/services"
)

// reconcileTags はスレッドのタグを Issue のラベル集合に合わせる
// 差分がなければ API は呼ばない
func (b *Bridge) reconcileTags(ctx context.Context, thread *models.Thread, labels []string) error {
	if thread.Archived || thread.ParentID != b.ForumChannelID {
		return nil
	}

	catalogue, err := b.Chat.FetchForumTags(ctx, thread.ParentID)
	if err != nil {
		return fmt.Errorf("failed to fetch forum tags: %w", err)
	}

	desired := services.MatchTags(labels, catalogue)
	if services.SameTagSet(desired, thread.AppliedTags) {
		return nil
	}

	if err := b.Chat.SetThreadTags(ctx, thread.ID, desired); err != nil {
		return err
	}
	slog.InfoContext(ctx, "synced issue labels to thread tags", "thread_id", thread.ID, "tags", desired)
	return nil
}

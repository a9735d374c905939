package services

import (
	"context"
	"errors"
	"log/slog"

	"discord-github-bridge/models"
)

// ChannelFetcher はスレッドの存在確認に使う
type ChannelFetcher interface {
	FetchChannel(ctx context.Context, channelID string) (models.Channel, error)
}

// CleanupDeletedThreads は削除済みのスレッドのマッピングを取り除く
// 停止中に削除されたスレッドは threadDelete を受け取れないので定期的に確認する
// 削除したスレッド数を返す
func CleanupDeletedThreads(ctx context.Context, store *MappingStore, fetcher ChannelFetcher) (int, error) {
	mappings, err := store.ListThreadMappings(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, m := range mappings {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}

		_, err := fetcher.FetchChannel(ctx, m.ThreadID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrChannelNotFound) {
			slog.WarnContext(ctx, "thread status check error", "thread_id", m.ThreadID, "error", err)
			continue
		}

		if _, err := store.UnlinkMessagesByThread(ctx, m.ThreadID); err != nil {
			slog.ErrorContext(ctx, "failed to remove message mappings", "thread_id", m.ThreadID, "error", err)
			continue
		}
		if err := store.UnlinkThread(ctx, m.ThreadID); err != nil {
			slog.ErrorContext(ctx, "failed to unlink deleted thread", "thread_id", m.ThreadID, "error", err)
			continue
		}
		slog.InfoContext(ctx, "unlinked deleted thread", "thread_id", m.ThreadID, "issue_number", m.IssueNumber)
		removed++
	}
	return removed, nil
}

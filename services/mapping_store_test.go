package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("fail to open test db: %v", err)
	}
	t.Cleanup(func() { _ = CloseDatabase(db) })
	return db
}

func TestMappingStore_ThreadIssueBothDirections(t *testing.T) {
	ctx := context.Background()
	store := NewMappingStore(setupTestDB(t))

	require.NoError(t, store.LinkThreadToIssue(ctx, "T1", 42))

	issue, found, err := store.GetIssueByThread(ctx, "T1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 42, issue)

	thread, found, err := store.GetThreadByIssue(ctx, 42)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "T1", thread)
}

func TestMappingStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMappingStore(setupTestDB(t))

	_, found, err := store.GetIssueByThread(ctx, "unknown")
	assert.NoError(t, err)
	assert.False(t, found)

	_, found, err = store.GetThreadByIssue(ctx, 999)
	assert.NoError(t, err)
	assert.False(t, found)

	mapping, found, err := store.GetCommentByMessage(ctx, "unknown")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, mapping)

	_, found, err = store.GetMessageByComment(ctx, 12345)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestMappingStore_LinkThreadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMappingStore(setupTestDB(t))

	require.NoError(t, store.LinkThreadToIssue(ctx, "T1", 42))
	require.NoError(t, store.LinkThreadToIssue(ctx, "T1", 42))

	mappings, err := store.ListThreadMappings(ctx)
	assert.NoError(t, err)
	assert.Len(t, mappings, 1)
}

func TestMappingStore_RelinkOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewMappingStore(setupTestDB(t))

	require.NoError(t, store.LinkThreadToIssue(ctx, "T1", 42))
	require.NoError(t, store.LinkThreadToIssue(ctx, "T1", 43))

	issue, found, err := store.GetIssueByThread(ctx, "T1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 43, issue)

	_, found, err = store.GetThreadByIssue(ctx, 42)
	assert.NoError(t, err)
	assert.False(t, found, "古い Issue からの逆引きは残らない")
}

func TestMappingStore_UnlinkThread(t *testing.T) {
	ctx := context.Background()
	store := NewMappingStore(setupTestDB(t))

	require.NoError(t, store.LinkThreadToIssue(ctx, "T1", 42))
	require.NoError(t, store.UnlinkThread(ctx, "T1"))

	_, found, err := store.GetIssueByThread(ctx, "T1")
	assert.NoError(t, err)
	assert.False(t, found)

	// 存在しないスレッドの削除はエラーにならない
	assert.NoError(t, store.UnlinkThread(ctx, "T1"))
}

func TestMappingStore_MessageComment(t *testing.T) {
	ctx := context.Background()
	store := NewMappingStore(setupTestDB(t))

	require.NoError(t, store.LinkMessageToComment(ctx, "M1", 555, "T1", 42))

	byMessage, found, err := store.GetCommentByMessage(ctx, "M1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(555), byMessage.GithubCommentID)
	assert.Equal(t, 42, byMessage.IssueNumber)

	byComment, found, err := store.GetMessageByComment(ctx, 555)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "M1", byComment.DiscordMessageID)
	assert.Equal(t, "T1", byComment.ThreadID)

	require.NoError(t, store.UnlinkMessage(ctx, "M1"))
	_, found, err = store.GetCommentByMessage(ctx, "M1")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, store.UnlinkMessage(ctx, "M1"))
}

func TestMappingStore_RelinkMessageOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewMappingStore(setupTestDB(t))

	require.NoError(t, store.LinkMessageToComment(ctx, "M1", 555, "T1", 42))
	require.NoError(t, store.LinkMessageToComment(ctx, "M1", 556, "T1", 42))

	mapping, found, err := store.GetCommentByMessage(ctx, "M1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(556), mapping.GithubCommentID)
}

func TestMappingStore_UnlinkMessagesByThread(t *testing.T) {
	ctx := context.Background()
	store := NewMappingStore(setupTestDB(t))

	require.NoError(t, store.LinkMessageToComment(ctx, "M1", 1, "T1", 42))
	require.NoError(t, store.LinkMessageToComment(ctx, "M2", 2, "T1", 42))
	require.NoError(t, store.LinkMessageToComment(ctx, "M3", 3, "T2", 43))

	removed, err := store.UnlinkMessagesByThread(ctx, "T1")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, found, _ := store.GetCommentByMessage(ctx, "M1")
	assert.False(t, found)
	_, found, _ = store.GetCommentByMessage(ctx, "M3")
	assert.True(t, found)
}

func TestMappingStore_ListThreadMappings(t *testing.T) {
	ctx := context.Background()
	store := NewMappingStore(setupTestDB(t))

	require.NoError(t, store.LinkThreadToIssue(ctx, "T1", 1))
	require.NoError(t, store.LinkThreadToIssue(ctx, "T2", 2))

	mappings, err := store.ListThreadMappings(ctx)
	assert.NoError(t, err)
	assert.Len(t, mappings, 2)

	issues := map[string]int{}
	for _, m := range mappings {
		issues[m.ThreadID] = m.IssueNumber
	}
	assert.Equal(t, map[string]int{"T1": 1, "T2": 2}, issues)
}

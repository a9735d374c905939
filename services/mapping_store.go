package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"discord-github-bridge/models"
)

// MappingStore はスレッド/Issue とメッセージ/コメントの対応を永続化する
// 各操作は単一キーに対する点操作で、複数操作をまたぐトランザクションは持たない
type MappingStore struct {
	db *gorm.DB
}

func NewMappingStore(db *gorm.DB) *MappingStore {
	return &MappingStore{db: db}
}

// LinkThreadToIssue はスレッドを Issue に紐付ける（同じスレッドなら上書き）
func (s *MappingStore) LinkThreadToIssue(ctx context.Context, threadID string, issueNumber int) error {
	mapping := models.ThreadIssueMapping{
		ThreadID:    threadID,
		IssueNumber: issueNumber,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "thread_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"issue_number"}),
		}).
		Create(&mapping).Error
	if err != nil {
		return fmt.Errorf("failed to link thread %s to issue #%d: %w", threadID, issueNumber, err)
	}
	return nil
}

func (s *MappingStore) GetIssueByThread(ctx context.Context, threadID string) (int, bool, error) {
	var mapping models.ThreadIssueMapping
	err := s.db.WithContext(ctx).Where("thread_id = ?", threadID).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up issue for thread %s: %w", threadID, err)
	}
	return mapping.IssueNumber, true, nil
}

func (s *MappingStore) GetThreadByIssue(ctx context.Context, issueNumber int) (string, bool, error) {
	var mapping models.ThreadIssueMapping
	err := s.db.WithContext(ctx).Where("issue_number = ?", issueNumber).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up thread for issue #%d: %w", issueNumber, err)
	}
	return mapping.ThreadID, true, nil
}

// UnlinkThread は存在しなくてもエラーにしない
func (s *MappingStore) UnlinkThread(ctx context.Context, threadID string) error {
	err := s.db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&models.ThreadIssueMapping{}).Error
	if err != nil {
		return fmt.Errorf("failed to unlink thread %s: %w", threadID, err)
	}
	return nil
}

func (s *MappingStore) ListThreadMappings(ctx context.Context) ([]models.ThreadIssueMapping, error) {
	var mappings []models.ThreadIssueMapping
	if err := s.db.WithContext(ctx).Order("created_at").Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("failed to list thread mappings: %w", err)
	}
	return mappings, nil
}

func (s *MappingStore) LinkMessageToComment(ctx context.Context, messageID string, commentID int64, threadID string, issueNumber int) error {
	mapping := models.MessageCommentMapping{
		DiscordMessageID: messageID,
		GithubCommentID:  commentID,
		ThreadID:         threadID,
		IssueNumber:      issueNumber,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&mapping).Error
	if err != nil {
		return fmt.Errorf("failed to link message %s to comment %d: %w", messageID, commentID, err)
	}
	return nil
}

// GetCommentByMessage は GithubCommentID と IssueNumber を埋めたマッピングを返す
func (s *MappingStore) GetCommentByMessage(ctx context.Context, messageID string) (*models.MessageCommentMapping, bool, error) {
	var mapping models.MessageCommentMapping
	err := s.db.WithContext(ctx).Where("discord_message_id = ?", messageID).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up comment for message %s: %w", messageID, err)
	}
	return &mapping, true, nil
}

// GetMessageByComment は DiscordMessageID と ThreadID を埋めたマッピングを返す
func (s *MappingStore) GetMessageByComment(ctx context.Context, commentID int64) (*models.MessageCommentMapping, bool, error) {
	var mapping models.MessageCommentMapping
	err := s.db.WithContext(ctx).Where("github_comment_id = ?", commentID).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up message for comment %d: %w", commentID, err)
	}
	return &mapping, true, nil
}

func (s *MappingStore) UnlinkMessage(ctx context.Context, messageID string) error {
	err := s.db.WithContext(ctx).Where("discord_message_id = ?", messageID).Delete(&models.MessageCommentMapping{}).Error
	if err != nil {
		return fmt.Errorf("failed to unlink message %s: %w", messageID, err)
	}
	return nil
}

// UnlinkMessagesByThread はスレッド削除時の後始末
func (s *MappingStore) UnlinkMessagesByThread(ctx context.Context, threadID string) (int64, error) {
	result := s.db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&models.MessageCommentMapping{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to unlink messages of thread %s: %w", threadID, result.Error)
	}
	return result.RowsAffected, nil
}

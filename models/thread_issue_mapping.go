package models

import (
	"time"
)

// ThreadIssueMapping は Discord スレッドと GitHub Issue の 1:1 の対応を保持する
type ThreadIssueMapping struct {
	ThreadID    string `gorm:"primaryKey"` // Discord のスレッドID
	IssueNumber int    `gorm:"index;not null"`
	CreatedAt   time.Time
}

func (ThreadIssueMapping) TableName() string { return "thread_issue_map" }

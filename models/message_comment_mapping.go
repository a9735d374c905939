package models

// MessageCommentMapping は Discord メッセージと GitHub コメントの対応を保持する
// スレッド/Issue の組にぶら下がる
type MessageCommentMapping struct {
	DiscordMessageID string `gorm:"primaryKey"`
	GithubCommentID  int64  `gorm:"index;not null"` // 1コメントに対して1メッセージのみ
	ThreadID         string `gorm:"index;not null"`
	IssueNumber      int    `gorm:"not null"`
}

func (MessageCommentMapping) TableName() string { return "message_comment_map" }

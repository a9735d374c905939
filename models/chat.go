package models

import (
	"strings"
	"time"
)

// Channel は Discord のチャンネルを表す
// Thread か OtherChannel のどちらか
type Channel interface {
	ChannelID() string
	AsThread() (*Thread, bool)
	isChannel()
}

// Thread はフォーラムチャンネル配下のスレッド
type Thread struct {
	ID          string
	ParentID    string // フォーラムチャンネルID
	Name        string
	Public      bool
	Archived    bool
	AppliedTags []string // 適用中のフォーラムタグID
}

func (t *Thread) ChannelID() string        { return t.ID }
func (t *Thread) AsThread() (*Thread, bool) { return t, true }
func (*Thread) isChannel()                 {}

// OtherChannel はスレッド以外のチャンネル（テキストチャンネル、DM など）
type OtherChannel struct {
	ID string
}

func (c *OtherChannel) ChannelID() string        { return c.ID }
func (c *OtherChannel) AsThread() (*Thread, bool) { return nil, false }
func (*OtherChannel) isChannel()                 {}

type Author struct {
	ID          string
	DisplayName string
	Bot         bool
}

type Attachment struct {
	ID          string
	Name        string
	ContentType string
	URL         string
}

// IsImage は画像として埋め込むべき添付ファイルかどうか
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.ContentType, "image/")
}

type MessageKind int

const (
	MessageKindDefault MessageKind = iota
	MessageKindReply
	MessageKindSystem // 参加通知、ピン留めなど
)

type Message struct {
	ID          string
	ChannelID   string
	Author      Author
	Content     string
	Kind        MessageKind
	Attachments []Attachment
}

type ForumTag struct {
	ID   string
	Name string
}

type EmbedAuthor struct {
	Name    string
	URL     string
	IconURL string
}

// Embed は GitHub コメントを Discord に転送する際の埋め込み
type Embed struct {
	Author      EmbedAuthor
	Description string
	URL         string
	Timestamp   time.Time
	Color       int
}

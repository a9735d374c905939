package services

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"discord-github-bridge/models"
)

// EmbedDescriptionLimit は埋め込み本文の最大文字数
const EmbedDescriptionLimit = 2000

// FormatAttachments は添付ファイルを Markdown のリンクに変換する
// 画像は埋め込み画像として、それ以外は通常のリンクとして出力する
func FormatAttachments(attachments []models.Attachment) string {
	if len(attachments) == 0 {
		return ""
	}

	lines := make([]string, 0, len(attachments))
	for _, att := range attachments {
		if att.IsImage() {
			lines = append(lines, fmt.Sprintf("![%s](%s)", att.Name, att.URL))
		} else {
			lines = append(lines, fmt.Sprintf("[%s](%s)", att.Name, att.URL))
		}
	}
	return "\n\n" + strings.Join(lines, "\n")
}

// FormatIssueBody はスターターメッセージを Issue 本文に変換する
func FormatIssueBody(msg models.Message) string {
	content := msg.Content
	if content == "" {
		content = "*No description*"
	}
	return content + FormatAttachments(msg.Attachments)
}

// FormatCommentBody は Discord のメッセージを GitHub コメント本文に変換する
func FormatCommentBody(msg models.Message) string {
	return fmt.Sprintf("**%s** commented:\n\n", msg.Author.DisplayName) +
		msg.Content +
		FormatAttachments(msg.Attachments)
}

// Truncate は max 文字を超える場合に末尾を "..." にして max 文字に収める
func Truncate(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max-3]) + "..."
}

var issueRefPattern = regexp.MustCompile(`(?i)(?:close[sd]?|fix(?:e[sd])?|resolve[sd]?)\s+#(\d+)`)

// ExtractIssueRefs は PR のタイトルと本文から "Fixes #12" 形式の参照を抜き出す
// 重複は除き、番号順に返す
func ExtractIssueRefs(text string) []int {
	seen := make(map[int]bool)
	for _, match := range issueRefPattern.FindAllStringSubmatch(text, -1) {
		number, err := strconv.Atoi(match[1])
		if err != nil || number <= 0 {
			continue
		}
		seen[number] = true
	}

	refs := make([]int, 0, len(seen))
	for number := range seen {
		refs = append(refs, number)
	}
	sort.Ints(refs)
	return refs
}

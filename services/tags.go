package services

import (
	"sort"
	"strings"

	"discord-github-bridge/models"
)

// MaxThreadTags は Discord がスレッドに付けられるタグの上限
const MaxThreadTags = 5

// MatchTags は Issue のラベル名に一致するフォーラムタグIDを返す（大文字小文字は区別しない）
// フォーラムのタグ順に最大 MaxThreadTags 件まで採用し、ID順にソートして返す
func MatchTags(labels []string, catalogue []models.ForumTag) []string {
	wanted := make(map[string]bool, len(labels))
	for _, label := range labels {
		wanted[strings.ToLower(strings.TrimSpace(label))] = true
	}

	ids := make([]string, 0, MaxThreadTags)
	for _, tag := range catalogue {
		if len(ids) >= MaxThreadTags {
			break
		}
		if wanted[strings.ToLower(tag.Name)] {
			ids = append(ids, tag.ID)
		}
	}

	sort.Strings(ids)
	return ids
}

// SameTagSet は順序を無視してタグIDの集合が等しいか比較する
func SameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// TagNames はスレッドに付いたタグIDをタグ名に変換する（カタログにないIDは無視）
func TagNames(appliedIDs []string, catalogue []models.ForumTag) []string {
	byID := make(map[string]string, len(catalogue))
	for _, tag := range catalogue {
		byID[tag.ID] = tag.Name
	}

	names := make([]string, 0, len(appliedIDs))
	for _, id := range appliedIDs {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		}
	}
	return names
}

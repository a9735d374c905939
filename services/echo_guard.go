package services

import (
	"strings"
	"sync"
	"time"
)

// EchoMarker はブリッジ自身が書いた本文の末尾に付ける不可視のマーカー
const EchoMarker = "<!-- discord-bridge -->"

// DefaultBotActionWindow はアーカイブ等の操作を自分の操作として抑制する時間
const DefaultBotActionWindow = 10 * time.Second

func AddMarker(body string) string {
	return body + "\n" + EchoMarker
}

func HasMarker(body string) bool {
	return strings.Contains(body, EchoMarker)
}

// BotActionGuard はブリッジが行ったスレッドの構造変更（アーカイブ、名前変更）を記録し、
// その結果として届く threadUpdate イベントを一度だけ抑制する。
// 同じスレッドに対する変更が窓の中で二つ重なると区別できない。
type BotActionGuard struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	entries map[string]time.Time // threadID -> 期限
}

func NewBotActionGuard(window time.Duration, now func() time.Time) *BotActionGuard {
	if window <= 0 {
		window = DefaultBotActionWindow
	}
	if now == nil {
		now = time.Now
	}
	return &BotActionGuard{
		window:  window,
		now:     now,
		entries: make(map[string]time.Time),
	}
}

func (g *BotActionGuard) MarkBotAction(threadID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	// 期限切れのエントリを掃除
	for id, expiresAt := range g.entries {
		if !now.Before(expiresAt) {
			delete(g.entries, id)
		}
	}
	g.entries[threadID] = now.Add(g.window)
}

// IsBotAction はエントリを消費し、期限内だったかを返す
func (g *BotActionGuard) IsBotAction(threadID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	expiresAt, ok := g.entries[threadID]
	if !ok {
		return false
	}
	delete(g.entries, threadID)
	return g.now().Before(expiresAt)
}

// Pending は未消費かつ期限内のエントリ数
func (g *BotActionGuard) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	count := 0
	for _, expiresAt := range g.entries {
		if now.Before(expiresAt) {
			count++
		}
	}
	return count
}

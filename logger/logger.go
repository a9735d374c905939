package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup はプロセス全体の slog デフォルトロガーを設定する
// 開発環境ではテキスト形式（debug）、それ以外では JSON 形式（info）
func Setup(env string) {
	slog.SetDefault(New(os.Stdout, env))
}

func New(w io.Writer, env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	if env == "development" {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

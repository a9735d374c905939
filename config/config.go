package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env             string
	WebhookPort     string
	DatabasePath    string
	BotActionWindow time.Duration
	CleanupInterval time.Duration
	Discord         DiscordConfig
	GitHub          GitHubConfig
}

type DiscordConfig struct {
	Token          string
	GuildID        string
	ForumChannelID string
}

type GitHubConfig struct {
	Token          string // 個人トークン（App を使わない場合）
	AppID          int64
	InstallationID int64
	PrivateKey     []byte // PEM
	WebhookSecret  string
	Owner          string
	Repo           string
	Timeout        time.Duration
}

// UsesApp は GitHub App の認証情報が揃っているか
func (c GitHubConfig) UsesApp() bool {
	return c.AppID != 0 && c.InstallationID != 0 && len(c.PrivateKey) > 0
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load は .env と環境変数から設定を読み込む
// 必須項目が欠けている場合は欠けている名前をまとめてエラーにする
func Load() (Config, error) {
	// .env がなくてもエラーにしない
	_ = godotenv.Load()

	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		Env:             getEnv("APP_ENV", "development"),
		WebhookPort:     getEnv("WEBHOOK_PORT", "3000"),
		DatabasePath:    DatabasePath(),
		BotActionWindow: getEnvDuration("BOT_ACTION_WINDOW", 10*time.Second),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", time.Hour),
		Discord: DiscordConfig{
			Token:          required("DISCORD_TOKEN"),
			GuildID:        required("DISCORD_GUILD_ID"),
			ForumChannelID: required("DISCORD_FORUM_CHANNEL_ID"),
		},
		GitHub: GitHubConfig{
			Token:         os.Getenv("GITHUB_TOKEN"),
			WebhookSecret: required("GITHUB_WEBHOOK_SECRET"),
			Owner:         required("GITHUB_OWNER"),
			Repo:          required("GITHUB_REPO"),
			Timeout:       getEnvDuration("GITHUB_HTTP_TIMEOUT", 15*time.Second),
		},
	}

	appID := os.Getenv("GITHUB_APP_ID")
	if appID != "" || cfg.GitHub.Token == "" {
		id, err := strconv.ParseInt(required("GITHUB_APP_ID"), 10, 64)
		if appID != "" && err != nil {
			return Config{}, fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
		}
		cfg.GitHub.AppID = id

		installationID, err := strconv.ParseInt(required("GITHUB_APP_INSTALLATION_ID"), 10, 64)
		if os.Getenv("GITHUB_APP_INSTALLATION_ID") != "" && err != nil {
			return Config{}, fmt.Errorf("invalid GITHUB_APP_INSTALLATION_ID: %w", err)
		}
		cfg.GitHub.InstallationID = installationID

		if encoded := required("GITHUB_APP_PRIVATE_KEY"); encoded != "" {
			key, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return Config{}, fmt.Errorf("GITHUB_APP_PRIVATE_KEY must be base64 encoded: %w", err)
			}
			cfg.GitHub.PrivateKey = key
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// DatabasePath はマッピング DB のパス。管理用のサブコマンドは他の設定なしでこれだけ使う
func DatabasePath() string {
	_ = godotenv.Load()
	return getEnv("DATABASE_PATH", "data/bridge.db")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

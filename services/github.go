package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v71/github"
	"golang.org/x/oauth2"

	"discord-github-bridge/config"
	"discord-github-bridge/models"
)

// NewGitHubHTTPClient は GitHub API 用の HTTP クライアントを作成する
// GitHub App の設定があればインストールトークン（自動更新）を、なければ個人トークンを使う
func NewGitHubHTTPClient(cfg config.GitHubConfig) (*http.Client, error) {
	if cfg.UsesApp() {
		transport, err := ghinstallation.New(http.DefaultTransport, cfg.AppID, cfg.InstallationID, cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create github app transport: %w", err)
		}
		slog.Info("using github app installation auth", "app_id", cfg.AppID, "installation_id", cfg.InstallationID)
		return &http.Client{Transport: transport, Timeout: cfg.Timeout}, nil
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	client := oauth2.NewClient(context.Background(), ts)
	client.Timeout = cfg.Timeout
	return client, nil
}

// GitHubTracker は 1 つのリポジトリの Issue を操作する
type GitHubTracker struct {
	client *github.Client
	owner  string
	repo   string
}

func NewGitHubTracker(client *github.Client, owner, repo string) *GitHubTracker {
	return &GitHubTracker{client: client, owner: owner, repo: repo}
}

func (t *GitHubTracker) CreateIssue(ctx context.Context, title, body string, labels []string) (*models.Issue, error) {
	req := &github.IssueRequest{
		Title: github.Ptr(title),
		Body:  github.Ptr(body),
	}
	if len(labels) > 0 {
		req.Labels = &labels
	}

	issue, _, err := t.client.Issues.Create(ctx, t.owner, t.repo, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}
	return issueFromGitHub(issue), nil
}

// CloseIssue はコメントがあれば先に投稿してから Issue を閉じる
func (t *GitHubTracker) CloseIssue(ctx context.Context, number int, comment string) error {
	if comment != "" {
		if _, err := t.AddComment(ctx, number, comment); err != nil {
			return err
		}
	}

	_, _, err := t.client.Issues.Edit(ctx, t.owner, t.repo, number, &github.IssueRequest{
		State: github.Ptr("closed"),
	})
	if err != nil {
		return fmt.Errorf("failed to close issue #%d: %w", number, err)
	}
	return nil
}

func (t *GitHubTracker) AddComment(ctx context.Context, number int, body string) (int64, error) {
	comment, _, err := t.client.Issues.CreateComment(ctx, t.owner, t.repo, number, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add comment to issue #%d: %w", number, err)
	}
	return comment.GetID(), nil
}

func (t *GitHubTracker) EditComment(ctx context.Context, commentID int64, body string) error {
	_, _, err := t.client.Issues.EditComment(ctx, t.owner, t.repo, commentID, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("failed to edit comment %d: %w", commentID, err)
	}
	return nil
}

func (t *GitHubTracker) DeleteComment(ctx context.Context, commentID int64) error {
	_, err := t.client.Issues.DeleteComment(ctx, t.owner, t.repo, commentID)
	if err != nil {
		// 既に削除されている場合は404になるが、それは無視する
		var errResp *github.ErrorResponse
		if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound {
			slog.Info("comment already deleted", "comment_id", commentID)
			return nil
		}
		return fmt.Errorf("failed to delete comment %d: %w", commentID, err)
	}
	return nil
}

func (t *GitHubTracker) GetIssue(ctx context.Context, number int) (*models.Issue, error) {
	issue, _, err := t.client.Issues.Get(ctx, t.owner, t.repo, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue #%d: %w", number, err)
	}
	return issueFromGitHub(issue), nil
}

func (t *GitHubTracker) UpdateIssueTitle(ctx context.Context, number int, title string) error {
	_, _, err := t.client.Issues.Edit(ctx, t.owner, t.repo, number, &github.IssueRequest{
		Title: github.Ptr(title),
	})
	if err != nil {
		return fmt.Errorf("failed to update title of issue #%d: %w", number, err)
	}
	return nil
}

func (t *GitHubTracker) UpdateIssueBody(ctx context.Context, number int, body string) error {
	_, _, err := t.client.Issues.Edit(ctx, t.owner, t.repo, number, &github.IssueRequest{
		Body: github.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("failed to update body of issue #%d: %w", number, err)
	}
	return nil
}

func issueFromGitHub(issue *github.Issue) *models.Issue {
	return &models.Issue{
		Number:  issue.GetNumber(),
		Title:   issue.GetTitle(),
		State:   issue.GetState(),
		HTMLURL: issue.GetHTMLURL(),
		Labels:  LabelNames(issue.Labels),
	}
}

// LabelNames は go-github のラベル一覧から名前だけを取り出す
func LabelNames(labels []*github.Label) []string {
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		if label.GetName() != "" {
			names = append(names, label.GetName())
		}
	}
	return names
}

// GetDisplayName は GitHub User の Login を返す（nil なら空文字）
func GetDisplayName(user *github.User) string {
	if user == nil {
		return ""
	}
	return user.GetLogin()
}

// githubProfileURL は埋め込みの作者リンク
func githubProfileURL(login string) string {
	if login == "" {
		return ""
	}
	return "https://github.com/" + login
}

// CommentEmbed は GitHub コメントを Discord の埋め込みに変換する
func CommentEmbed(comment *github.IssueComment, fallbackAuthor string, color int) models.Embed {
	author := fallbackAuthor
	avatar := ""
	if comment.User != nil {
		author = comment.User.GetLogin()
		avatar = comment.User.GetAvatarURL()
	}

	var ts time.Time
	if comment.CreatedAt != nil {
		ts = comment.CreatedAt.Time
	}

	return models.Embed{
		Author: models.EmbedAuthor{
			Name:    author,
			URL:     githubProfileURL(author),
			IconURL: avatar,
		},
		Description: Truncate(comment.GetBody(), EmbedDescriptionLimit),
		URL:         comment.GetHTMLURL(),
		Timestamp:   ts,
		Color:       color,
	}
}

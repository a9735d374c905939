package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-github-bridge/models"
)

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// postWebhook は署名付きの webhook リクエストをルーターに送る
func postWebhook(t *testing.T, b *Bridge, event string, payload interface{}) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req, _ := http.NewRequest("POST", "/api/webhooks/github", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	req.Header.Set("X-Hub-Signature-256", sign(body))

	w := httptest.NewRecorder()
	SetupRouter(b).ServeHTTP(w, req)
	return w
}

func issuePayload(action string, extra map[string]interface{}) map[string]interface{} {
	payload := map[string]interface{}{
		"action": action,
		"issue": map[string]interface{}{
			"number":   42,
			"title":    "Login broken",
			"html_url": "https://github.com/acme/app/issues/42",
			"state":    "open",
		},
		"sender": map[string]interface{}{"login": "octocat"},
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

func TestWebhook_InvalidSignature(t *testing.T) {
	env := setupBridge(t)
	gin.SetMode(gin.TestMode)

	body := []byte(`{"action":"closed"}`)
	req, _ := http.NewRequest("POST", "/api/webhooks/github", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "issues")
	req.Header.Set("X-Hub-Signature-256", "sha256=0000")

	w := httptest.NewRecorder()
	SetupRouter(env.bridge).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, env.log.calls)
}

func TestWebhook_Ping(t *testing.T) {
	env := setupBridge(t)

	w := postWebhook(t, env.bridge, "ping", map[string]interface{}{"zen": "Keep it logically awesome."})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.log.calls)
}

func TestHealth(t *testing.T) {
	env := setupBridge(t)
	gin.SetMode(gin.TestMode)

	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	SetupRouter(env.bridge).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestIssueClosed_NotifiesThenArchives(t *testing.T) {
	env := setupBridge(t)
	env.forumThread("T1", "Login broken")
	env.link(t, "T1", 42)

	w := postWebhook(t, env.bridge, "issues", issuePayload("closed", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{
		"chat.SendMessage T1 Issue [#42](https://github.com/acme/app/issues/42) closed by **octocat**",
		"chat.SetThreadArchived T1 true",
	}, env.log.calls)
	// アーカイブによる threadUpdate は抑制される
	assert.True(t, env.bridge.Guard.IsBotAction("T1"))
}

func TestIssueReopened_UnarchivesThenNotifies(t *testing.T) {
	env := setupBridge(t)
	thread := env.forumThread("T1", "Login broken")
	thread.Archived = true
	env.link(t, "T1", 42)

	postWebhook(t, env.bridge, "issues", issuePayload("reopened", nil))

	assert.Equal(t, []string{
		"chat.SetThreadArchived T1 false",
		"chat.SendMessage T1 Issue [#42](https://github.com/acme/app/issues/42) reopened by **octocat**",
	}, env.log.calls)
}

func TestIssueEdited_RenamesThread(t *testing.T) {
	env := setupBridge(t)
	env.forumThread("T1", "Old title")
	env.link(t, "T1", 42)

	postWebhook(t, env.bridge, "issues", issuePayload("edited", nil))

	assert.Equal(t, []string{"chat.SetThreadName T1 Login broken"}, env.log.calls)
	assert.Equal(t, 0, env.bridge.Guard.Pending())
}

func TestIssueEdited_SameTitleNoop(t *testing.T) {
	env := setupBridge(t)
	env.forumThread("T1", "Login broken")
	env.link(t, "T1", 42)

	postWebhook(t, env.bridge, "issues", issuePayload("edited", nil))

	assert.Empty(t, env.log.calls)
}

func TestIssueLabeled_ReconcilesTags(t *testing.T) {
	env := setupBridge(t)
	env.forumThread("T1", "Login broken")
	env.link(t, "T1", 42)
	env.chat.tags = []models.ForumTag{{ID: "1", Name: "Bug"}, {ID: "2", Name: "feature"}, {ID: "3", Name: "p1"}}

	payload := issuePayload("labeled", map[string]interface{}{"label": map[string]interface{}{"name": "P1"}})
	payload["issue"].(map[string]interface{})["labels"] = []map[string]interface{}{{"name": "bug"}, {"name": "P1"}}

	postWebhook(t, env.bridge, "issues", payload)

	assert.Equal(t, []string{
		"chat.SendMessage T1 Label `P1` added by **octocat**",
		"chat.SetThreadTags T1 [1 3]",
	}, env.log.calls)
}

func TestIssueLabeled_WithoutLabelStillReconciles(t *testing.T) {
	env := setupBridge(t)
	env.forumThread("T1", "Login broken")
	env.link(t, "T1", 42)
	env.chat.tags = []models.ForumTag{{ID: "1", Name: "bug"}}

	payload := issuePayload("labeled", nil)
	payload["issue"].(map[string]interface{})["labels"] = []map[string]interface{}{{"name": "bug"}}

	postWebhook(t, env.bridge, "issues", payload)

	assert.Equal(t, []string{"chat.SetThreadTags T1 [1]"}, env.log.calls)
}

func TestIssueUnlabeled_TagsAlreadyMatch(t *testing.T) {
	env := setupBridge(t)
	thread := env.forumThread("T1", "Login broken")
	thread.AppliedTags = []string{"1"}
	env.link(t, "T1", 42)
	env.chat.tags = []models.ForumTag{{ID: "1", Name: "bug"}, {ID: "3", Name: "p1"}}

	payload := issuePayload("unlabeled", map[string]interface{}{"label": map[string]interface{}{"name": "P1"}})
	payload["issue"].(map[string]interface{})["labels"] = []map[string]interface{}{{"name": "bug"}}

	postWebhook(t, env.bridge, "issues", payload)

	assert.Equal(t, []string{"chat.SendMessage T1 Label `P1` removed by **octocat**"}, env.log.calls)
}

func TestIssueLabeled_ArchivedThreadSkipsTags(t *testing.T) {
	env := setupBridge(t)
	thread := env.forumThread("T1", "Login broken")
	thread.Archived = true
	env.link(t, "T1", 42)
	env.chat.tags = []models.ForumTag{{ID: "1", Name: "bug"}}

	payload := issuePayload("labeled", map[string]interface{}{"label": map[string]interface{}{"name": "bug"}})
	payload["issue"].(map[string]interface{})["labels"] = []map[string]interface{}{{"name": "bug"}}

	postWebhook(t, env.bridge, "issues", payload)

	assert.Equal(t, []string{"chat.SendMessage T1 Label `bug` added by **octocat**"}, env.log.calls)
}

func TestIssueAssignedAndMilestoned(t *testing.T) {
	env := setupBridge(t)
	env.forumThread("T1", "Login broken")
	env.link(t, "T1", 42)

	postWebhook(t, env.bridge, "issues", issuePayload("assigned", map[string]interface{}{
		"assignee": map[string]interface{}{"login": "hubot"},
	}))
	milestoned := issuePayload("milestoned", nil)
	milestoned["issue"].(map[string]interface{})["milestone"] = map[string]interface{}{"title": "v1.0"}
	postWebhook(t, env.bridge, "issues", milestoned)

	assert.Equal(t, []string{
		"chat.SendMessage T1 Issue assigned to **hubot** by **octocat**",
		"chat.SendMessage T1 Milestone `v1.0` set by **octocat**",
	}, env.log.calls)
}

func TestIssueEvent_UnlinkedIssueIgnored(t *testing.T) {
	env := setupBridge(t)

	w := postWebhook(t, env.bridge, "issues", issuePayload("closed", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.log.calls)
}

func commentPayload(action, body string) map[string]interface{} {
	return map[string]interface{}{
		"action": action,
		"issue":  map[string]interface{}{"number": 42},
		"comment": map[string]interface{}{
			"id":       555,
			"body":     body,
			"html_url": "https://github.com/acme/app/issues/42#issuecomment-555",
			"user":     map[string]interface{}{"login": "octocat", "avatar_url": "https://avatars.example/octocat"},
		},
		"sender": map[string]interface{}{"login": "octocat"},
	}
}

func TestIssueComment_CreatedSendsEmbed(t *testing.T) {
	env := setupBridge(t)
	env.forumThread("T1", "Login broken")
	env.link(t, "T1", 42)

	postWebhook(t, env.bridge, "issue_comment", commentPayload("created", "Looking into it"))

	assert.Equal(t, []string{"chat.SendEmbed T1 Looking into it"}, env.log.calls)

	mapping, found, err := env.store.GetMessageByComment(context.Background(), 555)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "BOT1", mapping.DiscordMessageID)
	assert.Equal(t, "T1", mapping.ThreadID)
}

func TestIssueComment_MarkedBodyIgnored(t *testing.T) {
	env := setupBridge(t)
	env.forumThread("T1", "Login broken")
	env.link(t, "T1", 42)

	postWebhook(t, env.bridge, "issue_comment",
		commentPayload("created", "**alice** commented:\n\nsame here\n<!-- discord-bridge -->"))

	assert.Empty(t, env.log.calls)
	_, found, _ := env.store.GetMessageByComment(context.Background(), 555)
	assert.False(t, found)
}

func TestIssueComment_EditedAndDeleted(t *testing.T) {
	env := setupBridge(t)
	ctx := context.Background()
	env.forumThread("T1", "Login broken")
	env.link(t, "T1", 42)
	require.NoError(t, env.store.LinkMessageToComment(ctx, "BOT9", 555, "T1", 42))

	postWebhook(t, env.bridge, "issue_comment", commentPayload("edited", "Fixed typo"))
	postWebhook(t, env.bridge, "issue_comment", commentPayload("deleted", "Fixed typo"))

	assert.Equal(t, []string{
		"chat.EditEmbed T1 BOT9 Fixed typo",
		"chat.DeleteMessage T1 BOT9",
	}, env.log.calls)
	_, found, _ := env.store.GetMessageByComment(ctx, 555)
	assert.False(t, found)
}

func prPayload(action string, merged bool, body string) map[string]interface{} {
	return map[string]interface{}{
		"action": action,
		"number": 99,
		"pull_request": map[string]interface{}{
			"number":   99,
			"title":    "Fix login",
			"body":     body,
			"merged":   merged,
			"html_url": "https://github.com/acme/app/pull/99",
		},
		"sender": map[string]interface{}{"login": "octocat"},
	}
}

func TestPullRequestOpened_NotifiesEveryReferencedThread(t *testing.T) {
	env := setupBridge(t)
	env.link(t, "T7", 7)
	env.link(t, "T12", 12)
	// 1 つ目のスレッドへの送信が失敗しても 2 つ目には送る
	env.chat.failSend["T7"] = true

	postWebhook(t, env.bridge, "pull_request", prPayload("opened", false, "Fixes #12 and closes #7, Resolves #12"))

	msg := "PR [#99 Fix login](https://github.com/acme/app/pull/99) opened by **octocat** references this issue"
	assert.Equal(t, []string{
		"chat.SendMessage T7 " + msg,
		"chat.SendMessage T12 " + msg,
	}, env.log.calls)
}

func TestPullRequestClosed(t *testing.T) {
	tests := []struct {
		name   string
		merged bool
		want   string
	}{
		{name: "マージ", merged: true, want: "chat.SendMessage T7 PR [#99 Fix login](https://github.com/acme/app/pull/99) merged by **octocat**"},
		{name: "クローズ", merged: false, want: "chat.SendMessage T7 PR [#99 Fix login](https://github.com/acme/app/pull/99) closed by **octocat**"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupBridge(t)
			env.link(t, "T7", 7)

			postWebhook(t, env.bridge, "pull_request", prPayload("closed", tt.merged, "fixes #7"))

			assert.Equal(t, []string{tt.want}, env.log.calls)
		})
	}
}

func TestPullRequest_IgnoredActions(t *testing.T) {
	env := setupBridge(t)
	env.link(t, "T7", 7)

	postWebhook(t, env.bridge, "pull_request", prPayload("synchronize", false, "fixes #7"))
	postWebhook(t, env.bridge, "pull_request", prPayload("opened", false, "no references"))

	assert.Empty(t, env.log.calls)
}

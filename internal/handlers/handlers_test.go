package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fisk-sga/campus-feedback/backend/internal/access"
	"github.com/fisk-sga/campus-feedback/backend/internal/auth"
	"github.com/fisk-sga/campus-feedback/backend/internal/config"
	"github.com/fisk-sga/campus-feedback/backend/internal/counter"
	"github.com/fisk-sga/campus-feedback/backend/internal/feedback"
	"github.com/fisk-sga/campus-feedback/backend/internal/handlers"
	"github.com/fisk-sga/campus-feedback/backend/internal/ledger"
	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/notify"
	"github.com/fisk-sga/campus-feedback/backend/internal/server"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type healthy struct{}

func (healthy) Health() map[string]string { return map[string]string{"status": "up"} }

type linkMailer struct {
	mu   sync.Mutex
	last string
}

func (m *linkMailer) SendMagicLink(_ context.Context, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = link
	return nil
}

type api struct {
	t      *testing.T
	router *gin.Engine
	store  *memory.Store
	mailer *linkMailer
	tokens map[string]string
}

func newAPI(t *testing.T) *api {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC))
	store := memory.New()

	cfg := &config.Config{
		Port:               "8080",
		AppEnv:             "test",
		CORSOrigins:        "*",
		VotesPerMinute:     100,
		CommentsPerMinute:  3,
		AllowedEmailDomain: "my.fisk.edu",
	}

	issuer := access.NewIssuer("handlers-test-secret-0123", time.Hour, clock)
	l := ledger.New(clock)
	n := notify.New(clock, nil)
	mailer := &linkMailer{}
	h := handlers.NewHandler(
		feedback.New(store, l, n, clock, nil),
		counter.New(store, l, n, clock),
		auth.New(store, issuer, mailer, clock, auth.Config{
			Domain:    "my.fisk.edu",
			PublicURL: "http://localhost:5173",
			TTL:       15 * time.Minute,
		}),
	)
	srv := server.New(cfg, healthy{}, h, access.NewResolver(issuer, store), clock, nil)

	a := &api{t: t, router: srv.RegisterRoutes(), store: store, mailer: mailer, tokens: map[string]string{}}
	for _, u := range []models.User{
		{ID: "alice", Email: "alice@my.fisk.edu"},
		{ID: "bob", Email: "bob@my.fisk.edu"},
		{ID: "sga", Email: "sga@my.fisk.edu", IsSGAAdmin: true},
	} {
		require.NoError(t, store.InsertUser(ctx, &u))
		token, _, err := issuer.Issue(u.ID)
		require.NoError(t, err)
		a.tokens[u.ID] = token
	}
	return a
}

func (a *api) do(method, path, as string, body any) (int, map[string]any) {
	a.t.Helper()
	code, raw := a.raw(method, path, as, body)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(a.t, json.Unmarshal(raw, &out))
	}
	return code, out
}

func (a *api) list(path, as string) []map[string]any {
	a.t.Helper()
	code, raw := a.raw(http.MethodGet, path, as, nil)
	require.Equal(a.t, http.StatusOK, code, string(raw))
	var out []map[string]any
	require.NoError(a.t, json.Unmarshal(raw, &out))
	return out
}

func (a *api) raw(method, path, as string, body any) (int, []byte) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+a.tokens[as])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w.Code, w.Body.Bytes()
}

func (a *api) createPost(as, title string, anonymous bool) string {
	a.t.Helper()
	code, body := a.do(http.MethodPost, "/api/posts", as, gin.H{
		"title":        title,
		"content":      "details for " + title,
		"tags":         []string{"housing"},
		"is_anonymous": anonymous,
	})
	require.Equal(a.t, http.StatusCreated, code, body)
	return body["id"].(string)
}

func TestCreatePost(t *testing.T) {
	a := newAPI(t)

	t.Run("requires a token", func(t *testing.T) {
		code, body := a.do(http.MethodPost, "/api/posts", "", gin.H{"title": "x", "content": "y", "tags": []string{"a"}})
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "unauthorized", body["type"])
	})

	t.Run("rejects a post without tags", func(t *testing.T) {
		code, body := a.do(http.MethodPost, "/api/posts", "alice", gin.H{"title": "x", "content": "y"})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "validation", body["type"])
	})

	t.Run("creates a pending post", func(t *testing.T) {
		code, body := a.do(http.MethodPost, "/api/posts", "alice", gin.H{
			"title":   "More study rooms",
			"content": "The library fills up by noon",
			"tags":    []string{"Academics"},
		})
		require.Equal(t, http.StatusCreated, code)
		assert.Equal(t, "pending", body["status"])
		assert.Equal(t, "alice@my.fisk.edu", body["author_email"])
		assert.Equal(t, []any{"Academics"}, body["tags"])
		assert.EqualValues(t, 0, body["upvote_count"])
	})
}

func TestVoting(t *testing.T) {
	a := newAPI(t)
	postID := a.createPost("alice", "Later dining hours", false)
	path := "/api/posts/" + postID + "/vote"

	code, body := a.do(http.MethodPost, path, "bob", nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, false, body["already_voted"])
	assert.EqualValues(t, 1, body["upvote_count"])

	code, body = a.do(http.MethodPost, path, "bob", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["already_voted"])
	assert.EqualValues(t, 1, body["upvote_count"])

	posts := a.list("/api/posts", "bob")
	require.Len(t, posts, 1)
	assert.Equal(t, true, posts[0]["has_upvoted"])
	assert.Equal(t, false, a.list("/api/posts", "")[0]["has_upvoted"])

	code, body = a.do(http.MethodDelete, path, "bob", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["removed"])
	assert.EqualValues(t, 0, body["upvote_count"])

	code, body = a.do(http.MethodDelete, path, "bob", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["removed"])
	assert.EqualValues(t, 0, body["upvote_count"])

	code, body = a.do(http.MethodPost, "/api/posts/missing/vote", "bob", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["type"])

	code, _ = a.do(http.MethodPost, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestListPostsQuery(t *testing.T) {
	a := newAPI(t)
	a.createPost("alice", "first", false)
	second := a.createPost("bob", "second", false)
	code, _ := a.do(http.MethodPost, "/api/posts/"+second+"/vote", "alice", nil)
	require.Equal(t, http.StatusCreated, code)

	top := a.list("/api/posts?sortBy=upvotes&limit=1", "")
	require.Len(t, top, 1)
	assert.Equal(t, "second", top[0]["title"])

	code, body := a.do(http.MethodGet, "/api/posts?sortBy=random", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation", body["type"])

	code, _ = a.do(http.MethodGet, "/api/posts?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	assert.Empty(t, a.list("/api/posts?tags=parking", ""))
	assert.Len(t, a.list("/api/posts?tags=parking,housing", ""), 0, "tags filter requires every tag")
	assert.Len(t, a.list("/api/posts?status=pending", ""), 2)
}

func TestAnonymousPostHidesAuthor(t *testing.T) {
	a := newAPI(t)
	postID := a.createPost("alice", "Anonymous concern", true)

	code, body := a.do(http.MethodGet, "/api/posts/"+postID, "bob", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, body, "author_email")
	assert.Equal(t, "", body["user_id"])

	mine := a.list("/api/users/me/posts", "alice")
	require.Len(t, mine, 1)
	assert.Equal(t, "alice", mine[0]["user_id"])
}

func TestCommentsAndNotifications(t *testing.T) {
	a := newAPI(t)
	postID := a.createPost("alice", "Fix the shuttle schedule", false)
	commentsPath := "/api/posts/" + postID + "/comments"

	code, body := a.do(http.MethodPost, commentsPath, "bob", gin.H{"content": "Agreed, it is always late"})
	require.Equal(t, http.StatusCreated, code, body)
	assert.EqualValues(t, 1, body["comment_count"])
	comment := body["comment"].(map[string]any)
	assert.Equal(t, "bob@my.fisk.edu", comment["author_email"])

	code, body = a.do(http.MethodPost, "/api/comments/"+comment["id"].(string)+"/vote", "alice", nil)
	require.Equal(t, http.StatusCreated, code)
	assert.EqualValues(t, 1, body["upvote_count"])

	comments := a.list(commentsPath, "alice")
	require.Len(t, comments, 1)
	assert.Equal(t, true, comments[0]["has_upvoted"])

	code, body = a.do(http.MethodGet, "/api/notifications", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["unread_count"])
	notes := body["notifications"].([]any)
	require.Len(t, notes, 1)
	note := notes[0].(map[string]any)
	assert.Equal(t, "comment", note["type"])
	assert.Equal(t, "New Comment", note["title"])

	code, body = a.do(http.MethodGet, "/api/notifications/unread-count", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["unread_count"])

	code, _ = a.do(http.MethodGet, "/api/notifications/unread-count", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.do(http.MethodPatch, "/api/notifications/"+note["id"].(string)+"/read", "bob", nil)
	assert.Equal(t, http.StatusNotFound, code, "cannot mark another user's notification")

	code, _ = a.do(http.MethodPatch, "/api/notifications/"+note["id"].(string)+"/read", "alice", nil)
	require.Equal(t, http.StatusOK, code)

	code, body = a.do(http.MethodGet, "/api/notifications", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["unread_count"])

	code, body = a.do(http.MethodPost, "/api/notifications/mark-all-read", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["updated"])

	code, body = a.do(http.MethodPost, commentsPath, "bob", gin.H{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation", body["type"])
}

func TestCommentRateLimit(t *testing.T) {
	a := newAPI(t)
	postID := a.createPost("alice", "Rate limited", false)
	path := "/api/posts/" + postID + "/comments"

	for i := 0; i < 3; i++ {
		code, _ := a.do(http.MethodPost, path, "bob", gin.H{"content": "again"})
		require.Equal(t, http.StatusCreated, code)
	}
	code, body := a.do(http.MethodPost, path, "bob", gin.H{"content": "again"})
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limited", body["type"])
	assert.Equal(t, true, body["retryable"])

	code, _ = a.do(http.MethodPost, path, "alice", gin.H{"content": "mine"})
	assert.Equal(t, http.StatusCreated, code, "limits are per actor")
}

func TestUpdateStatus(t *testing.T) {
	a := newAPI(t)
	postID := a.createPost("alice", "Wifi in dorms", false)
	path := "/api/posts/" + postID + "/status"

	code, _ := a.do(http.MethodPatch, path, "alice", gin.H{"status": "completed"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodPatch, path, "sga", gin.H{"status": "done"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := a.do(http.MethodPatch, path, "sga", gin.H{"status": "in_progress", "sga_response": "IT is on it"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["notification_sent"])
	post := body["post"].(map[string]any)
	assert.Equal(t, "in_progress", post["status"])
	assert.Equal(t, "IT is on it", post["sga_response"])

	code, body = a.do(http.MethodGet, "/api/notifications", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	note := body["notifications"].([]any)[0].(map[string]any)
	assert.Equal(t, "SGA updated your post status to: in progress", note["message"])

	code, _ = a.do(http.MethodPatch, "/api/posts/missing/status", "sga", gin.H{"status": "completed"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestReconcile(t *testing.T) {
	a := newAPI(t)
	postID := a.createPost("alice", "Recount me", false)
	code, _ := a.do(http.MethodPost, "/api/posts/"+postID+"/vote", "bob", nil)
	require.Equal(t, http.StatusCreated, code)

	code, _ = a.do(http.MethodPost, "/api/admin/posts/"+postID+"/reconcile", "bob", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body := a.do(http.MethodPost, "/api/admin/posts/"+postID+"/reconcile", "sga", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["upvote_count"])
	assert.EqualValues(t, 0, body["comment_count"])
}

func TestMagicLinkSignIn(t *testing.T) {
	a := newAPI(t)

	code, body := a.do(http.MethodPost, "/api/auth/magic-link", "", gin.H{"email": "carol@gmail.com"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation", body["type"])

	code, _ = a.do(http.MethodPost, "/api/auth/magic-link", "", gin.H{"email": "Carol@my.fisk.edu"})
	require.Equal(t, http.StatusAccepted, code)

	link, err := url.Parse(a.mailer.last)
	require.NoError(t, err)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)

	code, body = a.do(http.MethodPost, "/api/auth/verify", "", gin.H{"token": token})
	require.Equal(t, http.StatusOK, code)
	user := body["user"].(map[string]any)
	assert.Equal(t, "carol@my.fisk.edu", user["email"])
	a.tokens["carol"] = body["token"].(string)

	code, body = a.do(http.MethodGet, "/api/auth/me", "carol", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "carol@my.fisk.edu", body["email"])

	code, _ = a.do(http.MethodPost, "/api/auth/verify", "", gin.H{"token": token})
	assert.Equal(t, http.StatusUnauthorized, code, "links are single use")
}

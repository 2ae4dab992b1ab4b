package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"warbler/internal/config"
	"warbler/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:            "test",
		Port:           "0",
		SecretKey:      "test-secret-key-that-is-long-enough-for-hs256",
		DBDriver:       "sqlite",
		AllowedOrigins: "http://localhost:5000",
		SessionTTL:     time.Hour,
		CSRFEnabled:    true,
		CSRFTimeLimit:  time.Hour,
		BcryptCost:     4,
		FeedLimit:      100,
	}
}

type testEnv struct {
	t      *testing.T
	db     *gorm.DB
	server *Server
	app    *fiber.App
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithRedis(t, nil)
}

func newTestEnvWithRedis(t *testing.T, rdb *redis.Client) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	srv, err := NewServerWithDeps(testConfig(), db, rdb)
	require.NoError(t, err)
	return &testEnv{t: t, db: db, server: srv, app: srv.NewApp()}
}

// browser carries the session cookie between requests like a real client.
type browser struct {
	env    *testEnv
	cookie *http.Cookie
}

func (e *testEnv) browser() *browser {
	return &browser{env: e}
}

func (b *browser) do(method, path string, form url.Values) *http.Response {
	b.env.t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	}
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}

	resp, err := b.env.app.Test(req, -1)
	require.NoError(b.env.t, err)

	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName {
			b.cookie = c
		}
	}
	return resp
}

func (b *browser) get(path string) *http.Response {
	return b.do(fiber.MethodGet, path, nil)
}

func (b *browser) post(path string, form url.Values) *http.Response {
	if form == nil {
		form = url.Values{}
	}
	return b.do(fiber.MethodPost, path, form)
}

// page GETs path and decodes the page payload.
func (b *browser) page(path string) map[string]any {
	b.env.t.Helper()
	resp := b.get(path)
	return decodePage(b.env.t, resp)
}

// csrf fetches a fresh form token for the current session.
func (b *browser) csrf() string {
	b.env.t.Helper()
	token, _ := b.page("/signup")["csrf_token"].(string)
	require.NotEmpty(b.env.t, token)
	return token
}

// postCSRF posts form with a valid token added.
func (b *browser) postCSRF(path string, form url.Values) *http.Response {
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", b.csrf())
	return b.post(path, form)
}

func (b *browser) login(username string) {
	b.env.t.Helper()
	resp := b.postCSRF("/login", url.Values{
		"username": {username},
		"password": {testutil.TestPassword},
	})
	require.Equal(b.env.t, fiber.StatusFound, resp.StatusCode)
	// Drain the greeting.
	b.page("/")
}

func decodePage(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload), string(raw))
	return payload
}

func flashMessages(payload map[string]any) []string {
	list, _ := payload["flashes"].([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			msg, _ := m["message"].(string)
			out = append(out, msg)
		}
	}
	return out
}

func currentUsername(payload map[string]any) string {
	u, _ := payload["current_user"].(map[string]any)
	name, _ := u["username"].(string)
	return name
}

package server

import (
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"warbler/internal/cache"
	"warbler/internal/models"
	"warbler/internal/service"
	"warbler/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignup_CreatesUserAndLogsIn(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser()

	resp := b.postCSRF("/signup", url.Values{
		"username": {"alice"},
		"email":    {"alice@example.com"},
		"password": {"secret123"},
	})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))

	home := b.page("/")
	assert.Equal(t, tmplHome, home["template"])
	assert.Equal(t, "alice", currentUsername(home))

	var user models.User
	require.NoError(t, env.db.Where("username = ?", "alice").First(&user).Error)
	assert.NotEqual(t, "secret123", user.Password)
	assert.Equal(t, models.DefaultImageURL, user.ImageURL)

	// A fresh client can log in with the new credentials.
	other := env.browser()
	resp = other.postCSRF("/login", url.Values{"username": {"alice"}, "password": {"secret123"}})
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
}

func TestSignup_DuplicateUsernameRerendersForm(t *testing.T) {
	env := newTestEnv(t)
	existing := testutil.CreateUser(t, env.db, "alice")
	b := env.browser()

	resp := b.postCSRF("/signup", url.Values{
		"username": {"alice"},
		"email":    {"other@example.com"},
		"password": {"secret123"},
	})
	page := decodePage(t, resp)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, tmplSignup, page["template"])
	assert.Contains(t, flashMessages(page), "Username already taken")
	assert.Nil(t, page["current_user"])

	var stored models.User
	require.NoError(t, env.db.First(&stored, existing.ID).Error)
	assert.Equal(t, existing.Email, stored.Email)
	assert.Equal(t, int64(1), testutil.Count(t, env.db, &models.User{}, ""))
}

func TestSignup_InvalidFormShowsFieldErrors(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser()

	resp := b.postCSRF("/signup", url.Values{
		"username": {""},
		"email":    {"not-an-email"},
		"password": {"123"},
	})
	page := decodePage(t, resp)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	errs, _ := page["errors"].(map[string]any)
	assert.Contains(t, errs, "username")
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "password")
	form, _ := page["form"].(map[string]any)
	assert.NotContains(t, form, "password")
	assert.Equal(t, int64(0), testutil.Count(t, env.db, &models.User{}, ""))
}

func TestSignup_MissingCSRFRejected(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser()
	b.get("/signup")

	resp := b.post("/signup", url.Values{
		"username": {"alice"},
		"email":    {"alice@example.com"},
		"password": {"secret123"},
	})
	page := decodePage(t, resp)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	errs, _ := page["errors"].(map[string]any)
	assert.Contains(t, errs, "csrf_token")
	assert.Equal(t, int64(0), testutil.Count(t, env.db, &models.User{}, ""))
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreateUser(t, env.db, "alice")
	b := env.browser()

	resp := b.postCSRF("/login", url.Values{
		"username": {"alice"},
		"password": {testutil.TestPassword},
	})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))

	home := b.page("/")
	assert.Equal(t, tmplHome, home["template"])
	assert.Contains(t, flashMessages(home), "Hello, alice!")
}

func TestLogin_BadCredentialsStaysAnonymous(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreateUser(t, env.db, "alice")

	for _, tc := range []struct{ name, username, password string }{
		{"wrong password", "alice", "wrongpass"},
		{"short wrong password", "alice", "abc"},
		{"unknown user", "nobody", testutil.TestPassword},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := env.browser()
			resp := b.postCSRF("/login", url.Values{"username": {tc.username}, "password": {tc.password}})
			page := decodePage(t, resp)

			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.Equal(t, tmplLogin, page["template"])
			assert.Equal(t, []string{"Invalid credentials."}, flashMessages(page))
			assert.Empty(t, page["errors"])

			home := b.page("/")
			assert.Equal(t, tmplHomeAnon, home["template"])
			assert.Nil(t, home["current_user"])
		})
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreateUser(t, env.db, "alice")
	b := env.browser()
	b.login("alice")

	resp := b.postCSRF("/logout", nil)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))

	page := b.page("/")
	assert.Equal(t, tmplHomeAnon, page["template"])
	assert.Contains(t, flashMessages(page), "Successfully logged out!")
}

func TestLogout_Anonymous(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser()

	resp := b.postCSRF("/logout", nil)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))
	assert.Contains(t, flashMessages(b.page("/login")), "You need to be logged in to logout!")
}

func TestLoginRequired_RedirectsAnonymous(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser()

	for _, path := range []string{"/users", "/users/1", "/messages/new", "/users/profile"} {
		resp := b.get(path)
		assert.Equal(t, fiber.StatusFound, resp.StatusCode, path)
		assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation), path)
	}
	assert.Contains(t, flashMessages(b.page("/")), msgAccessUnauthorized)
}

func TestFollowAndFeed(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	bob := testutil.CreateUser(t, env.db, "bob")
	carol := testutil.CreateUser(t, env.db, "carol")
	base := time.Now().Add(-time.Hour)
	bobMsg := testutil.CreateMessage(t, env.db, bob.ID, "from bob", base)
	testutil.CreateMessage(t, env.db, carol.ID, "from carol", base.Add(time.Minute))
	ownMsg := testutil.CreateMessage(t, env.db, alice.ID, "from alice", base.Add(2*time.Minute))

	b := env.browser()
	b.login("alice")

	resp := b.postCSRF(fmt.Sprintf("/users/follow/%d", bob.ID), nil)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, int64(1), testutil.Count(t, env.db, &models.Follow{},
		"user_following_id = ? AND user_being_followed_id = ?", alice.ID, bob.ID))

	home := b.page("/")
	msgs, _ := home["messages"].([]any)
	require.Len(t, msgs, 2)
	first, _ := msgs[0].(map[string]any)
	second, _ := msgs[1].(map[string]any)
	assert.Equal(t, float64(ownMsg.ID), first["id"])
	assert.Equal(t, float64(bobMsg.ID), second["id"])

	profile := b.page(fmt.Sprintf("/users/%d", bob.ID))
	assert.Equal(t, tmplUserShow, profile["template"])
	assert.Equal(t, true, profile["is_following"])
	assert.Equal(t, false, profile["is_followed_by"])

	following := b.page(fmt.Sprintf("/users/%d/following", alice.ID))
	list, _ := following["following"].([]any)
	assert.Len(t, list, 1)
}

func TestStopFollowing(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	bob := testutil.CreateUser(t, env.db, "bob")
	testutil.Follow(t, env.db, alice.ID, bob.ID)

	b := env.browser()
	b.login("alice")

	resp := b.postCSRF(fmt.Sprintf("/users/stop-following/%d", bob.ID), nil)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, int64(0), testutil.Count(t, env.db, &models.Follow{}, ""))
	assert.Empty(t, flashMessages(b.page("/")))

	// Second time is a no-op with a notice.
	resp = b.postCSRF(fmt.Sprintf("/users/stop-following/%d", bob.ID), nil)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Contains(t, flashMessages(b.page("/")), "You are not following that user.")
}

func TestFollow_UnknownUserIs404(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreateUser(t, env.db, "alice")
	b := env.browser()
	b.login("alice")

	resp := b.postCSRF("/users/follow/9999", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCSRF_ForgedOrForeignTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	bob := testutil.CreateUser(t, env.db, "bob")
	testutil.CreateUser(t, env.db, "mallory")

	victim := env.browser()
	victim.login("alice")

	attacker := env.browser()
	attacker.login("mallory")
	foreign := attacker.csrf()

	for _, token := range []string{"", "forged", foreign} {
		form := url.Values{}
		if token != "" {
			form.Set("csrf_token", token)
		}
		resp := victim.post(fmt.Sprintf("/users/follow/%d", bob.ID), form)
		assert.Equal(t, fiber.StatusFound, resp.StatusCode)
		assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))
	}

	assert.Equal(t, int64(0), testutil.Count(t, env.db, &models.Follow{}, "user_following_id = ?", alice.ID))
	assert.Contains(t, flashMessages(victim.page("/")), msgAccessUnauthorized)
}

func TestCSRF_QueryTokenAccepted(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	bob := testutil.CreateUser(t, env.db, "bob")
	b := env.browser()
	b.login("alice")
	token := b.csrf()

	req := fmt.Sprintf("/users/follow/%d?csrf_token=%s", bob.ID, url.QueryEscape(token))
	resp := b.get(req)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, int64(1), testutil.Count(t, env.db, &models.Follow{}, "user_following_id = ?", alice.ID))
}

func TestLikeAndUnlike(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	bob := testutil.CreateUser(t, env.db, "bob")
	msg := testutil.CreateMessage(t, env.db, bob.ID, "like me", time.Now())
	testutil.Follow(t, env.db, alice.ID, bob.ID)

	b := env.browser()
	b.login("alice")

	resp := b.postCSRF(fmt.Sprintf("/messages/%d/like", msg.ID), nil)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, int64(1), testutil.Count(t, env.db, &models.Like{}, "user_id = ? AND message_id = ?", alice.ID, msg.ID))

	home := b.page("/")
	ids, _ := home["liked_message_ids"].([]any)
	assert.Equal(t, []any{float64(msg.ID)}, ids)

	show := b.page(fmt.Sprintf("/messages/%d", msg.ID))
	assert.Equal(t, tmplMessageShow, show["template"])
	assert.Equal(t, float64(1), show["likes_count"])
	assert.Equal(t, true, show["liked"])

	likes := b.page(fmt.Sprintf("/users/%d/likes", alice.ID))
	liked, _ := likes["messages"].([]any)
	assert.Len(t, liked, 1)

	resp = b.postCSRF(fmt.Sprintf("/messages/%d/unlike", msg.ID), nil)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, int64(0), testutil.Count(t, env.db, &models.Like{}, ""))

	resp = b.postCSRF(fmt.Sprintf("/messages/%d/unlike", msg.ID), nil)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Contains(t, flashMessages(b.page("/")), "You have not liked that message.")
}

func TestLike_OwnMessageRejected(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	msg := testutil.CreateMessage(t, env.db, alice.ID, "mine", time.Now())

	b := env.browser()
	b.login("alice")

	resp := b.postCSRF(fmt.Sprintf("/messages/%d/like", msg.ID), nil)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, int64(0), testutil.Count(t, env.db, &models.Like{}, ""))
	assert.Contains(t, flashMessages(b.page("/")), service.ErrSelfLike)
}

func TestNewMessage(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	b := env.browser()
	b.login("alice")

	page := b.page("/messages/new")
	assert.Equal(t, tmplMessageNew, page["template"])

	resp := b.postCSRF("/messages/new", url.Values{"text": {"hello warbler"}})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, fmt.Sprintf("/users/%d", alice.ID), resp.Header.Get(fiber.HeaderLocation))
	assert.Equal(t, int64(1), testutil.Count(t, env.db, &models.Message{}, "user_id = ?", alice.ID))

	resp = b.postCSRF("/messages/new", url.Values{"text": {strings.Repeat("x", 141)}})
	page = decodePage(t, resp)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	errs, _ := page["errors"].(map[string]any)
	assert.Contains(t, errs, "text")
	assert.Equal(t, int64(1), testutil.Count(t, env.db, &models.Message{}, ""))
}

func TestDeleteMessage_OwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	bob := testutil.CreateUser(t, env.db, "bob")
	msg := testutil.CreateMessage(t, env.db, alice.ID, "delete me", time.Now())
	testutil.Like(t, env.db, bob.ID, msg.ID)

	intruder := env.browser()
	intruder.login("bob")
	resp := intruder.postCSRF(fmt.Sprintf("/messages/%d/delete", msg.ID), nil)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))
	assert.Equal(t, int64(1), testutil.Count(t, env.db, &models.Message{}, ""))
	assert.Contains(t, flashMessages(intruder.page("/")), msgAccessUnauthorized)

	owner := env.browser()
	owner.login("alice")
	resp = owner.postCSRF(fmt.Sprintf("/messages/%d/delete", msg.ID), nil)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, fmt.Sprintf("/users/%d", alice.ID), resp.Header.Get(fiber.HeaderLocation))
	assert.Equal(t, int64(0), testutil.Count(t, env.db, &models.Message{}, ""))
	assert.Equal(t, int64(0), testutil.Count(t, env.db, &models.Like{}, ""))
}

func TestEditProfile(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	testutil.CreateUser(t, env.db, "bob")
	b := env.browser()
	b.login("alice")

	page := b.page("/users/profile")
	assert.Equal(t, tmplUserEdit, page["template"])
	form, _ := page["form"].(map[string]any)
	assert.Equal(t, "alice", form["username"])

	t.Run("wrong password", func(t *testing.T) {
		resp := b.postCSRF("/users/profile", url.Values{
			"username": {"alice2"},
			"email":    {"alice@test.com"},
			"password": {"wrongpass"},
		})
		require.Equal(t, fiber.StatusFound, resp.StatusCode)
		assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))
		assert.Contains(t, flashMessages(b.page("/")), "Unauthorized.")
	})

	t.Run("taken username", func(t *testing.T) {
		resp := b.postCSRF("/users/profile", url.Values{
			"username": {"bob"},
			"email":    {"alice@test.com"},
			"password": {testutil.TestPassword},
		})
		page := decodePage(t, resp)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Contains(t, flashMessages(page), "Username or email already taken")
	})

	t.Run("success", func(t *testing.T) {
		resp := b.postCSRF("/users/profile", url.Values{
			"username": {"alice2"},
			"email":    {"alice@test.com"},
			"bio":      {"hi"},
			"password": {testutil.TestPassword},
		})
		require.Equal(t, fiber.StatusFound, resp.StatusCode)
		assert.Equal(t, fmt.Sprintf("/users/%d", alice.ID), resp.Header.Get(fiber.HeaderLocation))

		var stored models.User
		require.NoError(t, env.db.First(&stored, alice.ID).Error)
		assert.Equal(t, "alice2", stored.Username)
		assert.Equal(t, "hi", stored.Bio)
		assert.Equal(t, "alice2", currentUsername(b.page("/")))
	})
}

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	bob := testutil.CreateUser(t, env.db, "bob")
	msg := testutil.CreateMessage(t, env.db, alice.ID, "bye", time.Now())
	testutil.Like(t, env.db, bob.ID, msg.ID)
	testutil.Follow(t, env.db, bob.ID, alice.ID)

	b := env.browser()
	b.login("alice")

	resp := b.postCSRF("/users/delete", nil)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/signup", resp.Header.Get(fiber.HeaderLocation))

	assert.Equal(t, int64(1), testutil.Count(t, env.db, &models.User{}, ""))
	assert.Equal(t, int64(0), testutil.Count(t, env.db, &models.Message{}, ""))
	assert.Equal(t, int64(0), testutil.Count(t, env.db, &models.Like{}, ""))
	assert.Equal(t, int64(0), testutil.Count(t, env.db, &models.Follow{}, ""))

	page := b.page("/signup")
	assert.Nil(t, page["current_user"])
	assert.Contains(t, flashMessages(page), "Successfully deleted!")
}

func TestListUsers_Search(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreateUser(t, env.db, "alice")
	testutil.CreateUser(t, env.db, "alfred")
	testutil.CreateUser(t, env.db, "bob")
	b := env.browser()
	b.login("alice")

	page := b.page("/users?q=al")
	assert.Equal(t, tmplUsersIndex, page["template"])
	users, _ := page["users"].([]any)
	assert.Len(t, users, 2)
	assert.Equal(t, "al", page["q"])

	all, _ := b.page("/users")["users"].([]any)
	assert.Len(t, all, 3)
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreateUser(t, env.db, "alice")
	b := env.browser()

	resp := b.get("/no/such/page")
	page := decodePage(t, resp)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, tmplNotFound, page["template"])

	b.login("alice")
	for _, path := range []string{"/users/9999", "/messages/9999", "/users/9999/likes"} {
		resp := b.get(path)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, tmplNotFound, decodePage(t, resp)["template"], path)
	}
}

func TestNoStoreHeader(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser()

	for _, path := range []string{"/", "/login", "/health/live", "/missing"} {
		resp := b.get(path)
		assert.Equal(t, "no-store", resp.Header.Get(fiber.HeaderCacheControl), path)
	}
}

func TestSessionUserDeletedElsewhere(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	b := env.browser()
	b.login("alice")

	require.NoError(t, env.db.Delete(&models.User{}, alice.ID).Error)

	page := b.page("/")
	assert.Equal(t, tmplHomeAnon, page["template"])
	assert.Nil(t, page["current_user"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser()

	resp := b.get("/health/live")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = b.get("/health/ready")
	body := decodePage(t, resp)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	checks, _ := body["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["database"])
	assert.Equal(t, "unavailable", checks["redis"])
}

func TestRedisBackedSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := newTestEnvWithRedis(t, rdb)
	testutil.CreateUser(t, env.db, "alice")
	b := env.browser()
	b.login("alice")

	keys := mr.Keys()
	var sessionKeys int
	for _, k := range keys {
		if strings.HasPrefix(k, cache.SessionKeyPrefix) {
			sessionKeys++
		}
	}
	assert.Equal(t, 1, sessionKeys)
	assert.Equal(t, "alice", currentUsername(b.page("/")))

	resp := b.get("/health/ready")
	checks, _ := decodePage(t, resp)["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["redis"])
}

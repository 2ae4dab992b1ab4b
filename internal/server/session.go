package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"warbler/internal/cache"
	"warbler/internal/config"
	"warbler/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session keys.
const (
	sessionUserKey  = "curr_user"
	sessionCSRFKey  = "csrf_token"
	sessionFlashKey = "_flashes"

	sessionCookieName = "warbler_session"
	localsSession     = "session"
)

// Flash categories.
const (
	flashSuccess = "success"
	flashDanger  = "danger"
	flashInfo    = "info"
)

// Flash is a one-shot notice shown on the next rendered page.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// requestSession wraps the Fiber session for one request. Fiber releases a
// session on Save, so it is saved exactly once after the handler chain.
type requestSession struct {
	sess  *session.Session
	dirty bool
}

// newSessionStore builds the cookie session store, backed by Redis when rdb is set.
func newSessionStore(cfg *config.Config, rdb *redis.Client) *session.Store {
	sessionCfg := session.Config{
		Expiration:     cfg.SessionTTL,
		KeyLookup:      "cookie:" + sessionCookieName,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   cfg.IsProduction(),
		KeyGenerator:   uuid.NewString,
	}
	if rdb != nil {
		sessionCfg.Storage = cache.NewSessionStorage(rdb)
	}
	return session.New(sessionCfg)
}

// SessionMiddleware loads the session before the handlers run and saves it
// afterwards if anything changed.
func (s *Server) SessionMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := s.sessions.Get(c)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		rs := &requestSession{sess: sess}
		c.Locals(localsSession, rs)

		err = c.Next()

		if rs.dirty {
			if saveErr := sess.Save(); saveErr != nil {
				middleware.Logger.ErrorContext(c.UserContext(), "session save failed", slog.String("error", saveErr.Error()))
				if err == nil {
					err = saveErr
				}
			}
		}
		return err
	}
}

func currentSession(c *fiber.Ctx) *requestSession {
	rs, _ := c.Locals(localsSession).(*requestSession)
	return rs
}

func (rs *requestSession) set(key string, value any) {
	rs.sess.Set(key, value)
	rs.dirty = true
}

func (rs *requestSession) remove(key string) {
	if rs.sess.Get(key) == nil {
		return
	}
	rs.sess.Delete(key)
	rs.dirty = true
}

// sessionUserID returns the logged-in user id stored in the session, or 0.
func sessionUserID(c *fiber.Ctx) uint {
	rs := currentSession(c)
	if rs == nil {
		return 0
	}
	id, _ := rs.sess.Get(sessionUserKey).(uint)
	return id
}

// login stores userID under a fresh session id.
func login(c *fiber.Ctx, userID uint) error {
	rs := currentSession(c)
	if rs == nil {
		return errors.New("no session")
	}
	if err := rs.sess.Regenerate(); err != nil {
		return fmt.Errorf("regenerate session: %w", err)
	}
	rs.set(sessionUserKey, userID)
	return nil
}

// logout forgets the session user and reports whether one was logged in.
// Pending flashes survive so the next page can show them.
func logout(c *fiber.Ctx) bool {
	rs := currentSession(c)
	if rs == nil || rs.sess.Get(sessionUserKey) == nil {
		return false
	}
	rs.remove(sessionUserKey)
	return true
}

func flash(c *fiber.Ctx, category, message string) {
	rs := currentSession(c)
	if rs == nil {
		return
	}
	flashes := peekFlashes(rs)
	flashes = append(flashes, Flash{Category: category, Message: message})
	raw, err := json.Marshal(flashes)
	if err != nil {
		return
	}
	rs.set(sessionFlashKey, string(raw))
}

func peekFlashes(rs *requestSession) []Flash {
	raw, _ := rs.sess.Get(sessionFlashKey).(string)
	if raw == "" {
		return nil
	}
	var flashes []Flash
	if err := json.Unmarshal([]byte(raw), &flashes); err != nil {
		return nil
	}
	return flashes
}

// takeFlashes returns and clears the pending flashes.
func takeFlashes(c *fiber.Ctx) []Flash {
	rs := currentSession(c)
	if rs == nil {
		return []Flash{}
	}
	flashes := peekFlashes(rs)
	rs.remove(sessionFlashKey)
	if flashes == nil {
		return []Flash{}
	}
	return flashes
}

// csrfClaims is the signed form token: the session secret plus an expiry.
type csrfClaims struct {
	CSRF string `json:"csrf"`
	jwt.RegisteredClaims
}

// csrfSecret returns the session's CSRF secret, minting one on first use.
func csrfSecret(c *fiber.Ctx) string {
	rs := currentSession(c)
	if rs == nil {
		return ""
	}
	if secret, ok := rs.sess.Get(sessionCSRFKey).(string); ok && secret != "" {
		return secret
	}
	secret := uuid.NewString()
	rs.set(sessionCSRFKey, secret)
	return secret
}

// csrfToken signs the session secret into a time-limited form token.
func (s *Server) csrfToken(c *fiber.Ctx) string {
	secret := csrfSecret(c)
	if secret == "" {
		return ""
	}
	now := time.Now()
	claims := csrfClaims{
		CSRF: secret,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.CSRFTimeLimit)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.SecretKey))
	if err != nil {
		middleware.Logger.ErrorContext(c.UserContext(), "csrf token signing failed", slog.String("error", err.Error()))
		return ""
	}
	return signed
}

// validCSRF checks token's signature and expiry and that it carries this session's secret.
func (s *Server) validCSRF(c *fiber.Ctx, token string) bool {
	if !s.config.CSRFEnabled {
		return true
	}
	if token == "" {
		return false
	}
	rs := currentSession(c)
	if rs == nil {
		return false
	}
	secret, _ := rs.sess.Get(sessionCSRFKey).(string)
	if secret == "" {
		return false
	}

	var claims csrfClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(s.config.SecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(claims.CSRF), []byte(secret)) == 1
}

// submittedCSRF reads the token from the header, the form body or the query string.
func submittedCSRF(c *fiber.Ctx) string {
	if token := c.Get("X-CSRF-Token"); token != "" {
		return token
	}
	if token := c.FormValue(sessionCSRFKey); token != "" {
		return token
	}
	return c.Query(sessionCSRFKey)
}

package server

import (
	"log/slog"

	"warbler/internal/middleware"
	"warbler/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	localsUserID      = "userID"
	localsCurrentUser = "currentUser"

	msgAccessUnauthorized = "Access unauthorized."
)

// CurrentUser resolves the session user once per request. A session pointing
// at a deleted user is treated as anonymous.
func (s *Server) CurrentUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := sessionUserID(c)
		if userID == 0 {
			return c.Next()
		}

		user, err := s.userService.GetUserByID(c.UserContext(), userID)
		if err != nil {
			if models.ErrorCode(err) != models.CodeNotFound {
				return err
			}
			middleware.Logger.WarnContext(c.UserContext(), "session user no longer exists", slog.Any("user_id", userID))
			logout(c)
			return c.Next()
		}

		c.Locals(localsUserID, user.ID)
		c.Locals(localsCurrentUser, user)
		c.SetUserContext(middleware.WithUserID(c.UserContext(), user.ID))
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(localsCurrentUser).(*models.User)
	return user
}

func currentUserID(c *fiber.Ctx) uint {
	id, _ := c.Locals(localsUserID).(uint)
	return id
}

// LoginRequired rejects anonymous requests with a flash and a redirect home.
func (s *Server) LoginRequired() fiber.Handler {
	return s.loginRequired(msgAccessUnauthorized, "/")
}

func (s *Server) loginRequired(message, location string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if currentUser(c) == nil {
			flash(c, flashDanger, message)
			return c.Redirect(location, fiber.StatusFound)
		}
		return c.Next()
	}
}

// CSRFProtected refuses the request unless it carries a valid form token.
// It must run after the login check.
func (s *Server) CSRFProtected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.validCSRF(c, submittedCSRF(c)) {
			middleware.CSRFRejections.Inc()
			middleware.Logger.WarnContext(c.UserContext(), "csrf validation failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()))
			flash(c, flashDanger, msgAccessUnauthorized)
			return c.Redirect("/", fiber.StatusFound)
		}
		return c.Next()
	}
}

// NoStore marks every response as uncacheable.
func NoStore() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.Next()
	}
}

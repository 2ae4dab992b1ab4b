package server

import (
	"errors"
	"net/url"

	"warbler/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const (
	maxPaginationLimit = 100
)

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it renders the 404 page and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = s.renderNotFound(c)
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// mapServiceError maps an AppError code to its HTTP status.
func mapServiceError(err error) int {
	switch models.ErrorCode(err) {
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// handleServiceError turns a service error into the page-level response:
// the 404 page, a flash plus redirect, or a JSON error for anything unexpected.
func (s *Server) handleServiceError(c *fiber.Ctx, err error) error {
	switch mapServiceError(err) {
	case fiber.StatusNotFound:
		return s.renderNotFound(c)
	case fiber.StatusUnauthorized, fiber.StatusForbidden:
		flash(c, flashDanger, msgAccessUnauthorized)
		return c.Redirect("/", fiber.StatusFound)
	case fiber.StatusBadRequest:
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			flash(c, flashDanger, appErr.Message)
		}
		return redirectBack(c)
	default:
		return models.RespondWithError(c, mapServiceError(err), err)
	}
}

// redirectBack sends the client to the same-site Referer, falling back to "/".
func redirectBack(c *fiber.Ctx) error {
	return c.Redirect(refererPath(c), fiber.StatusFound)
}

func refererPath(c *fiber.Ctx) string {
	ref := c.Get(fiber.HeaderReferer)
	if ref == "" {
		return "/"
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != string(c.Request().Host())) {
		return "/"
	}
	if u.Path == "" || u.Path[0] != '/' || (len(u.Path) > 1 && u.Path[1] == '/') {
		return "/"
	}
	if u.RawQuery != "" {
		return u.Path + "?" + u.RawQuery
	}
	return u.Path
}

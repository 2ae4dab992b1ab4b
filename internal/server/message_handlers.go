package server

import (
	"fmt"

	"warbler/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// NewMessage handles GET and POST /messages/new
func (s *Server) NewMessage(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		return s.renderForm(c, tmplMessageNew, validation.MessageForm{}, nil, nil)
	}

	var form validation.MessageForm
	if err := c.BodyParser(&form); err != nil {
		return s.renderForm(c, tmplMessageNew, form, validation.FieldErrors{"_form": {"Invalid form submission."}}, nil)
	}

	errs := form.Validate()
	s.checkFormCSRF(c, errs)
	if len(errs) > 0 {
		return s.renderForm(c, tmplMessageNew, form, errs, nil)
	}

	userID := currentUserID(c)
	if _, err := s.messageService.CreateMessage(c.UserContext(), userID, form.Text); err != nil {
		return s.handleServiceError(c, err)
	}
	return c.Redirect(fmt.Sprintf("/users/%d", userID), fiber.StatusFound)
}

// ShowMessage handles GET /messages/:id
func (s *Server) ShowMessage(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	msg, err := s.messageService.GetMessage(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return s.handleServiceError(c, err)
	}
	return s.render(c, fiber.StatusOK, tmplMessageShow, fiber.Map{
		"message":     msg,
		"likes_count": msg.LikesCount,
		"liked":       msg.Liked,
	})
}

// DeleteMessage handles /messages/:id/delete. Only the author may delete.
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	userID := currentUserID(c)
	if err := s.messageService.DeleteMessage(c.UserContext(), userID, id); err != nil {
		return s.handleServiceError(c, err)
	}
	return c.Redirect(fmt.Sprintf("/users/%d", userID), fiber.StatusFound)
}

// LikeMessage handles /messages/:id/like
func (s *Server) LikeMessage(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.messageService.Like(c.UserContext(), currentUserID(c), id); err != nil {
		return s.handleServiceError(c, err)
	}
	return redirectBack(c)
}

// UnlikeMessage handles /messages/:id/unlike
func (s *Server) UnlikeMessage(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	removed, err := s.messageService.Unlike(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return s.handleServiceError(c, err)
	}
	if !removed {
		flash(c, flashInfo, "You have not liked that message.")
	}
	return redirectBack(c)
}

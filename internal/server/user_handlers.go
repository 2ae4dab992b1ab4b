package server

import (
	"fmt"
	"strings"

	"warbler/internal/models"
	"warbler/internal/service"
	"warbler/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// ListUsers handles GET /users?q=
func (s *Server) ListUsers(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	page := parsePagination(c, maxPaginationLimit)

	users, err := s.userService.ListUsers(c.UserContext(), q, page.Limit, page.Offset)
	if err != nil {
		return s.handleServiceError(c, err)
	}
	return s.render(c, fiber.StatusOK, tmplUsersIndex, fiber.Map{
		"users": users,
		"q":     q,
	})
}

// ShowUser handles GET /users/:id
func (s *Server) ShowUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	profile, err := s.userService.GetProfile(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return s.handleServiceError(c, err)
	}
	return s.render(c, fiber.StatusOK, tmplUserShow, fiber.Map{
		"user":           profile.User,
		"messages":       profile.Messages,
		"stats":          profile.Stats,
		"is_following":   profile.IsFollowing,
		"is_followed_by": profile.IsFollowedBy,
	})
}

// ShowFollowing handles GET /users/:id/following
func (s *Server) ShowFollowing(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	user, following, err := s.followService.Following(c.UserContext(), id)
	if err != nil {
		return s.handleServiceError(c, err)
	}
	return s.render(c, fiber.StatusOK, tmplUserFollowing, fiber.Map{
		"user":      user,
		"following": following,
	})
}

// ShowFollowers handles GET /users/:id/followers
func (s *Server) ShowFollowers(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	user, followers, err := s.followService.Followers(c.UserContext(), id)
	if err != nil {
		return s.handleServiceError(c, err)
	}
	return s.render(c, fiber.StatusOK, tmplUserFollowers, fiber.Map{
		"user":      user,
		"followers": followers,
	})
}

// ShowLikes handles GET /users/:id/likes
func (s *Server) ShowLikes(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	user, liked, err := s.messageService.LikedMessages(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return s.handleServiceError(c, err)
	}
	return s.render(c, fiber.StatusOK, tmplUserLikes, fiber.Map{
		"user":     user,
		"messages": liked,
	})
}

// Follow handles /users/follow/:id
func (s *Server) Follow(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.followService.Follow(c.UserContext(), currentUserID(c), id); err != nil {
		return s.handleServiceError(c, err)
	}
	return redirectBack(c)
}

// StopFollowing handles /users/stop-following/:id
func (s *Server) StopFollowing(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	removed, err := s.followService.Unfollow(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return s.handleServiceError(c, err)
	}
	if !removed {
		flash(c, flashInfo, "You are not following that user.")
	}
	return redirectBack(c)
}

// EditProfile handles GET and POST /users/profile
func (s *Server) EditProfile(c *fiber.Ctx) error {
	user := currentUser(c)

	if c.Method() != fiber.MethodPost {
		form := validation.EditProfileForm{
			Username:       user.Username,
			Email:          user.Email,
			ImageURL:       user.ImageURL,
			HeaderImageURL: user.HeaderImageURL,
			Bio:            user.Bio,
			Location:       user.Location,
		}
		return s.renderForm(c, tmplUserEdit, form, nil, nil)
	}

	var form validation.EditProfileForm
	if err := c.BodyParser(&form); err != nil {
		return s.renderForm(c, tmplUserEdit, form, validation.FieldErrors{"_form": {"Invalid form submission."}}, nil)
	}
	form.Normalize()

	errs := form.Validate()
	s.checkFormCSRF(c, errs)
	if len(errs) > 0 {
		return s.renderForm(c, tmplUserEdit, form, errs, nil)
	}

	updated, err := s.userService.UpdateProfile(c.UserContext(), service.UpdateProfileInput{
		UserID:         user.ID,
		Username:       form.Username,
		Email:          form.Email,
		ImageURL:       form.ImageURL,
		HeaderImageURL: form.HeaderImageURL,
		Bio:            form.Bio,
		Location:       form.Location,
		Password:       form.Password,
	})
	if err != nil {
		switch models.ErrorCode(err) {
		case models.CodeUnauthorized:
			flash(c, flashDanger, "Unauthorized.")
			return c.Redirect("/", fiber.StatusFound)
		case models.CodeConflict:
			flash(c, flashDanger, "Username or email already taken")
			return s.renderForm(c, tmplUserEdit, form, nil, nil)
		}
		return s.handleServiceError(c, err)
	}

	return c.Redirect(fmt.Sprintf("/users/%d", updated.ID), fiber.StatusFound)
}

// DeleteUser handles /users/delete
func (s *Server) DeleteUser(c *fiber.Ctx) error {
	if err := s.userService.DeleteUser(c.UserContext(), currentUserID(c)); err != nil {
		return s.handleServiceError(c, err)
	}

	logout(c)
	flash(c, flashSuccess, "Successfully deleted!")
	return c.Redirect("/signup", fiber.StatusFound)
}

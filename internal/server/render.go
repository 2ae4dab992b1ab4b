package server

import (
	"github.com/gofiber/fiber/v2"
)

// Page templates.
const (
	tmplHome          = "home.html"
	tmplHomeAnon      = "home-anon.html"
	tmplSignup        = "users/signup.html"
	tmplLogin         = "users/login.html"
	tmplUsersIndex    = "users/index.html"
	tmplUserShow      = "users/show.html"
	tmplUserFollowing = "users/following.html"
	tmplUserFollowers = "users/followers.html"
	tmplUserLikes     = "users/likes.html"
	tmplUserEdit      = "users/edit.html"
	tmplMessageNew    = "messages/new.html"
	tmplMessageShow   = "messages/show.html"
	tmplNotFound      = "404.html"
)

// render writes a page payload: the template name, drained flashes, a fresh
// CSRF form token, the current user and the page data.
func (s *Server) render(c *fiber.Ctx, status int, template string, data fiber.Map) error {
	payload := fiber.Map{
		"template":     template,
		"flashes":      takeFlashes(c),
		"csrf_token":   s.csrfToken(c),
		"current_user": currentUser(c),
	}
	for k, v := range data {
		payload[k] = v
	}
	return c.Status(status).JSON(payload)
}

// renderForm renders a form page with the submitted values and field errors.
func (s *Server) renderForm(c *fiber.Ctx, template string, form any, errs map[string][]string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	if errs == nil {
		errs = map[string][]string{}
	}
	data["form"] = form
	data["errors"] = errs
	return s.render(c, fiber.StatusOK, template, data)
}

func (s *Server) renderNotFound(c *fiber.Ctx) error {
	return s.render(c, fiber.StatusNotFound, tmplNotFound, nil)
}

package server

import (
	"errors"
	"fmt"

	"warbler/internal/middleware"
	"warbler/internal/models"
	"warbler/internal/service"
	"warbler/internal/validation"

	"github.com/gofiber/fiber/v2"
)

const msgCSRFInvalid = "The CSRF token is missing or invalid."

// checkFormCSRF records a csrf_token field error when the submitted token is bad.
func (s *Server) checkFormCSRF(c *fiber.Ctx, errs validation.FieldErrors) {
	if !s.validCSRF(c, submittedCSRF(c)) {
		middleware.CSRFRejections.Inc()
		errs.Add("csrf_token", msgCSRFInvalid)
	}
}

// SignupPage handles GET /signup
func (s *Server) SignupPage(c *fiber.Ctx) error {
	return s.renderForm(c, tmplSignup, validation.SignupForm{}, nil, nil)
}

// Signup handles POST /signup
func (s *Server) Signup(c *fiber.Ctx) error {
	var form validation.SignupForm
	if err := c.BodyParser(&form); err != nil {
		return s.renderForm(c, tmplSignup, form, validation.FieldErrors{"_form": {"Invalid form submission."}}, nil)
	}
	form.Normalize()

	errs := form.Validate()
	s.checkFormCSRF(c, errs)
	if len(errs) > 0 {
		return s.renderForm(c, tmplSignup, form, errs, nil)
	}

	user, err := s.authService.Signup(c.UserContext(), service.SignupInput{
		Username: form.Username,
		Email:    form.Email,
		Password: form.Password,
		ImageURL: form.ImageURL,
	})
	if err != nil {
		if models.ErrorCode(err) == models.CodeConflict {
			flash(c, flashDanger, "Username already taken")
			return s.renderForm(c, tmplSignup, form, nil, nil)
		}
		return s.handleServiceError(c, err)
	}

	if err := login(c, user.ID); err != nil {
		return err
	}
	return c.Redirect("/", fiber.StatusFound)
}

// LoginPage handles GET /login
func (s *Server) LoginPage(c *fiber.Ctx) error {
	return s.renderForm(c, tmplLogin, validation.LoginForm{}, nil, nil)
}

// Login handles POST /login
func (s *Server) Login(c *fiber.Ctx) error {
	var form validation.LoginForm
	if err := c.BodyParser(&form); err != nil {
		return s.renderForm(c, tmplLogin, form, validation.FieldErrors{"_form": {"Invalid form submission."}}, nil)
	}
	form.Normalize()

	errs := form.Validate()
	s.checkFormCSRF(c, errs)
	if len(errs) > 0 {
		return s.renderForm(c, tmplLogin, form, errs, nil)
	}

	user, err := s.authService.Authenticate(c.UserContext(), form.Username, form.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			flash(c, flashDanger, "Invalid credentials.")
			return s.renderForm(c, tmplLogin, form, nil, nil)
		}
		return s.handleServiceError(c, err)
	}

	if err := login(c, user.ID); err != nil {
		return err
	}
	flash(c, flashSuccess, fmt.Sprintf("Hello, %s!", user.Username))
	return c.Redirect("/", fiber.StatusFound)
}

// Logout handles POST /logout
func (s *Server) Logout(c *fiber.Ctx) error {
	logout(c)
	flash(c, flashSuccess, "Successfully logged out!")
	return c.Redirect("/login", fiber.StatusFound)
}

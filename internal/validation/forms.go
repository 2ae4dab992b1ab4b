package validation

import "strings"

// FieldErrors maps a form field name to its error messages.
type FieldErrors map[string][]string

// Add appends msg to field's errors.
func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

func (e FieldErrors) check(field string, err error) {
	if err != nil {
		e.Add(field, err.Error())
	}
}

// SignupForm is the new-account form.
type SignupForm struct {
	Username string `form:"username" json:"username"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"-"`
	ImageURL string `form:"image_url" json:"image_url"`
}

// Normalize trims surrounding whitespace from every text field except the password.
func (f *SignupForm) Normalize() {
	f.Username = strings.TrimSpace(f.Username)
	f.Email = strings.TrimSpace(f.Email)
	f.ImageURL = strings.TrimSpace(f.ImageURL)
}

func (f *SignupForm) Validate() FieldErrors {
	errs := FieldErrors{}
	errs.check("username", ValidateUsername(f.Username))
	errs.check("email", ValidateEmail(f.Email))
	errs.check("password", ValidatePassword(f.Password))
	errs.check("image_url", ValidateOptionalURL(f.ImageURL))
	return errs
}

// LoginForm is the login form.
type LoginForm struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"-"`
}

func (f *LoginForm) Normalize() {
	f.Username = strings.TrimSpace(f.Username)
}

func (f *LoginForm) Validate() FieldErrors {
	errs := FieldErrors{}
	if f.Username == "" {
		errs.Add("username", "this field is required")
	}
	if f.Password == "" {
		errs.Add("password", "this field is required")
	}
	return errs
}

// MessageForm is the new-message form.
type MessageForm struct {
	Text string `form:"text" json:"text"`
}

func (f *MessageForm) Validate() FieldErrors {
	errs := FieldErrors{}
	errs.check("text", ValidateMessageText(f.Text))
	return errs
}

// EditProfileForm edits the current user's profile. Password re-authenticates
// the change and is never stored from this form.
type EditProfileForm struct {
	Username       string `form:"username" json:"username"`
	Email          string `form:"email" json:"email"`
	ImageURL       string `form:"image_url" json:"image_url"`
	HeaderImageURL string `form:"header_image_url" json:"header_image_url"`
	Bio            string `form:"bio" json:"bio"`
	Location       string `form:"location" json:"location"`
	Password       string `form:"password" json:"-"`
}

func (f *EditProfileForm) Normalize() {
	f.Username = strings.TrimSpace(f.Username)
	f.Email = strings.TrimSpace(f.Email)
	f.ImageURL = strings.TrimSpace(f.ImageURL)
	f.HeaderImageURL = strings.TrimSpace(f.HeaderImageURL)
	f.Location = strings.TrimSpace(f.Location)
}

func (f *EditProfileForm) Validate() FieldErrors {
	errs := FieldErrors{}
	errs.check("username", ValidateUsername(f.Username))
	errs.check("email", ValidateEmail(f.Email))
	errs.check("image_url", ValidateOptionalURL(f.ImageURL))
	errs.check("header_image_url", ValidateOptionalURL(f.HeaderImageURL))
	errs.check("password", ValidatePassword(f.Password))
	return errs
}

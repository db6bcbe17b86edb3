package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"
	"gorm.io/gorm"

	"github.com/ManuelReschke/GitDataEdit/app/models"
	"github.com/ManuelReschke/GitDataEdit/app/repository"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/mail"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/session"
)

type CaptchaVerifier interface {
	Verify(ctx context.Context, token string) error
}

// AuthController handles email sign-in links and logout.
type AuthController struct {
	users    repository.UserRepository
	mailer   mail.Sender
	captcha  CaptchaVerifier
	baseURL  string
	validate *validator.Validate
	Now      func() time.Time
}

func NewAuthController(users repository.UserRepository, mailer mail.Sender, baseURL string) *AuthController {
	return &AuthController{
		users:    users,
		mailer:   mailer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		validate: validator.New(),
		Now:      time.Now,
	}
}

// WithCaptcha requires a valid hCaptcha token on every sign-in request.
func (ac *AuthController) WithCaptcha(v CaptchaVerifier) *AuthController {
	ac.captcha = v
	return ac
}

type emailLoginBody struct {
	Email        string `json:"email" form:"email" validate:"required,email,max=200"`
	CaptchaToken string `json:"h-captcha-response" form:"h-captcha-response"`
}

// HandleEmailLogin mails a one-time sign-in link. Unknown addresses get an
// account on first use.
func (ac *AuthController) HandleEmailLogin(c *fiber.Ctx) error {
	var body emailLoginBody
	if err := c.BodyParser(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	if err := ac.validate.Struct(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "A valid email address is required")
	}
	if ac.captcha != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := ac.captcha.Verify(ctx, body.CaptchaToken)
		cancel()
		if err != nil {
			fiberlog.Warnf("[Auth] Captcha rejected for %s: %v", body.Email, err)
			return jsonError(c, fiber.StatusBadRequest, "Captcha validation failed. Please try again.")
		}
	}

	user, err := ac.users.GetByEmail(body.Email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user, err = models.NewUser(strings.SplitN(body.Email, "@", 2)[0], body.Email)
		if err == nil {
			err = ac.users.Create(user)
		}
	}
	if err != nil {
		fiberlog.Errorf("[Auth] Email sign-in for %s failed: %v", body.Email, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to start sign-in")
	}

	token, err := user.IssueLoginToken()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to start sign-in")
	}
	if err := ac.users.Update(user); err != nil {
		fiberlog.Errorf("[Auth] Storing login token for user %d failed: %v", user.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to start sign-in")
	}

	link := fmt.Sprintf("%s/login/email/verify?email=%s&token=%s", ac.baseURL, url.QueryEscape(user.Email), url.QueryEscape(token))
	subject, html := mail.SignInEmail(link)
	if err := ac.mailer.SendMail(user.Email, subject, html); err != nil {
		fiberlog.Errorf("[Auth] Sending sign-in email to user %d failed: %v", user.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to send sign-in email")
	}
	return c.JSON(fiber.Map{"ok": true})
}

// HandleEmailLoginVerify consumes a sign-in link and starts the session.
func (ac *AuthController) HandleEmailLoginVerify(c *fiber.Ctx) error {
	fm := fiber.Map{"type": "error", "message": "This sign-in link is invalid or has expired."}

	user, err := ac.users.GetByEmail(c.Query("email"))
	if err != nil || !user.CheckLoginToken(c.Query("token"), ac.Now()) {
		return flash.WithError(c, fm).Redirect("/login", fiber.StatusSeeOther)
	}

	user.ClearLoginToken()
	if err := ac.users.Update(user); err != nil {
		fiberlog.Errorf("[Auth] Clearing login token for user %d failed: %v", user.ID, err)
		return flash.WithError(c, fm).Redirect("/login", fiber.StatusSeeOther)
	}
	if err := startSession(c, user); err != nil {
		fiberlog.Errorf("[Auth] %v", err)
		fm["message"] = "Something went wrong, please try again."
		return flash.WithError(c, fm).Redirect("/login", fiber.StatusSeeOther)
	}
	if err := ac.users.UpdateLastLogin(user.ID, ac.Now()); err != nil {
		fiberlog.Warnf("[Auth] Updating last login of user %d failed: %v", user.ID, err)
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Welcome back!"}).Redirect("/editor", fiber.StatusSeeOther)
}

// HandleAuthLogout destroys the app session.
func HandleAuthLogout(c *fiber.Ctx) error {
	store := session.GetSessionStore()
	if store == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	sess, err := store.Get(c)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load session")
	}
	if err := sess.Destroy(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, fmt.Sprintf("something went wrong: %s", err))
	}
	return c.JSON(fiber.Map{"ok": true})
}

var authController *AuthController

func InitializeAuthController(ac *AuthController) {
	authController = ac
}

func GetAuthController() *AuthController {
	return authController
}

package auth

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/identity"
	"github.com/rayenfassatoui/amen-bank/internal/middleware"
	"github.com/rayenfassatoui/amen-bank/internal/respond"
)

// Handler exposes auth endpoints for login/refresh/logout.
type Handler struct {
	svc *Service
}

// NewHandler constructs the auth HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	TokenPair
	User identity.Profile `json:"user"`
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.New(apperr.KindValidation, "invalid request body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperr.New(apperr.KindValidation, "email and password are required")
	}
	pair, user, err := h.svc.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return respond.Message(c, http.StatusOK, "Login successful", loginResponse{TokenPair: pair, User: user.Profile()})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return apperr.New(apperr.KindValidation, "refreshToken is required")
	}
	token, exp, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return respond.OK(c, fiber.Map{"accessToken": token, "expiresIn": exp})
}

// Logout invalidates the caller's outstanding tokens.
func (h *Handler) Logout(c *fiber.Ctx) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return apperr.ErrUnauthenticated
	}
	if err := h.svc.Logout(c.UserContext(), p.ID); err != nil {
		return err
	}
	return respond.Message(c, http.StatusOK, "Logged out", nil)
}

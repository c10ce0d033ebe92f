package identity

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/authz"
	"github.com/rayenfassatoui/amen-bank/internal/middleware"
	"github.com/rayenfassatoui/amen-bank/internal/respond"
)

// Handler exposes profile and user administration endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createUserRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	AgencyID  string `json:"agencyId"`
}

type updateUserRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone"`
	Role      *string `json:"role"`
	AgencyID  *string `json:"agencyId"`
	IsActive  *bool   `json:"isActive"`
	Password  *string `json:"password"`
}

// Me returns the caller's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return apperr.ErrUnauthenticated
	}
	user, err := h.service.Get(c.UserContext(), p.ID)
	if err != nil {
		return err
	}
	return respond.OK(c, user.Profile())
}

// List returns every user.
func (h *Handler) List(c *fiber.Ctx) error {
	users, err := h.service.ListUsers(c.UserContext(), middleware.PrincipalFrom(c))
	if err != nil {
		return err
	}
	out := make([]Profile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return respond.OK(c, out)
}

// Get returns a single user.
func (h *Handler) Get(c *fiber.Ctx) error {
	user, err := h.service.GetUser(c.UserContext(), middleware.PrincipalFrom(c), c.Params("id"))
	if err != nil {
		return err
	}
	return respond.OK(c, user.Profile())
}

// Roles returns the role catalogue.
func (h *Handler) Roles(c *fiber.Ctx) error {
	return respond.OK(c, RoleCatalogue())
}

// Create registers a new user.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.New(apperr.KindValidation, "invalid request body")
	}
	user, err := h.service.CreateUser(c.UserContext(), middleware.PrincipalFrom(c), CreateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Role:      authz.Role(req.Role),
		AgencyID:  req.AgencyID,
	})
	if err != nil {
		return err
	}
	return respond.Message(c, http.StatusCreated, "User created successfully", user.Profile())
}

// Update applies a partial change to a user.
func (h *Handler) Update(c *fiber.Ctx) error {
	var req updateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.New(apperr.KindValidation, "invalid request body")
	}
	in := UpdateUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		AgencyID:  req.AgencyID,
		IsActive:  req.IsActive,
		Password:  req.Password,
	}
	if req.Role != nil {
		role := authz.Role(*req.Role)
		in.Role = &role
	}
	user, err := h.service.UpdateUser(c.UserContext(), middleware.PrincipalFrom(c), c.Params("id"), in)
	if err != nil {
		return err
	}
	return respond.Message(c, http.StatusOK, "User updated successfully", user.Profile())
}

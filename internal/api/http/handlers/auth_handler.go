package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// AuthHandler exposes registration and login.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterCompanyRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	session, err := h.auth.RegisterCompany(c.UserContext(), service.RegisterCompanyInput{
		CompanyName: req.CompanyName,
		FullName:    req.FullName,
		Username:    req.Username,
		Password:    req.Password,
		Area:        req.Area,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": sessionResponse(session)})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	session, err := h.auth.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionResponse(session)})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	company, err := h.auth.Company(c.UserContext(), caller)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.IdentityResponse{
		UserID:      caller.UserID,
		FullName:    caller.FullName,
		Role:        caller.Role,
		Area:        caller.Area,
		CompanyID:   caller.CompanyID,
		CompanyName: company.Name,
	}})
}

func sessionResponse(session *service.Session) fiber.Map {
	return fiber.Map{
		"user": userResponse(session.User),
		"auth": dto.AuthResponse{Token: session.Token, ExpiresAt: session.ExpiresAt},
	}
}

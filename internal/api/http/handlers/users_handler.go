package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// UsersHandler exposes company account management to administrators.
type UsersHandler struct {
	users *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(userService *service.UserService) *UsersHandler {
	return &UsersHandler{users: userService}
}

// List handles GET /users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	users, err := h.users.List(c.UserContext(), caller)
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, userResponse(&users[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create handles POST /users.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	var req dto.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	user, err := h.users.Create(c.UserContext(), caller, service.NewUserInput{
		FullName: req.FullName,
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		Area:     req.Area,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": userResponse(user)})
}

// Delete handles DELETE /users/:id.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "user")
	if err != nil {
		return err
	}
	if err := h.users.Delete(c.UserContext(), caller, id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:        user.ID,
		FullName:  user.FullName,
		Username:  user.Username,
		Role:      user.Role,
		Area:      user.Area,
		CompanyID: user.CompanyID,
		CreatedAt: user.CreatedAt,
	}
}

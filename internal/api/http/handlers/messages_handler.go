package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/storage"
)

// MessagesHandler manages the chat thread endpoints of a ticket.
type MessagesHandler struct {
	service *service.MessageService
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(messageService *service.MessageService) *MessagesHandler {
	return &MessagesHandler{service: messageService}
}

// AddMessage POST /tickets/:id/messages. Accepts multipart form data with
// messagetext and file fields, or a JSON body for text-only messages. The
// sender's live connection id may be passed as ?socketId=.
func (h *MessagesHandler) AddMessage(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "ticket")
	if err != nil {
		return err
	}

	input := service.MessageInput{SocketID: c.Query("socketId")}
	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return invalidPayload()
		}
		input.Text = formValue(form.Value, "messagetext")
		if input.SocketID == "" {
			input.SocketID = formValue(form.Value, "socketId")
		}
		if files := form.File["file"]; len(files) > 0 {
			header := files[0]
			file, err := header.Open()
			if err != nil {
				return invalidPayload()
			}
			defer file.Close()
			input.File = &storage.Upload{
				FileName:    header.Filename,
				ContentType: header.Header.Get(fiber.HeaderContentType),
				Size:        header.Size,
				Body:        file,
			}
		}
	} else {
		var req dto.CreateMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return invalidPayload()
		}
		input.Text = req.MessageText
		if input.SocketID == "" {
			input.SocketID = req.SocketID
		}
	}

	msg, err := h.service.Add(c.UserContext(), caller, id, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": events.NewMessagePayload(*msg)})
}

// ListMessages GET /tickets/:id/messages.
func (h *MessagesHandler) ListMessages(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "ticket")
	if err != nil {
		return err
	}
	msgs, err := h.service.List(c.UserContext(), caller, id)
	if err != nil {
		return err
	}
	items := make([]dto.MessageResponse, 0, len(msgs))
	for _, msg := range msgs {
		items = append(items, events.NewMessagePayload(msg))
	}
	return c.JSON(fiber.Map{"data": items})
}

// MarkAsRead PUT /tickets/:id/messages/read.
func (h *MessagesHandler) MarkAsRead(c *fiber.Ctx) error {
	caller, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "ticket")
	if err != nil {
		return err
	}
	changed, err := h.service.MarkAsRead(c.UserContext(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MarkReadResponse{Updated: changed}})
}

func formValue(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

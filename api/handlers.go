package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListConversations returns every conversation, most recently
// updated first.
func (s *Server) handleListConversations(c *fiber.Ctx) error {
	convs, err := s.driver.ListConversations(c.Context())
	if err != nil {
		s.logger.Error("failed to list conversations", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(conversation.ErrorResponse{Error: "failed to list conversations"})
	}

	return c.JSON(conversation.ListResponse{
		Count:         len(convs),
		Conversations: convs,
	})
}

// handleCreateConversation creates an empty conversation. The body is
// optional.
func (s *Server) handleCreateConversation(c *fiber.Ctx) error {
	var req conversation.CreateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(conversation.ErrorResponse{Error: "invalid request body"})
		}
	}

	conv := conversation.NewConversation(strings.TrimSpace(req.Title))
	if err := s.driver.CreateConversation(c.Context(), conv); err != nil {
		s.logger.Error("failed to create conversation", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(conversation.ErrorResponse{Error: "failed to create conversation"})
	}

	s.logger.Debug("conversation created", "conversation_id", conv.ID)
	return c.Status(fiber.StatusCreated).JSON(conv)
}

// handleMessages returns the persisted messages of a conversation, oldest first.
func (s *Server) handleMessages(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(conversation.ErrorResponse{Error: "id parameter required"})
	}

	if _, err := s.driver.GetConversation(c.Context(), id); err != nil {
		return s.conversationError(c, id, err)
	}

	msgs, err := s.driver.Messages(c.Context(), id)
	if err != nil {
		s.logger.Error("failed to load messages", "conversation_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(conversation.ErrorResponse{Error: "failed to load messages"})
	}

	return c.JSON(conversation.MessagesResponse{
		ConversationID: id,
		Messages:       msgs,
	})
}

// conversationError maps a GetConversation failure to a response.
func (s *Server) conversationError(c *fiber.Ctx, id string, err error) error {
	if storage.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).JSON(conversation.ErrorResponse{Error: "conversation not found"})
	}

	s.logger.Error("failed to load conversation", "conversation_id", id, "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(conversation.ErrorResponse{Error: "failed to load conversation"})
}

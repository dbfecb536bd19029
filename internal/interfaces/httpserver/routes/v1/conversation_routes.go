package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/interfaces/httpserver/handlers"
	"jan-server/services/chat-api/internal/interfaces/httpserver/requests"
	"jan-server/services/chat-api/internal/interfaces/httpserver/responses"
	"jan-server/services/chat-api/internal/utils/idgen"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

// RegisterConversationRoutes registers the conversation and message routes.
func RegisterConversationRoutes(router gin.IRoutes, handler *handlers.ConversationHandler) {
	router.POST("/conversations", createConversation(handler))
	router.GET("/conversations", listConversations(handler))
	router.GET("/conversations/unread", totalUnread(handler))
	router.GET("/conversations/:conversation_id", getConversation(handler))
	router.GET("/conversations/:conversation_id/messages", listMessages(handler))
	router.POST("/conversations/:conversation_id/messages", sendMessage(handler))
	router.POST("/conversations/:conversation_id/read", markRead(handler))
	router.POST("/conversations/:conversation_id/archive", archiveConversation(handler))
}

// createConversation godoc
// @Summary      Open a conversation
// @Description  Returns the existing conversation for the same participants and listing, or creates one.
// @Tags         Conversations API
// @Accept       json
// @Produce      json
// @Param        request body requests.CreateConversationRequest true "Participants and optional listing"
// @Success      200 {object} responses.ConversationResponse
// @Success      201 {object} responses.ConversationResponse
// @Failure      400 {object} responses.ErrorResponse
// @Failure      401 {object} responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/conversations [post]
func createConversation(handler *handlers.ConversationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var req requests.CreateConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid request body: "+err.Error())
			return
		}

		view, created, err := handler.CreateConversation(c.Request.Context(), userID, req)
		if err != nil {
			responses.HandleError(c, err, "failed to create conversation")
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, responses.ConversationResponse{Data: view, Created: created})
	}
}

// listConversations godoc
// @Summary      List conversations
// @Description  Lists the caller's conversations, most recent activity first, each with the caller's unread count.
// @Tags         Conversations API
// @Produce      json
// @Param        include_archived query bool false "Include archived conversations"
// @Param        limit query int false "Page size"
// @Param        offset query int false "Page offset"
// @Success      200 {object} responses.ConversationListResponse
// @Failure      401 {object} responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/conversations [get]
func listConversations(handler *handlers.ConversationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var query requests.ListConversationsQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid query: "+err.Error())
			return
		}

		views, err := handler.ListConversations(c.Request.Context(), userID, query)
		if err != nil {
			responses.HandleError(c, err, "failed to list conversations")
			return
		}

		c.JSON(http.StatusOK, responses.NewConversationListResponse(views,
			conversation.ConversationPageSize(query.Limit), max(query.Offset, 0)))
	}
}

// totalUnread godoc
// @Summary      Unread badge
// @Description  Total unread messages across the caller's active conversations.
// @Tags         Conversations API
// @Produce      json
// @Success      200 {object} responses.UnreadResponse
// @Failure      401 {object} responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/conversations/unread [get]
func totalUnread(handler *handlers.ConversationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		total, err := handler.TotalUnread(c.Request.Context(), userID)
		if err != nil {
			responses.HandleError(c, err, "failed to count unread messages")
			return
		}
		c.JSON(http.StatusOK, responses.UnreadResponse{UnreadCount: total})
	}
}

// getConversation godoc
// @Summary      Get a conversation
// @Tags         Conversations API
// @Produce      json
// @Param        conversation_id path string true "Conversation ID"
// @Success      200 {object} responses.ConversationResponse
// @Failure      403 {object} responses.ErrorResponse
// @Failure      404 {object} responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/conversations/{conversation_id} [get]
func getConversation(handler *handlers.ConversationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		view, err := handler.GetConversation(c.Request.Context(), userID, c.Param("conversation_id"))
		if err != nil {
			responses.HandleError(c, err, "failed to get conversation")
			return
		}
		c.JSON(http.StatusOK, responses.ConversationResponse{Data: view})
	}
}

// listMessages godoc
// @Summary      List messages
// @Description  Marks the caller's unread messages read, then returns a page of messages newest first.
// @Tags         Conversations API
// @Produce      json
// @Param        conversation_id path string true "Conversation ID"
// @Param        before query string false "Return messages older than this message id"
// @Param        limit query int false "Page size"
// @Success      200 {object} responses.MessageListResponse
// @Failure      403 {object} responses.ErrorResponse
// @Failure      404 {object} responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/conversations/{conversation_id}/messages [get]
func listMessages(handler *handlers.ConversationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var query requests.ListMessagesQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid query: "+err.Error())
			return
		}
		query.Before = strings.TrimSpace(query.Before)
		if query.Before != "" && !idgen.IsValidMessageID(query.Before) {
			responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "before must be a message id")
			return
		}

		views, err := handler.ListMessages(c.Request.Context(), userID, c.Param("conversation_id"), query)
		if err != nil {
			responses.HandleError(c, err, "failed to list messages")
			return
		}

		c.JSON(http.StatusOK, responses.NewMessageListResponse(views, conversation.MessagePageSize(query.Limit)))
	}
}

// sendMessage godoc
// @Summary      Send a message
// @Description  Persists a message, updates unread counters and pushes it to connected participants.
// @Tags         Conversations API
// @Accept       json
// @Produce      json
// @Param        conversation_id path string true "Conversation ID"
// @Param        request body requests.SendMessageRequest true "Message content"
// @Success      201 {object} responses.MessageResponse
// @Failure      400 {object} responses.ErrorResponse
// @Failure      403 {object} responses.ErrorResponse
// @Failure      404 {object} responses.ErrorResponse
// @Failure      503 {object} responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/conversations/{conversation_id}/messages [post]
func sendMessage(handler *handlers.ConversationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var req requests.SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid request body: "+err.Error())
			return
		}

		view, err := handler.SendMessage(c.Request.Context(), userID, c.Param("conversation_id"), req)
		if err != nil {
			responses.HandleError(c, err, "failed to send message")
			return
		}
		c.JSON(http.StatusCreated, responses.MessageResponse{Data: view, ClientID: req.ClientID})
	}
}

// markRead godoc
// @Summary      Mark a conversation read
// @Tags         Conversations API
// @Produce      json
// @Param        conversation_id path string true "Conversation ID"
// @Success      200 {object} responses.ReadReceiptResponse
// @Failure      403 {object} responses.ErrorResponse
// @Failure      404 {object} responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/conversations/{conversation_id}/read [post]
func markRead(handler *handlers.ConversationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		receipt, err := handler.MarkRead(c.Request.Context(), userID, c.Param("conversation_id"))
		if err != nil {
			responses.HandleError(c, err, "failed to mark conversation read")
			return
		}
		c.JSON(http.StatusOK, responses.ReadReceiptResponse{Data: receipt})
	}
}

// archiveConversation godoc
// @Summary      Archive a conversation
// @Description  Hides the conversation from listings until a new message arrives.
// @Tags         Conversations API
// @Produce      json
// @Param        conversation_id path string true "Conversation ID"
// @Success      200 {object} responses.StatusResponse
// @Failure      403 {object} responses.ErrorResponse
// @Failure      404 {object} responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/conversations/{conversation_id}/archive [post]
func archiveConversation(handler *handlers.ConversationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		id := c.Param("conversation_id")
		if err := handler.Archive(c.Request.Context(), userID, id); err != nil {
			responses.HandleError(c, err, "failed to archive conversation")
			return
		}
		c.JSON(http.StatusOK, responses.StatusResponse{ID: id, Status: "archived", UpdatedAt: time.Now().UTC()})
	}
}

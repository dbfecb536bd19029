package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"jan-server/services/chat-api/internal/interfaces/httpserver/handlers"
	"jan-server/services/chat-api/internal/interfaces/httpserver/requests"
	"jan-server/services/chat-api/internal/interfaces/httpserver/responses"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

// RegisterInboxRoutes registers the notification inbox routes.
func RegisterInboxRoutes(router gin.IRoutes, handler *handlers.InboxHandler) {
	router.GET("/inbox", listInbox(handler))
	router.POST("/inbox/:id/read", markInboxRead(handler))
}

// listInbox godoc
// @Summary      List inbox notifications
// @Tags         Inbox API
// @Produce      json
// @Param        unread_only query bool false "Only unread notifications"
// @Param        limit query int false "Page size"
// @Success      200 {object} responses.InboxListResponse
// @Failure      401 {object} responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/inbox [get]
func listInbox(handler *handlers.InboxHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var query requests.ListInboxQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid query: "+err.Error())
			return
		}

		items, err := handler.List(c.Request.Context(), userID, query)
		if err != nil {
			responses.HandleError(c, err, "failed to list inbox")
			return
		}
		c.JSON(http.StatusOK, responses.NewInboxListResponse(items))
	}
}

// markInboxRead godoc
// @Summary      Mark an inbox notification read
// @Tags         Inbox API
// @Produce      json
// @Param        id path string true "Notification ID"
// @Success      200 {object} responses.StatusResponse
// @Failure      404 {object} responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/inbox/{id}/read [post]
func markInboxRead(handler *handlers.InboxHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		id := c.Param("id")
		if err := handler.MarkRead(c.Request.Context(), userID, id); err != nil {
			responses.HandleError(c, err, "failed to mark notification read")
			return
		}
		c.JSON(http.StatusOK, responses.StatusResponse{ID: id, Status: "read", UpdatedAt: time.Now().UTC()})
	}
}

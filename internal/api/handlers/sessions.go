package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unifiedui/livechat-service/internal/api/dto"
	"github.com/unifiedui/livechat-service/internal/api/middleware"
	"github.com/unifiedui/livechat-service/internal/core/docdb"
	"github.com/unifiedui/livechat-service/internal/domain/errors"
	"github.com/unifiedui/livechat-service/internal/domain/models"
)

const (
	defaultRecentLimit  = 20
	defaultHistoryLimit = 50
)

// SessionReader reads live session state.
type SessionReader interface {
	Get(sessionID string) (models.Session, bool)
	Recent(sessionID string, n int) []models.Message
}

// TypingReader reads typing indicators.
type TypingReader interface {
	State(sessionID string, role models.Role) models.TypingState
}

// SessionTerminator destroys a live session.
type SessionTerminator interface {
	TerminateSession(sessionID string) bool
}

// SessionsHandlerConfig holds the dependencies of the sessions handler.
type SessionsHandlerConfig struct {
	Sessions    SessionReader
	Typing      TypingReader
	Terminator  SessionTerminator
	Archive     docdb.MessagesCollection // optional
	RecentLimit int
}

// SessionsHandler handles session-related endpoints.
type SessionsHandler struct {
	sessions    SessionReader
	typing      TypingReader
	terminator  SessionTerminator
	archive     docdb.MessagesCollection
	recentLimit int
}

// NewSessionsHandler creates a new SessionsHandler.
func NewSessionsHandler(cfg *SessionsHandlerConfig) *SessionsHandler {
	recentLimit := cfg.RecentLimit
	if recentLimit <= 0 {
		recentLimit = defaultRecentLimit
	}
	return &SessionsHandler{
		sessions:    cfg.Sessions,
		typing:      cfg.Typing,
		terminator:  cfg.Terminator,
		archive:     cfg.Archive,
		recentLimit: recentLimit,
	}
}

// GetSession handles GET /sessions/{sessionId}
// @Summary Get a live session
// @Description Returns the session snapshot, its most recent messages and typing indicators
// @Tags Sessions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} dto.SessionResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/chat/sessions/{sessionId} [get]
func (h *SessionsHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	session, ok := h.sessions.Get(sessionID)
	if !ok {
		middleware.HandleError(c, errors.NewNotFoundError("session", sessionID))
		return
	}

	recent := h.sessions.Recent(sessionID, h.recentLimit)
	if recent == nil {
		recent = []models.Message{}
	}

	c.JSON(http.StatusOK, dto.SessionResponse{
		Session:           session,
		RecentHistory:     recent,
		ParticipantTyping: h.typing.State(sessionID, models.RoleUser),
		AssistantTyping:   h.typing.State(sessionID, models.RoleAssistant),
	})
}

// DeleteSession handles DELETE /sessions/{sessionId}
// @Summary Terminate a session
// @Description Closes the session's connections and discards its in-memory log
// @Tags Sessions
// @Param sessionId path string true "Session ID"
// @Success 204 "Session terminated"
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/chat/sessions/{sessionId} [delete]
func (h *SessionsHandler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if !h.terminator.TerminateSession(sessionID) {
		middleware.HandleError(c, errors.NewNotFoundError("session", sessionID))
		return
	}

	c.Status(http.StatusNoContent)
}

// GetHistory handles GET /sessions/{sessionId}/history
// @Summary Get archived history
// @Description Retrieves archived messages of a session with pagination
// @Tags Sessions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param limit query int false "Maximum number of messages" default(50) minimum(1) maximum(200)
// @Param offset query int false "Offset for pagination" default(0) minimum(0)
// @Param order query string false "Sort order by timestamp" Enums(asc, desc) default(desc)
// @Success 200 {object} dto.GetHistoryResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /api/v1/chat/sessions/{sessionId}/history [get]
func (h *SessionsHandler) GetHistory(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("sessionId")

	if h.archive == nil {
		middleware.HandleError(c, errors.NewServiceUnavailableError("history archive", nil))
		return
	}

	var req dto.GetHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid query parameters", err.Error()))
		return
	}

	if req.Limit == 0 {
		req.Limit = defaultHistoryLimit
	}
	order := docdb.SortOrderDesc
	if req.Order == string(docdb.SortOrderAsc) {
		order = docdb.SortOrderAsc
	}

	messages, err := h.archive.ListBySession(ctx, &docdb.ListMessagesOptions{
		SessionID: sessionID,
		Limit:     req.Limit,
		Skip:      req.Offset,
		OrderBy:   order,
	})
	if err != nil {
		middleware.HandleError(c, errors.NewInternalError("failed to list messages", err))
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	total, err := h.archive.CountBySession(ctx, sessionID)
	if err != nil {
		middleware.HandleError(c, errors.NewInternalError("failed to count messages", err))
		return
	}

	c.JSON(http.StatusOK, dto.GetHistoryResponse{
		Messages: messages,
		Total:    total,
		Limit:    req.Limit,
		Offset:   req.Offset,
	})
}

// Chat HTTP handlers.
//
// This file exposes the operator-facing REST endpoints for conversations:
//   - POST /chat-out                    (send a message to a contact)
//   - GET  /sessions                    (list, paginated, recency-ordered)
//   - GET  /sessions/{id}/messages      (history, paginated, newest first)
//   - POST /sessions/{id}/read          (zero the unread counter)
//   - GET  /stream                      (SSE realtime feed)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. All operations are scoped to the
// authenticated user's organization.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
	"github.com/fluxleads/flux-leads-backend/internal/http/middleware"
	"github.com/fluxleads/flux-leads-backend/internal/realtime"
	"github.com/fluxleads/flux-leads-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// DispatchService defines outbound message delivery consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type DispatchService interface {
	// Send persists the operator's message and forwards it best-effort to
	// the organization's outbound webhook. A non-empty warning with a nil
	// error means saved-but-not-delivered.
	Send(ctx context.Context, orgID string, req services.SendRequest) (*domain.Message, string, error)
}

// SessionService defines conversation retrieval and state operations.
type SessionService interface {
	// ListSessions returns a page of the organization's sessions by recency.
	ListSessions(ctx context.Context, orgID string, page, pageSize int) ([]domain.ChatSession, int64, error)
	// ListPage returns a newest-first page of one session's messages.
	ListPage(ctx context.Context, orgID, sessionID string, page, pageSize int) ([]domain.Message, int64, error)
	// MarkRead zeroes the session's unread counter.
	MarkRead(ctx context.Context, orgID, sessionID string) error
}

//
// Handler wiring
//

// ChatHandlers groups the operator-facing conversation endpoints.
type ChatHandlers struct {
	dispatch DispatchService
	sessions SessionService
	hub      *realtime.Hub
}

// NewChat constructs the chat handlers bound to the given services.
func NewChat(dispatch DispatchService, sessions SessionService, hub *realtime.Hub) *ChatHandlers {
	return &ChatHandlers{dispatch: dispatch, sessions: sessions, hub: hub}
}

//
// DTOs
//

// SendMessageRequest is the JSON payload for sending an outbound message.
type SendMessageRequest struct {
	SessionID        string   `json:"session_id" binding:"required"`
	Content          string   `json:"content"`
	MediaURL         string   `json:"media_url"`
	MessageType      string   `json:"message_type"`
	ReplyToMessageID string   `json:"reply_to_message_id"`
	Mentions         []string `json:"mentions"`
}

// SendMessageResponse wraps the persisted message and the delivery warning.
type SendMessageResponse struct {
	OK      bool            `json:"ok"`
	Message *domain.Message `json:"message"`
	// Warning is non-empty when the message was saved but external delivery
	// did not (confirmably) happen.
	Warning string `json:"warning,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListSessionsResponse wraps a page of sessions and pagination information.
type ListSessionsResponse struct {
	Sessions   []domain.ChatSession `json:"sessions"`
	Pagination Pagination           `json:"pagination"`
}

// ListMessagesResponse wraps a newest-first page of messages.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 50
		maxPageSize     = 100
	)
	page = atoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = atoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// atoiDefault parses a query parameter as an int, falling back to def when
// the value is absent or not a number.
func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func paginationFor(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send an outbound message
// @Description Persists the message immediately and forwards it best-effort to the organization's outbound webhook. Delivery problems surface as a warning, not an error.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SendMessageRequest  true  "Message payload"
//
// @Success     200  {object}  handlers.SendMessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Empty message or invalid body"
// @Failure     404  {object}  handlers.ErrorResponse  "Session or reply target not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Persistence error"
// @Router      /chat-out [post]
func (h *ChatHandlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	req.Content = strings.TrimSpace(req.Content)

	msg, warning, err := h.dispatch.Send(c.Request.Context(), middleware.OrgID(c), services.SendRequest{
		SessionID:        req.SessionID,
		Content:          req.Content,
		MediaURL:         strings.TrimSpace(req.MediaURL),
		MessageType:      req.MessageType,
		ReplyToMessageID: req.ReplyToMessageID,
		Mentions:         req.Mentions,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content or media_url required")
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		case errors.Is(err, services.ErrMessageNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "reply target message not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, SendMessageResponse{OK: true, Message: msg, Warning: warning})
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List chat sessions (paginated)
// @Description Returns the organization's sessions ordered by most recent activity.
// @Tags        Chat
// @Produce     json
//
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(50)
//
// @Success     200  {object}  handlers.ListSessionsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions [get]
func (h *ChatHandlers) ListSessions(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.sessions.ListSessions(c.Request.Context(), middleware.OrgID(c), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions:   items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List a session's messages (paginated, newest first)
// @Description Returns one page of the session's history ordered newest first. Clients render pages in reverse to build the chronological view.
// @Tags        Chat
// @Produce     json
//
// @Param       id         path   string  true   "Session ID"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(50)
//
// @Success     200  {object}  handlers.ListMessagesResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/messages [get]
func (h *ChatHandlers) ListMessages(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.sessions.ListPage(c.Request.Context(), middleware.OrgID(c), c.Param("id"), page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// MarkRead godoc
// @ID          markSessionRead
// @Summary     Mark a session as read
// @Description Zeroes the session's unread counter.
// @Tags        Chat
// @Produce     json
//
// @Param       id  path  string  true  "Session ID"
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/read [post]
func (h *ChatHandlers) MarkRead(c *gin.Context) {
	err := h.sessions.MarkRead(c.Request.Context(), middleware.OrgID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, err.Error())
		return
	}
	noContent(c)
}

// streamEvent is the SSE payload shape: the session the message belongs to
// plus the full message row, so clients can merge without a refetch.
type streamEvent struct {
	SessionID string         `json:"session_id"`
	Message   domain.Message `json:"message"`
}

// Stream godoc
// @ID          streamEvents
// @Summary     Realtime message feed (SSE)
// @Description Streams the organization's message inserts as Server-Sent Events (event: message). The connection stays open until the client disconnects.
// @Tags        Chat
// @Produce     text/event-stream
//
// @Success     200  {string}  string  "SSE stream"
// @Router      /stream [get]
func (h *ChatHandlers) Stream(c *gin.Context) {
	orgID := middleware.OrgID(c)
	events, cancel := h.hub.Subscribe(orgID)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, okCh := <-events:
			if !okCh {
				return false
			}
			payload, err := json.Marshal(streamEvent{
				SessionID: ev.SessionID,
				Message:   ev.Message,
			})
			if err != nil {
				return true
			}
			c.SSEvent("message", string(payload))
			return true
		}
	})
}

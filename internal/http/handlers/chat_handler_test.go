package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
	"github.com/fluxleads/flux-leads-backend/internal/realtime"
	"github.com/fluxleads/flux-leads-backend/internal/services"
)

type stubDispatch struct {
	msg     *domain.Message
	warning string
	err     error

	gotOrgID string
	gotReq   services.SendRequest
}

func (s *stubDispatch) Send(_ context.Context, orgID string, req services.SendRequest) (*domain.Message, string, error) {
	s.gotOrgID = orgID
	s.gotReq = req
	return s.msg, s.warning, s.err
}

type stubSessions struct {
	sessions []domain.ChatSession
	messages []domain.Message
	total    int64
	listErr  error
	readErr  error

	gotSessionID string
	gotPage      int
	gotPageSize  int
}

func (s *stubSessions) ListSessions(_ context.Context, _ string, page, pageSize int) ([]domain.ChatSession, int64, error) {
	s.gotPage, s.gotPageSize = page, pageSize
	return s.sessions, s.total, s.listErr
}

func (s *stubSessions) ListPage(_ context.Context, _, sessionID string, page, pageSize int) ([]domain.Message, int64, error) {
	s.gotSessionID, s.gotPage, s.gotPageSize = sessionID, page, pageSize
	return s.messages, s.total, s.listErr
}

func (s *stubSessions) MarkRead(_ context.Context, _, sessionID string) error {
	s.gotSessionID = sessionID
	return s.readErr
}

// newChatRouter wires the chat handlers behind a fake auth layer that plants
// the organization ID the way the token middleware does.
func newChatRouter(dispatch *stubDispatch, sessions *stubSessions, hub *realtime.Hub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("orgID", "org-1")
		c.Set("userID", "user-1")
	})
	h := NewChat(dispatch, sessions, hub)
	r.POST("/chat-out", h.SendMessage)
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:id/messages", h.ListMessages)
	r.POST("/sessions/:id/read", h.MarkRead)
	r.GET("/stream", h.Stream)
	return r
}

func TestSendMessage_SuccessWithWarningPassthrough(t *testing.T) {
	dispatch := &stubDispatch{
		msg:     &domain.Message{ID: "m1", SessionID: "s1", Direction: domain.DirectionOutbound, Content: "hello"},
		warning: services.WarnNoEndpoint,
	}
	r := newChatRouter(dispatch, &stubSessions{}, nil)

	body := `{"session_id":"s1","content":"  hello  ","mentions":["5511"]}`
	req := httptest.NewRequest(http.MethodPost, "/chat-out", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if dispatch.gotOrgID != "org-1" {
		t.Fatalf("orgID = %q", dispatch.gotOrgID)
	}
	if dispatch.gotReq.Content != "hello" {
		t.Fatalf("content not trimmed: %q", dispatch.gotReq.Content)
	}

	var resp SendMessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.OK || resp.Message.ID != "m1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Warning != services.WarnNoEndpoint {
		t.Fatalf("warning = %q", resp.Warning)
	}
}

func TestSendMessage_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"missing session_id", `{"content":"x"}`, nil, http.StatusBadRequest},
		{"invalid json", `{"session_id":`, nil, http.StatusBadRequest},
		{"empty message", `{"session_id":"s1"}`, services.ErrEmptyMessage, http.StatusBadRequest},
		{"session missing", `{"session_id":"s1","content":"x"}`, services.ErrSessionNotFound, http.StatusNotFound},
		{"reply target missing", `{"session_id":"s1","content":"x"}`, services.ErrMessageNotFound, http.StatusNotFound},
		{"internal", `{"session_id":"s1","content":"x"}`, context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newChatRouter(&stubDispatch{err: tc.err}, &stubSessions{}, nil)
			req := httptest.NewRequest(http.MethodPost, "/chat-out", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d; want %d (%s)", w.Code, tc.wantStatus, w.Body.String())
			}
		})
	}
}

func TestListSessions_PaginationEnvelope(t *testing.T) {
	sessions := &stubSessions{
		sessions: []domain.ChatSession{{ID: "s1"}, {ID: "s2"}},
		total:    12,
	}
	r := newChatRouter(&stubDispatch{}, sessions, nil)

	req := httptest.NewRequest(http.MethodGet, "/sessions?page=2&page_size=5", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if sessions.gotPage != 2 || sessions.gotPageSize != 5 {
		t.Fatalf("pagination passed as (%d, %d)", sessions.gotPage, sessions.gotPageSize)
	}
	var resp ListSessionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	p := resp.Pagination
	if p.Page != 2 || p.PageSize != 5 || p.Total != 12 || p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("pagination envelope: %+v", p)
	}
}

func TestListSessions_ClampsPagination(t *testing.T) {
	sessions := &stubSessions{}
	r := newChatRouter(&stubDispatch{}, sessions, nil)

	req := httptest.NewRequest(http.MethodGet, "/sessions?page=-3&page_size=9999", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if sessions.gotPage != 1 || sessions.gotPageSize != 100 {
		t.Fatalf("clamped to (%d, %d); want (1, 100)", sessions.gotPage, sessions.gotPageSize)
	}
}

func Test_atoiDefault(t *testing.T) {
	cases := []struct {
		in   string
		def  int
		want int
	}{
		{"42", 1, 42},
		{"-3", 1, -3},
		{"", 50, 50},
		{"abc", 50, 50},
		{"3.5", 50, 50},
	}
	for _, tc := range cases {
		if got := atoiDefault(tc.in, tc.def); got != tc.want {
			t.Fatalf("atoiDefault(%q, %d) = %d; want %d", tc.in, tc.def, got, tc.want)
		}
	}
}

func TestListMessages(t *testing.T) {
	sessions := &stubSessions{
		messages: []domain.Message{{ID: "m2"}, {ID: "m1"}},
		total:    2,
	}
	r := newChatRouter(&stubDispatch{}, sessions, nil)

	req := httptest.NewRequest(http.MethodGet, "/sessions/s1/messages", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if sessions.gotSessionID != "s1" {
		t.Fatalf("sessionID = %q", sessions.gotSessionID)
	}
	var resp ListMessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].ID != "m2" {
		t.Fatalf("messages: %+v", resp.Messages)
	}
}

func TestListMessages_SessionNotFound(t *testing.T) {
	r := newChatRouter(&stubDispatch{}, &stubSessions{listErr: services.ErrSessionNotFound}, nil)

	req := httptest.NewRequest(http.MethodGet, "/sessions/missing/messages", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", w.Code)
	}
}

func TestMarkRead(t *testing.T) {
	sessions := &stubSessions{}
	r := newChatRouter(&stubDispatch{}, sessions, nil)

	req := httptest.NewRequest(http.MethodPost, "/sessions/s1/read", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d; want 204", w.Code)
	}
	if sessions.gotSessionID != "s1" {
		t.Fatalf("sessionID = %q", sessions.gotSessionID)
	}

	sessions.readErr = services.ErrSessionNotFound
	req = httptest.NewRequest(http.MethodPost, "/sessions/missing/read", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing session: status = %d; want 404", w.Code)
	}
}

// sseRecorder adds the CloseNotifier contract gin's Stream helper expects
// from the underlying writer.
type sseRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *sseRecorder) CloseNotify() <-chan bool { return r.closed }

func TestStream_DeliversEventAndStopsOnClose(t *testing.T) {
	hub := realtime.NewHub()
	r := newChatRouter(&stubDispatch{}, &stubSessions{}, hub)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)
	w := &sseRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(w, req)
	}()

	// Let the subscription register, publish one event, then disconnect.
	deadline := time.After(2 * time.Second)
	for hub.SubscriberCount("org-1") == 0 {
		select {
		case <-deadline:
			t.Fatal("stream never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	hub.Publish(realtime.Event{
		OrganizationID: "org-1",
		SessionID:      "s1",
		Message:        domain.Message{ID: "m1", Content: "oi"},
	})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate on disconnect")
	}

	body := w.Body.String()
	if !strings.Contains(body, "event:message") && !strings.Contains(body, "event: message") {
		t.Fatalf("no SSE message event in body: %q", body)
	}
	if !strings.Contains(body, `\"m1\"`) && !strings.Contains(body, `"m1"`) {
		t.Fatalf("event payload missing message: %q", body)
	}
	if got := w.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Fatalf("Content-Type = %q", got)
	}
}

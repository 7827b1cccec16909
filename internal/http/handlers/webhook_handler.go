// Webhook ingestion HTTP handler.
//
// This file exposes the single inbound endpoint providers (WhatsApp bridges,
// web forms, n8n flows) POST into:
//   - POST /webhook-in/{source_id}
//
// The handler is transport-thin: it authenticates the source by shared
// secret, hands the raw body to the ingest pipeline, and translates the
// outcome into HTTP. Re-deliveries of an already-processed event return 200
// with the original result IDs and duplicate=true, so providers that retry
// on anything but 2xx settle down.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
	"github.com/fluxleads/flux-leads-backend/internal/http/middleware"
	"github.com/fluxleads/flux-leads-backend/internal/services"
)

// maxWebhookBody bounds the accepted payload size. WhatsApp events with a
// quoted message and media metadata stay well under this.
const maxWebhookBody = 1 << 20 // 1 MiB

// IngestService defines the pipeline operations the webhook handler consumes.
//
// Implementations must be safe for concurrent use and honor the provided
// context for cancellation and timeouts.
type IngestService interface {
	// AuthenticateSource verifies the per-source shared secret.
	AuthenticateSource(ctx context.Context, sourceID, secret string) (*domain.InboundSource, error)
	// Process runs the ingest pipeline on one raw payload.
	Process(ctx context.Context, src *domain.InboundSource, body []byte) (*services.Result, error)
}

// WebhookHandlers groups the ingestion endpoints.
type WebhookHandlers struct {
	ingest IngestService
}

// NewWebhook constructs the webhook handlers bound to the ingest pipeline.
func NewWebhook(ingest IngestService) *WebhookHandlers {
	return &WebhookHandlers{ingest: ingest}
}

// IngestResponse is the JSON body returned for accepted webhook deliveries.
type IngestResponse struct {
	OK        bool   `json:"ok"`
	ContactID string `json:"contact_id,omitempty"`
	DealID    string `json:"deal_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// webhookSecret extracts the presented secret: X-Webhook-Secret preferred,
// Authorization: Bearer accepted for providers that only support auth headers.
func webhookSecret(c *gin.Context) string {
	if s := strings.TrimSpace(c.GetHeader("X-Webhook-Secret")); s != "" {
		return s
	}
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// Ingest godoc
// @ID          ingestWebhook
// @Summary     Ingest an inbound event
// @Description Accepts a raw provider payload for the given inbound source, normalizes it, and runs the lead/chat pipeline. Re-delivery of a processed event returns the original result with duplicate=true.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       source_id         path    string  true  "Inbound source ID"
// @Param       X-Webhook-Secret  header  string  true  "Per-source shared secret"
//
// @Success     200  {object}  handlers.IngestResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed or identity-free payload"
// @Failure     401  {object}  handlers.ErrorResponse  "Secret mismatch"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown or inactive source"
// @Failure     500  {object}  handlers.ErrorResponse  "Pipeline error"
// @Router      /webhook-in/{source_id} [post]
func (h *WebhookHandlers) Ingest(c *gin.Context) {
	ctx := c.Request.Context()
	sourceID := c.Param("source_id")

	src, err := h.ingest.AuthenticateSource(ctx, sourceID, webhookSecret(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSourceNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown inbound source")
		case errors.Is(err, services.ErrSecretMismatch):
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid webhook secret")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	middleware.SetSourceID(c, src.ID)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable request body")
		return
	}
	if len(body) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "empty request body")
		return
	}
	if len(body) > maxWebhookBody {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "payload too large")
		return
	}

	res, err := h.ingest.Process(ctx, src, body)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoIdentity):
			fail(c, http.StatusBadRequest, ErrCodeMissingIdentity,
				"payload carries no contact identity (email, phone, or chat JID)")
		case isPayloadError(err):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed JSON payload")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeIngestFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, IngestResponse{
		OK:        true,
		ContactID: res.ContactID,
		DealID:    res.DealID,
		SessionID: res.SessionID,
		MessageID: res.MessageID,
		Duplicate: res.Duplicate,
	})
}

// isPayloadError reports whether err came from JSON decoding of the provider
// payload rather than from the pipeline itself.
func isPayloadError(err error) bool {
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	return errors.As(err, &syn) || errors.As(err, &typ) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

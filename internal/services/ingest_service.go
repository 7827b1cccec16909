// Package services – IngestService
//
// This file implements the inbound pipeline orchestrator. One webhook call
// runs, in order: source authentication, ledger append (true idempotency via
// the (source_id, external_event_id) unique constraint), payload
// normalization, contact/company resolution, deal upsert, chat routing, echo
// dedup, session/message persistence, and finally recording the result IDs
// on the ledger row.
//
// There is no transaction spanning the whole pipeline: each stage's writes
// commit independently, so a failure mid-way leaves earlier rows in place.
// A retry is safe because every stage is find-before-create (or constraint
// backed) and converges on the same rows.
package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
	"github.com/fluxleads/flux-leads-backend/internal/ingest"
	"github.com/fluxleads/flux-leads-backend/internal/repo"
)

// Result is what one webhook delivery produced (or, for duplicates, what the
// first delivery produced).
type Result struct {
	ContactID string `json:"contact_id,omitempty"`
	DealID    string `json:"deal_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	// Duplicate is true when the provider re-delivered an event the
	// pipeline had already processed; the IDs above come from the ledger.
	Duplicate bool `json:"duplicate,omitempty"`
}

// IngestService orchestrates the inbound pipeline.
type IngestService struct {
	DB       *gorm.DB
	Resolver *ContactResolver
	Deals    *DealService
	Router   *ChatRouter
	Messages *MessageService

	// sources caches authenticated inbound sources so webhook bursts do
	// not re-read configuration per request.
	sources *gocache.Cache
}

// NewIngestService wires the pipeline stages together. sourceTTL bounds how
// stale a cached inbound source may be; 0 disables caching.
func NewIngestService(db *gorm.DB, resolver *ContactResolver, deals *DealService, router *ChatRouter, messages *MessageService, sourceTTL time.Duration) *IngestService {
	var sources *gocache.Cache
	if sourceTTL > 0 {
		sources = gocache.New(sourceTTL, 2*sourceTTL)
	}
	return &IngestService{
		DB:       db,
		Resolver: resolver,
		Deals:    deals,
		Router:   router,
		Messages: messages,
		sources:  sources,
	}
}

// AuthenticateSource loads the inbound source and verifies the presented
// secret. Unknown and inactive sources both yield ErrSourceNotFound; a wrong
// secret yields ErrSecretMismatch. Secrets are compared in constant time.
func (s *IngestService) AuthenticateSource(ctx context.Context, sourceID, secret string) (*domain.InboundSource, error) {
	src, err := s.lookupSource(ctx, sourceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSourceNotFound
		}
		return nil, err
	}
	if !src.Active {
		return nil, ErrSourceNotFound
	}
	if subtle.ConstantTimeCompare([]byte(src.Secret), []byte(secret)) != 1 {
		return nil, ErrSecretMismatch
	}
	return src, nil
}

func (s *IngestService) lookupSource(ctx context.Context, sourceID string) (*domain.InboundSource, error) {
	if s.sources != nil {
		if v, ok := s.sources.Get(sourceID); ok {
			return v.(*domain.InboundSource), nil
		}
	}
	src, err := repo.GetInboundSource(ctx, s.DB, sourceID)
	if err != nil {
		return nil, err
	}
	if s.sources != nil {
		s.sources.SetDefault(sourceID, src)
	}
	return src, nil
}

// Process runs the pipeline for one authenticated webhook delivery. body is
// the raw JSON payload. Re-delivery of an event the ledger has marked
// processed returns the original result with Duplicate set and runs nothing;
// re-delivery of an event whose first run never completed re-runs the
// pipeline against the existing ledger row.
func (s *IngestService) Process(ctx context.Context, src *domain.InboundSource, body []byte) (*Result, error) {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "Process",
		trace.WithAttributes(attribute.String("source.id", src.ID)),
	)
	defer span.End()

	lead, err := ingest.Parse(body)
	if err != nil {
		return nil, err
	}
	if !lead.HasIdentity() {
		return nil, ErrNoIdentity
	}

	event, err := repo.CreateWebhookEvent(ctx, s.DB, src.ID, src.OrganizationID, lead.ExternalEventID, body)
	if errors.Is(err, repo.ErrDuplicateEvent) {
		prior, gerr := repo.GetWebhookEvent(ctx, s.DB, src.ID, lead.ExternalEventID)
		if gerr != nil {
			return nil, gerr
		}
		if prior.Status != domain.EventStatusProcessed {
			// The first run died mid-pipeline. Every stage is
			// find-before-create or constraint backed, so a re-run
			// converges on the same rows instead of duplicating them.
			log.Info().
				Str("source_id", src.ID).
				Str("external_event_id", lead.ExternalEventID).
				Str("prior_status", prior.Status).
				Msg("re-delivery of unfinished webhook event, re-running pipeline")
			return s.runAndRecord(ctx, src, lead, prior)
		}
		log.Info().
			Str("source_id", src.ID).
			Str("external_event_id", lead.ExternalEventID).
			Msg("duplicate webhook event, answering with original result")
		return &Result{
			ContactID: prior.ContactID,
			DealID:    prior.DealID,
			SessionID: prior.SessionID,
			MessageID: prior.MessageID,
			Duplicate: true,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.runAndRecord(ctx, src, lead, event)
}

// runAndRecord executes the pipeline stages and records the outcome on the
// given ledger row.
func (s *IngestService) runAndRecord(ctx context.Context, src *domain.InboundSource, lead *ingest.Lead, event *domain.WebhookEvent) (*Result, error) {
	res, perr := s.run(ctx, src, lead)
	if perr != nil {
		if merr := repo.MarkWebhookEventFailed(ctx, s.DB, event.ID, perr); merr != nil {
			log.Error().Err(merr).Str("event_id", event.ID).Msg("failed to mark webhook event failed")
		}
		return nil, perr
	}
	if merr := repo.MarkWebhookEventProcessed(ctx, s.DB, event.ID, res.ContactID, res.DealID, res.SessionID, res.MessageID); merr != nil {
		log.Error().Err(merr).Str("event_id", event.ID).Msg("failed to mark webhook event processed")
	}
	return res, nil
}

// run executes the pipeline stages for a fresh (non-duplicate) event.
func (s *IngestService) run(ctx context.Context, src *domain.InboundSource, lead *ingest.Lead) (*Result, error) {
	res := &Result{}

	contact, company, err := s.Resolver.Resolve(ctx, src.OrganizationID, lead)
	if err != nil {
		return nil, err
	}
	if contact != nil {
		res.ContactID = contact.ID
	}

	// Deals are upserted for lead-style payloads: anything carrying deal
	// fields, or a directly identified (email/phone) contact that is not a
	// group conversation. Pure chat traffic does not open pipeline cards.
	if contact != nil && !lead.IsGroup && !lead.IsFromMe &&
		(lead.DealTitle != "" || lead.DealValue != nil || !lead.HasMessage()) {
		deal, err := s.Deals.Upsert(ctx, src, contact, company, lead)
		if err != nil {
			return nil, err
		}
		res.DealID = deal.ID
	}

	if !lead.HasMessage() {
		return res, nil
	}

	routing, err := s.Router.Route(ctx, src.OrganizationID, lead, contact)
	if err != nil {
		return nil, err
	}
	if res.ContactID == "" && routing.Contact != nil {
		res.ContactID = routing.Contact.ID
	}

	persisted, err := s.Messages.Persist(ctx, src.OrganizationID, routing, lead)
	if err != nil {
		return nil, err
	}
	res.SessionID = persisted.Session.ID
	res.MessageID = persisted.Message.ID
	return res, nil
}

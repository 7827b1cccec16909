// Package services – ChatRouter
//
// This file implements the chat routing resolver: the stage that decides
// which contact a message's chat session belongs to and in which direction
// the message flows.
//
// Three cases are distinguished per inbound message:
//
//   - Group message: the session belongs to the group's own contact (source
//     'whatsapp_group'), never to the individual sender. The group may have
//     been recorded under its full JID or its bare numeric ID, so both
//     candidates are matched and the one already owning a chat session wins,
//     to avoid splitting history across two contact rows.
//   - Individual, from-me: the operator replied from their own phone outside
//     this system. The payload's generic contact fields are ambiguous here,
//     so the contact is keyed by the recipient's JID instead.
//   - Individual, inbound: the contact resolved from email/phone is used
//     directly; JID-only payloads resolve or create a contact by phone.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/fluxleads/flux-leads-backend/internal/domain"
	"github.com/fluxleads/flux-leads-backend/internal/ingest"
	"github.com/fluxleads/flux-leads-backend/internal/repo"
)

// Routing is the chat router's decision for one message.
type Routing struct {
	// Contact owns the chat session the message attaches to. For group
	// messages this is the group's contact, not the sender's.
	Contact *domain.Contact
	// Direction is inbound unless the provider marked the message from-me.
	Direction string
	// Content is the message text, prefixed with the sending participant's
	// display name for group messages not authored by the operator.
	Content string
	// ProviderID is the conversation identifier to record on a session
	// created for this message.
	ProviderID string
}

// ChatRouter resolves the chat contact and direction for inbound messages.
type ChatRouter struct {
	DB *gorm.DB
}

// Route decides the session owner, direction, and content for the message
// carried by lead. resolved is the contact produced by the contact resolver
// (may be nil for JID-only payloads). If a group contact cannot be resolved
// or created, Route degrades to the resolver's contact rather than failing
// the whole pipeline.
func (r *ChatRouter) Route(ctx context.Context, orgID string, lead *ingest.Lead, resolved *domain.Contact) (*Routing, error) {
	direction := domain.DirectionInbound
	if lead.IsFromMe {
		direction = domain.DirectionOutbound
	}

	if lead.IsGroup {
		return r.routeGroup(ctx, orgID, lead, resolved, direction)
	}
	if lead.IsFromMe {
		return r.routeFromMe(ctx, orgID, lead, resolved)
	}

	routing := &Routing{
		Contact:    resolved,
		Direction:  direction,
		Content:    lead.Content,
		ProviderID: lead.RemoteJID,
	}
	if routing.Contact == nil && lead.RemoteJID != "" {
		c, err := r.findOrCreateByPhone(ctx, orgID, bareJID(lead.RemoteJID), lead.PushName)
		if err != nil {
			return nil, err
		}
		routing.Contact = c
	}
	if routing.Contact == nil {
		return nil, ErrNoIdentity
	}
	return routing, nil
}

// routeGroup attaches the message to the group's own contact.
func (r *ChatRouter) routeGroup(ctx context.Context, orgID string, lead *ingest.Lead, resolved *domain.Contact, direction string) (*Routing, error) {
	groupJID := lead.GroupID
	if groupJID == "" {
		groupJID = lead.RemoteJID
	}

	content := lead.Content
	if !lead.IsFromMe {
		if name := participantDisplayName(lead); name != "" {
			content = fmt.Sprintf("*%s*: %s", name, lead.Content)
		}
	}

	groupContact, err := r.resolveGroupContact(ctx, orgID, groupJID)
	if err != nil {
		// Degraded but non-fatal: fall back to whatever the resolver found.
		if resolved != nil {
			return &Routing{Contact: resolved, Direction: direction, Content: content, ProviderID: groupJID}, nil
		}
		return nil, err
	}
	return &Routing{Contact: groupContact, Direction: direction, Content: content, ProviderID: groupJID}, nil
}

// resolveGroupContact matches candidate phone representations of the group
// identifier against existing contacts, preferring whichever candidate
// already owns a chat session, and auto-creates the group contact when none
// exists.
func (r *ChatRouter) resolveGroupContact(ctx context.Context, orgID, groupJID string) (*domain.Contact, error) {
	if groupJID == "" {
		return nil, ErrNoIdentity
	}
	candidates := phoneCandidates(groupJID)

	found, err := repo.FindContactsByPhones(ctx, r.DB, orgID, candidates)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		// Prefer the contact that already owns a session so history stays
		// in one thread.
		for i := range found {
			if _, err := repo.GetSessionByContact(ctx, r.DB, orgID, found[i].ID); err == nil {
				return &found[i], nil
			}
		}
		// None has a session yet: respect candidate order (full JID first).
		for _, cand := range candidates {
			for i := range found {
				if found[i].Phone != nil && *found[i].Phone == cand {
					return &found[i], nil
				}
			}
		}
		return &found[0], nil
	}

	phone := groupJID
	c := &domain.Contact{
		OrganizationID: orgID,
		Name:           "WhatsApp Group " + bareJID(groupJID),
		Phone:          &phone,
		Source:         domain.SourceWhatsAppGroup,
	}
	return repo.CreateContact(ctx, r.DB, c)
}

// routeFromMe handles operator replies sent from the operator's own phone:
// the contact is keyed by the recipient's JID, not the payload's generic
// sender fields.
func (r *ChatRouter) routeFromMe(ctx context.Context, orgID string, lead *ingest.Lead, resolved *domain.Contact) (*Routing, error) {
	phone := bareJID(lead.RemoteJID)
	if phone == "" {
		if resolved == nil {
			return nil, ErrNoIdentity
		}
		return &Routing{Contact: resolved, Direction: domain.DirectionOutbound, Content: lead.Content}, nil
	}
	c, err := r.findOrCreateByPhone(ctx, orgID, phone, "")
	if err != nil {
		return nil, err
	}
	return &Routing{Contact: c, Direction: domain.DirectionOutbound, Content: lead.Content, ProviderID: lead.RemoteJID}, nil
}

func (r *ChatRouter) findOrCreateByPhone(ctx context.Context, orgID, phone, name string) (*domain.Contact, error) {
	c, err := repo.FindContactByPhone(ctx, r.DB, orgID, phone)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if name == "" {
		name = phone
	}
	p := phone
	return repo.CreateContact(ctx, r.DB, &domain.Contact{
		OrganizationID: orgID,
		Name:           name,
		Phone:          &p,
		Source:         domain.SourceWhatsApp,
	})
}

// participantDisplayName names the sending group participant for the content
// prefix: push name when present, otherwise the bare participant number.
func participantDisplayName(lead *ingest.Lead) string {
	if lead.PushName != "" {
		return lead.PushName
	}
	return bareJID(lead.Participant)
}

// phoneCandidates lists the representations a conversation identifier may
// have been stored under: the full JID and the bare numeric ID.
func phoneCandidates(jid string) []string {
	bare := bareJID(jid)
	if bare == "" || bare == jid {
		return []string{jid}
	}
	return []string{jid, bare}
}

// bareJID strips the WhatsApp server suffix ("@s.whatsapp.net", "@g.us")
// from a JID, leaving the numeric identifier.
func bareJID(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}

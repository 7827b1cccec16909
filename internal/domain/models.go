// Package domain defines the persistence models for the Flux Leads backend:
// tenant-scoped contacts, companies, deals, chat sessions, and chat messages.
// These types are mapped with GORM and form the core data layer shared by the
// repository and service packages.
//
// Every row carries an OrganizationID. The organization is the tenant
// boundary: no query in the repository layer may cross it.
package domain

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Message direction values.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message status values.
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Contact source values with special meaning to the ingestion pipeline.
const (
	// SourceWhatsAppGroup marks a contact row that represents a WhatsApp
	// group conversation rather than a person. Its Phone holds the group
	// identifier (JID or bare numeric ID).
	SourceWhatsAppGroup = "whatsapp_group"

	// SourceWhatsApp marks a contact auto-created from an individual
	// WhatsApp conversation.
	SourceWhatsApp = "whatsapp"
)

// Contact is a person (or WhatsApp group, see SourceWhatsAppGroup) known to
// one organization. Email and Phone are pointers so that absent values are
// stored as NULL: the unique index on (organization_id, phone) must not
// collide for contacts that have no phone at all.
//
// Matching is best-effort: the resolver looks up by exact email OR phone
// within the organization, first match wins. Duplicates are possible when
// neither field matches an existing row.
type Contact struct {
	ID              string         `json:"id"                gorm:"type:char(36);primaryKey"`
	OrganizationID  string         `json:"organization_id"   gorm:"type:char(36);not null;index:idx_org_contacts;uniqueIndex:ux_org_phone,priority:1"`
	Name            string         `json:"name"              gorm:"type:varchar(255);not null"`
	Email           *string        `json:"email,omitempty"   gorm:"type:varchar(255);index"`
	Phone           *string        `json:"phone,omitempty"   gorm:"type:varchar(64);uniqueIndex:ux_org_phone,priority:2"`
	Source          string         `json:"source"            gorm:"type:varchar(64);not null;default:'webhook'"`
	ClientCompanyID *string        `json:"client_company_id,omitempty" gorm:"type:char(36);index"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-"                 gorm:"index"`
}

// TableName returns the database table name for Contact.
func (Contact) TableName() string { return "contacts" }

// Company is a client company, looked up by exact name match within the
// organization and created when absent.
type Company struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	OrganizationID string         `json:"organization_id" gorm:"type:char(36);not null;index:idx_org_companies"`
	Name           string         `json:"name"            gorm:"type:varchar(255);not null"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`
}

// TableName returns the database table name for Company.
func (Company) TableName() string { return "companies" }

// Deal is a pipeline card. One open deal (IsWon=false AND IsLost=false) per
// (organization, board, contact) is treated as canonical: re-ingestion of the
// same lead updates it in place instead of creating a second one, and never
// moves its stage backward.
type Deal struct {
	ID              string            `json:"id"               gorm:"type:char(36);primaryKey"`
	OrganizationID  string            `json:"organization_id"  gorm:"type:char(36);not null;index:idx_org_deals"`
	BoardID         string            `json:"board_id"         gorm:"type:char(36);not null;index:idx_board_deals,priority:1"`
	StageID         string            `json:"stage_id"         gorm:"type:char(36);not null"`
	ContactID       string            `json:"contact_id"       gorm:"type:char(36);not null;index:idx_board_deals,priority:2"`
	ClientCompanyID *string           `json:"client_company_id,omitempty" gorm:"type:char(36)"`
	Title           string            `json:"title"            gorm:"type:varchar(255);not null"`
	Value           float64           `json:"value"            gorm:"not null;default:0"`
	Probability     int               `json:"probability"      gorm:"not null;default:50"`
	Priority        string            `json:"priority"         gorm:"type:varchar(16);not null;default:'medium'"`
	IsWon           bool              `json:"is_won"           gorm:"not null;default:false"`
	IsLost          bool              `json:"is_lost"          gorm:"not null;default:false"`
	CustomFields    datatypes.JSONMap `json:"custom_fields"    gorm:"type:json"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	DeletedAt       gorm.DeletedAt    `json:"-"                gorm:"index"`
}

// TableName returns the database table name for Deal.
func (Deal) TableName() string { return "deals" }

// Open reports whether the deal is still in play (neither won nor lost).
func (d *Deal) Open() bool { return !d.IsWon && !d.IsLost }

// ChatSession is the conversation thread between one organization and one
// resolved contact (which may represent a WhatsApp group). The unique index
// on (organization_id, contact_id) backs the find-or-create upsert so that
// two near-simultaneous first-contact requests cannot split the thread.
type ChatSession struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	OrganizationID string         `json:"organization_id" gorm:"type:char(36);not null;uniqueIndex:ux_org_contact_session,priority:1"`
	ContactID      string         `json:"contact_id"      gorm:"type:char(36);not null;uniqueIndex:ux_org_contact_session,priority:2"`
	Provider       string         `json:"provider"        gorm:"type:varchar(64);not null;default:'whatsapp'"`
	ProviderID     string         `json:"provider_id"     gorm:"type:varchar(128);index"`
	LastMessageAt  time.Time      `json:"last_message_at" gorm:"index"`
	UnreadCount    int            `json:"unread_count"    gorm:"not null;default:0"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// Message is a single timeline entry within a chat session.
//
// ExternalID holds the provider's message ID once known; it is the basis for
// collapsing a provider echo onto the locally persisted outbound row.
type Message struct {
	ID               string         `json:"id"               gorm:"type:char(36);primaryKey"`
	OrganizationID   string         `json:"organization_id"  gorm:"type:char(36);not null;index"`
	SessionID        string         `json:"session_id"       gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	Direction        string         `json:"direction"        gorm:"type:varchar(16);not null;check:direction IN ('inbound','outbound')"`
	Content          string         `json:"content"          gorm:"type:text;not null"`
	MessageType      string         `json:"message_type"     gorm:"type:varchar(32);not null;default:'text'"`
	MediaURL         *string        `json:"media_url,omitempty" gorm:"type:text"`
	Status           string         `json:"status"           gorm:"type:varchar(16);not null;default:'sent'"`
	ExternalID       *string        `json:"external_id,omitempty" gorm:"type:varchar(128);index"`
	ReplyToMessageID *string        `json:"reply_to_message_id,omitempty" gorm:"type:char(36)"`
	CreatedAt        time.Time      `json:"created_at"       gorm:"index:idx_session_msgs,priority:2"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-"                gorm:"index"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// InboundSource is a configured integration allowed to POST leads/messages
// into one organization. The secret authenticates webhook calls; BoardID and
// EntryStageID place newly created deals.
type InboundSource struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	OrganizationID string         `json:"organization_id" gorm:"type:char(36);not null;index"`
	Name           string         `json:"name"            gorm:"type:varchar(255);not null"`
	Secret         string         `json:"-"               gorm:"type:varchar(128);not null"`
	BoardID        string         `json:"board_id"        gorm:"type:char(36);not null"`
	EntryStageID   string         `json:"entry_stage_id"  gorm:"type:char(36);not null"`
	Active         bool           `json:"active"          gorm:"not null;default:true"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`
}

// TableName returns the database table name for InboundSource.
func (InboundSource) TableName() string { return "inbound_sources" }

// OutboundEndpoint is the organization's webhook target for actual WhatsApp
// delivery of operator-composed messages. At most one active endpoint is
// honored per organization; delivery to it is always best-effort.
type OutboundEndpoint struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	OrganizationID string         `json:"organization_id" gorm:"type:char(36);not null;index"`
	URL            string         `json:"url"             gorm:"type:text;not null"`
	Secret         string         `json:"-"               gorm:"type:varchar(128)"`
	Active         bool           `json:"active"          gorm:"not null;default:true"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`
}

// TableName returns the database table name for OutboundEndpoint.
func (OutboundEndpoint) TableName() string { return "outbound_endpoints" }

// User roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// User is an operator account within one organization. Token is the opaque
// bearer credential presented on operator routes; admin routes additionally
// require Role == RoleAdmin.
type User struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	OrganizationID string         `json:"organization_id" gorm:"type:char(36);not null;index"`
	Email          string         `json:"email"           gorm:"type:varchar(255);not null;index"`
	Name           string         `json:"name"            gorm:"type:varchar(255);not null"`
	Role           string         `json:"role"            gorm:"type:varchar(16);not null;default:'member';check:role IN ('admin','member')"`
	Token          string         `json:"-"               gorm:"type:varchar(128);uniqueIndex"`
	Active         bool           `json:"active"          gorm:"not null;default:true"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

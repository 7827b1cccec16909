// Package ingest implements the payload normalizer: the pure functions that
// extract a canonical lead/message record from an arbitrary inbound JSON
// object.
//
// Inbound integrations do not share a schema. The same logical field arrives
// under camelCase, snake_case, or provider-specific names depending on who is
// POSTing (n8n exports, Evolution API, UazAPI, hand-built automations), so
// each logical field is resolved through an ordered list of known aliases and
// the first non-empty match wins. Everything here is side-effect free; all
// database work happens downstream in the services package.
package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Lead is the canonical record extracted from one inbound payload. All
// fields are optional except that a payload resolving to neither an
// identity (email/phone/JID) nor content is rejected upstream.
type Lead struct {
	ContactName  string
	ContactEmail string
	ContactPhone string
	CompanyName  string

	DealTitle string
	// DealValue is nil when the payload carries no parseable value, so that
	// re-ingestion without a value does not zero an existing deal.
	DealValue    *float64
	CustomFields map[string]any

	Content     string
	MediaURL    string
	MessageType string

	IsGroup     bool
	RemoteJID   string
	GroupID     string
	Participant string
	PushName    string
	IsFromMe    bool

	ExternalEventID   string
	ExternalMessageID string
}

// Ordered alias lists per logical field. First non-empty match wins.
// The lists encode every shape observed from the known providers; order
// matters where a generic key ("name", "id") could shadow a specific one.
var (
	contactNameKeys = []string{"contact_name", "contactName", "full_name", "fullName", "name", "sender_name", "senderName"}
	emailKeys       = []string{"email", "contact_email", "contactEmail", "mail"}
	phoneKeys       = []string{"phone", "contact_phone", "contactPhone", "phone_number", "phoneNumber", "whatsapp", "tel"}
	companyKeys     = []string{"company_name", "companyName", "company", "client_company", "clientCompany"}
	dealTitleKeys   = []string{"deal_title", "dealTitle", "title", "subject"}
	dealValueKeys   = []string{"deal_value", "dealValue", "value", "amount", "price"}
	contentKeys     = []string{"notes", "message", "text", "content", "body", "caption"}
	mediaURLKeys    = []string{"media_url", "mediaUrl", "file_url", "fileUrl", "image_url", "imageUrl", "attachment_url", "attachmentUrl"}
	msgTypeKeys     = []string{"message_type", "messageType", "mtype", "type"}
	remoteJIDKeys   = []string{"remote_jid", "remoteJid", "remoteJID", "chat_id", "chatId", "jid", "from"}
	groupIDKeys     = []string{"group_id", "groupId", "group_jid", "groupJid"}
	participantKeys = []string{"participant", "participant_jid", "participantJid", "author"}
	pushNameKeys    = []string{"push_name", "pushName", "notify_name", "notifyName", "sender_name", "senderName"}
	fromMeKeys      = []string{"from_me", "fromMe", "is_from_me", "isFromMe", "self_sent", "selfSent"}
	isGroupKeys     = []string{"is_group", "isGroup", "group"}
	eventIDKeys     = []string{"external_event_id", "externalEventId", "event_id", "eventId", "idempotency_key", "idempotencyKey"}
	messageIDKeys   = []string{"message_id", "messageId", "external_id", "externalId", "wa_message_id", "waMessageId"}
)

// Parse decodes a raw JSON body and normalizes it. It fails only on
// unparseable JSON or a non-object root; every field is optional.
func Parse(body []byte) (*Lead, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return Normalize(payload), nil
}

// Normalize extracts a Lead from a decoded payload. Pure function.
func Normalize(payload map[string]any) *Lead {
	l := &Lead{
		ContactName:       firstString(payload, contactNameKeys),
		ContactEmail:      strings.ToLower(firstString(payload, emailKeys)),
		ContactPhone:      firstString(payload, phoneKeys),
		CompanyName:       firstString(payload, companyKeys),
		DealTitle:         firstString(payload, dealTitleKeys),
		Content:           firstString(payload, contentKeys),
		MediaURL:          firstString(payload, mediaURLKeys),
		RemoteJID:         firstString(payload, remoteJIDKeys),
		GroupID:           firstString(payload, groupIDKeys),
		Participant:       firstString(payload, participantKeys),
		PushName:          firstString(payload, pushNameKeys),
		IsFromMe:          firstBool(payload, fromMeKeys),
		ExternalEventID:   firstString(payload, eventIDKeys),
		ExternalMessageID: firstString(payload, messageIDKeys),
	}

	if v, ok := ParseDealValue(firstRaw(payload, dealValueKeys)); ok {
		l.DealValue = &v
	}

	l.IsGroup = firstBool(payload, isGroupKeys) ||
		strings.HasSuffix(l.GroupID, "@g.us") ||
		strings.HasSuffix(l.RemoteJID, "@g.us")

	l.MessageType = classifyMessageType(firstString(payload, msgTypeKeys), payload)

	// Contact name falls back to the WhatsApp push name when the lead
	// fields carry nothing.
	if l.ContactName == "" {
		l.ContactName = l.PushName
	}

	if cf, ok := payload["custom_fields"].(map[string]any); ok {
		l.CustomFields = cf
	} else if cf, ok := payload["customFields"].(map[string]any); ok {
		l.CustomFields = cf
	}

	return l
}

// HasIdentity reports whether the lead carries anything the resolver can key
// a contact on.
func (l *Lead) HasIdentity() bool {
	return l.ContactEmail != "" || l.ContactPhone != "" || l.RemoteJID != "" || l.GroupID != ""
}

// HasMessage reports whether the lead carries chat content to persist.
func (l *Lead) HasMessage() bool {
	return l.Content != "" || l.MediaURL != ""
}

// ParseDealValue converts a raw payload value to a float64. It accepts JSON
// numbers, plain decimal strings ("1234.56"), and locale-formatted strings
// with dot thousands separators and a comma decimal mark ("1.234,56").
// Currency symbols and whitespace are stripped.
func ParseDealValue(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(v)
		// Drop currency markers: anything that is not a digit, separator,
		// or sign.
		s = strings.Map(func(r rune) rune {
			switch {
			case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
				return r
			default:
				return -1
			}
		}, s)
		if s == "" {
			return 0, false
		}
		if strings.Contains(s, ",") {
			// Locale form: dots group thousands, comma is the decimal mark.
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Canonical message types produced by classifyMessageType.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypeDocument = "document"
	TypeSticker  = "sticker"
)

// providerTypeMap folds provider-specific message type names onto the
// canonical set.
var providerTypeMap = map[string]string{
	"text":            TypeText,
	"chat":            TypeText,
	"image":           TypeImage,
	"imagemessage":    TypeImage,
	"video":           TypeVideo,
	"videomessage":    TypeVideo,
	"audio":           TypeAudio,
	"audiomessage":    TypeAudio,
	"ptt":             TypeAudio,
	"document":        TypeDocument,
	"documentmessage": TypeDocument,
	"sticker":         TypeSticker,
	"stickermessage":  TypeSticker,
}

// classifyMessageType maps a declared provider type to the canonical set.
// The WhatsApp wrapper types extendedTextMessage/conversation say nothing
// about media, so those (and an absent type) are reclassified by inspecting
// nested message structures for media keys. This is a heuristic: a quoted
// image inside a plain text reply will classify the reply as image, which
// matches the upstream system's observed behavior.
func classifyMessageType(declared string, payload map[string]any) string {
	key := strings.ToLower(strings.TrimSpace(declared))
	if t, ok := providerTypeMap[key]; ok {
		return t
	}
	switch key {
	case "", "extendedtextmessage", "conversation":
		if t := sniffNestedMedia(payload); t != "" {
			return t
		}
		return TypeText
	default:
		return TypeText
	}
}

// nestedMediaKeys are checked in order inside the raw message object and
// inside a quoted message, if any.
var nestedMediaKeys = []struct{ key, typ string }{
	{"imageMessage", TypeImage},
	{"videoMessage", TypeVideo},
	{"audioMessage", TypeAudio},
	{"documentMessage", TypeDocument},
	{"stickerMessage", TypeSticker},
}

// sniffNestedMedia looks for media sub-messages in the places the known
// providers put them: the raw message object itself and the quoted message
// under extendedTextMessage.contextInfo.
func sniffNestedMedia(payload map[string]any) string {
	candidates := []map[string]any{payload}
	if msg, ok := payload["message"].(map[string]any); ok {
		candidates = append(candidates, msg)
		if ext, ok := msg["extendedTextMessage"].(map[string]any); ok {
			if ci, ok := ext["contextInfo"].(map[string]any); ok {
				if quoted, ok := ci["quotedMessage"].(map[string]any); ok {
					candidates = append(candidates, quoted)
				}
			}
		}
	}
	for _, obj := range candidates {
		for _, nk := range nestedMediaKeys {
			if _, ok := obj[nk.key]; ok {
				return nk.typ
			}
		}
	}
	return ""
}

// firstString resolves the first key whose value is a non-empty string (or a
// number, stringified). Nested objects and nulls are skipped.
func firstString(payload map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := payload[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			// Integral values print without a decimal point; phone numbers
			// sometimes arrive as JSON numbers.
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10)
			}
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// firstRaw returns the first present value for the keys, untyped.
func firstRaw(payload map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := payload[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// firstBool resolves the first key carrying a recognizable boolean: JSON
// true/false, "true"/"false" strings, or 0/1 numbers.
func firstBool(payload map[string]any, keys []string) bool {
	for _, k := range keys {
		switch v := payload[k].(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b
			}
		case float64:
			return v != 0
		}
	}
	return false
}

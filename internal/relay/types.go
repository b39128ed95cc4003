// Package relay is the cross-server relay engine: fan-out scheduling,
// the ingress orchestrator and edit/delete propagation.
package relay

import (
	"strings"
	"time"
)

// Outcome is the discriminated result of one ingress event. Hot-path gates
// are outcomes, not errors.
type Outcome int

const (
	// OutcomeIgnored: not a relay event (bot author, DM, empty, unregistered
	// channel). No side effects, no logging of content.
	OutcomeIgnored Outcome = iota
	// OutcomeProcessed: relayed by this replica.
	OutcomeProcessed
	// OutcomeDuplicate: another replica handled the event.
	OutcomeDuplicate
	// OutcomeBanned: author is service-banned.
	OutcomeBanned
	// OutcomeServerBanned: source server is service-banned.
	OutcomeServerBanned
	// OutcomeBlocked: automod flagged the message.
	OutcomeBlocked
	// OutcomeFailed: a store write failed; the event was abandoned.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeBanned:
		return "banned"
	case OutcomeServerBanned:
		return "server_banned"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeFailed:
		return "failed"
	default:
		return "ignored"
	}
}

// Reaction emoji used on source messages.
const (
	ReactProcessing = "⏳"
	ReactDelivered  = "✅"
	ReactFailed     = "❌"
	ReactBanned     = "🚫"
	ReactBlocked    = "⚠️"
	ReactEdited     = "✏️"
)

// Attachment is one source attachment. Data is populated once per ingress
// event and re-wrapped per send, because the platform API consumes the
// payload on send.
type Attachment struct {
	Filename    string
	URL         string
	ContentType string
	Data        []byte
}

// IsImage reports whether the attachment renders as the embed image.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.ContentType, "image/")
}

// IngressMessage is the platform-neutral snapshot of one gateway
// message-create event.
type IngressMessage struct {
	MessageID         string
	ChannelID         string
	ServerID          string
	AuthorID          string
	AuthorDisplayName string
	AuthorAvatarURL   string
	AuthorIsBot       bool
	Content           string
	Attachments       []Attachment
	RoleIDs           []string // author's roles in the source server
	CreatedAt         time.Time
}

// empty reports whether there is nothing to relay.
func (m *IngressMessage) empty() bool {
	return strings.TrimSpace(m.Content) == "" && len(m.Attachments) == 0
}

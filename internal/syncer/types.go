// Package syncer keeps a client-side, paginated view of one container's
// history in step with the server: pages come from the HTTP history
// endpoint, new messages arrive over the live channel, and polling takes
// over while the live channel is down.
package syncer

import (
	"context"
	"time"

	"github.com/aryamantandon18/connectly/internal/models"

	"github.com/goccy/go-json"
)

type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type Member struct {
	ID        string   `json:"id"`
	Role      string   `json:"role"`
	ProfileID string   `json:"profileId"`
	Profile   *Profile `json:"profile,omitempty"`
}

// Message is the client rendition of a channel or direct message.
type Message struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	FileURL        *string   `json:"fileUrl"`
	MemberID       string    `json:"memberId"`
	Member         *Member   `json:"member,omitempty"`
	ChannelID      string    `json:"channelId,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	Deleted        bool      `json:"deleted"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Edited reports whether the message changed after it was created.
func (m Message) Edited() bool { return !m.UpdatedAt.Equal(m.CreatedAt) }

// Author is the display name of the message author, or its member id.
func (m Message) Author() string {
	if m.Member != nil && m.Member.Profile != nil && m.Member.Profile.Name != "" {
		return m.Member.Profile.Name
	}
	return m.MemberID
}

type Page struct {
	Items      []Message `json:"items"`
	NextCursor *string   `json:"nextCursor"`
}

// Fetcher reads history pages, newest first.
type Fetcher interface {
	ListPage(ctx context.Context, c models.Container, cursor string) (Page, error)
}

// Live is the subscription side of the live channel. *LiveClient
// satisfies it.
type Live interface {
	Subscribe(event string, fn func(data json.RawMessage)) (unsubscribe func())
	Connected() bool
}

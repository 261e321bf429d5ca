package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MemberRole string

const (
	RoleGuest     MemberRole = "GUEST"
	RoleModerator MemberRole = "MODERATOR"
	RoleAdmin     MemberRole = "ADMIN"
)

type ChannelType string

const (
	ChannelText  ChannelType = "TEXT"
	ChannelAudio ChannelType = "AUDIO"
	ChannelVideo ChannelType = "VIDEO"
)

type Profile struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Name         string    `gorm:"size:120;not null" json:"name"`
	Email        string    `gorm:"size:190;uniqueIndex;not null" json:"email"`
	ImageURL     string    `gorm:"type:text" json:"imageUrl"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Server struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Name       string    `gorm:"size:120;not null" json:"name"`
	InviteCode string    `gorm:"size:64;uniqueIndex" json:"inviteCode"`
	ProfileID  string    `gorm:"size:36;index;not null" json:"profileId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	Members  []Member  `json:"-"`
	Channels []Channel `json:"-"`
}

type Member struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	Role      MemberRole `gorm:"size:16;not null;default:GUEST" json:"role"`
	ProfileID string     `gorm:"size:36;index;not null" json:"profileId"`
	Profile   *Profile   `json:"profile,omitempty"`
	ServerID  string     `gorm:"size:36;index;not null" json:"serverId"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type Channel struct {
	ID        string      `gorm:"primaryKey;size:36" json:"id"`
	Name      string      `gorm:"size:120;not null" json:"name"`
	Type      ChannelType `gorm:"size:16;not null;default:TEXT" json:"type"`
	ProfileID string      `gorm:"size:36;index;not null" json:"profileId"`
	ServerID  string      `gorm:"size:36;index;not null" json:"serverId"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Conversation is a direct-message thread between two members.
type Conversation struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	MemberOneID string    `gorm:"size:36;not null;uniqueIndex:idx_conversation_pair" json:"memberOneId"`
	MemberOne   *Member   `json:"memberOne,omitempty"`
	MemberTwoID string    `gorm:"size:36;not null;uniqueIndex:idx_conversation_pair;index" json:"memberTwoId"`
	MemberTwo   *Member   `json:"memberTwo,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Message struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	FileURL   *string   `gorm:"type:text" json:"fileUrl"`
	MemberID  string    `gorm:"size:36;index;not null" json:"memberId"`
	Member    *Member   `json:"member,omitempty"`
	ChannelID string    `gorm:"size:36;index:idx_message_channel_created,priority:1;not null" json:"channelId"`
	Deleted   bool      `gorm:"not null;default:false" json:"deleted"`
	CreatedAt time.Time `gorm:"index:idx_message_channel_created,priority:2" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type DirectMessage struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	FileURL        *string   `gorm:"type:text" json:"fileUrl"`
	MemberID       string    `gorm:"size:36;index;not null" json:"memberId"`
	Member         *Member   `json:"member,omitempty"`
	ConversationID string    `gorm:"size:36;index:idx_dm_conversation_created,priority:1;not null" json:"conversationId"`
	Deleted        bool      `gorm:"not null;default:false" json:"deleted"`
	CreatedAt      time.Time `gorm:"index:idx_dm_conversation_created,priority:2" json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ChatMessage is implemented by both message kinds so the ingest and read
// paths can treat a container's rows uniformly.
type ChatMessage interface {
	MessageID() string
	ContainerID() string
}

func (m *Message) MessageID() string         { return m.ID }
func (m *Message) ContainerID() string       { return m.ChannelID }
func (m *DirectMessage) MessageID() string   { return m.ID }
func (m *DirectMessage) ContainerID() string { return m.ConversationID }

func (p *Profile) BeforeCreate(*gorm.DB) error      { p.ID = ensureID(p.ID); return nil }
func (s *Server) BeforeCreate(*gorm.DB) error       { s.ID = ensureID(s.ID); return nil }
func (m *Member) BeforeCreate(*gorm.DB) error       { m.ID = ensureID(m.ID); return nil }
func (c *Channel) BeforeCreate(*gorm.DB) error      { c.ID = ensureID(c.ID); return nil }
func (c *Conversation) BeforeCreate(*gorm.DB) error { c.ID = ensureID(c.ID); return nil }
func (m *Message) BeforeCreate(*gorm.DB) error      { m.ID = ensureID(m.ID); return nil }
func (m *DirectMessage) BeforeCreate(*gorm.DB) error {
	m.ID = ensureID(m.ID)
	return nil
}

func ensureID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// All lists every table, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&Profile{},
		&Server{},
		&Member{},
		&Channel{},
		&Conversation{},
		&Message{},
		&DirectMessage{},
	}
}

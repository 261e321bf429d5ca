package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aryamantandon18/connectly/internal/models"

	"gorm.io/gorm"
)

// PageSize is the fixed number of messages returned per history page.
const PageSize = 10

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrNotMember  = errors.New("profile is not a member")
	ErrConflict   = errors.New("already exists")
)

// Page is one newest-first slice of a container's history. NextCursor is nil
// once the history is exhausted.
type Page struct {
	Items      []models.ChatMessage `json:"items"`
	NextCursor *string              `json:"nextCursor"`
}

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the clock used to stamp new rows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) FindProfile(ctx context.Context, id string) (*models.Profile, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: profile", ErrNotFound)
	}
	var p models.Profile
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "profile")
	}
	return &p, nil
}

func (s *Store) FindProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).First(&p, "email = ?", strings.ToLower(email)).Error; err != nil {
		return nil, notFound(err, "profile")
	}
	return &p, nil
}

func (s *Store) CreateProfile(ctx context.Context, p *models.Profile) error {
	p.Email = strings.ToLower(p.Email)
	if _, err := s.FindProfileByEmail(ctx, p.Email); err == nil {
		return fmt.Errorf("%w: profile %s", ErrConflict, p.Email)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// ResolveMember returns the member that authorizes profileID to post into c.
// A missing container yields ErrNotFound; an existing container the profile
// does not belong to yields ErrNotMember.
func (s *Store) ResolveMember(ctx context.Context, c models.Container, profileID string) (*models.Member, error) {
	db := s.db.WithContext(ctx)

	switch c.Kind {
	case models.KindChannel:
		var ch models.Channel
		q := db.Where("id = ?", c.ID)
		if c.ServerID != "" {
			q = q.Where("server_id = ?", c.ServerID)
		}
		if err := q.First(&ch).Error; err != nil {
			return nil, notFound(err, "channel")
		}

		var m models.Member
		err := db.Preload("Profile").
			Where("server_id = ? AND profile_id = ?", ch.ServerID, profileID).
			First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w of server %s", ErrNotMember, ch.ServerID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find member: %w", err)
		}
		return &m, nil

	case models.KindConversation:
		var conv models.Conversation
		err := db.Preload("MemberOne.Profile").
			Preload("MemberTwo.Profile").
			First(&conv, "id = ?", c.ID).Error
		if err != nil {
			return nil, notFound(err, "conversation")
		}
		switch {
		case conv.MemberOne != nil && conv.MemberOne.ProfileID == profileID:
			return conv.MemberOne, nil
		case conv.MemberTwo != nil && conv.MemberTwo.ProfileID == profileID:
			return conv.MemberTwo, nil
		}
		return nil, fmt.Errorf("%w of conversation %s", ErrNotMember, c.ID)
	}
	return nil, fmt.Errorf("%w: unknown container kind %q", ErrValidation, c.Kind)
}

// Append stores a new message authored by member. Either content or fileURL
// must be present. createdAt and updatedAt are stamped with the same instant.
func (s *Store) Append(ctx context.Context, c models.Container, member *models.Member, content string, fileURL *string) (models.ChatMessage, error) {
	if strings.TrimSpace(content) == "" && (fileURL == nil || *fileURL == "") {
		return nil, fmt.Errorf("%w: content or file is required", ErrValidation)
	}
	if member == nil || member.ID == "" {
		return nil, fmt.Errorf("%w: member", ErrNotFound)
	}

	now := s.now().UTC()
	var msg models.ChatMessage

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.Member{}, "id = ?", member.ID).Error; err != nil {
			return notFound(err, "member")
		}

		switch c.Kind {
		case models.KindChannel:
			if err := tx.Select("id").First(&models.Channel{}, "id = ?", c.ID).Error; err != nil {
				return notFound(err, "channel")
			}
			row := &models.Message{
				Content:   content,
				FileURL:   fileURL,
				MemberID:  member.ID,
				ChannelID: c.ID,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Omit("Member").Create(row).Error; err != nil {
				return fmt.Errorf("failed to create message: %w", err)
			}
			row.Member = member
			msg = row

		case models.KindConversation:
			if err := tx.Select("id").First(&models.Conversation{}, "id = ?", c.ID).Error; err != nil {
				return notFound(err, "conversation")
			}
			row := &models.DirectMessage{
				Content:        content,
				FileURL:        fileURL,
				MemberID:       member.ID,
				ConversationID: c.ID,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.Omit("Member").Create(row).Error; err != nil {
				return fmt.Errorf("failed to create direct message: %w", err)
			}
			row.Member = member
			msg = row

		default:
			return fmt.Errorf("%w: unknown container kind %q", ErrValidation, c.Kind)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListPage returns up to pageSize messages of c ordered newest first. With a
// cursor, only messages strictly older than the cursor message are returned.
func (s *Store) ListPage(ctx context.Context, c models.Container, cursor string, pageSize int) (Page, error) {
	if pageSize <= 0 {
		pageSize = PageSize
	}
	switch c.Kind {
	case models.KindChannel:
		return listPage[models.Message](ctx, s.db, "channel_id", c.ID, cursor, pageSize)
	case models.KindConversation:
		return listPage[models.DirectMessage](ctx, s.db, "conversation_id", c.ID, cursor, pageSize)
	}
	return Page{}, fmt.Errorf("%w: unknown container kind %q", ErrValidation, c.Kind)
}

func listPage[T any, PT interface {
	*T
	models.ChatMessage
}](ctx context.Context, db *gorm.DB, column, containerID, cursor string, pageSize int) (Page, error) {
	db = db.WithContext(ctx)
	q := db.Model(new(T)).Preload("Member.Profile").Where(column+" = ?", containerID)

	if cursor != "" {
		var anchor T
		err := db.Select("id").Where("id = ? AND "+column+" = ?", cursor, containerID).First(&anchor).Error
		if err != nil {
			return Page{}, notFound(err, "cursor")
		}
		anchorCreated := db.Model(new(T)).Select("created_at").Where("id = ?", cursor)
		q = q.Where("(created_at < (?) OR (created_at = (?) AND id < ?))", anchorCreated, anchorCreated, cursor)
	}

	var rows []T
	if err := q.Order("created_at DESC").Order("id DESC").Limit(pageSize).Find(&rows).Error; err != nil {
		return Page{}, fmt.Errorf("failed to list messages: %w", err)
	}

	page := Page{Items: make([]models.ChatMessage, 0, len(rows))}
	for i := range rows {
		page.Items = append(page.Items, PT(&rows[i]))
	}
	if len(rows) == pageSize {
		next := page.Items[len(page.Items)-1].MessageID()
		page.NextCursor = &next
	}
	return page, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return fmt.Errorf("failed to find %s: %w", what, err)
}

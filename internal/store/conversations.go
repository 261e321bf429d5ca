package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aryamantandon18/connectly/internal/models"

	"gorm.io/gorm"
)

// FindOrCreateConversation returns the direct-message conversation between
// the requester's member in serverID and otherMemberID, creating it on first
// use. The pair is unordered: (a, b) and (b, a) resolve to the same row.
func (s *Store) FindOrCreateConversation(ctx context.Context, serverID, profileID, otherMemberID string) (*models.Conversation, error) {
	db := s.db.WithContext(ctx)

	var me models.Member
	err := db.Where("server_id = ? AND profile_id = ?", serverID, profileID).First(&me).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w of server %s", ErrNotMember, serverID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find member: %w", err)
	}

	var other models.Member
	if err := db.Where("id = ? AND server_id = ?", otherMemberID, serverID).First(&other).Error; err != nil {
		return nil, notFound(err, "member")
	}
	if other.ID == me.ID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", ErrValidation)
	}

	var conv models.Conversation
	err = db.Where("(member_one_id = ? AND member_two_id = ?) OR (member_one_id = ? AND member_two_id = ?)",
		me.ID, other.ID, other.ID, me.ID).First(&conv).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		conv = models.Conversation{MemberOneID: me.ID, MemberTwoID: other.ID}
		if err := db.Omit("MemberOne", "MemberTwo").Create(&conv).Error; err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}

	if err := db.Preload("MemberOne.Profile").Preload("MemberTwo.Profile").First(&conv, "id = ?", conv.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns every conversation one of the profile's members
// takes part in, most recently updated first.
func (s *Store) ListConversations(ctx context.Context, profileID string) ([]models.Conversation, error) {
	db := s.db.WithContext(ctx)

	var memberIDs []string
	if err := db.Model(&models.Member{}).Where("profile_id = ?", profileID).Pluck("id", &memberIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to find members: %w", err)
	}

	convs := []models.Conversation{}
	if len(memberIDs) == 0 {
		return convs, nil
	}
	err := db.Preload("MemberOne.Profile").
		Preload("MemberTwo.Profile").
		Where("member_one_id IN ? OR member_two_id IN ?", memberIDs, memberIDs).
		Order("updated_at desc").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

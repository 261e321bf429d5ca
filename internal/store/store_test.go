package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aryamantandon18/connectly/internal/models"
	"github.com/aryamantandon18/connectly/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newStore(t *testing.T) *Store {
	t.Helper()
	db := storetest.Open(t)
	storetest.Seed(t, db)
	return New(db, WithClock(steppingClock()))
}

func ids(p Page) []string {
	out := make([]string, 0, len(p.Items))
	for _, m := range p.Items {
		out = append(out, m.MessageID())
	}
	return out
}

func strPtr(s string) *string { return &s }

func TestListPage_TwelveMessages(t *testing.T) {
	db := storetest.Open(t)
	storetest.Seed(t, db)
	storetest.SeedMessages(t, db, storetest.ChannelID, "m", 12)
	s := New(db)
	ctx := context.Background()
	c1 := models.ChannelContainer("", storetest.ChannelID)

	first, err := s.ListPage(ctx, c1, "", PageSize)
	require.NoError(t, err)
	assert.Equal(t, []string{"m12", "m11", "m10", "m9", "m8", "m7", "m6", "m5", "m4", "m3"}, ids(first))
	require.NotNil(t, first.NextCursor)
	assert.Equal(t, "m3", *first.NextCursor)

	second, err := s.ListPage(ctx, c1, *first.NextCursor, PageSize)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m1"}, ids(second))
	assert.Nil(t, second.NextCursor)
}

func TestListPage_FewerThanPageSize(t *testing.T) {
	db := storetest.Open(t)
	storetest.Seed(t, db)
	storetest.SeedMessages(t, db, storetest.ChannelID, "m", 3)
	s := New(db)

	page, err := s.ListPage(context.Background(), models.ChannelContainer("", storetest.ChannelID), "", PageSize)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m2", "m1"}, ids(page))
	assert.Nil(t, page.NextCursor)
}

func TestListPage_EmptyContainer(t *testing.T) {
	s := newStore(t)

	page, err := s.ListPage(context.Background(), models.ChannelContainer("", storetest.ChannelID), "", 0)
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Nil(t, page.NextCursor)
}

func TestListPage_WalkReturnsEveryAppendExactlyOnce(t *testing.T) {
	for _, n := range []int{1, 9, 10, 20, 25} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			c1 := models.ChannelContainer(storetest.ServerID, storetest.ChannelID)
			member := &models.Member{ID: storetest.MemberAlice}

			appended := make(map[string]bool, n)
			for i := 0; i < n; i++ {
				msg, err := s.Append(ctx, c1, member, "hello", nil)
				require.NoError(t, err)
				appended[msg.MessageID()] = true
			}

			seen := make(map[string]bool, n)
			var last time.Time
			cursor := ""
			for pages := 0; ; pages++ {
				require.Less(t, pages, n+2, "pagination did not terminate")
				page, err := s.ListPage(ctx, c1, cursor, PageSize)
				require.NoError(t, err)
				for _, item := range page.Items {
					m := item.(*models.Message)
					assert.False(t, seen[m.ID], "duplicate %s", m.ID)
					seen[m.ID] = true
					if !last.IsZero() {
						assert.True(t, m.CreatedAt.Before(last), "not strictly descending")
					}
					last = m.CreatedAt
				}
				if page.NextCursor == nil {
					break
				}
				cursor = *page.NextCursor
			}
			assert.Equal(t, appended, seen)
		})
	}
}

func TestListPage_CursorErrors(t *testing.T) {
	db := storetest.Open(t)
	storetest.Seed(t, db)
	storetest.SeedMessages(t, db, storetest.ChannelID, "m", 2)
	s := New(db)
	ctx := context.Background()

	_, err := s.ListPage(ctx, models.ChannelContainer("", storetest.ChannelID), "nope", PageSize)
	assert.ErrorIs(t, err, ErrNotFound)

	// A cursor belonging to another container is rejected.
	_, err = s.ListPage(ctx, models.ChannelContainer("", storetest.OtherChannelID), "m1", PageSize)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ListPage(ctx, models.Container{Kind: "thread", ID: "x"}, "", PageSize)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	c1 := models.ChannelContainer(storetest.ServerID, storetest.ChannelID)
	alice := &models.Member{ID: storetest.MemberAlice}

	tests := []struct {
		name      string
		container models.Container
		member    *models.Member
		content   string
		fileURL   *string
		wantErr   error
	}{
		{name: "content only", container: c1, member: alice, content: "hi"},
		{name: "file only", container: c1, member: alice, fileURL: strPtr("https://cdn/x.png")},
		{name: "content and file", container: c1, member: alice, content: "look", fileURL: strPtr("https://cdn/x.png")},
		{name: "neither", container: c1, member: alice, wantErr: ErrValidation},
		{name: "blank content", container: c1, member: alice, content: "   ", wantErr: ErrValidation},
		{name: "empty file url", container: c1, member: alice, fileURL: strPtr(""), wantErr: ErrValidation},
		{name: "unknown channel", container: models.ChannelContainer("", "nope"), member: alice, content: "hi", wantErr: ErrNotFound},
		{name: "unknown member", container: c1, member: &models.Member{ID: "ghost"}, content: "hi", wantErr: ErrNotFound},
		{name: "nil member", container: c1, content: "hi", wantErr: ErrNotFound},
		{name: "unknown conversation", container: models.ConversationContainer("nope"), member: alice, content: "hi", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			msg, err := s.Append(ctx, tt.container, tt.member, tt.content, tt.fileURL)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, msg)
				return
			}
			require.NoError(t, err)

			m, ok := msg.(*models.Message)
			require.True(t, ok, "got %T", msg)
			assert.NotEmpty(t, m.ID)
			assert.Equal(t, storetest.ChannelID, m.ContainerID())
			assert.Equal(t, tt.content, m.Content)
			assert.Equal(t, tt.fileURL, m.FileURL)
			assert.True(t, m.CreatedAt.Equal(m.UpdatedAt), "a new message must not look edited")
			assert.Same(t, tt.member, m.Member)
			assert.False(t, m.Deleted)
		})
	}
}

func TestAppend_DirectMessage(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	conv := models.ConversationContainer(storetest.ConversationID)

	member, err := s.ResolveMember(ctx, conv, storetest.ProfileBob)
	require.NoError(t, err)

	msg, err := s.Append(ctx, conv, member, "psst", nil)
	require.NoError(t, err)
	dm, ok := msg.(*models.DirectMessage)
	require.True(t, ok)
	assert.Equal(t, storetest.ConversationID, dm.ConversationID)
	assert.Equal(t, storetest.MemberBob, dm.MemberID)

	page, err := s.ListPage(ctx, conv, "", PageSize)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	got := page.Items[0].(*models.DirectMessage)
	assert.Equal(t, dm.ID, got.ID)
	require.NotNil(t, got.Member)
	require.NotNil(t, got.Member.Profile)
	assert.Equal(t, "Bob", got.Member.Profile.Name)
}

func TestResolveMember(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		container models.Container
		profileID string
		wantID    string
		wantErr   error
	}{
		{"channel member", models.ChannelContainer(storetest.ServerID, storetest.ChannelID), storetest.ProfileAlice, storetest.MemberAlice, nil},
		{"channel without server id", models.ChannelContainer("", storetest.ChannelID), storetest.ProfileBob, storetest.MemberBob, nil},
		{"channel non member", models.ChannelContainer(storetest.ServerID, storetest.ChannelID), storetest.ProfileCarol, "", ErrNotMember},
		{"channel of other server", models.ChannelContainer(storetest.ServerID, storetest.OtherChannelID), storetest.ProfileAlice, "", ErrNotFound},
		{"unknown channel", models.ChannelContainer(storetest.ServerID, "nope"), storetest.ProfileAlice, "", ErrNotFound},
		{"conversation member one", models.ConversationContainer(storetest.ConversationID), storetest.ProfileAlice, storetest.MemberAlice, nil},
		{"conversation member two", models.ConversationContainer(storetest.ConversationID), storetest.ProfileBob, storetest.MemberBob, nil},
		{"conversation outsider", models.ConversationContainer(storetest.ConversationID), storetest.ProfileCarol, "", ErrNotMember},
		{"unknown conversation", models.ConversationContainer("nope"), storetest.ProfileAlice, "", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := s.ResolveMember(ctx, tt.container, tt.profileID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, m.ID)
			require.NotNil(t, m.Profile)
			assert.Equal(t, tt.profileID, m.Profile.ID)
		})
	}
}

func TestProfiles(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	p, err := s.FindProfile(ctx, storetest.ProfileAlice)
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)

	_, err = s.FindProfile(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindProfile(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	dave := &models.Profile{Name: "Dave", Email: "Dave@Example.com", PasswordHash: "h"}
	require.NoError(t, s.CreateProfile(ctx, dave))
	assert.NotEmpty(t, dave.ID)

	byEmail, err := s.FindProfileByEmail(ctx, "DAVE@example.com")
	require.NoError(t, err)
	assert.Equal(t, dave.ID, byEmail.ID)

	err = s.CreateProfile(ctx, &models.Profile{Name: "Dave 2", Email: "dave@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestFindOrCreateConversation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// The seeded conversation is found from either side.
	conv, err := s.FindOrCreateConversation(ctx, storetest.ServerID, storetest.ProfileBob, storetest.MemberAlice)
	require.NoError(t, err)
	assert.Equal(t, storetest.ConversationID, conv.ID)
	require.NotNil(t, conv.MemberOne)
	require.NotNil(t, conv.MemberOne.Profile)

	again, err := s.FindOrCreateConversation(ctx, storetest.ServerID, storetest.ProfileAlice, storetest.MemberBob)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)

	_, err = s.FindOrCreateConversation(ctx, storetest.ServerID, storetest.ProfileAlice, storetest.MemberAlice)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.FindOrCreateConversation(ctx, storetest.ServerID, storetest.ProfileCarol, storetest.MemberAlice)
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = s.FindOrCreateConversation(ctx, storetest.ServerID, storetest.ProfileAlice, storetest.MemberCarol)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindOrCreateConversation_CreatesNew(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// Carol joins the first server, then opens a conversation with Alice.
	require.NoError(t, s.db.Create(&models.Member{ID: "m-carol-s1", ProfileID: storetest.ProfileCarol, ServerID: storetest.ServerID}).Error)

	conv, err := s.FindOrCreateConversation(ctx, storetest.ServerID, storetest.ProfileCarol, storetest.MemberAlice)
	require.NoError(t, err)
	assert.NotEqual(t, storetest.ConversationID, conv.ID)
	assert.Equal(t, "m-carol-s1", conv.MemberOneID)
	assert.Equal(t, storetest.MemberAlice, conv.MemberTwoID)

	convs, err := s.ListConversations(ctx, storetest.ProfileAlice)
	require.NoError(t, err)
	assert.Len(t, convs, 2)

	none, err := s.ListConversations(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, none)
}

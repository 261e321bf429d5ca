// Package storetest provides an in-memory database seeded with a small
// server, its members, a channel and a conversation.
package storetest

import (
	"strconv"
	"testing"
	"time"

	"github.com/aryamantandon18/connectly/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	ProfileAlice = "p-alice"
	ProfileBob   = "p-bob"
	ProfileCarol = "p-carol" // registered but not a member of any server

	ServerID      = "s1"
	OtherServerID = "s2"

	MemberAlice = "m-alice"
	MemberBob   = "m-bob"
	MemberCarol = "m-carol" // member of OtherServerID only

	ChannelID      = "c1"
	OtherChannelID = "c2"

	ConversationID = "conv1"
)

// Open creates a migrated in-memory sqlite database. A single connection is
// kept so every query sees the same memory database.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open test database")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...), "migrate test database")
	return db
}

// Seed inserts the fixture rows described by the package constants.
func Seed(t *testing.T, db *gorm.DB) {
	t.Helper()

	rows := []any{
		&models.Profile{ID: ProfileAlice, Name: "Alice", Email: "alice@example.com", PasswordHash: "x"},
		&models.Profile{ID: ProfileBob, Name: "Bob", Email: "bob@example.com", PasswordHash: "x"},
		&models.Profile{ID: ProfileCarol, Name: "Carol", Email: "carol@example.com", PasswordHash: "x"},
		&models.Server{ID: ServerID, Name: "General", InviteCode: "inv-1", ProfileID: ProfileAlice},
		&models.Server{ID: OtherServerID, Name: "Elsewhere", InviteCode: "inv-2", ProfileID: ProfileCarol},
		&models.Member{ID: MemberAlice, Role: models.RoleAdmin, ProfileID: ProfileAlice, ServerID: ServerID},
		&models.Member{ID: MemberBob, Role: models.RoleGuest, ProfileID: ProfileBob, ServerID: ServerID},
		&models.Member{ID: MemberCarol, Role: models.RoleAdmin, ProfileID: ProfileCarol, ServerID: OtherServerID},
		&models.Channel{ID: ChannelID, Name: "general", Type: models.ChannelText, ProfileID: ProfileAlice, ServerID: ServerID},
		&models.Channel{ID: OtherChannelID, Name: "general", Type: models.ChannelText, ProfileID: ProfileCarol, ServerID: OtherServerID},
		&models.Conversation{ID: ConversationID, MemberOneID: MemberAlice, MemberTwoID: MemberBob},
	}
	for _, r := range rows {
		require.NoError(t, db.Create(r).Error, "seed %T", r)
	}
}

// SeedMessages inserts n channel messages with ids prefix1..prefixN, one
// second apart, the highest number being the newest.
func SeedMessages(t *testing.T, db *gorm.DB, channelID, prefix string, n int) {
	t.Helper()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		m := &models.Message{
			ID:        prefix + strconv.Itoa(i),
			Content:   "message " + strconv.Itoa(i),
			MemberID:  MemberAlice,
			ChannelID: channelID,
			CreatedAt: ts,
			UpdatedAt: ts,
		}
		require.NoError(t, db.Create(m).Error, "seed message %d", i)
	}
}

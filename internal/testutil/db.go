// Package testutil provides shared fixtures for tests: isolated SQLite databases and seeded rows.
package testutil

import (
	"fmt"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"warbler/internal/database"
	"warbler/internal/models"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestPassword is the plaintext behind every fixture user's password hash.
const TestPassword = "password123"

var (
	dbSeq        atomic.Int64
	unsafeChars  = regexp.MustCompile(`[^A-Za-z0-9_]`)
	passwordHash []byte
)

func init() {
	var err error
	passwordHash, err = bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
}

// NewTestDB returns a migrated in-memory SQLite database private to t.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := unsafeChars.ReplaceAllString(t.Name(), "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// CreateUser inserts a user whose password is TestPassword.
func CreateUser(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{
		Username: username,
		Email:    username + "@test.com",
		Password: string(passwordHash),
	}
	u.ApplyImageDefaults()
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateMessage inserts a message authored by userID at ts.
func CreateMessage(t testing.TB, db *gorm.DB, userID uint, text string, ts time.Time) *models.Message {
	t.Helper()
	m := &models.Message{UserID: userID, Text: text, Timestamp: ts}
	require.NoError(t, db.Omit("User").Create(m).Error)
	return m
}

// Follow makes follower follow followed.
func Follow(t testing.TB, db *gorm.DB, follower, followed uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.Follow{UserFollowingID: follower, UserBeingFollowedID: followed}).Error)
}

// Like records that userID liked messageID.
func Like(t testing.TB, db *gorm.DB, userID, messageID uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.Like{UserID: userID, MessageID: messageID}).Error)
}

// Count returns the number of rows of model matching the optional condition.
func Count(t testing.TB, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

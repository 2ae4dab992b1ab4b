package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"warbler/internal/cache"
	"warbler/internal/models"
	"warbler/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestUserRepository_GetByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	tests := []struct {
		name          string
		userID        uint
		mockBehavior  func()
		expectedUser  *models.User
		expectedCode  string
		expectedError bool
	}{
		{
			name:   "Success",
			userID: 1,
			mockBehavior: func() {
				rows := sqlmock.NewRows([]string{"id", "username", "email"}).
					AddRow(1, "testuser", "test@example.com")
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1 ORDER BY "users"."id" LIMIT $2`)).
					WithArgs(1, 1).
					WillReturnRows(rows)
			},
			expectedUser: &models.User{ID: 1, Username: "testuser", Email: "test@example.com"},
		},
		{
			name:   "Not Found",
			userID: 99,
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1 ORDER BY "users"."id" LIMIT $2`)).
					WithArgs(99, 1).
					WillReturnError(gorm.ErrRecordNotFound)
			},
			expectedCode:  models.CodeNotFound,
			expectedError: true,
		},
		{
			name:   "Database Error",
			userID: 2,
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
					WillReturnError(errors.New("connection reset"))
			},
			expectedCode:  models.CodeInternal,
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockBehavior()
			user, err := repo.GetByID(ctx, tt.userID)

			if tt.expectedError {
				assert.Error(t, err)
				assert.Equal(t, tt.expectedCode, models.ErrorCode(err))
				assert.Nil(t, user)
			} else if assert.NotNil(t, user) {
				assert.Equal(t, tt.expectedUser.Username, user.Username)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_GetByID_ServedFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(rdb)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = rdb.Close()
	})

	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1`)).
		WithArgs(7, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "password"}).
			AddRow(7, "cached", "cached@example.com", "$2a$hash"))

	first, err := repo.GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "cached", first.Username)
	assert.True(t, mr.Exists(cache.UserKey(7)))

	// No second query is expected; sqlmock fails on unexpected SQL.
	second, err := repo.GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "cached", second.Username)
	assert.Empty(t, second.Password)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByUsername(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	created := testutil.CreateUser(t, db, "alice")

	found, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
	assert.NotEmpty(t, found.Password)

	missing, err := repo.GetByUsername(ctx, "nobody")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "users"`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectCommit()

		user := &models.User{Username: "new", Email: "new@example.com", Password: "hash"}
		require.NoError(t, repo.Create(ctx, user))
		assert.Equal(t, uint(1), user.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unique violation rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "users"`)).
			WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
		mock.ExpectRollback()

		err := repo.Create(ctx, &models.User{Username: "taken", Email: "taken@example.com", Password: "hash"})
		require.Error(t, err)
		assert.Equal(t, models.CodeConflict, models.ErrorCode(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_CreateDuplicateLeavesOriginal(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	original := testutil.CreateUser(t, db, "bob")

	err := repo.Create(ctx, &models.User{Username: "bob", Email: "other@test.com", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))

	var stored models.User
	require.NoError(t, db.First(&stored, original.ID).Error)
	assert.Equal(t, "bob@test.com", stored.Email)
	assert.Equal(t, original.Password, stored.Password)
	assert.Equal(t, int64(1), testutil.Count(t, db, &models.User{}, ""))
}

func TestUserRepository_UpdateProfile(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := testutil.CreateUser(t, db, "carol")
	testutil.CreateUser(t, db, "dave")

	update := &models.User{
		ID:             u.ID,
		Username:       "caroline",
		Email:          "caroline@test.com",
		ImageURL:       "http://img/c.png",
		HeaderImageURL: models.DefaultHeaderImageURL,
		Bio:            "hello",
		Location:       "Lisbon",
	}
	require.NoError(t, repo.UpdateProfile(ctx, update))

	var stored models.User
	require.NoError(t, db.First(&stored, u.ID).Error)
	assert.Equal(t, "caroline", stored.Username)
	assert.Equal(t, "Lisbon", stored.Location)
	assert.Equal(t, u.Password, stored.Password, "password hash must survive a profile update")

	update.Username = "dave"
	err := repo.UpdateProfile(ctx, update)
	require.Error(t, err)
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))
}

func TestUserRepository_DeleteCascades(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	victim := testutil.CreateUser(t, db, "victim")
	other := testutil.CreateUser(t, db, "other")

	now := time.Now()
	victimMsg := testutil.CreateMessage(t, db, victim.ID, "mine", now)
	otherMsg := testutil.CreateMessage(t, db, other.ID, "theirs", now)

	testutil.Like(t, db, other.ID, victimMsg.ID)
	testutil.Like(t, db, victim.ID, otherMsg.ID)
	testutil.Follow(t, db, victim.ID, other.ID)
	testutil.Follow(t, db, other.ID, victim.ID)

	require.NoError(t, repo.Delete(ctx, victim.ID))

	assert.Equal(t, int64(0), testutil.Count(t, db, &models.User{}, "id = ?", victim.ID))
	assert.Equal(t, int64(0), testutil.Count(t, db, &models.Message{}, "user_id = ?", victim.ID))
	assert.Equal(t, int64(0), testutil.Count(t, db, &models.Like{}, "message_id = ?", victimMsg.ID))
	assert.Equal(t, int64(0), testutil.Count(t, db, &models.Like{}, "user_id = ?", victim.ID))
	assert.Equal(t, int64(0), testutil.Count(t, db, &models.Follow{}, ""))
	assert.Equal(t, int64(1), testutil.Count(t, db, &models.Message{}, "id = ?", otherMsg.ID))

	err := repo.Delete(ctx, victim.ID)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestUserRepository_SearchAndList(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	testutil.CreateUser(t, db, "warbler_one")
	testutil.CreateUser(t, db, "warblerxtwo")
	testutil.CreateUser(t, db, "sparrow")

	all, err := repo.List(ctx, 50, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	hits, err := repo.Search(ctx, "warbler", 50, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	// "_" must match literally, not as a single-character wildcard.
	literal, err := repo.Search(ctx, "warbler_", 50, 0)
	require.NoError(t, err)
	require.Len(t, literal, 1)
	assert.Equal(t, "warbler_one", literal[0].Username)
}

func TestUserRepository_Stats(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	c := testutil.CreateUser(t, db, "c")

	testutil.CreateMessage(t, db, a.ID, "one", time.Now())
	testutil.CreateMessage(t, db, a.ID, "two", time.Now())
	bMsg := testutil.CreateMessage(t, db, b.ID, "three", time.Now())
	testutil.Follow(t, db, a.ID, b.ID)
	testutil.Follow(t, db, c.ID, a.ID)
	testutil.Follow(t, db, b.ID, a.ID)
	testutil.Like(t, db, a.ID, bMsg.ID)

	stats, err := repo.Stats(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserStats{Messages: 2, Following: 1, Followers: 2, Likes: 1}, *stats)
}

func TestIsUniqueConstraintError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm duplicated key", gorm.ErrDuplicatedKey, true},
		{"pg 23505", &pgconn.PgError{Code: "23505"}, true},
		{"pg other code", &pgconn.PgError{Code: "23503"}, false},
		{"sqlite message", errors.New("UNIQUE constraint failed: users.username"), true},
		{"unrelated", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueConstraintError(tt.err))
		})
	}
}

// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"warbler/internal/middleware"
	"warbler/internal/models"
	"warbler/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DemoPassword is the plaintext password of every seeded user.
const DemoPassword = "password123"

var usernameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_.\-]`)

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db   *gorm.DB
	opts Options
	rng  *rand.Rand
	hash string
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) (*Factory, error) {
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}

	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gofakeit.Seed(seed)

	return &Factory{
		db:     db,
		opts:   opts,
		rng:    rand.New(rand.NewSource(seed)), // #nosec G404: acceptable for seeding
		hash:   string(hash),
		nextID: 1000,
	}, nil
}

// BuildUser constructs a user with fake profile data without saving it.
func (f *Factory) BuildUser(overrides ...func(*models.User)) *models.User {
	username := usernameUnsafe.ReplaceAllString(gofakeit.Username(), "")
	username = fmt.Sprintf("%s%d", strings.ToLower(username), gofakeit.Number(100, 999))
	if len(username) > validation.MaxUsernameLength {
		username = username[len(username)-validation.MaxUsernameLength:]
	}

	user := &models.User{
		Username: username,
		Email:    fmt.Sprintf("%s@%s", username, gofakeit.DomainName()),
		Password: f.hash,
		ImageURL: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
		Bio:      gofakeit.Sentence(10),
		Location: fmt.Sprintf("%s, %s", gofakeit.City(), gofakeit.StateAbr()),
	}
	user.ApplyImageDefaults()

	for _, override := range overrides {
		override(user)
	}
	return user
}

// CreateUser constructs and persists a sample user.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	user := f.BuildUser(overrides...)

	if f.opts.DryRun {
		f.nextID++
		user.ID = f.nextID
		middleware.Logger.Debug("[dry-run] CreateUser", "username", user.Username)
		return user, nil
	}

	if err := f.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildMessage constructs a message by user with a timestamp spread over the
// last MaxDays days, without saving it.
func (f *Factory) BuildMessage(user *models.User, overrides ...func(*models.Message)) *models.Message {
	text := gofakeit.Sentence(f.rng.Intn(12) + 4)
	if utf8.RuneCountInString(text) > models.MaxMessageLength {
		text = string([]rune(text)[:models.MaxMessageLength])
	}

	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	back := time.Duration(f.rng.Intn(maxDays))*24*time.Hour +
		time.Duration(f.rng.Intn(24))*time.Hour +
		time.Duration(f.rng.Intn(60))*time.Minute

	message := &models.Message{
		Text:      text,
		UserID:    user.ID,
		Timestamp: time.Now().Add(-back),
	}
	for _, override := range overrides {
		override(message)
	}
	return message
}

// CreateMessagesBatch persists multiple messages in batched inserts.
func (f *Factory) CreateMessagesBatch(ctx context.Context, messages []*models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	if f.opts.DryRun {
		for _, m := range messages {
			f.nextID++
			m.ID = f.nextID
		}
		middleware.Logger.Debug("[dry-run] CreateMessagesBatch", "count", len(messages))
		return nil
	}
	return f.db.WithContext(ctx).Omit("User").CreateInBatches(messages, 100).Error
}

// CreateFollow makes follower follow followed. Repeats are ignored.
func (f *Factory) CreateFollow(ctx context.Context, follower, followed *models.User) error {
	if f.opts.DryRun {
		return nil
	}
	follow := &models.Follow{UserFollowingID: follower.ID, UserBeingFollowedID: followed.ID}
	return f.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(follow).Error
}

// CreateLike records that user liked message. Repeats are ignored.
func (f *Factory) CreateLike(ctx context.Context, user *models.User, message *models.Message) error {
	if f.opts.DryRun {
		return nil
	}
	like := &models.Like{UserID: user.ID, MessageID: message.ID}
	return f.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(like).Error
}

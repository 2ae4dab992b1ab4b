package seed

import (
	"context"
	"fmt"
	"log/slog"

	"warbler/internal/middleware"
	"warbler/internal/models"

	"gorm.io/gorm"
)

// Options configures the seeder.
type Options struct {
	Users    int
	Messages int
	Follows  int
	Likes    int

	// Clean removes existing rows before seeding.
	Clean bool
	// DryRun builds entities without writing them.
	DryRun bool
	// BcryptCost for the demo password hash; 0 means bcrypt.DefaultCost.
	BcryptCost int
	// MaxDays bounds how far back message timestamps are spread.
	MaxDays int
	// RandSeed fixes the random source; 0 seeds from the clock.
	RandSeed int64
}

// Summary reports how many rows of each kind were created.
type Summary struct {
	Users    int
	Messages int
	Follows  int
	Likes    int
}

// maxAttemptsPerRow bounds random pair picking for follows and likes.
const maxAttemptsPerRow = 20

// Seed populates the database with demo users, messages, follows and likes.
// Follows and likes are never self-referencing and never duplicated.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Summary, error) {
	middleware.Logger.Info("Starting database seeding",
		slog.Int("users", opts.Users),
		slog.Int("messages", opts.Messages),
		slog.Int("follows", opts.Follows),
		slog.Int("likes", opts.Likes))

	if opts.Clean && !opts.DryRun {
		if err := clearData(ctx, db); err != nil {
			return nil, fmt.Errorf("failed to clear data: %w", err)
		}
	}

	f, err := NewFactory(db, opts)
	if err != nil {
		return nil, err
	}
	summary := &Summary{}

	users := make([]*models.User, 0, opts.Users)
	for i := 0; i < opts.Users; i++ {
		user, err := f.CreateUser(ctx)
		if err != nil {
			// Fake usernames can collide; skip and keep going.
			middleware.Logger.Warn("Failed to create user", slog.String("error", err.Error()))
			continue
		}
		users = append(users, user)
	}
	summary.Users = len(users)
	if len(users) == 0 {
		return summary, nil
	}

	messages := make([]*models.Message, 0, opts.Messages)
	for i := 0; i < opts.Messages; i++ {
		messages = append(messages, f.BuildMessage(users[f.rng.Intn(len(users))]))
	}
	if err := f.CreateMessagesBatch(ctx, messages); err != nil {
		return nil, fmt.Errorf("failed to create messages: %w", err)
	}
	summary.Messages = len(messages)

	if summary.Follows, err = seedFollows(ctx, f, users, opts.Follows); err != nil {
		return nil, fmt.Errorf("failed to create follows: %w", err)
	}
	if summary.Likes, err = seedLikes(ctx, f, users, messages, opts.Likes); err != nil {
		return nil, fmt.Errorf("failed to create likes: %w", err)
	}

	middleware.Logger.Info("Database seeding completed",
		slog.Int("users", summary.Users),
		slog.Int("messages", summary.Messages),
		slog.Int("follows", summary.Follows),
		slog.Int("likes", summary.Likes))
	return summary, nil
}

func seedFollows(ctx context.Context, f *Factory, users []*models.User, want int) (int, error) {
	if limit := len(users) * (len(users) - 1); want > limit {
		want = limit
	}

	type pair struct{ a, b uint }
	seen := make(map[pair]bool, want)
	for attempts := 0; len(seen) < want && attempts < want*maxAttemptsPerRow; attempts++ {
		follower := users[f.rng.Intn(len(users))]
		followed := users[f.rng.Intn(len(users))]
		key := pair{follower.ID, followed.ID}
		if follower.ID == followed.ID || seen[key] {
			continue
		}
		if err := f.CreateFollow(ctx, follower, followed); err != nil {
			return len(seen), err
		}
		seen[key] = true
	}
	return len(seen), nil
}

func seedLikes(ctx context.Context, f *Factory, users []*models.User, messages []*models.Message, want int) (int, error) {
	if len(messages) == 0 || len(users) < 2 {
		return 0, nil
	}

	type pair struct{ user, message uint }
	seen := make(map[pair]bool, want)
	for attempts := 0; len(seen) < want && attempts < want*maxAttemptsPerRow; attempts++ {
		user := users[f.rng.Intn(len(users))]
		message := messages[f.rng.Intn(len(messages))]
		key := pair{user.ID, message.ID}
		if message.UserID == user.ID || seen[key] {
			continue
		}
		if err := f.CreateLike(ctx, user, message); err != nil {
			return len(seen), err
		}
		seen[key] = true
	}
	return len(seen), nil
}

func clearData(ctx context.Context, db *gorm.DB) error {
	middleware.Logger.Info("Clearing existing data")
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.Like{}, &models.Follow{}, &models.Message{}, &models.User{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"warbler/internal/models"
	"warbler/internal/notifications"
	"warbler/internal/repository"
	"warbler/internal/testutil"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type services struct {
	db       *gorm.DB
	auth     *AuthService
	users    *UserService
	follows  *FollowService
	messages *MessageService
	events   *recordingPublisher
}

func newServices(t *testing.T) *services {
	t.Helper()
	db := testutil.NewTestDB(t)

	userRepo := repository.NewUserRepository(db)
	followRepo := repository.NewFollowRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	likeRepo := repository.NewLikeRepository(db)
	events := &recordingPublisher{}

	auth := NewAuthService(userRepo, bcrypt.MinCost)
	follows := NewFollowService(followRepo, userRepo, events)
	return &services{
		db:       db,
		auth:     auth,
		users:    NewUserService(userRepo, follows, messageRepo, auth, 100),
		follows:  follows,
		messages: NewMessageService(messageRepo, likeRepo, userRepo, events, 100),
		events:   events,
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Code != code {
		t.Fatalf("expected %s app error, got %#v", code, err)
	}
}

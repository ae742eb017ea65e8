package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Gopher0727/StaffPortal/internal/models"
	"github.com/Gopher0727/StaffPortal/internal/repositories"
	"github.com/Gopher0727/StaffPortal/internal/storage"
	"github.com/Gopher0727/StaffPortal/internal/testutil"
)

var ctx = context.Background()

type fixture struct {
	db       *gorm.DB
	users    *repositories.UserRepository
	groups   *repositories.GroupRepository
	messages *repositories.MessageRepository
	tasks    *repositories.TaskRepository
	seq      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenSQLite(t)
	require.NoError(t, storage.Migrate(db))
	return &fixture{
		db:       db,
		users:    repositories.NewUserRepository(db, nil),
		groups:   repositories.NewGroupRepository(db),
		messages: repositories.NewMessageRepository(db),
		tasks:    repositories.NewTaskRepository(db),
	}
}

// user 直接写库创建一个员工
func (f *fixture) user(t *testing.T, first, last string) *models.User {
	t.Helper()
	f.seq++
	email := fmt.Sprintf("user%d@example.com", f.seq)
	u := &models.User{UserName: email, Email: email, PasswordHash: "-", FirstName: first, LastName: last}
	require.NoError(t, f.users.Create(ctx, u))
	return u
}

func (f *fixture) messageService(opts MessageServiceOptions) *MessageService {
	svc := NewMessageService(f.groups, f.messages, f.users, opts)
	svc.now = ticker(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	return svc
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

// ticker 每次调用前进一秒
func ticker(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func ids(users ...*models.User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = strconv.FormatUint(uint64(u.ID), 10)
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev, ok := event.(Event); ok {
		p.events = append(p.events, ev)
	}
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

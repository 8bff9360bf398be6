package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/codegenie/apiserver/internal/db"
	"github.com/codegenie/apiserver/internal/lock"
	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/internal/mail"
	"github.com/codegenie/apiserver/internal/store"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.OTPMessage
	err  error
}

func (f *fakeMailer) SendOTP(_ context.Context, msg mail.OTPMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fixture struct {
	stores    *store.Stores
	clock     *clock
	mailer    *fakeMailer
	users     *UserService
	recovery  *RecoveryService
	activity  *ActivityService
	dashboard *DashboardService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend, err := db.NewFileBackend(t.TempDir())
	require.NoError(t, err)

	log := logging.Discard()
	stores := store.New(backend, lock.NewLocalLocker(), log)
	_, err = stores.InitAll(context.Background())
	require.NoError(t, err)

	clk := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	mailer := &fakeMailer{}

	users := NewUserService(stores.Users, stores.Activity, stores.History, stores.Feedback, log)
	users.now = clk.Now

	recovery := NewRecoveryService(stores.Users, mailer, 10*time.Minute, log)
	recovery.now = clk.Now
	recovery.newCode = func() string { return "123456" }

	activity := NewActivityService(stores.Activity, stores.History, stores.Feedback, log)
	activity.now = clk.Now

	return &fixture{
		stores:    stores,
		clock:     clk,
		mailer:    mailer,
		users:     users,
		recovery:  recovery,
		activity:  activity,
		dashboard: NewDashboardService(stores.Users, stores.Activity, stores.History, stores.Feedback),
	}
}

func (f *fixture) register(t *testing.T, id, username, password string) {
	t.Helper()
	_, _, err := f.users.RegisterWithPassword(context.Background(), RegisterInput{UserID: id, Username: username}, password)
	require.NoError(t, err)
}

package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/cheeseball/internal/domain"
	"go.uber.org/zap"
)

type resetFixture struct {
	store   *MockStore
	mailer  *MockMailer
	auth    *AuthService
	service *PasswordResetService
	clock   *testClock
}

func newResetFixture(t *testing.T) *resetFixture {
	t.Helper()
	store := NewMockStore()
	auth := newTestAuthService(store)
	registerUser(t, auth, "alice")

	mailer := &MockMailer{}
	clock := &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	service := NewPasswordResetService(store, store, mailer, auth, 10*time.Minute, 3, zap.NewNop())
	service.timeNow = clock.Now
	service.generateCode = func() (string, error) { return "123456", nil }

	return &resetFixture{store: store, mailer: mailer, auth: auth, service: service, clock: clock}
}

func TestPasswordReset_FullFlow(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.RequestReset(ctx, "alice@example.com"))
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "alice@example.com", f.mailer.sent[0].To)
	assert.Contains(t, f.mailer.sent[0].Body, "123456")

	stored, err := f.store.GetPasswordReset(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "123456", stored.CodeHash)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), stored.ExpiresAt)

	require.NoError(t, f.service.VerifyOTP(ctx, "alice@example.com", "123456"))
	require.NoError(t, f.service.ResetPassword(ctx, "alice@example.com", "123456", "n3w-pass"))

	_, err = f.auth.Login(ctx, "alice", "n3w-pass")
	assert.NoError(t, err)
	_, err = f.auth.Login(ctx, "alice", "s3cret")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	// The code is single-use.
	err = f.service.ResetPassword(ctx, "alice@example.com", "123456", "again")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestPasswordReset_UnknownEmail(t *testing.T) {
	f := newResetFixture(t)
	err := f.service.RequestReset(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.mailer.sent)
}

func TestPasswordReset_ResetRequiresValidCode(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.RequestReset(ctx, "alice@example.com"))

	err := f.service.ResetPassword(ctx, "alice@example.com", "000000", "hijack")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Zero(t, f.store.passwordUpdates)
}

func TestPasswordReset_Expired(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.RequestReset(ctx, "alice@example.com"))

	f.clock.Advance(10 * time.Minute)
	err := f.service.VerifyOTP(ctx, "alice@example.com", "123456")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.store.GetPasswordReset(ctx, "alice@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPasswordReset_AttemptsExhausted(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.RequestReset(ctx, "alice@example.com"))

	for i := 0; i < 3; i++ {
		err := f.service.VerifyOTP(ctx, "alice@example.com", "999999")
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	}

	// The right code no longer works once the limit is hit.
	err := f.service.VerifyOTP(ctx, "alice@example.com", "123456")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestPasswordReset_ConcurrentGuessesBoundedByLimit(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.RequestReset(ctx, "alice@example.com"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.service.VerifyOTP(ctx, "alice@example.com", "999999")
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, f.store.attemptsGranted)
	err := f.service.VerifyOTP(ctx, "alice@example.com", "123456")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestPasswordReset_OnlyFailuresCountAsAttempts(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.RequestReset(ctx, "alice@example.com"))

	assert.ErrorIs(t, f.service.VerifyOTP(ctx, "alice@example.com", "999999"), domain.ErrInvalidArgument)
	require.NoError(t, f.service.VerifyOTP(ctx, "alice@example.com", "123456"))
	require.NoError(t, f.service.VerifyOTP(ctx, "alice@example.com", "123456"))

	stored, err := f.store.GetPasswordReset(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)
}

func TestPasswordReset_MailFailure(t *testing.T) {
	f := newResetFixture(t)
	f.mailer.err = errors.New("smtp down")

	err := f.service.RequestReset(context.Background(), "alice@example.com")
	require.Error(t, err)
	assert.Equal(t, "Could not send OTP email", err.Error())
}

func TestResetCleanupJob(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.RequestReset(ctx, "alice@example.com"))

	job := NewResetCleanupJob(f.service)
	assert.Equal(t, "password_reset_cleanup", job.Name())

	require.NoError(t, job.Run())
	_, err := f.store.GetPasswordReset(ctx, "alice@example.com")
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	require.NoError(t, job.Run())
	_, err = f.store.GetPasswordReset(ctx, "alice@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRandomCode(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := randomCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9')
		}
	}
}

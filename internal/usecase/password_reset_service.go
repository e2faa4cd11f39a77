package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/vitos/cheeseball/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const otpDigits = 6

var errInvalidOTP = domain.NewError(domain.ErrInvalidArgument, "Invalid OTP")

// PasswordResetService runs the e-mailed one-time code flow.
type PasswordResetService struct {
	users       domain.UserRepository
	resets      domain.PasswordResetRepository
	mailer      domain.Mailer
	auth        *AuthService
	otpTTL      time.Duration
	maxAttempts int
	logger      *zap.Logger

	timeNow      func() time.Time       // For testing
	generateCode func() (string, error) // For testing
}

func NewPasswordResetService(users domain.UserRepository, resets domain.PasswordResetRepository, mailer domain.Mailer, auth *AuthService, otpTTL time.Duration, maxAttempts int, logger *zap.Logger) *PasswordResetService {
	return &PasswordResetService{
		users:        users,
		resets:       resets,
		mailer:       mailer,
		auth:         auth,
		otpTTL:       otpTTL,
		maxAttempts:  maxAttempts,
		logger:       logger.With(zap.String("component", "password_reset")),
		timeNow:      time.Now,
		generateCode: randomCode,
	}
}

func randomCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// RequestReset stores a fresh code for email and mails it, replacing any
// pending one.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	if email == "" {
		return domain.NewError(domain.ErrInvalidArgument, "email is required")
	}
	if _, err := s.users.GetUserByEmail(ctx, email); err != nil {
		return err
	}

	code, err := s.generateCode()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.auth.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash otp: %w", err)
	}

	reset := &domain.PasswordReset{
		Email:     email,
		CodeHash:  string(hash),
		ExpiresAt: s.timeNow().Add(s.otpTTL).UTC(),
	}
	if err := s.resets.SavePasswordReset(ctx, reset); err != nil {
		return err
	}

	body := fmt.Sprintf("Your password reset code is %s. It expires in %d minutes.", code, int(s.otpTTL.Minutes()))
	if err := s.mailer.Send(ctx, email, "Password reset code", body); err != nil {
		s.logger.Error("Failed to send OTP email", zap.Error(err))
		return &domain.Error{Kind: err, Detail: "Could not send OTP email"}
	}

	s.logger.Info("Password reset requested")
	return nil
}

// VerifyOTP checks a code without consuming it.
func (s *PasswordResetService) VerifyOTP(ctx context.Context, email, otp string) error {
	if err := s.checkCode(ctx, email, otp); err != nil {
		return err
	}
	return s.resets.MarkResetVerified(ctx, email, s.timeNow().UTC())
}

// ResetPassword consumes a valid code and stores the new password.
func (s *PasswordResetService) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	if newPassword == "" {
		return domain.NewError(domain.ErrInvalidArgument, "new_password is required")
	}
	if err := s.checkCode(ctx, email, otp); err != nil {
		return err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.auth.SetPassword(ctx, user.ID, newPassword); err != nil {
		return err
	}
	if err := s.resets.DeletePasswordReset(ctx, email); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	s.logger.Info("Password reset completed", zap.Int64("user_id", user.ID))
	return nil
}

// checkCode validates otp against the pending reset. Expired or exhausted
// codes are removed; a wrong code counts as an attempt.
func (s *PasswordResetService) checkCode(ctx context.Context, email, otp string) error {
	reset, err := s.resets.GetPasswordReset(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return errInvalidOTP
	}
	if err != nil {
		return err
	}
	if !s.timeNow().Before(reset.ExpiresAt) {
		return s.invalidate(ctx, email)
	}

	// An attempt is claimed before comparing, so concurrent guesses cannot
	// exceed the limit.
	used, err := s.resets.ConsumeResetAttempt(ctx, email, s.maxAttempts)
	if errors.Is(err, domain.ErrNotFound) {
		return s.invalidate(ctx, email)
	}
	if err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(reset.CodeHash), []byte(otp)) != nil {
		if used >= s.maxAttempts {
			return s.invalidate(ctx, email)
		}
		return errInvalidOTP
	}

	// Only failed guesses count against the limit.
	if err := s.resets.RefundResetAttempt(ctx, email); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

func (s *PasswordResetService) invalidate(ctx context.Context, email string) error {
	if err := s.resets.DeletePasswordReset(ctx, email); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return errInvalidOTP
}

// PurgeExpired deletes reset records past their expiry.
func (s *PasswordResetService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.resets.DeleteExpiredResets(ctx, s.timeNow().UTC())
}

// ResetCleanupJob is the scheduled wrapper around PurgeExpired.
type ResetCleanupJob struct {
	service *PasswordResetService
	timeout time.Duration
}

func NewResetCleanupJob(service *PasswordResetService) *ResetCleanupJob {
	return &ResetCleanupJob{service: service, timeout: 30 * time.Second}
}

func (j *ResetCleanupJob) Name() string { return "password_reset_cleanup" }

func (j *ResetCleanupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.service.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		j.service.logger.Info("Expired password resets removed", zap.Int64("count", n))
	}
	return nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vitos/cheeseball/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const (
	TokenTypeBearer          = "bearer"
	DefaultPreferredCurrency = "usd"
)

var errBadCredentials = domain.NewError(domain.ErrUnauthenticated, "Incorrect username or password")

// AuthService issues and verifies bearer tokens for registered accounts.
type AuthService struct {
	users      domain.UserRepository
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
	timeNow    func() time.Time // For testing
}

func NewAuthService(users domain.UserRepository, secret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		users:      users,
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		bcryptCost: bcrypt.DefaultCost,
		timeNow:    time.Now,
	}
}

type RegisterInput struct {
	Username          string
	Email             string
	Password          string
	PreferredCurrency string
}

type LoginResult struct {
	AccessToken string
	TokenType   string
	User        *domain.User
}

// Register creates an active, non-admin account.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	switch {
	case in.Username == "":
		return nil, domain.NewError(domain.ErrInvalidArgument, "username is required")
	case in.Email == "":
		return nil, domain.NewError(domain.ErrInvalidArgument, "email is required")
	case in.Password == "":
		return nil, domain.NewError(domain.ErrInvalidArgument, "password is required")
	}
	if in.PreferredCurrency == "" {
		in.PreferredCurrency = DefaultPreferredCurrency
	}

	if err := s.ensureAvailable(ctx, in.Username, in.Email); err != nil {
		return nil, err
	}

	hashed, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:          in.Username,
		Email:             in.Email,
		HashedPassword:    hashed,
		PreferredCurrency: strings.ToLower(in.PreferredCurrency),
		IsActive:          true,
		CreatedAt:         s.timeNow().UTC(),
	}
	// The store enforces uniqueness too, for concurrent registrations.
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) ensureAvailable(ctx context.Context, username, email string) error {
	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return domain.NewError(domain.ErrConflict, "Username or email already registered")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return domain.NewError(domain.ErrConflict, "Username or email already registered")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return nil, errBadCredentials
	}
	if !user.IsActive {
		return nil, domain.NewError(domain.ErrUnauthenticated, "Inactive user")
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: token, TokenType: TokenTypeBearer, User: user}, nil
}

// IssueToken signs an HS256 token whose subject is the username.
func (s *AuthService) IssueToken(user *domain.User) (string, error) {
	now := s.timeNow()
	claims := jwt.RegisteredClaims{
		Subject:   user.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Authenticate resolves a bearer token to the identity of an active user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	unauthenticated := domain.NewError(domain.ErrUnauthenticated, "Could not validate credentials")
	if token == "" {
		return nil, domain.NewError(domain.ErrUnauthenticated, "Not authenticated")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.timeNow))
	if err != nil || claims.Subject == "" {
		return nil, unauthenticated
	}

	user, err := s.users.GetUserByUsername(ctx, claims.Subject)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, unauthenticated
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.NewError(domain.ErrUnauthenticated, "Inactive user")
	}

	return &domain.Identity{UserID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin}, nil
}

func (s *AuthService) HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", domain.NewError(domain.ErrInvalidArgument, "password is too long")
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// SetPassword replaces the stored hash for a user.
func (s *AuthService) SetPassword(ctx context.Context, userID int64, password string) error {
	if password == "" {
		return domain.NewError(domain.ErrInvalidArgument, "password is required")
	}
	hashed, err := s.HashPassword(password)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hashed)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/onecost/internal/application/port"
	"github.com/garyjia/onecost/internal/domain/entity"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the minimum accepted password length
	MinPasswordLength = 4

	tokenIssuer = "onecost"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or wrong password
	ErrInvalidCredentials = errors.New("incorrect username or password")

	// ErrUserExists is returned when registering a taken username
	ErrUserExists = errors.New("username already registered")

	// ErrInvalidToken is returned for a malformed, expired or forged token
	ErrInvalidToken = errors.New("invalid token")
)

// AuthConfig holds token signing settings
type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// Token is the result of a successful login
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      int64  `json:"user_id"`
}

// AuthService issues and validates bearer tokens
type AuthService interface {
	// Login checks the credentials and issues a token
	Login(ctx context.Context, username, password string) (*Token, error)

	// Authenticate resolves a bearer token to its user
	Authenticate(ctx context.Context, token string) (*entity.User, error)

	// Register creates a user with a hashed password
	Register(ctx context.Context, username, password string, isAdmin bool) (*entity.User, error)
}

type authServiceImpl struct {
	config AuthConfig
	users  port.UserRepository
	logger Logger
	now    func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(config AuthConfig, users port.UserRepository, logger Logger) AuthService {
	if config.TokenTTL <= 0 {
		config.TokenTTL = 8 * time.Hour
	}
	return &authServiceImpl{
		config: config,
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// HashPassword generates a bcrypt hash from a plain text password
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a plain text password with a hash
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *authServiceImpl) Login(ctx context.Context, username, password string) (*Token, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || !CheckPasswordHash(password, user.HashedPassword) {
		s.logger.Info("Rejected login", "username", username)
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(user.ID, 10),
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Info("User logged in", "user_id", user.ID)
	return &Token{AccessToken: signed, TokenType: "bearer", UserID: user.ID}, nil
}

func (s *authServiceImpl) Authenticate(ctx context.Context, token string) (*entity.User, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return []byte(s.config.Secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: unknown user", ErrInvalidToken)
	}
	return user, nil
}

func (s *authServiceImpl) Register(ctx context.Context, username, password string, isAdmin bool) (*entity.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters long", ErrInvalidInput, MinPasswordLength)
	}

	existing, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entity.User{Username: username, HashedPassword: hash, IsAdmin: isAdmin}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User registered", "user_id", user.ID, "is_admin", isAdmin)
	return user, nil
}

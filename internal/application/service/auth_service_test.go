package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/garyjia/onecost/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUserRepo struct {
	users  map[string]*entity.User
	nextID int64
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*entity.User)}
}

func (m *mockUserRepo) Create(ctx context.Context, u *entity.User) error {
	m.nextID++
	u.ID = m.nextID
	m.users[u.Username] = u
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return m.users[username], nil
}

func TestAuthService_LoginAndAuthenticate(t *testing.T) {
	users := newMockUserRepo()
	svc := NewAuthService(AuthConfig{Secret: "s3cret", TokenTTL: time.Hour}, users, &mockLogger{})
	ctx := context.Background()

	registered, err := svc.Register(ctx, "robo", "senha123", false)
	require.NoError(t, err)
	assert.NotEqual(t, "senha123", registered.HashedPassword)

	token, err := svc.Login(ctx, "robo", "senha123")
	require.NoError(t, err)
	assert.Equal(t, "bearer", token.TokenType)
	assert.Equal(t, registered.ID, token.UserID)

	user, err := svc.Authenticate(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "robo", user.Username)

	_, err = svc.Login(ctx, "robo", "wrong")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	_, err = svc.Login(ctx, "nobody", "senha123")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestAuthService_Authenticate_Rejects(t *testing.T) {
	users := newMockUserRepo()
	svc := NewAuthService(AuthConfig{Secret: "s3cret", TokenTTL: time.Hour}, users, &mockLogger{})
	ctx := context.Background()

	_, err := svc.Register(ctx, "robo", "senha123", false)
	require.NoError(t, err)
	token, err := svc.Login(ctx, "robo", "senha123")
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "not-a-token")
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("other secret", func(t *testing.T) {
		other := NewAuthService(AuthConfig{Secret: "different", TokenTTL: time.Hour}, users, &mockLogger{})
		_, err := other.Authenticate(ctx, token.AccessToken)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("expired", func(t *testing.T) {
		impl := svc.(*authServiceImpl)
		impl.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { impl.now = time.Now }()

		_, err := svc.Authenticate(ctx, token.AccessToken)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})
}

func TestAuthService_Register(t *testing.T) {
	svc := NewAuthService(AuthConfig{Secret: "s3cret"}, newMockUserRepo(), &mockLogger{})
	ctx := context.Background()

	admin, err := svc.Register(ctx, "admin", "abcd", true)
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)

	_, err = svc.Register(ctx, "admin", "abcdef", false)
	assert.True(t, errors.Is(err, ErrUserExists))

	_, err = svc.Register(ctx, "short", "abc", false)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = svc.Register(ctx, "  ", "abcdef", false)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

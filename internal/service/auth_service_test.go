package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chongxue30/stu-agent/internal/database/dbtest"
	"github.com/chongxue30/stu-agent/internal/model"
	"github.com/chongxue30/stu-agent/internal/repository"
	"github.com/chongxue30/stu-agent/pkg/jwt"
)

type memBlacklist map[string]time.Time

func (b memBlacklist) BlacklistToken(_ context.Context, tokenHash string, expireAt time.Time) error {
	b[tokenHash] = expireAt
	return nil
}

func newAccountServices(t *testing.T) (*AuthService, *UserService, *repository.UserRepository, memBlacklist) {
	t.Helper()
	users := repository.NewUserRepository(dbtest.New(t))
	tokens := jwt.NewJWTService("account-test-secret-account-test", time.Hour, 24*time.Hour)
	blacklist := memBlacklist{}
	return NewAuthService(users, blacklist, tokens), NewUserService(users), users, blacklist
}

func TestRegisterAndLogin(t *testing.T) {
	auth, _, _, _ := newAccountServices(t)
	ctx := context.Background()

	reg, err := auth.Register(ctx, &RegisterRequest{Username: " alice ", Password: "secret1", Email: "Alice@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "alice", reg.Username)

	_, err = auth.Register(ctx, &RegisterRequest{Username: "alice", Password: "secret1"})
	assert.ErrorIs(t, err, ErrUserExists)
	_, err = auth.Register(ctx, &RegisterRequest{Username: "bob", Password: "secret1", Email: "alice@example.com"})
	assert.ErrorIs(t, err, ErrEmailExists)

	_, err = auth.Login(ctx, &LoginRequest{Username: "nobody", Password: "x"})
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = auth.Login(ctx, &LoginRequest{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, ErrPasswordWrong)

	login, err := auth.Login(ctx, &LoginRequest{Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, login.AccessToken)
	assert.NotEmpty(t, login.RefreshToken)
	assert.Equal(t, int64(3600), login.ExpiresIn)
	require.NotNil(t, login.User.Email)
	assert.Equal(t, "alice@example.com", *login.User.Email)
}

func TestRefreshRejectsDisabledUser(t *testing.T) {
	auth, _, users, _ := newAccountServices(t)
	ctx := context.Background()

	reg, err := auth.Register(ctx, &RegisterRequest{Username: "carol", Password: "secret1"})
	require.NoError(t, err)
	login, err := auth.Login(ctx, &LoginRequest{Username: "carol", Password: "secret1"})
	require.NoError(t, err)

	refreshed, err := auth.RefreshToken(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEmpty(t, refreshed.RefreshToken)

	_, err = auth.RefreshToken(ctx, login.AccessToken)
	assert.Error(t, err)

	require.NoError(t, users.UpdateFields(ctx, reg.UserID, map[string]interface{}{"status": model.StatusDisabled}))
	_, err = auth.RefreshToken(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrUserDisabled)
	_, err = auth.Login(ctx, &LoginRequest{Username: "carol", Password: "secret1"})
	assert.ErrorIs(t, err, ErrUserDisabled)
}

func TestLogoutBlacklistsUntilExpiry(t *testing.T) {
	auth, _, _, blacklist := newAccountServices(t)
	ctx := context.Background()

	exp := time.Now().Add(time.Hour)
	require.NoError(t, auth.Logout(ctx, "hash-1", exp))
	assert.Equal(t, exp, blacklist["hash-1"])

	// 已过期的 Token 无需加入黑名单
	require.NoError(t, auth.Logout(ctx, "hash-2", time.Now().Add(-time.Minute)))
	assert.NotContains(t, blacklist, "hash-2")
}

func TestProfileAndPassword(t *testing.T) {
	auth, users, _, _ := newAccountServices(t)
	ctx := context.Background()

	a, err := auth.Register(ctx, &RegisterRequest{Username: "dave", Password: "secret1", Email: "dave@example.com"})
	require.NoError(t, err)
	b, err := auth.Register(ctx, &RegisterRequest{Username: "erin", Password: "secret1"})
	require.NoError(t, err)

	taken := "DAVE@example.com"
	_, err = users.UpdateProfile(ctx, b.UserID, &UpdateProfileRequest{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailExists)

	avatar := "https://cdn.example.com/a.png"
	empty := ""
	u, err := users.UpdateProfile(ctx, a.UserID, &UpdateProfileRequest{Email: &empty, Avatar: &avatar})
	require.NoError(t, err)
	assert.Nil(t, u.Email)
	require.NotNil(t, u.Avatar)
	assert.Equal(t, avatar, *u.Avatar)

	err = users.ChangePassword(ctx, a.UserID, &ChangePasswordRequest{OldPassword: "bad", NewPassword: "secret2"})
	assert.ErrorIs(t, err, ErrPasswordWrong)
	err = users.ChangePassword(ctx, a.UserID, &ChangePasswordRequest{OldPassword: "secret1", NewPassword: "secret1"})
	assert.ErrorIs(t, err, ErrPasswordUnchanged)
	require.NoError(t, users.ChangePassword(ctx, a.UserID, &ChangePasswordRequest{OldPassword: "secret1", NewPassword: "secret2"}))

	_, err = auth.Login(ctx, &LoginRequest{Username: "dave", Password: "secret2"})
	assert.NoError(t, err)

	_, err = users.GetProfile(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

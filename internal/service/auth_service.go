// Package service 提供业务逻辑层的实现
// 推理链路（模型解析、上下文组装、推理编排）和对话、角色、账号等管理功能
package service

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/chongxue30/stu-agent/internal/model"
	"github.com/chongxue30/stu-agent/pkg/jwt"
	"github.com/chongxue30/stu-agent/pkg/util"
)

// 账号相关错误
var (
	ErrUserExists    = errors.New("用户名已存在")
	ErrEmailExists   = errors.New("邮箱已被注册")
	ErrUserNotFound  = errors.New("用户不存在")
	ErrPasswordWrong = errors.New("密码错误")
)

// TokenBlacklist 登出后的 Token 黑名单
type TokenBlacklist interface {
	BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error
}

// AuthService 认证服务
type AuthService struct {
	users     UserStore
	blacklist TokenBlacklist
	tokens    *jwt.JWTService
}

// NewAuthService 创建 AuthService 实例
// blacklist 为 nil 时登出只是空操作
func NewAuthService(users UserStore, blacklist TokenBlacklist, tokens *jwt.JWTService) *AuthService {
	return &AuthService{
		users:     users,
		blacklist: blacklist,
		tokens:    tokens,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6"`
	Email    string `json:"email" binding:"omitempty,email"`
}

// RegisterResponse 注册响应
type RegisterResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// Register 用户注册
// 用户名去掉首尾空白，邮箱统一小写
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	username := strings.TrimSpace(req.Username)
	email := normalizeEmail(req.Email)

	existing, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, errors.Wrap(err, "lookup username")
	}
	if existing != nil {
		return nil, ErrUserExists
	}
	if err := emailFree(ctx, s.users, email, 0); err != nil {
		return nil, err
	}

	hash, err := util.HashPassword(req.Password)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		Status:       model.StatusEnabled,
	}
	if email != "" {
		user.Email = &email
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, errors.Wrap(err, "create user")
	}

	return &RegisterResponse{UserID: user.ID, Username: user.Username}, nil
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"` // Access Token 有效期（秒）
	User         *model.User `json:"user"`
}

// Login 用户登录
// 返回:
//   - error: ErrUserNotFound / ErrPasswordWrong / ErrUserDisabled
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		return nil, errors.Wrap(err, "lookup user")
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !util.CheckPassword(req.Password, user.PasswordHash) {
		return nil, ErrPasswordWrong
	}
	if user.Status != model.StatusEnabled {
		return nil, ErrUserDisabled
	}

	pair, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		User:         user,
	}, nil
}

// Logout 将 Token 加入黑名单，TTL 为 Token 的剩余有效期
func (s *AuthService) Logout(ctx context.Context, tokenHash string, expireAt time.Time) error {
	if s.blacklist == nil || !expireAt.After(time.Now()) {
		return nil
	}
	return errors.Wrap(s.blacklist.BlacklistToken(ctx, tokenHash, expireAt), "blacklist token")
}

// RefreshTokenResponse 刷新 Token 响应
// Refresh Token 同时轮换
type RefreshTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshToken 使用 Refresh Token 换取新的一对 Token
// 用户被删除或禁用后不再允许刷新
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*RefreshTokenResponse, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := activeUser(ctx, s.users, claims.UserID)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// issue 为用户签发 Access Token 和 Refresh Token
func (s *AuthService) issue(user *model.User) (*RefreshTokenResponse, error) {
	accessToken, err := s.tokens.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		return nil, errors.Wrap(err, "sign access token")
	}
	refreshToken, err := s.tokens.GenerateRefreshToken(user.ID, user.Username)
	if err != nil {
		return nil, errors.Wrap(err, "sign refresh token")
	}
	return &RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tokens.GetAccessExpire().Seconds()),
	}, nil
}

// emailFree 邮箱未被 selfID 以外的用户占用
func emailFree(ctx context.Context, users UserStore, email string, selfID int64) error {
	if email == "" {
		return nil
	}
	owner, err := users.GetByEmail(ctx, email)
	if err != nil {
		return errors.Wrap(err, "lookup email")
	}
	if owner != nil && owner.ID != selfID {
		return ErrEmailExists
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

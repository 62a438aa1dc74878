package service

import (
	"context"

	"github.com/pkg/errors"

	"github.com/chongxue30/stu-agent/internal/model"
	"github.com/chongxue30/stu-agent/pkg/util"
)

// 用户资料相关错误
var (
	ErrUserDisabled      = errors.New("用户已被禁用")
	ErrPasswordUnchanged = errors.New("新密码不能与旧密码相同")
)

// UserService 当前用户的资料和密码
type UserService struct {
	users UserStore
}

// NewUserService 创建 UserService 实例
func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

// GetProfile 获取用户资料
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	return activeUser(ctx, s.users, userID)
}

// UpdateProfileRequest 更新用户资料请求
// 字段为 nil 表示不修改，空字符串表示清空
type UpdateProfileRequest struct {
	Email  *string `json:"email" binding:"omitempty,max=100"`
	Avatar *string `json:"avatar" binding:"omitempty,max=500"`
}

// UpdateProfile 更新用户资料
// 参数:
//   - ctx: 上下文
//   - userID: 当前用户
//   - req: 更新请求
//
// 返回:
//   - *model.User: 更新后的用户
//   - error: 邮箱已被其他用户占用时返回 ErrEmailExists
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, req *UpdateProfileRequest) (*model.User, error) {
	user, err := activeUser(ctx, s.users, userID)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if err := emailFree(ctx, s.users, email, userID); err != nil {
			return nil, err
		}
		// 空邮箱存 NULL，唯一索引允许多个 NULL
		if email == "" {
			fields["email"] = nil
		} else {
			fields["email"] = email
		}
	}
	if req.Avatar != nil {
		if *req.Avatar == "" {
			fields["avatar"] = nil
		} else {
			fields["avatar"] = *req.Avatar
		}
	}
	if len(fields) == 0 {
		return user, nil
	}

	if err := s.users.UpdateFields(ctx, userID, fields); err != nil {
		return nil, errors.Wrapf(err, "update profile of user %d", userID)
	}
	return activeUser(ctx, s.users, userID)
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// ChangePassword 校验旧密码后修改密码
// 已签发的 Token 不受影响，直到过期或登出
func (s *UserService) ChangePassword(ctx context.Context, userID int64, req *ChangePasswordRequest) error {
	user, err := activeUser(ctx, s.users, userID)
	if err != nil {
		return err
	}
	if !util.CheckPassword(req.OldPassword, user.PasswordHash) {
		return ErrPasswordWrong
	}
	if req.OldPassword == req.NewPassword {
		return ErrPasswordUnchanged
	}

	hash, err := util.HashPassword(req.NewPassword)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	return errors.Wrapf(
		s.users.UpdateFields(ctx, userID, map[string]interface{}{"password_hash": hash}),
		"update password of user %d", userID,
	)
}

// activeUser 读取存在且未被禁用的用户
func activeUser(ctx context.Context, users UserStore, userID int64) (*model.User, error) {
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "get user %d", userID)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.Status != model.StatusEnabled {
		return nil, ErrUserDisabled
	}
	return user, nil
}

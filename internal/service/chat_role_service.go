package service

import (
	"context"

	"github.com/pkg/errors"

	"github.com/chongxue30/stu-agent/internal/model"
	"github.com/chongxue30/stu-agent/internal/repository"
)

// ErrPersonaForbidden 修改或删除不属于自己的角色
var ErrPersonaForbidden = errors.New("无权限操作此角色")

// ChatRoleService 聊天角色服务
type ChatRoleService struct {
	roleRepo *repository.ChatRoleRepository
	models   ModelStore
}

// NewChatRoleService 创建 ChatRoleService 实例
func NewChatRoleService(roleRepo *repository.ChatRoleRepository, models ModelStore) *ChatRoleService {
	return &ChatRoleService{roleRepo: roleRepo, models: models}
}

// ChatRoleRequest 创建/更新角色请求
type ChatRoleRequest struct {
	ID            int64  `json:"id"`                                 // 更新时必填
	Name          string `json:"name" binding:"required,max=128"`    // 角色名称
	Avatar        string `json:"avatar" binding:"max=256"`           // 头像
	Category      string `json:"category" binding:"max=32"`          // 类别
	Sort          int    `json:"sort"`                               // 排序
	Description   string `json:"description" binding:"max=256"`      // 描述
	SystemMessage string `json:"system_message" binding:"max=1024"` // 系统提示
	ModelID       *int64 `json:"model_id"`                           // 绑定的模型，可选
	PublicStatus  bool   `json:"public_status"`                      // 是否公开
}

// Create 创建角色，创建者即为所有者
func (s *ChatRoleService) Create(ctx context.Context, userID int64, req *ChatRoleRequest) (*model.ChatRole, error) {
	if err := s.checkModel(ctx, req.ModelID); err != nil {
		return nil, err
	}

	role := &model.ChatRole{
		UserID:        &userID,
		ModelID:       req.ModelID,
		Name:          req.Name,
		Avatar:        req.Avatar,
		Category:      req.Category,
		Sort:          req.Sort,
		Description:   req.Description,
		SystemMessage: req.SystemMessage,
		PublicStatus:  req.PublicStatus,
		Status:        model.StatusEnabled,
	}
	if err := s.roleRepo.Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// Update 更新角色，只有所有者可以修改
func (s *ChatRoleService) Update(ctx context.Context, userID int64, req *ChatRoleRequest) (*model.ChatRole, error) {
	if _, err := s.owned(ctx, userID, req.ID); err != nil {
		return nil, err
	}
	if err := s.checkModel(ctx, req.ModelID); err != nil {
		return nil, err
	}

	err := s.roleRepo.UpdateFields(ctx, req.ID, map[string]interface{}{
		"name":           req.Name,
		"avatar":         req.Avatar,
		"category":       req.Category,
		"sort":           req.Sort,
		"description":    req.Description,
		"system_message": req.SystemMessage,
		"model_id":       req.ModelID,
		"public_status":  req.PublicStatus,
	})
	if err != nil {
		return nil, err
	}
	return s.roleRepo.GetByID(ctx, req.ID)
}

// Delete 软删除角色
func (s *ChatRoleService) Delete(ctx context.Context, userID, id int64) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.roleRepo.SoftDelete(ctx, id)
}

// Get 获取角色，私有角色只有所有者可见
func (s *ChatRoleService) Get(ctx context.Context, userID, id int64) (*model.ChatRole, error) {
	role, err := s.roleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == nil || !(role.PublicStatus || role.OwnedBy(userID)) {
		return nil, ErrPersonaNotFound
	}
	return role, nil
}

// List 获取可见角色列表
func (s *ChatRoleService) List(ctx context.Context, userID int64, category string) ([]model.ChatRole, error) {
	return s.roleRepo.ListVisible(ctx, userID, category)
}

// Categories 获取公开角色的类别
func (s *ChatRoleService) Categories(ctx context.Context) ([]string, error) {
	return s.roleRepo.ListCategories(ctx)
}

func (s *ChatRoleService) owned(ctx context.Context, userID, id int64) (*model.ChatRole, error) {
	role, err := s.roleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, ErrPersonaNotFound
	}
	if !role.OwnedBy(userID) {
		return nil, ErrPersonaForbidden
	}
	return role, nil
}

// checkModel 绑定的模型必须存在且启用
func (s *ChatRoleService) checkModel(ctx context.Context, modelID *int64) error {
	if modelID == nil {
		return nil
	}
	m, err := s.models.GetByID(ctx, *modelID)
	if err != nil {
		return err
	}
	if !m.Usable() {
		return ErrModelUnavailable
	}
	return nil
}

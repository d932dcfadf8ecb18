package store

import (
	"context"
	"fmt"

	"taskmanager/internal/model"

	"gorm.io/gorm"
)

// UserStore 基于 GORM 的用户存储。
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// CreateUser 写入新用户，用户名冲突返回 ErrDuplicate。
func (s *UserStore) CreateUser(ctx context.Context, user *model.User) error {
	exists, err := s.UsernameExists(ctx, user.Username)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicate
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if translated := translate(err); translated == ErrDuplicate {
			return translated
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// FindByUsername 按用户名查找。
func (s *UserStore) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// FindByID 按 ID 查找。
func (s *UserStore) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// UsernameExists 报告用户名是否已被占用。
func (s *UserStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count > 0, nil
}

// PromoteSuperuser 将用户设为员工与超级管理员。
func (s *UserStore) PromoteSuperuser(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_staff": true, "is_superuser": true}).Error
}

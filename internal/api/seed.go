package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"taskmanager/internal/model"
	"taskmanager/internal/store"
)

// SeedAdmin 确保配置中的超级管理员存在。未配置用户名时直接返回。
//
// 已存在的同名用户会被提升为超级管理员，密码保持不变。
func (s *Server) SeedAdmin(ctx context.Context) error {
	username := s.cfg.Security.AdminUsername
	if username == "" {
		return nil
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("find admin: %w", err)
	}
	if err == nil {
		if user.IsSuperuser && user.IsStaff {
			return nil
		}
		if err := s.users.PromoteSuperuser(ctx, user.ID); err != nil {
			return err
		}
		s.logger.Info("admin promoted", slog.String("username", username))
		return nil
	}

	if s.cfg.Security.AdminPassword == "" {
		return fmt.Errorf("admin password is required to create admin %q", username)
	}
	hash, err := s.hasher.Hash(s.cfg.Security.AdminPassword)
	if err != nil {
		return err
	}
	admin := &model.User{
		Username:    username,
		Password:    hash,
		IsStaff:     true,
		IsSuperuser: true,
	}
	if err := s.users.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	s.logger.Info("admin created", slog.String("username", username))
	return nil
}

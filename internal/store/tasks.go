package store

import (
	"context"
	"fmt"
	"time"

	"taskmanager/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskStore 基于 GORM 的任务存储。
//
// 所有方法都接收显式的调用者身份：非特权身份只能看到并修改自己的任务，
// 超出范围的任务与不存在的任务一样返回 ErrNotFound。
type TaskStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db, now: time.Now}
}

// visibleTo 是列表查询的归属过滤，与 Identity.CanAccess 保持同一判定。
func visibleTo(ident model.Identity) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if ident.Privileged() {
			return db
		}
		return db.Where("owner_id = ?", ident.UserID)
	}
}

// ListTasks 返回调用者可见的任务，按 ID 升序。
func (s *TaskStore) ListTasks(ctx context.Context, ident model.Identity, filter model.TaskFilter) ([]model.Task, error) {
	tasks := []model.Task{}
	query := s.db.WithContext(ctx).Model(&model.Task{}).Scopes(visibleTo(ident))
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.DueDate != nil {
		query = query.Where("due_date = ?", *filter.DueDate)
	}
	if err := query.Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// CreateTask 以调用者为所有者创建任务，忽略 task 上已有的 OwnerID。
func (s *TaskStore) CreateTask(ctx context.Context, ident model.Identity, task *model.Task) error {
	task.ID = 0
	task.OwnerID = ident.UserID
	task.UpdatedAt = nil
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask 读取单个任务。
func (s *TaskStore) GetTask(ctx context.Context, ident model.Identity, id uint) (*model.Task, error) {
	return s.getTask(s.db.WithContext(ctx), ident, id)
}

func (s *TaskStore) getTask(db *gorm.DB, ident model.Identity, id uint) (*model.Task, error) {
	var task model.Task
	if err := db.First(&task, id).Error; err != nil {
		if translated := translate(err); translated == ErrNotFound {
			return nil, translated
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	if !ident.CanAccess(&task) {
		return nil, ErrNotFound
	}
	return &task, nil
}

// UpdateTask 应用修改并刷新 updated_at。created_at 与所有者不可修改。
func (s *TaskStore) UpdateTask(ctx context.Context, ident model.Identity, id uint, changes model.TaskChanges) (*model.Task, error) {
	var updated *model.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.getTask(tx, ident, id); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"updated_at": s.now(),
		}
		if changes.Title != nil {
			updates["task"] = *changes.Title
		}
		if changes.Description != nil {
			updates["description"] = *changes.Description
		}
		if changes.Status != nil {
			updates["status"] = *changes.Status
		}
		if changes.Category != nil {
			updates["category"] = *changes.Category
		}
		if changes.DueDate != nil {
			updates["due_date"] = *changes.DueDate
		} else if changes.ClearDueDate {
			updates["due_date"] = nil
		}

		if err := tx.Model(&model.Task{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("update task: %w", err)
		}

		task, err := s.getTask(tx, ident, id)
		if err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTask 删除任务。
func (s *TaskStore) DeleteTask(ctx context.Context, ident model.Identity, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.getTask(tx, ident, id); err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&model.Task{}).Error; err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
}

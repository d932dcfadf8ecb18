package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"taskmanager/internal/api/auth"
	"taskmanager/internal/api/middleware"
	"taskmanager/internal/model"
	"taskmanager/internal/pkg/metrics"
	"taskmanager/internal/store"

	"github.com/gin-gonic/gin"
)

const (
	maxTitleLength       = 100
	maxDescriptionLength = 500
	maxCategoryLength    = 100

	msgFieldBlank    = "This field may not be blank."
	msgFieldRequired = "This field is required."
	msgDateFormat    = "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."
)

// optional 区分 JSON 中缺省、显式 null 与有值三种情况。
type optional[T any] struct {
	Set   bool
	Value *T
}

func (o *optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// taskRequest 创建与修改任务的请求体。owner、created_at 等字段即使提交也会被忽略。
type taskRequest struct {
	Task        optional[string] `json:"task"`
	Description optional[string] `json:"description"`
	Status      optional[string] `json:"status"`
	Category    optional[string] `json:"category"`
	DueDate     optional[string] `json:"due_date"`
}

// taskResponse 任务对外的表示。
type taskResponse struct {
	ID          uint             `json:"id"`
	Task        string           `json:"task"`
	Description string           `json:"description"`
	Status      model.TaskStatus `json:"status"`
	DueDate     *model.Date      `json:"due_date"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   *time.Time       `json:"updated_at"`
	Category    string           `json:"category"`
	Owner       uint             `json:"owner"`
}

func newTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Task:        t.Title,
		Description: t.Description,
		Status:      t.Status,
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Category:    t.Category,
		Owner:       t.OwnerID,
	}
}

// validatedTask 是通过校验的请求字段，nil 表示未提交。
type validatedTask struct {
	title        *string
	description  *string
	status       *model.TaskStatus
	category     *string
	dueDate      *model.Date
	clearDueDate bool
}

// validate 校验请求字段。requireTitle 为 true 时（创建与 PUT）task 必须提交。
func (r taskRequest) validate(requireTitle bool) (validatedTask, auth.FieldErrors) {
	var out validatedTask
	errs := auth.FieldErrors{}

	switch {
	case r.Task.Set && r.Task.Value == nil:
		errs.Add("task", "This field may not be null.")
	case r.Task.Set && *r.Task.Value == "":
		errs.Add("task", msgFieldBlank)
	case r.Task.Set && utf8.RuneCountInString(*r.Task.Value) > maxTitleLength:
		errs.Add("task", maxLengthMessage(maxTitleLength))
	case r.Task.Set:
		out.title = r.Task.Value
	case requireTitle:
		errs.Add("task", msgFieldRequired)
	}

	if r.Description.Set {
		desc := ""
		if r.Description.Value != nil {
			desc = *r.Description.Value
		}
		if utf8.RuneCountInString(desc) > maxDescriptionLength {
			errs.Add("description", maxLengthMessage(maxDescriptionLength))
		} else {
			out.description = &desc
		}
	}

	if r.Category.Set {
		cat := ""
		if r.Category.Value != nil {
			cat = *r.Category.Value
		}
		if utf8.RuneCountInString(cat) > maxCategoryLength {
			errs.Add("category", maxLengthMessage(maxCategoryLength))
		} else {
			out.category = &cat
		}
	}

	if r.Status.Set {
		if r.Status.Value == nil {
			errs.Add("status", "This field may not be null.")
		} else if status := model.TaskStatus(*r.Status.Value); !status.Valid() {
			errs.Add("status", fmt.Sprintf("%q is not a valid choice.", *r.Status.Value))
		} else {
			out.status = &status
		}
	}

	if r.DueDate.Set {
		if r.DueDate.Value == nil || *r.DueDate.Value == "" {
			out.clearDueDate = true
		} else if d, err := model.ParseDate(*r.DueDate.Value); err != nil {
			errs.Add("due_date", msgDateFormat)
		} else {
			out.dueDate = &d
		}
	}

	if len(errs) > 0 {
		return validatedTask{}, errs
	}
	return out, nil
}

func maxLengthMessage(n int) string {
	return fmt.Sprintf("Ensure this field has no more than %d characters.", n)
}

// toTask 构造新任务，所有者由存储层按身份设置。
func (v validatedTask) toTask() *model.Task {
	task := &model.Task{Title: *v.title, DueDate: v.dueDate}
	if v.description != nil {
		task.Description = *v.description
	}
	if v.category != nil {
		task.Category = *v.category
	}
	if v.status != nil {
		task.Status = *v.status
	}
	return task
}

// toChanges 构造修改集，未提交的字段保持原值。
func (v validatedTask) toChanges() model.TaskChanges {
	return model.TaskChanges{
		Title:        v.title,
		Description:  v.description,
		Status:       v.status,
		Category:     v.category,
		DueDate:      v.dueDate,
		ClearDueDate: v.clearDueDate,
	}
}

// handleListTasks 返回调用者可见的任务。
//
// GET /tasks?status=pending&due_date=2025-01-31
func (s *Server) handleListTasks(c *gin.Context) {
	ident, ok := s.identity(c)
	if !ok {
		return
	}

	var filter model.TaskFilter
	if v := c.Query("status"); v != "" {
		status := model.TaskStatus(v)
		filter.Status = &status
	}
	// 无法解析的日期过滤条件直接忽略
	if v := c.Query("due_date"); v != "" {
		if d, err := model.ParseDate(v); err == nil {
			filter.DueDate = &d
		}
	}

	tasks, err := s.taskStore.ListTasks(c.Request.Context(), ident, filter)
	if err != nil {
		s.logger.Error("list tasks failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tasks failed"})
		return
	}

	resp := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		resp = append(resp, newTaskResponse(&tasks[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// handleCreateTask 以调用者为所有者创建任务。
//
// POST /tasks/create
func (s *Server) handleCreateTask(c *gin.Context) {
	ident, ok := s.identity(c)
	if !ok {
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "malformed request body"})
		return
	}
	v, fieldErrs := req.validate(true)
	if fieldErrs != nil {
		c.JSON(http.StatusBadRequest, fieldErrs)
		return
	}

	task := v.toTask()
	err := s.taskStore.CreateTask(c.Request.Context(), ident, task)
	metrics.TaskOperationsTotal.WithLabelValues("create", metrics.Result(err)).Inc()
	if err != nil {
		s.logger.Error("create task failed", slog.Uint64("user_id", uint64(ident.UserID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create task failed"})
		return
	}

	s.logger.Info("task created", slog.Uint64("task_id", uint64(task.ID)), slog.Uint64("user_id", uint64(ident.UserID)))
	c.JSON(http.StatusCreated, newTaskResponse(task))
}

// handleGetTask 返回单个任务。
//
// GET /tasks/:id
func (s *Server) handleGetTask(c *gin.Context) {
	ident, ok := s.identity(c)
	if !ok {
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}

	task, err := s.taskStore.GetTask(c.Request.Context(), ident, id)
	if err != nil {
		s.writeStoreError(c, "get task failed", err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(task))
}

// handleReplaceTask 更新任务，task 必须提交，未提交的可选字段保持原值。
//
// PUT /tasks/:id
func (s *Server) handleReplaceTask(c *gin.Context) {
	s.updateTask(c, true)
}

// handlePatchTask 只修改提交的字段。
//
// PATCH /tasks/:id
func (s *Server) handlePatchTask(c *gin.Context) {
	s.updateTask(c, false)
}

func (s *Server) updateTask(c *gin.Context, requireTitle bool) {
	ident, ok := s.identity(c)
	if !ok {
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "malformed request body"})
		return
	}
	v, fieldErrs := req.validate(requireTitle)
	if fieldErrs != nil {
		c.JSON(http.StatusBadRequest, fieldErrs)
		return
	}

	task, err := s.taskStore.UpdateTask(c.Request.Context(), ident, id, v.toChanges())
	metrics.TaskOperationsTotal.WithLabelValues("update", metrics.Result(err)).Inc()
	if err != nil {
		s.writeStoreError(c, "update task failed", err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(task))
}

// handleDeleteTask 删除任务。
//
// DELETE /tasks/:id
func (s *Server) handleDeleteTask(c *gin.Context) {
	ident, ok := s.identity(c)
	if !ok {
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}

	err := s.taskStore.DeleteTask(c.Request.Context(), ident, id)
	metrics.TaskOperationsTotal.WithLabelValues("delete", metrics.Result(err)).Inc()
	if err != nil {
		s.writeStoreError(c, "delete task failed", err)
		return
	}
	s.logger.Info("task deleted", slog.Uint64("task_id", uint64(id)), slog.Uint64("user_id", uint64(ident.UserID)))
	c.Status(http.StatusNoContent)
}

// taskID 解析路径中的任务 ID。非法 ID 与不存在的任务一样返回 404。
func taskID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return 0, false
	}
	return uint(id), true
}

func (s *Server) writeStoreError(c *gin.Context, msg string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}
	s.logger.Error(msg, slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

// identity 读取中间件写入的身份；缺失时按未认证处理。
func (s *Server) identity(c *gin.Context) (model.Identity, bool) {
	ident, ok := middleware.IdentityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
		return model.Identity{}, false
	}
	return ident, true
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskmanager/internal/api/middleware"
	"taskmanager/internal/config"
	"taskmanager/internal/model"
	"taskmanager/internal/pkg/metrics"
	"taskmanager/internal/store"

	"github.com/gin-gonic/gin"
)

type mockTaskStore struct {
	listFunc   func(ctx context.Context, ident model.Identity, filter model.TaskFilter) ([]model.Task, error)
	createFunc func(ctx context.Context, ident model.Identity, task *model.Task) error
	getFunc    func(ctx context.Context, ident model.Identity, id uint) (*model.Task, error)
	updateFunc func(ctx context.Context, ident model.Identity, id uint, changes model.TaskChanges) (*model.Task, error)
	deleteFunc func(ctx context.Context, ident model.Identity, id uint) error

	calls       int
	lastIdent   model.Identity
	lastFilter  model.TaskFilter
	lastChanges model.TaskChanges
}

func (m *mockTaskStore) ListTasks(ctx context.Context, ident model.Identity, filter model.TaskFilter) ([]model.Task, error) {
	m.calls++
	m.lastIdent, m.lastFilter = ident, filter
	if m.listFunc == nil {
		return []model.Task{}, nil
	}
	return m.listFunc(ctx, ident, filter)
}

func (m *mockTaskStore) CreateTask(ctx context.Context, ident model.Identity, task *model.Task) error {
	m.calls++
	m.lastIdent = ident
	return m.createFunc(ctx, ident, task)
}

func (m *mockTaskStore) GetTask(ctx context.Context, ident model.Identity, id uint) (*model.Task, error) {
	m.calls++
	m.lastIdent = ident
	return m.getFunc(ctx, ident, id)
}

func (m *mockTaskStore) UpdateTask(ctx context.Context, ident model.Identity, id uint, changes model.TaskChanges) (*model.Task, error) {
	m.calls++
	m.lastIdent, m.lastChanges = ident, changes
	return m.updateFunc(ctx, ident, id, changes)
}

func (m *mockTaskStore) DeleteTask(ctx context.Context, ident model.Identity, id uint) error {
	m.calls++
	m.lastIdent = ident
	return m.deleteFunc(ctx, ident, id)
}

var alice = model.Identity{UserID: 1, Username: "alice"}

func newTaskRouter(ts TaskStore, ident model.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()
	s := &Server{
		cfg:       &config.Config{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		taskStore: ts,
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		middleware.SetIdentity(c, ident)
		c.Next()
	})
	r.GET("/tasks", s.handleListTasks)
	r.POST("/tasks/create", s.handleCreateTask)
	r.GET("/tasks/:id", s.handleGetTask)
	r.PUT("/tasks/:id", s.handleReplaceTask)
	r.PATCH("/tasks/:id", s.handlePatchTask)
	r.DELETE("/tasks/:id", s.handleDeleteTask)
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateTask_Normal(t *testing.T) {
	ts := &mockTaskStore{createFunc: func(ctx context.Context, ident model.Identity, task *model.Task) error {
		task.ID = 5
		task.OwnerID = ident.UserID
		task.Status = model.TaskStatusPending
		task.CreatedAt = time.Now()
		return nil
	}}
	r := newTaskRouter(ts, alice)

	w := serve(r, http.MethodPost, "/tasks/create", `{"task":"T","description":"D","category":"C","owner":99,"due_date":"2025-03-01"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if ts.calls != 1 || ts.lastIdent != alice {
		t.Fatalf("expected create with caller identity, got %+v", ts.lastIdent)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["owner"] != float64(1) || resp["task"] != "T" || resp["status"] != "pending" {
		t.Fatalf("unexpected response %v", resp)
	}
	if resp["due_date"] != "2025-03-01" || resp["updated_at"] != nil {
		t.Fatalf("unexpected dates %v", resp)
	}
}

func TestCreateTask_Validation(t *testing.T) {
	ts := &mockTaskStore{createFunc: func(ctx context.Context, ident model.Identity, task *model.Task) error { return nil }}
	r := newTaskRouter(ts, alice)

	cases := []struct {
		body  string
		field string
		msg   string
	}{
		{`{"description":"D"}`, "task", msgFieldRequired},
		{`{"task":""}`, "task", msgFieldBlank},
		{`{"task":"T","status":"done"}`, "status", `"done" is not a valid choice.`},
		{`{"task":"T","due_date":"31/01/2025"}`, "due_date", msgDateFormat},
		{`{"task":"` + string(bytes.Repeat([]byte("x"), 101)) + `"}`, "task", maxLengthMessage(maxTitleLength)},
	}
	for _, tc := range cases {
		w := serve(r, http.MethodPost, "/tasks/create", tc.body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.body, w.Code)
		}
		var errs map[string][]string
		if err := json.Unmarshal(w.Body.Bytes(), &errs); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(errs[tc.field]) != 1 || errs[tc.field][0] != tc.msg {
			t.Fatalf("%s: unexpected errors %v", tc.body, errs)
		}
	}

	w := serve(r, http.MethodPost, "/tasks/create", "{")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}
	if ts.calls != 0 {
		t.Fatalf("store should not be called on invalid input")
	}
}

func TestCreateTask_StoreFailure(t *testing.T) {
	ts := &mockTaskStore{createFunc: func(ctx context.Context, ident model.Identity, task *model.Task) error {
		return errors.New("db down")
	}}
	r := newTaskRouter(ts, alice)

	w := serve(r, http.MethodPost, "/tasks/create", `{"task":"T"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestListTasks_Filters(t *testing.T) {
	ts := &mockTaskStore{listFunc: func(ctx context.Context, ident model.Identity, filter model.TaskFilter) ([]model.Task, error) {
		return []model.Task{{ID: 1, Title: "a", OwnerID: 1}}, nil
	}}
	r := newTaskRouter(ts, alice)

	w := serve(r, http.MethodGet, "/tasks?status=completed&due_date=2025-01-31", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ts.lastFilter.Status == nil || *ts.lastFilter.Status != model.TaskStatusCompleted {
		t.Fatalf("expected status filter, got %+v", ts.lastFilter)
	}
	if ts.lastFilter.DueDate == nil || ts.lastFilter.DueDate.String() != "2025-01-31" {
		t.Fatalf("expected due_date filter, got %+v", ts.lastFilter)
	}

	w = serve(r, http.MethodGet, "/tasks?due_date=yesterday", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ts.lastFilter.DueDate != nil || ts.lastFilter.Status != nil {
		t.Fatalf("expected invalid due_date to be ignored, got %+v", ts.lastFilter)
	}
}

func TestListTasks_EmptyIsArray(t *testing.T) {
	r := newTaskRouter(&mockTaskStore{}, alice)

	w := serve(r, http.MethodGet, "/tasks", "")
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("expected empty array, got %d %s", w.Code, w.Body.String())
	}
}

func TestTaskDetail_NotFound(t *testing.T) {
	ts := &mockTaskStore{
		getFunc: func(ctx context.Context, ident model.Identity, id uint) (*model.Task, error) {
			return nil, store.ErrNotFound
		},
		updateFunc: func(ctx context.Context, ident model.Identity, id uint, changes model.TaskChanges) (*model.Task, error) {
			return nil, store.ErrNotFound
		},
		deleteFunc: func(ctx context.Context, ident model.Identity, id uint) error {
			return store.ErrNotFound
		},
	}
	r := newTaskRouter(ts, alice)

	for _, req := range []struct{ method, body string }{
		{http.MethodGet, ""},
		{http.MethodPut, `{"task":"T"}`},
		{http.MethodPatch, `{"description":"x"}`},
		{http.MethodDelete, ""},
	} {
		w := serve(r, req.method, "/tasks/3", req.body)
		if w.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", req.method, w.Code)
		}
		if w.Body.String() != `{"detail":"Not found."}` {
			t.Fatalf("%s: unexpected body %s", req.method, w.Body.String())
		}
	}

	calls := ts.calls
	w := serve(r, http.MethodGet, "/tasks/abc", "")
	if w.Code != http.StatusNotFound || ts.calls != calls {
		t.Fatalf("expected 404 without store call, got %d", w.Code)
	}
}

func TestUpdateTask_PutRequiresTitlePatchMerges(t *testing.T) {
	ts := &mockTaskStore{updateFunc: func(ctx context.Context, ident model.Identity, id uint, changes model.TaskChanges) (*model.Task, error) {
		now := time.Now()
		return &model.Task{ID: id, Title: "T", OwnerID: ident.UserID, UpdatedAt: &now}, nil
	}}
	r := newTaskRouter(ts, alice)

	w := serve(r, http.MethodPut, "/tasks/3", `{"task":"T","status":"completed"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	ch := ts.lastChanges
	if ch.Title == nil || *ch.Title != "T" || ch.Status == nil || *ch.Status != model.TaskStatusCompleted {
		t.Fatalf("unexpected changes %+v", ch)
	}
	if ch.Description != nil || ch.Category != nil || ch.DueDate != nil || ch.ClearDueDate {
		t.Fatalf("expected PUT to leave omitted optional fields, got %+v", ch)
	}

	w = serve(r, http.MethodPut, "/tasks/3", `{"description":"D"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected PUT without task to fail, got %d", w.Code)
	}

	w = serve(r, http.MethodPatch, "/tasks/3", `{"description":"D"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	ch = ts.lastChanges
	if ch.Title != nil || ch.Category != nil || ch.Status != nil || ch.ClearDueDate {
		t.Fatalf("expected PATCH to leave omitted fields, got %+v", ch)
	}
	if ch.Description == nil || *ch.Description != "D" {
		t.Fatalf("expected description change, got %+v", ch)
	}

	w = serve(r, http.MethodPatch, "/tasks/3", `{"due_date":null}`)
	if w.Code != http.StatusOK || !ts.lastChanges.ClearDueDate {
		t.Fatalf("expected null due_date to clear, got %d %+v", w.Code, ts.lastChanges)
	}
}

func TestDeleteTask_NoContent(t *testing.T) {
	var deleted uint
	ts := &mockTaskStore{deleteFunc: func(ctx context.Context, ident model.Identity, id uint) error {
		deleted = id
		return nil
	}}
	r := newTaskRouter(ts, alice)

	w := serve(r, http.MethodDelete, "/tasks/8", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if deleted != 8 || ts.lastIdent != alice {
		t.Fatalf("unexpected delete call id=%d ident=%+v", deleted, ts.lastIdent)
	}
}

func TestTaskHandlers_RequireIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ts := &mockTaskStore{}
	s := &Server{logger: slog.New(slog.NewTextHandler(io.Discard, nil)), taskStore: ts}
	r := gin.New()
	r.GET("/tasks", s.handleListTasks)

	w := serve(r, http.MethodGet, "/tasks", "")
	if w.Code != http.StatusUnauthorized || ts.calls != 0 {
		t.Fatalf("expected 401 without store call, got %d", w.Code)
	}
}

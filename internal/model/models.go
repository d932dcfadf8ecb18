package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TaskStatus 任务状态。
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusOverdue   TaskStatus = "overdue"
)

// Valid 报告状态是否为已知取值。
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusCompleted, TaskStatusOverdue:
		return true
	}
	return false
}

// Task 表示一个用户的待办事项。
//
// 每个任务恰好有一个所有者（OwnerID），创建后不可修改。
// UpdatedAt 在首次修改前为空。
type Task struct {
	ID          uint       `gorm:"primaryKey"`                                   // 任务唯一标识
	Title       string     `gorm:"column:task;type:varchar(100);not null"`       // 任务标题
	Description string     `gorm:"type:varchar(500)"`                            // 描述
	Status      TaskStatus `gorm:"type:varchar(16);default:pending;index"`       // pending / completed / overdue
	DueDate     *Date      `gorm:"index"`                                        // 截止日期（可选）
	CreatedAt   time.Time  `gorm:"autoCreateTime"`                               // 创建时间
	UpdatedAt   *time.Time `gorm:"autoUpdateTime:false"`                         // 最近修改时间
	Category    string     `gorm:"type:varchar(100)"`                            // 分类
	OwnerID     uint       `gorm:"not null;index"`                               // 所属用户 ID
	Owner       User       `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"` // 所属用户
}

// TaskFilter 列表查询的可选过滤条件。
type TaskFilter struct {
	Status  *TaskStatus
	DueDate *Date
}

// DateLayout 日期的文本格式。
const DateLayout = "2006-01-02"

// Date 是不带时区的日历日期，以 YYYY-MM-DD 存储和序列化。
type Date struct {
	time.Time
}

// NewDate 截取 t 的年月日。
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate 解析 YYYY-MM-DD。
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// GormDataType 指定列类型。
func (Date) GormDataType() string {
	return "date"
}

// Value 实现 driver.Valuer。
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan 实现 sql.Scanner，兼容 MySQL/Postgres 返回的 time.Time 与 SQLite 返回的文本。
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v)
		return nil
	case string:
		return d.scanText(v)
	case []byte:
		return d.scanText(string(v))
	case nil:
		*d = Date{}
		return nil
	}
	return fmt.Errorf("unsupported date type %T", src)
}

func (d *Date) scanText(s string) error {
	if len(s) >= len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("scan date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// MarshalJSON 输出 "YYYY-MM-DD"。
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON 解析 "YYYY-MM-DD"。
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("invalid date %q", s)
	}
	*d = parsed
	return nil
}

// TaskChanges 描述一次任务修改，nil 字段保持不变。
type TaskChanges struct {
	Title        *string
	Description  *string
	Status       *TaskStatus
	Category     *string
	DueDate      *Date
	ClearDueDate bool // 为 true 时清空截止日期（DueDate 为 nil）
}

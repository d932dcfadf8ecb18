package model

import "time"

// User 表示系统用户。
type User struct {
	ID          uint      `gorm:"primaryKey"`                              // 用户 ID
	Username    string    `gorm:"type:varchar(150);uniqueIndex;not null"` // 用户名（唯一，全小写）
	Password    string    `gorm:"not null" json:"-"`                      // 密码哈希（bcrypt / argon2id）
	IsStaff     bool      `gorm:"default:false"`                          // 员工标记
	IsSuperuser bool      `gorm:"default:false"`                          // 超级管理员标记
	DateJoined  time.Time `gorm:"autoCreateTime"`                         // 注册时间
}

// Identity 表示一次请求中已认证的身份。
//
// 它由鉴权中间件解析得到，并显式传入每一个存储层调用。
type Identity struct {
	UserID      uint
	Username    string
	IsStaff     bool
	IsSuperuser bool
}

// IdentityOf 从用户记录构造身份。
func IdentityOf(u *User) Identity {
	return Identity{
		UserID:      u.ID,
		Username:    u.Username,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
	}
}

// Privileged 报告该身份是否绕过归属过滤。
func (i Identity) Privileged() bool {
	return i.IsStaff || i.IsSuperuser
}

// CanAccess 是任务访问的唯一策略判断：特权身份可访问任意任务，其余只能访问自己的任务。
func (i Identity) CanAccess(t *Task) bool {
	if t == nil || i.UserID == 0 {
		return false
	}
	return i.Privileged() || t.OwnerID == i.UserID
}

package entity

import "time"

// 用户角色
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// User WMS用户
type User struct {
	ID                 uint      `json:"id" gorm:"primaryKey"`
	Username           string    `json:"username" gorm:"size:64;uniqueIndex;not null"`
	Email              string    `json:"email" gorm:"size:120;uniqueIndex"`
	PasswordHash       string    `json:"-" gorm:"size:256;not null"`
	FirstName          string    `json:"first_name" gorm:"size:64"`
	LastName           string    `json:"last_name" gorm:"size:64"`
	Role               string    `json:"role" gorm:"size:20;not null;default:user"`
	BranchID           string    `json:"branch_id" gorm:"size:10"`
	BranchName         string    `json:"branch_name" gorm:"size:100"`
	Active             bool      `json:"active" gorm:"default:true"`
	MustChangePassword bool      `json:"must_change_password" gorm:"default:false"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// CanViewAllDocuments admin和manager可以查看全部单据，其他用户只能看自己的
func (u *User) CanViewAllDocuments() bool {
	return u.Role == RoleAdmin || u.Role == RoleManager
}

// CanViewAllDocuments 角色级判断（handler持有角色字符串时使用）
func CanViewAllDocuments(role string) bool {
	return role == RoleAdmin || role == RoleManager
}

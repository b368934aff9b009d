package rbac

import "fmt"

// Role 账号角色，只有 admin 和 intern 两种
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleIntern Role = "intern"
)

// ParseRole 将字符串解析为 Role，未知角色返回错误
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleIntern:
		return RoleIntern, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid 判断角色是否为已知角色
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func (r Role) String() string { return string(r) }

// Permission 权限标识
type Permission string

// 权限常量
const (
	PermissionSubmitPost     Permission = "post:submit"
	PermissionReadOwnPosts   Permission = "post:read_own"
	PermissionDeleteOwnPost  Permission = "post:delete_own"
	PermissionReadAllPosts   Permission = "post:read_all"
	PermissionManageAccounts Permission = "account:manage"
	PermissionRefresh        Permission = "analytics:refresh"
	PermissionReadAnalytics  Permission = "analytics:read"
	PermissionReplayOutbox   Permission = "outbox:replay"
)

// 角色权限映射
var rolePermissions = map[Role][]Permission{
	RoleIntern: {
		PermissionSubmitPost,
		PermissionReadOwnPosts,
		PermissionDeleteOwnPost,
	},
	RoleAdmin: {
		PermissionSubmitPost,
		PermissionReadOwnPosts,
		PermissionDeleteOwnPost,
		PermissionReadAllPosts,
		PermissionManageAccounts,
		PermissionRefresh,
		PermissionReadAnalytics,
		PermissionReplayOutbox,
	},
}

// NoOwner 表示操作不针对某个账号拥有的资源
const NoOwner = 0

// Subject 发起操作的账号
type Subject struct {
	ID   int
	Role Role
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role Role, permission Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// Authorize 唯一的授权判断：角色必须持有权限；
// 当 ownerID 不为 NoOwner 时，非管理员只能操作自己的资源
func Authorize(subject Subject, permission Permission, ownerID int) error {
	if !HasPermission(subject.Role, permission) {
		return &PermissionDeniedError{UserID: subject.ID, Permission: permission}
	}
	if ownerID != NoOwner && subject.Role != RoleAdmin && ownerID != subject.ID {
		return &OwnershipError{UserID: subject.ID, OwnerID: ownerID}
	}
	return nil
}

// CheckPermission 不涉及资源归属的权限检查
func CheckPermission(subject Subject, permission Permission) error {
	return Authorize(subject, permission, NoOwner)
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int
	Permission Permission
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}

// OwnershipError 表示操作了不属于自己的资源
type OwnershipError struct {
	UserID  int
	OwnerID int
}

func (e *OwnershipError) Error() string {
	return "not the owner of this resource"
}

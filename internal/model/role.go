package model

// Role はプロジェクト内でのメンバーの権限レベル。
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// Capability はロールに許可された操作。
type Capability int

const (
	CapViewProject Capability = iota
	CapEditTask
	CapEditProject
	CapManageMembers
	CapDeleteTask
)

// capabilities はロールごとの許可操作表。
// プロジェクト削除はロールではなくProject.OwnerIDで判定するためここには含めない。
var capabilities = map[Role]map[Capability]bool{
	RoleOwner: {
		CapViewProject:   true,
		CapEditTask:      true,
		CapEditProject:   true,
		CapManageMembers: true,
		CapDeleteTask:    true,
	},
	RoleAdmin: {
		CapViewProject:   true,
		CapEditTask:      true,
		CapEditProject:   true,
		CapManageMembers: true,
		CapDeleteTask:    true,
	},
	RoleMember: {
		CapViewProject: true,
		CapEditTask:    true,
	},
}

// ParseRole は文字列をRoleに変換する。未定義の値はfalseを返す。
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleOwner, RoleAdmin, RoleMember:
		return r, true
	}
	return "", false
}

// Can はロールが指定操作を許可されているかを返す。
func (r Role) Can(c Capability) bool {
	return capabilities[r][c]
}

// Rank はロールの序列を返す。OWNER > ADMIN > MEMBER。未定義のロールは0。
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

// Assignable はメンバー管理APIから付与できるロールかを返す。
// OWNERはプロジェクト作成時にのみ付与される。
func (r Role) Assignable() bool {
	return r == RoleAdmin || r == RoleMember
}

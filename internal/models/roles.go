package models

// Role is a named privilege level. Roles are totally ordered; a higher
// level implies every permission granted to a lower one.
type Role string

const (
	RoleReadonly Role = "readonly"
	RoleUser     Role = "user"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// roleLevels maps each role to its numeric privilege level
var roleLevels = map[Role]int{
	RoleReadonly: 0,
	RoleUser:     1,
	RoleManager:  2,
	RoleAdmin:    3,
}

// Action constants define all permission-checked operations in the system
const (
	ActionChat            = "chat"
	ActionHistoryRead     = "history_read"
	ActionMemoryAdd       = "memory_add"
	ActionHistoryClear    = "history_clear"
	ActionPinChange       = "pin_change"
	ActionProfileSelfEdit = "profile_self_edit"
	ActionProfilesList    = "profiles_list"
	ActionProfilesManage  = "profiles_manage"
	ActionAuditRead       = "audit_read"
	ActionBackupManage    = "backup_manage"
	ActionRolesManage     = "roles_manage"
	ActionPinReset        = "pin_reset"
)

// actionMinRole maps every action to the minimum role required.
// Actions absent from this table are denied for every role.
var actionMinRole = map[string]Role{
	ActionChat:            RoleReadonly,
	ActionHistoryRead:     RoleReadonly,
	ActionMemoryAdd:       RoleUser,
	ActionHistoryClear:    RoleUser,
	ActionPinChange:       RoleUser,
	ActionProfileSelfEdit: RoleUser,
	ActionProfilesList:    RoleManager,
	ActionProfilesManage:  RoleAdmin,
	ActionAuditRead:       RoleAdmin,
	ActionBackupManage:    RoleAdmin,
	ActionRolesManage:     RoleAdmin,
	ActionPinReset:        RoleAdmin,
}

// ParseRole validates a role string and returns the typed role
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	_, ok := roleLevels[r]
	return r, ok
}

// Level returns the numeric privilege level of a role.
// Unknown roles map to -1, below every valid role.
func (r Role) Level() int {
	level, ok := roleLevels[r]
	if !ok {
		return -1
	}
	return level
}

// HasPermission reports whether a role may perform an action.
// Unknown actions are denied for every role, admin included.
func HasPermission(role Role, action string) bool {
	min, ok := actionMinRole[action]
	if !ok {
		return false
	}
	return role.Level() >= min.Level()
}

// CanManageRole reports whether an actor may assign, disable or otherwise
// manage accounts holding the target role. A manager must never elevate or
// demote an admin, so the actor's level must be at least the target's.
func CanManageRole(actor, target Role) bool {
	actorLevel := actor.Level()
	targetLevel := target.Level()
	if actorLevel < 0 || targetLevel < 0 {
		return false
	}
	return actorLevel >= targetLevel
}

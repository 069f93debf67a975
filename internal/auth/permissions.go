package auth

// Permission is a named capability of the controller API.
type Permission string

const (
	PermStatusRead     Permission = "status:read"
	PermZoneOperate    Permission = "zone:operate"
	PermRainDelay      Permission = "rain:delay"
	PermScheduleManage Permission = "schedule:manage"
	PermSettingsManage Permission = "settings:manage"
	PermScheduleSync   Permission = "schedule:sync"
)

// rolePermissions is the whole authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermStatusRead,
	},
	RoleOperator: {
		PermStatusRead,
		PermZoneOperate,
		PermRainDelay,
	},
	RoleAdmin: {
		PermStatusRead,
		PermZoneOperate,
		PermRainDelay,
		PermScheduleManage,
		PermSettingsManage,
		PermScheduleSync,
	},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of the permissions granted to role, or
// nil for an unknown role.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}

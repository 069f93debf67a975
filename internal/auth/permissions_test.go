package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role    Role
		should  []Permission
		mustNot []Permission
	}{
		{
			role:    RoleViewer,
			should:  []Permission{PermStatusRead},
			mustNot: []Permission{PermZoneOperate, PermRainDelay, PermScheduleManage, PermSettingsManage, PermScheduleSync},
		},
		{
			role:    RoleOperator,
			should:  []Permission{PermStatusRead, PermZoneOperate, PermRainDelay},
			mustNot: []Permission{PermScheduleManage, PermSettingsManage, PermScheduleSync},
		},
		{
			role:   RoleAdmin,
			should: []Permission{PermStatusRead, PermZoneOperate, PermRainDelay, PermScheduleManage, PermSettingsManage, PermScheduleSync},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			for _, perm := range tt.should {
				if !HasPermission(tt.role, perm) {
					t.Errorf("%s should have %s", tt.role, perm)
				}
			}
			for _, perm := range tt.mustNot {
				if HasPermission(tt.role, perm) {
					t.Errorf("%s should NOT have %s", tt.role, perm)
				}
			}
		})
	}
}

func TestHasPermission_UnknownRole(t *testing.T) {
	if HasPermission("owner", PermStatusRead) {
		t.Error("unknown role should have no permissions")
	}
}

func TestPermissionsForRole(t *testing.T) {
	perms := PermissionsForRole(RoleAdmin)
	if len(perms) != 6 {
		t.Errorf("admin permissions = %d, want 6", len(perms))
	}

	// The result is a copy.
	perms[0] = "tampered"
	if !HasPermission(RoleAdmin, PermStatusRead) {
		t.Error("modifying the returned slice changed the role model")
	}

	if PermissionsForRole("nobody") != nil {
		t.Error("unknown role should return nil")
	}
}

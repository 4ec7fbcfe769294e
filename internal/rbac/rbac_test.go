package rbac

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role, perm string
		want       bool
	}{
		{RoleMember, PermVote, true},
		{RoleMember, PermSetFee, false},
		{RoleMember, PermMintAsset, false},
		{RoleAdmin, PermMintAsset, true},
		{RoleAdmin, PermWithdrawFees, false},
		{RoleOwner, PermWithdrawFees, true},
		{RoleOwner, PermCancelAny, true},
		{"unknown", PermVote, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestRoleFor(t *testing.T) {
	admins := func(id string) bool { return id == "EQadmin" }
	if r := RoleFor("EQowner", "EQowner", admins); r != RoleOwner {
		t.Errorf("owner resolved as %s", r)
	}
	if r := RoleFor("EQadmin", "EQowner", admins); r != RoleAdmin {
		t.Errorf("admin resolved as %s", r)
	}
	if r := RoleFor("EQx", "EQowner", admins); r != RoleMember {
		t.Errorf("member resolved as %s", r)
	}
	if r := RoleFor("", "", nil); r != RoleMember {
		t.Errorf("empty identity resolved as %s", r)
	}
}

func TestIsFinancialOperation(t *testing.T) {
	if !IsFinancialOperation(PermWithdrawFees) || !IsFinancialOperation(PermSetFee) {
		t.Error("fee operations must be financial")
	}
	if IsFinancialOperation(PermVote) {
		t.Error("vote is not financial")
	}
}

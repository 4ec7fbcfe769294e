package rbac

// Role constants
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
)

// Permission constants
const (
	PermCreateListing = "create_listing"
	PermBuyListing    = "buy_listing"
	PermCancelOwn     = "cancel_own_listing"
	PermCancelAny     = "cancel_any_listing"
	PermPropose       = "propose"
	PermVote          = "vote"
	PermExecute       = "execute_proposal"
	PermWithdrawOwn   = "withdraw_balance"
	PermMintAsset     = "mint_asset"
	PermCreditBalance = "credit_balance"
	PermSetFee        = "set_fee"
	PermWithdrawFees  = "withdraw_fees"
)

var memberPerms = []string{
	PermCreateListing, PermBuyListing, PermCancelOwn,
	PermPropose, PermVote, PermExecute, PermWithdrawOwn,
}

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleMember: memberPerms,
	RoleAdmin:  append(append([]string{}, memberPerms...), PermMintAsset, PermCreditBalance),
	RoleOwner: append(append([]string{}, memberPerms...),
		PermMintAsset, PermCreditBalance, PermCancelAny, PermSetFee, PermWithdrawFees,
		// только владелец маркетплейса трогает комиссию и казну
	),
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsFinancialOperation checks if permission moves exchange funds (owner-only).
func IsFinancialOperation(permission string) bool {
	return permission == PermSetFee || permission == PermWithdrawFees
}

// RoleFor resolves the role of identity given the marketplace owner and the
// configured admins.
func RoleFor(identity, owner string, isAdmin func(string) bool) string {
	switch {
	case identity != "" && identity == owner:
		return RoleOwner
	case isAdmin != nil && isAdmin(identity):
		return RoleAdmin
	default:
		return RoleMember
	}
}

package rbac

// Role constants
const (
	RoleGuest = "guest"
	RoleHost  = "host"
	RoleAgent = "agent"
	RoleAdmin = "admin"
)

// Permission constants
const (
	PermDeposit        = "deposit"
	PermViewWallet     = "view_wallet"
	PermWithdraw       = "withdraw"
	PermReleaseEscrow  = "release_escrow"
	PermRefundEscrow   = "refund_escrow"
	PermManagePayouts  = "manage_payouts"
	PermViewAuditTrail = "view_audit_trail"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleGuest: {
		PermDeposit, PermViewWallet,
	},
	RoleHost: {
		PermViewWallet, PermWithdraw,
	},
	RoleAgent: {
		PermViewWallet, PermWithdraw,
	},
	RoleAdmin: {
		PermDeposit, PermViewWallet, PermWithdraw,
		PermReleaseEscrow, PermRefundEscrow, PermManagePayouts, PermViewAuditTrail,
	},
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

// IsFinancialOperation checks if permission moves money.
func IsFinancialOperation(permission string) bool {
	switch permission {
	case PermWithdraw, PermReleaseEscrow, PermRefundEscrow:
		return true
	}
	return false
}

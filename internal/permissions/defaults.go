package permissions

// BuiltinDefaults returns the shipped default matrix for a role. New
// organizations are seeded from these; admins can retune per-role defaults
// afterwards without affecting other organizations.
//
// Unknown roles get an empty matrix, which default-denies everything.
func BuiltinDefaults(role Role) Defaults {
	switch role {
	case RoleAdmin:
		d := make(Defaults, len(knownKeys))
		for k := range knownKeys {
			d[k] = true
		}
		return d
	case RoleManager:
		d := make(Defaults, len(knownKeys))
		for k := range knownKeys {
			d[k] = true
		}
		// Destructive and organization-level actions stay admin-only.
		d[KeyDeleteCustomers] = false
		d[KeyDeleteRewards] = false
		d[KeyEditSettings] = false
		d[KeyEditBranding] = false
		return d
	case RoleCashier:
		return Defaults{
			KeyViewCustomers:    true,
			KeyAddCustomers:     true,
			KeyViewRewards:      true,
			KeyViewTransactions: true,
			KeyAddPoints:        true,
			KeyRedeemRewards:    true,
			KeyAccessPOS:        true,
			KeyProcessSales:     true,
		}
	case RoleStaff:
		return Defaults{
			KeyViewCustomers:    true,
			KeyViewRewards:      true,
			KeyViewTiers:        true,
			KeyViewTransactions: true,
		}
	default:
		return Defaults{}
	}
}

// Package permissions implements role-based permission resolution with
// per-staff-member overrides for the Omnily backoffice and POS surfaces.
//
// A staff member's effective permission set is the role default matrix of
// their role, patched by a sparse set of explicit per-member overrides.
// An override is a first-class tri-state (Inherit, Grant, Deny) rather than
// a nullable boolean, so "explicitly inherited" is distinguishable from
// "not loaded".
package permissions

import (
	"encoding/json"
	"errors"
)

// Sentinel errors for permission resolution and enforcement.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnknownKey       = errors.New("unknown permission key")
	ErrUnknownRole      = errors.New("unknown role")
)

// Key identifies a single permission. The key set is a fixed contract shared
// with the backoffice UI and the POS clients — it is configuration-time data,
// never user input.
type Key string

// Permission keys, grouped by backoffice section.
const (
	// Analytics, reports, export.
	KeyViewAnalytics Key = "can_view_analytics"
	KeyViewReports   Key = "can_view_reports"
	KeyExportData    Key = "can_export_data"

	// Customers.
	KeyViewCustomers   Key = "can_view_customers"
	KeyAddCustomers    Key = "can_add_customers"
	KeyEditCustomers   Key = "can_edit_customers"
	KeyDeleteCustomers Key = "can_delete_customers"

	// Rewards.
	KeyViewRewards   Key = "can_view_rewards"
	KeyCreateRewards Key = "can_create_rewards"
	KeyEditRewards   Key = "can_edit_rewards"
	KeyDeleteRewards Key = "can_delete_rewards"

	// Loyalty tiers.
	KeyViewTiers Key = "can_view_tiers"
	KeyEditTiers Key = "can_edit_tiers"

	// Transactions.
	KeyViewTransactions Key = "can_view_transactions"
	KeyAddPoints        Key = "can_add_points"
	KeyRedeemRewards    Key = "can_redeem_rewards"
	KeyRefund           Key = "can_refund"

	// Marketing.
	KeyViewMarketing Key = "can_view_marketing"
	KeySendCampaigns Key = "can_send_campaigns"

	// Team.
	KeyViewTeam   Key = "can_view_team"
	KeyManageTeam Key = "can_manage_team"

	// Settings.
	KeyViewSettings Key = "can_view_settings"
	KeyEditSettings Key = "can_edit_settings"

	// Branding.
	KeyViewBranding Key = "can_view_branding"
	KeyEditBranding Key = "can_edit_branding"

	// POS.
	KeyAccessPOS        Key = "can_access_pos"
	KeyProcessSales     Key = "can_process_sales"
	KeyVoidTransactions Key = "can_void_transactions"
)

// Group is a named set of related permission keys, in display order.
type Group struct {
	Name string `json:"name"`
	Keys []Key  `json:"keys"`
}

// groups lists every permission key exactly once, in the order the
// backoffice presents them.
var groups = []Group{
	{Name: "analytics", Keys: []Key{KeyViewAnalytics, KeyViewReports, KeyExportData}},
	{Name: "customers", Keys: []Key{KeyViewCustomers, KeyAddCustomers, KeyEditCustomers, KeyDeleteCustomers}},
	{Name: "rewards", Keys: []Key{KeyViewRewards, KeyCreateRewards, KeyEditRewards, KeyDeleteRewards}},
	{Name: "tiers", Keys: []Key{KeyViewTiers, KeyEditTiers}},
	{Name: "transactions", Keys: []Key{KeyViewTransactions, KeyAddPoints, KeyRedeemRewards, KeyRefund}},
	{Name: "marketing", Keys: []Key{KeyViewMarketing, KeySendCampaigns}},
	{Name: "team", Keys: []Key{KeyViewTeam, KeyManageTeam}},
	{Name: "settings", Keys: []Key{KeyViewSettings, KeyEditSettings}},
	{Name: "branding", Keys: []Key{KeyViewBranding, KeyEditBranding}},
	{Name: "pos", Keys: []Key{KeyAccessPOS, KeyProcessSales, KeyVoidTransactions}},
}

var knownKeys = func() map[Key]bool {
	m := make(map[Key]bool)
	for _, g := range groups {
		for _, k := range g.Keys {
			m[k] = true
		}
	}
	return m
}()

// Groups returns the permission key groups in display order.
// The returned slice is shared; callers must not modify it.
func Groups() []Group {
	return groups
}

// Keys returns every permission key in display order.
func Keys() []Key {
	keys := make([]Key, 0, len(knownKeys))
	for _, g := range groups {
		keys = append(keys, g.Keys...)
	}
	return keys
}

// KnownKey reports whether k is part of the fixed permission key contract.
func KnownKey(k Key) bool {
	return knownKeys[k]
}

// Role is one of the four staff roles.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
	RoleStaff   Role = "staff"
)

// Roles lists all roles in privilege order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleCashier, RoleStaff}
}

// KnownRole reports whether r is one of the four staff roles.
func KnownRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleCashier, RoleStaff:
		return true
	}
	return false
}

// Defaults is a role's default permission matrix: key → allowed.
// Keys absent from the map resolve to false (default-deny).
type Defaults map[Key]bool

// Override is the tri-state value of a single per-member override.
type Override int

const (
	// Inherit means no override: the role default applies.
	Inherit Override = iota
	// Grant explicitly allows the permission regardless of the role default.
	Grant
	// Deny explicitly denies the permission regardless of the role default.
	Deny
)

func (o Override) String() string {
	switch o {
	case Inherit:
		return "inherit"
	case Grant:
		return "grant"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes an Override as its string form.
func (o Override) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// UnmarshalJSON decodes an Override from its string form. Unrecognized
// values decode as Inherit.
func (o *Override) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = ParseOverride(s)
	return nil
}

// ParseOverride converts a string to an Override.
// Unrecognized values parse as Inherit (the safe no-override state).
func ParseOverride(s string) Override {
	switch s {
	case "grant":
		return Grant
	case "deny":
		return Deny
	default:
		return Inherit
	}
}

// overrideFor returns the explicit override carrying the boolean value v.
func overrideFor(v bool) Override {
	if v {
		return Grant
	}
	return Deny
}

// value returns the boolean an explicit override resolves to.
// Only meaningful for Grant and Deny.
func (o Override) value() bool {
	return o == Grant
}

// Overrides is a sparse per-member override set: key → Grant|Deny.
// Inherit entries are never stored; a missing key means inherit.
type Overrides map[Key]Override

// Effective resolves a single permission: the override value if one is
// present, otherwise the role default. Pure function, no side effects.
func Effective(defaults Defaults, overrides Overrides, key Key) bool {
	if o, ok := overrides[key]; ok && o != Inherit {
		return o.value()
	}
	return defaults[key]
}

// EffectiveSet resolves every known permission key against the given
// defaults and overrides.
func EffectiveSet(defaults Defaults, overrides Overrides) map[Key]bool {
	out := make(map[Key]bool, len(knownKeys))
	for k := range knownKeys {
		out[k] = Effective(defaults, overrides, k)
	}
	return out
}

// IsOverridden reports whether key has an explicit (non-Inherit) override.
func IsOverridden(overrides Overrides, key Key) bool {
	o, ok := overrides[key]
	return ok && o != Inherit
}

// ToggleOverride advances the override for key through the three-state
// cycle and returns a new override set; the input is never mutated.
//
//	Inherit                     → negation of the current role default
//	override == role default    → negation of the role default
//	override != role default    → Inherit (cleared)
//
// Every toggle moves the effective value, and an override that matches the
// role default never survives more than one further toggle. The direction
// out of Inherit follows the role default at toggle time: if an admin has
// changed the role default since the override was last cleared, the next
// toggle deviates from the new default, not the old one.
//
// Unknown keys are a no-op: the input set is returned unchanged.
func ToggleOverride(defaults Defaults, overrides Overrides, key Key) Overrides {
	if !KnownKey(key) {
		return overrides
	}

	def := defaults[key]
	next := cloneOverrides(overrides)

	cur, ok := overrides[key]
	switch {
	case !ok || cur == Inherit:
		next[key] = overrideFor(!def)
	case cur.value() == def:
		next[key] = overrideFor(!def)
	default:
		delete(next, key)
	}
	return next
}

// ClearAllOverrides returns an empty override set: every key reverts to
// inheriting its role default.
func ClearAllOverrides(Overrides) Overrides {
	return Overrides{}
}

// ToggleRoleDefault flips the role default for key and returns a new
// matrix; the input is never mutated. Member overrides are untouched —
// only members inheriting the key observe the new value.
//
// Unknown keys are a no-op: the input matrix is returned unchanged.
func ToggleRoleDefault(defaults Defaults, key Key) Defaults {
	if !KnownKey(key) {
		return defaults
	}
	next := cloneDefaults(defaults)
	next[key] = !defaults[key]
	return next
}

func cloneDefaults(d Defaults) Defaults {
	out := make(Defaults, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func cloneOverrides(o Overrides) Overrides {
	out := make(Overrides, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

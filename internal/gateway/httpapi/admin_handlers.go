package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"

	"github.com/omnilypro/omnily/internal/audit"
	"github.com/omnilypro/omnily/internal/domain"
	"github.com/omnilypro/omnily/internal/permissions"
	"github.com/omnilypro/omnily/internal/team"
)

// StaffResponse is the JSON shape for a staff member.
type StaffResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

func toStaffResponse(m *domain.StaffMember) StaffResponse {
	return StaffResponse{
		ID:        m.ID.String(),
		Name:      m.Name,
		Email:     m.Email,
		Role:      string(m.Role),
		Active:    m.Active,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
	}
}

// teamError maps team service errors to HTTP responses.
func teamError(c *okapi.Context, err error) error {
	switch {
	case errors.Is(err, team.ErrStaffNotFound):
		return c.JSON(http.StatusNotFound, okapi.M{"error": "staff member not found"})
	case errors.Is(err, team.ErrDuplicateEmail):
		return c.JSON(http.StatusConflict, okapi.M{"error": "email already in use"})
	case errors.Is(err, team.ErrInvalidStaff), errors.Is(err, permissions.ErrUnknownRole):
		return c.AbortBadRequest(err.Error())
	default:
		return c.AbortInternalServerError("staff operation failed")
	}
}

// staffIDParam parses the {id} path parameter.
func staffIDParam(c *okapi.Context) (uuid.UUID, error, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, c.AbortBadRequest("invalid staff ID"), false
	}
	return id, nil, true
}

// --- Staff Roster ---

// StaffCreateRequest is the JSON body for POST /v1/staff.
type StaffCreateRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (g *Gateway) handleStaffCreate(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyManageTeam); !ok {
		return resp
	}

	var req StaffCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	member, err := g.team.Create(c.Context(), req.Name, req.Email, permissions.Role(req.Role))
	g.recordAudit(c, staffID, "staff.create", req.Email, map[string]any{
		"role": req.Role,
	}, err)
	if err != nil {
		return teamError(c, err)
	}
	return c.JSON(http.StatusCreated, toStaffResponse(member))
}

func (g *Gateway) handleStaffList(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyViewTeam); !ok {
		return resp
	}

	includeInactive := c.Request().URL.Query().Get("include_inactive") == "true"
	members, err := g.team.List(c.Context(), includeInactive)
	if err != nil {
		return c.AbortInternalServerError("listing staff")
	}

	resp := make([]StaffResponse, len(members))
	for i, m := range members {
		resp[i] = toStaffResponse(m)
	}
	return c.OK(resp)
}

func (g *Gateway) handleStaffGet(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyViewTeam); !ok {
		return resp
	}

	id, resp, ok := staffIDParam(c)
	if !ok {
		return resp
	}
	member, err := g.team.Get(c.Context(), id)
	if err != nil {
		return teamError(c, err)
	}
	return c.OK(toStaffResponse(member))
}

// StaffRoleRequest is the JSON body for POST /v1/staff/{id}/role.
type StaffRoleRequest struct {
	Role string `json:"role"`
}

func (g *Gateway) handleStaffChangeRole(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyManageTeam); !ok {
		return resp
	}

	id, resp, ok := staffIDParam(c)
	if !ok {
		return resp
	}
	var req StaffRoleRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	member, err := g.team.ChangeRole(c.Context(), id, permissions.Role(req.Role))
	g.recordAudit(c, staffID, "staff.change_role", id.String(), map[string]any{
		"role": req.Role,
	}, err)
	if err != nil {
		return teamError(c, err)
	}
	return c.OK(toStaffResponse(member))
}

func (g *Gateway) handleStaffDeactivate(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyManageTeam); !ok {
		return resp
	}

	id, resp, ok := staffIDParam(c)
	if !ok {
		return resp
	}
	err := g.team.Deactivate(c.Context(), id)
	g.recordAudit(c, staffID, "staff.deactivate", id.String(), nil, err)
	if err != nil {
		return teamError(c, err)
	}
	return c.OK(map[string]string{"status": "deactivated"})
}

func (g *Gateway) handleStaffReactivate(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyManageTeam); !ok {
		return resp
	}

	id, resp, ok := staffIDParam(c)
	if !ok {
		return resp
	}
	err := g.team.Reactivate(c.Context(), id)
	g.recordAudit(c, staffID, "staff.reactivate", id.String(), nil, err)
	if err != nil {
		return teamError(c, err)
	}
	return c.OK(map[string]string{"status": "active"})
}

// --- Permissions ---

func (g *Gateway) handlePermissionSnapshot(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyViewTeam); !ok {
		return resp
	}

	id, resp, ok := staffIDParam(c)
	if !ok {
		return resp
	}
	member, err := g.team.Get(c.Context(), id)
	if err != nil {
		return teamError(c, err)
	}

	snapshot, err := g.resolver.Resolve(c.Context(), member.Role, member.ID)
	if err != nil {
		return c.AbortInternalServerError("resolving permissions")
	}
	return c.OK(snapshot)
}

func (g *Gateway) handleOverrideToggle(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyManageTeam); !ok {
		return resp
	}

	id, resp, ok := staffIDParam(c)
	if !ok {
		return resp
	}
	key := permissions.Key(c.Param("key"))

	member, err := g.team.Get(c.Context(), id)
	if err != nil {
		return teamError(c, err)
	}

	snapshot, err := g.resolver.ToggleOverride(c.Context(), member.Role, member.ID, key)
	g.recordAudit(c, staffID, "permissions.toggle_override", id.String(), map[string]any{
		"key": string(key),
	}, err)
	if err != nil {
		if errors.Is(err, permissions.ErrUnknownKey) {
			return c.AbortBadRequest("unknown permission key")
		}
		return c.AbortInternalServerError("toggling override")
	}
	return c.OK(snapshot)
}

func (g *Gateway) handleOverridesClear(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyManageTeam); !ok {
		return resp
	}

	id, resp, ok := staffIDParam(c)
	if !ok {
		return resp
	}
	err := g.resolver.ClearOverrides(c.Context(), id)
	g.recordAudit(c, staffID, "permissions.clear_overrides", id.String(), nil, err)
	if err != nil {
		return c.AbortInternalServerError("clearing overrides")
	}
	return c.OK(map[string]string{"status": "cleared"})
}

// RoleDefaultsResponse is the JSON response after flipping a role default.
type RoleDefaultsResponse struct {
	Role     string               `json:"role"`
	Defaults permissions.Defaults `json:"defaults"`
}

func (g *Gateway) handleRoleDefaultToggle(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyManageTeam); !ok {
		return resp
	}

	targetRole := permissions.Role(c.Param("role"))
	key := permissions.Key(c.Param("key"))

	defaults, err := g.resolver.ToggleRoleDefault(c.Context(), targetRole, key)
	g.recordAudit(c, staffID, "permissions.toggle_role_default", string(targetRole), map[string]any{
		"key": string(key),
	}, err)
	if err != nil {
		switch {
		case errors.Is(err, permissions.ErrUnknownRole):
			return c.AbortBadRequest("unknown role")
		case errors.Is(err, permissions.ErrUnknownKey):
			return c.AbortBadRequest("unknown permission key")
		}
		return c.AbortInternalServerError("toggling role default")
	}
	return c.OK(RoleDefaultsResponse{Role: string(targetRole), Defaults: defaults})
}

func (g *Gateway) handlePermissionGroups(c *okapi.Context) error {
	if _, _, ok := g.staffFrom(c); !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	return c.OK(permissions.Groups())
}

// --- Audit ---

func (g *Gateway) handleAuditQuery(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyViewReports); !ok {
		return resp
	}

	q := c.Request().URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	events, err := g.audit.Query(c.Context(), q.Get("staff_id"), limit)
	if err != nil {
		return c.AbortInternalServerError("querying audit trail")
	}
	if events == nil {
		events = []audit.Event{}
	}
	return c.OK(events)
}

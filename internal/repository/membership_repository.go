package repository

import (
	"context"

	"github.com/peoplecore/be-hrm-approvals/internal/apperrors"
	"github.com/peoplecore/be-hrm-approvals/internal/database"
)

// MembershipRepository reads tenant role membership. The table is maintained
// by the identity system; this service never writes it.
type MembershipRepository struct {
	db *database.DB
}

// NewMembershipRepository creates a new MembershipRepository.
func NewMembershipRepository(db *database.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// HasRole reports whether the user currently holds the role in the tenant.
func (r *MembershipRepository) HasRole(ctx context.Context, tenantID, userID, role string) (bool, error) {
	query := `
		SELECT EXISTS (
		    SELECT 1 FROM tenant_role_members
		    WHERE tenant_id = $1 AND user_id = $2 AND role = $3
		)
	`

	var has bool
	if err := r.db.QueryRow(ctx, query, tenantID, userID, role).Scan(&has); err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to check role membership")
	}
	return has, nil
}

// RolesForUser returns all roles the user holds in the tenant.
func (r *MembershipRepository) RolesForUser(ctx context.Context, tenantID, userID string) ([]string, error) {
	query := `
		SELECT role FROM tenant_role_members
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY role ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load user roles")
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan role")
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// RolesForUsers returns the union of roles held by any of the given users.
func (r *MembershipRepository) RolesForUsers(ctx context.Context, tenantID string, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT role FROM tenant_role_members
		WHERE tenant_id = $1 AND user_id = ANY($2)
		ORDER BY role ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID, userIDs)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load delegator roles")
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan role")
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

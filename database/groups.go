package database

import (
	"errors"
	"fmt"
	"time"

	"braintacle/model"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// ErrDuplicateName is returned when a unique name is already taken.
var ErrDuplicateName = errors.New("name already exists")

const groupColumns = `id, name, description, criteria, creation_date,
	cache_creation_date, cache_expiration_date`

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func GetAllGroups(dbtx DBTX) ([]model.Group, error) {
	groups := []model.Group{}
	if err := dbtx.Select(&groups, "SELECT "+groupColumns+" FROM groups ORDER BY name"); err != nil {
		return nil, fmt.Errorf("failed to get all groups: %w", err)
	}
	return groups, nil
}

func GetGroup(dbtx DBTX, id int64) (*model.Group, error) {
	var g model.Group
	if err := dbtx.Get(&g, "SELECT "+groupColumns+" FROM groups WHERE id = ?", id); err != nil {
		return nil, notFound(err, fmt.Sprintf("group %d", id))
	}
	return &g, nil
}

func CreateGroup(dbtx DBTX, g *model.Group) (int64, error) {
	const q = `
		INSERT INTO groups (name, description, criteria, creation_date)
		VALUES (:name, :description, :criteria, :creation_date)`
	res, err := dbtx.NamedExec(q, g)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("group %q: %w", g.Name, ErrDuplicateName)
		}
		return 0, fmt.Errorf("CreateGroup (Name: %s) failed: %w", g.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("CreateGroup: failed to get id: %w", err)
	}
	g.ID = id
	return id, nil
}

func DeleteGroupInTx(tx *sqlx.Tx, id int64) error {
	for _, table := range []string{"group_memberships", "group_package_assignments"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE group_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete %s of group %d: %w", table, id, err)
		}
	}
	res, err := tx.Exec(`DELETE FROM groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("group %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetGroupCacheInTx records when the automatic memberships were computed.
func SetGroupCacheInTx(tx *sqlx.Tx, id int64, created, expires time.Time) error {
	_, err := tx.Exec(`UPDATE groups SET cache_creation_date = ?, cache_expiration_date = ? WHERE id = ?`,
		created, expires, id)
	if err != nil {
		return fmt.Errorf("failed to update cache dates of group %d: %w", id, err)
	}
	return nil
}

// GetGroupMemberships returns all memberships of a group.
func GetGroupMemberships(dbtx DBTX, groupID int64) ([]model.GroupMembership, error) {
	memberships := []model.GroupMembership{}
	err := dbtx.Select(&memberships, `
		SELECT m.client_id, m.group_id, g.name AS group_name, m.membership_type
		FROM group_memberships m JOIN groups g ON g.id = m.group_id
		WHERE m.group_id = ? ORDER BY m.client_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get memberships of group %d: %w", groupID, err)
	}
	return memberships, nil
}

// GetClientMemberships returns all memberships of a client.
func GetClientMemberships(dbtx DBTX, clientID int64) ([]model.GroupMembership, error) {
	memberships := []model.GroupMembership{}
	err := dbtx.Select(&memberships, `
		SELECT m.client_id, m.group_id, g.name AS group_name, m.membership_type
		FROM group_memberships m JOIN groups g ON g.id = m.group_id
		WHERE m.client_id = ? ORDER BY g.name`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get memberships of client %d: %w", clientID, err)
	}
	return memberships, nil
}

// SetMembership creates or replaces a single membership.
func SetMembership(dbtx DBTX, clientID, groupID int64, membershipType int) error {
	const q = `
		INSERT INTO group_memberships (client_id, group_id, membership_type) VALUES (?, ?, ?)
		ON CONFLICT(client_id, group_id) DO UPDATE SET membership_type = excluded.membership_type`
	if _, err := dbtx.Exec(q, clientID, groupID, membershipType); err != nil {
		return fmt.Errorf("failed to set membership of client %d in group %d: %w", clientID, groupID, err)
	}
	return nil
}

func DeleteMembership(dbtx DBTX, clientID, groupID int64) error {
	if _, err := dbtx.Exec(`DELETE FROM group_memberships WHERE client_id = ? AND group_id = ?`, clientID, groupID); err != nil {
		return fmt.Errorf("failed to delete membership of client %d in group %d: %w", clientID, groupID, err)
	}
	return nil
}

// DeleteAutomaticMembershipsInTx clears the computed memberships of a group.
func DeleteAutomaticMembershipsInTx(tx *sqlx.Tx, groupID int64) error {
	_, err := tx.Exec(`DELETE FROM group_memberships WHERE group_id = ? AND membership_type = ?`,
		groupID, model.MembershipAutomatic)
	if err != nil {
		return fmt.Errorf("failed to clear automatic memberships of group %d: %w", groupID, err)
	}
	return nil
}

// InsertAutomaticMembershipInTx adds a computed membership unless the client
// already has a membership in the group.
func InsertAutomaticMembershipInTx(tx *sqlx.Tx, clientID, groupID int64) error {
	_, err := tx.Exec(`INSERT OR IGNORE INTO group_memberships (client_id, group_id, membership_type) VALUES (?, ?, ?)`,
		clientID, groupID, model.MembershipAutomatic)
	if err != nil {
		return fmt.Errorf("failed to add client %d to group %d: %w", clientID, groupID, err)
	}
	return nil
}

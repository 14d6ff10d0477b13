package database

import (
	"fmt"
	"time"

	"braintacle/model"

	"github.com/jmoiron/sqlx"
)

const packageColumns = `id, name, comment, platform, action, action_param, priority,
	fragments, size, hash, warn, warn_message, warn_countdown, warn_allow_abort,
	warn_allow_delay, post_inst_message, created_at`

func GetAllPackages(dbtx DBTX) ([]model.Package, error) {
	packages := []model.Package{}
	if err := dbtx.Select(&packages, "SELECT "+packageColumns+" FROM packages ORDER BY name"); err != nil {
		return nil, fmt.Errorf("failed to get all packages: %w", err)
	}
	return packages, nil
}

func GetPackageByName(dbtx DBTX, name string) (*model.Package, error) {
	var p model.Package
	if err := dbtx.Get(&p, "SELECT "+packageColumns+" FROM packages WHERE name = ?", name); err != nil {
		return nil, notFound(err, fmt.Sprintf("package %q", name))
	}
	return &p, nil
}

// PackageExists reports whether a package with the given id or name is stored.
func PackageExists(dbtx DBTX, id int64, name string) (bool, error) {
	var n int
	if err := dbtx.Get(&n, `SELECT COUNT(*) FROM packages WHERE id = ? OR name = ?`, id, name); err != nil {
		return false, fmt.Errorf("failed to check package %q: %w", name, err)
	}
	return n > 0, nil
}

func InsertPackage(dbtx DBTX, p *model.Package) error {
	const q = `
		INSERT INTO packages (
			id, name, comment, platform, action, action_param, priority,
			fragments, size, hash, warn, warn_message, warn_countdown, warn_allow_abort,
			warn_allow_delay, post_inst_message, created_at
		) VALUES (
			:id, :name, :comment, :platform, :action, :action_param, :priority,
			:fragments, :size, :hash, :warn, :warn_message, :warn_countdown, :warn_allow_abort,
			:warn_allow_delay, :post_inst_message, :created_at
		)`
	if _, err := dbtx.NamedExec(q, p); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("package %q: %w", p.Name, ErrDuplicateName)
		}
		return fmt.Errorf("InsertPackage (Name: %s) failed: %w", p.Name, err)
	}
	return nil
}

// RenamePackageInTx changes the name of a stored package.
func RenamePackageInTx(tx *sqlx.Tx, id int64, name string) error {
	if _, err := tx.Exec(`UPDATE packages SET name = ? WHERE id = ?`, name, id); err != nil {
		return fmt.Errorf("failed to rename package %d: %w", id, err)
	}
	return nil
}

func DeletePackageInTx(tx *sqlx.Tx, id int64) error {
	for _, table := range []string{"package_assignments", "group_package_assignments"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE package_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete %s of package %d: %w", table, id, err)
		}
	}
	res, err := tx.Exec(`DELETE FROM packages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete package %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("package %d: %w", id, ErrNotFound)
	}
	return nil
}

// AssignPackage adds a pending assignment. An existing assignment is kept as is.
func AssignPackage(dbtx DBTX, clientID, packageID int64, now time.Time) error {
	_, err := dbtx.Exec(`
		INSERT OR IGNORE INTO package_assignments (client_id, package_id, status, assigned_at)
		VALUES (?, ?, ?, ?)`, clientID, packageID, model.StatusPending, now)
	if err != nil {
		return fmt.Errorf("failed to assign package %d to client %d: %w", packageID, clientID, err)
	}
	return nil
}

func UnassignPackage(dbtx DBTX, clientID, packageID int64) error {
	res, err := dbtx.Exec(`DELETE FROM package_assignments WHERE client_id = ? AND package_id = ?`, clientID, packageID)
	if err != nil {
		return fmt.Errorf("failed to unassign package %d from client %d: %w", packageID, clientID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("assignment of package %d to client %d: %w", packageID, clientID, ErrNotFound)
	}
	return nil
}

func SetAssignmentStatus(dbtx DBTX, clientID, packageID int64, status string) error {
	_, err := dbtx.Exec(`UPDATE package_assignments SET status = ? WHERE client_id = ? AND package_id = ?`,
		status, clientID, packageID)
	if err != nil {
		return fmt.Errorf("failed to set status of package %d on client %d: %w", packageID, clientID, err)
	}
	return nil
}

func GetClientAssignments(dbtx DBTX, clientID int64) ([]model.PackageAssignment, error) {
	assignments := []model.PackageAssignment{}
	err := dbtx.Select(&assignments, `
		SELECT a.client_id, a.package_id, p.name AS package_name, a.status, a.assigned_at
		FROM package_assignments a JOIN packages p ON p.id = a.package_id
		WHERE a.client_id = ? ORDER BY p.name`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get packages of client %d: %w", clientID, err)
	}
	return assignments, nil
}

func GetPackageAssignments(dbtx DBTX, packageID int64) ([]model.PackageAssignment, error) {
	assignments := []model.PackageAssignment{}
	err := dbtx.Select(&assignments, `
		SELECT a.client_id, a.package_id, p.name AS package_name, a.status, a.assigned_at
		FROM package_assignments a JOIN packages p ON p.id = a.package_id
		WHERE a.package_id = ? ORDER BY a.client_id`, packageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignments of package %d: %w", packageID, err)
	}
	return assignments, nil
}

// MoveAssignmentsInTx reassigns from oldID to newID every assignment whose
// status is in statuses. The status is reset to pending.
func MoveAssignmentsInTx(tx *sqlx.Tx, oldID, newID int64, statuses []string, now time.Time) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(`
		INSERT OR IGNORE INTO package_assignments (client_id, package_id, status, assigned_at)
		SELECT client_id, ?, ?, ? FROM package_assignments
		WHERE package_id = ? AND status IN (?)`, newID, model.StatusPending, now, oldID, statuses)
	if err != nil {
		return 0, fmt.Errorf("failed to build assignment query: %w", err)
	}
	res, err := tx.Exec(tx.Rebind(q), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to move assignments of package %d: %w", oldID, err)
	}
	return res.RowsAffected()
}

// MovePackageAssignmentsInTx hands the assignments of one client over to
// another. Packages the target already has are left on the source.
func MovePackageAssignmentsInTx(tx *sqlx.Tx, fromClientID, toClientID int64) (int64, error) {
	res, err := tx.Exec(`UPDATE OR IGNORE package_assignments SET client_id = ? WHERE client_id = ?`,
		toClientID, fromClientID)
	if err != nil {
		return 0, fmt.Errorf("failed to move packages from client %d to client %d: %w", fromClientID, toClientID, err)
	}
	return res.RowsAffected()
}

// AssignPackageToGroup adds a group assignment. An existing one is kept.
func AssignPackageToGroup(dbtx DBTX, groupID, packageID int64, now time.Time) error {
	_, err := dbtx.Exec(`
		INSERT OR IGNORE INTO group_package_assignments (group_id, package_id, assigned_at)
		VALUES (?, ?, ?)`, groupID, packageID, now)
	if err != nil {
		return fmt.Errorf("failed to assign package %d to group %d: %w", packageID, groupID, err)
	}
	return nil
}

func UnassignPackageFromGroup(dbtx DBTX, groupID, packageID int64) error {
	res, err := dbtx.Exec(`DELETE FROM group_package_assignments WHERE group_id = ? AND package_id = ?`, groupID, packageID)
	if err != nil {
		return fmt.Errorf("failed to unassign package %d from group %d: %w", packageID, groupID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("assignment of package %d to group %d: %w", packageID, groupID, ErrNotFound)
	}
	return nil
}

func GetGroupPackageAssignments(dbtx DBTX, groupID int64) ([]model.GroupPackageAssignment, error) {
	assignments := []model.GroupPackageAssignment{}
	err := dbtx.Select(&assignments, `
		SELECT a.group_id, a.package_id, p.name AS package_name, a.assigned_at
		FROM group_package_assignments a JOIN packages p ON p.id = a.package_id
		WHERE a.group_id = ? ORDER BY p.name`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get packages of group %d: %w", groupID, err)
	}
	return assignments, nil
}

// MoveGroupAssignmentsInTx copies all group assignments of oldID to newID.
func MoveGroupAssignmentsInTx(tx *sqlx.Tx, oldID, newID int64, now time.Time) (int64, error) {
	res, err := tx.Exec(`
		INSERT OR IGNORE INTO group_package_assignments (group_id, package_id, assigned_at)
		SELECT group_id, ?, ? FROM group_package_assignments WHERE package_id = ?`, newID, now, oldID)
	if err != nil {
		return 0, fmt.Errorf("failed to move group assignments of package %d: %w", oldID, err)
	}
	return res.RowsAffected()
}

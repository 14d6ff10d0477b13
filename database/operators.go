package database

import (
	"fmt"

	"braintacle/model"
)

const operatorColumns = `id, first_name, last_name, mail_address, comment, password_hash`

func GetAllOperators(dbtx DBTX) ([]model.Operator, error) {
	operators := []model.Operator{}
	if err := dbtx.Select(&operators, "SELECT "+operatorColumns+" FROM operators ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to get all operators: %w", err)
	}
	return operators, nil
}

func GetOperator(dbtx DBTX, id string) (*model.Operator, error) {
	var o model.Operator
	if err := dbtx.Get(&o, "SELECT "+operatorColumns+" FROM operators WHERE id = ?", id); err != nil {
		return nil, notFound(err, fmt.Sprintf("operator %q", id))
	}
	return &o, nil
}

func CreateOperator(dbtx DBTX, o *model.Operator) error {
	const q = `
		INSERT INTO operators (id, first_name, last_name, mail_address, comment, password_hash)
		VALUES (:id, :first_name, :last_name, :mail_address, :comment, :password_hash)`
	if _, err := dbtx.NamedExec(q, o); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("operator %q: %w", o.ID, ErrDuplicateName)
		}
		return fmt.Errorf("CreateOperator (ID: %s) failed: %w", o.ID, err)
	}
	return nil
}

// UpdateOperator rewrites the descriptive attributes. The password hash is
// left alone.
func UpdateOperator(dbtx DBTX, o *model.Operator) error {
	const q = `
		UPDATE operators SET first_name = :first_name, last_name = :last_name,
			mail_address = :mail_address, comment = :comment
		WHERE id = :id`
	res, err := dbtx.NamedExec(q, o)
	if err != nil {
		return fmt.Errorf("UpdateOperator (ID: %s) failed: %w", o.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("operator %q: %w", o.ID, ErrNotFound)
	}
	return nil
}

func SetOperatorPasswordHash(dbtx DBTX, id, hash string) error {
	res, err := dbtx.Exec(`UPDATE operators SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("failed to set password of operator %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("operator %q: %w", id, ErrNotFound)
	}
	return nil
}

func DeleteOperator(dbtx DBTX, id string) error {
	res, err := dbtx.Exec(`DELETE FROM operators WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete operator %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("operator %q: %w", id, ErrNotFound)
	}
	return nil
}

func CountOperators(dbtx DBTX) (int, error) {
	var n int
	if err := dbtx.Get(&n, `SELECT COUNT(*) FROM operators`); err != nil {
		return 0, fmt.Errorf("failed to count operators: %w", err)
	}
	return n, nil
}

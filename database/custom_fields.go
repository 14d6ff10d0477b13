package database

import (
	"fmt"

	"braintacle/model"

	"github.com/jmoiron/sqlx"
)

// GetCustomFields returns the custom fields of a client as name => value.
func GetCustomFields(dbtx DBTX, clientID int64) (map[string]string, error) {
	var rows []struct {
		Name  string `db:"name"`
		Value string `db:"value"`
	}
	if err := dbtx.Select(&rows, `SELECT name, value FROM custom_fields WHERE client_id = ?`, clientID); err != nil {
		return nil, fmt.Errorf("failed to get custom fields of client %d: %w", clientID, err)
	}
	fields := make(map[string]string, len(rows))
	for _, r := range rows {
		fields[r.Name] = r.Value
	}
	return fields, nil
}

// ReplaceCustomFieldsInTx replaces all custom fields of a client.
func ReplaceCustomFieldsInTx(tx *sqlx.Tx, clientID int64, fields map[string]string) error {
	if _, err := tx.Exec(`DELETE FROM custom_fields WHERE client_id = ?`, clientID); err != nil {
		return fmt.Errorf("failed to clear custom fields of client %d: %w", clientID, err)
	}
	for name, value := range fields {
		if _, err := tx.Exec(`INSERT INTO custom_fields (client_id, name, value) VALUES (?, ?, ?)`, clientID, name, value); err != nil {
			return fmt.Errorf("failed to set custom field %s of client %d: %w", name, clientID, err)
		}
	}
	return nil
}

// SetCustomFields updates the given fields and leaves the others alone.
func SetCustomFields(dbtx DBTX, clientID int64, fields map[string]string) error {
	const q = `
		INSERT INTO custom_fields (client_id, name, value) VALUES (?, ?, ?)
		ON CONFLICT(client_id, name) DO UPDATE SET value = excluded.value`
	for name, value := range fields {
		if _, err := dbtx.Exec(q, clientID, name, value); err != nil {
			return fmt.Errorf("failed to set custom field %s of client %d: %w", name, clientID, err)
		}
	}
	return nil
}

func GetClientConfig(dbtx DBTX, clientID int64) ([]model.ConfigValue, error) {
	values := []model.ConfigValue{}
	err := dbtx.Select(&values, `
		SELECT client_id, option, ivalue, tvalue
		FROM client_config WHERE client_id = ? ORDER BY option`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get config of client %d: %w", clientID, err)
	}
	return values, nil
}

// SetClientConfig stores an override. A value with neither IValue nor TValue
// removes the override.
func SetClientConfig(dbtx DBTX, v model.ConfigValue) error {
	if v.IValue == nil && v.TValue == nil {
		if _, err := dbtx.Exec(`DELETE FROM client_config WHERE client_id = ? AND option = ?`, v.ClientID, v.Option); err != nil {
			return fmt.Errorf("failed to clear option %s of client %d: %w", v.Option, v.ClientID, err)
		}
		return nil
	}
	const q = `
		INSERT INTO client_config (client_id, option, ivalue, tvalue)
		VALUES (:client_id, :option, :ivalue, :tvalue)
		ON CONFLICT(client_id, option) DO UPDATE SET
			ivalue = excluded.ivalue,
			tvalue = excluded.tvalue`
	if _, err := dbtx.NamedExec(q, v); err != nil {
		return fmt.Errorf("failed to set option %s of client %d: %w", v.Option, v.ClientID, err)
	}
	return nil
}

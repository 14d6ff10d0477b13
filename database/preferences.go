package database

import (
	"database/sql"
	"errors"
	"fmt"
)

// ConfigRow is one row of the server configuration table.
type ConfigRow struct {
	Name   string         `db:"name"`
	IValue sql.NullInt64  `db:"ivalue"`
	TValue sql.NullString `db:"tvalue"`
}

// GetConfigRow returns nil without error if the option has never been set.
func GetConfigRow(dbtx DBTX, name string) (*ConfigRow, error) {
	var row ConfigRow
	err := dbtx.Get(&row, `SELECT name, ivalue, tvalue FROM config WHERE name = ?`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get config option %s: %w", name, err)
	}
	return &row, nil
}

func GetAllConfigRows(dbtx DBTX) ([]ConfigRow, error) {
	var rows []ConfigRow
	if err := dbtx.Select(&rows, `SELECT name, ivalue, tvalue FROM config ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	return rows, nil
}

func UpsertConfigRow(dbtx DBTX, row ConfigRow) error {
	const q = `
		INSERT INTO config (name, ivalue, tvalue) VALUES (:name, :ivalue, :tvalue)
		ON CONFLICT(name) DO UPDATE SET ivalue = excluded.ivalue, tvalue = excluded.tvalue`
	if _, err := dbtx.NamedExec(q, row); err != nil {
		return fmt.Errorf("failed to set config option %s: %w", row.Name, err)
	}
	return nil
}

// Package loader creates the database schema and imports network scan data.
package loader

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"braintacle/charset"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// InitDatabase applies the schema. Every statement is idempotent, so it is
// safe to run against an existing database.
func InitDatabase(db *sqlx.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Applying database schema")
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("Schema applied")
	return nil
}

// networkDeviceColumns is the layout of a network scan CSV export:
// MAC address, IP address, host name, description.
const networkDeviceColumns = 4

// ImportNetworkDevices loads a network scan CSV into network_devices,
// replacing devices with the same MAC address. Malformed rows are skipped
// and counted; a failing insert aborts the whole import.
func ImportNetworkDevices(db *sqlx.DB, r io.Reader, encoding string, skipHeader bool, logger *zap.Logger) (imported, skipped int, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	decoded, err := charset.NewReader(r, encoding)
	if err != nil {
		return 0, 0, err
	}
	cr := csv.NewReader(decoded)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	if skipHeader {
		if _, err := cr.Read(); err != nil && err != io.EOF {
			return 0, 0, fmt.Errorf("failed to skip header: %w", err)
		}
	}

	tx, err := db.Beginx()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			logger.Warn("Rolling back network device import", zap.Error(err))
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO network_devices (mac_address, ip_address, hostname, description, discovered)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Truncate(time.Second)
	for {
		row, readErr := cr.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			logger.Warn("Skipping unreadable row", zap.Error(readErr))
			skipped++
			continue
		}
		if len(row) < networkDeviceColumns {
			skipped++
			continue
		}
		mac := normalizeMacAddress(row[0])
		if mac == "" {
			skipped++
			continue
		}
		args := []interface{}{mac, strings.TrimSpace(row[1]), strings.TrimSpace(row[2]), strings.TrimSpace(row[3]), now}
		if _, execErr := stmt.Exec(args...); execErr != nil {
			return imported, skipped, fmt.Errorf("failed to insert network device %s: %w", mac, execErr)
		}
		imported++
	}

	logger.Info("Imported network devices", zap.Int("imported", imported), zap.Int("skipped", skipped))
	return imported, skipped, nil
}

// normalizeMacAddress returns the address in the agent's format
// (upper case, colon separated) or "" if it is not a MAC address.
func normalizeMacAddress(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "", ":", "", ".", "").Replace(s)
	if len(s) != 12 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < 12; i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'F') {
			return ""
		}
		if i > 0 && i%2 == 0 {
			b.WriteByte(':')
		}
		b.WriteByte(c)
	}
	return b.String()
}

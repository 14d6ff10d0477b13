package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetLockSince returns the time a client was locked, or nil if it is not.
func GetLockSince(dbtx DBTX, clientID int64) (*time.Time, error) {
	var since time.Time
	err := dbtx.Get(&since, `SELECT since FROM locks WHERE client_id = ?`, clientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lock of client %d: %w", clientID, err)
	}
	return &since, nil
}

// InsertLock creates a lock row. It reports false if a row already exists.
func InsertLock(dbtx DBTX, clientID int64, since time.Time) (bool, error) {
	res, err := dbtx.Exec(`INSERT OR IGNORE INTO locks (client_id, since) VALUES (?, ?)`, clientID, since)
	if err != nil {
		return false, fmt.Errorf("failed to lock client %d: %w", clientID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for lock of client %d: %w", clientID, err)
	}
	return n == 1, nil
}

// ReplaceStaleLock swaps a lock row created at staleSince for a new one. It
// reports false if the row changed in the meantime.
func ReplaceStaleLock(dbtx DBTX, clientID int64, staleSince, since time.Time) (bool, error) {
	res, err := dbtx.Exec(`UPDATE locks SET since = ? WHERE client_id = ? AND since = ?`, since, clientID, staleSince)
	if err != nil {
		return false, fmt.Errorf("failed to replace lock of client %d: %w", clientID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for lock of client %d: %w", clientID, err)
	}
	return n == 1, nil
}

// DeleteLock removes the lock row if it still carries the given timestamp.
func DeleteLock(dbtx DBTX, clientID int64, since time.Time) error {
	if _, err := dbtx.Exec(`DELETE FROM locks WHERE client_id = ? AND since = ?`, clientID, since); err != nil {
		return fmt.Errorf("failed to unlock client %d: %w", clientID, err)
	}
	return nil
}

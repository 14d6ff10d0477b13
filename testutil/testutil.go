// Package testutil provides fixtures shared by the package tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"braintacle/database"
	"braintacle/loader"
	"braintacle/model"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// OpenDB returns a fresh database with the schema applied. It is closed
// when the test ends.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "braintacle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, loader.InitDatabase(db, nil))
	return db
}

// Date returns midnight UTC of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

var deviceSeq atomic.Int64

// ClientSpec describes a client fixture.
type ClientSpec struct {
	Name        string
	LastContact time.Time
	Macs        []string
	Serial      string
	AssetTag    string
	Windows     bool
}

// AddClient inserts a client with optional network interfaces, BIOS and
// Windows records and returns its id.
func AddClient(t *testing.T, db *sqlx.DB, cs ClientSpec) int64 {
	t.Helper()
	if cs.LastContact.IsZero() {
		cs.LastContact = Date(2024, 1, 1)
	}
	c := &model.Client{
		DeviceID:        fmt.Sprintf("%s-%d", cs.Name, deviceSeq.Add(1)),
		Name:            cs.Name,
		OsName:          "Linux",
		InventoryDate:   cs.LastContact,
		LastContactDate: cs.LastContact,
	}
	if cs.Windows {
		c.OsName = "Microsoft Windows 10 Pro"
	}
	id, err := database.InsertClient(db, c)
	require.NoError(t, err)

	for i, mac := range cs.Macs {
		require.NoError(t, database.InsertNetworkInterface(db, &model.NetworkInterface{
			ClientID:    id,
			Description: fmt.Sprintf("eth%d", i),
			MacAddress:  mac,
		}))
	}
	if cs.Serial != "" || cs.AssetTag != "" {
		require.NoError(t, database.UpsertBios(db, &model.Bios{
			ClientID: id,
			Serial:   cs.Serial,
			AssetTag: cs.AssetTag,
		}))
	}
	if cs.Windows {
		require.NoError(t, database.UpsertWindowsInstallation(db, &model.WindowsInstallation{ClientID: id}))
	}
	return id
}

package model

import "time"

// DuplicateClient is one row of a duplicates listing. MacAddress holds the
// colliding address when searching by MAC address, otherwise the lowest
// address of the client.
type DuplicateClient struct {
	ID              int64     `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	MacAddress      string    `db:"mac_address" json:"macAddress"`
	Serial          string    `db:"serial" json:"serial"`
	AssetTag        string    `db:"asset_tag" json:"assetTag"`
	LastContactDate time.Time `db:"last_contact_date" json:"lastContactDate"`
	InventoryDate   time.Time `db:"inventory_date" json:"inventoryDate"`
}

// Duplicate search criteria.
const (
	CriterionName       = "Name"
	CriterionMacAddress = "MacAddress"
	CriterionSerial     = "Serial"
	CriterionAssetTag   = "AssetTag"
)

// Criteria lists every duplicate search criterion in display order.
var Criteria = []string{CriterionName, CriterionMacAddress, CriterionSerial, CriterionAssetTag}

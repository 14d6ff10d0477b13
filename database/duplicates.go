package database

import (
	"fmt"

	"braintacle/model"
)

// duplicateCriterion describes how colliding values are found for one
// criterion.
type duplicateCriterion struct {
	// values selects every value shared by more than one client.
	values string
	// count counts the clients having one of values.
	count string
	// find lists the clients having one of values, without ORDER BY.
	find string
	// column is the result column holding the colliding value.
	column string
	// blacklist is the table and column of allowed values, empty if the
	// criterion cannot be allowed.
	blacklistTable, blacklistColumn string
}

const firstMacAddress = `COALESCE((SELECT MIN(mac_address) FROM network_interfaces
		WHERE client_id = c.id AND mac_address <> ''), '') AS mac_address`

var duplicateCriteria = map[string]duplicateCriterion{
	model.CriterionName: {
		values: `SELECT name FROM clients WHERE name <> '' GROUP BY name HAVING COUNT(*) > 1`,
		count:  `SELECT COUNT(*) FROM clients WHERE name IN (%s)`,
		find: `SELECT c.id, c.name, ` + firstMacAddress + `,
				COALESCE(b.serial, '') AS serial, COALESCE(b.asset_tag, '') AS asset_tag,
				c.last_contact_date, c.inventory_date
			FROM clients c LEFT JOIN bios b ON b.client_id = c.id
			WHERE c.name IN (%s)`,
		column: "name",
	},
	model.CriterionMacAddress: {
		values: `SELECT mac_address FROM network_interfaces
			WHERE mac_address <> ''
				AND mac_address NOT IN (SELECT mac_address FROM duplicate_mac_blacklist)
			GROUP BY mac_address HAVING COUNT(DISTINCT client_id) > 1`,
		count: `SELECT COUNT(DISTINCT client_id) FROM network_interfaces WHERE mac_address IN (%s)`,
		find: `SELECT DISTINCT c.id, c.name, n.mac_address,
				COALESCE(b.serial, '') AS serial, COALESCE(b.asset_tag, '') AS asset_tag,
				c.last_contact_date, c.inventory_date
			FROM clients c
			JOIN network_interfaces n ON n.client_id = c.id
			LEFT JOIN bios b ON b.client_id = c.id
			WHERE n.mac_address IN (%s)`,
		column:          "mac_address",
		blacklistTable:  "duplicate_mac_blacklist",
		blacklistColumn: "mac_address",
	},
	model.CriterionSerial: {
		values: `SELECT serial FROM bios
			WHERE serial <> ''
				AND serial NOT IN (SELECT serial FROM duplicate_serial_blacklist)
			GROUP BY serial HAVING COUNT(*) > 1`,
		count: `SELECT COUNT(*) FROM bios WHERE serial IN (%s)`,
		find: `SELECT c.id, c.name, ` + firstMacAddress + `,
				b.serial, b.asset_tag, c.last_contact_date, c.inventory_date
			FROM clients c JOIN bios b ON b.client_id = c.id
			WHERE b.serial IN (%s)`,
		column:          "serial",
		blacklistTable:  "duplicate_serial_blacklist",
		blacklistColumn: "serial",
	},
	model.CriterionAssetTag: {
		values: `SELECT asset_tag FROM bios
			WHERE asset_tag <> ''
				AND asset_tag NOT IN (SELECT asset_tag FROM duplicate_asset_tag_blacklist)
			GROUP BY asset_tag HAVING COUNT(*) > 1`,
		count: `SELECT COUNT(*) FROM bios WHERE asset_tag IN (%s)`,
		find: `SELECT c.id, c.name, ` + firstMacAddress + `,
				b.serial, b.asset_tag, c.last_contact_date, c.inventory_date
			FROM clients c JOIN bios b ON b.client_id = c.id
			WHERE b.asset_tag IN (%s)`,
		column:          "asset_tag",
		blacklistTable:  "duplicate_asset_tag_blacklist",
		blacklistColumn: "asset_tag",
	},
}

// duplicateOrderColumns maps API order names to result columns of the
// find queries.
var duplicateOrderColumns = map[string]string{
	"Id":              "c.id",
	"Name":            "c.name",
	"MacAddress":      "mac_address",
	"Serial":          "serial",
	"AssetTag":        "asset_tag",
	"LastContactDate": "c.last_contact_date",
	"InventoryDate":   "c.inventory_date",
}

// IsDuplicateOrder reports whether order is a valid sort key for FindDuplicates.
func IsDuplicateOrder(order string) bool {
	_, ok := duplicateOrderColumns[order]
	return ok
}

func lookupCriterion(criterion string) (duplicateCriterion, error) {
	c, ok := duplicateCriteria[criterion]
	if !ok {
		return duplicateCriterion{}, fmt.Errorf("invalid criterion %q", criterion)
	}
	return c, nil
}

// CountDuplicates returns the number of clients sharing a value of the
// given criterion with another client.
func CountDuplicates(dbtx DBTX, criterion string) (int, error) {
	c, err := lookupCriterion(criterion)
	if err != nil {
		return 0, err
	}
	var n int
	if err := dbtx.Get(&n, fmt.Sprintf(c.count, c.values)); err != nil {
		return 0, fmt.Errorf("failed to count duplicates by %s: %w", criterion, err)
	}
	return n, nil
}

// FindDuplicates lists clients sharing a value of the given criterion. An
// empty order groups rows by the colliding value.
func FindDuplicates(dbtx DBTX, criterion, order string, descending bool) ([]model.DuplicateClient, error) {
	c, err := lookupCriterion(criterion)
	if err != nil {
		return nil, err
	}
	direction := "ASC"
	if descending {
		direction = "DESC"
	}
	var orderBy string
	if order == "" {
		orderBy = fmt.Sprintf("%s %s, c.id", c.column, direction)
	} else {
		col, ok := duplicateOrderColumns[order]
		if !ok {
			return nil, fmt.Errorf("invalid order %q", order)
		}
		orderBy = fmt.Sprintf("%s %s, c.id %s", col, direction, direction)
	}

	q := fmt.Sprintf(c.find, c.values) + " ORDER BY " + orderBy
	result := []model.DuplicateClient{}
	if err := dbtx.Select(&result, q); err != nil {
		return nil, fmt.Errorf("failed to find duplicates by %s: %w", criterion, err)
	}
	return result, nil
}

// CanAllowDuplicates reports whether values of the criterion can be
// excluded from duplicate searches.
func CanAllowDuplicates(criterion string) bool {
	c, ok := duplicateCriteria[criterion]
	return ok && c.blacklistTable != ""
}

// AllowDuplicateValue excludes value from future duplicate searches by
// criterion. Allowing a value twice is not an error.
func AllowDuplicateValue(dbtx DBTX, criterion, value string) error {
	c, err := lookupCriterion(criterion)
	if err != nil {
		return err
	}
	if c.blacklistTable == "" {
		return fmt.Errorf("criterion %q cannot be allowed", criterion)
	}
	q := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (?)", c.blacklistTable, c.blacklistColumn)
	if _, err := dbtx.Exec(q, value); err != nil {
		return fmt.Errorf("failed to allow duplicate %s %q: %w", criterion, value, err)
	}
	return nil
}

// GetAllowedValues lists the blacklist of a criterion.
func GetAllowedValues(dbtx DBTX, criterion string) ([]string, error) {
	c, err := lookupCriterion(criterion)
	if err != nil {
		return nil, err
	}
	if c.blacklistTable == "" {
		return []string{}, nil
	}
	values := []string{}
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", c.blacklistColumn, c.blacklistTable, c.blacklistColumn)
	if err := dbtx.Select(&values, q); err != nil {
		return nil, fmt.Errorf("failed to get allowed %s values: %w", criterion, err)
	}
	return values, nil
}

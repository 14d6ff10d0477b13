package database

import (
	"fmt"
	"strings"

	"braintacle/model"

	"github.com/jmoiron/sqlx"
)

const clientColumns = `id, device_id, name, user_id, os_name, os_version, os_comment,
	processor_type, processor_cores, physical_memory, ip_address, dns_domain,
	agent_version, inventory_date, last_contact_date`

// ClientFilter restricts ListClients. Empty fields match everything.
type ClientFilter struct {
	Name   string
	OsName string
	UserID string
}

// clientOrderColumns whitelists the sortable columns of ListClients.
var clientOrderColumns = map[string]string{
	"Id":              "id",
	"Name":            "name",
	"UserId":          "user_id",
	"OsName":          "os_name",
	"InventoryDate":   "inventory_date",
	"LastContactDate": "last_contact_date",
}

// ClientOrderColumn resolves an API order name to a column name.
func ClientOrderColumn(order string) (string, bool) {
	col, ok := clientOrderColumns[order]
	return col, ok
}

func ListClients(dbtx DBTX, filter ClientFilter, orderColumn string, descending bool) ([]model.Client, error) {
	var where []string
	var args []interface{}
	if filter.Name != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+filter.Name+"%")
	}
	if filter.OsName != "" {
		where = append(where, "os_name LIKE ?")
		args = append(args, "%"+filter.OsName+"%")
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}

	q := "SELECT " + clientColumns + " FROM clients"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if orderColumn == "" {
		orderColumn = "id"
	}
	direction := "ASC"
	if descending {
		direction = "DESC"
	}
	q += fmt.Sprintf(" ORDER BY %s %s, id %s", orderColumn, direction, direction)

	clients := []model.Client{}
	if err := dbtx.Select(&clients, q, args...); err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

func GetClient(dbtx DBTX, id int64) (*model.Client, error) {
	var c model.Client
	if err := dbtx.Get(&c, "SELECT "+clientColumns+" FROM clients WHERE id = ?", id); err != nil {
		return nil, notFound(err, fmt.Sprintf("client %d", id))
	}
	return &c, nil
}

// GetClients loads several clients in one query. Missing ids are silently
// absent from the result.
func GetClients(dbtx DBTX, ids []int64) ([]model.Client, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In("SELECT "+clientColumns+" FROM clients WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build client query: %w", err)
	}
	var clients []model.Client
	if err := dbtx.Select(&clients, dbtx.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("failed to get clients: %w", err)
	}
	return clients, nil
}

// InsertClient stores a new client and returns its id. Inventory import is
// done by the OCS server; this exists for tooling and tests.
func InsertClient(dbtx DBTX, c *model.Client) (int64, error) {
	const q = `
		INSERT INTO clients (
			device_id, name, user_id, os_name, os_version, os_comment,
			processor_type, processor_cores, physical_memory, ip_address, dns_domain,
			agent_version, inventory_date, last_contact_date
		) VALUES (
			:device_id, :name, :user_id, :os_name, :os_version, :os_comment,
			:processor_type, :processor_cores, :physical_memory, :ip_address, :dns_domain,
			:agent_version, :inventory_date, :last_contact_date
		)`
	res, err := dbtx.NamedExec(q, c)
	if err != nil {
		return 0, fmt.Errorf("InsertClient (DeviceID: %s) failed: %w", c.DeviceID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("InsertClient: failed to get id: %w", err)
	}
	c.ID = id
	return id, nil
}

// clientTables lists every table referencing a client, children first.
var clientTables = []string{
	"network_interfaces",
	"bios",
	"windows_installations",
	"software",
	"custom_fields",
	"client_config",
	"group_memberships",
	"package_assignments",
	"locks",
}

// DeleteClientInTx removes a client with all dependent rows.
func DeleteClientInTx(tx *sqlx.Tx, id int64) error {
	for _, table := range clientTables {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE client_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete %s of client %d: %w", table, id, err)
		}
	}
	res, err := tx.Exec("DELETE FROM clients WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete client %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for client %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("client %d: %w", id, ErrNotFound)
	}
	return nil
}

func GetNetworkInterfaces(dbtx DBTX, clientID int64) ([]model.NetworkInterface, error) {
	ifaces := []model.NetworkInterface{}
	err := dbtx.Select(&ifaces, `
		SELECT id, client_id, description, mac_address, ip_address, netmask
		FROM network_interfaces WHERE client_id = ? ORDER BY id`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces of client %d: %w", clientID, err)
	}
	return ifaces, nil
}

func InsertNetworkInterface(dbtx DBTX, n *model.NetworkInterface) error {
	const q = `
		INSERT INTO network_interfaces (client_id, description, mac_address, ip_address, netmask)
		VALUES (:client_id, :description, :mac_address, :ip_address, :netmask)`
	if _, err := dbtx.NamedExec(q, n); err != nil {
		return fmt.Errorf("InsertNetworkInterface (Client: %d) failed: %w", n.ClientID, err)
	}
	return nil
}

// GetBios returns nil without error if the client has no BIOS record.
func GetBios(dbtx DBTX, clientID int64) (*model.Bios, error) {
	var b []model.Bios
	err := dbtx.Select(&b, `
		SELECT client_id, manufacturer, model, serial, asset_tag, version
		FROM bios WHERE client_id = ?`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bios of client %d: %w", clientID, err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	return &b[0], nil
}

func UpsertBios(dbtx DBTX, b *model.Bios) error {
	const q = `
		INSERT INTO bios (client_id, manufacturer, model, serial, asset_tag, version)
		VALUES (:client_id, :manufacturer, :model, :serial, :asset_tag, :version)
		ON CONFLICT(client_id) DO UPDATE SET
			manufacturer = excluded.manufacturer,
			model = excluded.model,
			serial = excluded.serial,
			asset_tag = excluded.asset_tag,
			version = excluded.version`
	if _, err := dbtx.NamedExec(q, b); err != nil {
		return fmt.Errorf("UpsertBios (Client: %d) failed: %w", b.ClientID, err)
	}
	return nil
}

// GetWindowsInstallation returns nil without error for non-Windows clients.
func GetWindowsInstallation(dbtx DBTX, clientID int64) (*model.WindowsInstallation, error) {
	var w []model.WindowsInstallation
	err := dbtx.Select(&w, `
		SELECT client_id, workgroup, user_domain, company, owner, product_id,
			product_key, manual_product_key
		FROM windows_installations WHERE client_id = ?`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get windows installation of client %d: %w", clientID, err)
	}
	if len(w) == 0 {
		return nil, nil
	}
	return &w[0], nil
}

func UpsertWindowsInstallation(dbtx DBTX, w *model.WindowsInstallation) error {
	const q = `
		INSERT INTO windows_installations (
			client_id, workgroup, user_domain, company, owner, product_id,
			product_key, manual_product_key
		) VALUES (
			:client_id, :workgroup, :user_domain, :company, :owner, :product_id,
			:product_key, :manual_product_key
		)
		ON CONFLICT(client_id) DO UPDATE SET
			workgroup = excluded.workgroup,
			user_domain = excluded.user_domain,
			company = excluded.company,
			owner = excluded.owner,
			product_id = excluded.product_id,
			product_key = excluded.product_key,
			manual_product_key = excluded.manual_product_key`
	if _, err := dbtx.NamedExec(q, w); err != nil {
		return fmt.Errorf("UpsertWindowsInstallation (Client: %d) failed: %w", w.ClientID, err)
	}
	return nil
}

// SetManualProductKey overrides the product key reported by the agent.
func SetManualProductKey(dbtx DBTX, clientID int64, key string) error {
	res, err := dbtx.Exec(`UPDATE windows_installations SET manual_product_key = ? WHERE client_id = ?`, key, clientID)
	if err != nil {
		return fmt.Errorf("failed to set product key of client %d: %w", clientID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("windows installation of client %d: %w", clientID, ErrNotFound)
	}
	return nil
}

func GetSoftware(dbtx DBTX, clientID int64) ([]model.Software, error) {
	software := []model.Software{}
	err := dbtx.Select(&software, `
		SELECT id, client_id, name, version, publisher
		FROM software WHERE client_id = ? ORDER BY name, version`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get software of client %d: %w", clientID, err)
	}
	return software, nil
}

func InsertSoftware(dbtx DBTX, s *model.Software) error {
	const q = `
		INSERT INTO software (client_id, name, version, publisher)
		VALUES (:client_id, :name, :version, :publisher)`
	if _, err := dbtx.NamedExec(q, s); err != nil {
		return fmt.Errorf("InsertSoftware (Client: %d, Name: %s) failed: %w", s.ClientID, s.Name, err)
	}
	return nil
}

// DeleteNetworkDevicesInTx removes scanned network devices carrying any of
// the given MAC addresses.
func DeleteNetworkDevicesInTx(tx *sqlx.Tx, macs []string) error {
	for _, mac := range macs {
		if mac == "" {
			continue
		}
		if _, err := tx.Exec(`DELETE FROM network_devices WHERE mac_address = ?`, mac); err != nil {
			return fmt.Errorf("failed to delete network device %s: %w", mac, err)
		}
	}
	return nil
}

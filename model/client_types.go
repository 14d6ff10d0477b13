package model

import "time"

// Client is one inventoried computer.
type Client struct {
	ID              int64     `db:"id" json:"id"`
	DeviceID        string    `db:"device_id" json:"deviceId"`
	Name            string    `db:"name" json:"name"`
	UserID          string    `db:"user_id" json:"userId"`
	OsName          string    `db:"os_name" json:"osName"`
	OsVersion       string    `db:"os_version" json:"osVersion"`
	OsComment       string    `db:"os_comment" json:"osComment"`
	ProcessorType   string    `db:"processor_type" json:"processorType"`
	ProcessorCores  int       `db:"processor_cores" json:"processorCores"`
	PhysicalMemory  int64     `db:"physical_memory" json:"physicalMemory"`
	IPAddress       string    `db:"ip_address" json:"ipAddress"`
	DNSDomain       string    `db:"dns_domain" json:"dnsDomain"`
	AgentVersion    string    `db:"agent_version" json:"agentVersion"`
	InventoryDate   time.Time `db:"inventory_date" json:"inventoryDate"`
	LastContactDate time.Time `db:"last_contact_date" json:"lastContactDate"`
}

type NetworkInterface struct {
	ID          int64  `db:"id" json:"id"`
	ClientID    int64  `db:"client_id" json:"clientId"`
	Description string `db:"description" json:"description"`
	MacAddress  string `db:"mac_address" json:"macAddress"`
	IPAddress   string `db:"ip_address" json:"ipAddress"`
	Netmask     string `db:"netmask" json:"netmask"`
}

type Bios struct {
	ClientID     int64  `db:"client_id" json:"clientId"`
	Manufacturer string `db:"manufacturer" json:"manufacturer"`
	Model        string `db:"model" json:"model"`
	Serial       string `db:"serial" json:"serial"`
	AssetTag     string `db:"asset_tag" json:"assetTag"`
	Version      string `db:"version" json:"version"`
}

// WindowsInstallation exists only for clients running Windows.
type WindowsInstallation struct {
	ClientID         int64  `db:"client_id" json:"clientId"`
	Workgroup        string `db:"workgroup" json:"workgroup"`
	UserDomain       string `db:"user_domain" json:"userDomain"`
	Company          string `db:"company" json:"company"`
	Owner            string `db:"owner" json:"owner"`
	ProductID        string `db:"product_id" json:"productId"`
	ProductKey       string `db:"product_key" json:"productKey"`
	ManualProductKey string `db:"manual_product_key" json:"manualProductKey"`
}

type Software struct {
	ID        int64  `db:"id" json:"id"`
	ClientID  int64  `db:"client_id" json:"clientId"`
	Name      string `db:"name" json:"name"`
	Version   string `db:"version" json:"version"`
	Publisher string `db:"publisher" json:"publisher"`
}

// ConfigValue is a per-client override of a server preference. Exactly one
// of IValue and TValue is set.
type ConfigValue struct {
	ClientID int64   `db:"client_id" json:"clientId"`
	Option   string  `db:"option" json:"option"`
	IValue   *int64  `db:"ivalue" json:"ivalue,omitempty"`
	TValue   *string `db:"tvalue" json:"tvalue,omitempty"`
}

// ClientDetail aggregates everything known about a client.
type ClientDetail struct {
	Client
	NetworkInterfaces []NetworkInterface   `json:"networkInterfaces"`
	Bios              *Bios                `json:"bios"`
	Windows           *WindowsInstallation `json:"windows"`
	Software          []Software           `json:"software"`
	CustomFields      map[string]string    `json:"customFields"`
	Config            []ConfigValue        `json:"config"`
	Groups            []GroupMembership    `json:"groups"`
	Packages          []PackageAssignment  `json:"packages"`
}

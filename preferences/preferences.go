// Package preferences manages the server options stored in the config
// table, shared with the OCS communication server.
package preferences

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"braintacle/database"
)

// ErrUnknownOption is returned for option names not in the registry.
var ErrUnknownOption = errors.New("unknown option")

// ErrInvalidValue is returned when a value does not fit the option type.
var ErrInvalidValue = errors.New("invalid value")

type Kind int

const (
	KindInt Kind = iota
	KindBool
	KindText
)

// Option describes one preference. Column is the name used in the config
// table, which follows the OCS server's naming.
type Option struct {
	Name    string
	Column  string
	Kind    Kind
	Default interface{}
}

var registry = map[string]Option{}

func register(name, column string, kind Kind, def interface{}) {
	registry[name] = Option{Name: name, Column: column, Kind: kind, Default: def}
}

func init() {
	register("lockValidity", "LOCK_REUSE_TIME", KindInt, int64(600))
	register("inventoryInterval", "FREQUENCY", KindInt, int64(0))
	register("contactInterval", "PROLOG_FREQ", KindInt, int64(12))
	register("groupCacheExpirationInterval", "GROUPS_CACHE_REVALIDATE", KindInt, int64(43200))
	register("groupCacheExpirationFuzz", "GROUPS_CACHE_OFFSET", KindInt, int64(43200))
	register("setGroupPackageStatus", "DOWNLOAD_GROUPS_TRACE_EVENTS", KindBool, true)
	register("packageDeployment", "DOWNLOAD", KindBool, true)
	register("packagePath", "DOWNLOAD_PACK_DIR", KindText, "/var/lib/braintacle/download")
	register("packageBaseUriHttp", "DOWNLOAD_URI_FRAG", KindText, "localhost/download")
	register("packageBaseUriHttps", "DOWNLOAD_URI_INFO", KindText, "localhost/download")
	register("defaultPlatform", "BRAINTACLE_DEFAULT_PLATFORM", KindText, "windows")
	register("defaultAction", "BRAINTACLE_DEFAULT_ACTION", KindText, "launch")
	register("defaultActionParam", "BRAINTACLE_DEFAULT_ACTION_PARAM", KindText, "")
	register("defaultPackagePriority", "BRAINTACLE_DEFAULT_PACKAGE_PRIORITY", KindInt, int64(5))
	register("defaultMaxFragments", "BRAINTACLE_DEFAULT_MAX_FRAGMENTS", KindInt, int64(0))
	register("defaultWarn", "BRAINTACLE_DEFAULT_WARN", KindBool, false)
	register("defaultWarnMessage", "BRAINTACLE_DEFAULT_WARN_MESSAGE", KindText, "")
	register("defaultWarnCountdown", "BRAINTACLE_DEFAULT_WARN_COUNTDOWN", KindInt, int64(0))
	register("defaultWarnAllowAbort", "BRAINTACLE_DEFAULT_WARN_ALLOWABORT", KindBool, false)
	register("defaultWarnAllowDelay", "BRAINTACLE_DEFAULT_WARN_ALLOWDELAY", KindBool, false)
	register("defaultPostInstMessage", "BRAINTACLE_DEFAULT_POSTINSTMESSAGE", KindText, "")
	register("defaultDeployPending", "BRAINTACLE_DEFAULT_DEPLOY_PENDING", KindBool, true)
	register("defaultDeployRunning", "BRAINTACLE_DEFAULT_DEPLOY_RUNNING", KindBool, true)
	register("defaultDeploySuccess", "BRAINTACLE_DEFAULT_DEPLOY_SUCCESS", KindBool, false)
	register("defaultDeployError", "BRAINTACLE_DEFAULT_DEPLOY_ERROR", KindBool, true)
	register("defaultDeployGroups", "BRAINTACLE_DEFAULT_DEPLOY_GROUPS", KindBool, true)
	register("defaultMergeCustomFields", "BRAINTACLE_DEFAULT_MERGE_CUSTOM_FIELDS", KindBool, true)
	register("defaultMergeConfig", "BRAINTACLE_DEFAULT_MERGE_CONFIG", KindBool, true)
	register("defaultMergeGroups", "BRAINTACLE_DEFAULT_MERGE_GROUPS", KindBool, true)
	register("defaultMergePackages", "BRAINTACLE_DEFAULT_MERGE_PACKAGES", KindBool, true)
	register("defaultMergeProductKey", "BRAINTACLE_DEFAULT_MERGE_PRODUCT_KEY", KindBool, true)
	register("trustedNetworksOnly", "PROLOG_FILTER_ON", KindBool, false)
	register("inspectRegistry", "REGISTRY", KindBool, false)
	register("scanSnmp", "SNMP", KindBool, false)
	register("logLevel", "LOGLEVEL", KindInt, int64(0))
	register("saveRawData", "BRAINTACLE_SAVE_RAW_DATA", KindBool, false)
	register("saveDir", "BRAINTACLE_SAVE_DIR", KindText, "")
}

// Lookup returns the registry entry for name.
func Lookup(name string) (Option, error) {
	opt, ok := registry[name]
	if !ok {
		return Option{}, fmt.Errorf("%q: %w", name, ErrUnknownOption)
	}
	return opt, nil
}

// Names returns every option name in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Store reads and writes preferences.
type Store struct {
	db database.DBTX
}

func NewStore(db database.DBTX) *Store {
	return &Store{db: db}
}

// Get returns the option value: int64 for integer options, bool for boolean
// options and string for text options. Unset options yield the default.
func (s *Store) Get(name string) (interface{}, error) {
	opt, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	row, err := database.GetConfigRow(s.db, opt.Column)
	if err != nil {
		return nil, err
	}
	return decode(opt, row), nil
}

// GetInt is a shortcut for integer options.
func (s *Store) GetInt(name string) (int64, error) {
	v, err := s.Get(name)
	if err != nil {
		return 0, err
	}
	i, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("option %s is not an integer", name)
	}
	return i, nil
}

// GetBool is a shortcut for boolean options.
func (s *Store) GetBool(name string) (bool, error) {
	v, err := s.Get(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("option %s is not a boolean", name)
	}
	return b, nil
}

// GetString is a shortcut for text options.
func (s *Store) GetString(name string) (string, error) {
	v, err := s.Get(name)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("option %s is not text", name)
	}
	return str, nil
}

// LockValidity returns the lockValidity option as a duration. It satisfies
// lock.Validity.
func (s *Store) LockValidity() (time.Duration, error) {
	v, err := s.GetInt("lockValidity")
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Second, nil
}

// All returns every option with its current value.
func (s *Store) All() (map[string]interface{}, error) {
	rows, err := database.GetAllConfigRows(s.db)
	if err != nil {
		return nil, err
	}
	byColumn := make(map[string]*database.ConfigRow, len(rows))
	for i := range rows {
		byColumn[rows[i].Name] = &rows[i]
	}
	values := make(map[string]interface{}, len(registry))
	for name, opt := range registry {
		values[name] = decode(opt, byColumn[opt.Column])
	}
	return values, nil
}

// Set stores value for name. Integer options accept integers and numeric
// strings, boolean options accept booleans, 0/1 and "true"/"false".
func (s *Store) Set(name string, value interface{}) error {
	opt, err := Lookup(name)
	if err != nil {
		return err
	}
	row, err := encode(opt, value)
	if err != nil {
		return fmt.Errorf("option %s: %w", name, err)
	}
	return database.UpsertConfigRow(s.db, row)
}

// SetAll validates every value before storing any of them.
func (s *Store) SetAll(values map[string]interface{}) error {
	rows := make([]database.ConfigRow, 0, len(values))
	for name, value := range values {
		opt, err := Lookup(name)
		if err != nil {
			return err
		}
		row, err := encode(opt, value)
		if err != nil {
			return fmt.Errorf("option %s: %w", name, err)
		}
		rows = append(rows, row)
	}
	for _, row := range rows {
		if err := database.UpsertConfigRow(s.db, row); err != nil {
			return err
		}
	}
	return nil
}

func decode(opt Option, row *database.ConfigRow) interface{} {
	if row == nil {
		return opt.Default
	}
	switch opt.Kind {
	case KindInt:
		if row.IValue.Valid {
			return row.IValue.Int64
		}
	case KindBool:
		if row.IValue.Valid {
			return row.IValue.Int64 != 0
		}
	case KindText:
		if row.TValue.Valid {
			return row.TValue.String
		}
	}
	return opt.Default
}

func encode(opt Option, value interface{}) (database.ConfigRow, error) {
	row := database.ConfigRow{Name: opt.Column}
	switch opt.Kind {
	case KindInt:
		i, err := toInt(value)
		if err != nil {
			return row, err
		}
		row.IValue = sql.NullInt64{Int64: i, Valid: true}
	case KindBool:
		b, err := toBool(value)
		if err != nil {
			return row, err
		}
		var i int64
		if b {
			i = 1
		}
		row.IValue = sql.NullInt64{Int64: i, Valid: true}
	case KindText:
		str, ok := value.(string)
		if !ok {
			return row, fmt.Errorf("%v: %w", value, ErrInvalidValue)
		}
		row.TValue = sql.NullString{String: str, Valid: true}
	}
	return row, nil
}

func toInt(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		// JSON numbers
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%v: %w", value, ErrInvalidValue)
		}
		return int64(v), nil
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q: %w", v, ErrInvalidValue)
		}
		return i, nil
	}
	return 0, fmt.Errorf("%v: %w", value, ErrInvalidValue)
}

func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%q: %w", v, ErrInvalidValue)
		}
		return b, nil
	default:
		i, err := toInt(value)
		if err != nil || (i != 0 && i != 1) {
			return false, fmt.Errorf("%v: %w", value, ErrInvalidValue)
		}
		return i == 1, nil
	}
}

// Package client provides access to inventoried clients.
package client

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"braintacle/charset"
	"braintacle/database"
	"braintacle/lock"
	"braintacle/model"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrInvalidOption     = errors.New("invalid option")
	ErrInvalidProductKey = errors.New("invalid product key")
)

// productKeyRegex matches Windows product keys in the 5x5 format.
var productKeyRegex = regexp.MustCompile(`^[0-9A-Z]{5}(-[0-9A-Z]{5}){4}$`)

// configOptions are the preferences a client may override, mapped to true
// for integer options and false for text options.
var configOptions = map[string]bool{
	"contactInterval":       true,
	"inventoryInterval":     true,
	"packageDeployment":     true,
	"downloadPeriodDelay":   true,
	"downloadCycleDelay":    true,
	"downloadFragmentDelay": true,
	"downloadMaxPriority":   true,
	"downloadTimeout":       true,
	"allowScan":             true,
	"scanSnmp":              true,
	"scanThisNetwork":       false,
}

type Service struct {
	db       *sqlx.DB
	validity lock.Validity
	logger   *zap.Logger
}

func NewService(db *sqlx.DB, validity lock.Validity, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, validity: validity, logger: logger}
}

// List returns clients matching filter. order is an API column name such as
// "Name" or "LastContactDate"; direction is "asc" or "desc".
func (s *Service) List(filter database.ClientFilter, order, direction string) ([]model.Client, error) {
	var column string
	if order != "" {
		var ok bool
		column, ok = database.ClientOrderColumn(order)
		if !ok {
			return nil, fmt.Errorf("%q: %w", order, ErrInvalidOrder)
		}
	}
	var descending bool
	switch strings.ToLower(direction) {
	case "", "asc":
	case "desc":
		descending = true
	default:
		return nil, fmt.Errorf("direction %q: %w", direction, ErrInvalidOrder)
	}
	return database.ListClients(s.db, filter, column, descending)
}

// Get returns a client with all related data.
func (s *Service) Get(id int64) (*model.ClientDetail, error) {
	c, err := database.GetClient(s.db, id)
	if err != nil {
		return nil, err
	}
	detail := &model.ClientDetail{Client: *c}
	if detail.NetworkInterfaces, err = database.GetNetworkInterfaces(s.db, id); err != nil {
		return nil, err
	}
	if detail.Bios, err = database.GetBios(s.db, id); err != nil {
		return nil, err
	}
	if detail.Windows, err = database.GetWindowsInstallation(s.db, id); err != nil {
		return nil, err
	}
	if detail.Software, err = database.GetSoftware(s.db, id); err != nil {
		return nil, err
	}
	if detail.CustomFields, err = database.GetCustomFields(s.db, id); err != nil {
		return nil, err
	}
	if detail.Config, err = database.GetClientConfig(s.db, id); err != nil {
		return nil, err
	}
	if detail.Groups, err = database.GetClientMemberships(s.db, id); err != nil {
		return nil, err
	}
	if detail.Packages, err = database.GetClientAssignments(s.db, id); err != nil {
		return nil, err
	}
	return detail, nil
}

// Delete removes a client. With deleteInterfaces the scanned network
// devices carrying the client's MAC addresses are removed as well. A client
// locked by someone else yields lock.ErrLocked.
func (s *Service) Delete(id int64, deleteInterfaces bool) error {
	locker := lock.NewLocker(s.db, s.validity, lock.WithLogger(s.logger))
	if err := locker.MustLock(id); err != nil {
		return err
	}
	defer func() {
		if err := locker.Unlock(id); err != nil {
			s.logger.Error("Failed to unlock client", zap.Int64("client", id), zap.Error(err))
		}
	}()

	err := database.WithTx(s.db, func(tx *sqlx.Tx) error {
		if deleteInterfaces {
			ifaces, err := database.GetNetworkInterfaces(tx, id)
			if err != nil {
				return err
			}
			macs := make([]string, 0, len(ifaces))
			for _, iface := range ifaces {
				macs = append(macs, iface.MacAddress)
			}
			if err := database.DeleteNetworkDevicesInTx(tx, macs); err != nil {
				return err
			}
		}
		return database.DeleteClientInTx(tx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Deleted client", zap.Int64("client", id), zap.Bool("deleteInterfaces", deleteInterfaces))
	return nil
}

// SetCustomFields updates the given custom fields of a client.
func (s *Service) SetCustomFields(id int64, fields map[string]string) error {
	if _, err := database.GetClient(s.db, id); err != nil {
		return err
	}
	return database.SetCustomFields(s.db, id, fields)
}

// SetConfig overrides a preference for one client. A nil value removes the
// override. Integer options accept JSON numbers and numeric strings.
func (s *Service) SetConfig(id int64, option string, value interface{}) error {
	isInt, ok := configOptions[option]
	if !ok {
		return fmt.Errorf("%q: %w", option, ErrInvalidOption)
	}
	if _, err := database.GetClient(s.db, id); err != nil {
		return err
	}
	v := model.ConfigValue{ClientID: id, Option: option}
	if value != nil {
		if isInt {
			i, err := toInt(value)
			if err != nil {
				return fmt.Errorf("option %s: %w", option, err)
			}
			v.IValue = &i
		} else {
			str, ok := value.(string)
			if !ok {
				return fmt.Errorf("option %s: %v: %w", option, value, ErrInvalidOption)
			}
			v.TValue = &str
		}
	}
	return database.SetClientConfig(s.db, v)
}

func toInt(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v == float64(int64(v)) {
			return int64(v), nil
		}
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%v is not an integer: %w", value, ErrInvalidOption)
}

// SetProductKey stores a manually entered Windows product key. An empty key
// or one equal to the key reported by the agent clears the override.
func (s *Service) SetProductKey(id int64, key string) error {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key != "" && !productKeyRegex.MatchString(key) {
		return fmt.Errorf("%q: %w", key, ErrInvalidProductKey)
	}
	w, err := database.GetWindowsInstallation(s.db, id)
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("windows installation of client %d: %w", id, database.ErrNotFound)
	}
	if key == w.ProductKey {
		key = ""
	}
	return database.SetManualProductKey(s.db, id, key)
}

var exportHeader = []string{"ID", "Name", "User", "OS", "Inventory", "Last contact"}

// ExportCSV writes clients as CSV in the named encoding.
func ExportCSV(w io.Writer, clients []model.Client, encoding string) error {
	ew, err := charset.NewWriter(w, encoding)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(ew)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, c := range clients {
		record := []string{
			strconv.FormatInt(c.ID, 10),
			c.Name,
			c.UserID,
			strings.TrimSpace(c.OsName + " " + c.OsVersion),
			c.InventoryDate.Format(time.DateTime),
			c.LastContactDate.Format(time.DateTime),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row for client %d: %w", c.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return ew.Close()
}

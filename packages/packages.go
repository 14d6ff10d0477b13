// Package packages builds and deploys software packages in the OCS download
// format. A package is a directory named after its id holding the content
// split into fragments and an info file describing the deployment.
package packages

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"braintacle/database"
	"braintacle/model"
	"braintacle/preferences"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var (
	ErrInvalidName     = errors.New("invalid package name")
	ErrInvalidPlatform = errors.New("invalid platform")
	ErrInvalidAction   = errors.New("invalid action")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrMissingContent  = errors.New("package content is required")
)

var platforms = map[string]bool{"windows": true, "linux": true, "mac": true}

// actions maps actions to the OCS ACT attribute.
var actions = map[string]string{
	"launch":  "LAUNCH",
	"execute": "EXECUTE",
	"store":   "STORE",
}

// DeployFlags select which assignments of an updated package are moved to
// its replacement.
type DeployFlags struct {
	Pending bool `json:"deployPending"`
	Running bool `json:"deployRunning"`
	Success bool `json:"deploySuccess"`
	Error   bool `json:"deployError"`
	Groups  bool `json:"deployGroups"`
}

func (f DeployFlags) statuses() []string {
	var statuses []string
	if f.Pending {
		statuses = append(statuses, model.StatusPending)
	}
	if f.Running {
		statuses = append(statuses, model.StatusRunning)
	}
	if f.Success {
		statuses = append(statuses, model.StatusSuccess)
	}
	if f.Error {
		statuses = append(statuses, model.StatusError)
	}
	return statuses
}

// Option configures a Service.
type Option func(*Service)

// WithPath stores packages below dir instead of the packagePath preference.
func WithPath(dir string) Option {
	return func(s *Service) { s.path = dir }
}

// WithClock replaces the time source. Package ids derive from it.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	db     *sqlx.DB
	prefs  *preferences.Store
	logger *zap.Logger
	path   string
	now    func() time.Time
}

func NewService(db *sqlx.DB, prefs *preferences.Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{db: db, prefs: prefs, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *Service) baseDir() (string, error) {
	if s.path != "" {
		return s.path, nil
	}
	return s.prefs.GetString("packagePath")
}

// Dir returns the directory holding the files of a package.
func (s *Service) Dir(id int64) (string, error) {
	base, err := s.baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, strconv.FormatInt(id, 10)), nil
}

// Defaults returns a package populated from the default* preferences.
func (s *Service) Defaults() (model.Package, error) {
	all, err := s.prefs.All()
	if err != nil {
		return model.Package{}, err
	}
	str := func(name string) string { v, _ := all[name].(string); return v }
	num := func(name string) int { v, _ := all[name].(int64); return int(v) }
	flag := func(name string) bool { v, _ := all[name].(bool); return v }
	return model.Package{
		Platform:        str("defaultPlatform"),
		Action:          str("defaultAction"),
		ActionParam:     str("defaultActionParam"),
		Priority:        num("defaultPackagePriority"),
		Fragments:       num("defaultMaxFragments"),
		Warn:            flag("defaultWarn"),
		WarnMessage:     str("defaultWarnMessage"),
		WarnCountdown:   num("defaultWarnCountdown"),
		WarnAllowAbort:  flag("defaultWarnAllowAbort"),
		WarnAllowDelay:  flag("defaultWarnAllowDelay"),
		PostInstMessage: str("defaultPostInstMessage"),
	}, nil
}

// DefaultDeployFlags returns the defaultDeploy* preferences.
func (s *Service) DefaultDeployFlags() (DeployFlags, error) {
	var f DeployFlags
	targets := []struct {
		name   string
		target *bool
	}{
		{"defaultDeployPending", &f.Pending},
		{"defaultDeployRunning", &f.Running},
		{"defaultDeploySuccess", &f.Success},
		{"defaultDeployError", &f.Error},
		{"defaultDeployGroups", &f.Groups},
	}
	for _, t := range targets {
		v, err := s.prefs.GetBool(t.name)
		if err != nil {
			return f, err
		}
		*t.target = v
	}
	return f, nil
}

func validate(p *model.Package, content []byte) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return ErrInvalidName
	}
	if !platforms[p.Platform] {
		return fmt.Errorf("%q: %w", p.Platform, ErrInvalidPlatform)
	}
	if _, ok := actions[p.Action]; !ok {
		return fmt.Errorf("%q: %w", p.Action, ErrInvalidAction)
	}
	if p.Priority < 0 || p.Priority > 10 {
		return fmt.Errorf("%d: %w", p.Priority, ErrInvalidPriority)
	}
	if len(content) == 0 && p.Action != "execute" {
		return ErrMissingContent
	}
	if p.Fragments < 0 {
		p.Fragments = 0
	}
	return nil
}

// Build writes the package files and stores the package. p.Fragments is
// the maximum number of fragments, 0 meaning a single fragment. On return
// p carries the assigned id, the effective fragment count, size and hash.
// Nothing is left on disk if Build fails.
func (s *Service) Build(p *model.Package, content []byte) error {
	if err := validate(p, content); err != nil {
		return err
	}
	if _, err := database.GetPackageByName(s.db, p.Name); err == nil {
		return fmt.Errorf("package %q: %w", p.Name, database.ErrDuplicateName)
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}

	dir, err := s.writeFiles(p, content)
	if err != nil {
		return err
	}
	if err := database.InsertPackage(s.db, p); err != nil {
		s.removeDir(dir)
		return err
	}
	s.logger.Info("Built package", zap.Int64("package", p.ID), zap.String("name", p.Name), zap.Int("fragments", p.Fragments))
	return nil
}

// nextID returns the first unused id at or after the current unix time.
func (s *Service) nextID() (int64, error) {
	id := s.timestamp().Unix()
	for {
		exists, err := database.PackageExists(s.db, id, "")
		if err != nil {
			return 0, err
		}
		if !exists {
			return id, nil
		}
		id++
	}
}

func (s *Service) writeFiles(p *model.Package, content []byte) (dir string, err error) {
	p.ID, err = s.nextID()
	if err != nil {
		return "", err
	}
	p.CreatedAt = s.timestamp()
	base, err := s.baseDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("failed to create package directory %s: %w", base, err)
	}
	dir = filepath.Join(base, strconv.FormatInt(p.ID, 10))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create package directory %s: %w", dir, err)
	}
	defer func() {
		if err != nil {
			s.removeDir(dir)
		}
	}()

	p.Size = int64(len(content))
	if len(content) == 0 {
		p.Fragments = 0
		p.Hash = ""
	} else {
		sum := sha1.Sum(content)
		p.Hash = hex.EncodeToString(sum[:])
		if err = writeFragments(dir, p, content); err != nil {
			return dir, err
		}
	}

	info, err := infoXML(p)
	if err != nil {
		return dir, err
	}
	if err = os.WriteFile(filepath.Join(dir, "info"), info, 0o644); err != nil {
		return dir, fmt.Errorf("failed to write info file: %w", err)
	}
	return dir, nil
}

// writeFragments splits content into at most p.Fragments pieces of equal
// size and updates p.Fragments to the number actually written.
func writeFragments(dir string, p *model.Package, content []byte) error {
	count := p.Fragments
	if count <= 0 {
		count = 1
	}
	if count > len(content) {
		count = len(content)
	}
	size := (len(content) + count - 1) / count
	n := 0
	for offset := 0; offset < len(content); offset += size {
		end := offset + size
		if end > len(content) {
			end = len(content)
		}
		n++
		name := filepath.Join(dir, fmt.Sprintf("%d-%d", p.ID, n))
		if err := os.WriteFile(name, content[offset:end], 0o644); err != nil {
			return fmt.Errorf("failed to write fragment %d: %w", n, err)
		}
	}
	p.Fragments = n
	return nil
}

func (s *Service) removeDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn("Failed to remove package directory", zap.String("dir", dir), zap.Error(err))
	}
}

// download is the info file read by the agent.
type download struct {
	XMLName            xml.Name `xml:"DOWNLOAD"`
	ID                 int64    `xml:"ID,attr"`
	Priority           int      `xml:"PRI,attr"`
	Action             string   `xml:"ACT,attr"`
	Digest             string   `xml:"DIGEST,attr"`
	Protocol           string   `xml:"PROTO,attr"`
	Fragments          int      `xml:"FRAGS,attr"`
	DigestAlgorithm    string   `xml:"DIGEST_ALGO,attr"`
	DigestEncoding     string   `xml:"DIGEST_ENCODE,attr"`
	Path               string   `xml:"PATH,attr"`
	Name               string   `xml:"NAME,attr"`
	Command            string   `xml:"COMMAND,attr"`
	NotifyUser         int      `xml:"NOTIFY_USER,attr"`
	NotifyText         string   `xml:"NOTIFY_TEXT,attr"`
	NotifyCountdown    int      `xml:"NOTIFY_COUNTDOWN,attr"`
	NotifyCanAbort     int      `xml:"NOTIFY_CAN_ABORT,attr"`
	NotifyCanDelay     int      `xml:"NOTIFY_CAN_DELAY,attr"`
	NeedDoneAction     int      `xml:"NEED_DONE_ACTION,attr"`
	NeedDoneActionText string   `xml:"NEED_DONE_ACTION_TEXT,attr"`
	GuardFail          string   `xml:"GARDEFOU,attr"`
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func infoXML(p *model.Package) ([]byte, error) {
	d := download{
		ID:                 p.ID,
		Priority:           p.Priority,
		Action:             actions[p.Action],
		Digest:             p.Hash,
		Protocol:           "HTTP",
		Fragments:          p.Fragments,
		DigestAlgorithm:    "SHA1",
		DigestEncoding:     "Hexa",
		NotifyUser:         boolInt(p.Warn),
		NotifyText:         p.WarnMessage,
		NotifyCountdown:    p.WarnCountdown,
		NotifyCanAbort:     boolInt(p.WarnAllowAbort),
		NotifyCanDelay:     boolInt(p.WarnAllowDelay),
		NeedDoneAction:     boolInt(p.PostInstMessage != ""),
		NeedDoneActionText: p.PostInstMessage,
		GuardFail:          "rien",
	}
	switch p.Action {
	case "store":
		d.Path = p.ActionParam
	case "launch":
		d.Name = p.ActionParam
		d.Command = p.ActionParam
	case "execute":
		d.Command = p.ActionParam
	}
	out, err := xml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode info file: %w", err)
	}
	return out, nil
}

// Delete removes a package with its assignments and files.
func (s *Service) Delete(name string) error {
	p, err := database.GetPackageByName(s.db, name)
	if err != nil {
		return err
	}
	err = database.WithTx(s.db, func(tx *sqlx.Tx) error {
		return database.DeletePackageInTx(tx, p.ID)
	})
	if err != nil {
		return err
	}
	dir, err := s.Dir(p.ID)
	if err != nil {
		return err
	}
	s.removeDir(dir)
	s.logger.Info("Deleted package", zap.Int64("package", p.ID), zap.String("name", p.Name))
	return nil
}

func (s *Service) List() ([]model.Package, error) {
	return database.GetAllPackages(s.db)
}

func (s *Service) Get(name string) (*model.Package, error) {
	return database.GetPackageByName(s.db, name)
}

// Assign assigns a package to a client. An existing assignment is kept.
func (s *Service) Assign(name string, clientID int64) error {
	p, err := database.GetPackageByName(s.db, name)
	if err != nil {
		return err
	}
	if _, err := database.GetClient(s.db, clientID); err != nil {
		return err
	}
	return database.AssignPackage(s.db, clientID, p.ID, s.timestamp())
}

// AssignToGroup assigns a package to a group.
func (s *Service) AssignToGroup(name string, groupID int64) error {
	p, err := database.GetPackageByName(s.db, name)
	if err != nil {
		return err
	}
	if _, err := database.GetGroup(s.db, groupID); err != nil {
		return err
	}
	return database.AssignPackageToGroup(s.db, groupID, p.ID, s.timestamp())
}

func (s *Service) Unassign(name string, clientID int64) error {
	p, err := database.GetPackageByName(s.db, name)
	if err != nil {
		return err
	}
	return database.UnassignPackage(s.db, clientID, p.ID)
}

func (s *Service) UnassignFromGroup(name string, groupID int64) error {
	p, err := database.GetPackageByName(s.db, name)
	if err != nil {
		return err
	}
	return database.UnassignPackageFromGroup(s.db, groupID, p.ID)
}

// Assignments returns the client assignments of a package.
func (s *Service) Assignments(name string) ([]model.PackageAssignment, error) {
	p, err := database.GetPackageByName(s.db, name)
	if err != nil {
		return nil, err
	}
	return database.GetPackageAssignments(s.db, p.ID)
}

// Update replaces the package oldName by a new build of p. Assignments
// selected by flags are moved to the new package as pending, then the old
// package is deleted. p may keep the old name.
func (s *Service) Update(oldName string, p *model.Package, content []byte, flags DeployFlags) error {
	old, err := database.GetPackageByName(s.db, oldName)
	if err != nil {
		return err
	}
	if err := validate(p, content); err != nil {
		return err
	}
	if p.Name != old.Name {
		if _, err := database.GetPackageByName(s.db, p.Name); err == nil {
			return fmt.Errorf("package %q: %w", p.Name, database.ErrDuplicateName)
		} else if !errors.Is(err, database.ErrNotFound) {
			return err
		}
	}

	dir, err := s.writeFiles(p, content)
	if err != nil {
		return err
	}
	var moved int64
	err = database.WithTx(s.db, func(tx *sqlx.Tx) error {
		if p.Name == old.Name {
			// free the name; the old row is deleted below
			if err := database.RenamePackageInTx(tx, old.ID, fmt.Sprintf("%s (%d)", old.Name, old.ID)); err != nil {
				return err
			}
		}
		if err := database.InsertPackage(tx, p); err != nil {
			return err
		}
		n, err := database.MoveAssignmentsInTx(tx, old.ID, p.ID, flags.statuses(), s.timestamp())
		if err != nil {
			return err
		}
		moved = n
		if flags.Groups {
			if _, err := database.MoveGroupAssignmentsInTx(tx, old.ID, p.ID, s.timestamp()); err != nil {
				return err
			}
		}
		return database.DeletePackageInTx(tx, old.ID)
	})
	if err != nil {
		s.removeDir(dir)
		return err
	}

	oldDir, err := s.Dir(old.ID)
	if err != nil {
		return err
	}
	s.removeDir(oldDir)
	s.logger.Info("Updated package",
		zap.Int64("old", old.ID),
		zap.Int64("package", p.ID),
		zap.String("name", p.Name),
		zap.Int64("moved", moved),
	)
	return nil
}

// Package group manages client groups. Membership is either static (set by
// an operator) or computed from the group's criteria expression and cached.
package group

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"braintacle/database"
	"braintacle/model"
	"braintacle/preferences"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var (
	ErrInvalidName       = errors.New("invalid group name")
	ErrInvalidCriteria   = errors.New("invalid criteria")
	ErrInvalidMembership = errors.New("invalid membership type")
)

// Env is the evaluation environment of a criteria expression. One Env is
// built per client.
type Env struct {
	Name            string
	UserID          string `expr:"UserId"`
	OsName          string
	OsVersion       string
	Serial          string
	AssetTag        string
	MacAddresses    []string
	LastContactDate time.Time
	InventoryDate   time.Time
	Now             time.Time
}

type Service struct {
	db     *sqlx.DB
	prefs  *preferences.Store
	logger *zap.Logger
	now    func() time.Time
	fuzz   func(limit int64) int64

	mu       sync.Mutex
	programs map[string]*vm.Program
}

func NewService(db *sqlx.DB, prefs *preferences.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     db,
		prefs:  prefs,
		logger: logger,
		now:    time.Now,
		fuzz: func(limit int64) int64 {
			if limit <= 0 {
				return 0
			}
			return rand.Int64N(limit + 1)
		},
		programs: make(map[string]*vm.Program),
	}
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// compile returns the cached program for criteria. Empty criteria yield a
// nil program, which matches no client.
func (s *Service) compile(criteria string) (*vm.Program, error) {
	criteria = strings.TrimSpace(criteria)
	if criteria == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.programs[criteria]; ok {
		return p, nil
	}
	p, err := expr.Compile(criteria, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}
	s.programs[criteria] = p
	return p, nil
}

// Create stores a new group. The criteria are compiled first so that an
// invalid expression never reaches the database.
func (s *Service) Create(name, description, criteria string) (*model.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if _, err := s.compile(criteria); err != nil {
		return nil, err
	}
	g := &model.Group{
		Name:         name,
		Description:  description,
		Criteria:     strings.TrimSpace(criteria),
		CreationDate: s.timestamp(),
	}
	if _, err := database.CreateGroup(s.db, g); err != nil {
		return nil, err
	}
	s.logger.Info("Created group", zap.Int64("group", g.ID), zap.String("name", g.Name))
	return g, nil
}

func (s *Service) Delete(id int64) error {
	return database.WithTx(s.db, func(tx *sqlx.Tx) error {
		return database.DeleteGroupInTx(tx, id)
	})
}

func (s *Service) List() ([]model.Group, error) {
	return database.GetAllGroups(s.db)
}

func (s *Service) Get(id int64) (*model.Group, error) {
	return database.GetGroup(s.db, id)
}

// SetMemberships makes the clients static members of a group. Only
// model.MembershipManual and model.MembershipNever are accepted.
func (s *Service) SetMemberships(groupID int64, clientIDs []int64, membershipType int) error {
	if membershipType != model.MembershipManual && membershipType != model.MembershipNever {
		return fmt.Errorf("%d: %w", membershipType, ErrInvalidMembership)
	}
	return database.WithTx(s.db, func(tx *sqlx.Tx) error {
		if _, err := database.GetGroup(tx, groupID); err != nil {
			return err
		}
		for _, id := range clientIDs {
			if _, err := database.GetClient(tx, id); err != nil {
				return err
			}
			if err := database.SetMembership(tx, id, groupID, membershipType); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveMembership drops any membership of the client. An automatic
// membership comes back with the next cache update if the criteria still
// match.
func (s *Service) RemoveMembership(groupID, clientID int64) error {
	return database.DeleteMembership(s.db, clientID, groupID)
}

// UpdateCache recomputes the automatic memberships of a group unless the
// cache is still valid. force ignores the expiration date.
func (s *Service) UpdateCache(groupID int64, force bool) error {
	now := s.timestamp()
	interval, err := s.prefs.GetInt("groupCacheExpirationInterval")
	if err != nil {
		return err
	}
	fuzz, err := s.prefs.GetInt("groupCacheExpirationFuzz")
	if err != nil {
		return err
	}

	var updated bool
	err = database.WithTx(s.db, func(tx *sqlx.Tx) error {
		g, err := database.GetGroup(tx, groupID)
		if err != nil {
			return err
		}
		if !force && g.CacheExpirationDate != nil && now.Before(*g.CacheExpirationDate) {
			return nil
		}
		program, err := s.compile(g.Criteria)
		if err != nil {
			return fmt.Errorf("group %d: %w", groupID, err)
		}
		if err := database.DeleteAutomaticMembershipsInTx(tx, groupID); err != nil {
			return err
		}
		if program != nil {
			matches, err := s.match(tx, program, now)
			if err != nil {
				return fmt.Errorf("group %d: %w", groupID, err)
			}
			for _, id := range matches {
				if err := database.InsertAutomaticMembershipInTx(tx, id, groupID); err != nil {
					return err
				}
			}
		}
		expires := now.Add(time.Duration(interval+s.fuzz(fuzz)) * time.Second)
		updated = true
		return database.SetGroupCacheInTx(tx, groupID, now, expires)
	})
	if err != nil {
		return err
	}
	if updated {
		s.logger.Debug("Updated group cache", zap.Int64("group", groupID))
	}
	return nil
}

// match returns the ids of all clients for which program yields true.
func (s *Service) match(tx *sqlx.Tx, program *vm.Program, now time.Time) ([]int64, error) {
	clients, err := database.ListClients(tx, database.ClientFilter{}, "", false)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, c := range clients {
		env := Env{
			Name:            c.Name,
			UserID:          c.UserID,
			OsName:          c.OsName,
			OsVersion:       c.OsVersion,
			LastContactDate: c.LastContactDate,
			InventoryDate:   c.InventoryDate,
			Now:             now,
			MacAddresses:    []string{},
		}
		bios, err := database.GetBios(tx, c.ID)
		if err != nil {
			return nil, err
		}
		if bios != nil {
			env.Serial = bios.Serial
			env.AssetTag = bios.AssetTag
		}
		ifaces, err := database.GetNetworkInterfaces(tx, c.ID)
		if err != nil {
			return nil, err
		}
		for _, iface := range ifaces {
			env.MacAddresses = append(env.MacAddresses, iface.MacAddress)
		}

		out, err := expr.Run(program, env)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate criteria for client %d: %w", c.ID, err)
		}
		if ok, _ := out.(bool); ok {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

// Members returns the clients belonging to a group, refreshing the cache
// first. Excluded clients are not members.
func (s *Service) Members(groupID int64) ([]model.Client, error) {
	if err := s.UpdateCache(groupID, false); err != nil {
		return nil, err
	}
	memberships, err := database.GetGroupMemberships(s.db, groupID)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, m := range memberships {
		if m.MembershipType != model.MembershipNever {
			ids = append(ids, m.ClientID)
		}
	}
	clients, err := database.GetClients(s.db, ids)
	if err != nil {
		return nil, err
	}
	if clients == nil {
		clients = []model.Client{}
	}
	return clients, nil
}

// Package duplicates finds clients that were inventoried more than once and
// merges them into a single record.
package duplicates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"braintacle/database"
	"braintacle/lock"
	"braintacle/model"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidCriterion = errors.New("invalid criterion")
	ErrInvalidOrder     = errors.New("invalid order")
	ErrInvalidValue     = errors.New("invalid value")
)

// MergeOptions selects which data of the older clients survives a merge.
type MergeOptions struct {
	CustomFields bool `json:"mergeCustomFields"`
	Config       bool `json:"mergeConfig"`
	Groups       bool `json:"mergeGroups"`
	Packages     bool `json:"mergePackages"`
	ProductKey   bool `json:"mergeProductKey"`
}

// MergeResult names the surviving client and the deleted ones.
type MergeResult struct {
	Survivor int64   `json:"survivor"`
	Deleted  []int64 `json:"deleted"`
}

type Service struct {
	db       *sqlx.DB
	validity lock.Validity
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(db *sqlx.DB, validity lock.Validity, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, validity: validity, logger: logger, now: time.Now}
}

func validCriterion(criterion string) bool {
	for _, c := range model.Criteria {
		if c == criterion {
			return true
		}
	}
	return false
}

// Count returns the number of duplicate clients per criterion.
func (s *Service) Count(ctx context.Context) (map[string]int, error) {
	var mu sync.Mutex
	counts := make(map[string]int, len(model.Criteria))

	g, ctx := errgroup.WithContext(ctx)
	for _, criterion := range model.Criteria {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := database.CountDuplicates(s.db, criterion)
			if err != nil {
				return err
			}
			mu.Lock()
			counts[criterion] = n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

// Find lists the duplicates by criterion. order is one of the column names
// accepted by database.FindDuplicates or empty; direction is "asc" or "desc".
func (s *Service) Find(criterion, order, direction string) ([]model.DuplicateClient, error) {
	if !validCriterion(criterion) {
		return nil, fmt.Errorf("%q: %w", criterion, ErrInvalidCriterion)
	}
	if order != "" && !database.IsDuplicateOrder(order) {
		return nil, fmt.Errorf("%q: %w", order, ErrInvalidOrder)
	}
	var descending bool
	switch strings.ToLower(direction) {
	case "", "asc":
	case "desc":
		descending = true
	default:
		return nil, fmt.Errorf("direction %q: %w", direction, ErrInvalidOrder)
	}
	return database.FindDuplicates(s.db, criterion, order, descending)
}

// Allow excludes value from future searches by criterion. Names cannot be
// allowed.
func (s *Service) Allow(criterion, value string) error {
	if !database.CanAllowDuplicates(criterion) {
		return fmt.Errorf("%q: %w", criterion, ErrInvalidCriterion)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("empty %s: %w", criterion, ErrInvalidValue)
	}
	if err := database.AllowDuplicateValue(s.db, criterion, value); err != nil {
		return err
	}
	s.logger.Info("Allowed duplicate value", zap.String("criterion", criterion), zap.String("value", value))
	return nil
}

// Allowed lists the values excluded from searches by criterion.
func (s *Service) Allowed(criterion string) ([]string, error) {
	if !database.CanAllowDuplicates(criterion) {
		return nil, fmt.Errorf("%q: %w", criterion, ErrInvalidCriterion)
	}
	return database.GetAllowedValues(s.db, criterion)
}

// Merge folds the given clients into the one with the most recent contact
// and deletes the others. Repeated ids are ignored; fewer than two distinct
// ids is a no-op with a nil result.
//
// All clients are locked before anything is modified. If a client cannot be
// locked or does not exist, nothing is changed. The modifications run in a
// single transaction; every lock is released afterwards, whether the
// transaction was committed or rolled back.
func (s *Service) Merge(ids []int64, opts MergeOptions) (*MergeResult, error) {
	ids = unique(ids)
	if len(ids) < 2 {
		return nil, nil
	}

	locker := lock.NewLocker(s.db, s.validity, lock.WithLogger(s.logger), lock.WithClock(s.now))
	var locked []int64
	defer func() {
		for _, id := range locked {
			if err := locker.Unlock(id); err != nil {
				s.logger.Error("Failed to unlock client", zap.Int64("client", id), zap.Error(err))
			}
		}
	}()
	for _, id := range ids {
		if err := locker.MustLock(id); err != nil {
			return nil, err
		}
		locked = append(locked, id)
	}

	var result *MergeResult
	err := database.WithTx(s.db, func(tx *sqlx.Tx) error {
		clients, err := loadOrdered(tx, ids)
		if err != nil {
			return err
		}
		newest := clients[len(clients)-1]
		older := clients[:len(clients)-1]

		if opts.CustomFields {
			if err := mergeCustomFields(tx, newest, older); err != nil {
				return err
			}
		}
		if opts.Config {
			if err := mergeConfig(tx, newest, older); err != nil {
				return err
			}
		}
		if opts.Groups {
			if err := mergeGroups(tx, newest, older); err != nil {
				return err
			}
		}
		if opts.Packages {
			if err := mergePackages(tx, newest, older); err != nil {
				return err
			}
		}
		if opts.ProductKey {
			if err := mergeProductKey(tx, newest, older); err != nil {
				return err
			}
		}

		result = &MergeResult{Survivor: newest.ID}
		for _, c := range older {
			if err := database.DeleteClientInTx(tx, c.ID); err != nil {
				return err
			}
			result.Deleted = append(result.Deleted, c.ID)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("Merge failed", zap.Int64s("clients", ids), zap.Error(err))
		return nil, err
	}
	s.logger.Info("Merged clients",
		zap.Int64("survivor", result.Survivor), zap.Int64s("deleted", result.Deleted))
	return result, nil
}

func unique(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// loadOrdered returns the clients sorted by last contact, oldest first.
// Clients contacted at the same time are ordered by id.
func loadOrdered(tx *sqlx.Tx, ids []int64) ([]model.Client, error) {
	clients, err := database.GetClients(tx, ids)
	if err != nil {
		return nil, err
	}
	if len(clients) != len(ids) {
		found := make(map[int64]bool, len(clients))
		for _, c := range clients {
			found[c.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, fmt.Errorf("client %d: %w", id, database.ErrNotFound)
			}
		}
	}
	sort.Slice(clients, func(i, j int) bool {
		a, b := clients[i], clients[j]
		if !a.LastContactDate.Equal(b.LastContactDate) {
			return a.LastContactDate.Before(b.LastContactDate)
		}
		return a.ID < b.ID
	})
	return clients, nil
}

// mergeCustomFields overwrites the survivor's fields with the oldest
// client's, which are the most likely to have been maintained manually.
func mergeCustomFields(tx *sqlx.Tx, newest model.Client, older []model.Client) error {
	fields, err := database.GetCustomFields(tx, older[0].ID)
	if err != nil {
		return err
	}
	return database.ReplaceCustomFieldsInTx(tx, newest.ID, fields)
}

// mergeConfig fills options the survivor does not override from the most
// recent older client that does.
func mergeConfig(tx *sqlx.Tx, newest model.Client, older []model.Client) error {
	current, err := database.GetClientConfig(tx, newest.ID)
	if err != nil {
		return err
	}
	defined := make(map[string]bool, len(current))
	for _, v := range current {
		defined[v.Option] = true
	}
	for i := len(older) - 1; i >= 0; i-- {
		values, err := database.GetClientConfig(tx, older[i].ID)
		if err != nil {
			return err
		}
		for _, v := range values {
			if defined[v.Option] {
				continue
			}
			v.ClientID = newest.ID
			if err := database.SetClientConfig(tx, v); err != nil {
				return err
			}
			defined[v.Option] = true
		}
	}
	return nil
}

// mergeGroups copies manual and excluded memberships. The survivor's own
// static memberships win, then those of more recent older clients.
func mergeGroups(tx *sqlx.Tx, newest model.Client, older []model.Client) error {
	current, err := database.GetClientMemberships(tx, newest.ID)
	if err != nil {
		return err
	}
	decided := make(map[int64]bool, len(current))
	for _, m := range current {
		if m.IsStatic() {
			decided[m.GroupID] = true
		}
	}
	for i := len(older) - 1; i >= 0; i-- {
		memberships, err := database.GetClientMemberships(tx, older[i].ID)
		if err != nil {
			return err
		}
		for _, m := range memberships {
			if !m.IsStatic() || decided[m.GroupID] {
				continue
			}
			if err := database.SetMembership(tx, newest.ID, m.GroupID, m.MembershipType); err != nil {
				return err
			}
			decided[m.GroupID] = true
		}
	}
	return nil
}

// mergePackages moves assignments the survivor does not have yet. More
// recent older clients go first, so their status wins.
func mergePackages(tx *sqlx.Tx, newest model.Client, older []model.Client) error {
	for i := len(older) - 1; i >= 0; i-- {
		if _, err := database.MovePackageAssignmentsInTx(tx, older[i].ID, newest.ID); err != nil {
			return err
		}
	}
	return nil
}

// mergeProductKey keeps a manually entered Windows product key.
func mergeProductKey(tx *sqlx.Tx, newest model.Client, older []model.Client) error {
	windows, err := database.GetWindowsInstallation(tx, newest.ID)
	if err != nil {
		return err
	}
	if windows == nil || windows.ManualProductKey != "" {
		return nil
	}
	for i := len(older) - 1; i >= 0; i-- {
		w, err := database.GetWindowsInstallation(tx, older[i].ID)
		if err != nil {
			return err
		}
		if w != nil && w.ManualProductKey != "" {
			return database.SetManualProductKey(tx, newest.ID, w.ManualProductKey)
		}
	}
	return nil
}

// Package operator manages console accounts and their sessions.
package operator

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"braintacle/database"
	"braintacle/model"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrInvalidLogin       = errors.New("invalid login name")
	ErrInvalidPassword    = errors.New("password must not be empty")
)

// dummyHash is compared against when the login does not exist so that
// unknown logins take as long as wrong passwords.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("braintacle"), bcrypt.DefaultCost)
	return h
})

type Service struct {
	db     *sqlx.DB
	logger *zap.Logger
	cost   int
}

// Option configures a Service.
type Option func(*Service)

// WithCost sets the bcrypt cost of new password hashes.
func WithCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(db *sqlx.DB, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{db: db, logger: logger, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) hash(password string) (string, error) {
	if password == "" {
		return "", ErrInvalidPassword
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// Create adds an operator. attrs supplies the descriptive fields; its ID
// and PasswordHash are ignored.
func (s *Service) Create(login, password string, attrs model.Operator) (*model.Operator, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, ErrInvalidLogin
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	o := attrs
	o.ID = login
	o.PasswordHash = hash
	if err := database.CreateOperator(s.db, &o); err != nil {
		return nil, err
	}
	s.logger.Info("Created operator", zap.String("operator", login))
	return &o, nil
}

// Update rewrites the descriptive fields of an operator.
func (s *Service) Update(login string, attrs model.Operator) error {
	attrs.ID = login
	return database.UpdateOperator(s.db, &attrs)
}

func (s *Service) SetPassword(login, password string) error {
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return database.SetOperatorPasswordHash(s.db, login, hash)
}

func (s *Service) Delete(login string) error {
	if err := database.DeleteOperator(s.db, login); err != nil {
		return err
	}
	s.logger.Info("Deleted operator", zap.String("operator", login))
	return nil
}

func (s *Service) List() ([]model.Operator, error) {
	return database.GetAllOperators(s.db)
}

func (s *Service) Get(login string) (*model.Operator, error) {
	return database.GetOperator(s.db, login)
}

// Authenticate checks a login and password pair.
func (s *Service) Authenticate(login, password string) (*model.Operator, error) {
	o, err := database.GetOperator(s.db, login)
	if errors.Is(err, database.ErrNotFound) {
		bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(password)); err != nil {
		s.logger.Debug("Rejected password", zap.String("operator", login))
		return nil, ErrInvalidCredentials
	}
	return o, nil
}

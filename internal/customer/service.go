package customer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alexedwards/argon2id"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-grocer/internal/common"
	"github.com/noah-isme/backend-grocer/internal/pricing"
)

type accountStore interface {
	Get(ctx context.Context, id string) (Customer, error)
	GetByEmail(ctx context.Context, email string) (Customer, error)
	Create(ctx context.Context, c Customer) (Customer, error)
	UpdateProfile(ctx context.Context, id string, p Profile) (Customer, error)
}

// Service implements account registration, login and profile management.
type Service struct {
	store    accountStore
	sessions *Sessions
	validate *validator.Validate
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store     accountStore
	Sessions  *Sessions
	Validator *validator.Validate
}

// LoginResult is a successful authentication.
type LoginResult struct {
	Customer Customer
	Token    string
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("customer: store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("customer: sessions are required")
	}
	v := cfg.Validator
	if v == nil {
		v = validator.New()
	}
	return &Service{store: cfg.Store, sessions: cfg.Sessions, validate: v}, nil
}

// HashPassword hashes a password with the default argon2id parameters.
func HashPassword(password string) (string, error) {
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// Register creates a retail account and signs the new customer in.
func (s *Service) Register(ctx context.Context, name, email, password string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return LoginResult{}, common.BadRequest("VALIDATION_ERROR", "Email and password are required.", nil)
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return LoginResult{}, common.BadRequest("VALIDATION_ERROR", "Email address is invalid.", err)
	}
	if len(password) < 8 {
		return LoginResult{}, common.BadRequest("VALIDATION_ERROR", "Password must be at least 8 characters.", nil)
	}
	if _, err := s.store.GetByEmail(ctx, email); err == nil {
		return LoginResult{}, common.BadRequest("EMAIL_ALREADY_USED", "This email is already registered.", nil)
	} else if !errors.Is(err, ErrNotFound) {
		return LoginResult{}, fmt.Errorf("lookup email: %w", err)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return LoginResult{}, err
	}
	created, err := s.store.Create(ctx, Customer{
		Number:       "C" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10]),
		Name:         strings.TrimSpace(name),
		Email:        email,
		Type:         string(pricing.Retail),
		PasswordHash: hash,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return LoginResult{}, common.BadRequest("EMAIL_ALREADY_USED", "This email is already registered.", err)
		}
		return LoginResult{}, fmt.Errorf("create customer: %w", err)
	}
	return s.signIn(created)
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return LoginResult{}, common.BadRequest("VALIDATION_ERROR", "Email and password are required.", nil)
	}
	found, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, invalidCredentials()
		}
		return LoginResult{}, fmt.Errorf("lookup email: %w", err)
	}
	if found.PasswordHash == "" || !found.IsActive {
		return LoginResult{}, invalidCredentials()
	}
	ok, err := argon2id.ComparePasswordAndHash(password, found.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, invalidCredentials()
	}
	return s.signIn(found)
}

// Me returns the customer behind a session.
func (s *Service) Me(ctx context.Context, customerID string) (Customer, error) {
	found, err := s.store.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Customer{}, common.NotFound("Customer not found", err)
		}
		return Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return found, nil
}

// UpdateProfile changes the name and/or email of an account.
func (s *Service) UpdateProfile(ctx context.Context, customerID string, p Profile) (Customer, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Name == "" && p.Email == "" {
		return Customer{}, common.BadRequest("VALIDATION_ERROR", "Nothing to update.", nil)
	}
	if p.Email != "" {
		if err := s.validate.Var(p.Email, "email"); err != nil {
			return Customer{}, common.BadRequest("VALIDATION_ERROR", "Email address is invalid.", err)
		}
	}
	updated, err := s.store.UpdateProfile(ctx, customerID, p)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Customer{}, common.NotFound("Customer not found", err)
		}
		if errors.Is(err, ErrEmailTaken) {
			return Customer{}, common.BadRequest("EMAIL_ALREADY_USED", "This email is already registered.", err)
		}
		return Customer{}, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}

func (s *Service) signIn(c Customer) (LoginResult, error) {
	token, _, err := s.sessions.Issue(c)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue session: %w", err)
	}
	return LoginResult{Customer: c, Token: token}, nil
}

func invalidCredentials() *common.AppError {
	return common.NewAppError("INVALID_CREDENTIALS", "Invalid email or password.", http.StatusUnauthorized, nil)
}

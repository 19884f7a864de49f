package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/zapdesk/zapdesk/internal/model"
	"github.com/zapdesk/zapdesk/internal/store"
	"github.com/zapdesk/zapdesk/pkg/logger"
)

// Claims are the JWT claims issued at login.
type Claims struct {
	jwt.RegisteredClaims
	AccountID   uint               `json:"account_id"`
	AttendantID uint               `json:"attendant_id"`
	Level       model.AccountLevel `json:"level"`
}

// AccountService manages logins and attendants. Credentials are stored as
// bcrypt hashes; comparison goes through bcrypt's constant-time check.
type AccountService struct {
	accounts      *store.AccountStore
	attendants    *store.AttendantStore
	jwtSecret     []byte
	jwtExpiration time.Duration
	logger        *logger.Logger
}

// NewAccountService creates an account service.
func NewAccountService(accounts *store.AccountStore, attendants *store.AttendantStore, jwtSecret string, jwtExpiration time.Duration, log *logger.Logger) *AccountService {
	return &AccountService{
		accounts:      accounts,
		attendants:    attendants,
		jwtSecret:     []byte(jwtSecret),
		jwtExpiration: jwtExpiration,
		logger:        log,
	}
}

// Register creates a login account bound to an attendant.
func (s *AccountService) Register(ctx context.Context, req model.RegisterRequest) (*model.Account, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" || req.AttendantID == 0 {
		return nil, fmt.Errorf("%w: atendenteId, usuario and senha are required", ErrValidation)
	}
	if len(req.Password) < 6 {
		return nil, fmt.Errorf("%w: senha must be at least 6 characters", ErrValidation)
	}
	level := req.Level
	if level == "" {
		level = model.LevelOperator
	}
	if level != model.LevelAdmin && level != model.LevelOperator {
		return nil, fmt.Errorf("%w: nivel must be admin or operator", ErrValidation)
	}

	if _, err := s.attendants.Get(ctx, req.AttendantID); err != nil {
		return nil, mapStoreErr(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	acc := &model.Account{
		AttendantID:  req.AttendantID,
		Username:     username,
		PasswordHash: string(hash),
		Level:        level,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateIdentity
		}
		return nil, err
	}

	s.logger.Info("account registered",
		zap.String("username", username),
		zap.Uint("attendant_id", req.AttendantID),
	)
	return acc, nil
}

// Bootstrap seeds the first admin account so a fresh deployment can log in
// and register the rest of the team. It is a no-op once any account exists,
// making it safe to run on every start. Returns whether an account was
// created.
func (s *AccountService) Bootstrap(ctx context.Context, name, username, password string) (bool, error) {
	n, err := s.accounts.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	att, err := s.attendants.Create(ctx, name)
	if errors.Is(err, store.ErrDuplicate) {
		// The attendant can outlive a wiped accounts table; reuse it.
		active, lerr := s.attendants.ListActive(ctx)
		if lerr != nil {
			return false, lerr
		}
		for i := range active {
			if strings.EqualFold(active[i].Name, name) {
				att = &active[i]
				break
			}
		}
	} else if err != nil {
		return false, err
	}
	if att == nil {
		return false, fmt.Errorf("attendant %q exists but is inactive, cannot seed admin", name)
	}

	acc, err := s.Register(ctx, model.RegisterRequest{
		AttendantID: att.ID,
		Username:    username,
		Password:    password,
		Level:       model.LevelAdmin,
	})
	if err != nil {
		return false, err
	}

	s.logger.Info("bootstrap admin account created",
		zap.String("username", acc.Username),
		zap.Uint("attendant_id", att.ID),
	)
	return true, nil
}

// Login verifies credentials and issues a signed token.
func (s *AccountService) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: usuario and senha are required", ErrValidation)
	}

	acc, err := s.accounts.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrUnauthorized
	}

	att, err := s.attendants.Get(ctx, acc.AttendantID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiration)),
			Issuer:    "zapdesk",
		},
		AccountID:   acc.ID,
		AttendantID: acc.AttendantID,
		Level:       acc.Level,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &model.LoginResponse{
		Token:         token,
		AccountID:     acc.ID,
		AttendantID:   acc.AttendantID,
		AttendantName: att.Name,
		Level:         acc.Level,
	}, nil
}

// ListAttendants returns the active attendants.
func (s *AccountService) ListAttendants(ctx context.Context) ([]model.Attendant, error) {
	return s.attendants.ListActive(ctx)
}

// CreateAttendant registers a new attendant, rejecting case-insensitive
// duplicate names.
func (s *AccountService) CreateAttendant(ctx context.Context, name string) (*model.Attendant, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	att, err := s.attendants.Create(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateIdentity
		}
		return nil, err
	}
	return att, nil
}

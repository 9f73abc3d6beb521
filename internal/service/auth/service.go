// Package auth resolves id-tags for the charging path and issues bearer
// tokens for the operator REST surface.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

// DefaultTokenTTL applies when no token lifetime is configured.
const DefaultTokenTTL = 15 * time.Minute

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	userRepo  ports.UserRepository
	txRepo    ports.TransactionRepository
	jwtSecret []byte
	tokenTTL  time.Duration
	log       *zap.Logger
}

func NewService(userRepo ports.UserRepository, txRepo ports.TransactionRepository, jwtSecret string, tokenTTL time.Duration, log *zap.Logger) ports.AuthService {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Service{
		userRepo:  userRepo,
		txRepo:    txRepo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		log:       log,
	}
}

// Authorize resolves an id-tag to an OCPP authorization status. A tag that is
// already charging elsewhere answers ConcurrentTx so a second start is
// refused without touching the first.
func (s *Service) Authorize(ctx context.Context, idTag string, now time.Time) (domain.AuthResult, error) {
	if idTag == "" {
		return domain.AuthResult{Status: domain.AuthStatusInvalid}, nil
	}

	user, err := s.userRepo.FindByIdTag(ctx, idTag)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.log.Info("unknown id tag refused", zap.String("id_tag", idTag))
		return domain.AuthResult{Status: domain.AuthStatusInvalid}, nil
	}
	if err != nil {
		return domain.AuthResult{}, err
	}

	if !user.IsActive {
		return domain.AuthResult{Status: domain.AuthStatusBlocked, User: user}, nil
	}

	if _, err := s.txRepo.FindActiveByIdTag(ctx, idTag); err == nil {
		return domain.AuthResult{Status: domain.AuthStatusConcurrentTx, User: user}, nil
	}

	return domain.AuthResult{Status: domain.AuthStatusAccepted, User: user}, nil
}

func (s *Service) CreateUser(ctx context.Context, user *domain.User) error {
	if user.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		user.Password = string(hashed)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = domain.UserRoleUser
	}
	user.IsActive = true
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	return s.userRepo.Save(ctx, user)
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.userRepo.FindAll(ctx)
}

// Login checks the operator credentials and returns a signed access token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"exp":  time.Now().Add(s.tokenTTL).Unix(),
		"type": "access",
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		s.log.Error("token signing failed", zap.String("user_id", user.ID), zap.Error(err))
		return "", err
	}
	return signed, nil
}

// ValidateToken parses a bearer token and loads the user it names.
func (s *Service) ValidateToken(ctx context.Context, tokenStr string) (*domain.User, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	userID, ok := claims["sub"].(string)
	if !ok {
		return nil, errors.New("invalid token subject")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, errors.New("user not found")
	}
	if !user.IsActive {
		return nil, errors.New("user disabled")
	}
	return user, nil
}

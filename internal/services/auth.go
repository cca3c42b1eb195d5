package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/edushare/edushare-backend/internal/data/repos"
	"github.com/edushare/edushare-backend/internal/domain"
	"github.com/edushare/edushare-backend/internal/pkg/apierr"
	"github.com/edushare/edushare-backend/internal/pkg/logger"
	"github.com/edushare/edushare-backend/internal/requestdata"
)

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	School   string `json:"school"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Verify(ctx context.Context, tokenString string) (*requestdata.RequestData, error)
}

type authService struct {
	db         *gorm.DB
	log        *logger.Logger
	userRepo   repos.UserRepo
	schoolRepo repos.SchoolRepo
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthService(
	db *gorm.DB,
	baseLog *logger.Logger,
	userRepo repos.UserRepo,
	schoolRepo repos.SchoolRepo,
	jwtSecret string,
	accessTTL, refreshTTL time.Duration,
) AuthService {
	return &authService{
		db:         db,
		log:        baseLog.With("service", "AuthService"),
		userRepo:   userRepo,
		schoolRepo: schoolRepo,
		secret:     []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

type claims struct {
	jwt.RegisteredClaims
	UserID    uuid.UUID   `json:"uid"`
	SchoolID  uuid.UUID   `json:"sid"`
	Role      domain.Role `json:"role"`
	TokenType string      `json:"typ"`
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	schoolName := strings.TrimSpace(in.School)
	role := domain.Role(strings.TrimSpace(in.Role))
	if role == "" {
		role = domain.RoleStudent
	}

	switch {
	case name == "":
		return nil, apierr.Validation("name is required")
	case email == "" || !strings.Contains(email, "@"):
		return nil, apierr.Validation("a valid email is required")
	case len(in.Password) < 8:
		return nil, apierr.Validation("password must be at least 8 characters")
	case schoolName == "":
		return nil, apierr.Validation("school is required")
	case !domain.IsValidRole(role):
		return nil, apierr.Validation("unknown role %q", role)
	case role == domain.RoleAdmin:
		// Admins are provisioned out of band, never self-registered.
		return nil, apierr.Forbidden("cannot self-register as admin")
	}

	existing, err := s.userRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("check email: %w", err))
	}
	if existing != nil {
		return nil, apierr.Conflict("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("hash password: %w", err))
	}

	user := &domain.User{
		ID:       uuid.New(),
		Name:     name,
		Email:    email,
		Password: string(hash),
		Role:     role,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		school, err := s.schoolRepo.GetByName(ctx, tx, schoolName)
		if err != nil {
			return err
		}
		if school == nil {
			school = &domain.School{ID: uuid.New(), Name: schoolName}
			if err := s.schoolRepo.Create(ctx, tx, school); err != nil {
				return err
			}
		}
		user.SchoolID = school.ID
		return s.userRepo.Create(ctx, tx, user)
	})
	if txErr != nil {
		return nil, apierr.Internal(fmt.Errorf("create user: %w", txErr))
	}

	s.log.Info("User registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.userRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load user: %w", err))
	}
	if user == nil {
		return nil, apierr.Unauthorized("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, apierr.Unauthorized("invalid credentials")
	}

	if err := s.userRepo.TouchLastActive(ctx, nil, user.ID); err != nil {
		s.log.Warn("Failed to touch last_active_at", "user_id", user.ID, "error", err)
	}
	return s.issuePair(user)
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	c, err := s.parse(refreshToken)
	if err != nil {
		return nil, apierr.Unauthorized("invalid refresh token")
	}
	if c.TokenType != "refresh" {
		return nil, apierr.Unauthorized("not a refresh token")
	}
	user, err := s.userRepo.GetByID(ctx, nil, c.UserID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load user: %w", err))
	}
	if user == nil {
		return nil, apierr.Unauthorized("user no longer exists")
	}
	return s.issuePair(user)
}

func (s *authService) Verify(ctx context.Context, tokenString string) (*requestdata.RequestData, error) {
	c, err := s.parse(tokenString)
	if err != nil {
		return nil, apierr.Unauthorized("invalid token")
	}
	if c.TokenType != "access" {
		return nil, apierr.Unauthorized("not an access token")
	}
	return &requestdata.RequestData{
		UserID:   c.UserID,
		SchoolID: c.SchoolID,
		Role:     c.Role,
	}, nil
}

func (s *authService) issuePair(user *domain.User) (*TokenPair, error) {
	access, err := s.sign(user, "access", s.accessTTL)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("sign access token: %w", err))
	}
	refresh, err := s.sign(user, "refresh", s.refreshTTL)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("sign refresh token: %w", err))
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *authService) sign(user *domain.User, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:    user.ID,
		SchoolID:  user.SchoolID,
		Role:      user.Role,
		TokenType: tokenType,
	})
	return token.SignedString(s.secret)
}

func (s *authService) parse(tokenString string) (*claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

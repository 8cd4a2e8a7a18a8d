package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"library/internal/models"
	"library/internal/repositories"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultTokenTTL is how long an access token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// Claims is the verified identity carried by an access token.
type Claims struct {
	UserID    string
	Role      models.Role
	TokenID   string
	ExpiresAt time.Time
}

// RegisterInput is the self-service sign-up payload.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

// AuthService handles business logic for authentication and authorization.
type AuthService struct {
	userRepo  repositories.UserRepository
	blacklist repositories.TokenBlacklist
	jwtSecret []byte
	tokenTTL  time.Duration
	clock     Clock
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, blacklist repositories.TokenBlacklist, jwtSecret string, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &AuthService{
		userRepo:  userRepo,
		blacklist: blacklist,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		clock:     SystemClock,
	}
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// createUser hashes the password and stores user, mapping a taken email.
func createUser(ctx context.Context, users repositories.UserRepository, user *models.User) error {
	user.Email = normalizeEmail(user.Email)
	hashed, err := hashPassword(user.Password)
	if err != nil {
		return storeError("hashing password", err)
	}
	user.Password = hashed

	if err := users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return ErrEmailTaken.Withf("email '%s' already registered", user.Email)
		}
		return storeError("creating user", err)
	}
	return nil
}

// Register creates a patron account. Librarian accounts are only created by
// other librarians or by the bootstrap seed.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, ErrMissingField.Withf("name, email and password are required")
	}
	user := &models.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    in.Email,
		Password: in.Password,
		Phone:    strings.TrimSpace(in.Phone),
		Role:     models.RolePatron,
	}
	if err := createUser(ctx, s.userRepo, user); err != nil {
		return nil, err
	}
	log.Printf("Registered user %s (%s)", user.ID, user.Email)
	return user, nil
}

// Login authenticates by email and password and returns a signed JWT.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", storeError("loading user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := s.clock()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"role":    string(user.Role),
		"jti":     uuid.New().String(),
		"exp":     now.Add(s.tokenTTL).Unix(),
		"iat":     now.Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken verifies the signature, expiry and revocation state of a token.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		log.Printf("Token validation error: %v", err)
		return nil, ErrInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	userID, _ := mc["user_id"].(string)
	role, _ := mc["role"].(string)
	jti, _ := mc["jti"].(string)
	exp, _ := mc["exp"].(float64)
	if userID == "" || jti == "" {
		return nil, ErrInvalidToken
	}

	revoked, err := s.blacklist.IsRevoked(ctx, jti)
	if err != nil {
		return nil, storeError("checking token revocation", err)
	}
	if revoked {
		return nil, ErrInvalidToken.Withf("token has been revoked")
	}

	return &Claims{
		UserID:    userID,
		Role:      models.Role(role),
		TokenID:   jti,
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}

// Logout revokes the token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.ValidateToken(ctx, tokenString)
	if err != nil {
		return err
	}
	if err := s.blacklist.Revoke(ctx, claims.TokenID, claims.ExpiresAt.Sub(s.clock())); err != nil {
		return storeError("revoking token", err)
	}
	log.Printf("User %s logged out", claims.UserID)
	return nil
}

// EnsureLibrarian creates a librarian account with the given credentials
// unless the email is already registered.
func (s *AuthService) EnsureLibrarian(ctx context.Context, name, email, password string) error {
	_, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrRecordNotFound) {
		return storeError("loading user", err)
	}
	user := &models.User{Name: name, Email: email, Password: password, Role: models.RoleLibrarian}
	if err := createUser(ctx, s.userRepo, user); err != nil {
		return err
	}
	log.Printf("Seeded librarian account %s", user.Email)
	return nil
}

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"auction-backend/internal/biddingerrors"
	"auction-backend/internal/clock"
	"auction-backend/internal/models"
	"auction-backend/internal/repository"
	"auction-backend/utils"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}]{3,}$`)
	emailPattern    = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)
	phonePattern    = regexp.MustCompile(`^\+?1?\d{9,15}$`)
)

const minPasswordLen = 6

// Claims are the JWT claims issued at login. Subject carries the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	PhoneNumber string
	Address     string
}

// UpdateProfileInput changes only the fields that are set.
type UpdateProfileInput struct {
	Username *string
	Email    *string
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      models.User
}

// AuthService registers users, issues tokens and resolves bearers back to users
type AuthService struct {
	users          repository.UserStore
	secret         []byte
	tokenTTL       time.Duration
	adminCode      string
	bcryptCost     int
	clock          clock.Clock
	storageTimeout time.Duration
}

type Option func(*AuthService)

func WithClock(c clock.Clock) Option {
	return func(s *AuthService) { s.clock = c }
}

func WithTokenTTL(d time.Duration) Option {
	return func(s *AuthService) {
		if d > 0 {
			s.tokenTTL = d
		}
	}
}

// WithAdminCode enables admin registration with the given code.
func WithAdminCode(code string) Option {
	return func(s *AuthService) { s.adminCode = code }
}

func WithBcryptCost(cost int) Option {
	return func(s *AuthService) { s.bcryptCost = cost }
}

func WithStorageTimeout(d time.Duration) Option {
	return func(s *AuthService) {
		if d > 0 {
			s.storageTimeout = d
		}
	}
}

func NewAuthService(users repository.UserStore, secret string, opts ...Option) *AuthService {
	s := &AuthService{
		users:          users,
		secret:         []byte(secret),
		tokenTTL:       24 * time.Hour,
		bcryptCost:     bcrypt.DefaultCost,
		clock:          clock.NewSystem(),
		storageTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a regular user account
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	return s.register(ctx, in, models.RoleUser)
}

// RegisterAdmin creates an admin account when code matches the configured admin code
func (s *AuthService) RegisterAdmin(ctx context.Context, in RegisterInput, code string) (models.User, error) {
	in = normalizeRegistration(in)
	if err := validateRegistration(in); err != nil {
		return models.User{}, err
	}
	if s.adminCode == "" || subtle.ConstantTimeCompare([]byte(code), []byte(s.adminCode)) != 1 {
		utils.Warn("RegisterAdmin: rejected admin code", map[string]any{"username": in.Username})
		return models.User{}, fmt.Errorf("service: %w", biddingerrors.ErrInvalidAdminCode)
	}
	return s.register(ctx, in, models.RoleAdmin)
}

func normalizeRegistration(in RegisterInput) RegisterInput {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	return in
}

func (s *AuthService) register(ctx context.Context, in RegisterInput, role models.Role) (models.User, error) {
	in = normalizeRegistration(in)
	if err := validateRegistration(in); err != nil {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return models.User{}, fmt.Errorf("service: failed to hash password: %w", err)
	}

	user := models.User{
		UserID:       utils.GenerateID(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		PhoneNumber:  in.PhoneNumber,
		Address:      in.Address,
		Role:         role,
		CreatedAt:    s.clock.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()
	if err := s.users.CreateUser(ctx, user); err != nil {
		return models.User{}, fmt.Errorf("service: failed to register %s: %w", in.Username, biddingerrors.Storage("create user", err))
	}

	utils.Info("Register: user created", map[string]any{"user_id": user.UserID, "username": user.Username, "role": role})
	return user, nil
}

func validateRegistration(in RegisterInput) error {
	switch {
	case in.Username == "" || in.Email == "" || in.Password == "" || in.PhoneNumber == "" || in.Address == "":
		return fmt.Errorf("service: %w - all fields are required", biddingerrors.ErrInvalidUserInput)
	case !usernamePattern.MatchString(in.Username):
		return fmt.Errorf("service: %w - username must be at least 3 letters or digits", biddingerrors.ErrInvalidUserInput)
	case !emailPattern.MatchString(in.Email):
		return fmt.Errorf("service: %w - invalid email format", biddingerrors.ErrInvalidUserInput)
	case len(in.Password) < minPasswordLen:
		return fmt.Errorf("service: %w - password must be at least %d characters", biddingerrors.ErrInvalidUserInput, minPasswordLen)
	case !phonePattern.MatchString(in.PhoneNumber):
		return fmt.Errorf("service: %w - invalid phone number format", biddingerrors.ErrInvalidUserInput)
	}
	return nil
}

// Login checks credentials and issues a bearer token
func (s *AuthService) Login(ctx context.Context, username, password string) (Session, error) {
	return s.login(ctx, username, password, false)
}

// AdminLogin is Login restricted to admin accounts
func (s *AuthService) AdminLogin(ctx context.Context, username, password string) (Session, error) {
	return s.login(ctx, username, password, true)
}

func (s *AuthService) login(ctx context.Context, username, password string, adminOnly bool) (Session, error) {
	if username == "" || password == "" {
		return Session{}, fmt.Errorf("service: %w - username and password are required", biddingerrors.ErrInvalidUserInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, biddingerrors.ErrUserNotFound) {
		return Session{}, fmt.Errorf("service: %w", biddingerrors.ErrInvalidCredentials)
	}
	if err != nil {
		return Session{}, fmt.Errorf("service: failed to load user %s: %w", username, biddingerrors.Storage("get user", err))
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return Session{}, fmt.Errorf("service: %w", biddingerrors.ErrInvalidCredentials)
	}
	if adminOnly && !user.IsAdmin() {
		return Session{}, fmt.Errorf("service: %w - not an admin", biddingerrors.ErrInvalidCredentials)
	}

	token, expiresAt, err := s.issue(user)
	if err != nil {
		return Session{}, err
	}
	utils.Info("Login: token issued", map[string]any{"user_id": user.UserID, "role": user.Role})
	return Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *AuthService) issue(user models.User) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.tokenTTL)
	claims := Claims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        utils.GenerateID(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("service: failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Authenticate verifies a bearer token and returns the user it belongs to.
// Any failure, including a token for a deleted user, is ErrUnauthorized.
func (s *AuthService) Authenticate(ctx context.Context, token string) (models.User, error) {
	claims, err := s.parse(token)
	if err != nil {
		return models.User{}, fmt.Errorf("service: %w - %v", biddingerrors.ErrUnauthorized, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, biddingerrors.ErrUserNotFound) {
		return models.User{}, fmt.Errorf("service: %w - unknown subject", biddingerrors.ErrUnauthorized)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("service: failed to resolve token subject: %w", biddingerrors.Storage("get user", err))
	}
	return user, nil
}

func (s *AuthService) parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// GetProfile returns the user's own profile
func (s *AuthService) GetProfile(ctx context.Context, userID string) (models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("service: failed to get profile %s: %w", userID, biddingerrors.Storage("get user", err))
	}
	return user, nil
}

// UpdateProfile changes username and/or email, keeping both unique
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("service: failed to get profile %s: %w", userID, biddingerrors.Storage("get user", err))
	}

	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if !usernamePattern.MatchString(name) {
			return models.User{}, fmt.Errorf("service: %w - username must be at least 3 letters or digits", biddingerrors.ErrInvalidUserInput)
		}
		user.Username = name
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if !emailPattern.MatchString(email) {
			return models.User{}, fmt.Errorf("service: %w - invalid email format", biddingerrors.ErrInvalidUserInput)
		}
		user.Email = email
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return models.User{}, fmt.Errorf("service: failed to update profile %s: %w", userID, biddingerrors.Storage("update user", err))
	}
	utils.Info("UpdateProfile: profile updated", map[string]any{"user_id": userID})
	return user, nil
}

// Package auth issues and checks the bearer tokens guarding the HTTP API.
// It sits outside the selection core, which never calls it.
package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = time.Hour

var (
	ErrUserExists   = errors.New("user already exists")
	ErrInvalidInput = errors.New("email and password are required")
)

// AuthError is returned for bad credentials and bad tokens. Clients drop
// their stored token when they see one.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return "auth: " + e.Reason + ": " + e.Err.Error()
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// User is the public part of an account.
type User struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	LastName string `json:"last_name,omitempty"`
}

type account struct {
	user User
	hash string
}

type Config struct {
	SigningKey string
	TokenTTL   time.Duration
	// Users maps email to bcrypt hash.
	Users map[string]string
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Service holds accounts in memory and signs HS256 tokens.
type Service struct {
	mu         sync.RWMutex
	accounts   map[string]account
	signingKey []byte
	ttl        time.Duration
	cost       int
	now        func() time.Time
}

func NewService(cfg Config) *Service {
	s := &Service{
		accounts:   make(map[string]account, len(cfg.Users)),
		signingKey: []byte(cfg.SigningKey),
		ttl:        cfg.TokenTTL,
		cost:       cfg.BcryptCost,
		now:        time.Now,
	}
	if s.ttl <= 0 {
		s.ttl = defaultTokenTTL
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	for email, hash := range cfg.Users {
		email = normalizeEmail(email)
		s.accounts[email] = account{user: User{Email: email}, hash: hash}
	}
	return s
}

// HashPassword returns a bcrypt hash suitable for Config.Users.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(b), nil
}

func checkPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register adds an in-memory account.
func (s *Service) Register(email, password, name, lastName string) (User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return User{}, ErrInvalidInput
	}
	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[email]; ok {
		return User{}, ErrUserExists
	}
	u := User{Email: email, Name: strings.TrimSpace(name), LastName: strings.TrimSpace(lastName)}
	s.accounts[email] = account{user: u, hash: hash}
	return u, nil
}

// Login checks the password and issues a token.
func (s *Service) Login(email, password string) (string, User, error) {
	email = normalizeEmail(email)

	s.mu.RLock()
	acc, ok := s.accounts[email]
	s.mu.RUnlock()
	if !ok || !checkPasswordHash(password, acc.hash) {
		return "", User{}, &AuthError{Reason: "invalid username or password"}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": acc.user.Email,
		"exp":      s.now().Add(s.ttl).Unix(),
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", User{}, errors.Wrap(err, "sign token")
	}
	return signed, acc.user, nil
}

// Verify parses a token and returns its user.
func (s *Service) Verify(tokenString string) (User, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return User{}, &AuthError{Reason: "missing token"}
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return User{}, &AuthError{Reason: "invalid token", Err: err}
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return User{}, &AuthError{Reason: "invalid token"}
	}
	username, _ := claims["username"].(string)

	s.mu.RLock()
	acc, ok := s.accounts[normalizeEmail(username)]
	s.mu.RUnlock()
	if !ok {
		return User{}, &AuthError{Reason: "unknown user"}
	}
	return acc.user, nil
}

func (s *Service) IsAuthenticated(tokenString string) bool {
	_, err := s.Verify(tokenString)
	return err == nil
}

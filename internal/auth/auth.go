// Package auth handles operator login and token verification for the admin
// surface.
package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrInvalidToken       = errors.New("invalid token")
)

// Login throttle: a client IP gets loginBurst immediate attempts, refilled at
// loginRate.
const (
	loginBurst = 5
	loginRate  = rate.Limit(1.0 / 12.0) // one attempt per 12s sustained

	// maxLoginLimiters caps the per-IP limiter map. When full, limiters that
	// have refilled to full burst are evicted; recreating one grants no more
	// attempts than it had.
	maxLoginLimiters = 1024
)

// Operator is a staff account allowed to manage bookings.
type Operator struct {
	Email        string `yaml:"email" json:"email"`
	Name         string `yaml:"name" json:"name"`
	PasswordHash string `yaml:"password_hash" json:"-"`
}

// Service authenticates operators and mints JWTs.
type Service struct {
	operators map[string]Operator
	secret    []byte
	tokenTTL  time.Duration
	log       *zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewService builds an auth service from configured operator accounts.
func NewService(operators []Operator, secret string, tokenTTL time.Duration, log *zerolog.Logger) *Service {
	byEmail := make(map[string]Operator, len(operators))
	for _, op := range operators {
		byEmail[strings.ToLower(op.Email)] = op
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		operators: byEmail,
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		log:       log,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (s *Service) limiterFor(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[ip]
	if !ok {
		if len(s.limiters) >= maxLoginLimiters {
			s.evictIdleLimiters()
		}
		l = rate.NewLimiter(loginRate, loginBurst)
		s.limiters[ip] = l
	}
	return l
}

// evictIdleLimiters drops limiters back at full burst; an IP that is still
// being throttled keeps its limiter. Caller holds s.mu.
func (s *Service) evictIdleLimiters() {
	for ip, l := range s.limiters {
		if l.Tokens() >= loginBurst {
			delete(s.limiters, ip)
		}
	}
}

// Login verifies credentials and returns the operator plus a signed token.
// Attempts are throttled per client IP.
func (s *Service) Login(email, password, clientIP string) (*Operator, string, error) {
	if !s.limiterFor(clientIP).Allow() {
		s.log.Warn().Str("ip", clientIP).Msg("login throttled")
		return nil, "", ErrTooManyAttempts
	}

	op, ok := s.operators[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		// Burn a comparison anyway so unknown emails cost the same.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"), []byte(password))
		return nil, "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)) != nil {
		s.log.Warn().Str("email", op.Email).Str("ip", clientIP).Msg("failed login")
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.issueToken(op)
	if err != nil {
		return nil, "", err
	}

	s.log.Info().Str("email", op.Email).Msg("operator logged in")
	return &op, token, nil
}

func (s *Service) issueToken(op Operator) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   op.Email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyToken parses a bearer token and returns the operator it belongs to.
func (s *Service) VerifyToken(tokenStr string) (*Operator, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithLeeway(5*time.Second))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	op, ok := s.operators[strings.ToLower(claims.Subject)]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &op, nil
}

// HashPassword generates a bcrypt hash for an operator password. Used by the
// hashpw helper command when provisioning accounts.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind defines a public type used by authgate APIs.
//
// Kind instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Kind string

const (
	// KindDevice is an exported constant or variable used by the authentication engine.
	KindDevice Kind = "device"
	// KindSession is an exported constant or variable used by the authentication engine.
	KindSession Kind = "session"
)

var (
	// ErrExpired is an exported constant or variable used by the authentication engine.
	ErrExpired = errors.New("token: expired")
	// ErrInvalid is an exported constant or variable used by the authentication engine.
	ErrInvalid = errors.New("token: invalid")
	// ErrWrongKind is returned when a structurally valid token is presented to
	// the verifier for the other kind. The two kinds are signed with distinct
	// secrets, so cross-presentation fails signature verification first; this
	// error covers deployments where the secrets were configured equal.
	ErrWrongKind = errors.New("token: wrong kind")
)

// Config defines a public type used by authgate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	DeviceSecret  []byte
	SessionSecret []byte
	DeviceTTL     time.Duration
	SessionTTL    map[string]time.Duration
	Issuer        string
	Leeway        time.Duration
	// TimeFunc is the clock validation runs against. Nil means time.Now.
	TimeFunc func() time.Time
}

// Claims defines a public type used by authgate APIs.
//
// Claims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Claims struct {
	Kind  Kind   `json:"knd"`
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Manager defines a public type used by authgate APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.DeviceSecret) == 0 || len(cfg.SessionSecret) == 0 {
		return nil, errors.New("token: both signing secrets are required")
	}
	if string(cfg.DeviceSecret) == string(cfg.SessionSecret) {
		return nil, errors.New("token: device and session secrets must differ")
	}
	if cfg.DeviceTTL <= 0 {
		return nil, errors.New("token: device ttl must be positive")
	}
	return &Manager{config: cfg}, nil
}

// CreateDevice describes the createdevice operation and its observable behavior.
//
// CreateDevice may return an error when input validation, dependency calls, or security checks fail.
// CreateDevice does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) CreateDevice(deviceID string, now time.Time) (string, error) {
	claims := Claims{
		Kind: KindDevice,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.DeviceTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.DeviceSecret)
}

// CreateSession describes the createsession operation and its observable behavior.
//
// The session subject is the member identifier; the scope claim is written in
// its lowercase canonical form.
func (m *Manager) CreateSession(memberID, scope string, now time.Time) (string, error) {
	ttl, ok := m.config.SessionTTL[scope]
	if !ok || ttl <= 0 {
		return "", fmt.Errorf("token: no ttl configured for scope %q", scope)
	}
	claims := Claims{
		Kind:  KindSession,
		Scope: strings.ToLower(scope),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   memberID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.SessionSecret)
}

// ParseDevice describes the parsedevice operation and its observable behavior.
//
// ParseDevice may return an error when input validation, dependency calls, or security checks fail.
// ParseDevice does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) ParseDevice(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, KindDevice, m.config.DeviceSecret)
}

// ParseSession describes the parsesession operation and its observable behavior.
//
// ParseSession may return an error when input validation, dependency calls, or security checks fail.
// ParseSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) ParseSession(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, KindSession, m.config.SessionSecret)
}

// HasScope reports whether the claims carry the given scope. Comparison is
// case-insensitive so callers may pass the exported mixed-case names.
func (c *Claims) HasScope(scope string) bool {
	return c != nil && c.Scope == strings.ToLower(scope)
}

func (m *Manager) parse(tokenStr string, kind Kind, secret []byte) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	}
	if m.config.TimeFunc != nil {
		options = append(options, jwt.WithTimeFunc(m.config.TimeFunc))
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalid
	}
	if claims.Kind != kind {
		return nil, ErrWrongKind
	}
	if claims.Subject == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

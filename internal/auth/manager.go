package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Manager issues and validates bearer tokens for agents. Tokens are JWTs
// signed with a shared secret; long-lived agent keys are stored as bcrypt
// hashes and exchanged for short-lived tokens.
type Manager struct {
	jwtSecret string
	tokenTTL  time.Duration

	mu       sync.RWMutex
	agentKey map[string]string // agentID -> bcrypt hash of the agent key
}

// Claims are the JWT claims memhub issues.
type Claims struct {
	AgentID string `json:"agentId"`
	jwt.RegisteredClaims
}

// NewManager creates a new auth manager
func NewManager(jwtSecret string, tokenTTL time.Duration) *Manager {
	if jwtSecret == "" {
		// Generate a random JWT secret if not provided
		jwtSecret = generateRandomSecret(32)
		log.Printf("Generated random JWT secret for session (not persistent)")
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}

	return &Manager{
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		agentKey:  make(map[string]string),
	}
}

// RegisterAgentKey stores the bcrypt hash of an agent's long-lived key.
func (m *Manager) RegisterAgentKey(agentID, key string) error {
	if agentID == "" || key == "" {
		return fmt.Errorf("agent id and key are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash agent key: %w", err)
	}
	m.mu.Lock()
	m.agentKey[agentID] = string(hash)
	m.mu.Unlock()
	return nil
}

// Login verifies an agent key and returns a signed token.
func (m *Manager) Login(agentID, key string) (string, error) {
	m.mu.RLock()
	hash, ok := m.agentKey[agentID]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("invalid agent id or key")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		return "", fmt.Errorf("invalid agent id or key")
	}
	return m.GenerateToken(agentID)
}

// GenerateToken creates a JWT for an agent.
func (m *Manager) GenerateToken(agentID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		AgentID: agentID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "memhub",
			Subject:   agentID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken parses and verifies a token string.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(m.jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ExtractBearer pulls the token out of an Authorization header value.
func ExtractBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}

func generateRandomSecret(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("failed to generate secret: %v", err))
	}
	return hex.EncodeToString(buf)
}

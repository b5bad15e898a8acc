package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the role claim required for administrative endpoints
const RoleAdmin = "admin"

// ServiceClaims are the claims carried by tokens the surrounding
// administration app mints for service-to-service calls. The subject
// names the staff member acting, so unlocks can be attributed.
type ServiceClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ServiceTokenVerifier validates HS256 service tokens. This service
// never issues tokens; the shared secret is configured on both sides.
type ServiceTokenVerifier struct {
	secret string
}

// NewServiceTokenVerifier creates a new ServiceTokenVerifier
func NewServiceTokenVerifier(secret string) *ServiceTokenVerifier {
	return &ServiceTokenVerifier{secret: secret}
}

// Verify parses and validates a token string and returns its claims
func (v *ServiceTokenVerifier) Verify(tokenString string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(v.secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("invalid service token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid service token")
	}

	return claims, nil
}

package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/google/uuid"
)

// ShareScopeView is the only scope a share token grants.
const ShareScopeView = "view"

var ErrInvalidShareToken = errors.New("invalid share token")

// ShareService signs read-only links to a score table.
type ShareService struct {
	secret string
	issuer string
	now    func() time.Time
}

// ShareGrant is what a verified share token allows.
type ShareGrant struct {
	TableID   string
	OwnerID   string
	Scope     string
	ExpiresAt time.Time
}

func NewShareService(secret, issuer string) *ShareService {
	return &ShareService{
		secret: secret,
		issuer: issuer,
		now:    time.Now,
	}
}

// GenerateToken signs a view grant on tableID issued by its owner.
func (s *ShareService) GenerateToken(tableID, ownerID string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("share service is nil")
	}
	if tableID == "" {
		return "", fmt.Errorf("table id is required")
	}
	if ownerID == "" {
		return "", fmt.Errorf("owner id is required")
	}
	if s.secret == "" || s.issuer == "" {
		return "", fmt.Errorf("share config is incomplete")
	}

	claims := jwt.MapClaims{
		"iss":   s.issuer,
		"sub":   ownerID,
		"tid":   tableID,
		"scope": ShareScopeView,
		"exp":   s.now().Add(time.Hour * ShareTokenTTL).Unix(),
		"jti":   uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secret))
}

// VerifyToken checks signature, issuer and expiry and returns the grant.
func (s *ShareService) VerifyToken(tokenString string) (ShareGrant, error) {
	if s == nil || s.secret == "" {
		return ShareGrant{}, fmt.Errorf("share config is incomplete")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		return ShareGrant{}, fmt.Errorf("%w: %v", ErrInvalidShareToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return ShareGrant{}, ErrInvalidShareToken
	}
	if !claims.VerifyIssuer(s.issuer, true) {
		return ShareGrant{}, fmt.Errorf("%w: issuer", ErrInvalidShareToken)
	}

	grant := ShareGrant{}
	grant.TableID, _ = claims["tid"].(string)
	grant.OwnerID, _ = claims["sub"].(string)
	grant.Scope, _ = claims["scope"].(string)
	if exp, ok := claims["exp"].(float64); ok {
		grant.ExpiresAt = time.Unix(int64(exp), 0)
	}
	if grant.TableID == "" || grant.Scope != ShareScopeView {
		return ShareGrant{}, fmt.Errorf("%w: claims", ErrInvalidShareToken)
	}
	return grant, nil
}

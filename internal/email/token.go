package email

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const checkInTokenTTL = 24 * time.Hour

// CheckInClaims carries the one-click habit submission embedded in the
// reminder email's yes/no links. Tokens expire with the next reminder.
type CheckInClaims struct {
	RecipientID  string `json:"recipientId"`
	EnrollmentID string `json:"enrollmentId"`
	CampaignID   string `json:"campaignId"`
	Completed    bool   `json:"value"`
	jwt.RegisteredClaims
}

// TokenSigner mints and verifies check-in tokens.
type TokenSigner struct {
	secret []byte
	now    func() time.Time
}

func NewTokenSigner(secret string) (*TokenSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &TokenSigner{secret: []byte(secret), now: time.Now}, nil
}

func (s *TokenSigner) Sign(recipientID, enrollmentID, campaignID string, completed bool) (string, error) {
	now := s.now()
	claims := CheckInClaims{
		RecipientID:  recipientID,
		EnrollmentID: enrollmentID,
		CampaignID:   campaignID,
		Completed:    completed,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(checkInTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign check-in token: %w", err)
	}
	return signed, nil
}

func (s *TokenSigner) Parse(tokenString string) (*CheckInClaims, error) {
	claims := &CheckInClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return nil, fmt.Errorf("invalid check-in token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid check-in token")
	}
	return claims, nil
}

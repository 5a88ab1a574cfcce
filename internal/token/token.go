package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims scope a download token to one staged file in one session. The
// token expires together with the session, so a reference can never
// outlive the blob it points at.
type Claims struct {
	SessionID string `json:"sid"`
	ItemID    string `json:"itm"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret []byte
	issuer string
}

func NewSigner(secret, issuer string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("missing secret")
	}
	return &Signer{secret: []byte(secret), issuer: issuer}, nil
}

// RandomSecret returns a fresh 256-bit hex secret. Staged blobs never
// outlive the process, so an ephemeral per-process secret is enough
// when no override is configured.
func RandomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (s *Signer) Sign(sessionID, itemID string, expiresAt time.Time) (string, error) {
	if sessionID == "" || itemID == "" {
		return "", errors.New("missing token scope")
	}

	claims := Claims{
		SessionID: sessionID,
		ItemID:    itemID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secret)
}

// Verify checks signature, expiry, and that the token was minted for
// exactly this session and item.
func (s *Signer) Verify(tokenString, sessionID, itemID string) error {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return jwt.ErrSignatureInvalid
	}
	if claims.SessionID != sessionID || claims.ItemID != itemID {
		return errors.New("token scope mismatch")
	}
	return nil
}

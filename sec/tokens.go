package sec

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSigningKeyLen for HS256 download tokens
const MinSigningKeyLen = 32

var ErrInvalidDownloadToken = errors.New("invalid download token")

// DownloadClaims grant access to one archive.
// sub: requester hash
type DownloadClaims struct {
	Archive string `json:"arc"`
	jwt.RegisteredClaims
}

// DownloadSigner issues and verifies HS256 archive download tokens
type DownloadSigner struct {
	key    []byte
	issuer string
}

func NewDownloadSigner(key []byte, issuer string) (*DownloadSigner, error) {
	if len(key) < MinSigningKeyLen {
		return nil, fmt.Errorf("download signing key must be at least %d bytes", MinSigningKeyLen)
	}
	return &DownloadSigner{key: key, issuer: issuer}, nil
}

// Sign grants access to archive until now+ttl
func (s *DownloadSigner) Sign(archive string, requesterHash string, ttl time.Duration) (string, error) {
	jti, err := GenerateOpaqueToken(12)
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := DownloadClaims{
		Archive: archive,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   requesterHash,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify parses a token signed by s. The archive name never contains a path separator.
func (s *DownloadSigner) Verify(signedToken string) (*DownloadClaims, error) {
	claims := &DownloadClaims{}
	token, err := jwt.ParseWithClaims(signedToken, claims, func(token *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDownloadToken, err)
	}
	if !token.Valid || claims.Archive == "" || strings.ContainsAny(claims.Archive, `/\`) || claims.Archive == ".." {
		return nil, ErrInvalidDownloadToken
	}
	return claims, nil
}

// GenerateOpaqueToken generates a Base64-encoded, URL-safe, opaque random string
func GenerateOpaqueToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = 32 // default 32 bytes (256 bits)
	}
	bytes := make([]byte, byteLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("rand.Read: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

package jwttoken

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Atmajo/credora-server/internal/platform/middleware"
	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
)

// AccessTokenClaims represents the JWT claims for access tokens.
// The wallet address is the on-chain identity of the caller.
type AccessTokenClaims struct {
	WalletAddress string `json:"wallet_address"`
	UserType      string `json:"user_type"`
	IsAdmin       bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
}

func NewService(signingKey, issuer string, tokenTTL time.Duration) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		tokenTTL:   tokenTTL,
	}
}

// GenerateToken signs an access token for the given wallet identity.
func (s *Service) GenerateToken(wallet common.Address, userType string, isAdmin bool) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		WalletAddress: wallet.Hex(),
		UserType:      userType,
		IsAdmin:       isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   wallet.Hex(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// ValidateToken parses and validates an access token, returning the claims
// the auth middleware expects.
func (s *Service) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "empty token")
	}

	claims := new(AccessTokenClaims)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "unexpected signing algorithm")
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "jwt parse failed")
	}
	if !token.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	return &middleware.JWTClaims{
		WalletAddress: claims.WalletAddress,
		UserType:      claims.UserType,
		IsAdmin:       claims.IsAdmin,
	}, nil
}

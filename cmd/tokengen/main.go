// Package main provides a CLI tool for generating test tokens for the
// Credora API. These tokens use the dev signing key and will NOT work in
// production.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "github.com/Atmajo/credora-server/internal/jwt_token"
	"github.com/Atmajo/credora-server/pkg/ethutil"
)

const (
	// Dev signing key - matches config.go when JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	defaultIssuer = "credora-server"
	defaultTTL    = time.Hour
)

type tokenOutput struct {
	Token     string         `json:"token"`
	ExpiresIn string         `json:"expires_in"`
	Claims    map[string]any `json:"claims"`
	Usage     string         `json:"usage"`
}

func main() {
	wallet := flag.String("wallet", "", "Wallet address (hex, required)")
	userType := flag.String("user-type", "institution", "Caller type: institution, student, employer, admin")
	admin := flag.Bool("admin", false, "Grant the admin claim")
	ttl := flag.Duration("ttl", defaultTTL, "Token time-to-live")
	asJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	addr, err := ethutil.ParseAddress(*wallet)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tokengen: -wallet must be a hex address")
		flag.Usage()
		os.Exit(1)
	}

	signingKey := os.Getenv("JWT_SIGNING_KEY")
	if signingKey == "" {
		signingKey = devSigningKey
	}

	svc := jwttoken.NewService(signingKey, defaultIssuer, *ttl)
	token, err := svc.GenerateToken(addr, *userType, *admin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		out := tokenOutput{
			Token:     token,
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"wallet_address": addr.Hex(),
				"user_type":      *userType,
				"is_admin":       *admin,
			},
			Usage: "Authorization: Bearer <token>",
		}
		_ = json.NewEncoder(os.Stdout).Encode(out)
		return
	}

	fmt.Println(token)
}

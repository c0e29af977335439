// Command gentoken mints a signed bearer token for local development and
// manual API testing.
//
// Usage:
//
//	go run ./cmd/gentoken -secret dev-secret -subject user-123 -ttl 24h
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geo-index-service/internal/auth"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "signing secret (defaults to JWT_SECRET)")
	subject := flag.String("subject", "", "user identifier to embed as the token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *secret == "" || *subject == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -secret (or JWT_SECRET), -subject")
	}

	token, err := auth.Issue(*secret, *subject, *ttl, clockwork.NewRealClock())
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Println(token)
	return nil
}

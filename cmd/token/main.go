package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"teamchat/internal/auth"
	"teamchat/internal/config"
	"teamchat/internal/model"
)

// token mints a bearer token for local testing:
//
//	go run ./cmd/token -user <uuid> -team <uuid>
func main() {
	configPath := flag.String("config", os.Getenv("TEAMCHAT_CONFIG"), "path to YAML config file")
	user := flag.String("user", "", "user id")
	team := flag.String("team", "", "team id")
	role := flag.String("role", string(model.RoleMember), "member, admin or bot")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fail(err)
	}

	userID, err := uuid.Parse(*user)
	if err != nil {
		fail(fmt.Errorf("invalid -user: %w", err))
	}
	teamID, err := uuid.Parse(*team)
	if err != nil {
		fail(fmt.Errorf("invalid -team: %w", err))
	}

	authn, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, *ttl)
	if err != nil {
		fail(err)
	}
	token, err := authn.GenerateToken(model.Actor{ID: userID, TeamID: teamID, Role: model.Role(*role)})
	if err != nil {
		fail(err)
	}
	fmt.Println(token)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "token:", err)
	os.Exit(1)
}

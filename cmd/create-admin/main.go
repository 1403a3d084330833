package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/brototype/portal-backend/internal/config"
	"github.com/brototype/portal-backend/internal/database"
	"github.com/brototype/portal-backend/internal/logger"
	"github.com/brototype/portal-backend/internal/model"
	"github.com/brototype/portal-backend/internal/repository"
	"github.com/brototype/portal-backend/internal/service"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL and Redis ───────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Services ───────────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	authService := service.NewAuthService(cfg, rdb, userRepo, service.NewLogMailer(log), log)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create Portal Admin ===")

	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	// An existing account is promoted instead of recreated.
	if existing, err := userRepo.GetByEmail(ctx, strings.ToLower(email)); err == nil {
		fmt.Printf("User %s already exists. Promote to admin? [y/N]: ", existing.Email)
		answer, _ := reader.ReadString('\n')
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Println("Aborted")
			return
		}
		if err := profileRepo.SetRole(ctx, existing.ID, model.RoleAdmin); err != nil {
			log.Fatal().Err(err).Msg("Failed to promote user")
		}
		fmt.Printf("\nSuccess! %s is now an admin.\n", existing.Email)
		return
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		log.Fatal().Err(err).Msg("Failed to look up user")
	}

	fmt.Print("Enter Full Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Full name is required")
		return
	}

	password, ok := readPassword("Enter Password: ")
	if !ok {
		return
	}
	confirm, ok := readPassword("Confirm Password: ")
	if !ok {
		return
	}
	if password != confirm {
		fmt.Println("Error: Passwords do not match")
		return
	}
	if len(password) < service.MinPasswordLength {
		fmt.Printf("Error: Password must be at least %d characters\n", service.MinPasswordLength)
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	res, err := authService.Register(ctx, email, password, model.UserMetadata{FullName: name, Role: model.RoleAdmin})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	// The authoritative role lives in profiles; the metadata tag is display only.
	if err := profileRepo.SetRole(ctx, res.User.ID, model.RoleAdmin); err != nil {
		log.Fatal().Err(err).Str("user_id", res.User.ID.String()).Msg("User created but role assignment failed")
	}

	// Registration signs the user in; the CLI has no use for that session.
	if err := authService.Logout(ctx, res.Session.ID); err != nil {
		log.Warn().Err(err).Msg("Failed to close registration session")
	}

	fmt.Printf("\nSuccess! Admin '%s' (%s) created with ID: %s\n", res.User.FullName, res.User.Email, res.User.ID)
}

func readPassword(prompt string) (string, bool) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return "", false
	}
	return string(b), true
}

// Command seed grants SGA admin rights to an email address, creating the
// user if needed, and prints a bearer token for it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/fisk-sga/campus-feedback/backend/internal/access"
	"github.com/fisk-sga/campus-feedback/backend/internal/config"
	"github.com/fisk-sga/campus-feedback/backend/internal/database"
	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage/postgres"
)

func main() {
	email := flag.String("email", "", "email address to promote")
	revoke := flag.Bool("revoke", false, "remove admin rights instead of granting them")
	flag.Parse()

	if *email == "" {
		log.Fatal("-email is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	store := postgres.New(db.GetDB())
	addr := strings.ToLower(strings.TrimSpace(*email))

	user, err := store.GetUserByEmail(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		user = models.User{ID: uuid.NewString(), Email: addr, CreatedAt: time.Now().UTC()}
		err = store.InsertUser(ctx, &user)
	}
	if err != nil {
		log.Fatalf("Failed to load user: %v", err)
	}

	if err := store.SetAdmin(ctx, user.ID, !*revoke); err != nil {
		log.Fatalf("Failed to update admin flag: %v", err)
	}

	token, exp, err := access.NewIssuer(cfg.JWTSecret, cfg.TokenTTL, clockwork.NewRealClock()).Issue(user.ID)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	fmt.Printf("user:    %s (%s)\nadmin:   %t\ntoken:   %s\nexpires: %s\n", user.Email, user.ID, !*revoke, token, exp.Format(time.RFC3339))
}

// Package auth implements passwordless sign-in with single-use magic links
// restricted to the campus email domain.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"github.com/fisk-sga/campus-feedback/backend/internal/access"
	"github.com/fisk-sga/campus-feedback/backend/internal/apperr"
	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
)

// Mailer delivers a sign-in link. Delivery itself lives outside this service.
type Mailer interface {
	SendMagicLink(ctx context.Context, email, link string) error
}

// LogMailer writes links to the log instead of sending mail.
type LogMailer struct {
	Log *slog.Logger
}

func (m LogMailer) SendMagicLink(_ context.Context, email, link string) error {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("magic link issued", "email", email, "link", link)
	return nil
}

type Config struct {
	Domain    string
	PublicURL string
	TTL       time.Duration
}

type Service struct {
	store  storage.Store
	issuer *access.Issuer
	mailer Mailer
	clock  clockwork.Clock
	cfg    Config
	log    *slog.Logger
}

func New(store storage.Store, issuer *access.Issuer, mailer Mailer, clock clockwork.Clock, cfg Config) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if mailer == nil {
		mailer = LogMailer{}
	}
	cfg.Domain = strings.ToLower(strings.TrimPrefix(cfg.Domain, "@"))
	return &Service{store: store, issuer: issuer, mailer: mailer, clock: clock, cfg: cfg, log: slog.Default()}
}

// NormalizeEmail lowercases and validates email and checks it belongs to
// the allowed domain.
func (s *Service) NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("invalid email address")
	}
	if !strings.HasSuffix(email, "@"+s.cfg.Domain) {
		return "", apperr.Validation("please use your @" + s.cfg.Domain + " email address")
	}
	return email, nil
}

func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RequestLink stores a hashed single-use token for email and hands the link
// to the mailer.
func (s *Service) RequestLink(ctx context.Context, email string) error {
	email, err := s.NormalizeEmail(email)
	if err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	if n, err := s.store.DeleteExpiredMagicLinks(ctx, now); err != nil {
		s.log.Warn("purging expired magic links failed", "error", err)
	} else if n > 0 {
		s.log.Debug("purged expired magic links", "count", n)
	}

	secret, err := newSecret()
	if err != nil {
		return apperr.Internal("could not create sign-in link", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal("could not create sign-in link", err)
	}

	token := models.MagicLinkToken{
		ID:         uuid.NewString(),
		Email:      email,
		SecretHash: string(hash),
		ExpiresAt:  now.Add(s.cfg.TTL),
		CreatedAt:  now,
	}
	if err := s.store.InsertMagicLink(ctx, &token); err != nil {
		return apperr.Unavailable("could not create sign-in link", err)
	}

	link := strings.TrimRight(s.cfg.PublicURL, "/") + "/auth/verify?token=" + url.QueryEscape(token.ID+"."+secret)
	if err := s.mailer.SendMagicLink(ctx, email, link); err != nil {
		return apperr.Unavailable("could not send sign-in link", err)
	}
	return nil
}

type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

var errBadLink = apperr.Unauthorized("invalid or expired sign-in link")

// Verify consumes a magic-link token and returns a session for its email,
// creating the user on first sign-in.
func (s *Service) Verify(ctx context.Context, raw string) (Session, error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok || id == "" || secret == "" {
		return Session{}, errBadLink
	}

	token, err := s.store.GetMagicLink(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, errBadLink
	}
	if err != nil {
		return Session{}, apperr.Unavailable("could not verify sign-in link", err)
	}

	if !s.clock.Now().Before(token.ExpiresAt) {
		if _, err := s.store.DeleteMagicLink(ctx, id); err != nil {
			s.log.Warn("deleting expired magic link failed", "error", err)
		}
		return Session{}, errBadLink
	}
	if bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)) != nil {
		return Session{}, errBadLink
	}

	removed, err := s.store.DeleteMagicLink(ctx, id)
	if err != nil {
		return Session{}, apperr.Unavailable("could not verify sign-in link", err)
	}
	if removed == 0 {
		return Session{}, errBadLink
	}

	user, err := s.findOrCreateUser(ctx, token.Email)
	if err != nil {
		return Session{}, err
	}

	jwtToken, exp, err := s.issuer.Issue(user.ID)
	if err != nil {
		return Session{}, apperr.Internal("could not issue session", err)
	}

	s.log.Info("user signed in", "user_id", user.ID)
	return Session{Token: jwtToken, ExpiresAt: exp, User: user}, nil
}

func (s *Service) findOrCreateUser(ctx context.Context, email string) (models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.User{}, apperr.Unavailable("could not load user", err)
	}

	user = models.User{ID: uuid.NewString(), Email: email, CreatedAt: s.clock.Now().UTC()}
	err = s.store.InsertUser(ctx, &user)
	if errors.Is(err, storage.ErrDuplicateKey) {
		// Lost a race with a concurrent first sign-in.
		user, err = s.store.GetUserByEmail(ctx, email)
	}
	if err != nil {
		return models.User{}, apperr.Unavailable("could not create user", fmt.Errorf("user %s: %w", email, err))
	}
	return user, nil
}

func (s *Service) Me(ctx context.Context, actor access.Actor) (models.User, error) {
	if err := actor.RequireUser(); err != nil {
		return models.User{}, err
	}
	user, err := s.store.GetUser(ctx, actor.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.User{}, apperr.Unauthorized("user no longer exists")
	}
	if err != nil {
		return models.User{}, apperr.Unavailable("could not load user", err)
	}
	return user, nil
}

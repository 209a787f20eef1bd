package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"qonbaq/internal/lib/jwt"
	"qonbaq/internal/lib/logger/sl"
	"qonbaq/internal/models"
	"qonbaq/internal/storage"

	"github.com/google/uuid"
)

var (
	ErrEmailTaken           = errors.New("user with this email already exists")
	ErrUsernameTaken        = errors.New("user with this username already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUserNotFound         = errors.New("user not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
)

// errConsumed marks a refresh token deleted by a concurrent rotation
// between lookup and delete.
var errConsumed = errors.New("refresh token already consumed")

type UserSaver interface {
	SaveUser(ctx context.Context, user models.User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passHash string, updatedAt time.Time) error
}

type UserProvider interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByUsername(ctx context.Context, username string) (models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (models.User, error)
}

type TokenStore interface {
	SaveRefreshToken(ctx context.Context, rt models.RefreshToken) error
	RefreshToken(ctx context.Context, token string) (models.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, id uuid.UUID) (int64, error)
	DeleteRefreshTokensByValue(ctx context.Context, token string) (int64, error)
}

// Transactor runs fn in one storage transaction carried by the context
// it passes to fn. Stores pick the transaction up from that context.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type TokenManager interface {
	SignAccess(p models.TokenPayload) (string, error)
	SignRefresh(p models.TokenPayload) (string, error)
	VerifyRefresh(token string) (models.TokenPayload, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.AuthEvent) error
}

type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	tokens      TokenStore
	tx          Transactor
	tokenMgr    TokenManager
	hasher      PasswordHasher
	events      EventPublisher
	refreshTTL  time.Duration
	now         func() time.Time

	dummyOnce sync.Once
	dummy     string
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokens TokenStore,
	tx Transactor,
	tokenMgr TokenManager,
	hasher PasswordHasher,
	events EventPublisher,
	refreshTTL time.Duration,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		tokens:      tokens,
		tx:          tx,
		tokenMgr:    tokenMgr,
		hasher:      hasher,
		events:      events,
		refreshTTL:  refreshTTL,
		now:         time.Now,
	}
}

// * Register создает пользователя и выдает ему первую пару токенов
func (a *Auth) Register(
	ctx context.Context,
	email, username, password string,
) (models.User, models.TokenPair, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	email = NormalizeEmail(email)

	if err := a.ensureFree(ctx, email, username); err != nil {
		if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrUsernameTaken) {
			log.Info("registration conflict", sl.Err(err))
		} else {
			log.Error("failed to check uniqueness", sl.Err(err))
		}

		return models.User{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := a.hasher.Hash(password)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))

		return models.User{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	now := a.now()
	user := models.User{
		ID:        uuid.New(),
		Email:     email,
		Username:  username,
		PassHash:  passHash,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var pair models.TokenPair

	err = a.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := a.usrSaver.SaveUser(ctx, user); err != nil {
			return err
		}

		pair, err = a.issue(ctx, user.Payload(), user.ID)

		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrEmailExists):
			log.Info("email taken concurrently")
			return models.User{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		case errors.Is(err, storage.ErrUsernameExists):
			log.Info("username taken concurrently")
			return models.User{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
		}

		log.Error("failed to save user", sl.Err(err))

		return models.User{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	a.publish(ctx, models.EventRegistered, "", user.ID.String())

	log.Info("user registered", slog.String("uid", user.ID.String()))

	return user, pair, nil
}

// * Login проверяет учетные данные и возвращает пару токенов.
// Email wins when both identifiers are given.
func (a *Auth) Login(
	ctx context.Context,
	email, username, password string,
) (models.User, models.TokenPair, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	var (
		user models.User
		err  error
	)

	switch {
	case strings.TrimSpace(email) != "":
		user, err = a.usrProvider.UserByEmail(ctx, NormalizeEmail(email))
	case username != "":
		user, err = a.usrProvider.UserByUsername(ctx, username)
	default:
		err = storage.ErrUserNotFound
	}

	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// same bcrypt cost as a real mismatch
			a.hasher.Verify(password, a.dummyHash())

			log.Info("user not found")
			a.publish(ctx, models.EventLoginFailed, models.ReasonUnknownUser, "")

			return models.User{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		log.Error("failed to get user", sl.Err(err))

		return models.User{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if !a.hasher.Verify(password, user.PassHash) {
		log.Info("invalid credentials", slog.String("uid", user.ID.String()))
		a.publish(ctx, models.EventLoginFailed, models.ReasonBadPassword, user.ID.String())

		return models.User{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	var pair models.TokenPair

	err = a.tx.WithTx(ctx, func(ctx context.Context) error {
		pair, err = a.issue(ctx, user.Payload(), user.ID)
		return err
	})
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))

		return models.User{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	a.publish(ctx, models.EventLoggedIn, "", user.ID.String())

	log.Info("user logged in successfully", slog.String("uid", user.ID.String()))

	return user, pair, nil
}

// * Refresh меняет refresh token на новую пару. Старый токен удаляется.
func (a *Auth) Refresh(ctx context.Context, token string) (models.TokenPair, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	if token == "" {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	rt, err := a.tokens.RefreshToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			log.Info("refresh token not found")
			return models.TokenPair{}, a.reject(ctx, op, models.ReasonNotFound, "")
		}

		log.Error("failed to get refresh token", sl.Err(err))

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if rt.IsExpired(a.now()) {
		if _, err := a.tokens.DeleteRefreshToken(ctx, rt.ID); err != nil {
			log.Error("failed to delete expired refresh token", sl.Err(err))
		}

		log.Info("refresh token expired", slog.String("uid", rt.UserID.String()))

		return models.TokenPair{}, a.reject(ctx, op, models.ReasonExpired, rt.UserID.String())
	}

	payload, err := a.tokenMgr.VerifyRefresh(token)
	if err != nil {
		if errors.Is(err, jwt.ErrSecretNotSet) {
			log.Error("token manager is not configured", sl.Err(err))
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
		}

		log.Info("refresh token rejected", sl.Err(err))

		return models.TokenPair{}, a.reject(ctx, op, models.ReasonInvalidToken, rt.UserID.String())
	}

	if payload.UserID != rt.UserID.String() {
		log.Warn("refresh token owner mismatch", slog.String("uid", rt.UserID.String()))

		return models.TokenPair{}, a.reject(ctx, op, models.ReasonOwnerMismatch, rt.UserID.String())
	}

	var pair models.TokenPair

	err = a.tx.WithTx(ctx, func(ctx context.Context) error {
		n, err := a.tokens.DeleteRefreshToken(ctx, rt.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return errConsumed
		}

		pair, err = a.issue(ctx, payload, rt.UserID)

		return err
	})
	if err != nil {
		if errors.Is(err, errConsumed) {
			log.Info("refresh token consumed concurrently")
			return models.TokenPair{}, a.reject(ctx, op, models.ReasonConsumed, rt.UserID.String())
		}

		log.Error("failed to rotate refresh token", sl.Err(err))

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	a.publish(ctx, models.EventRefreshed, "", rt.UserID.String())

	log.Info("refresh successful", slog.String("uid", rt.UserID.String()))

	return pair, nil
}

func (a *Auth) Logout(ctx context.Context, token string) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	n, err := a.tokens.DeleteRefreshTokensByValue(ctx, token)
	if err != nil {
		log.Error("failed to delete refresh token", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		log.Info("refresh token not found")

		return fmt.Errorf("%s: %w", op, ErrRefreshTokenNotFound)
	}

	a.publish(ctx, models.EventLoggedOut, "", "")

	log.Info("logout successful")

	return nil
}

// CurrentUser loads the user named by a verified access token.
func (a *Auth) CurrentUser(ctx context.Context, userID string) (models.User, error) {
	const op = "auth.CurrentUser"

	log := a.log.With(slog.String("op", op))

	id, err := uuid.Parse(userID)
	if err != nil {
		log.Warn("malformed user id in token", slog.String("uid", userID))

		return models.User{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	user, err := a.usrProvider.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("user not found", slog.String("uid", userID))
			return models.User{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		log.Error("failed to get user", sl.Err(err))

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdatePassword replaces the password of the user with the given email.
// Issued refresh tokens stay valid.
func (a *Auth) UpdatePassword(ctx context.Context, email, newPassword string) error {
	const op = "auth.UpdatePassword"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := a.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.UpdatePassword(ctx, user.ID, passHash, a.now()); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password updated", slog.String("uid", user.ID.String()))

	return nil
}

// NormalizeEmail is applied before every store and lookup of an email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *Auth) ensureFree(ctx context.Context, email, username string) error {
	if _, err := a.usrProvider.UserByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		return err
	}

	if _, err := a.usrProvider.UserByUsername(ctx, username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		return err
	}

	return nil
}

// issue signs a pair and stores the refresh half. Must run inside WithTx.
func (a *Auth) issue(ctx context.Context, p models.TokenPayload, userID uuid.UUID) (models.TokenPair, error) {
	access, err := a.tokenMgr.SignAccess(p)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := a.tokenMgr.SignRefresh(p)
	if err != nil {
		return models.TokenPair{}, err
	}

	now := a.now()
	err = a.tokens.SaveRefreshToken(ctx, models.RefreshToken{
		ID:        uuid.New(),
		Token:     refresh,
		UserID:    userID,
		ExpiresAt: now.Add(a.refreshTTL),
		CreatedAt: now,
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (a *Auth) reject(ctx context.Context, op, reason, uid string) error {
	a.publish(ctx, models.EventRefreshRejected, reason, uid)

	return fmt.Errorf("%s: %s: %w", op, reason, ErrInvalidCredentials)
}

func (a *Auth) publish(ctx context.Context, typ models.EventType, reason, uid string) {
	if a.events == nil {
		return
	}

	err := a.events.Publish(ctx, models.AuthEvent{
		Type:       typ,
		Reason:     reason,
		UserID:     uid,
		OccurredAt: a.now(),
	})
	if err != nil {
		a.log.Warn("failed to publish auth event", slog.String("type", string(typ)), sl.Err(err))
	}
}

func (a *Auth) dummyHash() string {
	a.dummyOnce.Do(func() {
		h, err := a.hasher.Hash(uuid.NewString())
		if err != nil {
			a.log.Error("failed to build dummy hash", sl.Err(err))
			return
		}

		a.dummy = h
	})

	return a.dummy
}

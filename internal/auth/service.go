package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrRateLimited        = errors.New("too many requests")
	ErrInvalidInput       = errors.New("invalid input")
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const guardPasswordLogin = "password_login"

type Service struct {
	db                *sql.DB
	log               logrus.FieldLogger
	sessionTTL        time.Duration
	bcryptCost        int
	loginMaxFailures  int
	loginLockDuration time.Duration
}

type ServiceConfig struct {
	SessionTTL        time.Duration
	BcryptCost        int
	LoginMaxFailures  int
	LoginLockDuration time.Duration
	Logger            logrus.FieldLogger
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// BootstrapAccount is a login ensured to exist at startup.
type BootstrapAccount struct {
	Username string
	Password string
	FullName string
	Role     string
}

func NewService(db *sql.DB, cfg ServiceConfig) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.LoginMaxFailures <= 0 {
		cfg.LoginMaxFailures = 5
	}
	if cfg.LoginLockDuration <= 0 {
		cfg.LoginLockDuration = 15 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Service{
		db:                db,
		log:               cfg.Logger,
		sessionTTL:        cfg.SessionTTL,
		bcryptCost:        cfg.BcryptCost,
		loginMaxFailures:  cfg.LoginMaxFailures,
		loginLockDuration: cfg.LoginLockDuration,
	}
}

func (s *Service) AuthenticatePassword(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	guardKey := normalizeGuardKey(username)
	locked, until, err := s.isGuardLocked(ctx, guardPasswordLogin, guardKey)
	if err != nil {
		return nil, fmt.Errorf("check login guard: %w", err)
	}
	if locked {
		s.log.WithFields(logrus.Fields{"username": guardKey, "locked_until": until}).Warn("login rejected by guard")
		return nil, ErrRateLimited
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, role, is_active, password_hash
		FROM users
		WHERE username = $1
		LIMIT 1
	`, username)

	var u User
	var active bool
	var passwordHash string
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &active, &passwordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.fail(ctx, guardKey)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	if !active {
		s.fail(ctx, guardKey)
		return nil, ErrForbidden
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		s.fail(ctx, guardKey)
		return nil, ErrInvalidCredentials
	}

	if err := s.clearGuard(ctx, guardPasswordLogin, guardKey); err != nil {
		s.log.WithError(err).Warn("clear login guard")
	}
	return &u, nil
}

func (s *Service) fail(ctx context.Context, guardKey string) {
	if err := s.registerFailure(ctx, guardPasswordLogin, guardKey, s.loginMaxFailures, s.loginLockDuration); err != nil {
		s.log.WithError(err).Warn("register login failure")
	}
}

// BootstrapAccounts creates or refreshes the given accounts. Entries without a
// password are skipped so a deployment can opt out of a demo login.
func (s *Service) BootstrapAccounts(ctx context.Context, accounts []BootstrapAccount) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bootstrap tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := 0
	for _, a := range accounts {
		a.Username = strings.TrimSpace(a.Username)
		if a.Password == "" {
			continue
		}
		if a.Username == "" || !isValidRole(a.Role) {
			return fmt.Errorf("%w: bootstrap account %q", ErrInvalidInput, a.Username)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), s.bcryptCost)
		if err != nil {
			return fmt.Errorf("hash password of %s: %w", a.Username, err)
		}
		if err := upsertBootstrapUser(ctx, tx, a, string(hash)); err != nil {
			return err
		}
		created++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	s.log.WithField("accounts", created).Info("bootstrap accounts ensured")
	return nil
}

func upsertBootstrapUser(ctx context.Context, tx *sql.Tx, a BootstrapAccount, passwordHash string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, full_name, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, now(), now())
		ON CONFLICT (username)
		DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			full_name = EXCLUDED.full_name,
			role = EXCLUDED.role,
			is_active = TRUE,
			updated_at = now()
	`, a.Username, passwordHash, a.FullName, a.Role)
	if err != nil {
		return fmt.Errorf("upsert bootstrap user %s: %w", a.Username, err)
	}
	return nil
}

func (s *Service) CreateSession(ctx context.Context, userID int64, ipAddress, userAgent string) (string, time.Time, error) {
	token, err := generateToken(32)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate session token: %w", err)
	}
	expiresAt := time.Now().Add(s.sessionTTL)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO auth_sessions (
			user_id, session_token_hash, expires_at, ip_address, user_agent, created_at
		) VALUES (
			$1, $2, $3, $4, $5, now()
		)
	`, userID, hashToken(token), expiresAt, nullableString(ipAddress), nullableString(userAgent))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("insert session: %w", err)
	}
	return token, expiresAt, nil
}

func (s *Service) GetSessionUser(ctx context.Context, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthorized
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.full_name, u.role
		FROM auth_sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.session_token_hash = $1
		  AND s.revoked_at IS NULL
		  AND s.expires_at > now()
		  AND u.is_active
		LIMIT 1
	`, hashToken(token))

	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("query session user: %w", err)
	}
	return &u, nil
}

func (s *Service) RevokeSession(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE auth_sessions
		SET revoked_at = now()
		WHERE session_token_hash = $1
		  AND revoked_at IS NULL
	`, hashToken(token))
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func isValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

func (s *Service) isGuardLocked(ctx context.Context, purpose, subjectKey string) (bool, time.Time, error) {
	var lockedUntil sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT locked_until
		FROM auth_guards
		WHERE purpose = $1 AND subject_key = $2
	`, purpose, subjectKey).Scan(&lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, err
	}
	if !lockedUntil.Valid {
		return false, time.Time{}, nil
	}
	return time.Now().Before(lockedUntil.Time), lockedUntil.Time, nil
}

// registerFailure counts a failed attempt and locks the subject once maxFailures is reached.
func (s *Service) registerFailure(ctx context.Context, purpose, subjectKey string, maxFailures int, lockDuration time.Duration) error {
	var failedCount int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO auth_guards (purpose, subject_key, failed_count, updated_at, created_at)
		VALUES ($1, $2, 1, now(), now())
		ON CONFLICT (purpose, subject_key)
		DO UPDATE SET
			failed_count = auth_guards.failed_count + 1,
			updated_at = now()
		RETURNING failed_count
	`, purpose, subjectKey).Scan(&failedCount)
	if err != nil {
		return err
	}

	if failedCount >= maxFailures {
		_, err = s.db.ExecContext(ctx, `
			UPDATE auth_guards
			SET locked_until = now() + make_interval(secs => $3),
				failed_count = 0,
				updated_at = now()
			WHERE purpose = $1 AND subject_key = $2
		`, purpose, subjectKey, int(lockDuration.Seconds()))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) clearGuard(ctx context.Context, purpose, subjectKey string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM auth_guards
		WHERE purpose = $1 AND subject_key = $2
	`, purpose, subjectKey)
	return err
}

func normalizeGuardKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func nullableString(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

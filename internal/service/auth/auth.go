// Package auth is the session manager: the stateful protocol binding
// credentials, durable sessions, the advisory cache and token issuance.
// Durable writes run inside a transaction; cache writes and mail dispatch
// happen after commit and never roll it back.
package auth

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"finditnow-auth/internal/domain/auth"
	xerrors "finditnow-auth/internal/pkg/errors"
	"finditnow-auth/internal/pkg/secure"
	"finditnow-auth/internal/pkg/session"
	"finditnow-auth/internal/pkg/token"
	"finditnow-auth/internal/service/profile"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	otpLength      = 6
	emailOTPTTL    = 2 * time.Minute
	resetOTPTTL    = 10 * time.Minute
	resetWindowTTL = 5 * time.Minute

	// pendingNameTTL outlives the OTP so verification can still create the
	// profile after a resend.
	pendingNameTTL = 24 * time.Hour

	profileCallTimeout = 5 * time.Second
)

// Repository is the durable store the session manager drives.
type Repository interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	FindCredentialByEmail(ctx context.Context, email string) (*auth.Credential, error)
	FindCredentialByIdentifier(ctx context.Context, identifier string) (*auth.Credential, error)
	FindCredentialByID(ctx context.Context, id string) (*auth.Credential, error)
	CreateCredential(ctx context.Context, c *auth.Credential) error
	SetEmailVerified(ctx context.Context, tx pgx.Tx, credentialID string, userID uuid.UUID) error
	UpdatePasswordHash(ctx context.Context, credentialID, hash string) error
	CreateSession(ctx context.Context, tx pgx.Tx, s *auth.Session) error
	FindSessionByTokenForUpdate(ctx context.Context, tx pgx.Tx, token string) (*auth.Session, error)
	ExtendSession(ctx context.Context, tx pgx.Tx, sessionID string, expiresAt time.Time) error
	InvalidateSessionByToken(ctx context.Context, token string) error
	RevokeExpiredSessions(ctx context.Context) (int64, error)
}

// Cache is the advisory store; every method is best-effort from the
// protocol's point of view except the refresh lookup, which fails closed.
type Cache interface {
	PutRefresh(ctx context.Context, refreshToken string, cs *session.CachedSession, ttl time.Duration) error
	GetRefresh(ctx context.Context, refreshToken string) (*session.CachedSession, error)
	DeleteRefresh(ctx context.Context, refreshToken string) error
	BlacklistAccessToken(ctx context.Context, accessToken string, ttl time.Duration) error
	IsAccessTokenBlacklisted(ctx context.Context, accessToken string) (bool, error)
	PutOTP(ctx context.Context, purpose, subject, code string, ttl time.Duration) error
	GetOTP(ctx context.Context, purpose, subject string) (string, error)
	DeleteOTP(ctx context.Context, purpose, subject string) error
	PutPendingName(ctx context.Context, credentialID, firstName string, ttl time.Duration) error
	GetPendingName(ctx context.Context, credentialID string) (string, error)
	DeletePendingName(ctx context.Context, credentialID string) error
	AllowReset(ctx context.Context, email string, ttl time.Duration) error
	IsResetAllowed(ctx context.Context, email string) (bool, error)
	ClearReset(ctx context.Context, email string) error
}

// Mailer dispatches mail. Always fire-and-forget here.
type Mailer interface {
	Send(to, subject, bodyHTML string) error
}

// Notifier pushes session lifecycle events to connected clients.
type Notifier interface {
	SessionEnded(credentialID string)
}

// NotVerifiedError carries the credential id so the client can resume
// verification. Matches xerrors.ErrNotVerified.
type NotVerifiedError struct {
	CredentialID string
}

func (e *NotVerifiedError) Error() string { return xerrors.ErrNotVerified.Error() }
func (e *NotVerifiedError) Unwrap() error { return xerrors.ErrNotVerified }

// Service orchestrates sign-up, verification, sign-in, refresh, logout and
// the password flows.
type Service struct {
	repo       Repository
	cache      Cache
	issuer     *token.Issuer
	mail       Mailer
	profiles   profile.Creator
	events     Notifier
	logger     *zap.Logger
	refreshTTL time.Duration
}

// NewService wires the session manager. events may be nil when no push
// channel is attached.
func NewService(repo Repository, cache Cache, issuer *token.Issuer, mail Mailer, profiles profile.Creator, events Notifier, refreshTTL time.Duration, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		cache:      cache,
		issuer:     issuer,
		mail:       mail,
		profiles:   profiles,
		events:     events,
		logger:     logger,
		refreshTTL: refreshTTL,
	}
}

// SignUp creates an unverified credential and dispatches a verification OTP.
// A verified duplicate is a Conflict; an unverified one resumes instead of
// duplicating.
func (s *Service) SignUp(ctx context.Context, req *auth.SignUpRequest) (*auth.SignUpResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := s.repo.FindCredentialByEmail(ctx, email)
	if err != nil && !xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}
	if existing != nil {
		if existing.IsVerified() {
			return nil, xerrors.Wrap(xerrors.ErrConflict, "account already exists")
		}
		// Resume verification of the half-created account.
		credID := existing.ID.String()
		if err := s.cache.PutPendingName(ctx, credID, req.FirstName, pendingNameTTL); err != nil {
			s.logger.Warn("failed to store pending name", zap.Error(err))
		}
		if err := s.issueVerificationOTP(ctx, credID, email); err != nil {
			return nil, err
		}
		return &auth.SignUpResult{CredentialID: credID, Resumed: true}, nil
	}

	hash, err := secure.HashPassword(req.Password)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInternal, "failed to hash password")
	}

	cred := &auth.Credential{
		ID:           uuid.New(),
		Email:        nullString(email),
		Phone:        nullString(strings.TrimSpace(req.Phone)),
		PasswordHash: nullString(hash),
		Role:         auth.ParseRole(req.Role),
	}
	if err := s.repo.CreateCredential(ctx, cred); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}

	credID := cred.ID.String()
	if err := s.cache.PutPendingName(ctx, credID, req.FirstName, pendingNameTTL); err != nil {
		s.logger.Warn("failed to store pending name", zap.Error(err))
	}
	if err := s.issueVerificationOTP(ctx, credID, email); err != nil {
		return nil, err
	}

	return &auth.SignUpResult{CredentialID: credID}, nil
}

// ResendVerificationEmail regenerates the OTP for an unverified credential.
func (s *Service) ResendVerificationEmail(ctx context.Context, credentialID string) error {
	cred, err := s.repo.FindCredentialByID(ctx, credentialID)
	if err != nil {
		return err
	}
	if cred.IsEmailVerified {
		return xerrors.Wrap(xerrors.ErrConflict, "already_verified")
	}
	if !cred.Email.Valid {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "credential has no email")
	}
	return s.issueVerificationOTP(ctx, credentialID, cred.Email.String)
}

// VerifyEmail exchanges a matching OTP for a verified credential, a profile
// in the user service, a durable session and an access token. Profile
// creation is required; its failure rolls the whole operation back.
func (s *Service) VerifyEmail(ctx context.Context, req *auth.VerifyEmailRequest, meta auth.ClientMeta) (*auth.TokenPair, error) {
	stored, err := s.cache.GetOTP(ctx, session.PurposeEmailVerify, req.CredentialID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.Wrap(xerrors.ErrNotFound, "otp_not_found")
		}
		return nil, xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}
	if !secure.SecureCompare(req.Code, stored) {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "invalid_otp")
	}

	cred, err := s.repo.FindCredentialByID(ctx, req.CredentialID)
	if err != nil {
		return nil, err
	}
	if cred.IsEmailVerified {
		return nil, xerrors.Wrap(xerrors.ErrConflict, "already_verified")
	}

	firstName, err := s.cache.GetPendingName(ctx, req.CredentialID)
	if err != nil && !xerrors.Is(err, xerrors.ErrNotFound) {
		s.logger.Warn("failed to read pending name", zap.Error(err))
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}
	defer tx.Rollback(ctx)

	rpcCtx, cancel := context.WithTimeout(ctx, profileCallTimeout)
	defer cancel()
	userID, err := s.profiles.CreateProfile(rpcCtx, cred.ID, cred.Email.String, firstName, cred.Phone.String, cred.Role)
	if err != nil {
		s.logger.Error("profile creation failed", zap.String("cred_id", req.CredentialID), zap.Error(err))
		return nil, xerrors.Wrap(xerrors.ErrInternal, "profile creation failed")
	}

	if err := s.repo.SetEmailVerified(ctx, tx, req.CredentialID, userID); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}

	cred.UserID = userID
	cred.IsEmailVerified = true
	pair, err := s.createSession(ctx, tx, cred, meta)
	if err != nil {
		return nil, err
	}

	if err := s.cache.DeleteOTP(ctx, session.PurposeEmailVerify, req.CredentialID); err != nil {
		s.logger.Warn("failed to consume otp", zap.Error(err))
	}
	if err := s.cache.DeletePendingName(ctx, req.CredentialID); err != nil {
		s.logger.Warn("failed to drop pending name", zap.Error(err))
	}

	return pair, nil
}

// SignIn authenticates by email-or-phone plus password. Not-found and
// wrong-password collapse to the same generic failure.
func (s *Service) SignIn(ctx context.Context, req *auth.SignInRequest, meta auth.ClientMeta) (*auth.TokenPair, error) {
	cred, err := s.repo.FindCredentialByIdentifier(ctx, strings.ToLower(strings.TrimSpace(req.Identifier)))
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.Wrap(xerrors.ErrUnauthorized, "invalid credentials")
		}
		return nil, xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}

	if !cred.HasPassword() {
		return nil, xerrors.ErrOAuthOnly
	}
	if !secure.VerifyPassword(req.Password, cred.PasswordHash.String) {
		return nil, xerrors.Wrap(xerrors.ErrUnauthorized, "invalid credentials")
	}
	if !cred.IsVerified() {
		return nil, &NotVerifiedError{CredentialID: cred.ID.String()}
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}
	defer tx.Rollback(ctx)

	return s.createSession(ctx, tx, cred, meta)
}

// Refresh extends a session's life. The cache is consulted first and a miss
// fails closed; the durable row, re-read under lock, is the final arbiter.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	cached, err := s.cache.GetRefresh(ctx, refreshToken)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.Wrap(xerrors.ErrUnauthorized, "invalid_token")
		}
		return nil, xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}
	defer tx.Rollback(ctx)

	sess, err := s.repo.FindSessionByTokenForUpdate(ctx, tx, refreshToken)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			// Phantom cache entry: self-heal before rejecting.
			s.dropRefreshEntry(ctx, refreshToken)
			return nil, xerrors.ErrInvalidRefresh
		}
		return nil, xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}

	now := time.Now()
	if !sess.Usable(now) {
		s.dropRefreshEntry(ctx, refreshToken)
		return nil, xerrors.ErrInvalidRefresh
	}

	newExpiry := now.Add(s.refreshTTL)
	if err := s.repo.ExtendSession(ctx, tx, sess.ID, newExpiry); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}

	cached.ExpiresAt = newExpiry
	if err := s.cache.PutRefresh(ctx, refreshToken, cached, s.refreshTTL); err != nil {
		s.logger.Error("failed to rewrite refresh entry", zap.Error(err))
	}

	// Claims come from the cache snapshot taken at lookup time.
	access, err := s.issuer.IssueAccessToken(cached.SessionID, cached.CredentialID, cached.UserID, cached.Role)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInternal, "failed to issue access token")
	}

	return &auth.TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int(token.AccessTokenTTL.Seconds()),
	}, nil
}

// Logout revokes whichever tokens were presented. Both steps are
// independently best-effort and the operation never fails visibly.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) {
	var credID string

	if refreshToken != "" {
		if cached, err := s.cache.GetRefresh(ctx, refreshToken); err == nil {
			credID = cached.CredentialID
		}
		if err := s.repo.InvalidateSessionByToken(ctx, refreshToken); err != nil {
			s.logger.Error("failed to invalidate session", zap.Error(err))
		}
		if err := s.cache.DeleteRefresh(ctx, refreshToken); err != nil {
			s.logger.Error("failed to delete refresh entry", zap.Error(err))
		}
	}

	if accessToken != "" {
		if credID == "" {
			if claims, err := s.issuer.Verify(accessToken); err == nil {
				credID = claims.CredentialID
			}
		}
		ttl := s.issuer.RemainingTTL(accessToken)
		if err := s.cache.BlacklistAccessToken(ctx, accessToken, ttl); err != nil {
			s.logger.Error("failed to blacklist access token", zap.Error(err))
		}
	}

	if credID != "" && s.events != nil {
		s.events.SessionEnded(credID)
	}
}

// SendResetToken mails a reset OTP to a known account.
func (s *Service) SendResetToken(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := s.repo.FindCredentialByEmail(ctx, email); err != nil {
		return err
	}

	code, err := secure.GenerateOTP(otpLength)
	if err != nil {
		return xerrors.Wrap(xerrors.ErrInternal, "failed to generate otp")
	}
	if err := s.cache.PutOTP(ctx, session.PurposeReset, email, code, resetOTPTTL); err != nil {
		return xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}

	s.sendAsync(email, resetSubject, resetBody(code))
	return nil
}

// VerifyResetToken exchanges the reset OTP for a short-lived window in which
// a password change is accepted. The OTP is consumed on success.
func (s *Service) VerifyResetToken(ctx context.Context, email, code string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	stored, err := s.cache.GetOTP(ctx, session.PurposeReset, email)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return xerrors.Wrap(xerrors.ErrNotFound, "otp_not_found")
		}
		return xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}
	if !secure.SecureCompare(code, stored) {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "invalid_otp")
	}

	if err := s.cache.DeleteOTP(ctx, session.PurposeReset, email); err != nil {
		s.logger.Warn("failed to consume reset otp", zap.Error(err))
	}
	if err := s.cache.AllowReset(ctx, email, resetWindowTTL); err != nil {
		return xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}
	return nil
}

// ResetPassword changes the password, gated on the reset window opened by
// VerifyResetToken.
func (s *Service) ResetPassword(ctx context.Context, email, newPassword string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	allowed, err := s.cache.IsResetAllowed(ctx, email)
	if err != nil {
		return xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}
	if !allowed {
		return xerrors.Wrap(xerrors.ErrForbidden, "reset not authorized")
	}

	cred, err := s.repo.FindCredentialByEmail(ctx, email)
	if err != nil {
		return err
	}

	hash, err := secure.HashPassword(newPassword)
	if err != nil {
		return xerrors.Wrap(xerrors.ErrInternal, "failed to hash password")
	}
	if err := s.repo.UpdatePasswordHash(ctx, cred.ID.String(), hash); err != nil {
		return err
	}

	if err := s.cache.ClearReset(ctx, email); err != nil {
		s.logger.Warn("failed to close reset window", zap.Error(err))
	}
	return nil
}

// UpdatePassword changes the password for an authenticated credential after
// re-checking the current one.
func (s *Service) UpdatePassword(ctx context.Context, credentialID, oldPassword, newPassword string) error {
	cred, err := s.repo.FindCredentialByID(ctx, credentialID)
	if err != nil {
		return err
	}
	if !cred.HasPassword() {
		return xerrors.ErrOAuthOnly
	}
	if !secure.VerifyPassword(oldPassword, cred.PasswordHash.String) {
		return xerrors.Wrap(xerrors.ErrUnauthorized, "invalid credentials")
	}

	hash, err := secure.HashPassword(newPassword)
	if err != nil {
		return xerrors.Wrap(xerrors.ErrInternal, "failed to hash password")
	}
	return s.repo.UpdatePasswordHash(ctx, credentialID, hash)
}

// IsAccessTokenBlacklisted applies the fail-open policy: a cache error is
// logged and treated as not blacklisted. The short access TTL is the
// backstop.
func (s *Service) IsAccessTokenBlacklisted(ctx context.Context, accessToken string) bool {
	listed, err := s.cache.IsAccessTokenBlacklisted(ctx, accessToken)
	if err != nil {
		s.logger.Error("blacklist check failed, allowing token", zap.Error(err))
		return false
	}
	return listed
}

// createSession writes the durable row inside tx, commits, then mirrors to
// cache and issues the access token. A post-commit mirror failure is logged
// and surfaced, but the session already exists.
func (s *Service) createSession(ctx context.Context, tx pgx.Tx, cred *auth.Credential, meta auth.ClientMeta) (*auth.TokenPair, error) {
	refreshToken, err := secure.NewRefreshToken()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInternal, "failed to generate refresh token")
	}

	sess := &auth.Session{
		ID:            ulid.Make().String(),
		CredentialID:  cred.ID,
		SessionToken:  refreshToken,
		SessionMethod: "password",
		IPAddress:     nullString(meta.IPAddress),
		UserAgent:     nullString(meta.UserAgent),
		ExpiresAt:     time.Now().Add(s.refreshTTL),
		IsValid:       true,
	}
	if err := s.repo.CreateSession(ctx, tx, sess); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}

	cs := &session.CachedSession{
		SessionID:    sess.ID,
		CredentialID: cred.ID.String(),
		UserID:       cred.UserID.String(),
		Role:         string(cred.Role),
		ExpiresAt:    sess.ExpiresAt,
	}
	if err := s.cache.PutRefresh(ctx, refreshToken, cs, s.refreshTTL); err != nil {
		s.logger.Error("failed to mirror session to cache",
			zap.String("session_id", sess.ID), zap.Error(err))
		return nil, xerrors.Wrap(xerrors.ErrInternal, "session created but cache mirror failed")
	}

	access, err := s.issuer.IssueAccessToken(cs.SessionID, cs.CredentialID, cs.UserID, cs.Role)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInternal, "failed to issue access token")
	}

	return &auth.TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int(token.AccessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) issueVerificationOTP(ctx context.Context, credentialID, email string) error {
	code, err := secure.GenerateOTP(otpLength)
	if err != nil {
		return xerrors.Wrap(xerrors.ErrInternal, "failed to generate otp")
	}
	if err := s.cache.PutOTP(ctx, session.PurposeEmailVerify, credentialID, code, emailOTPTTL); err != nil {
		return xerrors.Wrap(xerrors.ErrInternal, err.Error())
	}

	s.sendAsync(email, verificationSubject, verificationBody(code))
	return nil
}

// dropRefreshEntry self-heals a cache entry whose durable row is gone or
// unusable. Best-effort.
func (s *Service) dropRefreshEntry(ctx context.Context, refreshToken string) {
	if err := s.cache.DeleteRefresh(ctx, refreshToken); err != nil {
		s.logger.Warn("failed to drop stale refresh entry", zap.Error(err))
	}
}

func (s *Service) sendAsync(to, subject, body string) {
	go func() {
		if err := s.mail.Send(to, subject, body); err != nil {
			s.logger.Error("mail dispatch failed", zap.String("to", to), zap.Error(err))
		}
	}()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

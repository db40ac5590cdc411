package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/repository"
	"github.com/rsyarsya/pneuscope/internal/service/audit"
	"github.com/rsyarsya/pneuscope/internal/service/event"
	"github.com/rsyarsya/pneuscope/pkg/auth"
	apperrors "github.com/rsyarsya/pneuscope/pkg/errors"
	"github.com/rsyarsya/pneuscope/pkg/security"
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute
	userCacheTTL     = 10 * time.Second
)

var (
	errInvalidCredentials = apperrors.Unauthorized("Invalid credentials", model.ErrInvalidCredentials)
	errNotAuthenticated   = apperrors.Unauthorized("Not authorized to access this route", nil)
)

type Service struct {
	userRepo  repository.UserRepository
	tokenRepo repository.TokenRepository
	jwtSvc    auth.JWTService
	hasher    security.PasswordHasher
	events    event.Emitter
	auditor   audit.Recorder
	users     *gocache.Cache
	now       func() time.Time
}

func NewService(
	userRepo repository.UserRepository,
	tokenRepo repository.TokenRepository,
	jwtSvc auth.JWTService,
	hasher security.PasswordHasher,
	events event.Emitter,
	auditor audit.Recorder,
) *Service {
	return &Service{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		jwtSvc:    jwtSvc,
		hasher:    hasher,
		events:    events,
		auditor:   auditor,
		users:     gocache.New(userCacheTTL, time.Minute),
		now:       time.Now,
	}
}

// TokenTTL is the lifetime of issued access tokens.
func (s *Service) TokenTTL() time.Duration {
	return s.jwtSvc.Expiry()
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (s *Service) Register(ctx context.Context, req model.RegisterRequest, actor model.Actor) (*model.User, error) {
	role := req.Role
	if role == "" {
		role = model.RoleDoctor
	}
	if role == model.RoleAdmin {
		return nil, apperrors.Forbidden("Admin accounts cannot be self-registered")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	hospital := optional(req.HospitalAffiliation)
	if role == model.RoleDoctor && hospital == nil {
		return nil, apperrors.Validation([]apperrors.FieldError{{
			Field:   "hospitalAffiliation",
			Message: "hospitalAffiliation is required for doctors",
		}})
	}

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.Conflict("User already exists with this email")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}

	license := optional(req.LicenseNumber)
	if license != nil {
		exists, err := s.userRepo.ExistsByLicense(ctx, *license)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		if exists {
			return nil, apperrors.Conflict("License number already registered")
		}
	}

	hash, err := s.hasher.Hash(req.Password)
	if errors.Is(err, security.ErrPasswordLength) {
		return nil, apperrors.Validation([]apperrors.FieldError{{Field: "password", Message: err.Error()}})
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	user := &model.User{
		Name:                strings.TrimSpace(req.Name),
		Email:               email,
		PasswordHash:        hash,
		Role:                role,
		HospitalAffiliation: hospital,
		LicenseNumber:       license,
		Specialization:      optional(req.Specialization),
		PhoneNumber:         optional(req.PhoneNumber),
		IsActive:            true,
	}
	switch err := s.userRepo.Create(ctx, user); {
	case errors.Is(err, repository.ErrDuplicateEmail):
		return nil, apperrors.Conflict("User already exists with this email")
	case errors.Is(err, repository.ErrDuplicateLicense):
		return nil, apperrors.Conflict("License number already registered")
	case err != nil:
		return nil, apperrors.Internal(err)
	}

	if err := s.events.Emit(ctx, model.EventUserRegistered, model.UserRegisteredPayload{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Role:   user.Role,
	}); err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to record registration event")
	}

	actor.UserID = user.ID
	actor.Role = user.Role
	s.auditor.Log(ctx, actor, model.AuditActionCreate, model.AuditEntityUser, user.ID.String(), map[string]interface{}{
		"role": user.Role,
	})

	return user, nil
}

func (s *Service) Login(ctx context.Context, req model.LoginRequest, actor model.Actor) (*model.AuthResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !user.IsActive {
		return nil, errInvalidCredentials
	}

	now := s.now()
	if user.IsLocked(now) {
		return nil, apperrors.Unauthorized("Account temporarily locked. Try again later", model.ErrAccountLocked)
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		attempts := user.FailedLoginAttempts + 1
		var lockedUntil *time.Time
		if attempts >= maxLoginAttempts {
			until := now.Add(lockoutDuration)
			lockedUntil = &until
			attempts = 0
		}
		if err := s.userRepo.RecordLoginFailure(ctx, user.ID, attempts, lockedUntil); err != nil {
			log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to record login failure")
		}
		return nil, errInvalidCredentials
	}

	if err := s.userRepo.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to record login")
	}
	user.LastLoginAt = &now
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil

	token, _, err := s.jwtSvc.GenerateAccessToken(auth.Subject{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Role:   string(user.Role),
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	actor.UserID = user.ID
	actor.Role = user.Role
	s.auditor.Log(ctx, actor, model.AuditActionLogin, model.AuditEntityUser, user.ID.String(), nil)

	return &model.AuthResult{
		User:      user,
		Token:     token,
		ExpiresIn: int64(s.jwtSvc.Expiry().Seconds()),
	}, nil
}

// Logout revokes token until it would have expired. An invalid or empty
// token is not an error: the cookie is cleared either way.
func (s *Service) Logout(ctx context.Context, token string, actor model.Actor) error {
	if token == "" {
		return nil
	}
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil
	}
	if err := s.tokenRepo.Revoke(ctx, claims.TokenID(), claims.Expiry()); err != nil {
		return apperrors.Internal(err)
	}
	s.users.Delete(claims.UserID.String())

	actor.UserID = claims.UserID
	s.auditor.Log(ctx, actor, model.AuditActionLogout, model.AuditEntityUser, claims.UserID.String(), nil)
	return nil
}

// Authenticate validates token and returns its claims together with the
// current, active user.
func (s *Service) Authenticate(ctx context.Context, token string) (*auth.Claims, *model.User, error) {
	if token == "" {
		return nil, nil, errNotAuthenticated
	}
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, nil, apperrors.Unauthorized("Invalid token", err)
	}

	revoked, err := s.tokenRepo.IsRevoked(ctx, claims.TokenID())
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}
	if revoked {
		return nil, nil, apperrors.Unauthorized("Token has been revoked", nil)
	}

	user, err := s.cachedUser(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, apperrors.Unauthorized("User not found", err)
	}
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}
	if !user.IsActive {
		return nil, nil, apperrors.Unauthorized("Account is deactivated", model.ErrAccountInactive)
	}
	return claims, user, nil
}

func (s *Service) cachedUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if v, ok := s.users.Get(id.String()); ok {
		return v.(*model.User), nil
	}
	user, err := s.userRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.users.SetDefault(id.String(), user)
	return user, nil
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.userRepo.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("User", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, actor model.Actor, req model.UpdateProfileRequest) (*model.User, error) {
	user, err := s.Me(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	changed := []string{}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
		changed = append(changed, "name")
	}
	if req.HospitalAffiliation != nil {
		user.HospitalAffiliation = optional(*req.HospitalAffiliation)
		changed = append(changed, "hospitalAffiliation")
	}
	if req.Specialization != nil {
		user.Specialization = optional(*req.Specialization)
		changed = append(changed, "specialization")
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = optional(*req.PhoneNumber)
		changed = append(changed, "phoneNumber")
	}
	if user.Role == model.RoleDoctor && user.HospitalAffiliation == nil {
		return nil, apperrors.Validation([]apperrors.FieldError{{
			Field:   "hospitalAffiliation",
			Message: "hospitalAffiliation is required for doctors",
		}})
	}

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("User", err)
		}
		return nil, apperrors.Internal(err)
	}
	s.users.Delete(user.ID.String())

	s.auditor.Log(ctx, actor, model.AuditActionUpdate, model.AuditEntityUser, user.ID.String(), map[string]interface{}{
		"fields": changed,
	})
	return user, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"events_auth/internal/auth"
	"events_auth/internal/messaging"
	"events_auth/internal/models"
	"events_auth/internal/storage"
)

const (
	detailUserNotFound      = "user data not found"
	detailPasswordMismatch  = "password verification do not match"
	detailPasswordModified  = "password modified"
	detailDataNotUpdated    = "Data not updated"
	detailTokenNotGenerated = "recovery password token not generated"
	detailTokenNotValid     = "the token is not valid"
	detailEmailNotConfirmed = "user account is not confirmed"
	detailUserInactive      = "the user is not active"
)

type Service interface {
	VerifyCredentials(ctx context.Context, email, password string) (models.Result, error)
	ModifyPassword(ctx context.Context, id, currentPassword, newPassword, passwordVerification string) (models.Result, error)
	CreateRecoveryPasswordToken(ctx context.Context, email string) (models.Result, error)
	VerifyRegistrationToken(ctx context.Context, token string) (models.Result, error)
}

// RejectedError carries a result the store refused to apply.
type RejectedError struct {
	Result models.Result
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Result.Code, e.Result.Detail)
}

func rejected(code models.Code, detail any) error {
	return &RejectedError{Result: models.Result{Code: code, Detail: detail}}
}

type AuthService struct {
	storage storage.Storage
	unread  messaging.Counter
	hasher  auth.PasswordHasher
	tokens  auth.TokenGenerator
	log     *slog.Logger
}

func NewAuthService(
	st storage.Storage,
	unread messaging.Counter,
	hasher auth.PasswordHasher,
	tokens auth.TokenGenerator,
	log *slog.Logger,
) *AuthService {
	return &AuthService{
		storage: st,
		unread:  unread,
		hasher:  hasher,
		tokens:  tokens,
		log:     log,
	}
}

func (s *AuthService) VerifyCredentials(ctx context.Context, email, password string) (models.Result, error) {
	const op = "service.VerifyCredentials"

	user, err := s.storage.GetCredentialsByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, storage.ErrNotFound) {
		return result(models.CodeCredentialsError, detailUserNotFound), nil
	}
	if err != nil {
		return models.Result{}, fmt.Errorf("%s: %w", op, err)
	}

	if user.Password == "" || !s.hasher.Compare(user.Password, password) {
		return result(models.CodeCredentialsError, detailUserNotFound), nil
	}

	if user.Status != models.StatusConfirmed {
		return result(models.CodeEmailNotConfirmed, detailEmailNotConfirmed), nil
	}

	if !user.Active {
		return result(models.CodeUserInactive, detailUserInactive), nil
	}

	unread, err := s.unread.CountUnread(ctx, user.ID)
	if err != nil {
		s.log.Warn("failed to count unread messages",
			slog.String("op", op),
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
		unread = 0
	}

	return result(models.CodeSuccess, models.LoginDetail{
		ID:                user.ID,
		FirstName:         user.FirstName,
		LastName:          user.LastName,
		Email:             user.Email,
		UnreadMessagesQtt: unread,
		Settings:          user.Settings,
	}), nil
}

// ModifyPassword replaces the digest of the user with id. An empty
// currentPassword skips the check, as does a user without a digest.
func (s *AuthService) ModifyPassword(ctx context.Context, id, currentPassword, newPassword, passwordVerification string) (models.Result, error) {
	const op = "service.ModifyPassword"

	if newPassword != passwordVerification {
		return result(models.CodePasswordError, detailPasswordMismatch), nil
	}

	user, err := s.storage.GetUserByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return result(models.CodeCredentialsError, detailUserNotFound), nil
	}
	if err != nil {
		return models.Result{}, fmt.Errorf("%s: %w", op, err)
	}

	if currentPassword != "" && user.Password != "" && !s.hasher.Compare(user.Password, currentPassword) {
		return result(models.CodeCredentialsError, detailUserNotFound), nil
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return models.Result{}, fmt.Errorf("%s: %w", op, err)
	}
	user.Password = digest

	saved, err := s.storage.SaveUser(ctx, user)
	if err != nil {
		return models.Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if saved.ID == "" {
		return models.Result{}, rejected(models.CodeNotDataModified, detailDataNotUpdated)
	}

	return result(models.CodeSuccess, detailPasswordModified), nil
}

func (s *AuthService) CreateRecoveryPasswordToken(ctx context.Context, email string) (models.Result, error) {
	const op = "service.CreateRecoveryPasswordToken"

	user, err := s.storage.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, storage.ErrNotFound) {
		return result(models.CodeCredentialsError, detailUserNotFound), nil
	}
	if err != nil {
		return models.Result{}, fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.tokens.NewToken()
	if err != nil {
		return models.Result{}, fmt.Errorf("%s: %w", op, err)
	}
	user.RegistrationToken = token

	saved, err := s.storage.SaveUser(ctx, user)
	if err != nil {
		return models.Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if saved.ID == "" {
		return models.Result{}, rejected(models.CodeNotDataModified, detailTokenNotGenerated)
	}

	return result(models.CodeSuccess, token), nil
}

func (s *AuthService) VerifyRegistrationToken(ctx context.Context, token string) (models.Result, error) {
	const op = "service.VerifyRegistrationToken"

	if token == "" {
		return result(models.CodeTokenNotValid, detailTokenNotValid), nil
	}

	owner, err := s.storage.GetUserByRegistrationToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return result(models.CodeTokenNotValid, detailTokenNotValid), nil
	}
	if err != nil {
		return models.Result{}, fmt.Errorf("%s: %w", op, err)
	}

	return result(models.CodeSuccess, models.TokenOwner{ID: owner.ID, Email: owner.Email}), nil
}

func result(code models.Code, detail any) models.Result {
	return models.Result{Code: code, Detail: detail}
}

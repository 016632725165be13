package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
	"github.com/ayesh156/roxeleye-crud/internal/observability"
	"github.com/ayesh156/roxeleye-crud/internal/repository"
	"github.com/ayesh156/roxeleye-crud/internal/security"
	"github.com/ayesh156/roxeleye-crud/internal/upload"
)

// ProfileUpdate carries the optional fields of a profile change. A new
// password is only applied together with the current one.
type ProfileUpdate struct {
	Name            *string
	CurrentPassword string
	NewPassword     string
}

type adminAction string

const (
	actionChangeRole adminAction = "change_role"
	actionSetStatus  adminAction = "set_status"
	actionDelete     adminAction = "delete"
)

var selfTargetMessages = map[adminAction]string{
	actionChangeRole: "Cannot change your own role",
	actionSetStatus:  "Cannot deactivate your own account",
	actionDelete:     "Cannot delete your own account",
}

type UserService struct {
	users     repository.UserRepository
	hasher    *security.PasswordHasher
	uploads   *upload.Pipeline
	userCache *UserListCache
	logger    *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	hasher *security.PasswordHasher,
	uploads *upload.Pipeline,
	userCache *UserListCache,
	logger *slog.Logger,
) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{users: users, hasher: hasher, uploads: uploads, userCache: userCache, logger: logger}
}

// GetProfile re-reads the caller from the store; token claims may be stale.
func (s *UserService) GetProfile(ctx context.Context, actor security.Identity) (*domain.User, error) {
	return s.GetUser(ctx, actor.UserID)
}

func (s *UserService) GetUser(ctx context.Context, id uint) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, userErr(err, "find user")
	}
	return u, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, actor security.Identity, in ProfileUpdate) (*domain.User, error) {
	existing, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		return nil, userErr(err, "find user")
	}

	updates := map[string]any{}
	if in.Name != nil {
		if name := strings.TrimSpace(*in.Name); name != "" {
			updates["name"] = name
		}
	}
	if in.NewPassword != "" {
		if in.CurrentPassword == "" {
			return nil, ErrCurrentPasswordRequired
		}
		ok, err := s.hasher.Verify(existing.PasswordHash, in.CurrentPassword)
		if err != nil {
			return nil, fmt.Errorf("verify password: %w", err)
		}
		if !ok {
			return nil, ErrIncorrectPassword
		}
		if len(in.NewPassword) < MinPasswordLength {
			return nil, ErrWeakPassword
		}
		hash, err := s.hasher.Hash(in.NewPassword)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		updates["password_hash"] = hash
	}
	if len(updates) == 0 {
		return nil, ErrNoChanges
	}

	_, after, err := s.users.Update(ctx, actor.UserID, updates)
	if err != nil {
		return nil, userErr(err, "update profile")
	}
	s.userCache.Invalidate(ctx)
	_, passwordChanged := updates["password_hash"]
	s.logger.InfoContext(ctx, "profile updated", "user_id", actor.UserID, "password_changed", passwordChanged)
	return after, nil
}

// ListUsers returns every account, newest first.
func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.userCache.Load(ctx, s.users.List)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

func (s *UserService) UpdateUserRole(ctx context.Context, actor security.Identity, targetID uint, role string) (*domain.User, error) {
	if err := forbidSelfTarget(actor, targetID, actionChangeRole); err != nil {
		observability.RecordUserAdminMutation(ctx, string(actionChangeRole), "self_target")
		return nil, err
	}
	parsed, ok := domain.ParseRole(role)
	if !ok {
		observability.RecordUserAdminMutation(ctx, string(actionChangeRole), "invalid")
		return nil, ErrInvalidRole
	}
	_, after, err := s.users.Update(ctx, targetID, map[string]any{"role": parsed})
	if err != nil {
		observability.RecordUserAdminMutation(ctx, string(actionChangeRole), outcomeOf(err))
		return nil, userErr(err, "update role")
	}
	s.userCache.Invalidate(ctx)
	observability.RecordUserAdminMutation(ctx, string(actionChangeRole), "success")
	s.logger.InfoContext(ctx, "user role updated", "user_id", targetID, "role", parsed, "updated_by", actor.UserID)
	return after, nil
}

// ToggleUserStatus flips the target's active flag based on the value it
// reads. Concurrent toggles are not serialized; the last write wins.
func (s *UserService) ToggleUserStatus(ctx context.Context, actor security.Identity, targetID uint) (*domain.User, error) {
	if err := forbidSelfTarget(actor, targetID, actionSetStatus); err != nil {
		observability.RecordUserAdminMutation(ctx, string(actionSetStatus), "self_target")
		return nil, err
	}
	current, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		observability.RecordUserAdminMutation(ctx, string(actionSetStatus), outcomeOf(err))
		return nil, userErr(err, "find user")
	}
	_, after, err := s.users.Update(ctx, targetID, map[string]any{"is_active": !current.IsActive})
	if err != nil {
		observability.RecordUserAdminMutation(ctx, string(actionSetStatus), outcomeOf(err))
		return nil, userErr(err, "update status")
	}
	s.userCache.Invalidate(ctx)
	observability.RecordUserAdminMutation(ctx, string(actionSetStatus), "success")
	s.logger.InfoContext(ctx, "user status toggled", "user_id", targetID, "is_active", after.IsActive, "updated_by", actor.UserID)
	return after, nil
}

// DeleteUser removes the account and its avatar file. Unlike item deletion a
// repeated delete reports the user as missing.
func (s *UserService) DeleteUser(ctx context.Context, actor security.Identity, targetID uint) error {
	if err := forbidSelfTarget(actor, targetID, actionDelete); err != nil {
		observability.RecordUserAdminMutation(ctx, string(actionDelete), "self_target")
		return err
	}
	deleted, err := s.users.Delete(ctx, targetID)
	if err != nil {
		observability.RecordUserAdminMutation(ctx, string(actionDelete), outcomeOf(err))
		return userErr(err, "delete user")
	}
	s.userCache.Invalidate(ctx)
	if deleted.Avatar != nil && *deleted.Avatar != "" {
		s.uploads.Remove(ctx, *deleted.Avatar)
	}
	observability.RecordUserAdminMutation(ctx, string(actionDelete), "success")
	s.logger.InfoContext(ctx, "user deleted", "user_id", targetID, "deleted_by", actor.UserID)
	return nil
}

// UpdateAvatar stores a new avatar for the caller and removes the previous
// one once the new reference is saved.
func (s *UserService) UpdateAvatar(ctx context.Context, actor security.Identity, in upload.Input) (*domain.User, error) {
	var updated *domain.User
	_, err := s.uploads.Process(ctx, upload.NamespaceAvatars, in, func(ctx context.Context, ref string) (*string, error) {
		before, after, err := s.users.Update(ctx, actor.UserID, map[string]any{"avatar": ref})
		if err != nil {
			return nil, userErr(err, "save avatar")
		}
		updated = after
		return before.Avatar, nil
	})
	if err != nil {
		return nil, err
	}
	s.userCache.Invalidate(ctx)
	s.logger.InfoContext(ctx, "avatar updated", "user_id", actor.UserID)
	return updated, nil
}

// DeleteAvatar clears the reference before removing the file, so a failed
// removal leaves an orphaned file rather than a dangling reference.
func (s *UserService) DeleteAvatar(ctx context.Context, actor security.Identity) (*domain.User, error) {
	current, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		return nil, userErr(err, "find user")
	}
	if current.Avatar == nil || *current.Avatar == "" {
		return nil, ErrNoAvatar
	}
	before, after, err := s.users.Update(ctx, actor.UserID, map[string]any{"avatar": nil})
	if err != nil {
		return nil, userErr(err, "clear avatar")
	}
	if before.Avatar == nil || *before.Avatar == "" {
		return nil, ErrNoAvatar
	}
	s.uploads.Remove(ctx, *before.Avatar)
	s.userCache.Invalidate(ctx)
	s.logger.InfoContext(ctx, "avatar deleted", "user_id", actor.UserID)
	return after, nil
}

// forbidSelfTarget rejects admin mutations aimed at the acting account.
func forbidSelfTarget(actor security.Identity, targetID uint, action adminAction) error {
	if actor.UserID != targetID {
		return nil
	}
	msg, ok := selfTargetMessages[action]
	if !ok {
		return ErrSelfModificationForbidden
	}
	return ErrSelfModificationForbidden.WithMessage(msg)
}

func userErr(err error, op string) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func outcomeOf(err error) string {
	if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, repository.ErrItemNotFound) {
		return "not_found"
	}
	return "error"
}

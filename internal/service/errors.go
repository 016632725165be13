package service

import "github.com/ayesh156/roxeleye-crud/internal/apperror"

var (
	ErrDuplicateEmail          = apperror.New(apperror.KindConflict, "User with this email already exists")
	ErrInvalidCredentials      = apperror.New(apperror.KindAuthentication, "Invalid email or password")
	ErrAccountDeactivated      = apperror.New(apperror.KindAuthorization, "Account is deactivated. Please contact administrator.")
	ErrUserNotFound            = apperror.New(apperror.KindNotFound, "User not found")
	ErrCurrentPasswordRequired = apperror.New(apperror.KindValidation, "Current password is required to set a new password")
	ErrIncorrectPassword       = apperror.New(apperror.KindValidation, "Current password is incorrect")
	ErrWeakPassword            = apperror.New(apperror.KindValidation, "New password must be at least 6 characters")
	ErrNoChanges               = apperror.New(apperror.KindValidation, "No valid fields to update")
	ErrInvalidRole             = apperror.New(apperror.KindValidation, "Role must be either ADMIN or USER")
	// ErrSelfModificationForbidden is returned with an action-specific
	// message; match it with errors.Is.
	ErrSelfModificationForbidden = apperror.New(apperror.KindValidation, "Cannot modify your own account")
	ErrNoAvatar                  = apperror.New(apperror.KindNotFound, "No avatar to delete")

	ErrItemNotFound   = apperror.New(apperror.KindNotFound, "Item not found")
	ErrItemHasNoImage = apperror.New(apperror.KindValidation, "Item has no image")
	ErrInvalidItem    = apperror.New(apperror.KindValidation, "Validation failed")
)

// MinPasswordLength applies to registration and password changes.
const MinPasswordLength = 6

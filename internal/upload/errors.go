package upload

import "github.com/ayesh156/roxeleye-crud/internal/apperror"

var (
	ErrMissingFile        = apperror.New(apperror.KindValidation, "No image file provided")
	ErrInvalidFileType    = apperror.New(apperror.KindUpload, "Invalid file type. Only JPEG, PNG, GIF, and WebP images are allowed.")
	ErrFileTooLarge       = apperror.New(apperror.KindUpload, "File too large. Maximum size is 10MB.")
	ErrTranscodeFailure   = apperror.New(apperror.KindUpload, "Image could not be processed. The file may be corrupt.")
	ErrPersistFailure     = apperror.New(apperror.KindInternal, "Failed to store uploaded image")
	ErrAssociationFailure = apperror.New(apperror.KindInternal, "Failed to save uploaded image")
)

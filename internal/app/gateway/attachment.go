/*
Package gateway contains the core logic of the real-time gateway.

This file defines the attachment metadata limits and the validation applied to
client-declared attachments before any message is persisted. The file bytes
themselves live in external object storage and never pass through the gateway.
*/
package gateway

import (
	"path/filepath"
	"strings"

	"chatgate/internal/app/store"
	"chatgate/internal/pkg/errs"
)

const (
	// MaxAttachmentsCount defines the maximum number of attachments allowed per message.
	MaxAttachmentsCount = 10

	// MaxAttachmentSizeMB is the maximum allowed file size in megabytes.
	MaxAttachmentSizeMB = 5

	// MaxAttachmentSize is the maximum allowed file size in bytes.
	MaxAttachmentSize = MaxAttachmentSizeMB * 1024 * 1024
)

// AllowedMIMETypes defines the set of permitted MIME types for file attachments.
var AllowedMIMETypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/webp":      {},
	"image/gif":       {},
	"application/pdf": {},
}

// ExtToMIME maps file extensions to their corresponding MIME types.
var ExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
}

// validateAttachment checks the declared metadata of one attachment: the size
// must be positive and within bounds, and the file extension must agree with
// an allowed MIME type. The file bytes themselves live in external storage
// and are never inspected here.
func validateAttachment(input store.AttachmentInput) *errs.CustomError {
	if input.FileSize <= 0 {
		return errs.NewError(errs.ErrAttachmentTypeInvalid)
	}

	if input.FileSize > MaxAttachmentSize {
		return errs.NewError(errs.ErrFileSizeTooLarge)
	}

	lowerMimeType := strings.ToLower(input.MimeType)

	if _, ok := AllowedMIMETypes[lowerMimeType]; !ok {
		return errs.NewError(errs.ErrAttachmentTypeInvalid)
	}

	ext := strings.ToLower(filepath.Ext(input.FileName))
	if len(ext) < 2 {
		return errs.NewError(errs.ErrAttachmentTypeInvalid)
	}

	expectedMIME, ok := ExtToMIME[ext]
	if !ok {
		return errs.NewError(errs.ErrAttachmentTypeInvalid)
	}

	if expectedMIME != lowerMimeType {
		return errs.NewError(errs.ErrAttachmentTypeInvalid)
	}

	return nil
}

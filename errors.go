package b2uploader

import (
	gerrors "github.com/goliatone/go-errors"
)

var (
	ErrProviderNotConfigured = gerrors.New("upload provider not configured", gerrors.CategoryInternal).
					WithCode(500).
					WithTextCode("PROVIDER_NOT_CONFIGURED")

	ErrInvalidPath = gerrors.New("invalid path", gerrors.CategoryBadInput).
			WithCode(400).
			WithTextCode("INVALID_PATH")

	ErrFileAccess = gerrors.New("source file not accessible", gerrors.CategoryNotFound).
			WithCode(404).
			WithTextCode("FILE_ACCESS")

	ErrServiceBusy = gerrors.New("storage service busy", gerrors.CategoryExternal).
			WithCode(503).
			WithTextCode("SERVICE_BUSY")

	ErrPartSlotMissing = gerrors.New("part digest missing at finalize", gerrors.CategoryInternal).
				WithCode(500).
				WithTextCode("PART_SLOT_MISSING")

	ErrRetriesExhausted = gerrors.New("upload retries exhausted", gerrors.CategoryExternal).
				WithCode(502).
				WithTextCode("RETRIES_EXHAUSTED")

	ErrUploadAborted = gerrors.New("upload aborted", gerrors.CategoryOperation).
				WithCode(499).
				WithTextCode("UPLOAD_ABORTED")

	ErrBatchAborted = gerrors.New("batch upload aborted", gerrors.CategoryOperation).
			WithCode(502).
			WithTextCode("BATCH_ABORTED")

	ErrSessionNotFound = gerrors.New("large file session not found", gerrors.CategoryNotFound).
				WithCode(404).
				WithTextCode("SESSION_NOT_FOUND")

	ErrSessionExists = gerrors.New("large file session already exists", gerrors.CategoryConflict).
				WithCode(409).
				WithTextCode("SESSION_EXISTS")

	ErrSessionClosed = gerrors.New("large file session already closed", gerrors.CategoryConflict).
				WithCode(409).
				WithTextCode("SESSION_CLOSED")

	ErrInvalidTransition = gerrors.New("invalid large file state transition", gerrors.CategoryConflict).
				WithCode(409).
				WithTextCode("INVALID_TRANSITION")

	ErrPartAlreadyAcked = gerrors.New("part already acknowledged", gerrors.CategoryConflict).
				WithCode(409).
				WithTextCode("PART_ALREADY_ACKED")

	ErrChecksumMismatch = gerrors.New("content digest mismatch", gerrors.CategoryBadInput).
				WithCode(400).
				WithTextCode("CHECKSUM_MISMATCH")

	ErrPermissionDenied = gerrors.New("permission denied", gerrors.CategoryAuthz).
				WithCode(403).
				WithTextCode("PERMISSION_DENIED")
)

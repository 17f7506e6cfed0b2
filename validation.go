package b2uploader

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	gerrors "github.com/goliatone/go-errors"
)

// MaxFileInfoKeyLength is the service limit on custom file info key names.
const MaxFileInfoKeyLength = 50

// SrcLastModifiedInfoKey is the file info entry every upload carries with the
// source modification time. It takes one of the MaxFileInfoEntries slots.
const SrcLastModifiedInfoKey = "src_last_modified_millis"

type Validator struct {
	maxInfoEntries int
	maxNameBytes   int
	checkSource    bool
}

type ValidatorOption func(*Validator)

func WithMaxInfoEntries(n int) ValidatorOption {
	return func(v *Validator) {
		v.maxInfoEntries = n
	}
}

func WithMaxNameBytes(n int) ValidatorOption {
	return func(v *Validator) {
		v.maxNameBytes = n
	}
}

// WithSourceCheck toggles the stat of the source file during validation.
func WithSourceCheck(enabled bool) ValidatorOption {
	return func(v *Validator) {
		v.checkSource = enabled
	}
}

func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		maxInfoEntries: MaxFileInfoEntries,
		maxNameBytes:   MaxFileNameBytes,
		checkSource:    true,
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// ValidateJob checks a job before any network call is made. Failures are
// validation errors and are never retried.
func (v *Validator) ValidateJob(job *Job) error {
	if job == nil {
		return gerrors.NewValidation("upload job validation failed",
			gerrors.FieldError{
				Field:   "job",
				Message: "cannot be nil",
			},
		).WithCode(400).WithTextCode("INVALID_JOB")
	}

	var fields []gerrors.FieldError

	if job.Path == "" {
		fields = append(fields, gerrors.FieldError{
			Field:   "path",
			Message: "source path is required",
		})
	}

	if job.BucketID == "" {
		fields = append(fields, gerrors.FieldError{
			Field:   "bucket_id",
			Message: "bucket id is required",
		})
	}

	if msg := v.nameProblem(job.Name); msg != "" {
		fields = append(fields, gerrors.FieldError{
			Field:   "name",
			Message: msg,
			Value:   job.Name,
		})
	}

	fields = append(fields, v.metadataProblems(job.Metadata)...)

	if len(fields) > 0 {
		return gerrors.NewValidation("upload job validation failed", fields...).
			WithCode(400).
			WithTextCode("INVALID_JOB").
			WithMetadata(map[string]any{
				"path": job.Path,
				"name": job.Name,
			})
	}

	if !v.checkSource {
		return nil
	}

	info, err := os.Stat(job.Path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFileAccess, job.Path, err)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrInvalidPath, job.Path)
	}

	return nil
}

func (v *Validator) nameProblem(name string) string {
	switch {
	case name == "":
		return "object name is required"
	case !utf8.ValidString(name):
		return "object name must be valid UTF-8"
	case len(name) > v.maxNameBytes:
		return fmt.Sprintf("object name exceeds %d bytes", v.maxNameBytes)
	case strings.HasPrefix(name, "/"):
		return "object name cannot start with /"
	case strings.Contains(name, "//"):
		return "object name cannot contain //"
	case containsDotSegment(name):
		return "object name cannot contain .. segments"
	}

	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "object name cannot contain control characters"
		}
	}

	return ""
}

func (v *Validator) metadataProblems(meta map[string]string) []gerrors.FieldError {
	var fields []gerrors.FieldError

	limit := max(v.maxInfoEntries-1, 0)
	if len(meta) > limit {
		fields = append(fields, gerrors.FieldError{
			Field:   "metadata",
			Message: fmt.Sprintf("at most %d entries allowed", limit),
			Value:   len(meta),
		})
	}

	for key := range meta {
		if key == SrcLastModifiedInfoKey {
			fields = append(fields, gerrors.FieldError{
				Field:   "metadata." + key,
				Message: "key is reserved for the source modification time",
			})
			continue
		}
		if msg := infoKeyProblem(key); msg != "" {
			fields = append(fields, gerrors.FieldError{
				Field:   "metadata." + key,
				Message: msg,
				Value:   key,
			})
		}
	}

	return fields
}

func infoKeyProblem(key string) string {
	switch {
	case key == "":
		return "metadata key cannot be empty"
	case len(key) > MaxFileInfoKeyLength:
		return fmt.Sprintf("metadata key exceeds %d characters", MaxFileInfoKeyLength)
	case strings.HasPrefix(strings.ToLower(key), "b2-"):
		return "metadata keys starting with b2- are reserved"
	}

	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return "metadata key may only contain letters, digits, - _ and ."
		}
	}

	return ""
}

func containsDotSegment(name string) bool {
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

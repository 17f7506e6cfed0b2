package b2uploader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gerrors "github.com/goliatone/go-errors"
)

func hasFieldError(t *testing.T, err error, field string) bool {
	t.Helper()

	if !gerrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	validationErrs, ok := gerrors.GetValidationErrors(err)
	if !ok {
		t.Fatal("expected validation errors")
	}

	for _, fieldErr := range validationErrs {
		if fieldErr.Field == field {
			return true
		}
	}
	return false
}

func TestNewValidator(t *testing.T) {
	t.Run("default validator", func(t *testing.T) {
		validator := NewValidator()

		if validator.maxInfoEntries != MaxFileInfoEntries {
			t.Errorf("expected %d info entries, got %d", MaxFileInfoEntries, validator.maxInfoEntries)
		}
		if validator.maxNameBytes != MaxFileNameBytes {
			t.Errorf("expected %d name bytes, got %d", MaxFileNameBytes, validator.maxNameBytes)
		}
		if !validator.checkSource {
			t.Error("expected source check enabled by default")
		}
	})

	t.Run("validator with options", func(t *testing.T) {
		validator := NewValidator(WithMaxInfoEntries(2), WithMaxNameBytes(8), WithSourceCheck(false))

		if validator.maxInfoEntries != 2 || validator.maxNameBytes != 8 || validator.checkSource {
			t.Errorf("options not applied: %+v", validator)
		}
	})
}

func TestValidateJob(t *testing.T) {
	validator := NewValidator(WithSourceCheck(false))

	t.Run("valid job", func(t *testing.T) {
		job := NewJob("/data/clip.mp4", "bucket", WithNamePrefix("videos"), WithMetadata(map[string]string{"author": "x"}))
		if err := validator.ValidateJob(job); err != nil {
			t.Fatalf("expected valid job, got %v", err)
		}
	})

	t.Run("nil job", func(t *testing.T) {
		if !hasFieldError(t, validator.ValidateJob(nil), "job") {
			t.Error("expected job field error")
		}
	})

	t.Run("missing path and bucket", func(t *testing.T) {
		err := validator.ValidateJob(&Job{Name: "a"})
		if !hasFieldError(t, err, "path") || !hasFieldError(t, err, "bucket_id") {
			t.Errorf("expected path and bucket errors, got %v", err)
		}
	})

	names := map[string]string{
		"empty":         "",
		"leading slash": "/abs/file",
		"double slash":  "a//b",
		"dot segment":   "a/../b",
		"control char":  "a\x01b",
		"too long":      strings.Repeat("n", MaxFileNameBytes+1),
		"invalid utf8":  "a\xffb",
	}
	for name, value := range names {
		t.Run("name "+name, func(t *testing.T) {
			job := &Job{Path: "/p", BucketID: "b", Name: value}
			if !hasFieldError(t, validator.ValidateJob(job), "name") {
				t.Errorf("expected name error for %q", value)
			}
		})
	}

	t.Run("metadata leaves a slot for the modification time", func(t *testing.T) {
		meta := make(map[string]string)
		for i := 0; i < MaxFileInfoEntries; i++ {
			meta[fmt.Sprintf("k%d", i)] = "v"
		}
		job := &Job{Path: "/p", BucketID: "b", Name: "n", Metadata: meta}
		if !hasFieldError(t, validator.ValidateJob(job), "metadata") {
			t.Errorf("expected %d entries to be rejected", MaxFileInfoEntries)
		}

		delete(meta, "k0")
		if err := validator.ValidateJob(job); err != nil {
			t.Errorf("expected %d entries to be accepted, got %v", MaxFileInfoEntries-1, err)
		}
	})

	t.Run("reserved modification time key", func(t *testing.T) {
		job := &Job{Path: "/p", BucketID: "b", Name: "n", Metadata: map[string]string{SrcLastModifiedInfoKey: "1"}}
		if !hasFieldError(t, validator.ValidateJob(job), "metadata."+SrcLastModifiedInfoKey) {
			t.Error("expected reserved key error")
		}
	})

	t.Run("too many metadata entries", func(t *testing.T) {
		meta := make(map[string]string)
		for i := 0; i <= MaxFileInfoEntries; i++ {
			meta[fmt.Sprintf("k%d", i)] = "v"
		}
		job := &Job{Path: "/p", BucketID: "b", Name: "n", Metadata: meta}
		if !hasFieldError(t, validator.ValidateJob(job), "metadata") {
			t.Error("expected metadata count error")
		}
	})

	for _, key := range []string{"b2-content-type", "has space", "", strings.Repeat("k", MaxFileInfoKeyLength+1)} {
		t.Run("metadata key "+key, func(t *testing.T) {
			job := &Job{Path: "/p", BucketID: "b", Name: "n", Metadata: map[string]string{key: "v"}}
			if !hasFieldError(t, validator.ValidateJob(job), "metadata."+key) {
				t.Errorf("expected error for key %q", key)
			}
		})
	}
}

func TestValidateJobSource(t *testing.T) {
	validator := NewValidator()
	dir := t.TempDir()

	missing := NewJob(filepath.Join(dir, "missing.bin"), "bucket")
	if err := validator.ValidateJob(missing); !errors.Is(err, ErrFileAccess) {
		t.Fatalf("expected file access error, got %v", err)
	}

	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := validator.ValidateJob(NewJob(filepath.Join(dir, "sub"), "bucket")); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected invalid path for directory, got %v", err)
	}

	regular := writePatternFile(t, "ok.bin", 1)
	if err := validator.ValidateJob(NewJob(regular, "bucket")); err != nil {
		t.Fatalf("expected regular file to pass, got %v", err)
	}
}

// Package policy checks candidate uploads against size and MIME-type limits
// before any network round-trip.
package policy

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/fruitsalade/filebrowser/pkg/models"
)

// DefaultMaxFileSize is the default upload size limit (50 MiB).
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

// DefaultAllowedTypes is the default MIME-type allow-list.
var DefaultAllowedTypes = []string{
	// Documents
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"text/plain",
	"text/csv",

	// Images
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/svg+xml",

	// Archives
	"application/zip",
	"application/x-rar-compressed",
	"application/x-7z-compressed",
}

// Rule names the check that rejected a file.
type Rule string

const (
	RuleSize Rule = "size"
	RuleType Rule = "type"
)

// ViolationError is returned when a file fails a policy rule.
type ViolationError struct {
	Rule  Rule
	File  string
	Size  int64
	Limit int64
	Type  string
}

func (e *ViolationError) Error() string {
	switch e.Rule {
	case RuleSize:
		return fmt.Sprintf("File size exceeds the limit of %s", humanize.IBytes(uint64(e.Limit)))
	default:
		return "File type not allowed"
	}
}

// AsViolation checks if an error is a ViolationError and returns it.
func AsViolation(err error) (*ViolationError, bool) {
	var ve *ViolationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Validator holds an upload policy. The zero value rejects everything.
type Validator struct {
	maxSize int64
	allowed map[string]struct{}
}

// New creates a validator with the given size limit and MIME allow-list.
func New(maxSize int64, allowedTypes []string) *Validator {
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		if n := normalize(t); n != "" {
			allowed[n] = struct{}{}
		}
	}
	return &Validator{maxSize: maxSize, allowed: allowed}
}

// Default returns a validator using DefaultMaxFileSize and DefaultAllowedTypes.
func Default() *Validator {
	return New(DefaultMaxFileSize, DefaultAllowedTypes)
}

// MaxSize returns the configured size limit in bytes.
func (v *Validator) MaxSize() int64 {
	return v.maxSize
}

// Validate returns nil if f may be uploaded. The size rule is checked before
// the type rule and only the first failure is reported.
func (v *Validator) Validate(f models.UploadFile) error {
	if f.Size > v.maxSize {
		return &ViolationError{Rule: RuleSize, File: f.Name, Size: f.Size, Limit: v.maxSize, Type: f.Type}
	}
	if _, ok := v.allowed[normalize(f.Type)]; !ok {
		return &ViolationError{Rule: RuleType, File: f.Name, Size: f.Size, Limit: v.maxSize, Type: f.Type}
	}
	return nil
}

// normalize lowercases a media type and drops parameters such as charset.
func normalize(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return strings.ToLower(t)
}

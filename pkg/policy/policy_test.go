package policy

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/filebrowser/pkg/models"
)

func TestValidate(t *testing.T) {
	v := Default()

	tests := []struct {
		name     string
		file     models.UploadFile
		wantRule Rule
	}{
		{"allowed text", models.UploadFile{Name: "a.txt", Size: 120, Type: "text/plain"}, ""},
		{"exactly at limit", models.UploadFile{Name: "big.pdf", Size: DefaultMaxFileSize, Type: "application/pdf"}, ""},
		{"charset parameter", models.UploadFile{Name: "a.txt", Size: 1, Type: "text/plain; charset=utf-8"}, ""},
		{"upper case type", models.UploadFile{Name: "a.png", Size: 1, Type: "IMAGE/PNG"}, ""},
		{"too large", models.UploadFile{Name: "huge.txt", Size: 60 * 1024 * 1024, Type: "text/plain"}, RuleSize},
		{"one byte over", models.UploadFile{Name: "x.zip", Size: DefaultMaxFileSize + 1, Type: "application/zip"}, RuleSize},
		{"type not allowed", models.UploadFile{Name: "run.exe", Size: 10, Type: "application/x-msdownload"}, RuleType},
		{"empty type", models.UploadFile{Name: "noext", Size: 10}, RuleType},
		{"size wins over type", models.UploadFile{Name: "huge.exe", Size: DefaultMaxFileSize * 2, Type: "application/x-msdownload"}, RuleSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.file)
			if tt.wantRule == "" {
				assert.NoError(t, err)
				return
			}
			ve, ok := AsViolation(err)
			require.True(t, ok, "expected ViolationError, got %v", err)
			assert.Equal(t, tt.wantRule, ve.Rule)
			assert.Equal(t, tt.file.Name, ve.File)
		})
	}
}

func TestViolationMessages(t *testing.T) {
	v := Default()

	err := v.Validate(models.UploadFile{Size: 60 * 1024 * 1024, Type: "text/plain"})
	assert.EqualError(t, err, "File size exceeds the limit of 50 MiB")

	err = v.Validate(models.UploadFile{Size: 1, Type: "video/mp4"})
	assert.EqualError(t, err, "File type not allowed")
}

func TestCustomPolicy(t *testing.T) {
	v := New(1024, []string{"video/mp4", "  "})
	assert.Equal(t, int64(1024), v.MaxSize())

	assert.NoError(t, v.Validate(models.UploadFile{Size: 1024, Type: "video/mp4"}))

	_, ok := AsViolation(v.Validate(models.UploadFile{Size: 1, Type: "text/plain"}))
	assert.True(t, ok)

	_, ok = AsViolation(v.Validate(models.UploadFile{Size: 1, Type: ""}))
	assert.True(t, ok, "blank allow-list entries must not admit untyped files")
}

func TestAsViolationWrapped(t *testing.T) {
	err := fmt.Errorf("upload a.exe: %w", &ViolationError{Rule: RuleType})
	ve, ok := AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, RuleType, ve.Rule)

	_, ok = AsViolation(errors.New("plain"))
	assert.False(t, ok)
}

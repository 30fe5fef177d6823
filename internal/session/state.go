package session

import (
	"errors"

	"github.com/fruitsalade/filebrowser/pkg/models"
)

// State is a point-in-time view of the session.
type State struct {
	// CurrentPath is the directory whose listing is in Entries. "" is the
	// store root.
	CurrentPath string
	Entries     []models.FileEntry
	// Loading is true while any round-trip is outstanding.
	Loading bool
	// Error holds the message of the most recent failed operation.
	Error string
	// UploadProgress is 0-100 while an upload reports bytes, 0 otherwise.
	UploadProgress int
}

func (s State) clone() State {
	entries := make([]models.FileEntry, len(s.Entries))
	copy(entries, s.Entries)
	s.Entries = entries
	return s
}

// UploadResult is the outcome of one file in a batch upload.
type UploadResult struct {
	File models.UploadFile
	Path string
	Size int64
	Err  error
}

// BatchResult aggregates a batch upload. Every file is attempted; no
// success is rolled back because another file failed.
type BatchResult struct {
	Succeeded int
	Failed    int
	Results   []UploadResult
}

// Err joins the per-file failures, or returns nil if every file succeeded.
func (b *BatchResult) Err() error {
	if b.Failed == 0 {
		return nil
	}
	var errs []error
	for _, r := range b.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// Package models contains the data types shared by the client and the session.
package models

import (
	"io"
	"time"
)

// FileEntry is one row of a directory listing.
type FileEntry struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	IsDir    bool      `json:"isDir"`
	Modified time.Time `json:"modified"`
	MimeType string    `json:"mimeType,omitempty"`
}

// UploadFile describes a local file queued for upload.
type UploadFile struct {
	// Name is the leaf name sent as the multipart filename.
	Name string
	// Dir is an optional subdirectory, relative to the upload destination,
	// used for folder-tree uploads.
	Dir  string
	Size int64
	Type string
	// Open returns the file content. It is called once per upload attempt.
	Open func() (io.ReadCloser, error)
}

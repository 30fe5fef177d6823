// Package protocol defines the store API endpoints and request/response types.
package protocol

// Endpoints of the file store HTTP API, relative to the base URL.
const (
	PathFiles       = "/api/files"
	PathFileInfo    = "/api/files/info"
	PathDownload    = "/api/files/download"
	PathUpload      = "/api/upload"
	PathDirectories = "/api/directories"
)

// Multipart field names for POST /api/upload.
const (
	FieldFile = "file"
	FieldPath = "path"
)

// PathRequest is the JSON body for POST /api/directories and DELETE /api/files.
type PathRequest struct {
	Path string `json:"path"`
}

// UploadResponse is returned by POST /api/upload.
type UploadResponse struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

package gdrive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	drive "google.golang.org/api/drive/v3"
)

// RootFolderID addresses the caller's My Drive root. Empty folder and parent
// IDs passed to the client mean this.
const RootFolderID = "root"

// FolderMimeType marks a Drive file as a folder.
const FolderMimeType = "application/vnd.google-apps.folder"

// UploadMetadata is the JSON metadata part of a multipart upload.
type UploadMetadata struct {
	Name    string   `json:"name"`
	Parents []string `json:"parents"`
}

// FolderMetadata is the JSON body of a folder creation request.
// Field order is the wire key order.
type FolderMetadata struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType"`
	Parents  []string `json:"parents"`
}

// Response is the raw outcome of a request. Body is nil when a download was
// streamed to disk.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("gdrive: decoding response: %w", err)
	}

	return nil
}

// File decodes a file resource, as returned by UploadFile and CreateFolder.
func (r *Response) File() (*drive.File, error) {
	var f drive.File
	if err := r.DecodeJSON(&f); err != nil {
		return nil, err
	}

	return &f, nil
}

// FileList decodes a file list, as returned by SearchFile.
func (r *Response) FileList() (*drive.FileList, error) {
	var fl drive.FileList
	if err := r.DecodeJSON(&fl); err != nil {
		return nil, err
	}

	return &fl, nil
}

// DownloadResult pairs the response of DownloadFile with the written path.
// Path is empty unless the status was exactly 200.
type DownloadResult struct {
	Response *Response
	Path     string
}

// marshalJSON encodes v without HTML escaping, so names like "a & b" go over
// the wire verbatim.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("gdrive: encoding metadata: %w", err)
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// orRoot maps an empty folder ID to RootFolderID.
func orRoot(id string) string {
	if id == "" {
		return RootFolderID
	}

	return id
}

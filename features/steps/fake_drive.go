//go:build integration

package steps

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"

	drive "google.golang.org/api/drive/v3"

	"github.com/tonimelisma/gdrive-go/internal/gdrive"
)

// fakeItem is one file or folder held by fakeDrive.
type fakeItem struct {
	file    *drive.File
	content []byte
}

// recordedRequest is what fakeDrive saw for one request.
type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// fakeDrive is an in-memory stand-in for the Drive v3 endpoints the client
// calls. Uploads are served under /upload.
type fakeDrive struct {
	mu         sync.Mutex
	items      map[string]*fakeItem
	nextID     int
	requests   []recordedRequest
	forced     int
	throttleN  int
	lastUpload *uploadCapture
}

// uploadCapture is the decoded multipart body of the last upload.
type uploadCapture struct {
	Metadata gdrive.UploadMetadata
	Content  []byte
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{items: make(map[string]*fakeItem)}
}

func (f *fakeDrive) put(id, name, mimeType string, parents []string, content []byte) *drive.File {
	file := &drive.File{
		Kind:     "drive#file",
		Id:       id,
		Name:     name,
		MimeType: mimeType,
		Parents:  parents,
	}
	f.items[id] = &fakeItem{file: file, content: content}

	return file
}

func (f *fakeDrive) newID() string {
	f.nextID++
	return fmt.Sprintf("fake-%d", f.nextID)
}

func (f *fakeDrive) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.requests)
}

func (f *fakeDrive) lastRequest() (recordedRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.requests) == 0 {
		return recordedRequest{}, false
	}

	return f.requests[len(f.requests)-1], true
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.EscapedPath(),
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})

	if f.throttleN > 0 {
		f.throttleN--
		writeError(w, http.StatusTooManyRequests, "rateLimitExceeded", "slow down")

		return
	}

	if f.forced != 0 {
		w.WriteHeader(f.forced)
		fmt.Fprint(w, "forced")

		return
	}

	path := r.URL.EscapedPath()

	switch {
	case path == "/upload/files" && r.Method == http.MethodPost:
		f.serveUpload(w, r, body)
	case path == "/files" && r.Method == http.MethodGet:
		f.serveSearch(w, r)
	case path == "/files" && r.Method == http.MethodPost:
		f.serveCreate(w, body)
	case strings.HasPrefix(path, "/files/"):
		id, err := url.PathUnescape(strings.TrimPrefix(path, "/files/"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "badRequest", err.Error())
			return
		}

		f.serveItem(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "notFound", "no route for "+path)
	}
}

func (f *fakeDrive) serveUpload(w http.ResponseWriter, r *http.Request, body []byte) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "badContent", err.Error())
		return
	}

	mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	capture := &uploadCapture{}

	for i := 0; ; i++ {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}

		if err != nil {
			writeError(w, http.StatusBadRequest, "badContent", err.Error())
			return
		}

		data, _ := io.ReadAll(part)

		if i == 0 {
			if err := json.Unmarshal(data, &capture.Metadata); err != nil {
				writeError(w, http.StatusBadRequest, "badContent", err.Error())
				return
			}

			continue
		}

		capture.Content = data
	}

	f.lastUpload = capture
	file := f.put(f.newID(), capture.Metadata.Name, "application/octet-stream", capture.Metadata.Parents, capture.Content)
	writeJSON(w, file)
}

func (f *fakeDrive) serveSearch(w http.ResponseWriter, r *http.Request) {
	name, ok := parseNameQuery(r.URL.Query().Get("q"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalidQuery", "unsupported query")
		return
	}

	list := &drive.FileList{Kind: "drive#fileList", Files: []*drive.File{}}

	for _, it := range f.items {
		if it.file.Name == name {
			list.Files = append(list.Files, it.file)
		}
	}

	writeJSON(w, list)
}

func (f *fakeDrive) serveCreate(w http.ResponseWriter, body []byte) {
	var meta gdrive.FolderMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		writeError(w, http.StatusBadRequest, "parseError", err.Error())
		return
	}

	writeJSON(w, f.put(f.newID(), meta.Name, meta.MimeType, meta.Parents, nil))
}

func (f *fakeDrive) serveItem(w http.ResponseWriter, r *http.Request, id string) {
	it, ok := f.items[id]
	if !ok {
		writeError(w, http.StatusNotFound, "notFound", "File not found: "+id+".")
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("alt") == "media":
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(it.content)
	case r.Method == http.MethodDelete:
		delete(f.items, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, it.file)
	}
}

// parseNameQuery extracts the term from name='<term>', undoing the escaping
// Drive queries use for backslashes and quotes.
func parseNameQuery(q string) (string, bool) {
	const prefix, suffix = "name='", "'"

	if !strings.HasPrefix(q, prefix) || !strings.HasSuffix(q, suffix) || len(q) < len(prefix)+len(suffix) {
		return "", false
	}

	inner := q[len(prefix) : len(q)-len(suffix)]

	var b strings.Builder

	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
		}

		b.WriteByte(inner[i])
	}

	return b.String(), true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q,"errors":[{"reason":%q,"message":%q}]}}`,
		status, message, reason, message)
}

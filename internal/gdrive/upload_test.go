package gdrive

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturedUpload is what the test server saw of a multipart upload.
type capturedUpload struct {
	metaFilename    string
	metaContentType string
	metaRaw         []byte
	fileFilename    string
	fileContentType string
	fileHeader      textproto.MIMEHeader
	fileContent     []byte
	formKeys        []string
}

func readPart(t *testing.T, fh *multipart.FileHeader) []byte {
	t.Helper()

	f, err := fh.Open()
	require.NoError(t, err)
	defer f.Close()

	b, err := io.ReadAll(f)
	require.NoError(t, err)

	return b
}

// newUploadServer returns a server that records the multipart body and then
// answers with status and body.
func newUploadServer(t *testing.T, status int, body string, got *capturedUpload, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/files", r.URL.Path)
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data; boundary="))

		if assert.NoError(t, r.ParseMultipartForm(32<<20)) {
			for k := range r.MultipartForm.File {
				got.formKeys = append(got.formKeys, k)
			}

			for k := range r.MultipartForm.Value {
				got.formKeys = append(got.formKeys, k)
			}

			if data := r.MultipartForm.File["data"]; assert.Len(t, data, 1) {
				got.metaFilename = data[0].Filename
				got.metaContentType = data[0].Header.Get("Content-Type")
				got.metaRaw = readPart(t, data[0])
			}

			if file := r.MultipartForm.File["file"]; assert.Len(t, file, 1) {
				got.fileFilename = file[0].Filename
				got.fileContentType = file[0].Header.Get("Content-Type")
				got.fileHeader = file[0].Header
				got.fileContent = readPart(t, file[0])
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func writeLocalFile(t *testing.T, name string, content []byte) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, content, 0o600))

	return p
}

func TestUploadFile_Success(t *testing.T) {
	var (
		got   capturedUpload
		calls atomic.Int32
	)

	srv := newUploadServer(t, http.StatusOK,
		`{"kind":"drive#file","id":"new-id","name":"notes.txt","mimeType":"text/plain"}`, &got, &calls)
	defer srv.Close()

	local := writeLocalFile(t, "local.txt", []byte("some notes\n"))
	client := newTestClient(t, srv.URL)

	resp, err := client.UploadFile(context.Background(), "notes.txt", local, "folder-9")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())

	assert.Equal(t, "metadata", got.metaFilename)
	assert.Equal(t, "application/json;charset=UTF-8", got.metaContentType)

	var meta UploadMetadata
	require.NoError(t, json.Unmarshal(got.metaRaw, &meta))
	assert.Equal(t, UploadMetadata{Name: "notes.txt", Parents: []string{"folder-9"}}, meta)

	assert.Equal(t, "notes.txt", got.fileFilename)
	assert.Equal(t, "text/plain; charset=utf-8", got.fileContentType)
	assert.Equal(t, "some notes\n", string(got.fileContent))

	f, err := resp.File()
	require.NoError(t, err)
	assert.Equal(t, "new-id", f.Id)
	assert.Equal(t, "notes.txt", f.Name)
}

func TestUploadFile_EmptyFolderMeansRoot(t *testing.T) {
	var (
		got   capturedUpload
		calls atomic.Int32
	)

	srv := newUploadServer(t, http.StatusOK, `{"id":"x"}`, &got, &calls)
	defer srv.Close()

	local := writeLocalFile(t, "a.txt", []byte("a"))
	client := newTestClient(t, srv.URL)

	_, err := client.UploadFile(context.Background(), "a.txt", local, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a.txt","parents":["root"]}`, string(got.metaRaw))
}

func TestUploadFile_MetadataIsVerbatim(t *testing.T) {
	var (
		got   capturedUpload
		calls atomic.Int32
	)

	srv := newUploadServer(t, http.StatusOK, `{"id":"x"}`, &got, &calls)
	defer srv.Close()

	local := writeLocalFile(t, "a.txt", []byte("a"))
	client := newTestClient(t, srv.URL)

	_, err := client.UploadFile(context.Background(), "Q1 <draft> & notes.txt", local, "root")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Q1 <draft> & notes.txt","parents":["root"]}`, string(got.metaRaw))
}

func TestUploadFile_ControlCharsInName(t *testing.T) {
	tests := []struct {
		name     string
		remote   string
		filename string
	}{
		{"crlf header injection", "a\r\nX-Injected: yes", "a%0D%0AX-Injected: yes"},
		{"bare newline", "line1\nline2.txt", "line1%0Aline2.txt"},
		{"nul and tab", "a\x00b\tc", "a%00b%09c"},
		{"double quote", `say "hi".txt`, "say %22hi%22.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got   capturedUpload
				calls atomic.Int32
			)

			srv := newUploadServer(t, http.StatusOK, `{"id":"x"}`, &got, &calls)
			defer srv.Close()

			local := writeLocalFile(t, "a.txt", []byte("payload"))
			client := newTestClient(t, srv.URL)

			_, err := client.UploadFile(context.Background(), tt.remote, local, "root")
			require.NoError(t, err)
			assert.Equal(t, int32(1), calls.Load())

			assert.ElementsMatch(t, []string{"data", "file"}, got.formKeys)
			assert.Equal(t, tt.filename, got.fileFilename)
			assert.Equal(t, "payload", string(got.fileContent))
			assert.Empty(t, got.fileHeader.Get("X-Injected"))
			assert.ElementsMatch(t, []string{"Content-Disposition", "Content-Type"}, mapKeys(got.fileHeader))

			var meta UploadMetadata
			require.NoError(t, json.Unmarshal(got.metaRaw, &meta))
			assert.Equal(t, tt.remote, meta.Name)
		})
	}
}

func TestFilenameEscaper(t *testing.T) {
	assert.Equal(t, `back\slash.txt`, filenameEscaper.Replace(`back\slash.txt`))
	assert.Equal(t, "plain name.txt", filenameEscaper.Replace("plain name.txt"))
	assert.Equal(t, "%1F%22", filenameEscaper.Replace("\x1f\""))
}

func mapKeys(h textproto.MIMEHeader) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}

	return keys
}

func TestUploadFile_UnknownExtensionHasNoContentType(t *testing.T) {
	var (
		got   capturedUpload
		calls atomic.Int32
	)

	srv := newUploadServer(t, http.StatusOK, `{"id":"x"}`, &got, &calls)
	defer srv.Close()

	local := writeLocalFile(t, "blob.zzqx9", []byte{1, 2, 3})
	client := newTestClient(t, srv.URL)

	_, err := client.UploadFile(context.Background(), "blob.zzqx9", local, "root")
	require.NoError(t, err)
	assert.Empty(t, got.fileContentType)
	assert.Equal(t, []byte{1, 2, 3}, got.fileContent)
}

func TestUploadFile_LargeFileStreams(t *testing.T) {
	var (
		got   capturedUpload
		calls atomic.Int32
	)

	srv := newUploadServer(t, http.StatusOK, `{"id":"x"}`, &got, &calls)
	defer srv.Close()

	content := bytesOf(5<<20 + 3)
	local := writeLocalFile(t, "big.bin", content)
	client := newTestClient(t, srv.URL)

	_, err := client.UploadFile(context.Background(), "big.bin", local, "root")
	require.NoError(t, err)
	assert.Equal(t, content, got.fileContent)
}

func TestUploadFile_MissingLocalFile(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	missing := filepath.Join(t.TempDir(), "nope.txt")

	resp, err := client.UploadFile(context.Background(), "nope.txt", missing, "root")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocalFileNotFound)
	assert.Contains(t, err.Error(), missing)
	assert.Nil(t, resp)
	assert.Equal(t, int32(0), calls.Load())
}

func TestUploadFile_DirectoryRejected(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	resp, err := client.UploadFile(context.Background(), "d", t.TempDir(), "root")
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.NotErrorIs(t, err, ErrLocalFileNotFound)
	assert.Equal(t, int32(0), calls.Load())
}

func TestUploadFile_RemoteRejection(t *testing.T) {
	var (
		got   capturedUpload
		calls atomic.Int32
	)

	srv := newUploadServer(t, http.StatusForbidden,
		`{"error":{"code":403,"message":"The user's Drive storage quota has been exceeded.",`+
			`"errors":[{"reason":"storageQuotaExceeded"}]}}`, &got, &calls)
	defer srv.Close()

	local := writeLocalFile(t, "a.txt", []byte("a"))
	client := newTestClient(t, srv.URL)

	resp, err := client.UploadFile(context.Background(), "a.txt", local, "root")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "storageQuotaExceeded", apiErr.Reason)
}

func TestUploadFile_NeverRetried(t *testing.T) {
	var (
		got   capturedUpload
		calls atomic.Int32
	)

	srv := newUploadServer(t, http.StatusServiceUnavailable, "", &got, &calls)
	defer srv.Close()

	local := writeLocalFile(t, "a.txt", []byte("a"))
	client := newTestClient(t, srv.URL, WithRetryPolicy(RetryPolicy{MaxRetries: 3}))

	_, err := client.UploadFile(context.Background(), "a.txt", local, "root")
	require.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUploadFile_EarlyResponseDoesNotHang(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	local := writeLocalFile(t, "big.bin", bytesOf(8<<20))
	client := newTestClient(t, srv.URL)

	resp, err := client.UploadFile(context.Background(), "big.bin", local, "root")
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.ErrorIs(t, err, ErrUnauthorized)
	} else {
		assert.Error(t, err)
	}
}

func TestUploadFile_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	local := writeLocalFile(t, "a.txt", []byte("a"))
	client := newTestClient(t, url)

	resp, err := client.UploadFile(context.Background(), "a.txt", local, "root")
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.NotErrorIs(t, err, ErrLocalFileNotFound)
}

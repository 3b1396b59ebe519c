package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
)

// metadataContentType is the Content-Type of the JSON part of an upload.
const metadataContentType = "application/json;charset=UTF-8"

// filenameEscaper encodes a name for the quoted filename parameter of a
// Content-Disposition header the way urllib3 does it: `"` and C0 control
// characters other than ESC become %XX, so a name can never end the header
// line. Everything else, `\` included, is sent as is.
var filenameEscaper = newFilenameEscaper()

func newFilenameEscaper() *strings.Replacer {
	pairs := []string{`"`, "%22"}

	for c := byte(0x00); c < 0x20; c++ {
		if c == 0x1b {
			continue
		}

		pairs = append(pairs, string(rune(c)), fmt.Sprintf("%%%02X", c))
	}

	return strings.NewReplacer(pairs...)
}

// UploadFile uploads the file at localPath as a new Drive file called name
// inside folderID (root when empty). The request is a single multipart POST
// and is never retried.
//
// A missing localPath returns an error wrapping ErrLocalFileNotFound without
// contacting the server.
func (c *Client) UploadFile(ctx context.Context, name, localPath, folderID string) (*Response, error) {
	folderID = orRoot(folderID)

	c.logger.Info("uploading file",
		slog.String("name", name),
		slog.String("local_path", localPath),
		slog.String("folder_id", folderID),
	)

	info, err := os.Stat(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrLocalFileNotFound, localPath)
		}

		return nil, fmt.Errorf("gdrive: stat %s: %w", localPath, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("gdrive: %s is a directory", localPath)
	}

	meta, err := marshalJSON(UploadMetadata{Name: name, Parents: []string{folderID}})
	if err != nil {
		return nil, err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("gdrive: opening %s: %w", localPath, err)
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(localPath))

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	writeDone := make(chan error, 1)

	go func() {
		werr := writeUploadBody(mw, meta, name, contentType, f)
		pw.CloseWithError(werr)
		writeDone <- werr
	}()

	extra := http.Header{"Content-Type": {mw.FormDataContentType()}}

	resp, err := c.send(ctx, http.MethodPost, c.uploadURL+"/files?uploadType=multipart", pr, extra)
	if err != nil {
		pr.CloseWithError(err)
		<-writeDone

		if ctx.Err() != nil {
			return nil, fmt.Errorf("gdrive: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("gdrive: POST /files: %w", err)
	}

	r, err := c.finish(resp)

	// The server may answer before consuming the whole body.
	pr.CloseWithError(io.ErrClosedPipe)
	<-writeDone

	if r != nil {
		c.logger.Debug("upload complete",
			slog.String("name", name),
			slog.Int64("size", info.Size()),
			slog.Int("status", r.StatusCode),
		)
	}

	return r, err
}

// writeUploadBody writes the two-part multipart body: the JSON metadata part
// and the file content part. contentType may be empty, in which case the file
// part carries no Content-Type header.
func writeUploadBody(mw *multipart.Writer, meta []byte, name, contentType string, content io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="data"; filename="metadata"`)
	h.Set("Content-Type", metadataContentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating metadata part: %w", err)
	}

	if _, err := part.Write(meta); err != nil {
		return fmt.Errorf("writing metadata part: %w", err)
	}

	h = make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, filenameEscaper.Replace(name)))

	if contentType != "" {
		h.Set("Content-Type", contentType)
	}

	part, err = mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}

	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("writing file part: %w", err)
	}

	return mw.Close()
}

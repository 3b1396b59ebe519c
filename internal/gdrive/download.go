package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

// DownloadFile fetches the content of fileID and, when the status is exactly
// 200, writes it to localName. A relative localName resolves against the
// client's work directory. Any existing file at that path is replaced.
//
// A non-2xx status returns a DownloadResult with an empty Path together with
// an *APIError. A transport failure returns a nil result.
func (c *Client) DownloadFile(ctx context.Context, fileID, localName string) (*DownloadResult, error) {
	c.logger.Info("downloading file",
		slog.String("file_id", fileID),
		slog.String("local_name", localName),
	)

	dest, err := c.localPath(localName)
	if err != nil {
		return nil, err
	}

	path := "/files/" + url.PathEscape(fileID)

	resp, err := c.doRetry(ctx, http.MethodGet,
		c.apiURL(path, url.Values{"alt": {"media"}}), path, nil, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		r, finErr := c.finish(resp)
		if r == nil {
			return nil, finErr
		}

		c.logger.Debug("download not written",
			slog.String("file_id", fileID),
			slog.Int("status", r.StatusCode),
		)

		return &DownloadResult{Response: r}, finErr
	}
	defer resp.Body.Close()

	n, err := writeFileAtomic(dest, resp.Body)
	if err != nil {
		c.logger.Error("writing download failed",
			slog.String("file_id", fileID),
			slog.String("path", dest),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	c.logger.Debug("download complete",
		slog.String("file_id", fileID),
		slog.String("path", dest),
		slog.Int64("bytes_written", n),
	)

	return &DownloadResult{
		Response: &Response{StatusCode: resp.StatusCode, Header: resp.Header},
		Path:     dest,
	}, nil
}

// localPath resolves name against the work directory, or the process working
// directory when none was configured. Absolute names are returned cleaned.
func (c *Client) localPath(name string) (string, error) {
	if filepath.IsAbs(name) {
		return filepath.Clean(name), nil
	}

	dir := c.workDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("gdrive: resolving working directory: %w", err)
		}

		dir = wd
	}

	return filepath.Join(dir, name), nil
}

// writeFileAtomic streams r into a temp file beside dest, then renames it over
// dest. The result keeps the mode of an existing dest; a new file gets 0666
// less the umask, as a plain create would. The temp file is removed if
// anything fails.
func writeFileAtomic(dest string, r io.Reader) (int64, error) {
	perm, keep := os.FileMode(0o666), false
	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
		perm, keep = info.Mode().Perm(), true
	}

	tmp, err := createTemp(filepath.Dir(dest), "."+filepath.Base(dest), perm)
	if err != nil {
		return 0, fmt.Errorf("gdrive: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()
	success := false

	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return n, fmt.Errorf("gdrive: streaming download content: %w", err)
	}

	// The umask may have narrowed the create mode.
	if keep {
		if err := tmp.Chmod(perm); err != nil {
			return n, fmt.Errorf("gdrive: setting file permissions: %w", err)
		}
	}

	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("gdrive: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return n, fmt.Errorf("gdrive: renaming temp file: %w", err)
	}

	success = true

	return n, nil
}

// createTemp creates a new file named prefix.<random>.partial in dir with the
// given create mode, which the umask applies to. os.CreateTemp always uses 0600.
func createTemp(dir, prefix string, perm os.FileMode) (*os.File, error) {
	for range 10000 {
		name := filepath.Join(dir, prefix+"."+strconv.FormatUint(uint64(rand.Uint32()), 10)+".partial")

		f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
		if errors.Is(err, fs.ErrExist) {
			continue
		}

		return f, err
	}

	return nil, &fs.PathError{Op: "createtemp", Path: filepath.Join(dir, prefix+".*.partial"), Err: fs.ErrExist}
}

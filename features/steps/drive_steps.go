//go:build integration

package steps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/tonimelisma/gdrive-go/internal/gdrive"
)

// driveContext holds per-scenario state: the fake server, the client under
// test, and the outcome of the last operation.
type driveContext struct {
	fake     *fakeDrive
	server   *httptest.Server
	client   *gdrive.Client
	workDir  string
	download *gdrive.DownloadResult
	resp     *gdrive.Response
	err      error
}

// sentinels maps the error names used in scenarios to their sentinels.
var sentinels = map[string]error{
	"bad request":          gdrive.ErrBadRequest,
	"unauthorized":         gdrive.ErrUnauthorized,
	"forbidden":            gdrive.ErrForbidden,
	"not found":            gdrive.ErrNotFound,
	"conflict":             gdrive.ErrConflict,
	"throttled":            gdrive.ErrThrottled,
	"server error":         gdrive.ErrServerError,
	"local file not found": gdrive.ErrLocalFileNotFound,
}

// InitializeDriveScenario registers drive steps. godog calls it once per
// scenario, so each scenario gets fresh state.
func InitializeDriveScenario(ctx *godog.ScenarioContext) {
	d := &driveContext{}

	ctx.Before(func(c context.Context, _ *godog.Scenario) (context.Context, error) {
		dir, err := os.MkdirTemp("", "gdrive-features-*")
		if err != nil {
			return c, err
		}

		d.workDir = dir

		return c, nil
	})

	ctx.After(func(c context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		if d.server != nil {
			d.server.Close()
		}

		return c, os.RemoveAll(d.workDir)
	})

	ctx.Step(`^a fake Drive server$`, d.aFakeDriveServer)
	ctx.Step(`^a client with access token "([^"]*)"$`, d.aClientWithAccessToken)
	ctx.Step(`^a client with access token "([^"]*)" and (\d+) retries$`, d.aClientWithRetries)
	ctx.Step(`^the remote file "([^"]*)" named "([^"]*)" has content "([^"]*)"$`, d.theRemoteFileHasContent)
	ctx.Step(`^the remote folder "([^"]*)" named "([^"]*)"$`, d.theRemoteFolderNamed)
	ctx.Step(`^a local file "([^"]*)" with content "([^"]*)"$`, d.aLocalFileWithContent)
	ctx.Step(`^the server answers every request with status (\d+)$`, d.theServerAnswersWithStatus)
	ctx.Step(`^the server throttles the next (\d+) requests$`, d.theServerThrottles)

	ctx.Step(`^I download "([^"]*)" to "([^"]*)"$`, d.iDownload)
	ctx.Step(`^I upload "([^"]*)" as "([^"]*)" into folder "([^"]*)"$`, d.iUpload)
	ctx.Step(`^I delete file "([^"]*)"$`, d.iDeleteFile)
	ctx.Step(`^I delete folder "([^"]*)"$`, d.iDeleteFolder)
	ctx.Step(`^I create folder "([^"]*)" in "([^"]*)"$`, d.iCreateFolder)
	ctx.Step(`^I search for "([^"]*)"$`, d.iSearchFor)

	ctx.Step(`^the operation succeeds$`, d.theOperationSucceeds)
	ctx.Step(`^the operation fails with "([^"]*)"$`, d.theOperationFailsWith)
	ctx.Step(`^the download returns a local path$`, d.theDownloadReturnsAPath)
	ctx.Step(`^no local path is returned$`, d.noLocalPathIsReturned)
	ctx.Step(`^the local file "([^"]*)" contains "([^"]*)"$`, d.theLocalFileContains)
	ctx.Step(`^the local file "([^"]*)" does not exist$`, d.theLocalFileDoesNotExist)
	ctx.Step(`^the server received (\d+) requests?$`, d.theServerReceivedRequests)
	ctx.Step(`^the upload metadata has name "([^"]*)" and parent "([^"]*)"$`, d.theUploadMetadataHas)
	ctx.Step(`^the uploaded content of "([^"]*)" is "([^"]*)"$`, d.theUploadedContentIs)
	ctx.Step(`^the last request header "([^"]*)" is "([^"]*)"$`, d.theLastRequestHeaderIs)
	ctx.Step(`^the last request query "([^"]*)" is "([^"]*)"$`, d.theLastRequestQueryIs)
	ctx.Step(`^the last request body is:$`, d.theLastRequestBodyIs)
	ctx.Step(`^the remote item "([^"]*)" no longer exists$`, d.theRemoteItemNoLongerExists)
	ctx.Step(`^the search finds (\d+) files?$`, d.theSearchFinds)
}

func (d *driveContext) aFakeDriveServer() error {
	d.fake = newFakeDrive()
	d.server = httptest.NewServer(d.fake)

	return nil
}

func (d *driveContext) newClient(token string, policy gdrive.RetryPolicy) {
	d.client = gdrive.NewClient(token,
		gdrive.WithBaseURL(d.server.URL),
		gdrive.WithUploadURL(d.server.URL+"/upload"),
		gdrive.WithHTTPClient(d.server.Client()),
		gdrive.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		gdrive.WithRetryPolicy(policy),
		gdrive.WithWorkDir(d.workDir),
	)
}

func (d *driveContext) aClientWithAccessToken(token string) error {
	d.newClient(token, gdrive.RetryPolicy{})
	return nil
}

func (d *driveContext) aClientWithRetries(token string, retries int) error {
	d.newClient(token, gdrive.RetryPolicy{
		MaxRetries: retries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	})

	return nil
}

func (d *driveContext) theRemoteFileHasContent(id, name, content string) error {
	d.fake.mu.Lock()
	defer d.fake.mu.Unlock()

	d.fake.put(id, name, "text/plain", []string{gdrive.RootFolderID}, []byte(content))

	return nil
}

func (d *driveContext) theRemoteFolderNamed(id, name string) error {
	d.fake.mu.Lock()
	defer d.fake.mu.Unlock()

	d.fake.put(id, name, gdrive.FolderMimeType, []string{gdrive.RootFolderID}, nil)

	return nil
}

func (d *driveContext) localPath(name string) string {
	return filepath.Join(d.workDir, name)
}

func (d *driveContext) aLocalFileWithContent(name, content string) error {
	return os.WriteFile(d.localPath(name), []byte(content), 0o600)
}

func (d *driveContext) theServerAnswersWithStatus(status int) error {
	d.fake.mu.Lock()
	defer d.fake.mu.Unlock()

	d.fake.forced = status

	return nil
}

func (d *driveContext) theServerThrottles(n int) error {
	d.fake.mu.Lock()
	defer d.fake.mu.Unlock()

	d.fake.throttleN = n

	return nil
}

func (d *driveContext) iDownload(id, name string) error {
	d.download, d.err = d.client.DownloadFile(context.Background(), id, name)
	return nil
}

func (d *driveContext) iUpload(localName, remoteName, folderID string) error {
	d.resp, d.err = d.client.UploadFile(context.Background(), remoteName, d.localPath(localName), folderID)
	return nil
}

func (d *driveContext) iDeleteFile(id string) error {
	d.resp, d.err = d.client.DeleteFile(context.Background(), id)
	return nil
}

func (d *driveContext) iDeleteFolder(id string) error {
	d.resp, d.err = d.client.DeleteFolder(context.Background(), id)
	return nil
}

func (d *driveContext) iCreateFolder(name, parentID string) error {
	d.resp, d.err = d.client.CreateFolder(context.Background(), name, parentID)
	return nil
}

func (d *driveContext) iSearchFor(name string) error {
	d.resp, d.err = d.client.SearchFile(context.Background(), name)
	return nil
}

func (d *driveContext) theOperationSucceeds() error {
	if d.err != nil {
		return fmt.Errorf("expected success, got: %w", d.err)
	}

	return nil
}

func (d *driveContext) theOperationFailsWith(name string) error {
	want, ok := sentinels[name]
	if !ok {
		return fmt.Errorf("unknown error name %q", name)
	}

	if !errors.Is(d.err, want) {
		return fmt.Errorf("expected %v, got: %v", want, d.err)
	}

	return nil
}

func (d *driveContext) theDownloadReturnsAPath() error {
	if d.err != nil {
		return fmt.Errorf("download failed: %w", d.err)
	}

	if d.download == nil || d.download.Path == "" {
		return errors.New("expected a local path")
	}

	return nil
}

func (d *driveContext) noLocalPathIsReturned() error {
	if d.download != nil && d.download.Path != "" {
		return fmt.Errorf("expected no local path, got %q", d.download.Path)
	}

	return nil
}

func (d *driveContext) theLocalFileContains(name, want string) error {
	data, err := os.ReadFile(d.localPath(name))
	if err != nil {
		return err
	}

	if string(data) != want {
		return fmt.Errorf("local file %s: expected %q, got %q", name, want, data)
	}

	return nil
}

func (d *driveContext) theLocalFileDoesNotExist(name string) error {
	_, err := os.Stat(d.localPath(name))
	if err == nil {
		return fmt.Errorf("local file %s exists", name)
	}

	if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

func (d *driveContext) theServerReceivedRequests(n int) error {
	if got := d.fake.requestCount(); got != n {
		return fmt.Errorf("expected %d requests, server received %d", n, got)
	}

	return nil
}

func (d *driveContext) theUploadMetadataHas(name, parent string) error {
	d.fake.mu.Lock()
	defer d.fake.mu.Unlock()

	up := d.fake.lastUpload
	if up == nil {
		return errors.New("no upload received")
	}

	if up.Metadata.Name != name {
		return fmt.Errorf("metadata name: expected %q, got %q", name, up.Metadata.Name)
	}

	if len(up.Metadata.Parents) != 1 || up.Metadata.Parents[0] != parent {
		return fmt.Errorf("metadata parents: expected [%q], got %q", parent, up.Metadata.Parents)
	}

	return nil
}

func (d *driveContext) theUploadedContentIs(_ string, want string) error {
	d.fake.mu.Lock()
	defer d.fake.mu.Unlock()

	if d.fake.lastUpload == nil {
		return errors.New("no upload received")
	}

	if got := string(d.fake.lastUpload.Content); got != want {
		return fmt.Errorf("uploaded content: expected %q, got %q", want, got)
	}

	return nil
}

func (d *driveContext) theLastRequestHeaderIs(key, want string) error {
	req, ok := d.fake.lastRequest()
	if !ok {
		return errors.New("no request received")
	}

	if got := req.Header.Get(key); got != want {
		return fmt.Errorf("header %s: expected %q, got %q", key, want, got)
	}

	return nil
}

func (d *driveContext) theLastRequestQueryIs(key, want string) error {
	req, ok := d.fake.lastRequest()
	if !ok {
		return errors.New("no request received")
	}

	if got := req.Query.Get(key); got != want {
		return fmt.Errorf("query %s: expected %q, got %q", key, want, got)
	}

	return nil
}

func (d *driveContext) theLastRequestBodyIs(doc *godog.DocString) error {
	req, ok := d.fake.lastRequest()
	if !ok {
		return errors.New("no request received")
	}

	want := strings.TrimSpace(doc.Content)
	if got := strings.TrimSpace(string(req.Body)); got != want {
		return fmt.Errorf("request body: expected %s, got %s", want, got)
	}

	return nil
}

func (d *driveContext) theRemoteItemNoLongerExists(id string) error {
	d.fake.mu.Lock()
	defer d.fake.mu.Unlock()

	if _, ok := d.fake.items[id]; ok {
		return fmt.Errorf("remote item %s still exists", id)
	}

	return nil
}

func (d *driveContext) theSearchFinds(n int) error {
	if d.err != nil {
		return fmt.Errorf("search failed: %w", d.err)
	}

	list, err := d.resp.FileList()
	if err != nil {
		return err
	}

	if len(list.Files) != n {
		return fmt.Errorf("expected %d files, got %d", n, len(list.Files))
	}

	return nil
}

package gdrive

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
)

// jsonHeader is added to requests that declare a JSON body.
var jsonHeader = http.Header{"Content-Type": {"application/json"}}

// DeleteFile permanently deletes fileID, bypassing the trash.
// Drive answers 204 No Content on success.
func (c *Client) DeleteFile(ctx context.Context, fileID string) (*Response, error) {
	c.logger.Info("deleting file", slog.String("file_id", fileID))

	return c.deleteItem(ctx, fileID, nil)
}

// DeleteFolder deletes folderID and, on the server side, everything in it.
// The request carries Content-Type: application/json on top of the session
// headers.
func (c *Client) DeleteFolder(ctx context.Context, folderID string) (*Response, error) {
	c.logger.Info("deleting folder", slog.String("folder_id", folderID))

	return c.deleteItem(ctx, folderID, jsonHeader)
}

func (c *Client) deleteItem(ctx context.Context, id string, extra http.Header) (*Response, error) {
	path := "/files/" + url.PathEscape(id)

	resp, err := c.doRetry(ctx, http.MethodDelete, c.apiURL(path, nil), path, nil, extra)
	if err != nil {
		return nil, err
	}

	r, err := c.finish(resp)
	if err == nil {
		c.logger.Debug("deleted item", slog.String("id", id), slog.Int("status", r.StatusCode))
	}

	return r, err
}

// CreateFolder creates a folder called name under parentID (root when empty).
// The response body is the new folder's file resource; see Response.File.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (*Response, error) {
	parentID = orRoot(parentID)

	c.logger.Info("creating folder",
		slog.String("name", name),
		slog.String("parent_id", parentID),
	)

	body, err := marshalJSON(FolderMetadata{
		Name:     name,
		MimeType: FolderMimeType,
		Parents:  []string{parentID},
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.doRetry(ctx, http.MethodPost, c.apiURL("/files", nil), "/files", body, jsonHeader)
	if err != nil {
		return nil, err
	}

	r, err := c.finish(resp)
	if err == nil {
		c.logger.Debug("created folder", slog.String("name", name), slog.Int("status", r.StatusCode))
	}

	return r, err
}

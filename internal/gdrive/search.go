package gdrive

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// queryEscaper escapes a term for a single-quoted Drive query string.
// Replacement is single-pass, so an inserted backslash is never re-escaped.
var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// SearchFile lists files whose name equals name exactly, using the query
// name='<name>'. Only the first page of results is returned.
func (c *Client) SearchFile(ctx context.Context, name string) (*Response, error) {
	c.logger.Info("searching files", slog.String("name", name))

	resp, err := c.doRetry(ctx, http.MethodGet,
		c.apiURL("/files", url.Values{"q": {c.nameQuery(name)}}), "/files", nil, nil)
	if err != nil {
		return nil, err
	}

	r, err := c.finish(resp)
	if err == nil {
		c.logger.Debug("search complete",
			slog.String("name", name),
			slog.Int("bytes", len(r.Body)),
		)
	}

	return r, err
}

// nameQuery builds the Drive query for an exact name match.
func (c *Client) nameQuery(name string) string {
	if !c.literalSearch {
		name = queryEscaper.Replace(name)
	}

	return "name='" + name + "'"
}

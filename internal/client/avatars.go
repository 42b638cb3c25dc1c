package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
)

// UploadAvatar stores body at objectPath ({userId}/{name}.{ext}) and
// returns its public URL.
func (c *Client) UploadAvatar(ctx context.Context, objectPath, contentType string, body io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("path", objectPath); err != nil {
		return "", err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, path.Base(objectPath)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, body); err != nil {
		return "", fmt.Errorf("read avatar: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/profile/avatar", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out struct {
		URL string `json:"url"`
	}
	if err := c.send(req, c.timeout, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// DeleteAvatar removes the object behind publicURL. Deleting an object that
// is already gone succeeds.
func (c *Client) DeleteAvatar(ctx context.Context, publicURL string) error {
	return c.do(ctx, http.MethodDelete, "/api/profile/avatar?url="+url.QueryEscape(publicURL), nil, nil)
}

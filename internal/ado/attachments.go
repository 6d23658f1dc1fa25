package ado

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/lherron/orgsync/internal/domain"
)

// UploadAttachment streams r to the attachment store under name.
func (c *Client) UploadAttachment(ctx context.Context, name string, r io.Reader) (domain.AttachmentRef, error) {
	q := url.Values{"fileName": {name}}
	resp, err := c.send(ctx, http.MethodPost, c.projectURL("wit/attachments", q), contentOctet, r)
	if err != nil {
		return domain.AttachmentRef{}, fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	var ref domain.AttachmentRef
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return domain.AttachmentRef{}, fmt.Errorf("decode upload response: %w", err)
	}
	if ref.ID == "" || ref.URL == "" {
		return domain.AttachmentRef{}, &domain.ParseError{Input: "upload response", Reason: "missing id or url"}
	}
	return ref, nil
}

// DownloadAttachment opens the content of attachment id. The caller closes it.
func (c *Client) DownloadAttachment(ctx context.Context, id string) (io.ReadCloser, error) {
	q := url.Values{"download": {"true"}}
	resp, err := c.send(ctx, http.MethodGet, c.projectURL("wit/attachments/"+url.PathEscape(id), q), "", nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", id, err)
	}
	return resp.Body, nil
}

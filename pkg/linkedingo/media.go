package linkedingo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// UploadMedia uploads an attachment in two steps: register the upload to get
// a one-shot PUT URL and an attachment URN, then PUT the bytes. The returned
// descriptor can be attached to a MessageCreate.
func (c *Client) UploadMedia(ctx context.Context, data []byte, filename, mediaType string) (*MessageAttachmentCreate, error) {
	resp, err := request[struct {
		Value struct {
			URN             URN    `json:"urn"`
			SingleUploadURL string `json:"singleUploadUrl"`
		} `json:"value"`
	}](ctx, c, http.MethodPost, apiBaseURL+"/voyagerMediaUploadMetadata", &reqOptions{
		query: url.Values{"action": {"upload"}},
		jsonBody: map[string]any{
			"mediaUploadType": "MESSAGING_PHOTO_ATTACHMENT",
			"fileSize":        len(data),
			"filename":        filename,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register upload: %w", err)
	} else if resp.Value.SingleUploadURL == "" {
		return nil, fmt.Errorf("upload metadata response contained no upload URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, resp.Value.SingleUploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header = c.buildHeaders(nil)
	uploadResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}
	defer uploadResp.Body.Close()
	if uploadResp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(uploadResp.Body, 1024))
		return nil, fmt.Errorf("failed to upload file: HTTP %d: %s", uploadResp.StatusCode, body)
	}

	return &MessageAttachmentCreate{
		ByteSize:  len(data),
		ID:        resp.Value.URN,
		MediaType: mediaType,
		Name:      filename,
	}, nil
}

// DownloadMedia fetches a media URL with the authenticated cookie jar.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header = c.buildHeaders(nil)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download media: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

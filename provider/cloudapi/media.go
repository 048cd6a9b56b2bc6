package cloudapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wa-platform/core/pkg/apperror"
)

// UploadSessionID is an opaque "upload:<id>" handle returned by
// InitUploadSession and consumed by UploadFile/UploadStatus.
type UploadSessionID string

type uploadSessionResponse struct {
	ID string `json:"id"`
}

type uploadChunkResponse struct {
	FileHandle string `json:"h"`
}

type uploadStatusResponse struct {
	ID         string `json:"id"`
	FileOffset int64  `json:"file_offset"`
}

// InitUploadSession opens a resumable upload session scoped to appID,
// the first of the two calls the Cloud API's resumable upload protocol
// needs before a template header image or document can be attached by
// file handle instead of a public URL.
func (c *Client) InitUploadSession(ctx context.Context, appID, accessToken, fileName string, fileLength int64, fileType string) (UploadSessionID, error) {
	url := fmt.Sprintf("%s/%s/%s/uploads?file_name=%s&file_length=%d&file_type=%s&access_token=%s",
		c.base(), c.version(), appID, fileName, fileLength, fileType, accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", apperror.Internal("cloudapi: build upload session request", err)
	}

	respBody, err := c.doRaw(req)
	if err != nil {
		return "", err
	}
	var resp uploadSessionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", apperror.Internal("cloudapi: unmarshal upload session response", err)
	}
	return UploadSessionID(resp.ID), nil
}

// UploadFile streams r's contents into an open upload session starting
// at offset and returns the resulting file handle. TemplateSend has no
// field for a handle; its header is always sent as a link.
func (c *Client) UploadFile(ctx context.Context, sessionID UploadSessionID, accessToken string, offset int64, r io.Reader) (string, error) {
	url := fmt.Sprintf("%s/%s/%s", c.base(), c.version(), sessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, r)
	if err != nil {
		return "", apperror.Internal("cloudapi: build upload chunk request", err)
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)
	req.Header.Set("file_offset", fmt.Sprintf("%d", offset))

	respBody, err := c.doRaw(req)
	if err != nil {
		return "", err
	}
	var resp uploadChunkResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", apperror.Internal("cloudapi: unmarshal upload chunk response", err)
	}
	return resp.FileHandle, nil
}

// UploadStatus reports how many bytes an interrupted session has
// accepted so far, so a caller can resume from FileOffset.
func (c *Client) UploadStatus(ctx context.Context, sessionID UploadSessionID, accessToken string) (int64, error) {
	url := fmt.Sprintf("%s/%s/%s", c.base(), c.version(), sessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, apperror.Internal("cloudapi: build upload status request", err)
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)

	respBody, err := c.doRaw(req)
	if err != nil {
		return 0, err
	}
	var resp uploadStatusResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, apperror.Internal("cloudapi: unmarshal upload status response", err)
	}
	return resp.FileOffset, nil
}

// doRaw sends a fully-built request and returns the raw response body,
// for the upload endpoints whose paths and auth scheme differ from the
// per-phone-number messages endpoint post() targets.
func (c *Client) doRaw(req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, apperror.Transient("cloudapi: request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.Transient("cloudapi: read response", err)
	}
	if resp.StatusCode >= 300 {
		var errResp errorResponse
		_ = json.Unmarshal(respBody, &errResp)
		msg := errResp.Error.Message
		if msg == "" {
			msg = string(respBody)
		}
		return nil, apperror.Provider(fmt.Sprintf("cloudapi: upload request failed: %s", msg), nil)
	}
	return respBody, nil
}

package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// Header toggling elevated-privilege URL generation. Without it the platform
// only serves files whose visibility permits anonymous access.
const elevatedAccessHeader = "X-Elevated-Access"

var (
	// ErrMissingFileID indicates a download-URL call without a file identifier.
	ErrMissingFileID = errors.New("platform: file id required")
	// ErrNoDownloadURL indicates the platform answered without any usable URL.
	ErrNoDownloadURL = errors.New("platform: no download url returned")
)

type downloadURLResponse struct {
	DownloadURLs []struct {
		AssetKey string `json:"assetKey,omitempty"`
		URL      string `json:"url"`
	} `json:"downloadUrls"`
}

// FilesClient talks to the platform's file service for signature downloads.
type FilesClient struct {
	client *resty.Client
}

// NewFilesClient constructs a file-service client.
func NewFilesClient(cfg ClientConfig) *FilesClient {
	return &FilesClient{client: newRestyClient(cfg)}
}

// GenerateDownloadURL asks the platform for a short-lived download URL for the
// file. When elevated is true the call runs with elevated privileges.
func (c *FilesClient) GenerateDownloadURL(ctx context.Context, fileID string, elevated bool) (string, error) {
	if fileID == "" {
		return "", ErrMissingFileID
	}
	request := c.client.R().SetContext(ctx)
	if elevated {
		request.SetHeader(elevatedAccessHeader, "true")
	}
	resp, err := request.Post(fmt.Sprintf("/v1/files/%s/download-url", fileID))
	if err != nil || resp.StatusCode() != http.StatusOK {
		return "", newUpstreamError("files.generate_download_url", resp, err)
	}
	var result downloadURLResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", newUpstreamError("files.generate_download_url", nil, err)
	}
	if len(result.DownloadURLs) == 0 || result.DownloadURLs[0].URL == "" {
		return "", ErrNoDownloadURL
	}
	return result.DownloadURLs[0].URL, nil
}

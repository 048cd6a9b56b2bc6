package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const driveBaseURL = "https://www.googleapis.com"

// DriveClient implements interpreter.DriveClient. With an API key it hits
// the Drive v3 files.list endpoint directly; without one it falls back to
// scraping a publicly shared folder's HTML listing, which is the only
// route available to a tenant who shared a Drive folder link without
// granting API access.
type DriveClient struct {
	Client *http.Client
	APIKey string // empty triggers the HTML-scrape fallback
}

func NewDriveClient(apiKey string) *DriveClient {
	return &DriveClient{
		Client: &http.Client{Timeout: 15 * time.Second},
		APIKey: apiKey,
	}
}

type driveFileList struct {
	Files []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		WebViewLink string `json:"webViewLink"`
	} `json:"files"`
}

func (d *DriveClient) FindImageURL(ctx context.Context, folderID, fileName string) (string, bool, error) {
	if d.APIKey != "" {
		return d.findViaAPI(ctx, folderID, fileName)
	}
	return d.findViaScrape(ctx, folderID, fileName)
}

func (d *DriveClient) findViaAPI(ctx context.Context, folderID, fileName string) (string, bool, error) {
	q := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false", folderID, escapeDriveQuery(fileName))
	path := fmt.Sprintf("/drive/v3/files?q=%s&fields=files(id,name,webViewLink)&key=%s",
		url.QueryEscape(q), url.QueryEscape(d.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, driveBaseURL+path, nil)
	if err != nil {
		return "", false, err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("integrations: drive lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("integrations: drive lookup returned %d", resp.StatusCode)
	}

	var list driveFileList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", false, fmt.Errorf("integrations: decode drive response: %w", err)
	}
	if len(list.Files) == 0 {
		return "", false, nil
	}
	return fmt.Sprintf("%s/uc?export=view&id=%s", driveBaseURL, list.Files[0].ID), true, nil
}

// findViaScrape parses Google Drive's public folder HTML listing. It only
// sees files Drive renders into that page, and returns the first one whose
// aria-label contains fileName (a substring match, not an exact name),
// without any credential.
func (d *DriveClient) findViaScrape(ctx context.Context, folderID, fileName string) (string, bool, error) {
	listURL := fmt.Sprintf("%s/drive/folders/%s", "https://drive.google.com", folderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return "", false, err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("integrations: drive folder scrape: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("integrations: drive folder scrape returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("integrations: parse drive folder html: %w", err)
	}

	var (
		fileID string
		found  bool
	)
	doc.Find("div[data-id]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		name := strings.TrimSpace(sel.Find("div[aria-label]").AttrOr("aria-label", ""))
		if !strings.Contains(name, fileName) {
			return true
		}
		id, ok := sel.Attr("data-id")
		if !ok {
			return true
		}
		fileID, found = id, true
		return false
	})
	if !found {
		return "", false, nil
	}
	return fmt.Sprintf("https://drive.google.com/uc?export=view&id=%s", fileID), true, nil
}

func escapeDriveQuery(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

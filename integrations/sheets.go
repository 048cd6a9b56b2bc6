package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const sheetsBaseURL = "https://sheets.googleapis.com"

// SheetsClient implements interpreter.SheetsClient against the Google
// Sheets v4 REST API directly, the same raw-REST-over-net/http approach
// used for Drive below — there is no generated Sheets SDK in the
// dependency corpus, and pulling one in for two calls (append, find)
// would be a heavier dependency than the HTTP surface it wraps.
type SheetsClient struct {
	Client      *http.Client
	AccessToken string
}

func NewSheetsClient(accessToken string) *SheetsClient {
	return &SheetsClient{
		Client:      &http.Client{Timeout: 15 * time.Second},
		AccessToken: accessToken,
	}
}

func (s *SheetsClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, sheetsBaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	return s.Client.Do(req)
}

// AppendRow appends a row via the spreadsheets.values.append endpoint,
// using the USER_ENTERED input option so formulas/dates are parsed the
// way they would be from the Sheets UI.
func (s *SheetsClient) AppendRow(ctx context.Context, spreadsheetID, sheet string, row []string) error {
	rng := url.PathEscape(sheet + "!A1")
	path := fmt.Sprintf("/v4/spreadsheets/%s/values/%s:append?valueInputOption=USER_ENTERED", spreadsheetID, rng)
	resp, err := s.do(ctx, http.MethodPost, path, map[string]any{"values": [][]string{row}})
	if err != nil {
		return fmt.Errorf("integrations: sheets append: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("integrations: sheets append returned %d", resp.StatusCode)
	}
	return nil
}

type sheetsValueRange struct {
	Values [][]string `json:"values"`
}

// readAll fetches a sheet's whole value grid, header row first.
func (s *SheetsClient) readAll(ctx context.Context, spreadsheetID, sheet string) ([][]string, error) {
	path := fmt.Sprintf("/v4/spreadsheets/%s/values/%s", spreadsheetID, url.PathEscape(sheet))
	resp, err := s.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("integrations: sheets read: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("integrations: sheets read returned %d", resp.StatusCode)
	}

	var vr sheetsValueRange
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("integrations: decode sheets response: %w", err)
	}
	return vr.Values, nil
}

// FindRow reads the whole sheet and scans for the first row whose named
// column matches value — adequate for the bot-configuration-sized sheets
// this node targets, not for bulk data access.
func (s *SheetsClient) FindRow(ctx context.Context, spreadsheetID, sheet, column, value string) (map[string]string, bool, error) {
	values, err := s.readAll(ctx, spreadsheetID, sheet)
	if err != nil {
		return nil, false, err
	}
	if len(values) == 0 {
		return nil, false, nil
	}

	header := values[0]
	colIdx := -1
	for i, h := range header {
		if h == column {
			colIdx = i
			break
		}
	}
	if colIdx == -1 {
		return nil, false, nil
	}

	for _, row := range values[1:] {
		if colIdx >= len(row) || row[colIdx] != value {
			continue
		}
		out := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				out[h] = row[i]
			}
		}
		return out, true, nil
	}
	return nil, false, nil
}

// ReadRows returns every data row as column-name -> value maps, for the
// list node's Sheets-sourced rows.
func (s *SheetsClient) ReadRows(ctx context.Context, spreadsheetID, sheet string) ([]map[string]string, error) {
	values, err := s.readAll(ctx, spreadsheetID, sheet)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	header := values[0]
	out := make([]map[string]string, 0, len(values)-1)
	for _, row := range values[1:] {
		rowMap := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				rowMap[h] = row[i]
			}
		}
		out = append(out, rowMap)
	}
	return out, nil
}

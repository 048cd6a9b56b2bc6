package interpreter

import "context"

// HTTPClient performs the generic outbound call the api node needs. The
// production implementation wraps net/http; tests supply a stub.
type HTTPClient interface {
	Do(ctx context.Context, method, url string, headers map[string]string, body string) (status int, respBody map[string]any, err error)
}

// SQLExecutor runs a parameterized, tenant-scoped query for the sql node.
// Implementations must reject queries outside the calling tenant's schema
// or row-level scope.
type SQLExecutor interface {
	Query(ctx context.Context, tenantID, query string, params []any) ([]map[string]any, error)
}

// SheetsClient backs the google_sheet, google_sheet_query, and the list
// node's Sheets-sourced rows.
type SheetsClient interface {
	AppendRow(ctx context.Context, spreadsheetID, sheet string, row []string) error
	FindRow(ctx context.Context, spreadsheetID, sheet, column, value string) (map[string]string, bool, error)

	// ReadRows returns every data row (header excluded) as column-name ->
	// value maps, for the list node's Sheets sourcing.
	ReadRows(ctx context.Context, spreadsheetID, sheet string) ([]map[string]string, error)
}

// DriveClient backs the drive_image_lookup node.
type DriveClient interface {
	FindImageURL(ctx context.Context, folderID, fileName string) (string, bool, error)
}

// PaymentClient backs the payment node.
type PaymentClient interface {
	CreateCharge(ctx context.Context, provider, amount, currency, contactID string) (map[string]any, error)
}

// CommerceClient backs the shopify and woocommerce nodes.
type CommerceClient interface {
	Lookup(ctx context.Context, platform, operation, query string) (map[string]any, error)
}

package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"invoicesheet/internal/config"
	"invoicesheet/internal/model"
)

const (
	newTabRows = 1000
	newTabCols = 20
)

// GoogleWriter implements Writer against the Sheets v4 REST API.
// It holds no credentials: the access token comes in per call.
type GoogleWriter struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewGoogleWriter builds the writer from configuration.
func NewGoogleWriter(cfg config.SheetsConfig, logger *zap.Logger) *GoogleWriter {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GoogleWriter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

var _ Writer = (*GoogleWriter)(nil)

// WriteRow resolves or creates the run tab for ts, ensures its header row,
// and appends one data row for the invoice.
func (g *GoogleWriter) WriteRow(ctx context.Context, accessToken, spreadsheetID string, ts time.Time, rec *model.InvoiceRecord) (string, error) {
	tab := TabName(ts)

	titles, err := g.listTabs(ctx, accessToken, spreadsheetID)
	if err != nil {
		return "", err
	}

	exists := false
	for _, t := range titles {
		if t == tab {
			exists = true
			break
		}
	}

	if !exists {
		created, err := g.createTab(ctx, accessToken, spreadsheetID, tab)
		if err != nil {
			return "", err
		}
		// created=false means a concurrent writer won the create race; the
		// tab (and its header) is theirs, fall through to the append.
		if created {
			if err := g.appendRow(ctx, accessToken, spreadsheetID, tab, HeaderRow); err != nil {
				return "", err
			}
		} else {
			g.logger.Info("run tab already created concurrently",
				zap.String("tab", tab))
		}
	}

	row := []string{
		rec.ShopName,
		rec.Date,
		formatAmount(rec.TotalHT),
		formatAmount(rec.TotalTTC),
		formatAmount(rec.VAT),
		serializeItems(rec.Items),
	}
	if err := g.appendRow(ctx, accessToken, spreadsheetID, tab, row); err != nil {
		return "", err
	}
	return tab, nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// serializeItems joins the line items into a single display column.
func serializeItems(items []model.LineItem) string {
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

type spreadsheetInfo struct {
	Sheets []struct {
		Properties struct {
			Title string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

func (g *GoogleWriter) listTabs(ctx context.Context, token, spreadsheetID string) ([]string, error) {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s?fields=sheets.properties.title", g.baseURL, url.PathEscape(spreadsheetID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Msg: "build list request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Msg: "spreadsheet api unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, "list tabs")
	}

	var info spreadsheetInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, &Error{Kind: KindInternal, Msg: "decode spreadsheet info", Err: err}
	}
	titles := make([]string, 0, len(info.Sheets))
	for _, s := range info.Sheets {
		titles = append(titles, s.Properties.Title)
	}
	return titles, nil
}

// createTab issues a batchUpdate addSheet request. The create-if-absent
// check is not atomic against the remote API, so a "tab already exists"
// rejection from a concurrent writer is treated as found, not a failure.
// Returns whether this call actually created the tab.
func (g *GoogleWriter) createTab(ctx context.Context, token, spreadsheetID, tab string) (bool, error) {
	body := map[string]any{
		"requests": []map[string]any{
			{
				"addSheet": map[string]any{
					"properties": map[string]any{
						"title": tab,
						"gridProperties": map[string]any{
							"rowCount":    newTabRows,
							"columnCount": newTabCols,
						},
					},
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return false, &Error{Kind: KindInternal, Msg: "encode batch update", Err: err}
	}

	u := fmt.Sprintf("%s/v4/spreadsheets/%s:batchUpdate", g.baseURL, url.PathEscape(spreadsheetID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return false, &Error{Kind: KindInternal, Msg: "build create request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return false, &Error{Kind: KindInternal, Msg: "spreadsheet api unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}
	if resp.StatusCode == http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		if strings.Contains(strings.ToLower(string(raw)), "already exists") {
			return false, nil
		}
		return false, &Error{Kind: KindInternal, Msg: fmt.Sprintf("create tab %q rejected", tab)}
	}
	return false, statusError(resp, "create tab")
}

func (g *GoogleWriter) appendRow(ctx context.Context, token, spreadsheetID, tab string, row []string) error {
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = v
	}
	body := map[string]any{"values": []any{values}}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return &Error{Kind: KindInternal, Msg: "encode append", Err: err}
	}

	rangeRef := url.PathEscape(tab + "!A:F")
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s:append?valueInputOption=RAW&insertDataOption=INSERT_ROWS",
		g.baseURL, url.PathEscape(spreadsheetID), rangeRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return &Error{Kind: KindInternal, Msg: "build append request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return &Error{Kind: KindInternal, Msg: "spreadsheet api unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp, "append row")
	}
	return nil
}

func statusError(resp *http.Response, op string) *Error {
	msg := fmt.Sprintf("%s: status %d", op, resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &Error{Kind: KindAuth, Msg: msg}
	case resp.StatusCode == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Msg: msg}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimit, Msg: msg}
	default:
		return &Error{Kind: KindInternal, Msg: msg}
	}
}

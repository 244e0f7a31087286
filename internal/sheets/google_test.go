package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"invoicesheet/internal/config"
	"invoicesheet/internal/model"
)

// fakeSheetsAPI emulates the minimal Sheets v4 surface the writer touches:
// spreadsheet get, batchUpdate addSheet, and values append.
type fakeSheetsAPI struct {
	mu        sync.Mutex
	tabs      map[string][][]string
	append429 int // number of append calls to reject with 429 first
}

func newFakeSheetsAPI() *fakeSheetsAPI {
	return &fakeSheetsAPI{tabs: make(map[string][][]string)}
}

func (f *fakeSheetsAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodGet:
			sheets := make([]map[string]any, 0, len(f.tabs))
			for title := range f.tabs {
				sheets = append(sheets, map[string]any{"properties": map[string]any{"title": title}})
			}
			json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})

		case strings.HasSuffix(r.URL.Path, ":batchUpdate"):
			var body struct {
				Requests []struct {
					AddSheet struct {
						Properties struct {
							Title string `json:"title"`
						} `json:"properties"`
					} `json:"addSheet"`
				} `json:"requests"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			title := body.Requests[0].AddSheet.Properties.Title
			if _, ok := f.tabs[title]; ok {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"message": `A sheet with the name "` + title + `" already exists.`},
				})
				return
			}
			f.tabs[title] = nil
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))

		case strings.HasSuffix(r.URL.Path, ":append"):
			if f.append429 > 0 {
				f.append429--
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			// range reference looks like .../values/Run_2024-01-15_1430!A:F:append
			parts := strings.Split(r.URL.Path, "/values/")
			require.Len(t, parts, 2)
			tab := strings.SplitN(parts[1], "!", 2)[0]
			if _, ok := f.tabs[tab]; !ok {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			var body struct {
				Values [][]string `json:"values"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.tabs[tab] = append(f.tabs[tab], body.Values...)
			w.Write([]byte(`{}`))

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestWriter(srv *httptest.Server) *GoogleWriter {
	return NewGoogleWriter(config.SheetsConfig{BaseURL: srv.URL, TimeoutSec: 5}, zap.NewNop())
}

func sampleInvoice() *model.InvoiceRecord {
	return &model.InvoiceRecord{
		ShopName: "Carrefour",
		Date:     "2024-01-15",
		TotalHT:  10.00,
		TotalTTC: 12.00,
		VAT:      2.00,
		Items:    []model.LineItem{{Description: "Lait", Quantity: 2, UnitPrice: 1.20}},
	}
}

func TestTabName(t *testing.T) {
	ts := time.Date(2024, 1, 15, 14, 30, 42, 0, time.UTC)
	assert.Equal(t, "Run_2024-01-15_1430", TabName(ts))

	// same minute bucket, different seconds
	assert.Equal(t, TabName(ts), TabName(ts.Add(10*time.Second)))
	// next bucket
	assert.Equal(t, "Run_2024-01-15_1431", TabName(ts.Add(time.Minute)))
}

func TestGoogleWriter_WriteRow_CreatesTabWithHeader(t *testing.T) {
	api := newFakeSheetsAPI()
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	w := newTestWriter(srv)
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	tab, err := w.WriteRow(context.Background(), "token", "sheet-1", ts, sampleInvoice())

	require.NoError(t, err)
	assert.Equal(t, "Run_2024-01-15_1430", tab)

	rows := api.tabs[tab]
	require.Len(t, rows, 2)
	assert.Equal(t, HeaderRow, rows[0])
	assert.Equal(t, "Carrefour", rows[1][0])
	assert.Equal(t, "12.00", rows[1][3])
	assert.Contains(t, rows[1][5], `"description":"Lait"`)
}

func TestGoogleWriter_WriteRow_ReusesExistingTab(t *testing.T) {
	api := newFakeSheetsAPI()
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	w := newTestWriter(srv)
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	_, err := w.WriteRow(context.Background(), "token", "sheet-1", ts, sampleInvoice())
	require.NoError(t, err)
	_, err = w.WriteRow(context.Background(), "token", "sheet-1", ts.Add(30*time.Second), sampleInvoice())
	require.NoError(t, err)

	rows := api.tabs["Run_2024-01-15_1430"]
	// one header plus two data rows, no duplicate tab
	require.Len(t, api.tabs, 1)
	require.Len(t, rows, 3)
	assert.Equal(t, HeaderRow, rows[0])
}

func TestGoogleWriter_WriteRow_ConcurrentFirstWrite(t *testing.T) {
	api := newFakeSheetsAPI()
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	w := newTestWriter(srv)
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = w.WriteRow(context.Background(), "token", "sheet-1", ts, sampleInvoice())
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// exactly one tab, no row lost
	require.Len(t, api.tabs, 1)
	rows := api.tabs["Run_2024-01-15_1430"]

	headers, data := 0, 0
	for _, row := range rows {
		if assert.ObjectsAreEqual(HeaderRow, row) {
			headers++
		} else {
			data++
		}
	}
	assert.Equal(t, 1, headers)
	assert.Equal(t, 2, data)
}

func TestGoogleWriter_WriteRow_ErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantKind  Kind
		retryable bool
	}{
		{name: "expired token", status: http.StatusUnauthorized, wantKind: KindAuth},
		{name: "misconfigured spreadsheet id", status: http.StatusNotFound, wantKind: KindNotFound},
		{name: "rate limited", status: http.StatusTooManyRequests, wantKind: KindRateLimit, retryable: true},
		{name: "server error", status: http.StatusInternalServerError, wantKind: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			w := newTestWriter(srv)
			_, err := w.WriteRow(context.Background(), "token", "sheet-1", time.Now(), sampleInvoice())

			var sheetErr *Error
			require.ErrorAs(t, err, &sheetErr)
			assert.Equal(t, tt.wantKind, sheetErr.Kind)
			assert.Equal(t, tt.retryable, sheetErr.Retryable())
		})
	}
}

package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"invoicesheet/internal/config"
)

func newTestClient(t *testing.T, srv *httptest.Server) *OpenAIClient {
	t.Helper()
	c, err := NewOpenAIClient(config.ExtractionConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Model:      "gpt-4o",
		TimeoutSec: 5,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func chatReply(content string, totalTokens int) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
		"usage": map[string]any{
			"prompt_tokens":     totalTokens - 100,
			"completion_tokens": 100,
			"total_tokens":      totalTokens,
		},
	}
}

func TestOpenAIClient_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, chatCompletionsPath, r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		assert.Contains(t, req.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,")

		json.NewEncoder(w).Encode(chatReply(
			`{"shop_name":"Carrefour","date":"2024-01-15","total_ht":10.00,"total_ttc":12.00,"vat":2.00,
			  "items":[{"description":"Lait","quantity":2,"unit_price":1.20}]}`, 900))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	rec, usage, err := c.Extract(context.Background(), []byte("png-bytes"), "invoice.png", "image/png")

	require.NoError(t, err)
	assert.Equal(t, "Carrefour", rec.ShopName)
	assert.Equal(t, "2024-01-15", rec.Date)
	assert.InDelta(t, 12.00, rec.TotalTTC, 0.001)
	require.Len(t, rec.Items, 1)
	assert.Equal(t, "Lait", rec.Items[0].Description)
	assert.True(t, rec.TotalsConsistent())
	assert.Equal(t, 900, usage.TotalTokens)
}

func TestOpenAIClient_Extract_FencedAndCoerced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatReply(
			"```json\n{\"shop_name\":\"Total Energies\",\"date\":\"2024-02-01\",\"total_ht\":\"41,67\",\"total_ttc\":\"50,00 €\",\"vat\":\"8,33\",\"items\":[{\"name\":\"SP95\",\"quantity\":0,\"price\":\"50,00\"}]}\n```", 500))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	rec, _, err := c.Extract(context.Background(), []byte("jpg-bytes"), "ticket.jpg", "")

	require.NoError(t, err)
	assert.Equal(t, "Total Energies", rec.ShopName)
	assert.InDelta(t, 50.00, rec.TotalTTC, 0.001)
	assert.InDelta(t, 41.67, rec.TotalHT, 0.001)
	require.Len(t, rec.Items, 1)
	// name/price aliases coerced, zero quantity defaults to 1
	assert.Equal(t, "SP95", rec.Items[0].Description)
	assert.InDelta(t, 1, rec.Items[0].Quantity, 0.001)
	assert.InDelta(t, 50.00, rec.Items[0].UnitPrice, 0.001)
}

func TestOpenAIClient_Extract_Errors(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		fileName  string
		mimeType  string
		wantKind  Kind
		transient bool
	}{
		{
			name:     "unsupported mime rejected before any call",
			fileName: "invoice.docx",
			mimeType: "application/msword",
			wantKind: KindRejected,
		},
		{
			name: "backend 400 is rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			},
			fileName: "invoice.png",
			mimeType: "image/png",
			wantKind: KindRejected,
		},
		{
			name: "backend 500 is transient",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			fileName:  "invoice.png",
			mimeType:  "image/png",
			wantKind:  KindUnavailable,
			transient: true,
		},
		{
			name: "backend 429 is transient",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			fileName:  "invoice.png",
			mimeType:  "image/png",
			wantKind:  KindUnavailable,
			transient: true,
		},
		{
			name: "unparseable content is parse error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(chatReply("the invoice seems unreadable, sorry", 100))
			},
			fileName: "invoice.png",
			mimeType: "image/png",
			wantKind: KindParse,
		},
		{
			name: "empty shape is parse error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(chatReply(`{"items":[]}`, 100))
			},
			fileName: "invoice.png",
			mimeType: "image/png",
			wantKind: KindParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := tt.handler
			if handler == nil {
				handler = func(w http.ResponseWriter, r *http.Request) {
					t.Error("backend should not have been called")
				}
			}
			srv := httptest.NewServer(handler)
			defer srv.Close()

			c := newTestClient(t, srv)
			rec, _, err := c.Extract(context.Background(), []byte("data"), tt.fileName, tt.mimeType)

			assert.Nil(t, rec)
			var extErr *Error
			require.ErrorAs(t, err, &extErr)
			assert.Equal(t, tt.wantKind, extErr.Kind)
			assert.Equal(t, tt.transient, extErr.Transient())
		})
	}
}

func TestParseInvoice_MissingFields(t *testing.T) {
	rec, err := parseInvoice(`{"shop_name":"","total_ttc":0}`)
	assert.Nil(t, rec)
	require.NotNil(t, err)
	assert.Equal(t, KindParse, err.Kind)
}

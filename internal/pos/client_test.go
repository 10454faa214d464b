package pos

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mjfreewayBody = `{
  "data": [
    {"id": 101, "name": "Blue Dream", "category_name": "Flower", "subcategory_name": "Hybrid",
     "strain_name": "Blue Dream", "pricing_type": "weight", "in_stock": true, "is_deleted": false,
     "quantity": "28.5", "uom": "gram",
     "pricing": {"default_price": "12.50", "pricing_group_name": "Top Shelf",
       "weight_prices": [{"id": 7, "name": "1/8", "price": "40", "weight": "3.5"}, {"id": "8", "name": null, "price": 75, "weight": 7}]}},
    {"id": "102", "name": "Pre-roll", "uom": "each", "quantity": 1}
  ],
  "current_page": 0, "last_page": 2, "total": 5
}`

func TestMJFreewayFetchPage(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products", r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("x-mjf-api-key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(mjfreewayBody))
	}))
	defer srv.Close()

	client := NewMJFreewayClient(Options{})
	page, err := client.FetchPage(context.Background(), Target{PosID: "store-9", BaseURL: srv.URL + "/api/", APIKey: "secret", RoomID: "r1"}, 0)
	require.NoError(t, err)

	require.Equal(t, "location=store-9&page=0&roomId=r1", gotQuery)
	require.Equal(t, "secret", gotKey)
	require.Equal(t, 0, page.CurrentPage)
	require.Equal(t, 2, page.LastPage)
	require.Equal(t, 5, page.Total)
	require.True(t, page.HasMore())
	require.Len(t, page.Records, 2)

	first := page.Records[0]
	require.Equal(t, "101", first.PosID)
	require.Equal(t, "Flower", first.Category)
	require.True(t, first.Quantity.Valid)
	require.True(t, first.Quantity.Decimal.Equal(decimal.RequireFromString("28.5")))
	require.NotNil(t, first.Pricing)
	require.True(t, first.Pricing.Price.Equal(decimal.RequireFromString("12.5")))
	require.Len(t, first.Pricing.Tiers, 2)
	require.Equal(t, "7", first.Pricing.Tiers[0].PosID)
	require.Equal(t, "1/8", *first.Pricing.Tiers[0].Name)
	require.Nil(t, first.Pricing.Tiers[1].Name)
	require.NotEmpty(t, first.Raw)

	require.Equal(t, "102", page.Records[1].PosID)
	require.Nil(t, page.Records[1].Pricing)
}

func TestBiotrackFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Empty(t, r.URL.Query().Get("roomId"))
		_, _ = w.Write([]byte(`{"data":[{"productId":"A-1","name":"Gummies","uom":"ea","remainingQuantity":40,
			"isDeleted":true,"price":{"defaultPrice":20,"pricingGroup":"Edibles","tiers":[]}}],
			"current_page":1,"last_page":1,"total":1}`))
	}))
	defer srv.Close()

	client := NewBiotrackClient(Options{})
	page, err := client.FetchPage(context.Background(), Target{PosID: "9", BaseURL: srv.URL, APIKey: "token-1"}, 1)
	require.NoError(t, err)
	require.False(t, page.HasMore())
	require.Len(t, page.Records, 1)
	rec := page.Records[0]
	require.Equal(t, "A-1", rec.PosID)
	require.True(t, rec.Deleted)
	require.Equal(t, "Edibles", rec.Pricing.Group)
	require.Empty(t, rec.Pricing.Tiers)
}

func TestBiotrackFollowsMultiPageCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"productId":"A-1"}],"current_page":0,"last_page":3,"total":4}`))
	}))
	defer srv.Close()

	page, err := NewBiotrackClient(Options{}).FetchPage(context.Background(), Target{PosID: "9", BaseURL: srv.URL}, 0)
	require.NoError(t, err)
	require.Equal(t, 0, page.CurrentPage)
	require.Equal(t, 3, page.LastPage)
	require.Equal(t, 4, page.Total)
	require.True(t, page.HasMore())
}

func TestFetchPageWithoutCursorIsMalformed(t *testing.T) {
	bodies := map[string]string{
		"no cursor":         `{"data":[{"id":1,"productId":"A-1"}],"total":1}`,
		"camel case cursor": `{"data":[{"id":1,"productId":"A-1"}],"currentPage":0,"lastPage":3,"total":4}`,
		"no last page":      `{"data":[{"id":1,"productId":"A-1"}],"current_page":0,"total":4}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			target := Target{PosID: "1", BaseURL: srv.URL}
			for _, client := range []Client{NewBiotrackClient(Options{}), NewMJFreewayClient(Options{})} {
				_, err := client.FetchPage(context.Background(), target, 0)
				require.ErrorIs(t, err, ErrMalformedResponse, client.Vendor())
			}
		})
	}
}

func TestFetchPageRemoteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"maintenance"}`))
	}))
	defer srv.Close()

	_, err := NewMJFreewayClient(Options{}).FetchPage(context.Background(), Target{PosID: "1", BaseURL: srv.URL}, 0)
	var httpErr *RemoteHTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	require.Contains(t, httpErr.Body, "maintenance")
	require.Contains(t, err.Error(), "503")
}

func TestFetchPageTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewBiotrackClient(Options{}).FetchPage(context.Background(), Target{PosID: "1", BaseURL: url}, 0)
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	require.Equal(t, VendorBiotrack, transportErr.Vendor)
}

func TestFetchPageMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	_, err := NewMJFreewayClient(Options{}).FetchPage(context.Background(), Target{PosID: "1", BaseURL: srv.URL}, 0)
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestFetchPageMissingIDIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"name":"nameless"}],"current_page":0,"last_page":0,"total":1}`))
	}))
	defer srv.Close()

	_, err := NewMJFreewayClient(Options{}).FetchPage(context.Background(), Target{PosID: "1", BaseURL: srv.URL}, 0)
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestEmptyFirstPageIsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[],"current_page":0,"last_page":0,"total":0}`))
	}))
	defer srv.Close()

	client := NewMJFreewayClient(Options{})
	target := Target{PosID: "1", BaseURL: srv.URL}

	_, err := client.FetchPage(context.Background(), target, 0)
	require.ErrorIs(t, err, ErrEmptyFirstPage)

	page, err := client.FetchPage(context.Background(), target, 3)
	require.NoError(t, err)
	require.Empty(t, page.Records)
}

func TestFetchPageRequiresBaseURL(t *testing.T) {
	_, err := NewMJFreewayClient(Options{}).FetchPage(context.Background(), Target{PosID: "1"}, 0)
	require.Error(t, err)
}

func TestRegistryResolve(t *testing.T) {
	reg := NewDefaultRegistry(Options{})
	require.Equal(t, []string{VendorBiotrack, VendorMJFreeway}, reg.Vendors())

	c, err := reg.Resolve(" MJFreeway ")
	require.NoError(t, err)
	require.Equal(t, VendorMJFreeway, c.Vendor())

	_, err = reg.Resolve("treez")
	require.ErrorIs(t, err, ErrUnknownVendor)
}

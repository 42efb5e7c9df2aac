package gateway

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"groupbuy/core/state"
	"groupbuy/native/market"
	"groupbuy/storage"
)

func testAccount(b byte) [20]byte {
	var addr [20]byte
	addr[19] = b
	return addr
}

func seedMarket(t *testing.T) http.Handler {
	t.Helper()
	db := storage.NewMemDB()
	eng := market.NewEngine(state.NewManager(db))
	require.NoError(t, eng.ListItem(&market.Listing{
		Name:          "Workstation",
		Category:      "laptops",
		URL:           "deal",
		ImageURL:      "https://img.example/deal",
		Seller:        testAccount(0x5E),
		SellerEmail:   "seller@example.com",
		Price:         big.NewInt(1000),
		WantedPrice:   big.NewInt(900),
		GroupSizeGoal: 10,
	}))
	_, err := eng.JoinOrUpdate("laptops", "deal", testAccount(0xA1), 2, market.ContactData{
		Email:           "buyer@example.com",
		DeliveryAddress: "1 Main St",
	})
	require.NoError(t, err)
	require.NoError(t, eng.SetCredential(testAccount(0xA1), "open sesame"))
	return NewServer(db, nil).Handler()
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGatewayCategories(t *testing.T) {
	handler := seedMarket(t)
	rec := get(t, handler, "/v1/market/categories")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Categories []string `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, []string{"appliances", "laptops", "smartphones", "tablets"}, payload.Categories)
}

func TestGatewayItemsArePublic(t *testing.T) {
	handler := seedMarket(t)
	rec := get(t, handler, "/v1/market/laptops/items")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Items []itemView `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Items, 1)
	require.Equal(t, "deal", payload.Items[0].URL)
	require.Equal(t, uint32(2), payload.Items[0].CurrentGroupSize)

	rec = get(t, handler, "/v1/market/bicycles/items")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGatewayOverviewRequiresCredential(t *testing.T) {
	handler := seedMarket(t)
	account := fmt.Sprintf("0x%040x", 0xA1)

	rec := get(t, handler, "/v1/market/laptops/overview")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(t, handler, "/v1/market/laptops/overview?address="+account+"&key=wrong")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(t, handler, "/v1/market/laptops/overview?address="+account+"&key=open+sesame")
	require.Equal(t, http.StatusOK, rec.Code)

	var overview overviewView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overview))
	require.Len(t, overview.Items, 1)
	require.Len(t, overview.Commitments, 1)
	require.Equal(t, uint32(2), overview.Commitments[0].Quantity)
	require.NotNil(t, overview.Contact)
	require.Equal(t, "buyer@example.com", overview.Contact.Email)
}

func TestGatewayParticipant(t *testing.T) {
	handler := seedMarket(t)
	account := fmt.Sprintf("0x%040x", 0xA1)

	rec := get(t, handler, "/v1/market/laptops/participant?address="+account+"&key=open+sesame")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, handler, "/v1/market/laptops/participant?url=deal&address="+account+"&key=open+sesame")
	require.Equal(t, http.StatusOK, rec.Code)

	var details participantView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	require.Equal(t, account, details.Account)
	require.Equal(t, uint32(2), details.Quantity)
	require.Equal(t, "1 Main St", details.Contact.DeliveryAddress)

	rec = get(t, handler, "/v1/market/laptops/participant?url=other&address="+account+"&key=open+sesame")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"groupbuy/storage"
)

func testAddress(b byte) string {
	return fmt.Sprintf("0x%040x", b)
}

func call(t *testing.T, handler http.Handler, token, method string, params interface{}) rpcResponse {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []json.RawMessage{raw},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeResult(t *testing.T, resp rpcResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func listParams(url string) listItemParams {
	return listItemParams{
		Name:          "Workstation",
		Category:      "laptops",
		URL:           url,
		ImageURL:      "https://img.example/" + url,
		Seller:        testAddress(0x5E),
		SellerEmail:   "seller@example.com",
		Price:         "1000",
		WantedPrice:   "900",
		GroupSizeGoal: 3,
	}
}

func updateParams(url, account string, quantity uint32) updateItemParams {
	return updateItemParams{
		Category: "laptops",
		URL:      url,
		Account:  account,
		Quantity: quantity,
		Contact:  contactPayload{Email: "buyer@example.com", DeliveryAddress: "1 Main St"},
	}
}

func TestRPCListAndSettle(t *testing.T) {
	handler := NewServer(storage.NewMemDB(), "", nil).Handler()

	resp := call(t, handler, "", "market_listItem", listParams("deal"))
	var listed mutationResult
	decodeResult(t, resp, &listed)
	require.Equal(t, "success", listed.Status)
	require.Contains(t, listed.Events, "market.item.listed")
	require.Nil(t, listed.FundTransfer)

	resp = call(t, handler, "", "market_updateItem", updateParams("deal", testAddress(0xA1), 2))
	var joined mutationResult
	decodeResult(t, resp, &joined)
	require.Nil(t, joined.FundTransfer)

	// The third unit reaches the goal and pays the seller.
	resp = call(t, handler, "", "market_updateItem", updateParams("deal", testAddress(0xB2), 1))
	var settled mutationResult
	decodeResult(t, resp, &settled)
	require.NotNil(t, settled.FundTransfer)
	require.Equal(t, testAddress(0x5E), settled.FundTransfer.To)
	require.Equal(t, "2700", settled.FundTransfer.Amount)
	require.Contains(t, settled.Events, "market.item.finalized")

	resp = call(t, handler, "", "market_updateItem", updateParams("deal", testAddress(0xC3), 1))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeNotFound, resp.Error.Code)
}

func TestRPCFailedInvocationLeavesNoWrites(t *testing.T) {
	db := storage.NewMemDB()
	handler := NewServer(db, "", nil).Handler()

	resp := call(t, handler, "", "market_updateItem", updateParams("ghost", testAddress(0xA1), 1))
	require.NotNil(t, resp.Error)
	require.Zero(t, db.Len())
}

func TestRPCBearerAuth(t *testing.T) {
	handler := NewServer(storage.NewMemDB(), "secret-token", nil).Handler()

	resp := call(t, handler, "", "market_listItem", listParams("deal"))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	resp = call(t, handler, "wrong", "market_listItem", listParams("deal"))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	resp = call(t, handler, "secret-token", "market_listItem", listParams("deal"))
	require.Nil(t, resp.Error)
}

func TestRPCGetItemsRequiresCredential(t *testing.T) {
	handler := NewServer(storage.NewMemDB(), "", nil).Handler()
	account := testAddress(0xA1)

	require.Nil(t, call(t, handler, "", "market_listItem", listParams("deal")).Error)
	require.Nil(t, call(t, handler, "", "market_updateItem", updateParams("deal", account, 1)).Error)

	resp := call(t, handler, "", "market_getItems", getItemsParams{
		Category: "laptops", Address: account, Key: "open sesame",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	require.Nil(t, call(t, handler, "", "market_setCredential", setCredentialParams{
		Account: account, Credential: "open sesame",
	}).Error)

	resp = call(t, handler, "", "market_getItems", getItemsParams{
		Category: "laptops", Address: account, Key: "open sesame",
	})
	var overview overviewResult
	decodeResult(t, resp, &overview)
	require.Len(t, overview.Items, 1)
	require.Equal(t, uint32(1), overview.Items[0].CurrentGroupSize)
	require.Len(t, overview.Commitments, 1)
	require.NotNil(t, overview.Contact)
	require.Equal(t, "buyer@example.com", overview.Contact.Email)
}

func TestRPCRejectsMalformedRequests(t *testing.T) {
	handler := NewServer(storage.NewMemDB(), "", nil).Handler()

	resp := call(t, handler, "", "market_frobnicate", struct{}{})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	resp = call(t, handler, "", "market_listItem", map[string]string{"seller": "not-hex"})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var parseResp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parseResp))
	require.NotNil(t, parseResp.Error)
	require.Equal(t, codeParseError, parseResp.Error.Code)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

// A request whose body cannot be read must still land in the request counters.
func TestRPCBodyReadFailureIsCounted(t *testing.T) {
	handler := NewServer(storage.NewMemDB(), "", nil).Handler()
	before := testutil.ToFloat64(requestCounter.WithLabelValues("unknown", "parse_error"))

	req := httptest.NewRequest(http.MethodPost, "/", failingReader{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeParseError, resp.Error.Code)

	after := testutil.ToFloat64(requestCounter.WithLabelValues("unknown", "parse_error"))
	require.Equal(t, before+1, after)
}

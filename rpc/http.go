package rpc

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"groupbuy/core/events"
	"groupbuy/core/state"
	"groupbuy/native/market"
	"groupbuy/observability/logging"
	"groupbuy/storage"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeNotFound       = -32004
	codeServerError    = -32000
)

// Server exposes the settlement engine's mutation surface over JSON-RPC.
// Every mutation runs inside a storage overlay that commits only on success,
// so a failed invocation leaves no partial writes behind.
type Server struct {
	db        storage.Database
	authToken string
	log       *slog.Logger
}

// NewServer creates an RPC server over the provided database. authToken, when
// non-empty, is required as a bearer token on every mutation.
func NewServer(db storage.Database, authToken string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{db: db, authToken: strings.TrimSpace(authToken), log: log}
}

// Handler returns the HTTP handler serving the JSON-RPC endpoint at "/" and
// prometheus metrics at "/metrics".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRPC)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type fundTransferPayload struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type mutationResult struct {
	Status       string               `json:"status"`
	Events       []string             `json:"events,omitempty"`
	FundTransfer *fundTransferPayload `json:"fundTransfer,omitempty"`
}

type listItemParams struct {
	Name          string `json:"name"`
	Category      string `json:"category"`
	URL           string `json:"url"`
	ImageURL      string `json:"imageUrl"`
	Seller        string `json:"seller"`
	SellerEmail   string `json:"sellerEmail"`
	Price         string `json:"price"`
	WantedPrice   string `json:"wantedPrice"`
	GroupSizeGoal uint32 `json:"groupSizeGoal"`
}

type contactPayload struct {
	Email           string `json:"email"`
	DeliveryAddress string `json:"deliveryAddress"`
}

type updateItemParams struct {
	Category string         `json:"category"`
	URL      string         `json:"url"`
	Account  string         `json:"account"`
	Quantity uint32         `json:"quantity"`
	Contact  contactPayload `json:"contact"`
}

type removeItemParams struct {
	Category   string `json:"category"`
	URL        string `json:"url"`
	Requester  string `json:"requester"`
	Credential string `json:"credential"`
}

type setCredentialParams struct {
	Account    string `json:"account"`
	Credential string `json:"credential"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeRPCError(w, nil, codeParseError, "unable to read request body")
		observeRequest("unknown", "parse_error", start)
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCError(w, nil, codeParseError, "invalid JSON payload")
		observeRequest("unknown", "parse_error", start)
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeRPCError(w, req.ID, codeInvalidRequest, "unsupported jsonrpc version")
		observeRequest(req.Method, "invalid_request", start)
		return
	}

	if isMutation(req.Method) && !s.authorized(r) {
		writeRPCError(w, req.ID, codeUnauthorized, "unauthorized")
		observeRequest(req.Method, "unauthorized", start)
		return
	}

	result, rpcErr := s.dispatch(&req)
	if rpcErr != nil {
		s.log.Warn("rpc request failed", "method", req.Method, "code", rpcErr.Code, "error", rpcErr.Message)
		writeRPCError(w, req.ID, rpcErr.Code, rpcErr.Message)
		observeRequest(req.Method, "error", start)
		return
	}
	writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result})
	observeRequest(req.Method, "ok", start)
}

func isMutation(method string) bool {
	switch method {
	case "market_listItem", "market_updateItem", "market_removeItem", "market_setCredential":
		return true
	}
	return false
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.authToken)) == 1
}

func (s *Server) dispatch(req *rpcRequest) (interface{}, *rpcError) {
	switch req.Method {
	case "market_listItem":
		return s.listItem(req)
	case "market_updateItem":
		return s.updateItem(req)
	case "market_removeItem":
		return s.removeItem(req)
	case "market_setCredential":
		return s.setCredential(req)
	case "market_getItems":
		return s.getItems(req)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
}

func decodeParams(req *rpcRequest, out interface{}) *rpcError {
	if len(req.Params) != 1 {
		return &rpcError{Code: codeInvalidParams, Message: "expected exactly one params object"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &rpcError{Code: codeInvalidParams, Message: "malformed params: " + err.Error()}
	}
	return nil
}

func parseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(trimmed) != 40 {
		return addr, fmt.Errorf("address must be 20 hex bytes")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("address must be hex encoded")
	}
	copy(addr[:], raw)
	return addr, nil
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("amount must be a base-10 integer")
	}
	return amount, nil
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

// eventLog collects the event types emitted during one invocation so the
// response can report them, mirroring the original handle log.
type eventLog struct {
	types []string
}

func (l *eventLog) Emit(ev events.Event) { l.types = append(l.types, ev.EventType()) }

// invoke runs fn against a fresh engine over a per-invocation overlay. The
// overlay commits only when fn succeeds; any error discards every tentative
// write.
func (s *Server) invoke(fn func(eng *market.Engine) (*market.FundTransfer, error)) (*mutationResult, error) {
	overlay := storage.NewOverlay(s.db)
	eng := market.NewEngine(state.NewManager(overlay))
	log := &eventLog{}
	eng.SetEmitter(log)

	transfer, err := fn(eng)
	if err != nil {
		overlay.Discard()
		return nil, err
	}
	if err := overlay.Commit(); err != nil {
		return nil, err
	}
	result := &mutationResult{Status: "success", Events: log.types}
	if transfer != nil {
		result.FundTransfer = &fundTransferPayload{
			To:     formatAddress(transfer.To),
			Amount: transfer.Amount.String(),
		}
	}
	return result, nil
}

func (s *Server) listItem(req *rpcRequest) (interface{}, *rpcError) {
	var params listItemParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "seller: " + err.Error()}
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "price: " + err.Error()}
	}
	wantedPrice, err := parseAmount(params.WantedPrice)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "wantedPrice: " + err.Error()}
	}
	result, err := s.invoke(func(eng *market.Engine) (*market.FundTransfer, error) {
		return nil, eng.ListItem(&market.Listing{
			Name:          params.Name,
			Category:      params.Category,
			URL:           params.URL,
			ImageURL:      params.ImageURL,
			Seller:        seller,
			SellerEmail:   params.SellerEmail,
			Price:         price,
			WantedPrice:   wantedPrice,
			GroupSizeGoal: params.GroupSizeGoal,
		})
	})
	if err != nil {
		return nil, marketError(err)
	}
	return result, nil
}

func (s *Server) updateItem(req *rpcRequest) (interface{}, *rpcError) {
	var params updateItemParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "account: " + err.Error()}
	}
	result, err := s.invoke(func(eng *market.Engine) (*market.FundTransfer, error) {
		return eng.JoinOrUpdate(params.Category, params.URL, account, params.Quantity, market.ContactData{
			Email:           params.Contact.Email,
			DeliveryAddress: params.Contact.DeliveryAddress,
		})
	})
	if err != nil {
		return nil, marketError(err)
	}
	s.log.Info("commitment updated",
		"category", params.Category,
		"url", params.URL,
		"address", params.Account,
		"quantity", params.Quantity,
		logging.MaskField("email", params.Contact.Email),
	)
	return result, nil
}

func (s *Server) removeItem(req *rpcRequest) (interface{}, *rpcError) {
	var params removeItemParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	requester, err := parseAddress(params.Requester)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "requester: " + err.Error()}
	}
	result, err := s.invoke(func(eng *market.Engine) (*market.FundTransfer, error) {
		return nil, eng.RemoveItem(params.Category, params.URL, requester, params.Credential)
	})
	if err != nil {
		return nil, marketError(err)
	}
	return result, nil
}

func (s *Server) setCredential(req *rpcRequest) (interface{}, *rpcError) {
	var params setCredentialParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "account: " + err.Error()}
	}
	result, err := s.invoke(func(eng *market.Engine) (*market.FundTransfer, error) {
		return nil, eng.SetCredential(account, params.Credential)
	})
	if err != nil {
		return nil, marketError(err)
	}
	s.log.Info("credential updated",
		"address", params.Account,
		logging.MaskField("credential", params.Credential),
	)
	return result, nil
}

type getItemsParams struct {
	Category string `json:"category"`
	Address  string `json:"address"`
	Key      string `json:"key"`
}

func (s *Server) getItems(req *rpcRequest) (interface{}, *rpcError) {
	var params getItemsParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	account, err := parseAddress(params.Address)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "address: " + err.Error()}
	}
	eng := market.NewEngine(state.NewManager(s.db))
	if err := eng.VerifyCredential(account, params.Key); err != nil {
		return nil, marketError(err)
	}
	overview, err := eng.AccountOverview(params.Category, account)
	if err != nil {
		return nil, marketError(err)
	}
	return overviewPayload(overview), nil
}

func marketError(err error) *rpcError {
	switch {
	case errors.Is(err, market.ErrUnknownCategory),
		errors.Is(err, market.ErrInvalidListing),
		errors.Is(err, market.ErrItemExists),
		errors.Is(err, market.ErrZeroQuantityJoin),
		errors.Is(err, market.ErrCommitmentNotFound):
		return &rpcError{Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, market.ErrItemNotFound), errors.Is(err, market.ErrItemInactive):
		return &rpcError{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, market.ErrAuthenticationFailed):
		return &rpcError{Code: codeUnauthorized, Message: err.Error()}
	default:
		return &rpcError{Code: codeServerError, Message: err.Error()}
	}
}

type itemViewPayload struct {
	Name             string `json:"name"`
	Category         string `json:"category"`
	URL              string `json:"url"`
	ImageURL         string `json:"imageUrl"`
	Seller           string `json:"seller"`
	SellerEmail      string `json:"sellerEmail"`
	Price            string `json:"price"`
	WantedPrice      string `json:"wantedPrice"`
	GroupSizeGoal    uint32 `json:"groupSizeGoal"`
	CurrentGroupSize uint32 `json:"currentGroupSize"`
}

type commitmentPayload struct {
	URL      string `json:"url"`
	Quantity uint32 `json:"quantity"`
}

type overviewResult struct {
	Items       []itemViewPayload   `json:"items"`
	Commitments []commitmentPayload `json:"commitments"`
	Contact     *contactPayload     `json:"contact,omitempty"`
}

func overviewPayload(overview *market.AccountOverview) *overviewResult {
	result := &overviewResult{
		Items:       make([]itemViewPayload, 0, len(overview.Items)),
		Commitments: make([]commitmentPayload, 0, len(overview.Commitments)),
	}
	for _, item := range overview.Items {
		result.Items = append(result.Items, itemViewPayload{
			Name:             item.Listing.Name,
			Category:         item.Listing.Category,
			URL:              item.Listing.URL,
			ImageURL:         item.Listing.ImageURL,
			Seller:           formatAddress(item.Listing.Seller),
			SellerEmail:      item.Listing.SellerEmail,
			Price:            item.Listing.Price.String(),
			WantedPrice:      item.Listing.WantedPrice.String(),
			GroupSizeGoal:    item.Listing.GroupSizeGoal,
			CurrentGroupSize: item.CurrentGroupSize,
		})
	}
	for _, commitment := range overview.Commitments {
		result.Commitments = append(result.Commitments, commitmentPayload{
			URL:      commitment.URL,
			Quantity: commitment.Quantity,
		})
	}
	if overview.Contact != nil {
		result.Contact = &contactPayload{
			Email:           overview.Contact.Email,
			DeliveryAddress: overview.Contact.DeliveryAddress,
		}
	}
	return result
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	writeJSON(w, http.StatusOK, rpcResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Package gateway serves the read-only REST surface of the marketplace.
// Mutations go through the JSON-RPC endpoint; the gateway only answers
// queries, gating account-scoped reads behind the caller's credential.
package gateway

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"groupbuy/core/state"
	"groupbuy/native/market"
	"groupbuy/storage"
)

// Server answers marketplace queries over HTTP.
type Server struct {
	db  storage.Database
	log *slog.Logger
}

// NewServer creates a gateway over the provided database.
func NewServer(db storage.Database, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{db: db, log: log}
}

// Handler builds the chi router for the query surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1/market", func(mr chi.Router) {
		mr.Get("/categories", s.handleCategories)
		mr.Get("/{category}/items", s.handleItems)
		mr.Get("/{category}/overview", s.handleOverview)
		mr.Get("/{category}/participant", s.handleParticipant)
	})

	return r
}

func (s *Server) engine() *market.Engine {
	return market.NewEngine(state.NewManager(s.db))
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"categories": market.Categories()})
}

// handleItems lists a category's open items with their current group sizes.
// Listing data is public; no credential is required here.
func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	items, err := s.engine().CategoryItems(category)
	if err != nil {
		s.writeError(w, err)
		return
	}
	payload := make([]itemView, 0, len(items))
	for _, item := range items {
		payload = append(payload, itemViewFrom(item))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": payload})
}

// handleOverview returns the caller's items, commitments, and contact data
// for one category. The address and key query parameters must match a stored
// credential.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	account, eng, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	overview, err := eng.AccountOverview(category, account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overviewFrom(overview))
}

// handleParticipant returns one participant record on an item the caller
// committed to, identified by the url query parameter.
func (s *Server) handleParticipant(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload("url query parameter is required"))
		return
	}
	account, eng, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	details, found, err := eng.ItemParticipant(category, url, account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, errorPayload("no commitment on this item"))
		return
	}
	writeJSON(w, http.StatusOK, participantView{
		Account: formatAddress(details.Account),
		Contact: contactView{
			Email:           details.Contact.Email,
			DeliveryAddress: details.Contact.DeliveryAddress,
		},
		Quantity: details.Quantity,
	})
}

// authenticate resolves the address and key query parameters and verifies the
// credential. On failure it writes the response itself and returns ok=false.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) ([20]byte, *market.Engine, bool) {
	var account [20]byte
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	key := r.URL.Query().Get("key")
	if address == "" || key == "" {
		writeJSON(w, http.StatusUnauthorized, errorPayload("address and key query parameters are required"))
		return account, nil, false
	}
	account, err := parseAddress(address)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload("address: "+err.Error()))
		return account, nil, false
	}
	eng := s.engine()
	if err := eng.VerifyCredential(account, key); err != nil {
		s.writeError(w, err)
		return account, nil, false
	}
	return account, eng, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, market.ErrUnknownCategory):
		status = http.StatusBadRequest
	case errors.Is(err, market.ErrItemNotFound),
		errors.Is(err, market.ErrItemInactive),
		errors.Is(err, market.ErrCommitmentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, market.ErrAuthenticationFailed):
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		s.log.Error("gateway query failed", "error", err)
	}
	writeJSON(w, status, errorPayload(err.Error()))
}

type itemView struct {
	Name             string `json:"name"`
	Category         string `json:"category"`
	URL              string `json:"url"`
	ImageURL         string `json:"imageUrl"`
	Seller           string `json:"seller"`
	Price            string `json:"price"`
	WantedPrice      string `json:"wantedPrice"`
	GroupSizeGoal    uint32 `json:"groupSizeGoal"`
	CurrentGroupSize uint32 `json:"currentGroupSize"`
}

func itemViewFrom(item market.ItemView) itemView {
	return itemView{
		Name:             item.Listing.Name,
		Category:         item.Listing.Category,
		URL:              item.Listing.URL,
		ImageURL:         item.Listing.ImageURL,
		Seller:           formatAddress(item.Listing.Seller),
		Price:            item.Listing.Price.String(),
		WantedPrice:      item.Listing.WantedPrice.String(),
		GroupSizeGoal:    item.Listing.GroupSizeGoal,
		CurrentGroupSize: item.CurrentGroupSize,
	}
}

type contactView struct {
	Email           string `json:"email"`
	DeliveryAddress string `json:"deliveryAddress"`
}

type commitmentView struct {
	URL      string `json:"url"`
	Quantity uint32 `json:"quantity"`
}

type participantView struct {
	Account  string      `json:"account"`
	Contact  contactView `json:"contact"`
	Quantity uint32      `json:"quantity"`
}

type overviewView struct {
	Items       []itemView       `json:"items"`
	Commitments []commitmentView `json:"commitments"`
	Contact     *contactView     `json:"contact,omitempty"`
}

func overviewFrom(overview *market.AccountOverview) overviewView {
	view := overviewView{
		Items:       make([]itemView, 0, len(overview.Items)),
		Commitments: make([]commitmentView, 0, len(overview.Commitments)),
	}
	for _, item := range overview.Items {
		view.Items = append(view.Items, itemViewFrom(item))
	}
	for _, commitment := range overview.Commitments {
		view.Commitments = append(view.Commitments, commitmentView{
			URL:      commitment.URL,
			Quantity: commitment.Quantity,
		})
	}
	if overview.Contact != nil {
		view.Contact = &contactView{
			Email:           overview.Contact.Email,
			DeliveryAddress: overview.Contact.DeliveryAddress,
		}
	}
	return view
}

func parseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(trimmed) != 40 {
		return addr, fmt.Errorf("must be 20 hex bytes")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("must be hex encoded")
	}
	copy(addr[:], raw)
	return addr, nil
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func errorPayload(message string) map[string]string {
	return map[string]string{"error": message}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

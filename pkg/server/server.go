package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"evmarket/pkg/market"
	"evmarket/pkg/models"
	"evmarket/pkg/utils"
	"evmarket/pkg/watcher"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Market is the part of the session the API drives.
type Market interface {
	ContractAddress() common.Address
	Snapshot() models.Snapshot
	Subscribe() market.Subscriber
	Unsubscribe(market.Subscriber)
	Verify(ctx context.Context) error
	CheckContract(ctx context.Context) error
	CheckNetwork(ctx context.Context) (string, error)
	SelectAccount(ctx context.Context, account common.Address) error
	List(ctx context.Context, name, price string) (common.Hash, error)
	Purchase(ctx context.Context, id uint64, price string) (common.Hash, error)
	Transfer(ctx context.Context, id uint64, to string) (common.Hash, error)
}

type Server struct {
	market   Market
	watcher  *watcher.Watcher
	decimals int

	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	router  *mux.Router
	handler http.Handler
}

// NewServer builds the API for m. w may be nil.
func NewServer(m Market, w *watcher.Watcher, decimals int) *Server {
	s := &Server{
		market:   m,
		watcher:  w,
		decimals: decimals,
		clients:  make(map[*websocket.Conn]bool),
		router:   mux.NewRouter(),
	}
	s.routes()
	s.handler = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/items", s.handleItems).Methods("GET")
	api.HandleFunc("/owned", s.handleOwned).Methods("GET")
	api.HandleFunc("/items", s.handleList).Methods("POST")
	api.HandleFunc("/items/{id}/purchase", s.handlePurchase).Methods("POST")
	api.HandleFunc("/items/{id}/transfer", s.handleTransfer).Methods("POST")
	api.HandleFunc("/verify", s.handleVerify).Methods("POST")
	api.HandleFunc("/check/contract", s.handleCheckContract).Methods("POST")
	api.HandleFunc("/check/network", s.handleCheckNetwork).Methods("POST")
	api.HandleFunc("/account", s.handleSelectAccount).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWS)
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start(port int) error {
	go s.listenToMarket()
	if s.watcher != nil {
		go s.listenToWatcher()
	}

	log.Info("API server listening", "port", port)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps a session error onto an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var opErr *market.OpError
	if errors.As(err, &opErr) {
		resp.Kind = opErr.Kind.Error()
	}
	writeJSON(w, statusFor(err), resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrInvalidInput), errors.Is(err, market.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrUserRejected):
		return http.StatusForbidden
	case errors.Is(err, market.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, market.ErrGasOrFunds), errors.Is(err, market.ErrContractExecution):
		return http.StatusUnprocessableEntity
	case errors.Is(err, market.ErrContractNotFound), errors.Is(err, market.ErrInterfaceMismatch):
		return http.StatusBadGateway
	case errors.Is(err, market.ErrNoWallet), errors.Is(err, market.ErrNotConnected),
		errors.Is(err, market.ErrWalletNotConnected):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.items(s.market.Snapshot().Catalog))
}

func (s *Server) handleOwned(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.items(s.market.Snapshot().Owned))
}

type listRequest struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

type purchaseRequest struct {
	Price string `json:"price"`
}

type transferRequest struct {
	To string `json:"to"`
}

type accountRequest struct {
	Address string `json:"address"`
}

type txResponse struct {
	Status string `json:"status"`
	TxHash string `json:"tx_hash,omitempty"`
}

// opContext detaches a transaction from the request so a client hanging up
// does not abandon it halfway through confirmation.
func opContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func txDone(w http.ResponseWriter, hash common.Hash) {
	resp := txResponse{Status: "ok"}
	if hash != (common.Hash{}) {
		resp.TxHash = hash.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	hash, err := s.market.List(opContext(r), req.Name, req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	txDone(w, hash)
}

func itemID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid item ID"})
		return 0, false
	}
	return id, true
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	hash, err := s.market.Purchase(opContext(r), id, req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	txDone(w, hash)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	hash, err := s.market.Transfer(opContext(r), id, req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	txDone(w, hash)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if err := s.market.Verify(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleCheckContract(w http.ResponseWriter, r *http.Request) {
	if err := s.market.CheckContract(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.status().Diagnostics)
}

func (s *Server) handleCheckNetwork(w http.ResponseWriter, r *http.Request) {
	name, err := s.market.CheckNetwork(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"network": name})
}

func (s *Server) handleSelectAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	if !utils.IsValidAddress(req.Address) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid account address", Kind: market.ErrInvalidAddress.Error()})
		return
	}
	if err := s.market.SelectAccount(r.Context(), common.HexToAddress(req.Address)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// Register and send the initial state under the lock so broadcasts
	// never write concurrently.
	s.mu.Lock()
	s.clients[conn] = true
	_ = conn.WriteJSON(map[string]interface{}{
		"type": "initial",
		"data": s.status(),
	})
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToMarket() {
	sub := s.market.Subscribe()
	defer s.market.Unsubscribe(sub)

	for event := range sub {
		s.broadcast(event)
	}
}

func (s *Server) listenToWatcher() {
	sub := s.watcher.Subscribe()
	defer s.watcher.Unsubscribe(sub)

	for event := range sub {
		s.broadcast(wsEvent{Type: string(event.Type), Data: event.Data})
	}
}

type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

func (s *Server) broadcast(event interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}

// itemDTO carries the exact ether price; purchases must send PriceEth, not
// the rounded PriceDisplay.
type itemDTO struct {
	ID           uint64 `json:"id"`
	Name         string `json:"name"`
	PriceWei     string `json:"price_wei"`
	PriceEth     string `json:"price_eth"`
	PriceDisplay string `json:"price_display"`
	Seller       string `json:"seller"`
	Owner        string `json:"owner"`
	IsSold       bool   `json:"is_sold"`
}

type diagnosticsDTO struct {
	ContractAddress string     `json:"contract_address"`
	ContractCode    string     `json:"contract_code,omitempty"`
	ContractChecked bool       `json:"contract_checked"`
	NetworkName     string     `json:"network_name,omitempty"`
	LastLoad        *time.Time `json:"last_load,omitempty"`
	LastLoadError   string     `json:"last_load_error,omitempty"`
	LastTxHash      string     `json:"last_tx_hash,omitempty"`
	LatencyMS       []int64    `json:"latency_ms,omitempty"`
}

type statusDTO struct {
	ContractAddress string              `json:"contract_address"`
	Status          string              `json:"status"`
	ChainID         string              `json:"chain_id,omitempty"`
	Network         string              `json:"network,omitempty"`
	Account         string              `json:"account,omitempty"`
	WalletFound     bool                `json:"wallet_found"`
	Pending         bool                `json:"pending"`
	Operation       string              `json:"operation,omitempty"`
	Phase           string              `json:"phase"`
	Notification    models.Notification `json:"notification"`
	ItemCount       int                 `json:"item_count"`
	OwnedCount      int                 `json:"owned_count"`
	Diagnostics     diagnosticsDTO      `json:"diagnostics"`
}

func (s *Server) items(items []models.Item) []itemDTO {
	out := make([]itemDTO, 0, len(items))
	for _, it := range items {
		out = append(out, itemDTO{
			ID:           it.ID,
			Name:         it.Name,
			PriceWei:     weiString(it),
			PriceEth:     utils.FormatEther(it.PriceWei),
			PriceDisplay: utils.FormatEtherDecimals(it.PriceWei, s.decimals),
			Seller:       it.Seller.Hex(),
			Owner:        it.Owner.Hex(),
			IsSold:       it.IsSold,
		})
	}
	return out
}

func weiString(it models.Item) string {
	if it.PriceWei == nil {
		return "0"
	}
	return it.PriceWei.Dec()
}

func (s *Server) status() statusDTO {
	snap := s.market.Snapshot()
	dto := statusDTO{
		ContractAddress: s.market.ContractAddress().Hex(),
		Status:          snap.Status.String(),
		Network:         snap.Connection.NetworkName,
		WalletFound:     snap.WalletFound,
		Pending:         snap.Pending,
		Operation:       string(snap.Operation),
		Phase:           string(snap.Phase),
		Notification:    snap.Notification,
		ItemCount:       len(snap.Catalog),
		OwnedCount:      len(snap.Owned),
	}
	if snap.Connection.ChainID != nil {
		dto.ChainID = snap.Connection.ChainID.String()
	}
	if snap.Connection.HasAccount {
		dto.Account = snap.Connection.Account.Hex()
	}

	d := snap.Diagnostics
	dto.Diagnostics = diagnosticsDTO{
		ContractAddress: d.ContractAddress.Hex(),
		ContractChecked: d.ContractChecked,
		NetworkName:     d.NetworkName,
		LastLoadError:   d.LastLoadError,
	}
	if len(d.ContractCode) > 0 {
		dto.Diagnostics.ContractCode = "0x" + hex.EncodeToString(d.ContractCode)
	}
	if !d.LastLoad.IsZero() {
		t := d.LastLoad
		dto.Diagnostics.LastLoad = &t
	}
	if d.LastTxHash != (common.Hash{}) {
		dto.Diagnostics.LastTxHash = d.LastTxHash.Hex()
	}
	if s.watcher != nil {
		for _, l := range s.watcher.Latencies() {
			dto.Diagnostics.LatencyMS = append(dto.Diagnostics.LatencyMS, l.Milliseconds())
		}
	}
	return dto
}

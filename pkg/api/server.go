package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
	"github.com/uhyunpark/tradepost/pkg/app/core/market"
	"github.com/uhyunpark/tradepost/pkg/app/core/orderbook"
	"github.com/uhyunpark/tradepost/pkg/app/exchange"
)

// Exchange is the part of the exchange the API serves.
type Exchange interface {
	SubmitOrder(ctx context.Context, req exchange.OrderRequest) (engine.Result, error)
	CancelOrder(ctx context.Context, id string) (orderbook.Order, error)
	GetOrder(id string) (orderbook.Order, error)
	OpenOrders(instrument, owner string) ([]orderbook.Order, error)
	Depth(ctx context.Context, instrument string, n int) (orderbook.Depth, error)
	Fills(instrument string, afterSeq uint64, limit int) ([]engine.Fill, error)
	Instruments() []market.Instrument
	Instrument(id string) (market.Instrument, error)
}

const (
	requestTimeout = 5 * time.Second
	defaultFills   = 100
	maxFills       = 1000
)

// Server handles REST API and WebSocket connections
type Server struct {
	x        Exchange
	router   *mux.Router
	hub      *Hub
	log      *zap.SugaredLogger
	origins  []string
	gatherer prometheus.Gatherer
	http     *http.Server
}

type ServerConfig struct {
	Addr        string
	CORSOrigins []string
	Gatherer    prometheus.Gatherer // nil disables /metrics
	Logger      *zap.SugaredLogger
}

func NewServer(x Exchange, hub *Hub, cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	s := &Server{
		x:        x,
		router:   mux.NewRouter(),
		hub:      hub,
		log:      cfg.Logger,
		origins:  cfg.CORSOrigins,
		gatherer: cfg.Gatherer,
	}
	s.setupRoutes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Instrument endpoints
	api.HandleFunc("/instruments", s.handleGetInstruments).Methods("GET")
	api.HandleFunc("/instruments/{id}", s.handleGetInstrument).Methods("GET")
	api.HandleFunc("/instruments/{id}/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/instruments/{id}/fills", s.handleGetFills).Methods("GET")
	api.HandleFunc("/instruments/{id}/orders", s.handleGetOpenOrders).Methods("GET")

	// Order endpoints
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleCancelOrder).Methods("DELETE")

	if s.hub != nil {
		s.router.HandleFunc("/ws", s.handleWebSocket)
	}
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Infow("api_server_starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetInstruments(w http.ResponseWriter, r *http.Request) {
	ins := s.x.Instruments()
	response := make([]InstrumentInfo, 0, len(ins))
	for _, in := range ins {
		response = append(response, instrumentInfo(in))
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleGetInstrument(w http.ResponseWriter, r *http.Request) {
	in, err := s.x.Instrument(mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, instrumentInfo(in))
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	in, err := s.x.Instrument(mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	depth, err := queryInt(r, "depth", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_query", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	book, err := s.x.Depth(ctx, in.ID, depth)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, BookSnapshot{
		Instrument: in.ID,
		Bids:       priceLevels(in, book.Bids),
		Asks:       priceLevels(in, book.Asks),
		Timestamp:  time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetFills(w http.ResponseWriter, r *http.Request) {
	in, err := s.x.Instrument(mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	after, err := queryInt(r, "after", 0)
	if err != nil || after < 0 {
		respondError(w, http.StatusBadRequest, "invalid_query", "after must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit", defaultFills)
	if err != nil || limit <= 0 || limit > maxFills {
		respondError(w, http.StatusBadRequest, "invalid_query", "limit must be between 1 and 1000")
		return
	}

	fills, err := s.x.Fills(in.ID, uint64(after), limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, fillInfos(in, fills))
}

func (s *Server) handleGetOpenOrders(w http.ResponseWriter, r *http.Request) {
	in, err := s.x.Instrument(mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	orders, err := s.x.OpenOrders(in.ID, r.URL.Query().Get("owner"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	response := make([]OrderInfo, 0, len(orders))
	for _, o := range orders {
		response = append(response, orderInfo(in, o))
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	in, err := s.x.Instrument(req.Instrument)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	order, err := orderRequest(in, req)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	res, err := s.x.SubmitOrder(ctx, order)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	s.log.Debugw("order_submitted",
		"order_id", res.Order.ID,
		"instrument", in.ID,
		"status", res.Order.Status.String(),
		"fills", len(res.Fills))

	respondJSON(w, http.StatusCreated, SubmitOrderResponse{
		Order: orderInfo(in, res.Order),
		Fills: fillInfos(in, res.Fills),
	})
}

func orderRequest(in market.Instrument, req SubmitOrderRequest) (exchange.OrderRequest, error) {
	invalid := func(err error) (exchange.OrderRequest, error) {
		return exchange.OrderRequest{}, errors.Join(engine.ErrInvalidOrder, err)
	}
	side, err := orderbook.ParseSide(req.Side)
	if err != nil {
		return invalid(err)
	}
	typ, err := orderbook.ParseOrderType(req.Type)
	if err != nil {
		return invalid(err)
	}
	tif, err := orderbook.ParseTimeInForce(req.TimeInForce)
	if err != nil {
		return invalid(err)
	}
	price := orderbook.NoPrice
	if req.Price != "" {
		ticks, err := in.PriceToTicks(req.Price)
		if err != nil {
			return invalid(err)
		}
		price = orderbook.LimitAt(ticks)
	}
	out := exchange.OrderRequest{
		ID:         req.ID,
		Instrument: in.ID,
		Owner:      req.Owner,
		Side:       side,
		Type:       typ,
		TIF:        tif,
		Qty:        req.Qty,
		Price:      price,
	}
	if req.GoodTill != nil {
		out.GoodTill = *req.GoodTill
	}
	return out, nil
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.x.GetOrder(mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	in, err := s.x.Instrument(o.Instrument)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderInfo(in, o))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	o, err := s.x.CancelOrder(ctx, mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	in, err := s.x.Instrument(o.Instrument)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderInfo(in, o))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

// errorStatus maps domain errors to an HTTP status and a stable error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrInvalidOrder), errors.Is(err, market.ErrInvalidPrice):
		return http.StatusBadRequest, "invalid_order"
	case errors.Is(err, engine.ErrInstrumentUnknown):
		return http.StatusNotFound, "instrument_unknown"
	case errors.Is(err, engine.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found"
	case errors.Is(err, engine.ErrOrderNotCancellable):
		return http.StatusConflict, "order_not_cancellable"
	case errors.Is(err, engine.ErrInstrumentHalted), errors.Is(err, engine.ErrEngineInvariantViolation):
		return http.StatusServiceUnavailable, "instrument_halted"
	case errors.Is(err, engine.ErrEngineStopped):
		return http.StatusServiceUnavailable, "engine_stopped"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Warnw("api_request_failed", "code", code, "err", err)
	}
	respondError(w, status, code, err.Error())
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code string, message string) {
	respondJSON(w, status, ErrorResponse{Error: code, Message: message})
}

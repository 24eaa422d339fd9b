// Package api exposes the order lifecycle operations over REST and pushes
// lifecycle events over WebSocket. Handlers marshal requests and map
// errors to status codes; nothing else.
package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/limitrelay/limitrelay/pkg/book"
	"github.com/limitrelay/limitrelay/pkg/exec"
	"github.com/limitrelay/limitrelay/pkg/feed"
	"github.com/limitrelay/limitrelay/pkg/gas"
	"github.com/limitrelay/limitrelay/pkg/strategy"
)

type Server struct {
	store       *book.Store
	engine      *strategy.Engine
	coordinator *exec.Coordinator
	router      *mux.Router
	hub         *Hub
	logger      *zap.SugaredLogger
	origins     []string
}

func NewServer(store *book.Store, engine *strategy.Engine, coordinator *exec.Coordinator, origins []string, logger *zap.SugaredLogger) *Server {
	s := &Server{
		store:       store,
		engine:      engine,
		coordinator: coordinator,
		router:      mux.NewRouter(),
		hub:         NewHub(logger),
		logger:      logger,
		origins:     origins,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders/conditional", s.handleCreateConditional).Methods("POST")
	api.HandleFunc("/orders/dynamic", s.handleCreateDynamic).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/execute", s.handleExecute).Methods("POST")
	api.HandleFunc("/orders/{id}/estimate", s.handleEstimate).Methods("POST")
	api.HandleFunc("/orders/{id}/evaluate", s.handleEvaluate).Methods("POST")
	api.HandleFunc("/tx/{hash}", s.handleTxStatus).Methods("GET")
	api.HandleFunc("/sweep", s.handleSweep).Methods("POST")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	s.router.HandleFunc("/ws", s.hub.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.logger.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// Handlers
// ==============================

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body", nil)
		return
	}

	id, err := s.store.Create(req.toOrder())
	if err != nil {
		s.respondMapped(w, err)
		return
	}
	o, _ := s.store.Get(id)

	s.hub.Publish("order_created", toOrderResp(o))
	respondJSON(w, http.StatusCreated, toOrderResp(o))
}

func (s *Server) handleCreateConditional(w http.ResponseWriter, r *http.Request) {
	var req conditionalReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body", nil)
		return
	}

	o, err := s.engine.CreateConditional(req.toOrder(), strategy.ConditionalParams{
		TriggerPrice: req.TriggerPrice,
		Condition:    book.TriggerCondition(req.TriggerCondition),
		ExpiryTime:   req.ExpiryTime,
	})
	if err != nil {
		s.respondMapped(w, err)
		return
	}

	s.hub.Publish("order_created", toOrderResp(o))
	respondJSON(w, http.StatusCreated, toOrderResp(o))
}

func (s *Server) handleCreateDynamic(w http.ResponseWriter, r *http.Request) {
	var req dynamicReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body", nil)
		return
	}

	o, err := s.engine.CreateDynamic(req.toOrder(), strategy.DynamicParams{
		BasePrice:          req.BasePrice,
		AdjustmentPercent:  req.AdjustmentPercent,
		AdjustmentInterval: req.AdjustmentInterval,
		MaxAdjustments:     req.MaxAdjustments,
	})
	if err != nil {
		s.respondMapped(w, err)
		return
	}

	s.hub.Publish("order_created", toOrderResp(o))
	respondJSON(w, http.StatusCreated, toOrderResp(o))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.store.Get(mux.Vars(r)["id"])
	if err != nil {
		s.respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResp(o))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner := q.Get("owner")
	if owner == "" {
		respondError(w, http.StatusBadRequest, "owner query parameter is required", nil)
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	page, _ := strconv.Atoi(q.Get("page"))

	orders := s.store.ListByOwner(owner, limit, page)
	out := make([]orderResp, len(orders))
	for i, o := range orders {
		out[i] = toOrderResp(o)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body", nil)
		return
	}

	o, err := s.coordinator.CancelOrder(r.Context(), mux.Vars(r)["id"], req.Owner)
	if err != nil {
		s.respondMapped(w, err)
		return
	}

	s.hub.Publish("order_cancelled", toOrderResp(o))
	respondJSON(w, http.StatusOK, toOrderResp(o))
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeReq
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "malformed request body", nil)
			return
		}
	}

	ov, err := req.FeeOverrides.toOverrides()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	o, err := s.coordinator.ExecuteOnchain(r.Context(), mux.Vars(r)["id"], ov)
	if err != nil {
		s.respondMapped(w, err)
		return
	}

	s.hub.Publish("order_executed", toOrderResp(o))
	respondJSON(w, http.StatusOK, toOrderResp(o))
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req executeReq
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "malformed request body", nil)
			return
		}
	}

	ov, err := req.FeeOverrides.toOverrides()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	est, err := s.coordinator.EstimateGas(r.Context(), mux.Vars(r)["id"], ov)
	if err != nil {
		s.respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, estimateResp{
		GasLimit:             est.GasLimit,
		Multiplier:           est.Multiplier,
		GasPrice:             bigString(est.GasPrice),
		MaxPriorityFeePerGas: bigString(est.MaxPriorityFeePerGas),
		MaxFeePerGas:         bigString(est.MaxFeePerGas),
		TotalCost:            bigString(est.TotalCost),
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body", nil)
		return
	}
	id := mux.Vars(r)["id"]

	var out strategy.Outcome
	var err error
	switch req.Kind {
	case "conditional":
		out, err = s.engine.EvaluateConditional(r.Context(), id)
	case "dynamic":
		out, err = s.engine.EvaluateDynamic(r.Context(), id)
	case "time":
		out, err = s.engine.EvaluateTime(r.Context(), id, req.TimeThreshold)
	case "market":
		out, err = s.engine.EvaluateMarket(r.Context(), id, feed.Trend(req.MarketCondition))
	default:
		respondError(w, http.StatusBadRequest, "kind must be conditional, dynamic, time or market", nil)
		return
	}
	if err != nil {
		s.respondMapped(w, err)
		return
	}

	respondJSON(w, http.StatusOK, outcomeResp{
		Kind:   string(out.Kind),
		Reason: out.Reason,
		Score:  out.Score,
		Order:  toOrderResp(out.Order),
	})
}

func (s *Server) handleTxStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.coordinator.GetTransactionStatus(r.Context(), mux.Vars(r)["hash"])
	if err != nil {
		s.respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	n := s.store.SweepExpired()
	if n > 0 {
		s.hub.Publish("orders_expired", sweepResp{Expired: n})
	}
	respondJSON(w, http.StatusOK, sweepResp{Expired: n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.store.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// Mapping helpers
// ==============================

func (r createOrderReq) toOrder() book.Order {
	hops := make([]book.RouteHop, len(r.Route))
	for i, h := range r.Route {
		hops[i] = book.RouteHop{
			FromAsset: h.FromAsset,
			ToAsset:   h.ToAsset,
			InAmount:  h.InAmount,
			OutAmount: h.OutAmount,
			Protocol:  h.Protocol,
		}
	}
	return book.Order{
		FromAsset:  r.FromAsset,
		ToAsset:    r.ToAsset,
		FromAmount: r.FromAmount,
		ToAmount:   r.ToAmount,
		Side:       book.Side(r.Side),
		Owner:      r.Owner,
		ChainID:    r.ChainID,
		Deadline:   r.Deadline,
		Route:      hops,
	}
}

func (f feeOverridesReq) toOverrides() (gas.Overrides, error) {
	var ov gas.Overrides
	var err error
	if ov.GasPrice, err = parseWei(f.GasPrice, "gasPrice"); err != nil {
		return gas.Overrides{}, err
	}
	if ov.MaxPriorityFeePerGas, err = parseWei(f.MaxPriorityFeePerGas, "maxPriorityFeePerGas"); err != nil {
		return gas.Overrides{}, err
	}
	if ov.MaxFeePerGas, err = parseWei(f.MaxFeePerGas, "maxFeePerGas"); err != nil {
		return gas.Overrides{}, err
	}
	return ov, nil
}

func parseWei(s, field string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errors.New(field + " must be a non-negative integer wei amount")
	}
	return v, nil
}

func toOrderResp(o book.Order) orderResp {
	hops := make([]routeHopReq, len(o.Route))
	for i, h := range o.Route {
		hops[i] = routeHopReq{
			FromAsset: h.FromAsset,
			ToAsset:   h.ToAsset,
			InAmount:  h.InAmount,
			OutAmount: h.OutAmount,
			Protocol:  h.Protocol,
		}
	}
	resp := orderResp{
		ID:          o.ID,
		FromAsset:   o.FromAsset,
		ToAsset:     o.ToAsset,
		FromAmount:  o.FromAmount,
		ToAmount:    o.ToAmount,
		Side:        string(o.Side),
		Owner:       o.Owner,
		ChainID:     o.ChainID,
		CreatedAt:   o.CreatedAt,
		Deadline:    o.Deadline,
		Status:      string(o.Status),
		TxHash:      o.TxHash,
		GasEstimate: o.GasEstimate,
		GasPrice:    o.GasPrice,
		Route:       hops,
	}
	if o.Strategy != nil {
		resp.Strategy = o.Strategy.Kind()
	}
	return resp
}

// respondMapped translates core errors to HTTP status codes.
func (s *Server) respondMapped(w http.ResponseWriter, err error) {
	var ve *book.ValidationError
	if errors.As(err, &ve) {
		respondError(w, http.StatusBadRequest, "validation failed", ve.Reasons)
		return
	}

	switch {
	case errors.Is(err, book.ErrNotFound), errors.Is(err, exec.ErrReceiptNotFound):
		respondError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, book.ErrUnauthorized):
		respondError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, book.ErrInvalidState), errors.Is(err, exec.ErrExpired), errors.Is(err, strategy.ErrAdjustmentLimit):
		respondError(w, http.StatusConflict, err.Error(), nil)
	default:
		var ce *exec.Error
		if errors.As(err, &ce) && (ce.Kind == exec.KindInfra || ce.Kind == exec.KindOnchain) {
			respondError(w, http.StatusBadGateway, err.Error(), nil)
			return
		}
		s.logger.Errorw("request_failed", "err", err)
		respondError(w, http.StatusInternalServerError, err.Error(), nil)
	}
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string, reasons []string) {
	respondJSON(w, status, errorResp{Error: msg, Reasons: reasons})
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

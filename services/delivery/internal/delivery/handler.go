package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const MaxBodyBytes = 1 << 20

const (
	ViewCustomer  = "customer"
	ViewCourier   = "courier"
	ViewAvailable = "available"
	ViewAdmin     = "admin"
)

type HandlerDeps struct {
	Lifecycle  *Lifecycle
	Dispatcher *Dispatcher
	Carts      *CartService
	Menus      *MenuService
	Feed       *OrderFeed
	Clock      func() time.Time
	// Location is where "today" is computed for daily stats.
	Location *time.Location
}

type Handler struct {
	lifecycle  *Lifecycle
	dispatcher *Dispatcher
	carts      *CartService
	menus      *MenuService
	feed       *OrderFeed
	now        func() time.Time
	loc        *time.Location
	keepalive  time.Duration
	logger     aqm.Logger
	config     *aqm.Config
	tlm        *telemetry.HTTP
}

func NewHandler(deps HandlerDeps, config *aqm.Config, logger aqm.Logger) *Handler {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	now := deps.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		lifecycle:  deps.Lifecycle,
		dispatcher: deps.Dispatcher,
		carts:      deps.Carts,
		menus:      deps.Menus,
		feed:       deps.Feed,
		now:        now,
		loc:        loc,
		keepalive:  30 * time.Second,
		logger:     logger,
		config:     config,
		tlm:        telemetry.NewHTTP(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/stream", h.StreamOrders)
		r.Get("/{id}", h.GetOrder)
		r.Post("/{id}/confirm", h.ConfirmOrder)
		r.Post("/{id}/prepare", h.StartPreparing)
		r.Post("/{id}/ready", h.MarkReady)
		r.Post("/{id}/accept", h.AcceptOrder)
		r.Post("/{id}/reject", h.RejectOrder)
		r.Post("/{id}/en-route", h.MarkEnRoute)
		r.Post("/{id}/deliver", h.DeliverOrder)
		r.Post("/{id}/cancel", h.CancelOrder)
	})

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddCartItem)
		r.Put("/items/{itemID}", h.SetCartQuantity)
		r.Delete("/items/{itemID}", h.RemoveCartItem)
		r.Post("/checkout", h.Checkout)
	})

	r.Route("/couriers/me", func(r chi.Router) {
		r.Get("/", h.GetCourier)
		r.Put("/availability", h.SetAvailability)
	})

	r.Route("/menus", func(r chi.Router) {
		r.Get("/{date}", h.GetMenu)
		r.Put("/{date}", h.SaveMenu)
	})

	r.Route("/stats", func(r chi.Router) {
		r.Get("/today", h.TodayStats)
		r.Get("/courier", h.CourierStats)
	})
}

func (h *Handler) log(r *http.Request) aqm.Logger {
	return h.logger.With("request_id", aqm.RequestIDFrom(r.Context()))
}

// session reads the actor headers, answering 401 when they are missing.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (Session, bool) {
	s, err := SessionFromRequest(r)
	if err != nil {
		aqm.RespondError(w, http.StatusUnauthorized, "Missing or invalid session")
		return Session{}, false
	}
	return s, true
}

func (h *Handler) parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		aqm.RespondError(w, http.StatusBadRequest, "Invalid order ID")
		return uuid.Nil, false
	}
	return id, true
}

// decode reads an optional JSON body into v.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}, required bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		aqm.RespondError(w, http.StatusBadRequest, "Could not read request body")
		return false
	}
	if len(body) == 0 {
		if required {
			aqm.RespondError(w, http.StatusBadRequest, "Request body is required")
			return false
		}
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		aqm.RespondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return false
	}
	return true
}

// respondErr maps domain errors onto HTTP statuses.
func (h *Handler) respondErr(w http.ResponseWriter, log aqm.Logger, action string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("cannot "+action, "error", err)
	} else {
		log.Debug("request refused", "action", action, "error", err)
	}
	aqm.RespondError(w, status, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "Store unavailable, try again"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, ErrAlreadyAssigned):
		return http.StatusConflict, ErrAlreadyAssigned.Error()
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrInvalidAddress),
		errors.Is(err, ErrInvalidPayment),
		errors.Is(err, ErrDishUnavailable),
		errors.Is(err, ErrInvalidItem),
		errors.Is(err, ErrInvalidMenu):
		return http.StatusUnprocessableEntity, err.Error()
	}
	return http.StatusInternalServerError, "Internal error"
}

// projectionFor resolves the view requested in q for s. Without a view the
// role's own view is used.
func (h *Handler) projectionFor(ctx context.Context, s Session, q url.Values) (Projection, error) {
	view := strings.ToLower(strings.TrimSpace(q.Get("view")))
	if view == "" {
		view = string(s.Role)
	}

	switch view {
	case ViewCustomer:
		if !s.Is(RoleCustomer) {
			return nil, ErrForbidden
		}
		id := s.ActorID
		return func(orders []*Order) []*Order { return CustomerView(orders, id) }, nil
	case ViewCourier:
		if !s.Is(RoleCourier) {
			return nil, ErrForbidden
		}
		id := s.ActorID
		return func(orders []*Order) []*Order { return CourierView(orders, id) }, nil
	case ViewAvailable:
		return h.dispatcher.AvailableProjection(ctx, s)
	case ViewAdmin:
		if !s.Is(RoleAdmin) {
			return nil, ErrForbidden
		}
		filter, err := ParseAdminFilter(q.Get("category"), q.Get("status"))
		if err != nil {
			return nil, errBadQuery{err}
		}
		return func(orders []*Order) []*Order { return AdminView(orders, filter) }, nil
	}
	return nil, errBadQuery{errors.New("unknown view " + view)}
}

type errBadQuery struct{ err error }

func (e errBadQuery) Error() string { return e.err.Error() }

func (h *Handler) respondViewErr(w http.ResponseWriter, log aqm.Logger, err error) {
	var bad errBadQuery
	if errors.As(err, &bad) {
		aqm.RespondError(w, http.StatusBadRequest, bad.Error())
		return
	}
	h.respondErr(w, log, "resolve view", err)
}

// canSee reports whether s may read o directly.
func canSee(o *Order, s Session) bool {
	switch s.Role {
	case RoleAdmin:
		return true
	case RoleCustomer:
		return o.CustomerID == s.ActorID
	case RoleCourier:
		return o.AssignedTo(s.ActorID) || (!o.IsAssigned() && !o.IsTerminal())
	}
	return false
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListOrders")
	defer finish()
	log := h.log(r)

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	project, err := h.projectionFor(r.Context(), s, r.URL.Query())
	if err != nil {
		h.respondViewErr(w, log, err)
		return
	}

	aqm.RespondCollection(w, project(h.feed.Snapshot()), "order")
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetOrder")
	defer finish()
	log := h.log(r)

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.lifecycle.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, log, "get order", err)
		return
	}
	if !canSee(order, s) {
		aqm.RespondError(w, http.StatusNotFound, "Order not found")
		return
	}

	links := aqm.RESTfulLinksFor(order)
	aqm.RespondSuccess(w, order, links...)
}

type transitionFunc func(ctx context.Context, s Session, id uuid.UUID) (*Order, error)

// transition runs one lifecycle operation for the order in the URL.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, name string, fn transitionFunc) {
	w, r, finish := h.tlm.Start(w, r, "Handler."+name)
	defer finish()
	log := h.log(r)

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := h.parseIDParam(w, r)
	if !ok {
		return
	}

	order, err := fn(r.Context(), s, id)
	if err != nil {
		h.respondErr(w, log, name, err)
		return
	}

	links := aqm.RESTfulLinksFor(order)
	aqm.RespondSuccess(w, order, links...)
}

func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "ConfirmOrder", h.lifecycle.Confirm)
}

func (h *Handler) StartPreparing(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "StartPreparing", h.lifecycle.StartPreparing)
}

func (h *Handler) MarkReady(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "MarkReady", h.lifecycle.MarkReady)
}

func (h *Handler) AcceptOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "AcceptOrder", h.dispatcher.Accept)
}

func (h *Handler) RejectOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "RejectOrder", h.dispatcher.Reject)
}

func (h *Handler) MarkEnRoute(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "MarkEnRoute", h.lifecycle.MarkEnRoute)
}

func (h *Handler) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "DeliverOrder", h.dispatcher.Deliver)
}

// CancelOrder routes customers to their own cancel rule; admins and
// couriers may send a reason.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, &payload, false) {
		return
	}
	h.transition(w, r, "CancelOrder", func(ctx context.Context, s Session, id uuid.UUID) (*Order, error) {
		if s.Is(RoleCustomer) {
			return h.lifecycle.CancelByCustomer(ctx, s, id)
		}
		return h.lifecycle.Cancel(ctx, s, id, strings.TrimSpace(payload.Reason))
	})
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetCart")
	defer finish()
	log := h.log(r)

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.Get(r.Context(), s)
	if err != nil {
		h.respondErr(w, log, "get cart", err)
		return
	}
	h.respondCart(w, cart)
}

type cartResponse struct {
	*Cart
	Subtotal Money `json:"subtotal"`
}

func (h *Handler) respondCart(w http.ResponseWriter, cart *Cart) {
	aqm.RespondSuccess(w, cartResponse{Cart: cart, Subtotal: cart.Subtotal()})
}

// AddCartItem accepts either a dish from a daily menu or a free item.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.AddCartItem")
	defer finish()
	log := h.log(r)

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var payload struct {
		DishID string `json:"dish_id"`
		Date   string `json:"date"`
		ItemID string `json:"item_id"`
		Name   string `json:"name"`
		Price  Money  `json:"price"`
	}
	if !h.decode(w, r, &payload, true) {
		return
	}

	var (
		cart *Cart
		err  error
	)
	if payload.DishID != "" {
		cart, err = h.carts.AddDish(r.Context(), s, payload.Date, payload.DishID)
	} else {
		cart, err = h.carts.AddItem(r.Context(), s, CartLine{ItemID: payload.ItemID, Name: payload.Name, Price: payload.Price})
	}
	if err != nil {
		h.respondErr(w, log, "add cart item", err)
		return
	}
	h.respondCart(w, cart)
}

func (h *Handler) SetCartQuantity(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetCartQuantity")
	defer finish()
	log := h.log(r)

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var payload struct {
		Quantity *int `json:"quantity"`
	}
	if !h.decode(w, r, &payload, true) {
		return
	}
	if payload.Quantity == nil {
		aqm.RespondError(w, http.StatusBadRequest, "quantity is required")
		return
	}

	cart, err := h.carts.SetQuantity(r.Context(), s, chi.URLParam(r, "itemID"), *payload.Quantity)
	if err != nil {
		h.respondErr(w, log, "set cart quantity", err)
		return
	}
	h.respondCart(w, cart)
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RemoveCartItem")
	defer finish()
	log := h.log(r)

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.SetQuantity(r.Context(), s, chi.URLParam(r, "itemID"), 0)
	if err != nil {
		h.respondErr(w, log, "remove cart item", err)
		return
	}
	h.respondCart(w, cart)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ClearCart")
	defer finish()
	log := h.log(r)

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.Clear(r.Context(), s)
	if err != nil {
		h.respondErr(w, log, "clear cart", err)
		return
	}
	h.respondCart(w, cart)
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Checkout")
	defer finish()
	log := h.log(r)

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	order, err := h.carts.Checkout(r.Context(), s, req)
	if err != nil {
		h.respondErr(w, log, "checkout", err)
		return
	}

	links := aqm.RESTfulLinksFor(order)
	w.WriteHeader(http.StatusCreated)
	aqm.RespondSuccess(w, order, links...)
}

func (h *Handler) GetCourier(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetCourier")
	defer finish()
	log := h.log(r)

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	courier, err := h.dispatcher.Courier(r.Context(), s)
	if err != nil {
		h.respondErr(w, log, "get courier", err)
		return
	}
	aqm.RespondSuccess(w, courier)
}

func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetAvailability")
	defer finish()
	log := h.log(r)

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var payload struct {
		Available *bool `json:"available"`
	}
	if !h.decode(w, r, &payload, true) {
		return
	}
	if payload.Available == nil {
		aqm.RespondError(w, http.StatusBadRequest, "available is required")
		return
	}

	courier, err := h.dispatcher.SetAvailability(r.Context(), s, *payload.Available)
	if err != nil {
		h.respondErr(w, log, "set availability", err)
		return
	}
	aqm.RespondSuccess(w, courier)
}

func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetMenu")
	defer finish()
	log := h.log(r)

	date := chi.URLParam(r, "date")
	if date == "today" {
		date = ""
	}

	menu, err := h.menus.Get(r.Context(), date)
	if err != nil {
		h.respondErr(w, log, "get menu", err)
		return
	}
	aqm.RespondSuccess(w, menu)
}

func (h *Handler) SaveMenu(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SaveMenu")
	defer finish()
	log := h.log(r)

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var menu Menu
	if !h.decode(w, r, &menu, true) {
		return
	}
	menu.Date = chi.URLParam(r, "date")

	saved, err := h.menus.Save(r.Context(), s, &menu)
	if err != nil {
		h.respondErr(w, log, "save menu", err)
		return
	}
	aqm.RespondSuccess(w, saved)
}

func (h *Handler) TodayStats(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.TodayStats")
	defer finish()

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if !s.Is(RoleAdmin) {
		aqm.RespondError(w, http.StatusForbidden, "only admins can read daily stats")
		return
	}

	aqm.RespondSuccess(w, ComputeDailyStats(h.feed.Snapshot(), h.now(), h.loc))
}

func (h *Handler) CourierStats(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CourierStats")
	defer finish()
	log := h.log(r)

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	totals, err := h.dispatcher.Totals(r.Context(), s)
	if err != nil {
		h.respondErr(w, log, "get courier totals", err)
		return
	}
	aqm.RespondSuccess(w, totals)
}

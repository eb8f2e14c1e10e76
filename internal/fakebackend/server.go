// Package fakebackend serves the storefront REST contract consumed by the
// checkout client: cart, addresses and product stock.
package fakebackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/nikolayk812/storefront-checkout/internal/httpapi"
	"github.com/nikolayk812/storefront-checkout/internal/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
)

type Server struct {
	catalog   *Catalog
	carts     port.CartRepository
	addresses port.AddressStore
	auth      *Authenticator
	currency  currency.Unit
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewServer(
	catalog *Catalog,
	carts port.CartRepository,
	addresses port.AddressStore,
	auth *Authenticator,
	cur currency.Unit,
	logger *zap.Logger,
) *Server {
	return &Server{
		catalog:   catalog,
		carts:     carts,
		addresses: addresses,
		auth:      auth,
		currency:  cur,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Get("/cart/", s.getCart)
		r.Post("/cart/add_item/", s.addItem)
		r.Put("/cart/items/{id}/", s.updateItem)
		r.Delete("/cart/items/{id}/", s.removeItem)

		r.Get("/addresses/", s.listAddresses)
		r.Post("/addresses/", s.createAddress)
		r.Put("/addresses/{id}/", s.updateAddress)
		r.Patch("/addresses/{id}/", s.patchAddress)
		r.Delete("/addresses/{id}/", s.deleteAddress)

		r.Get("/products/{id}/", s.getProduct)
		r.With(AdminOnly).Post("/products/", s.createProduct)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	s.respondCart(w, r, identity.UserID, http.StatusOK)
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req httpapi.AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFieldError(w, "non_field_errors", "invalid JSON body")
		return
	}
	if req.Quantity < domain.MinQuantity || req.Quantity > domain.MaxQuantity {
		respondFieldError(w, "quantity", quantityReason())
		return
	}

	product, ok := s.catalog.Get(req.ProductID)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("product %d not found", req.ProductID))
		return
	}

	cart, err := s.carts.GetCart(r.Context(), identity.UserID)
	if err != nil {
		s.internalError(w, "carts.GetCart", err)
		return
	}

	total := req.Quantity
	if existing, found := cart.Find(product.ID); found {
		total += existing.Quantity
	}
	if total > domain.MaxQuantity {
		respondFieldError(w, "quantity", quantityReason())
		return
	}
	if total > product.Stock {
		respondError(w, http.StatusConflict, fmt.Sprintf("only %d left in stock", product.Stock))
		return
	}

	err = s.carts.AddItem(r.Context(), identity.UserID, domain.CartItem{
		ProductID: product.ID,
		Name:      product.Name,
		ImageURL:  product.Image,
		UnitPrice: product.Price,
		Quantity:  req.Quantity,
	})
	if err != nil {
		s.internalError(w, "carts.AddItem", err)
		return
	}

	s.respondCart(w, r, identity.UserID, http.StatusCreated)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	lineID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req httpapi.UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFieldError(w, "non_field_errors", "invalid JSON body")
		return
	}
	if req.Quantity < domain.MinQuantity || req.Quantity > domain.MaxQuantity {
		respondFieldError(w, "quantity", quantityReason())
		return
	}

	cart, err := s.carts.GetCart(r.Context(), identity.UserID)
	if err != nil {
		s.internalError(w, "carts.GetCart", err)
		return
	}

	var line *domain.CartItem
	for i := range cart.Items {
		if cart.Items[i].LineID == lineID {
			line = &cart.Items[i]
		}
	}
	if line == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("cart item %d not found", lineID))
		return
	}

	if product, ok := s.catalog.Get(line.ProductID); ok && req.Quantity > product.Stock {
		respondError(w, http.StatusConflict, fmt.Sprintf("only %d left in stock", product.Stock))
		return
	}

	if _, err := s.carts.UpdateItem(r.Context(), identity.UserID, lineID, req.Quantity); err != nil {
		s.internalError(w, "carts.UpdateItem", err)
		return
	}

	s.respondCart(w, r, identity.UserID, http.StatusOK)
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	lineID, ok := pathID(w, r)
	if !ok {
		return
	}

	found, err := s.carts.DeleteItem(r.Context(), identity.UserID, lineID)
	if err != nil {
		s.internalError(w, "carts.DeleteItem", err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, fmt.Sprintf("cart item %d not found", lineID))
		return
	}

	s.respondCart(w, r, identity.UserID, http.StatusOK)
}

func (s *Server) respondCart(w http.ResponseWriter, r *http.Request, ownerID int64, status int) {
	cart, err := s.carts.GetCart(r.Context(), ownerID)
	if err != nil {
		s.internalError(w, "carts.GetCart", err)
		return
	}
	respondJSON(w, status, httpapi.CartToDTO(cart))
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	product, found := s.catalog.Get(id)
	if !found {
		respondError(w, http.StatusNotFound, fmt.Sprintf("product %d not found", id))
		return
	}

	respondJSON(w, http.StatusOK, productDTO(product))
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req httpapi.ProductDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFieldError(w, "non_field_errors", "invalid JSON body")
		return
	}

	vErr := domain.NewValidationError()
	if req.Name == "" {
		vErr.Add("name", "is required")
	}
	if !req.Price.IsPositive() {
		vErr.Add("price", "must be positive")
	}
	if req.Stock == nil || *req.Stock < 0 {
		vErr.Add("stock", "must be zero or more")
	}
	if !vErr.Empty() {
		respondJSON(w, http.StatusBadRequest, vErr.Fields)
		return
	}

	product := s.catalog.Add(Product{
		Name:  req.Name,
		Price: domain.MoneyFromDecimal(req.Price, s.currency),
		Image: req.Image,
		Stock: *req.Stock,
	})

	respondJSON(w, http.StatusCreated, productDTO(product))
}

func productDTO(p Product) httpapi.ProductDTO {
	stock := p.Stock
	return httpapi.ProductDTO{
		ID:    p.ID,
		Name:  p.Name,
		Price: p.Price.Decimal(),
		Image: p.Image,
		Stock: &stock,
	}
}

func (s *Server) listAddresses(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	addresses, err := s.addresses.ListAddresses(r.Context(), identity)
	if err != nil {
		s.internalError(w, "addresses.ListAddresses", err)
		return
	}

	dtos := make([]httpapi.AddressDTO, 0, len(addresses))
	for _, a := range addresses {
		dtos = append(dtos, httpapi.AddressToDTO(a))
	}
	respondJSON(w, http.StatusOK, dtos)
}

func (s *Server) createAddress(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	address, ok := s.decodeAddress(w, r)
	if !ok {
		return
	}

	created, err := s.addresses.CreateAddress(r.Context(), identity, address)
	if err != nil {
		s.internalError(w, "addresses.CreateAddress", err)
		return
	}
	respondJSON(w, http.StatusCreated, httpapi.AddressToDTO(created))
}

func (s *Server) updateAddress(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	address, ok := s.decodeAddress(w, r)
	if !ok {
		return
	}
	address.ID = id

	updated, err := s.addresses.UpdateAddress(r.Context(), identity, address)
	if errors.Is(err, domain.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("address %d not found", id))
		return
	}
	if err != nil {
		s.internalError(w, "addresses.UpdateAddress", err)
		return
	}
	respondJSON(w, http.StatusOK, httpapi.AddressToDTO(updated))
}

// patchAddress toggles the default flag. Setting it is atomic when the
// store supports it.
func (s *Server) patchAddress(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req httpapi.DefaultFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFieldError(w, "non_field_errors", "invalid JSON body")
		return
	}

	var err error
	atomic, isAtomic := s.addresses.(port.AtomicDefaultSetter)
	if req.IsDefault && isAtomic {
		err = atomic.SetDefaultAddress(r.Context(), identity, id)
	} else {
		_, err = s.addresses.SetDefaultFlag(r.Context(), identity, id, req.IsDefault)
	}
	if errors.Is(err, domain.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("address %d not found", id))
		return
	}
	if err != nil {
		s.internalError(w, "addresses.SetDefault", err)
		return
	}

	addresses, err := s.addresses.ListAddresses(r.Context(), identity)
	if err != nil {
		s.internalError(w, "addresses.ListAddresses", err)
		return
	}
	for _, a := range addresses {
		if a.ID == id {
			respondJSON(w, http.StatusOK, httpapi.AddressToDTO(a))
			return
		}
	}
	respondError(w, http.StatusNotFound, fmt.Sprintf("address %d not found", id))
}

func (s *Server) deleteAddress(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	err := s.addresses.DeleteAddress(r.Context(), identity, id)
	if errors.Is(err, domain.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("address %d not found", id))
		return
	}
	if err != nil {
		s.internalError(w, "addresses.DeleteAddress", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeAddress(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	var dto httpapi.AddressDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respondFieldError(w, "non_field_errors", "invalid JSON body")
		return domain.Address{}, false
	}

	address := httpapi.AddressFromDTO(dto)
	if err := s.validate.Struct(address); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			s.internalError(w, "validate.Struct", err)
			return domain.Address{}, false
		}

		fields := map[string][]string{}
		for _, fe := range fieldErrs {
			fields[addressFieldNames[fe.Field()]] = []string{"This field may not be blank."}
		}
		respondJSON(w, http.StatusBadRequest, fields)
		return domain.Address{}, false
	}

	return address, true
}

var addressFieldNames = map[string]string{
	"FirstName": "first_name",
	"LastName":  "last_name",
	"Phone":     "phone",
	"Street":    "address",
	"City":      "city",
	"State":     "state",
	"ZipCode":   "zip_code",
	"Country":   "country",
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", zap.String("op", op), zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusNotFound, "invalid id")
		return 0, false
	}
	return id, true
}

func quantityReason() string {
	return fmt.Sprintf("Ensure this value is between %d and %d.", domain.MinQuantity, domain.MaxQuantity)
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

func respondFieldError(w http.ResponseWriter, field, reason string) {
	respondJSON(w, http.StatusBadRequest, map[string][]string{field: {reason}})
}

// ParsePrice is a helper for seeding catalogs from decimal strings.
func ParsePrice(amount string, cur currency.Unit) domain.Money {
	return domain.MoneyFromDecimal(decimal.RequireFromString(amount), cur)
}

// Package stocks serves sample stock quotes for the protected demo endpoint.
package stocks

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Quote is a single stock price payload.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	Timestamp int64   `json:"timestamp"`
}

// defaultSymbols are the symbols served by the status endpoint.
var defaultSymbols = []string{"AAPL", "GOOG", "MSFT"}

// Service produces stock quotes. Prices are synthetic; a real implementation
// would call a market data provider.
type Service struct {
	now  func() time.Time
	rand func() float64
}

// NewService creates a stock quote Service.
func NewService() *Service {
	return &Service{
		now:  time.Now,
		rand: rand.Float64,
	}
}

// CurrentPrice returns a quote for the given symbol.
func (s *Service) CurrentPrice(symbol string) Quote {
	price := 100 * (1 + s.rand())
	return Quote{
		Symbol:    strings.ToUpper(symbol),
		Price:     float64(int(price*100)) / 100,
		Currency:  "USD",
		Timestamp: s.now().Unix(),
	}
}

// Handler serves the stock status endpoint.
type Handler struct {
	service *Service
}

// NewHandler creates a new stocks Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// StockStatus handles GET /api/stock-status
func (h *Handler) StockStatus(w http.ResponseWriter, r *http.Request) {
	data := make([]Quote, 0, len(defaultSymbols))
	for _, symbol := range defaultSymbols {
		data = append(data, h.service.CurrentPrice(symbol))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

// RegisterRoutes registers the stocks routes with the Chi router.
func RegisterRoutes(r chi.Router, handler *Handler) {
	r.Get("/stock-status", handler.StockStatus)
}

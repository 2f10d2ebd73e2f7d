// Package countries serves the static country reference list.
package countries

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Country is one entry of the reference list.
type Country struct {
	Name          string `json:"name"`
	Code          string `json:"code"`
	TelephoneCode string `json:"telephoneCode"`
}

// List is the full reference list, ordered as served.
var List = []Country{
	{Name: "United States", Code: "US", TelephoneCode: "+1"},
	{Name: "United Kingdom", Code: "GB", TelephoneCode: "+44"},
	{Name: "Germany", Code: "DE", TelephoneCode: "+49"},
	{Name: "France", Code: "FR", TelephoneCode: "+33"},
	{Name: "Italy", Code: "IT", TelephoneCode: "+39"},
	{Name: "Spain", Code: "ES", TelephoneCode: "+34"},
	{Name: "Canada", Code: "CA", TelephoneCode: "+1"},
	{Name: "Australia", Code: "AU", TelephoneCode: "+61"},
	{Name: "Japan", Code: "JP", TelephoneCode: "+81"},
	{Name: "China", Code: "CN", TelephoneCode: "+86"},
}

// Handler serves the country list.
type Handler struct{}

// NewHandler creates a new countries Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// GetCountries handles GET /api/countries
func (h *Handler) GetCountries(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(List)
}

// RegisterRoutes registers the countries routes with the Chi router.
func RegisterRoutes(r chi.Router, handler *Handler) {
	r.Get("/countries", handler.GetCountries)
}

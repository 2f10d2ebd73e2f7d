package countries

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetCountries(t *testing.T) {
	handler := NewHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/countries", nil)
	rec := httptest.NewRecorder()
	handler.GetCountries(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}

	var got []Country
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 countries, got %d", len(got))
	}
	if got[0].Name != "United States" || got[0].Code != "US" || got[0].TelephoneCode != "+1" {
		t.Errorf("unexpected first entry: %+v", got[0])
	}
	if got[9].Code != "CN" {
		t.Errorf("unexpected last entry: %+v", got[9])
	}
}

func TestCountryCodesAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, country := range List {
		if seen[country.Code] {
			t.Errorf("duplicate country code %s", country.Code)
		}
		seen[country.Code] = true
	}
}

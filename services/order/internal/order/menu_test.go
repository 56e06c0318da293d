package order

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"
)

type mockMenuRequester struct {
	path string
	resp *aqm.SuccessResponse
	err  error
}

func (m *mockMenuRequester) Request(ctx context.Context, method, path string, body interface{}) (*aqm.SuccessResponse, error) {
	m.path = path
	return m.resp, m.err
}

func TestMenuServiceCatalogLookup(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440070")

	tests := []struct {
		name      string
		resp      *aqm.SuccessResponse
		err       error
		want      *MenuItem
		wantMiss  bool
		wantError bool
	}{
		{
			name: "typeTag",
			resp: &aqm.SuccessResponse{Data: map[string]interface{}{
				"id":     id.String(),
				"name":   map[string]interface{}{"es": "Hamburguesa", "en": "Burger"},
				"prices": []interface{}{map[string]interface{}{"amount": 11.5, "currency_code": "EUR"}},
				"tags":   []interface{}{"grill", "type:food"},
			}},
			want: &MenuItem{ID: id, Name: "Burger", ItemType: "food", Price: 11.5, HasPrice: true},
		},
		{
			name: "stationTag",
			resp: &aqm.SuccessResponse{Data: map[string]interface{}{
				"name": map[string]interface{}{"es": "Limonada"},
				"tags": []interface{}{"station:bar"},
			}},
			want: &MenuItem{ID: id, Name: "Limonada", ItemType: "beverage"},
		},
		{
			name:     "emptyData",
			resp:     &aqm.SuccessResponse{},
			wantMiss: true,
		},
		{
			name:     "notFoundResponse",
			err:      errors.New("request failed with status 404: menu item not found"),
			wantMiss: true,
		},
		{
			name:      "transportError",
			err:       errors.New("dial tcp 10.0.0.4:8080: connection refused"),
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &mockMenuRequester{resp: tt.resp, err: tt.err}
			c := &MenuServiceCatalog{client: req, language: "en"}

			got, err := c.Lookup(context.Background(), id)
			if req.path != "/menu/items/"+id.String() {
				t.Errorf("path = %q", req.path)
			}
			if tt.wantMiss {
				if !errors.Is(err, ErrMenuItemNotFound) {
					t.Errorf("Lookup() error = %v, want ErrMenuItemNotFound", err)
				}
				return
			}
			if tt.wantError {
				if err == nil || errors.Is(err, ErrMenuItemNotFound) {
					t.Errorf("Lookup() error = %v, want transport error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if *got != *tt.want {
				t.Errorf("Lookup() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

type statusError struct {
	code int
}

func (e statusError) Error() string   { return "menu service error" }
func (e statusError) StatusCode() int { return e.code }

func TestIsNotFoundResponse(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "statusCode404", err: statusError{code: 404}, want: true},
		{name: "statusCode500", err: statusError{code: 500}, want: false},
		{name: "wrappedStatusCode", err: fmt.Errorf("request: %w", statusError{code: 404}), want: true},
		{name: "message404", err: errors.New("unexpected status 404"), want: true},
		{name: "messageNotFound", err: errors.New("Resource Not Found"), want: true},
		{name: "timeout", err: errors.New("context deadline exceeded"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNotFoundResponse(tt.err); got != tt.want {
				t.Errorf("isNotFoundResponse(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"
)

// MenuItem is the subset of a menu entry needed to price and route a line.
type MenuItem struct {
	ID       uuid.UUID
	Name     string
	ItemType string
	Price    float64
	HasPrice bool
}

// MenuCatalog resolves current menu data for items added without it.
type MenuCatalog interface {
	Lookup(ctx context.Context, menuItemID uuid.UUID) (*MenuItem, error)
}

type menuRequester interface {
	Request(ctx context.Context, method, path string, body interface{}) (*aqm.SuccessResponse, error)
}

// MenuServiceCatalog reads menu items from the menu service.
type MenuServiceCatalog struct {
	client   menuRequester
	language string
}

func NewMenuServiceCatalog(client *aqm.ServiceClient) *MenuServiceCatalog {
	return &MenuServiceCatalog{client: client, language: "en"}
}

type menuItemResource struct {
	ID        string              `json:"id"`
	ShortCode string              `json:"short_code"`
	Name      map[string]string   `json:"name"`
	Prices    []menuPriceResource `json:"prices"`
	Tags      []string            `json:"tags"`
}

type menuPriceResource struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currency_code"`
}

func (c *MenuServiceCatalog) Lookup(ctx context.Context, menuItemID uuid.UUID) (*MenuItem, error) {
	path := fmt.Sprintf("/menu/items/%s", menuItemID)
	resp, err := c.client.Request(ctx, "GET", path, nil)
	if err != nil {
		if isNotFoundResponse(err) {
			return nil, fmt.Errorf("menu item %s: %v: %w", menuItemID, err, ErrMenuItemNotFound)
		}
		return nil, fmt.Errorf("cannot fetch menu item %s: %w", menuItemID, err)
	}
	if resp == nil || resp.Data == nil {
		return nil, fmt.Errorf("menu item %s: %w", menuItemID, ErrMenuItemNotFound)
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("cannot encode menu item: %w", err)
	}

	var res menuItemResource
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("cannot decode menu item: %w", err)
	}

	item := &MenuItem{
		ID:       menuItemID,
		Name:     pickMenuName(&res, c.language),
		ItemType: deriveItemType(&res),
	}
	if len(res.Prices) > 0 {
		item.Price = res.Prices[0].Amount
		item.HasPrice = true
	}
	return item, nil
}

func pickMenuName(item *menuItemResource, language string) string {
	if name, ok := item.Name[language]; ok && name != "" {
		return name
	}
	for _, value := range item.Name {
		if value != "" {
			return value
		}
	}
	return item.ShortCode
}

// deriveItemType reads "type:" tags first and falls back to "station:" tags,
// where a kitchen station means food.
func deriveItemType(item *menuItemResource) string {
	for _, tag := range item.Tags {
		if strings.HasPrefix(tag, "type:") {
			return strings.TrimPrefix(tag, "type:")
		}
	}
	for _, tag := range item.Tags {
		if strings.HasPrefix(tag, "station:") {
			if strings.TrimPrefix(tag, "station:") == "kitchen" {
				return "food"
			}
			return "beverage"
		}
	}
	return ""
}

type statusCoder interface {
	StatusCode() int
}

// isNotFoundResponse reports whether the service client failed because the
// menu service answered 404.
func isNotFoundResponse(err error) bool {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode() == http.StatusNotFound
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}

func isMenuMiss(err error) bool {
	return errors.Is(err, ErrMenuItemNotFound)
}

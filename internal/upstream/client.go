// Package upstream talks to the POS platform's REST API. It only consumes
// an already obtained token; acquiring one is outside this service.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/andres-saa/restaurant-reports/internal/orders"
	"github.com/andres-saa/restaurant-reports/internal/shared"
	"github.com/andres-saa/restaurant-reports/internal/sites"
)

// MaxOrdersPerSite caps how far pagination walks on each poll.
const MaxOrdersPerSite = 100

const pageSize = 50

// TokenSource supplies the current POS API token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a fixed token, used in config-driven
// deployments and tests.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Client is the typed POS API client.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// NewClient constructs a client for the POS API base URL.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// envelope is the POS API's standard response wrapper.
type envelope struct {
	Tipo string          `json:"tipo"`
	Data json.RawMessage `json:"data"`
}

type siteRow struct {
	LocalID          string `json:"local_id"`
	LocalDescripcion string `json:"local_descripcion"`
}

type orderRow struct {
	DeliveryID        string      `json:"delivery_id"`
	Codigo            string      `json:"delivery_codigolimadelivery"`
	OrderIDCanal      string      `json:"delivery_orderid_canal"`
	Identificador     string      `json:"delivery_identificadorunico"`
	Descripcion       string      `json:"delivery_descripcion"`
	Fecha             string      `json:"delivery_fecha"`
	Importe           json.Number `json:"delivery_importe"`
	Nombres           string      `json:"delivery_nombres"`
	Apellidos         string      `json:"delivery_apellidos"`
	Celular           string      `json:"delivery_celular"`
}

func (c *Client) do(ctx context.Context, method, path string, body string) (*envelope, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: token: %v", shared.ErrUpstreamUnavailable, err)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: no api token", shared.ErrUpstreamUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Token token=%q", token))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s %s returned %d", shared.ErrUpstreamUnavailable, method, path, resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", shared.ErrUpstreamUnavailable, path, err)
	}
	if env.Tipo == "401" {
		return nil, fmt.Errorf("%w: token rejected", shared.ErrUpstreamUnavailable)
	}
	return &env, nil
}

// Sites fetches the permitted site list.
func (c *Client) Sites(ctx context.Context) ([]sites.Site, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/rest/local/getLocalesPermitidos/0", "{}")
	if err != nil {
		return nil, err
	}
	var rows []siteRow
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode sites: %v", shared.ErrUpstreamUnavailable, err)
	}
	out := make([]sites.Site, 0, len(rows))
	for _, row := range rows {
		id := strings.TrimSpace(row.LocalID)
		name := strings.TrimSpace(row.LocalDescripcion)
		if id == "" || name == "" {
			continue
		}
		out = append(out, sites.Site{ID: id, Name: name})
	}
	return out, nil
}

// Orders walks the paginated per-site delivery listing up to the cap and
// returns records ready for the order store.
func (c *Client) Orders(ctx context.Context, siteID string) ([]orders.OrderRecord, error) {
	var out []orders.OrderRecord
	page, offset := 1, 0
	for len(out) < MaxOrdersPerSite {
		path := fmt.Sprintf("/api/rest/delivery/obtenerDeliverysPorLocalSimple/%s/%d/%d/%d",
			siteID, page, pageSize, offset)
		env, err := c.do(ctx, http.MethodGet, path, "")
		if err != nil {
			return nil, err
		}
		var rows []orderRow
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return nil, fmt.Errorf("%w: decode orders page %d: %v", shared.ErrUpstreamUnavailable, page, err)
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			out = append(out, row.toRecord())
			if len(out) >= MaxOrdersPerSite {
				break
			}
		}
		if len(rows) < pageSize {
			break
		}
		offset += pageSize
		page++
	}
	return out, nil
}

func (row orderRow) toRecord() orders.OrderRecord {
	rec := orders.OrderRecord{
		OrderIdentity:    strings.TrimSpace(row.DeliveryID),
		ChannelOrderCode: strings.TrimSpace(row.Codigo),
		ChannelOrderID:   strings.TrimSpace(row.OrderIDCanal),
		UniqueRef:        strings.TrimSpace(row.Identificador),
		Channel:          strings.TrimSpace(row.Descripcion),
		CustomerName:     strings.TrimSpace(strings.TrimSpace(row.Nombres) + " " + strings.TrimSpace(row.Apellidos)),
		CustomerPhone:    strings.TrimSpace(row.Celular),
	}
	if fecha := strings.TrimSpace(row.Fecha); len(fecha) >= 10 {
		rec.PlacedDate = fecha[:10]
		if len(fecha) > 11 {
			rec.PlacedTime = strings.TrimSpace(fecha[11:])
		}
	}
	if amount, err := row.Importe.Float64(); err == nil && row.Importe != "" {
		rec.Amount = &amount
	}
	return rec
}

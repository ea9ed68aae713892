package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the tycoon HTTP API. Token is sent as a bearer token and
// only matters for the admin routes.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("api status %d: %s (field %s)", e.Status, e.Message, e.Field)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Token:   strings.TrimSpace(token),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type Clock struct {
	CurrentTime time.Time `json:"current_time"`
	SpeedDays   string    `json:"speed_days"`
	Running     bool      `json:"running"`
}

type TickResult struct {
	Advanced bool           `json:"advanced"`
	From     time.Time      `json:"from"`
	To       time.Time      `json:"to"`
	Tasks    int            `json:"tasks"`
	ByTask   map[string]int `json:"by_task"`
}

type EventSpec struct {
	Kind       string    `json:"kind"`
	Rate       string    `json:"rate,omitempty"`
	CountryIDs []int64   `json:"country_ids,omitempty"`
	ProductIDs []int64   `json:"product_ids,omitempty"`
	CompanyIDs []int64   `json:"company_ids,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
	Threshold  float64   `json:"threshold,omitempty"`
}

func (c *Client) Health(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodGet, "/healthz", nil, nil, "")
}

func (c *Client) Clock(ctx context.Context) (Clock, error) {
	var out Clock
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/clock", nil, &out, "")
	return out, err
}

func (c *Client) StartClock(ctx context.Context) (Clock, error) {
	var out Clock
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/clock/start", nil, &out, "")
	return out, err
}

func (c *Client) StopClock(ctx context.Context) (Clock, error) {
	var out Clock
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/clock/stop", nil, &out, "")
	return out, err
}

func (c *Client) SetSpeed(ctx context.Context, speedDays string) (Clock, error) {
	var out Clock
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/clock/speed", map[string]any{
		"speed_days": speedDays,
	}, &out, "")
	return out, err
}

func (c *Client) Tick(ctx context.Context) (TickResult, error) {
	var out TickResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/ticks", nil, &out, "")
	return out, err
}

func (c *Client) ListEvents(ctx context.Context) ([]map[string]any, error) {
	var out struct {
		Events []map[string]any `json:"events"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/events", nil, &out, "")
	return out.Events, err
}

func (c *Client) ApplyEvent(ctx context.Context, spec EventSpec) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/events", spec, &out, "")
	return out, err
}

func (c *Client) ReverseEvent(ctx context.Context, id int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/events/"+strconv.FormatInt(id, 10)+"/reverse", nil, &out, "")
	return out, err
}

func (c *Client) ResetGame(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/game/reset", nil, &out, "")
	return out, err
}

func (c *Client) ResetCompany(ctx context.Context, companyID int64, deleteUser bool) (map[string]any, error) {
	path := companyPath(companyID, "/reset")
	if deleteUser {
		path += "?" + url.Values{"delete_user": {"1"}}.Encode()
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, path, nil, &out, "")
	return out, err
}

func (c *Client) CreateUser(ctx context.Context, name, email string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/users", map[string]any{
		"name":  name,
		"email": email,
	}, &out, "")
	return out, err
}

func (c *Client) CreateCompany(ctx context.Context, userID int64, name string, wilayaID int64, funds string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/companies", map[string]any{
		"user_id":   userID,
		"name":      name,
		"wilaya_id": wilayaID,
		"funds":     funds,
	}, &out, "")
	return out, err
}

func (c *Client) CompanySummary(ctx context.Context, companyID int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, companyPath(companyID, ""), nil, &out, "")
	return out, err
}

func (c *Client) Sales(ctx context.Context, companyID int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, companyPath(companyID, "/sales"), nil, &out, "")
	return out, err
}

func (c *Client) Employees(ctx context.Context, companyID int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, companyPath(companyID, "/employees"), nil, &out, "")
	return out, err
}

func (c *Client) Notifications(ctx context.Context, companyID int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, companyPath(companyID, "/notifications"), nil, &out, "")
	return out, err
}

func (c *Client) QuotePurchase(ctx context.Context, companyID, supplierID, productID int64, qty string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, companyPath(companyID, "/purchases/quote"), purchaseBody(supplierID, productID, qty), &out, "")
	return out, err
}

func (c *Client) CreatePurchase(ctx context.Context, companyID, supplierID, productID int64, qty, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, companyPath(companyID, "/purchases"), purchaseBody(supplierID, productID, qty), &out, idem)
	return out, err
}

func (c *Client) ConfirmSale(ctx context.Context, companyID, saleID int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, companyPath(companyID, "/sales/"+strconv.FormatInt(saleID, 10)+"/confirm"), nil, &out, idem)
	return out, err
}

// EmployeeAction posts one of hire, fire, promote or assign for an employee.
func (c *Client) EmployeeAction(ctx context.Context, companyID, employeeID int64, action string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	path := companyPath(companyID, "/employees/"+strconv.FormatInt(employeeID, 10)+"/"+action)
	err := c.jsonRequest(ctx, http.MethodPost, path, body, &out, idem)
	return out, err
}

func (c *Client) BuyMachine(ctx context.Context, companyID, machineID int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, companyPath(companyID, "/machines"), map[string]any{
		"machine_id": machineID,
	}, &out, idem)
	return out, err
}

// MachineAction posts one of activate, deactivate, production or maintenance
// for an owned machine.
func (c *Client) MachineAction(ctx context.Context, companyID, machineID int64, action string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	path := companyPath(companyID, "/machines/"+strconv.FormatInt(machineID, 10)+"/"+action)
	err := c.jsonRequest(ctx, http.MethodPost, path, body, &out, idem)
	return out, err
}

func (c *Client) StartResearch(ctx context.Context, companyID, technologyID int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, companyPath(companyID, "/research"), map[string]any{
		"technology_id": technologyID,
	}, &out, idem)
	return out, err
}

func (c *Client) BuyAd(ctx context.Context, companyID, packageID, productID int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, companyPath(companyID, "/ads"), map[string]any{
		"package_id": packageID,
		"product_id": productID,
	}, &out, idem)
	return out, err
}

func (c *Client) TakeLoan(ctx context.Context, companyID, bankID int64, amount, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, companyPath(companyID, "/loans"), map[string]any{
		"bank_id": bankID,
		"amount":  amount,
	}, &out, idem)
	return out, err
}

func purchaseBody(supplierID, productID int64, qty string) map[string]any {
	return map[string]any{
		"supplier_id": supplierID,
		"product_id":  productID,
		"quantity":    qty,
	}
}

func companyPath(companyID int64, rest string) string {
	return "/v1/companies/" + strconv.FormatInt(companyID, 10) + rest
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			apiErr.Message, apiErr.Field = payload.Error, payload.Field
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

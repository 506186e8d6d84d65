package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"diffatours/pkg/calendar"
	"diffatours/pkg/model"
)

const (
	HeaderOperatorID     = "X-Operator-ID"
	HeaderClientID       = "X-Client-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// CapacityClient talks to the capacity service over HTTP.
type CapacityClient struct {
	httpClient *HttpClient
}

func NewCapacityClient(baseURL string) *CapacityClient {
	return &CapacityClient{httpClient: NewHttpClient(baseURL)}
}

// WithOperator sets the operator id sent on every request.
func (c *CapacityClient) WithOperator(operatorID string) *CapacityClient {
	c.httpClient.Headers[HeaderOperatorID] = operatorID
	return c
}

func (c *CapacityClient) WithClientID(clientID string) *CapacityClient {
	c.httpClient.Headers[HeaderClientID] = clientID
	return c
}

func (c *CapacityClient) HTTP() *HttpClient {
	return c.httpClient
}

func excursionPath(excursionID string) string {
	return "/api/v1/excursions/" + url.PathEscape(excursionID)
}

func (c *CapacityClient) GetMonth(ctx context.Context, excursionID string, month, year int) (*calendar.MonthView, error) {
	q := url.Values{}
	q.Set("month", strconv.Itoa(month))
	q.Set("year", strconv.Itoa(year))
	return c.getCalendar(ctx, excursionID, q)
}

// GetMonthOverlay also asks for the selectable overlay of the widget.
func (c *CapacityClient) GetMonthOverlay(ctx context.Context, excursionID string, month, year int, weekdays, today string) (*calendar.MonthView, error) {
	q := url.Values{}
	q.Set("month", strconv.Itoa(month))
	q.Set("year", strconv.Itoa(year))
	if weekdays != "" {
		q.Set("weekdays", weekdays)
	}
	if today != "" {
		q.Set("today", today)
	}
	return c.getCalendar(ctx, excursionID, q)
}

func (c *CapacityClient) getCalendar(ctx context.Context, excursionID string, q url.Values) (*calendar.MonthView, error) {
	resp, err := c.httpClient.GET(ctx, excursionPath(excursionID)+"/calendar?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if err := AsAPIError(resp); err != nil {
		return nil, err
	}
	var view calendar.MonthView
	if err := resp.DecodeData(&view); err != nil {
		return nil, fmt.Errorf("could not decode calendar: %w", err)
	}
	return &view, nil
}

func (c *CapacityClient) GetDay(ctx context.Context, excursionID, date string) (*model.AvailabilityDay, error) {
	resp, err := c.httpClient.GET(ctx, excursionPath(excursionID)+"/capacity/"+url.PathEscape(date))
	if err != nil {
		return nil, err
	}
	if err := AsAPIError(resp); err != nil {
		return nil, err
	}
	var day model.AvailabilityDay
	if err := resp.DecodeData(&day); err != nil {
		return nil, fmt.Errorf("could not decode day: %w", err)
	}
	return &day, nil
}

func (c *CapacityClient) List(ctx context.Context, excursionID, from, to string) ([]*model.CapacityRecord, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	resp, err := c.httpClient.GET(ctx, excursionPath(excursionID)+"/capacity?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if err := AsAPIError(resp); err != nil {
		return nil, err
	}
	var records []*model.CapacityRecord
	if err := resp.DecodeData(&records); err != nil {
		return nil, fmt.Errorf("could not decode capacity records: %w", err)
	}
	return records, nil
}

func (c *CapacityClient) Upsert(ctx context.Context, excursionID, date string, update model.CapacityUpdate) (*model.CapacityRecord, error) {
	resp, err := c.httpClient.PUT(ctx, excursionPath(excursionID)+"/capacity/"+url.PathEscape(date), update)
	if err != nil {
		return nil, err
	}
	if err := AsAPIError(resp); err != nil {
		return nil, err
	}
	var record model.CapacityRecord
	if err := resp.DecodeData(&record); err != nil {
		return nil, fmt.Errorf("could not decode capacity record: %w", err)
	}
	return &record, nil
}

func (c *CapacityClient) Delete(ctx context.Context, excursionID, date string) error {
	resp, err := c.httpClient.DELETE(ctx, excursionPath(excursionID)+"/capacity/"+url.PathEscape(date))
	if err != nil {
		return err
	}
	return AsAPIError(resp)
}

// Reserve submits an order for admission. A capacity rejection is not an
// error: it comes back as a result with Admitted false and the failing items.
func (c *CapacityClient) Reserve(ctx context.Context, req model.AdmissionRequest, idempotencyKey string) (*model.AdmissionResult, error) {
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{HeaderIdempotencyKey: idempotencyKey}
	}

	resp, err := c.httpClient.POST(ctx, "/api/v1/admissions", req, headers)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusConflict {
		var body struct {
			Code    string `json:"code"`
			Details struct {
				Failures []model.LineItemFailure `json:"failures"`
			} `json:"details"`
		}
		if err := json.Unmarshal(resp.Body, &body); err == nil && len(body.Details.Failures) > 0 {
			return &model.AdmissionResult{
				Admitted: false,
				OrderRef: req.OrderRef,
				Failures: body.Details.Failures,
			}, nil
		}
	}
	if err := AsAPIError(resp); err != nil {
		return nil, err
	}

	var result model.AdmissionResult
	if err := resp.DecodeData(&result); err != nil {
		return nil, fmt.Errorf("could not decode admission result: %w", err)
	}
	return &result, nil
}

func (c *CapacityClient) Release(ctx context.Context, req model.ReleaseRequest) error {
	resp, err := c.httpClient.POST(ctx, "/api/v1/admissions/release", req, nil)
	if err != nil {
		return err
	}
	return AsAPIError(resp)
}

package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crewtimer/lynxbridge/pkg/domain"
)

// Ack is the per-item result returned by the results service, aligned by
// position with the submitted batch.
type Ack struct {
	Code string `json:"code"`
}

// Transport sends a batch of lap envelopes to the results service.
type Transport interface {
	Send(ctx context.Context, items []domain.TxLapItem) ([]Ack, error)
}

const (
	prodURL = "https://results.crewtimer.com/util"
	devURL  = "https://crewtimer-results-dev.firebaseapp.com/util"
)

// ConnectionProps derives the regatta id and endpoint URL from a mobile
// id. Ids prefixed with "t." select the dev endpoint.
func ConnectionProps(mobileID string) (regattaID, endpoint string) {
	endpoint = prodURL
	id := mobileID
	if strings.HasPrefix(id, "t.") {
		endpoint = devURL
		id = id[2:]
	}
	return strings.ReplaceAll(id, ".", ""), endpoint
}

// HTTPTransport posts lap batches to the results service as a
// form-encoded request carrying the regatta id, the shared pin and the
// JSON-encoded envelope list.
type HTTPTransport struct {
	url       string
	regattaID string
	pin       string
	client    *http.Client
}

// NewHTTPTransport builds a transport from a mobile id and pin.
func NewHTTPTransport(mobileID, pin string) *HTTPTransport {
	regattaID, endpoint := ConnectionProps(mobileID)
	return NewHTTPTransportURL(endpoint, regattaID, pin)
}

// NewHTTPTransportURL builds a transport against an explicit endpoint.
func NewHTTPTransportURL(endpoint, regattaID, pin string) *HTTPTransport {
	return &HTTPTransport{
		url:       endpoint,
		regattaID: regattaID,
		pin:       pin,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// response carries either an ack list or an error object in its list
// field, depending on how the call went server-side.
type response struct {
	List json.RawMessage `json:"list"`
}

type listError struct {
	Error string `json:"error"`
}

func (t *HTTPTransport) Send(ctx context.Context, items []domain.TxLapItem) ([]Ack, error) {
	list, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lap batch: %w", err)
	}

	form := url.Values{}
	form.Set("regatta", t.regattaID)
	form.Set("password", t.pin)
	form.Set("list", string(list))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach results service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("results service returned %s", resp.Status)
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var acks []Ack
	if err := json.Unmarshal(r.List, &acks); err != nil {
		// error shows up as an object with an error field instead of a list
		var le listError
		if err2 := json.Unmarshal(r.List, &le); err2 == nil && le.Error != "" {
			return nil, fmt.Errorf("results service error: %s", le.Error)
		}
		return nil, fmt.Errorf("unexpected response shape: %w", err)
	}
	return acks, nil
}

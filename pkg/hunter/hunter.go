// Package hunter is a minimal client for the hunter.io domain-search API.
package hunter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// Client calls the email-discovery API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a Client. baseURL defaults to the public v2 endpoint.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.hunter.io/v2"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// DomainSearchResult is the payload of a domain-search call.
type DomainSearchResult struct {
	Pattern string  `json:"pattern"`
	Emails  []Email `json:"emails"`
}

// Email is one discovered address with its evidence trail.
type Email struct {
	Value     string   `json:"value"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Sources   []Source `json:"sources"`
	LinkedIn  string   `json:"linkedin"`
}

// Source is a document where the address was observed. ExtractedOn and
// LastSeenOn are YYYY-MM-DD dates.
type Source struct {
	Domain      string `json:"domain"`
	URI         string `json:"uri"`
	ExtractedOn string `json:"extracted_on"`
	LastSeenOn  string `json:"last_seen_on"`
}

type domainSearchEnvelope struct {
	Data   DomainSearchResult `json:"data"`
	Errors []struct {
		Details string `json:"details"`
	} `json:"errors"`
}

// DomainSearch returns discovered emails for a domain, up to limit.
func (c *Client) DomainSearch(ctx context.Context, domain string, limit int) (*DomainSearchResult, error) {
	q := url.Values{}
	q.Set("domain", domain)
	q.Set("api_key", c.apiKey)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	endpoint := fmt.Sprintf("%s/domain-search?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "hunter: domain search %s", domain)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, eris.Wrap(err, "hunter: read response")
	}

	var envelope domainSearchEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrapf(err, "hunter: decode response for %s", domain)
	}

	if resp.StatusCode != http.StatusOK {
		detail := ""
		if len(envelope.Errors) > 0 {
			detail = ": " + envelope.Errors[0].Details
		}
		return nil, eris.Errorf("hunter: domain search %s returned %d%s", domain, resp.StatusCode, detail)
	}

	return &envelope.Data, nil
}

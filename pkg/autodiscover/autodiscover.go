// Package autodiscover queries Microsoft's Autodiscover service for a
// domain's federation information, which reveals sibling domains in the same
// tenant.
package autodiscover

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	// DefaultEndpoint is the public Autodiscover SOAP endpoint.
	DefaultEndpoint = "https://autodiscover-s.outlook.com/autodiscover/autodiscover.svc"

	soapAction = "http://schemas.microsoft.com/exchange/2010/Autodiscover/Autodiscover/GetFederationInformation"
)

const requestTemplate = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:exm="http://schemas.microsoft.com/exchange/services/2006/messages"
    xmlns:ext="http://schemas.microsoft.com/exchange/services/2006/types"
    xmlns:a="http://www.w3.org/2005/08/addressing"
    xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"
    xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
    xmlns:xsd="http://www.w3.org/2001/XMLSchema">
  <soap:Header>
    <a:Action soap:mustUnderstand="1">` + soapAction + `</a:Action>
    <a:To soap:mustUnderstand="1">` + DefaultEndpoint + `</a:To>
    <a:ReplyTo>
      <a:Address>http://www.w3.org/2005/08/addressing/anonymous</a:Address>
    </a:ReplyTo>
  </soap:Header>
  <soap:Body>
    <GetFederationInformationRequestMessage xmlns="http://schemas.microsoft.com/exchange/2010/Autodiscover">
      <Request>
        <Domain>%s</Domain>
      </Request>
    </GetFederationInformationRequestMessage>
  </soap:Body>
</soap:Envelope>`

// FederationInfo is the useful subset of a GetFederationInformation response.
type FederationInfo struct {
	ApplicationURI string
	Domains        []string
}

// Client calls the Autodiscover SOAP service.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a Client. An empty endpoint uses DefaultEndpoint.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

type soapEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Response struct {
			Response struct {
				ErrorCode      string `xml:"ErrorCode"`
				ErrorMessage   string `xml:"ErrorMessage"`
				ApplicationURI string `xml:"ApplicationUri"`
				Domains        struct {
					Domain []string `xml:"Domain"`
				} `xml:"Domains"`
			} `xml:"Response"`
		} `xml:"GetFederationInformationResponseMessage"`
	} `xml:"Body"`
}

// GetFederationInformation returns the federated domains for a domain.
func (c *Client) GetFederationInformation(ctx context.Context, domain string) (*FederationInfo, error) {
	body := fmt.Sprintf(requestTemplate, domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "autodiscover: build request")
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+soapAction+`"`)
	req.Header.Set("User-Agent", "AutodiscoverClient")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "autodiscover: federation request %s", domain)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "autodiscover: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("autodiscover: unexpected status %d for %s", resp.StatusCode, domain)
	}

	var envelope soapEnvelope
	if err := xml.Unmarshal(raw, &envelope); err != nil {
		return nil, eris.Wrapf(err, "autodiscover: decode response for %s", domain)
	}

	inner := envelope.Body.Response.Response
	if inner.ErrorCode != "" && inner.ErrorCode != "NoError" {
		return nil, eris.Errorf("autodiscover: %s for %s: %s", inner.ErrorCode, domain, inner.ErrorMessage)
	}

	return &FederationInfo{
		ApplicationURI: inner.ApplicationURI,
		Domains:        inner.Domains.Domain,
	}, nil
}

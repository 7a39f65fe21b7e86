// Package fattail is the gateway to the order-management system's SOAP
// API: report jobs, client/order/drop records, and dynamic properties.
package fattail

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
)

const (
	soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	actionNS       = "https://ws.fattail.com/services/"
)

// Fault is a SOAP fault: the remote understood the request and rejected
// it. Faults are not retried.
type Fault struct {
	XMLName xml.Name `xml:"Fault"`
	Code    string   `xml:"faultcode"`
	Message string   `xml:"faultstring"`
}

func (f *Fault) Error() string {
	return fmt.Sprintf("order api fault %s: %s", f.Code, f.Message)
}

type soapEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	SoapNS  string   `xml:"xmlns:soap,attr"`
	Body    soapBody
}

type soapBody struct {
	XMLName xml.Name `xml:"soap:Body"`
	Payload any
}

type respEnvelope struct {
	Body struct {
		Fault *Fault `xml:"Fault"`
		Inner []byte `xml:",innerxml"`
	} `xml:"Body"`
}

type wireResponse struct {
	status int
	body   []byte
}

// Client issues SOAP calls with basic-auth credentials and the same
// bounded-retry policy as the workspace gateway. Transport failures are
// retried; faults and decode failures are not.
type Client struct {
	endpoint    string
	username    string
	password    string
	httpClient  *http.Client
	retryConfig retry.Config
	logger      *slog.Logger
}

func NewClient(endpoint, username, password string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:   endpoint,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  250 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
		logger: logger,
	}
}

// Call invokes one SOAP action. request is the action payload struct (its
// XMLName names the action element); result, when non-nil, receives the
// decoded response element.
func (c *Client) Call(ctx context.Context, action string, request, result any) error {
	payload, err := xml.Marshal(soapEnvelope{
		SoapNS: soapEnvelopeNS,
		Body:   soapBody{Payload: request},
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", action, err)
	}

	r := retry.New[*wireResponse](c.retryConfig)
	resp, err := r.Do(ctx, func(ctx context.Context) (*wireResponse, error) {
		resp, err := c.once(ctx, action, payload)
		if err != nil {
			c.logger.Warn("order api transport failure", "action", action, "error", err)
		}
		return resp, err
	})
	if err != nil {
		return err
	}

	var envelope respEnvelope
	if err := xml.Unmarshal(resp.body, &envelope); err != nil {
		if resp.status != http.StatusOK {
			return fmt.Errorf("order api error (%d) on %s: %s", resp.status, action, resp.body)
		}
		return fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	if envelope.Body.Fault != nil {
		return envelope.Body.Fault
	}
	if resp.status != http.StatusOK {
		return fmt.Errorf("order api error (%d) on %s: %s", resp.status, action, resp.body)
	}
	if result == nil {
		return nil
	}
	if err := xml.Unmarshal(envelope.Body.Inner, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", action, err)
	}
	return nil
}

func (c *Client) once(ctx context.Context, action string, payload []byte) (*wireResponse, error) {
	body := append([]byte(xml.Header), payload...)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", actionNS+action)
	req.SetBasicAuth(c.username, c.password)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	return &wireResponse{status: httpResp.StatusCode, body: data}, nil
}

// Package eis talks to the procurement registry's document-export SOAP
// service through the local tunnel.
package eis

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/eis-ingest/internal/fetcher"
	"github.com/sells-group/eis-ingest/internal/resilience"
)

// ErrSOAPFault is returned when the service answers with a SOAP Fault.
var ErrSOAPFault = eris.New("eis: soap fault")

// Query selects one day of documents for a region, subsystem and document type.
type Query struct {
	Region    string // two-digit region code
	Law       string // "44" or "223"
	Subsystem string // PRIZ, RGK, RI223, RD223
	DocType   string
	Date      time.Time
}

func (q Query) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", q.Region, q.Subsystem, q.DocType, q.Date.Format(time.DateOnly))
}

// Options configures a Client.
type Options struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
	Retry    resilience.RetryConfig
	// Breaker is shared by every request; nil disables it.
	Breaker *resilience.Breaker
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Client requests archive URLs from the SOAP service.
type Client struct {
	opts   Options
	client *http.Client
	log    *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewClient creates a Client.
func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, eris.New("eis: endpoint is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	return &Client{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		log:    zap.L().With(zap.String("component", "eis")),
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

var envelope = template.Must(template.New("envelope").Funcs(template.FuncMap{"x": escape}).Parse(
	`<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ws="http://zakupki.gov.ru/fz44/get-docs-ip/ws">
  <soapenv:Header>
    <individualPerson_token>{{x .Token}}</individualPerson_token>
  </soapenv:Header>
  <soapenv:Body>
    <ws:getDocsByOrgRegionRequest>
      <index>
        <id>{{.ID}}</id>
        <createDateTime>{{.Created}}</createDateTime>
        <mode>PROD</mode>
      </index>
      <selectionParams>
        <orgRegion>{{x .Region}}</orgRegion>
        <subsystemType>{{x .Subsystem}}</subsystemType>
        <documentType{{.Law}}>{{x .DocType}}</documentType{{.Law}}>
        <periodInfo>
          <exactDate>{{.Date}}</exactDate>
        </periodInfo>
      </selectionParams>
    </ws:getDocsByOrgRegionRequest>
  </soapenv:Body>
</soapenv:Envelope>
`))

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// Envelope renders the request body for q.
func (c *Client) Envelope(q Query) ([]byte, error) {
	law := q.Law
	if law != "44" && law != "223" {
		return nil, eris.Errorf("eis: unknown law %q", q.Law)
	}
	region := q.Region
	if len(region) < 2 {
		region = strings.Repeat("0", 2-len(region)) + region
	}

	var buf bytes.Buffer
	err := envelope.Execute(&buf, map[string]string{
		"Token":     c.opts.Token,
		"ID":        c.newID(),
		"Created":   c.now().UTC().Format("2006-01-02T15:04:05Z"),
		"Region":    region,
		"Subsystem": q.Subsystem,
		"Law":       law,
		"DocType":   q.DocType,
		"Date":      q.Date.Format(time.DateOnly),
	})
	if err != nil {
		return nil, eris.Wrap(err, "eis: render envelope")
	}
	return buf.Bytes(), nil
}

type archiveURL struct {
	Value string `xml:",chardata"`
}

type fault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

// ArchiveURLs returns the archive URLs published for q. An empty result is
// not an error.
func (c *Client) ArchiveURLs(ctx context.Context, q Query) ([]string, error) {
	body, err := c.Envelope(q)
	if err != nil {
		return nil, err
	}

	retry := c.opts.Retry
	retry.OnRetry = resilience.RetryLogger("eis " + q.String())

	var urls []string
	call := func(ctx context.Context) error {
		return resilience.Do(ctx, retry, func(ctx context.Context) error {
			var err error
			urls, err = c.post(ctx, body)
			return err
		})
	}
	if c.opts.Breaker != nil {
		err = c.opts.Breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "eis: query %s", q)
	}

	c.log.Info("archive urls received", zap.String("query", q.String()), zap.Int("urls", len(urls)))
	return urls, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "read response"), resp.StatusCode)
	}

	faults, _ := fetcher.CollectXML[fault](ctx, bytes.NewReader(data), "Fault")
	if len(faults) > 0 {
		return nil, eris.Wrapf(ErrSOAPFault, "%s: %s", strings.TrimSpace(faults[0].Code), strings.TrimSpace(faults[0].String))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := eris.Errorf("eis: http %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	found, err := fetcher.CollectXML[archiveURL](ctx, bytes.NewReader(data), "archiveUrl")
	if err != nil {
		return nil, eris.Wrap(err, "eis: parse response")
	}
	urls := make([]string, 0, len(found))
	for _, u := range found {
		if v := strings.TrimSpace(u.Value); v != "" {
			urls = append(urls, v)
		}
	}
	return urls, nil
}

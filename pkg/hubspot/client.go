// Package hubspot provides a client for the HubSpot CRM v3 API: list
// memberships, contact reads, and contact property updates.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-categorizer/internal/resilience"
)

const (
	defaultBaseURL  = "https://api.hubapi.com"
	defaultMaxPages = 20
	pageSize        = 100

	serviceName = "hubspot"
)

// Client defines the HubSpot operations used by the pipeline.
type Client interface {
	// ListMemberships returns the record IDs of the contacts in a list,
	// paginating until the list is exhausted or limit IDs are collected.
	// limit <= 0 means unbounded (up to the page-count safety cap).
	ListMemberships(ctx context.Context, listID string, limit int) ([]string, error)
	// GetContact fetches the named properties of a contact.
	GetContact(ctx context.Context, contactID string, properties []string) (*Contact, error)
	// UpdateContact sets property values on a contact. Last write wins, so
	// repeating the same update is a no-op on the remote state.
	UpdateContact(ctx context.Context, contactID string, properties map[string]string) error
}

// Contact is a HubSpot contact record.
type Contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// membershipPage is the response body of GET /crm/v3/lists/{id}/memberships.
type membershipPage struct {
	Results []struct {
		RecordID string `json:"recordId"`
	} `json:"results"`
	Paging *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
	Total int `json:"total"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *httpClient) {
		c.retry = p
	}
}

// WithRateLimit sets the request rate limit in requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithMaxPages caps how many membership pages a single list fetch may read.
// Guards against runaway pagination on misconfigured lists.
func WithMaxPages(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

type httpClient struct {
	token    string
	baseURL  string
	http     *http.Client
	retry    resilience.Policy
	limiter  *rate.Limiter
	maxPages int
}

// NewClient creates a HubSpot API client authenticated with a private app
// access token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry:    resilience.DefaultPolicy(),
		limiter:  rate.NewLimiter(rate.Limit(8), 1),
		maxPages: defaultMaxPages,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// do issues one request under the rate limiter and retry policy, returning
// the response body. Non-2xx responses become UpstreamError; transient
// statuses are retried before surfacing.
func (c *httpClient) do(ctx context.Context, operation string, build func() (*http.Request, error)) ([]byte, error) {
	return resilience.Do(ctx, c.retry, serviceName, operation, func(ctx context.Context) ([]byte, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "hubspot: rate limit wait")
			}
		}

		req, err := build()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, resilience.NewUpstreamError(serviceName, 0, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resilience.NewUpstreamError(serviceName, resp.StatusCode, eris.Wrap(err, "read response body"))
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, resilience.NewUpstreamError(serviceName, resp.StatusCode,
				eris.Errorf("%s: %s", operation, strings.TrimSpace(string(body))))
		}

		return body, nil
	})
}

func (c *httpClient) ListMemberships(ctx context.Context, listID string, limit int) ([]string, error) {
	var ids []string
	after := ""

	for page := 0; page < c.maxPages; page++ {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(pageSize))
		if after != "" {
			q.Set("after", after)
		}
		endpoint := fmt.Sprintf("%s/crm/v3/lists/%s/memberships?%s", c.baseURL, url.PathEscape(listID), q.Encode())

		body, err := c.do(ctx, "list memberships", func() (*http.Request, error) {
			return http.NewRequest(http.MethodGet, endpoint, nil)
		})
		if err != nil {
			return nil, err
		}

		var pageResp membershipPage
		if err := json.Unmarshal(body, &pageResp); err != nil {
			return nil, eris.Wrap(err, "hubspot: unmarshal memberships")
		}

		for _, m := range pageResp.Results {
			if m.RecordID == "" {
				continue
			}
			ids = append(ids, m.RecordID)
			if limit > 0 && len(ids) >= limit {
				return ids, nil
			}
		}

		if pageResp.Paging == nil || pageResp.Paging.Next == nil || pageResp.Paging.Next.After == "" {
			return ids, nil
		}
		after = pageResp.Paging.Next.After
	}

	return ids, nil
}

func (c *httpClient) GetContact(ctx context.Context, contactID string, properties []string) (*Contact, error) {
	endpoint := fmt.Sprintf("%s/crm/v3/objects/contacts/%s", c.baseURL, url.PathEscape(contactID))
	if len(properties) > 0 {
		endpoint += "?properties=" + url.QueryEscape(strings.Join(properties, ","))
	}

	body, err := c.do(ctx, "get contact", func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, err
	}

	var contact Contact
	if err := json.Unmarshal(body, &contact); err != nil {
		return nil, eris.Wrap(err, "hubspot: unmarshal contact")
	}
	return &contact, nil
}

func (c *httpClient) UpdateContact(ctx context.Context, contactID string, properties map[string]string) error {
	payload, err := json.Marshal(map[string]any{"properties": properties})
	if err != nil {
		return eris.Wrap(err, "hubspot: marshal update")
	}

	endpoint := fmt.Sprintf("%s/crm/v3/objects/contacts/%s", c.baseURL, url.PathEscape(contactID))
	_, err = c.do(ctx, "update contact", func() (*http.Request, error) {
		return http.NewRequest(http.MethodPatch, endpoint, bytes.NewReader(payload))
	})
	return err
}

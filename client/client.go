// Package client provides a small client for the metadata service api
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/YaleSpinup/mds-api/apierror"
	"github.com/YaleSpinup/mds-api/metadata"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
)

// Client is a metadata service api client for a single account
type Client struct {
	endpoint   string
	token      string
	account    string
	httpClient *retryablehttp.Client
}

// DeprecationInput is the input for deprecation updates
type DeprecationInput struct {
	Deprecated bool   `json:"deprecated"`
	Note       string `json:"note"`
	// decommission time in milliseconds since the epoch
	DecommissionTime int64  `json:"decommission_time"`
	Actor            string `json:"actor"`
}

// DatasetInput is the input for creating a dataset entity
type DatasetInput struct {
	Name             string            `json:"name"`
	Platform         string            `json:"platform"`
	Env              string            `json:"env"`
	Description      string            `json:"description"`
	SubTypes         []string          `json:"sub_types"`
	CustomProperties map[string]string `json:"custom_properties"`
	Tags             []string          `json:"tags"`
	CreatedBy        string            `json:"created_by"`
}

// Option is a function to set client options
type Option func(*Client)

// WithRetryMax sets the maximum number of request retries
func WithRetryMax(max int) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = max
	}
}

// WithTimeout sets the underlying http client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.HTTPClient.Timeout = timeout
	}
}

// New creates a new metadata service client.  The endpoint is the base url of
// the service without the version prefix, ie. http://localhost:8080
func New(endpoint, token, account string, opts ...Option) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.RetryWaitMin = 500 * time.Millisecond
	httpClient.RetryWaitMax = 5 * time.Second
	httpClient.Logger = nil

	c := &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		token:      token,
		account:    account,
		httpClient: httpClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody *bytes.Buffer
	if body != nil {
		j, err := json.Marshal(body)
		if err != nil {
			return apierror.New(apierror.ErrInternalError, "unable to marshal request body", err)
		}
		reqBody = bytes.NewBuffer(j)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := retryablehttp.NewRequest(method, c.endpoint+"/v1/metadata/"+c.account+path, reqBody)
	if err != nil {
		return apierror.New(apierror.ErrInternalError, "unable to create request", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("X-Auth-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierror.New(apierror.ErrServiceUnavailable, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return apierror.New(apierror.ErrInternalError, "unable to read response body", err)
	}

	if resp.StatusCode >= 300 {
		msg := fmt.Sprintf("%s %s returned %d: %s", method, path, resp.StatusCode, string(respBody))
		switch resp.StatusCode {
		case http.StatusBadRequest:
			return apierror.New(apierror.ErrBadRequest, msg, nil)
		case http.StatusForbidden:
			return apierror.New(apierror.ErrForbidden, msg, nil)
		case http.StatusNotFound:
			return apierror.New(apierror.ErrNotFound, msg, nil)
		case http.StatusConflict:
			return apierror.New(apierror.ErrConflict, msg, nil)
		case http.StatusTooManyRequests:
			return apierror.New(apierror.ErrLimitExceeded, msg, nil)
		case http.StatusServiceUnavailable:
			return apierror.New(apierror.ErrServiceUnavailable, msg, nil)
		default:
			return apierror.New(apierror.ErrInternalError, msg, nil)
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return apierror.New(apierror.ErrInternalError, "unable to unmarshal response body", err)
		}
	}

	return nil
}

// CreateDataset creates a new dataset entity
func (c *Client) CreateDataset(ctx context.Context, input *DatasetInput) (*metadata.Metadata, error) {
	out := &metadata.Metadata{}
	if err := c.do(ctx, http.MethodPost, "/entities", input, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEntities lists the entity urns for the account
func (c *Client) ListEntities(ctx context.Context) ([]string, error) {
	out := struct {
		URNs []string `json:"urns"`
	}{}
	if err := c.do(ctx, http.MethodGet, "/entities", nil, &out); err != nil {
		return nil, err
	}
	return out.URNs, nil
}

// GetEntity gets a metadata document by urn
func (c *Client) GetEntity(ctx context.Context, urn string) (*metadata.Metadata, error) {
	out := &metadata.Metadata{}
	if err := c.do(ctx, http.MethodGet, "/entities/"+url.QueryEscape(urn), nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEntity deletes an entity.  By default the delete is soft, passing
// hard removes the metadata document permanently.
func (c *Client) DeleteEntity(ctx context.Context, urn string, hard bool) error {
	path := "/entities/" + url.QueryEscape(urn)
	if hard {
		path = path + "?hard=true"
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Search searches the entity index for the account
func (c *Client) Search(ctx context.Context, input *metadata.SearchInput) (*metadata.SearchResult, error) {
	out := &metadata.SearchResult{}
	if err := c.do(ctx, http.MethodPost, "/search", input, out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateDeprecation updates the deprecation status of an entity
func (c *Client) UpdateDeprecation(ctx context.Context, urn string, input *DeprecationInput) (*metadata.Metadata, error) {
	out := &metadata.Metadata{}
	if err := c.do(ctx, http.MethodPatch, "/entities/"+url.QueryEscape(urn)+"/deprecation", input, out); err != nil {
		return nil, err
	}
	return out, nil
}

// BatchUpdateDeprecation updates the deprecation status of a batch of entities
func (c *Client) BatchUpdateDeprecation(ctx context.Context, urns []string, input *DeprecationInput) error {
	body := struct {
		URNs             []string `json:"urns"`
		Deprecated       bool     `json:"deprecated"`
		Note             string   `json:"note"`
		DecommissionTime int64    `json:"decommission_time"`
		Actor            string   `json:"actor"`
	}{urns, input.Deprecated, input.Note, input.DecommissionTime, input.Actor}

	return c.do(ctx, http.MethodPatch, "/deprecation", body, nil)
}

// Ingest submits a metadata change proposal
func (c *Client) Ingest(ctx context.Context, proposal *metadata.ChangeProposal) error {
	return c.do(ctx, http.MethodPost, "/ingest", proposal, nil)
}

// GetEntityLogs gets the audit log events for an entity
func (c *Client) GetEntityLogs(ctx context.Context, urn string) ([]string, error) {
	out := struct {
		Events []string `json:"events"`
	}{}
	if err := c.do(ctx, http.MethodGet, "/entities/"+url.QueryEscape(urn)+"/logs", nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

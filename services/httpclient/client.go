// Package httpclient sends the portal's requests to the backend REST API.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
)

const HeaderRequestID = "X-Request-ID"

type (
	// Requester sends one request and returns the response, or a *core.APIError.
	Requester interface {
		Do(ctx context.Context, req *Request) (*Response, error)
	}

	// File is one part of a multipart upload.
	File struct {
		Param   string // form field name, eg. "photo"
		Name    string // file name
		Content []byte
	}

	Request struct {
		Method string
		Path   string
		Body   interface{} // JSON-encoded unless Files or Form are set
		Files  []File
		Form   map[string]string
		Query  url.Values
		Header http.Header
	}

	Response struct {
		Status int
		Body   []byte
		Header http.Header
	}

	Options struct {
		BaseURL   string
		Timeout   time.Duration
		UserAgent string
		Logger    core.Logger
	}

	// Client is the single configured request sender; it is credential-blind.
	Client struct {
		rc     *resty.Client
		logger core.Logger
	}
)

var _ Requester = (*Client)(nil)

func New(opts Options) *Client {
	rc := resty.New().
		SetBaseURL(opts.BaseURL).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}
	if opts.UserAgent != "" {
		rc.SetHeader("User-Agent", opts.UserAgent)
	}
	return &Client{rc: rc, logger: opts.Logger}
}

// NewFromConfig builds the client out of the api config.
func NewFromConfig(conf core.APIConfig, logger core.Logger) *Client {
	return New(Options{
		BaseURL:   conf.BaseURL,
		Timeout:   conf.Timeout,
		UserAgent: conf.UserAgent,
		Logger:    logger,
	})
}

func (c *Client) BaseURL() string { return c.rc.BaseURL }

func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	r := c.rc.R().
		SetContext(ctx).
		SetHeader(HeaderRequestID, uuid.NewString())
	for key, vals := range req.Header {
		for _, val := range vals {
			r.Header.Add(key, val)
		}
	}
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	switch {
	case len(req.Files) > 0 || len(req.Form) > 0:
		for _, f := range req.Files {
			r.SetFileReader(f.Param, f.Name, bytes.NewReader(f.Content))
		}
		r.SetMultipartFormData(req.Form)
	case req.Body != nil:
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}

	c.debug(method+" "+req.Path, map[string]interface{}{"request_id": r.Header.Get(HeaderRequestID)})
	resp, err := r.Execute(method, req.Path)
	if err != nil {
		c.warn(method+" "+req.Path+": no response", err)
		return nil, core.NormalizeTransport(errors.Wrapf(err, "%s %s", method, req.Path))
	}

	res := &Response{Status: resp.StatusCode(), Body: resp.Body(), Header: resp.Header()}
	if resp.IsError() {
		return res, core.NormalizeResponse(res.Status, res.Body)
	}
	return res, nil
}

// Decode unmarshals the JSON body into v; an empty body leaves v untouched.
func (r *Response) Decode(v interface{}) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &core.APIError{Status: r.Status, Detail: "unexpected response from the server", Err: errors.Wrap(err, "decoding response")}
	}
	return nil
}

func (c *Client) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Client) warn(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

// Get, Post, Put, Patch and Delete are shorthands around Do that decode the response into out (if not nil).

func Get(ctx context.Context, rq Requester, path string, query url.Values, out interface{}) error {
	return call(ctx, rq, &Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func Post(ctx context.Context, rq Requester, path string, body, out interface{}) error {
	return call(ctx, rq, &Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func Put(ctx context.Context, rq Requester, path string, body, out interface{}) error {
	return call(ctx, rq, &Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

func Patch(ctx context.Context, rq Requester, path string, body, out interface{}) error {
	return call(ctx, rq, &Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

func Delete(ctx context.Context, rq Requester, path string) error {
	return call(ctx, rq, &Request{Method: http.MethodDelete, Path: path}, nil)
}

// Send issues req and decodes the response into out (if not nil).
func Send(ctx context.Context, rq Requester, req *Request, out interface{}) error {
	return call(ctx, rq, req, out)
}

func call(ctx context.Context, rq Requester, req *Request, out interface{}) error {
	resp, err := rq.Do(ctx, req)
	if err != nil {
		return err
	}
	if out != nil {
		return resp.Decode(out)
	}
	return nil
}

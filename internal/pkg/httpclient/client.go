// Package httpclient wraps resty for calls to the panel and other external
// HTTP APIs. Every request carries the client timeout; transport errors and
// non-2xx statuses are left to the caller to interpret.
package httpclient

import (
	"crypto/tls"
	"time"

	"github.com/go-resty/resty/v2"
)

// Response carries the pieces of an HTTP exchange the panel client cares
// about. Status is zero only when the request never reached the server.
type Response struct {
	Status int
	Body   []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client is a thin resty wrapper.
type Client struct {
	r *resty.Client
}

// New creates a new HTTP client with sensible defaults.
func New() *Client {
	r := resty.New().SetTimeout(30 * time.Second)
	return &Client{r: r}
}

// WithTimeout sets a custom timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.r.SetTimeout(d)
	return c
}

// WithBearerToken sets a bearer token for authentication.
func (c *Client) WithBearerToken(token string) *Client {
	c.r.SetAuthToken(token)
	return c
}

// WithHeader sets a custom header.
func (c *Client) WithHeader(key, value string) *Client {
	c.r.SetHeader(key, value)
	return c
}

// WithInsecureSkipVerify disables TLS verification. Self-hosted panels often
// run on self-signed certificates.
func (c *Client) WithInsecureSkipVerify() *Client {
	c.r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	return c
}

// Get sends a GET request.
func (c *Client) Get(url string) (*Response, error) {
	return wrap(c.r.R().Get(url))
}

// Head sends a HEAD request.
func (c *Client) Head(url string) (*Response, error) {
	return wrap(c.r.R().Head(url))
}

// Post sends a POST request with a JSON body.
func (c *Client) Post(url string, body interface{}) (*Response, error) {
	req := c.r.R().SetHeader("Content-Type", "application/json")
	if body != nil {
		req.SetBody(body)
	}
	return wrap(req.Post(url))
}

// PostForm sends a POST request with form data.
func (c *Client) PostForm(url string, data map[string]string) (*Response, error) {
	return wrap(c.r.R().SetFormData(data).Post(url))
}

// Put sends a PUT request with a JSON body.
func (c *Client) Put(url string, body interface{}) (*Response, error) {
	return wrap(c.r.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Put(url))
}

// Delete sends a DELETE request.
func (c *Client) Delete(url string) (*Response, error) {
	return wrap(c.r.R().Delete(url))
}

func wrap(resp *resty.Response, err error) (*Response, error) {
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode(), Body: resp.Body()}, nil
}

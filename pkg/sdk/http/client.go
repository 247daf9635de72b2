// Package http wraps resty with the retry and rate-limit behavior the
// Polymarket public APIs need.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

type Client struct {
	client *resty.Client
}

// NewClient builds a client rooted at host. Proxy settings are picked up
// from the standard HTTP_PROXY/HTTPS_PROXY environment variables by resty.
func NewClient(host string) *Client {
	host = strings.TrimRight(host, "/")

	client := resty.New().
		SetBaseURL(host).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// Honor Retry-After on 429 responses.
			if resp.StatusCode() == http.StatusTooManyRequests {
				if ra := resp.Header().Get("Retry-After"); ra != "" {
					if d, err := time.ParseDuration(ra + "s"); err == nil {
						return d, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})

	return &Client{client: client}
}

type RequestOptions struct {
	Headers map[string]string
	Params  map[string]any
	Data    any
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json")
	r.SetHeader("Connection", "keep-alive")
	return r
}

// Get issues a GET and decodes a 2xx response body into out.
func (c *Client) Get(ctx context.Context, endpoint string, opt *RequestOptions, out any) error {
	r := c.newRequest(ctx)
	if opt != nil {
		for k, v := range opt.Headers {
			r.SetHeader(k, v)
		}
		if opt.Params != nil {
			r.SetQueryParamsFromValues(toValues(opt.Params))
		}
	}
	if out != nil {
		r.SetResult(out)
	}

	resp, err := r.Get(endpoint)
	return checkResponse(resp, err)
}

func toValues(m map[string]any) map[string][]string {
	v := make(map[string][]string, len(m))
	for k, val := range m {
		switch t := val.(type) {
		case []string:
			v[k] = t
		default:
			v[k] = []string{fmt.Sprint(val)}
		}
	}
	return v
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	if resp.IsSuccess() {
		return nil
	}

	var body any
	b := resp.Body()
	_ = json.Unmarshal(b, &body)
	if body == nil {
		body = strings.TrimSpace(string(b))
	}
	return errors.Errorf("http %d: %v", resp.StatusCode(), body)
}

////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package backend is the HTTP client for the hosted backend: row access
// through the REST API, object storage and the auxiliary service. It knows
// nothing about chats; the typed table access lives in backend/tables.
package backend

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/valyala/fasthttp"
)

// Error messages.
const (
	requestErr = "%s %s failed"
	decodeErr  = "failed to decode response of %s %s"
	encodeErr  = "failed to encode body of %s %s"
)

// Client calls the backend on behalf of one signed-in user. It is safe for
// concurrent use.
type Client struct {
	params Params
	hc     *fasthttp.Client

	accessToken string
	mux         sync.RWMutex
}

// NewClient returns a client that authenticates with the access token.
func NewClient(params Params, accessToken string) *Client {
	hc := &fasthttp.Client{
		Name:            params.UserAgent,
		MaxConnsPerHost: params.MaxConnsPerHost,
	}
	return newClient(params, accessToken, hc)
}

func newClient(params Params, accessToken string, hc *fasthttp.Client) *Client {
	params.URL = strings.TrimRight(params.URL, "/")
	params.AuxURL = strings.TrimRight(params.AuxURL, "/")
	return &Client{
		params:      params,
		hc:          hc,
		accessToken: accessToken,
	}
}

// Params returns the parameters the client was built with.
func (c *Client) Params() Params {
	return c.params
}

// AccessToken returns the current access token.
func (c *Client) AccessToken() string {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.accessToken
}

// SetAccessToken replaces the access token, e.g. after a refresh.
func (c *Client) SetAccessToken(token string) {
	c.mux.Lock()
	c.accessToken = token
	c.mux.Unlock()
}

// request describes a single call.
type request struct {
	method      Method
	url         string
	args        [][2]string
	headers     map[string]string
	body        []byte
	contentType string
	noAuth      bool
}

// response is a successful reply.
type response struct {
	status  int
	body    []byte
	headers map[string]string
}

// do sends the request and returns the response of a 2xx reply. Any other
// status is returned as an *Error. A context deadline takes precedence over
// the default timeout.
func (c *Client) do(ctx context.Context, r request) (*response, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithMessagef(err, requestErr, r.method, r.url)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.url)
	for _, a := range r.args {
		req.URI().QueryArgs().Add(a[0], a[1])
	}
	req.Header.SetMethod(r.method.String())
	req.Header.Set("Accept", "application/json")
	if c.params.AnonKey != "" {
		req.Header.Set("apikey", c.params.AnonKey)
	}
	if token := c.AccessToken(); token != "" && !r.noAuth {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if r.body != nil {
		req.SetBody(r.body)
		ct := r.contentType
		if ct == "" {
			ct = "application/json"
		}
		req.Header.SetContentType(ct)
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.hc.DoDeadline(req, resp, deadline)
	} else {
		err = c.hc.DoTimeout(req, resp, c.params.Timeout)
	}
	if err != nil {
		return nil, errors.Wrapf(err, requestErr, r.method, r.url)
	}

	status := resp.StatusCode()
	body := append([]byte(nil), resp.Body()...)
	jww.TRACE.Printf("[BACKEND] %s %s -> %d (%d bytes)",
		r.method, r.url, status, len(body))

	if status < fasthttp.StatusOK || status >= fasthttp.StatusMultipleChoices {
		return nil, errors.WithMessagef(parseError(status, body),
			requestErr, r.method, r.url)
	}

	headers := make(map[string]string)
	resp.Header.VisitAll(func(k, v []byte) {
		headers[string(k)] = string(v)
	})

	return &response{status: status, body: body, headers: headers}, nil
}

// doJSON sends in as the JSON body, if set, and decodes the reply into out,
// if set.
func (c *Client) doJSON(ctx context.Context, r request, in, out interface{}) error {
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, encodeErr, r.method, r.url)
		}
		r.body = body
	}

	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}

	if out != nil && len(resp.body) > 0 {
		if err = json.Unmarshal(resp.body, out); err != nil {
			return errors.Wrapf(err, decodeErr, r.method, r.url)
		}
	}
	return nil
}

package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/rehttp"
	"github.com/rs/zerolog/log"

	"github.com/txsvc/apikit/config"
	"github.com/txsvc/apikit/settings"
	"github.com/txsvc/stdlib/v2"
)

const (
	// format error messages
	MsgStatus = "%s. status: %d"
)

// RestClient - API client encapsulating the http client
type (
	// StatusObject is used to report operation status and errors in an API request.
	// The struct can be used as a response object or be treated as an error object
	StatusObject struct {
		Status    int    `json:"status"`
		Message   string `json:"message"`
		RootError error  `json:"-"`
	}

	RestClient struct {
		HttpClient *http.Client
		Settings   *settings.DialSettings
		Trace      string
	}

	LoggingTransport struct {
		InnerTransport http.RoundTripper
	}

	contextKey struct {
		name string
	}
)

var (
	// ErrApiInvocationError indicates an error in an API call
	ErrApiInvocationError = errors.New("api invocation error")

	ctxKeyRequestStart = &contextKey{"RequestStart"}
)

// NewRestClient creates a RestClient with the retrying, logging transport on top of transport.
// A nil transport means http.DefaultTransport.
func NewRestClient(ds *settings.DialSettings, transport http.RoundTripper) *RestClient {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &RestClient{
		HttpClient: NewLoggingTransport(transport),
		Settings:   ds,
		Trace:      stdlib.GetString(config.ForceTraceENV, ""),
	}
}

// GET is used to request data from the API. No payload, only queries!
func (c *RestClient) GET(ctx context.Context, uri string, response interface{}) (int, error) {
	return c.request(ctx, http.MethodGet, fmt.Sprintf("%s%s", c.Settings.Endpoint, uri), nil, response)
}

func (c *RestClient) POST(ctx context.Context, uri string, request, response interface{}) (int, error) {
	return c.request(ctx, http.MethodPost, fmt.Sprintf("%s%s", c.Settings.Endpoint, uri), request, response)
}

func (c *RestClient) PUT(ctx context.Context, uri string, request, response interface{}) (int, error) {
	return c.request(ctx, http.MethodPut, fmt.Sprintf("%s%s", c.Settings.Endpoint, uri), request, response)
}

func (c *RestClient) PATCH(ctx context.Context, uri string, request, response interface{}) (int, error) {
	return c.request(ctx, http.MethodPatch, fmt.Sprintf("%s%s", c.Settings.Endpoint, uri), request, response)
}

func (c *RestClient) DELETE(ctx context.Context, uri string, request, response interface{}) (int, error) {
	return c.request(ctx, http.MethodDelete, fmt.Sprintf("%s%s", c.Settings.Endpoint, uri), request, response)
}

// Upload posts a raw body, e.g. an image, instead of a JSON document.
func (c *RestClient) Upload(ctx context.Context, uri, contentType string, body io.Reader, response interface{}) (int, error) {
	// buffer the body, the retry transport has to be able to replay it
	data, err := io.ReadAll(body)
	if err != nil {
		return http.StatusBadRequest, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", c.Settings.Endpoint, uri), bytes.NewReader(data))
	if err != nil {
		return http.StatusBadRequest, err
	}
	req.Header.Set("Content-Type", contentType)

	return c.roundTrip(req, response)
}

func (c *RestClient) request(ctx context.Context, method, url string, request, response interface{}) (int, error) {
	var body io.Reader

	if request != nil {
		p, err := json.Marshal(request)
		if err != nil {
			return http.StatusInternalServerError, err
		}
		body = bytes.NewReader(p)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return http.StatusBadRequest, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	return c.roundTrip(req, response)
}

func (c *RestClient) roundTrip(req *http.Request, response interface{}) (int, error) {

	if c.Settings.UserAgent != "" {
		req.Header.Set("User-Agent", c.Settings.UserAgent)
	}

	if cr := c.Settings.Credentials; cr != nil {
		if cr.UserID != "" && cr.Token != "" {
			req.SetBasicAuth(cr.UserID, cr.Token)
		} else if cr.Token != "" {
			req.Header.Set("Authorization", "Bearer "+cr.Token)
		}
	}
	if c.Trace != "" {
		req.Header.Set("X-Request-ID", XID())    // e.g ch3oncmfosvp07shov90
		req.Header.Set("X-Force-Trace", c.Trace) // a predefined value in order to e.g. grep in logs
	}

	// perform the request
	resp, err := c.HttpClient.Do(req)
	if err != nil {
		if resp == nil {
			return http.StatusInternalServerError, err
		}
		return resp.StatusCode, err
	}

	defer resp.Body.Close()

	// anything other than OK, Created, Accepted, NoContent is treated as an error
	if resp.StatusCode > http.StatusNoContent {
		return resp.StatusCode, NewErrorStatus(resp.StatusCode, ErrApiInvocationError, req.URL.Path)
	}

	// unmarshal the response if one is expected
	if response != nil && resp.StatusCode != http.StatusNoContent {
		err = json.NewDecoder(resp.Body).Decode(response)
		if err != nil {
			return http.StatusInternalServerError, err
		}
	}

	return resp.StatusCode, nil
}

func NewLoggingTransport(transport http.RoundTripper) *http.Client {
	retryTransport := rehttp.NewTransport(
		transport,
		rehttp.RetryAll(
			rehttp.RetryMaxRetries(3),
			rehttp.RetryAny(
				rehttp.RetryTemporaryErr(),
				rehttp.RetryStatuses(502, 503),
			),
		),
		rehttp.ExpJitterDelay(100*time.Millisecond, 1*time.Second),
	)

	return &http.Client{
		Transport: &LoggingTransport{
			InnerTransport: retryTransport,
		},
	}
}

// RoundTrip logs the request and reply if the log level is debug or trace
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {

	xreqid := XID()

	if log.Debug().Enabled() {
		req = req.WithContext(context.WithValue(req.Context(), ctxKeyRequestStart, time.Now()))
		t.logRequest(req, xreqid)
	}

	resp, err := t.InnerTransport.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if log.Debug().Enabled() {
		t.logResponse(resp, xreqid)
	}

	return resp, err
}

func (t *LoggingTransport) logRequest(req *http.Request, reqid string) {

	if req.Body == nil {
		log.Debug().Str("m", req.Method).Str("r", req.URL.RequestURI()).Str("uid", reqid).Msg("REQ")
		return
	}

	defer req.Body.Close()

	data, err := io.ReadAll(req.Body)

	if err != nil {
		log.Error().Err(err).Str("uid", reqid).Msg(err.Error())
	} else {
		if log.Trace().Enabled() {
			log.Trace().Str("m", req.Method).Str("r", req.URL.RequestURI()).Bytes("body", data).Str("uid", reqid).Msg("REQ")
		} else {
			log.Debug().Str("m", req.Method).Str("r", req.URL.RequestURI()).Str("uid", reqid).Msg("REQ")
		}
	}

	req.Body = io.NopCloser(bytes.NewReader(data))
}

func (t *LoggingTransport) logResponse(resp *http.Response, reqid string) {
	ctx := resp.Request.Context()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Str("uid", reqid).Msg(err.Error())
	}

	evt := log.Debug()
	if log.Trace().Enabled() {
		evt = log.Trace().Bytes("body", data)
	}
	evt = evt.Str("r", resp.Request.URL.RequestURI()).Int("status", resp.StatusCode).Str("uid", reqid)
	if start, ok := ctx.Value(ctxKeyRequestStart).(time.Time); ok {
		evt = evt.Str("d", Duration(time.Since(start), 2).String())
	}
	evt.Msg("RESP")

	resp.Body = io.NopCloser(bytes.NewReader(data))
}

// NewStatus initializes a new StatusObject
func NewStatus(s int, m string) StatusObject {
	return StatusObject{Status: s, Message: m}
}

// NewErrorStatus initializes a new StatusObject from an error
func NewErrorStatus(s int, e error, hint string) *StatusObject {
	if hint != "" {
		return &StatusObject{Status: s, Message: fmt.Sprintf("%s (%s)", e.Error(), hint), RootError: e}
	}
	return &StatusObject{Status: s, Message: e.Error(), RootError: e}
}

func (so *StatusObject) String() string {
	return fmt.Sprintf(MsgStatus, so.Message, so.Status)
}

func (so *StatusObject) Error() string {
	return so.String()
}

func (so *StatusObject) Unwrap() error {
	return so.RootError
}

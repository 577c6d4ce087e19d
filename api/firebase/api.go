package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/txsvc/apikit/settings"
	"github.com/txsvc/stdlib/v2"

	"github.com/redhat-partner-ecosystem/scootershare/internal"
	"github.com/redhat-partner-ecosystem/scootershare/store"
)

const (
	FirebaseDatabaseURL = "FIREBASE_DATABASE_URL"
	FirebaseAccessToken = "FIREBASE_ACCESS_TOKEN"

	FirebaseApiAgent = "scootershare/firebase"
)

type (
	// Client is a record store backed by the Realtime Database REST API
	Client struct {
		rc *internal.RestClient
	}
)

var _ store.RecordStore = (*Client)(nil)

func NewClient(ctx context.Context, opts ...internal.ClientOption) (*Client, error) {
	ds := &settings.DialSettings{
		Endpoint:    strings.TrimSuffix(stdlib.GetString(FirebaseDatabaseURL, ""), "/"),
		UserAgent:   FirebaseApiAgent,
		Credentials: credentials(),
	}

	// apply options
	internal.ApplyOptions(ds, opts...)

	// do some basic validation
	if ds.Endpoint == "" {
		return nil, fmt.Errorf("missing %s", FirebaseDatabaseURL)
	}

	return &Client{
		rc: internal.NewRestClient(ds, nil),
	}, nil
}

func credentials() *settings.Credentials {
	return &settings.Credentials{
		Token: stdlib.GetString(FirebaseAccessToken, ""),
	}
}

// nodeURI maps a record path to its REST resource
func nodeURI(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(segments, "/") + ".json"
}

func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	var raw json.RawMessage

	status, err := c.rc.GET(ctx, nodeURI(path), &raw)
	if err != nil {
		return mapError("firebase.Get", path, status, err)
	}
	// missing nodes are returned as null
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fmt.Errorf("firebase.Get '%s': %w", path, store.ErrNotFound)
	}

	return json.Unmarshal(raw, out)
}

func (c *Client) Set(ctx context.Context, path string, v interface{}) error {
	status, err := c.rc.PUT(ctx, nodeURI(path), v, nil)
	if err != nil {
		return mapError("firebase.Set", path, status, err)
	}
	return nil
}

func (c *Client) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	status, err := c.rc.PATCH(ctx, nodeURI(path), fields, nil)
	if err != nil {
		return mapError("firebase.Update", path, status, err)
	}
	return nil
}

// Query uses orderBy/limitToLast. The REST API returns the children as an
// unordered object, the order is restored client side.
func (c *Client) Query(ctx context.Context, path, orderBy string, limit int) ([]store.Record, error) {
	q := url.Values{}
	if orderBy != "" {
		q.Set("orderBy", fmt.Sprintf("%q", orderBy))
	}
	if limit > 0 {
		q.Set("limitToLast", fmt.Sprintf("%d", limit))
	}

	uri := nodeURI(path)
	if len(q) > 0 {
		uri = uri + "?" + q.Encode()
	}

	var children map[string]json.RawMessage
	status, err := c.rc.GET(ctx, uri, &children)
	if err != nil {
		return nil, mapError("firebase.Query", path, status, err)
	}

	records := make([]store.Record, 0, len(children))
	for k, v := range children {
		records = append(records, store.Record{Key: k, Value: v})
	}
	store.SortRecords(records, orderBy)

	return records, nil
}

func mapError(op, path string, status int, err error) error {
	if status == http.StatusNotFound {
		return fmt.Errorf("%s '%s': %w", op, path, store.ErrNotFound)
	}
	var so *internal.StatusObject
	if errors.As(err, &so) {
		return fmt.Errorf("%s '%s': %w", op, path, so)
	}
	return fmt.Errorf("%s '%s': %w", op, path, err)
}

package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/txsvc/apikit/settings"
	"github.com/txsvc/stdlib/v2"

	"github.com/redhat-partner-ecosystem/scootershare/internal"
	"github.com/redhat-partner-ecosystem/scootershare/store"
)

const (
	FirebaseStorageEndpoint = "FIREBASE_STORAGE_ENDPOINT"
	FirebaseStorageBucket   = "FIREBASE_STORAGE_BUCKET"
	FirebaseAccessToken     = "FIREBASE_ACCESS_TOKEN"

	DefaultStorageEndpoint = "https://firebasestorage.googleapis.com"
	StorageApiAgent        = "scootershare/storage"

	// photos are always uploaded as jpeg
	contentType = "image/jpeg"
)

type (
	// Client is an object store backed by the Firebase Storage REST API
	Client struct {
		rc     *internal.RestClient
		bucket string
	}
)

var _ store.ObjectStore = (*Client)(nil)

func NewClient(ctx context.Context, opts ...internal.ClientOption) (*Client, error) {
	ds := &settings.DialSettings{
		Endpoint:  strings.TrimSuffix(stdlib.GetString(FirebaseStorageEndpoint, DefaultStorageEndpoint), "/"),
		UserAgent: StorageApiAgent,
		Credentials: &settings.Credentials{
			Token: stdlib.GetString(FirebaseAccessToken, ""),
		},
	}
	internal.ApplyOptions(ds, opts...)

	bucket := stdlib.GetString(FirebaseStorageBucket, "")
	if bucket == "" {
		return nil, fmt.Errorf("missing %s", FirebaseStorageBucket)
	}

	return &Client{
		rc:     internal.NewRestClient(ds, nil),
		bucket: bucket,
	}, nil
}

// Bucket returns the bucket objects are kept in
func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) objectURI(key string) string {
	return fmt.Sprintf("/v0/b/%s/o/%s", url.PathEscape(c.bucket), url.PathEscape(key))
}

func (c *Client) Upload(ctx context.Context, key string, r io.Reader) error {
	uri := fmt.Sprintf("/v0/b/%s/o?name=%s", url.PathEscape(c.bucket), url.QueryEscape(key))

	var meta ObjectMetadata
	if _, err := c.rc.Upload(ctx, uri, contentType, r, &meta); err != nil {
		return fmt.Errorf("storage.Upload '%s': %w", key, err)
	}
	return nil
}

// DownloadURL resolves the public download URL of an object from its metadata
func (c *Client) DownloadURL(ctx context.Context, key string) (string, error) {
	var meta ObjectMetadata

	status, err := c.rc.GET(ctx, c.objectURI(key), &meta)
	if err != nil {
		if status == http.StatusNotFound {
			return "", fmt.Errorf("storage.DownloadURL '%s': %w", key, store.ErrNotFound)
		}
		return "", fmt.Errorf("storage.DownloadURL '%s': %w", key, err)
	}

	u := fmt.Sprintf("%s%s?alt=media", c.rc.Settings.Endpoint, c.objectURI(key))
	if token := meta.Token(); token != "" {
		u = u + "&token=" + url.QueryEscape(token)
	}
	return u, nil
}

////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package backend

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Object storage buckets.
const (
	// BucketChatFiles holds attachments. It is private; objects are read
	// through signed URLs.
	BucketChatFiles = "chat-files"

	// BucketVoice holds voice messages. It is public.
	BucketVoice = "voice-messages"

	// BucketAvatars holds profile pictures. It is public.
	BucketAvatars = "avatars"
)

const (
	storagePath = "/storage/v1"

	signedURLErr = "failed to sign %s/%s"
)

// Upload writes the object to the bucket. Existing objects are not
// overwritten.
func (c *Client) Upload(ctx context.Context, bucket, path, contentType string,
	data []byte) error {
	r := request{
		method:      Post,
		url:         c.objectURL("object", bucket, path),
		headers:     map[string]string{"x-upsert": "false"},
		body:        data,
		contentType: contentType,
	}
	if r.body == nil {
		r.body = []byte{}
	}
	_, err := c.do(ctx, r)
	return err
}

// PublicURL returns the URL of an object in a public bucket.
func (c *Client) PublicURL(bucket, path string) string {
	return c.objectURL("object/public", bucket, path)
}

// SignedURL returns a URL that grants read access to an object in a private
// bucket for the given duration.
func (c *Client) SignedURL(ctx context.Context, bucket, path string,
	expires time.Duration) (string, error) {
	r := request{
		method: Post,
		url:    c.objectURL("object/sign", bucket, path),
	}
	in := struct {
		ExpiresIn int64 `json:"expiresIn"`
	}{ExpiresIn: int64(expires / time.Second)}

	var out struct {
		SignedURL string `json:"signedURL"`
	}
	if err := c.doJSON(ctx, r, in, &out); err != nil {
		return "", err
	}
	if out.SignedURL == "" {
		return "", errors.Errorf(signedURLErr+": empty URL", bucket, path)
	}
	return c.params.URL + storagePath + out.SignedURL, nil
}

func (c *Client) objectURL(kind, bucket, path string) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i := range segments {
		segments[i] = url.PathEscape(segments[i])
	}
	return c.params.URL + storagePath + "/" + kind + "/" + bucket + "/" +
		strings.Join(segments, "/")
}

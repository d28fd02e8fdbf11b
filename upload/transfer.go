////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package upload

import (
	"context"
	"path"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/backend"
)

// Object is a payload ready to be written.
type Object struct {
	Bucket      string
	Path        string
	FileName    string
	ContentType string
	Data        []byte
}

// Transfer writes objects and returns a durable URL for them.
type Transfer interface {
	Put(ctx context.Context, o Object) (string, error)
}

// StorageTransfer writes directly to the backend's object storage. Objects
// in private buckets are returned as signed URLs.
type StorageTransfer struct {
	Client *backend.Client

	// Private lists buckets that need signed URLs
	Private map[string]bool

	// Expiry is how long signed URLs stay valid
	Expiry time.Duration
}

// NewStorageTransfer returns a StorageTransfer for the standard buckets.
func NewStorageTransfer(c *backend.Client) *StorageTransfer {
	return &StorageTransfer{
		Client:  c,
		Private: map[string]bool{backend.BucketChatFiles: true},
		Expiry:  c.Params().SignedURLExpiry,
	}
}

// Put uploads the object. Paths are content addressed, so an object that
// already exists is the same object and is not an error.
func (t *StorageTransfer) Put(ctx context.Context, o Object) (string, error) {
	err := t.Client.Upload(ctx, o.Bucket, o.Path, o.ContentType, o.Data)
	if err != nil {
		if !backend.IsUniqueViolation(err) {
			return "", errors.WithMessagef(err, transferErr, o.FileName)
		}
		jww.DEBUG.Printf("[UPLOAD] %s/%s already stored", o.Bucket, o.Path)
	}

	if !t.Private[o.Bucket] {
		return t.Client.PublicURL(o.Bucket, o.Path), nil
	}
	url, err := t.Client.SignedURL(ctx, o.Bucket, o.Path, t.Expiry)
	if err != nil {
		return "", errors.WithMessagef(err, transferErr, o.FileName)
	}
	return url, nil
}

// RelayTransfer uploads through the auxiliary multipart relay, which picks
// the final location itself.
type RelayTransfer struct {
	Client *backend.Client
}

// Put relays the object into a folder named after its bucket and owner.
func (t RelayTransfer) Put(ctx context.Context, o Object) (string, error) {
	folder := path.Join(o.Bucket, path.Dir(o.Path))
	out, err := t.Client.RelayUpload(ctx, folder, o.FileName, o.ContentType,
		o.Data)
	if err != nil {
		return "", errors.WithMessagef(err, transferErr, o.FileName)
	}
	return out.URL, nil
}

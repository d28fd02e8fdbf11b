////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package upload stores attachments, voice notes and avatars and returns
// the reference a message or profile carries.
package upload

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/crypto/blake2b"

	"github.com/chatwave/client/backend"
	"github.com/chatwave/client/messages"
)

// Error messages.
const (
	tooLargeErr  = "%s is %s, larger than the %s limit"
	emptyErr     = "%s is empty"
	noOwnerErr   = "cannot upload %s without an owner"
	transferErr  = "failed to upload %s"
	notImageErr  = "%s is not a supported image"
	encodeImgErr = "failed to encode resized %s"
	maxSizeErr   = "invalid maximum upload size %q"
)

// Base names of files stored without one.
const (
	avatarName    = "avatar"
	voiceBaseName = "voice"
)

// Params configures uploads.
type Params struct {
	// MaxSize is the largest accepted payload, e.g. "50MB"
	MaxSize string

	// AvatarSize is the largest edge of a stored avatar in pixels
	AvatarSize uint
}

// GetDefaultParams returns the default upload parameters.
func GetDefaultParams() Params {
	return Params{
		MaxSize:    "50MB",
		AvatarSize: 256,
	}
}

// GetParameters returns the default parameters overridden by the JSON in
// params, if set.
func GetParameters(params string) (Params, error) {
	p := GetDefaultParams()
	if len(params) > 0 {
		err := json.Unmarshal([]byte(params), &p)
		if err != nil {
			return Params{}, err
		}
	}
	return p, nil
}

// Uploader validates payloads and writes them through a Transfer.
type Uploader struct {
	transfer Transfer
	maxSize  uint64
	params   Params
}

// NewUploader creates an uploader writing through t.
func NewUploader(t Transfer, params Params) (*Uploader, error) {
	limit, err := humanize.ParseBytes(params.MaxSize)
	if err != nil || limit == 0 {
		return nil, errors.Errorf(maxSizeErr, params.MaxSize)
	}
	return &Uploader{transfer: t, maxSize: limit, params: params}, nil
}

// MaxSize returns the largest accepted payload in bytes.
func (u *Uploader) MaxSize() uint64 {
	return u.maxSize
}

// UploadFile stores a chat attachment for owner in the private files
// bucket.
func (u *Uploader) UploadFile(ctx context.Context, owner, fileName string,
	data []byte) (messages.Attachment, error) {
	return u.upload(ctx, backend.BucketChatFiles, owner, fileName, data)
}

// UploadVoice stores a recorded voice note for owner.
func (u *Uploader) UploadVoice(ctx context.Context, owner string,
	data []byte) (messages.Attachment, error) {
	return u.upload(ctx, backend.BucketVoice, owner, "", data)
}

// UploadAvatar stores a profile picture for owner, downscaled so that its
// largest edge is at most the configured avatar size.
func (u *Uploader) UploadAvatar(ctx context.Context, owner string,
	data []byte) (messages.Attachment, error) {
	if err := u.check(avatarName, owner, data); err != nil {
		return messages.Attachment{}, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return messages.Attachment{}, errors.Wrapf(err, notImageErr,
			avatarName)
	}

	size := u.params.AvatarSize
	b := img.Bounds()
	if size > 0 && (uint(b.Dx()) > size || uint(b.Dy()) > size) {
		img = resize.Thumbnail(size, size, img, resize.Lanczos3)

		var buf bytes.Buffer
		if format == "png" {
			err = png.Encode(&buf, img)
		} else {
			err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85})
		}
		if err != nil {
			return messages.Attachment{}, errors.Wrapf(err, encodeImgErr,
				avatarName)
		}
		jww.DEBUG.Printf("[UPLOAD] Downscaled %dx%d avatar to %dx%d",
			b.Dx(), b.Dy(), img.Bounds().Dx(), img.Bounds().Dy())
		data = buf.Bytes()
	}

	return u.upload(ctx, backend.BucketAvatars, owner, "", data)
}

func (u *Uploader) upload(ctx context.Context, bucket, owner,
	fileName string, data []byte) (messages.Attachment, error) {
	what := fileName
	if what == "" {
		what = bucket
	}
	if err := u.check(what, owner, data); err != nil {
		return messages.Attachment{}, err
	}

	mt := mimetype.Detect(data)
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = mt.Extension()
	}
	if fileName == "" {
		fileName = baseName(bucket) + ext
	}

	o := Object{
		Bucket:      bucket,
		Path:        ObjectPath(owner, data, ext),
		FileName:    fileName,
		ContentType: mt.String(),
		Data:        data,
	}
	url, err := u.transfer.Put(ctx, o)
	if err != nil {
		return messages.Attachment{}, err
	}

	jww.INFO.Printf("[UPLOAD] Stored %s (%s, %s) in %s", fileName,
		o.ContentType, humanize.Bytes(uint64(len(data))), bucket)
	return messages.Attachment{
		URL:      url,
		MIMEType: o.ContentType,
		FileName: fileName,
	}, nil
}

// check rejects a payload before any transfer is attempted.
func (u *Uploader) check(what, owner string, data []byte) error {
	if owner == "" {
		return errors.Errorf(noOwnerErr, what)
	}
	if len(data) == 0 {
		return errors.Errorf(emptyErr, what)
	}
	if size := uint64(len(data)); size > u.maxSize {
		return errors.Errorf(tooLargeErr, what, humanize.Bytes(size),
			humanize.Bytes(u.maxSize))
	}
	return nil
}

// ObjectPath returns the content-addressed path of data owned by owner.
func ObjectPath(owner string, data []byte, ext string) string {
	sum := blake2b.Sum256(data)
	return owner + "/" + hex.EncodeToString(sum[:16]) + ext
}

func baseName(bucket string) string {
	switch bucket {
	case backend.BucketVoice:
		return voiceBaseName
	case backend.BucketAvatars:
		return avatarName
	default:
		return "file"
	}
}

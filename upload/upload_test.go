////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package upload

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/chatwave/client/backend"
)

type fakeTransfer struct {
	mux  sync.Mutex
	puts []Object
	err  error
}

func (f *fakeTransfer) Put(_ context.Context, o Object) (string, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.puts = append(f.puts, o)
	return "https://cdn.test/" + o.Bucket + "/" + o.Path, nil
}

func newTestUploader(t *testing.T, maxSize string) (*Uploader, *fakeTransfer) {
	ft := &fakeTransfer{}
	params := GetDefaultParams()
	params.MaxSize = maxSize
	u, err := NewUploader(ft, params)
	require.NoError(t, err)
	return u, ft
}

func pngOf(t *testing.T, w, h int) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

// Tests that a file is stored under a content address with its type.
func TestUploader_UploadFile(t *testing.T) {
	u, ft := newTestUploader(t, "1KB")

	a, err := u.UploadFile(context.Background(), "u1", "notes.TXT",
		[]byte("hello there"))
	require.NoError(t, err)
	require.Equal(t, "notes.TXT", a.FileName)
	require.True(t, strings.HasPrefix(a.MIMEType, "text/plain"))

	require.Len(t, ft.puts, 1)
	o := ft.puts[0]
	require.Equal(t, backend.BucketChatFiles, o.Bucket)
	require.Equal(t, ObjectPath("u1", []byte("hello there"), ".txt"), o.Path)
	require.True(t, strings.HasPrefix(o.Path, "u1/"))
	require.Equal(t, "https://cdn.test/chat-files/"+o.Path, a.URL)

	_, err = u.UploadFile(context.Background(), "u1", "again.txt",
		[]byte("hello there"))
	require.NoError(t, err)
	require.Equal(t, o.Path, ft.puts[1].Path)
}

// Tests that oversized and empty payloads never reach the transfer.
func TestUploader_Rejects(t *testing.T) {
	u, ft := newTestUploader(t, "1KB")
	ctx := context.Background()

	_, err := u.UploadFile(ctx, "u1", "big.bin", make([]byte, 1001))
	require.Error(t, err)
	require.Contains(t, err.Error(), "1.0 kB")

	_, err = u.UploadVoice(ctx, "u1", nil)
	require.Error(t, err)

	_, err = u.UploadFile(ctx, "", "a.txt", []byte("x"))
	require.Error(t, err)

	_, err = u.UploadAvatar(ctx, "u1", []byte("not an image"))
	require.Error(t, err)

	require.Empty(t, ft.puts)
}

// Tests that a transfer failure is returned.
func TestUploader_TransferFailure(t *testing.T) {
	u, ft := newTestUploader(t, "1MB")
	ft.err = errors.New("connection reset")

	_, err := u.UploadVoice(context.Background(), "u1", []byte("OggS..."))
	require.Error(t, err)
}

// Tests that voice notes get a generated name in the voice bucket.
func TestUploader_UploadVoice(t *testing.T) {
	u, ft := newTestUploader(t, "1MB")

	a, err := u.UploadVoice(context.Background(), "u1", []byte("voice data"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(a.FileName, voiceBaseName))
	require.Equal(t, backend.BucketVoice, ft.puts[0].Bucket)
}

// Tests that large avatars are downscaled and small ones kept.
func TestUploader_UploadAvatar(t *testing.T) {
	u, ft := newTestUploader(t, "10MB")

	a, err := u.UploadAvatar(context.Background(), "u1", pngOf(t, 1024, 512))
	require.NoError(t, err)
	require.Equal(t, "image/png", a.MIMEType)
	require.Equal(t, "avatar.png", a.FileName)

	img, err := png.Decode(bytes.NewReader(ft.puts[0].Data))
	require.NoError(t, err)
	require.Equal(t, 256, img.Bounds().Dx())
	require.Equal(t, 128, img.Bounds().Dy())

	small := pngOf(t, 64, 64)
	_, err = u.UploadAvatar(context.Background(), "u1", small)
	require.NoError(t, err)
	require.Equal(t, small, ft.puts[1].Data)
	require.Equal(t, backend.BucketAvatars, ft.puts[1].Bucket)
}

// Tests that an unparsable size limit is refused.
func TestNewUploader_BadMaxSize(t *testing.T) {
	_, err := NewUploader(&fakeTransfer{}, Params{MaxSize: "lots"})
	require.Error(t, err)
}

// newTestClient serves handler on a loopback port.
func newTestClient(t *testing.T,
	handler func(ctx *fasthttp.RequestCtx)) (*backend.Client, string) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	base := "http://" + ln.Addr().String()
	params := backend.GetDefaultParams()
	params.URL = base
	params.AuxURL = base
	params.Timeout = 2 * time.Second
	return backend.NewClient(params, "tok"), base
}

// Tests direct storage writes for public and private buckets, and that an
// existing object is reused.
func TestStorageTransfer_Put(t *testing.T) {
	var mux sync.Mutex
	var uploads []string
	c, base := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		p := string(ctx.Path())
		ctx.SetContentType("application/json")
		switch {
		case strings.HasPrefix(p, "/storage/v1/object/sign/"):
			ctx.SetBodyString(`{"signedURL":"/object/sign/chat-files/u1/a.txt` +
				`?token=abc"}`)
		case strings.HasSuffix(p, "/dup.txt"):
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString(`{"statusCode":"409","error":"Duplicate",` +
				`"message":"The resource already exists"}`)
		default:
			mux.Lock()
			uploads = append(uploads, p)
			mux.Unlock()
			ctx.SetBodyString(`{"Key":"x"}`)
		}
	})
	st := NewStorageTransfer(c)
	ctx := context.Background()

	url, err := st.Put(ctx, Object{Bucket: backend.BucketVoice,
		Path: "u1/v.ogg", FileName: "v.ogg", Data: []byte("v")})
	require.NoError(t, err)
	require.Equal(t, base+"/storage/v1/object/public/voice-messages/u1/v.ogg",
		url)

	url, err = st.Put(ctx, Object{Bucket: backend.BucketChatFiles,
		Path: "u1/a.txt", FileName: "a.txt", Data: []byte("a")})
	require.NoError(t, err)
	require.Equal(t,
		base+"/storage/v1/object/sign/chat-files/u1/a.txt?token=abc", url)

	_, err = st.Put(ctx, Object{Bucket: backend.BucketAvatars,
		Path: "u1/dup.txt", FileName: "dup.txt", Data: []byte("d")})
	require.NoError(t, err)

	require.Equal(t, []string{
		"/storage/v1/object/voice-messages/u1/v.ogg",
		"/storage/v1/object/chat-files/u1/a.txt",
	}, uploads)
}

// Tests uploads through the auxiliary relay.
func TestRelayTransfer_Put(t *testing.T) {
	var folder string
	c, _ := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		form, err := ctx.MultipartForm()
		if err == nil && len(form.Value["folder"]) > 0 {
			folder = form.Value["folder"][0]
		}
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"data":{"url":"https://cdn.test/f/a.txt",` +
			`"fileName":"a.txt","fileType":"text/plain"}}`)
	})

	url, err := RelayTransfer{Client: c}.Put(context.Background(), Object{
		Bucket: backend.BucketChatFiles, Path: "u1/abc.txt",
		FileName: "a.txt", ContentType: "text/plain", Data: []byte("a")})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.test/f/a.txt", url)
	require.Equal(t, "chat-files/u1", folder)
}

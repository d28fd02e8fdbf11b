////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/textproto"
	"net/url"

	"github.com/pkg/errors"
	"github.com/thedevsaddam/gojsonq"
	"github.com/valyala/fasthttp"
)

// Auxiliary service paths.
const (
	healthPath   = "/health"
	registerPath = "/api/notifications/register"
	uploadPath   = "/api/upload"
	usersPath    = "/api/users/"
)

// Error messages.
const (
	envelopeErr    = "malformed response envelope from %s"
	multipartErr   = "failed to build upload form for %s"
	missingURLErr  = "upload of %s returned no URL"
	emptyTokenErr  = "cannot register an empty device token"
	emptyUserIDErr = "cannot look up an empty user ID"
)

// Health is the reply of the auxiliary health check.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Healthy returns true if the service reported itself as up.
func (h Health) Healthy() bool {
	return h.Status == "ok" || h.Status == "healthy"
}

// Relayed is an object uploaded through the auxiliary relay.
type Relayed struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

// Health queries the auxiliary service's health check.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.aux(ctx, request{method: Get, noAuth: true}, healthPath, nil, &h)
	return h, err
}

// RegisterDeviceToken registers the device's push token for the user.
func (c *Client) RegisterDeviceToken(ctx context.Context, userID, token,
	platform string) error {
	if token == "" {
		return errors.New(emptyTokenErr)
	}
	in := struct {
		UserID   string `json:"userId"`
		Token    string `json:"token"`
		Platform string `json:"platform"`
	}{userID, token, platform}

	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrapf(err, encodeErr, Post, registerPath)
	}
	return c.aux(ctx, request{method: Post, body: body}, registerPath, nil,
		nil)
}

// RelayUpload uploads the file through the auxiliary service as a multipart
// form and returns where it was stored.
func (c *Client) RelayUpload(ctx context.Context, folder, fileName,
	contentType string, data []byte) (Relayed, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		`form-data; name="file"; filename="`+escapeQuotes(fileName)+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err == nil {
		_, err = part.Write(data)
	}
	if err == nil && folder != "" {
		err = w.WriteField("folder", folder)
	}
	if err == nil {
		err = w.Close()
	}
	if err != nil {
		return Relayed{}, errors.Wrapf(err, multipartErr, fileName)
	}

	r := request{
		method:      Post,
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	}
	var out Relayed
	if err = c.aux(ctx, r, uploadPath, nil, &out); err != nil {
		return Relayed{}, err
	}
	if out.URL == "" {
		return Relayed{}, errors.Errorf(missingURLErr, fileName)
	}
	return out, nil
}

// LookupUser fetches the public profile of a user into out.
func (c *Client) LookupUser(ctx context.Context, userID string,
	out interface{}) error {
	if userID == "" {
		return errors.New(emptyUserIDErr)
	}
	return c.aux(ctx, request{method: Get}, usersPath+url.PathEscape(userID),
		nil, out)
}

// aux sends a request to the auxiliary service and unwraps the {data} /
// {error} envelope of the reply into out.
func (c *Client) aux(ctx context.Context, r request, path string,
	args [][2]string, out interface{}) error {
	r.url = c.params.AuxURL + path
	r.args = args

	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	return decodeEnvelope(path, resp.status, resp.body, out)
}

// decodeEnvelope extracts "data" into out, or returns the message in
// "error" as an *Error.
func decodeEnvelope(path string, status int, body []byte, out interface{}) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	jq := gojsonq.New().FromString(string(body))
	if jq.Error() != nil {
		return errors.Wrapf(jq.Error(), envelopeErr, path)
	}

	if e := jq.Find("error"); e != nil {
		apiErr := &Error{Status: status}
		switch v := e.(type) {
		case string:
			apiErr.Message = v
		case map[string]interface{}:
			apiErr.Message, _ = v["message"].(string)
			apiErr.Code, _ = v["code"].(string)
		default:
			apiErr.Message = fasthttp.StatusMessage(status)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}

	jq.Reset()
	data := jq.Find("data")
	if data == nil {
		return errors.Errorf(envelopeErr+": no data", path)
	}

	// Round trip through JSON to decode into the caller's type
	encoded, err := json.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, envelopeErr, path)
	}
	if err = json.Unmarshal(encoded, out); err != nil {
		return errors.Wrapf(err, envelopeErr, path)
	}
	return nil
}

func escapeQuotes(s string) string {
	return string(bytes.ReplaceAll([]byte(s), []byte(`"`), []byte(`\"`)))
}

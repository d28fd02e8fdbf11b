////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

// Backend error codes the client reacts to.
const (
	// CodeNotFound is returned when a single row was requested and none
	// matched.
	CodeNotFound = "PGRST116"

	// CodeUniqueViolation is returned when an insert breaks a unique
	// constraint.
	CodeUniqueViolation = "23505"

	// CodeDuplicateObject is returned by storage when an object already
	// exists at the path.
	CodeDuplicateObject = "Duplicate"

	// CodeRLS is returned when row level security rejects a write.
	CodeRLS = "42501"

	// CodeJWTExpired and CodeJWTInvalid are returned when the access token
	// is no longer accepted.
	CodeJWTExpired = "PGRST301"
	CodeJWTInvalid = "PGRST303"
)

// Error is a failed backend call. Status is the HTTP status; the remaining
// fields are copied from the error body when it has them.
type Error struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
}

// Error returns the message with its status and code.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fasthttp.StatusMessage(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (status %d, code %s)", msg, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (status %d)", msg, e.Status)
}

// parseError builds an Error from a non-2xx response. Bodies that are not
// JSON become the message.
func parseError(status int, body []byte) *Error {
	e := &Error{Status: status}

	// Storage errors carry the code in "error" and the status as a string
	var raw struct {
		Code         string `json:"code"`
		Message      string `json:"message"`
		Details      string `json:"details"`
		Hint         string `json:"hint"`
		StorageError string `json:"error"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		e.Message = strings.TrimSpace(string(body))
		return e
	}
	e.Code = raw.Code
	e.Message = raw.Message
	e.Details = raw.Details
	e.Hint = raw.Hint
	if e.Code == "" && raw.StorageError != "" {
		// The auxiliary service only sends {"error": "<message>"}
		if e.Message == "" {
			e.Message = raw.StorageError
		} else {
			e.Code = raw.StorageError
		}
	}
	return e
}

// AsError returns the backend Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsNotFound returns true if the error is a missing row.
func IsNotFound(err error) bool {
	e, ok := AsError(err)
	return ok && (e.Code == CodeNotFound || e.Status == fasthttp.StatusNotFound)
}

// IsUniqueViolation returns true if an insert broke a unique constraint.
func IsUniqueViolation(err error) bool {
	e, ok := AsError(err)
	return ok && (e.Code == CodeUniqueViolation ||
		e.Code == CodeDuplicateObject || e.Status == fasthttp.StatusConflict)
}

// IsRLS returns true if row level security rejected the call.
func IsRLS(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code == CodeRLS
}

// IsAuth returns true if the access token was rejected.
func IsAuth(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	return e.Status == fasthttp.StatusUnauthorized ||
		e.Code == CodeJWTExpired || e.Code == CodeJWTInvalid ||
		strings.Contains(e.Message, "JWT")
}

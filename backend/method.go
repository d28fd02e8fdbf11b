////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package backend

// Method defines the possible request types.
type Method uint32

const (
	// Undefined default value
	Undefined Method = iota
	// Get retrieves rows or a resource.
	Get
	// Post creates rows or uploads an object.
	Post
	// Patch partially updates matching rows.
	Patch
	// Delete removes matching rows.
	Delete
)

// methodStrings is a map of Method values to their HTTP verbs.
var methodStrings = map[Method]string{
	Undefined: "UNDEFINED",
	Get:       "GET",
	Post:      "POST",
	Patch:     "PATCH",
	Delete:    "DELETE",
}

// String returns the HTTP verb of the Method.
func (m Method) String() string {
	if methodStr, ok := methodStrings[m]; ok {
		return methodStr
	}
	return methodStrings[Undefined]
}

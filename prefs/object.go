////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package prefs

import (
	"encoding/json"
	"fmt"
	"time"
)

// object is the envelope every preference is stored in. It keeps the format
// version and the time of storage next to the encoded value.
type object struct {
	// Used to reject values written by an incompatible version
	Version uint64

	// Set when this object is written
	Timestamp time.Time

	// JSON encoding of the preference value
	Data []byte
}

// Unmarshal deserializes an object from a byte slice. It adheres to the
// ekv.Unmarshaler interface.
func (o *object) Unmarshal(data []byte) error {
	return json.Unmarshal(data, o)
}

// Marshal serializes an object into a byte slice. It adheres to the
// ekv.Marshaler interface.
func (o *object) Marshal() []byte {
	d, err := json.Marshal(o)
	// Not being able to marshal this simple object means something is really
	// wrong
	if err != nil {
		panic(fmt.Sprintf("Could not marshal: %+v", o))
	}
	return d
}

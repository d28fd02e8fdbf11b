////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package realtime

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

const presenceDecodeErr = "failed to decode presence %s"

// Meta is one tracked presence of a key. A key has one Meta per connection
// that tracks it.
type Meta struct {
	// Ref identifies the connection that tracked it
	Ref string

	// Data is the tracked payload
	Data json.RawMessage
}

// Roster maps presence keys to their metas. A Roster is never modified
// after it is handed out.
type Roster map[string][]Meta

// Keys returns the present keys in sorted order.
func (r Roster) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has returns true if the key is present.
func (r Roster) Has(key string) bool {
	return len(r[key]) > 0
}

// applyDiff returns a new roster with joins added and leaves removed. Metas
// are matched by Ref.
func applyDiff(cur, joins, leaves Roster) Roster {
	out := make(Roster, len(cur)+len(joins))
	for k, metas := range cur {
		out[k] = metas
	}

	for k, joined := range joins {
		merged := append([]Meta{}, joined...)
		for _, m := range out[k] {
			if !hasRef(joined, m.Ref) {
				merged = append(merged, m)
			}
		}
		out[k] = merged
	}

	for k, left := range leaves {
		metas, ok := out[k]
		if !ok {
			continue
		}
		kept := make([]Meta, 0, len(metas))
		for _, m := range metas {
			if !hasRef(left, m.Ref) {
				kept = append(kept, m)
			}
		}
		if len(kept) == 0 {
			delete(out, k)
		} else {
			out[k] = kept
		}
	}
	return out
}

func hasRef(metas []Meta, ref string) bool {
	for _, m := range metas {
		if m.Ref == ref {
			return true
		}
	}
	return false
}

// decodeRoster decodes the wire form {key: {metas: [...]}}.
func decodeRoster(data json.RawMessage, what string) (Roster, error) {
	var wire map[string]struct {
		Metas []json.RawMessage `json:"metas"`
	}
	if len(data) == 0 {
		return Roster{}, nil
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, errors.Wrapf(err, presenceDecodeErr, what)
	}

	r := make(Roster, len(wire))
	for k, entry := range wire {
		metas := make([]Meta, 0, len(entry.Metas))
		for _, raw := range entry.Metas {
			var ref struct {
				Ref string `json:"phx_ref"`
			}
			if err := json.Unmarshal(raw, &ref); err != nil {
				return nil, errors.Wrapf(err, presenceDecodeErr, what)
			}
			metas = append(metas, Meta{Ref: ref.Ref, Data: raw})
		}
		if len(metas) > 0 {
			r[k] = metas
		}
	}
	return r, nil
}

////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package messages

import (
	"bytes"
	"encoding/json"

	"github.com/elliotchance/orderedmap"
	"github.com/pkg/errors"
)

const reactionsDecodeErr = "failed to decode reactions"

// Reactions maps an emoji to the ordered set of users who reacted with it.
// Emoji keep the order in which they were first used so that encoding is
// deterministic. A Reactions value is never modified after creation; every
// change returns a new value, so copies may be shared freely. The zero value
// is empty.
type Reactions struct {
	m *orderedmap.OrderedMap
}

// NewReactions builds a Reactions from emoji/user pairs, applied in order as
// if each user added the reaction.
func NewReactions(pairs ...[2]string) Reactions {
	r := Reactions{}
	for _, p := range pairs {
		r = r.with(p[0], p[1])
	}
	return r
}

// Len returns the number of distinct emoji.
func (r Reactions) Len() int {
	if r.m == nil {
		return 0
	}
	return r.m.Len()
}

// Emoji returns the emoji in order of first use.
func (r Reactions) Emoji() []string {
	if r.m == nil {
		return nil
	}
	keys := r.m.Keys()
	list := make([]string, len(keys))
	for i, k := range keys {
		list[i] = k.(string)
	}
	return list
}

// Users returns the users that reacted with emoji, in the order they reacted.
func (r Reactions) Users(emoji string) []string {
	users := r.users(emoji)
	if users == nil {
		return nil
	}
	return append([]string{}, users...)
}

// ReactionOf returns the emoji the user reacted with, if any.
func (r Reactions) ReactionOf(user string) (string, bool) {
	for _, e := range r.Emoji() {
		if indexOf(r.users(e), user) >= 0 {
			return e, true
		}
	}
	return "", false
}

// Toggle applies a reaction by the user. Reacting with the emoji the user
// already reacted with removes it. Reacting with a different emoji moves the
// user to it, so a user appears under at most one emoji. Emoji left without
// users are removed.
func (r Reactions) Toggle(emoji, user string) Reactions {
	if indexOf(r.users(emoji), user) >= 0 {
		return r.without(user)
	}
	return r.without(user).with(emoji, user)
}

// Equal returns true if both hold the same emoji, in the same order, with the
// same users.
func (r Reactions) Equal(o Reactions) bool {
	a, b := r.Emoji(), o.Emoji()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
		ua, ub := r.users(a[i]), o.users(b[i])
		if len(ua) != len(ub) {
			return false
		}
		for j := range ua {
			if ua[j] != ub[j] {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes the reactions as an object keyed by emoji in order of
// first use.
func (r Reactions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r.Emoji() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		users, err := json.Marshal(r.users(e))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(users)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keyed by emoji, keeping the key order of
// the document. A null document decodes to no reactions.
func (r *Reactions) UnmarshalJSON(data []byte) error {
	*r = Reactions{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, reactionsDecodeErr)
	} else if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.Errorf("%s: expected object, got %v",
			reactionsDecodeErr, tok)
	}

	m := orderedmap.NewOrderedMap()
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return errors.Wrap(err, reactionsDecodeErr)
		}
		emoji := tok.(string)

		var users []string
		if err = dec.Decode(&users); err != nil {
			return errors.Wrapf(err, "%s: users of %q",
				reactionsDecodeErr, emoji)
		}
		if len(users) > 0 {
			m.Set(emoji, dedupe(users))
		}
	}
	if _, err = dec.Token(); err != nil {
		return errors.Wrap(err, reactionsDecodeErr)
	}

	r.m = m
	return nil
}

func (r Reactions) users(emoji string) []string {
	if r.m == nil {
		return nil
	}
	v, ok := r.m.Get(emoji)
	if !ok {
		return nil
	}
	return v.([]string)
}

// clone copies the map. The user slices are shared since they are never
// modified in place.
func (r Reactions) clone() *orderedmap.OrderedMap {
	m := orderedmap.NewOrderedMap()
	if r.m == nil {
		return m
	}
	for _, k := range r.m.Keys() {
		v, _ := r.m.Get(k)
		m.Set(k, v)
	}
	return m
}

// with returns a copy where the user has reacted with emoji.
func (r Reactions) with(emoji, user string) Reactions {
	users := r.users(emoji)
	if indexOf(users, user) >= 0 {
		return r
	}
	m := r.clone()
	added := make([]string, 0, len(users)+1)
	added = append(append(added, users...), user)
	m.Set(emoji, added)
	return Reactions{m: m}
}

// without returns a copy where the user has no reaction.
func (r Reactions) without(user string) Reactions {
	if _, ok := r.ReactionOf(user); !ok {
		return r
	}
	m := r.clone()
	for _, e := range r.Emoji() {
		users := r.users(e)
		i := indexOf(users, user)
		if i < 0 {
			continue
		}
		if len(users) == 1 {
			m.Delete(e)
			continue
		}
		removed := make([]string, 0, len(users)-1)
		removed = append(append(removed, users[:i]...), users[i+1:]...)
		m.Set(e, removed)
	}
	return Reactions{m: m}
}

func indexOf(list []string, s string) int {
	for i := range list {
		if list[i] == s {
			return i
		}
	}
	return -1
}

func dedupe(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if indexOf(out, s) < 0 {
			out = append(out, s)
		}
	}
	return out
}

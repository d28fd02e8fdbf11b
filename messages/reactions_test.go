////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package messages

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// Tests that a user reacting with a second emoji is moved off the first.
func TestReactions_Toggle_Exclusive(t *testing.T) {
	r := Reactions{}.Toggle("👍", "alice")
	r = r.Toggle("😂", "alice")

	require.Nil(t, r.Users("👍"))
	require.Equal(t, []string{"alice"}, r.Users("😂"))
	require.Equal(t, []string{"😂"}, r.Emoji())

	e, ok := r.ReactionOf("alice")
	require.True(t, ok)
	require.Equal(t, "😂", e)
}

// Tests that toggling the same emoji twice removes it.
func TestReactions_Toggle_Off(t *testing.T) {
	r := Reactions{}.Toggle("👍", "alice").Toggle("👍", "bob")
	r = r.Toggle("👍", "alice")
	require.Equal(t, []string{"bob"}, r.Users("👍"))

	r = r.Toggle("👍", "bob")
	require.Equal(t, 0, r.Len())
}

// Tests that toggling returns a new value and leaves the original unchanged.
func TestReactions_CopyOnWrite(t *testing.T) {
	orig := NewReactions([2]string{"👍", "alice"}, [2]string{"👍", "bob"})
	moved := orig.Toggle("🔥", "alice")

	require.Equal(t, []string{"alice", "bob"}, orig.Users("👍"))
	require.Equal(t, []string{"bob"}, moved.Users("👍"))
	require.Equal(t, []string{"alice"}, moved.Users("🔥"))
}

// Tests that encoding keeps the order in which emoji were first used and
// decoding keeps the document order.
func TestReactions_JSONOrder(t *testing.T) {
	r := NewReactions([2]string{"🔥", "a"}, [2]string{"👍", "b"},
		[2]string{"😂", "c"})

	data, err := json.Marshal(r)
	require.NoError(t, err)
	require.Equal(t, `{"🔥":["a"],"👍":["b"],"😂":["c"]}`, string(data))

	var decoded Reactions
	require.NoError(t, json.Unmarshal(
		[]byte(`{"😂":["c"],"🔥":["a","a"],"👍":[]}`), &decoded))
	require.Equal(t, []string{"😂", "🔥"}, decoded.Emoji())
	require.Equal(t, []string{"a"}, decoded.Users("🔥"))
}

// Tests that null and empty objects decode to no reactions and that an empty
// value encodes to an empty object.
func TestReactions_Empty(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal(
		[]byte(`{"id":"x","reactions":null}`), &m))
	require.Equal(t, 0, m.Reactions.Len())

	data, err := json.Marshal(Reactions{})
	require.NoError(t, err)
	require.Equal(t, `{}`, string(data))

	require.Error(t, json.Unmarshal([]byte(`["👍"]`), &m.Reactions))
}

////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package messages

import (
	"sort"
)

// List is an ordered sequence of messages. Server rows come first in
// ascending creation order, followed by local sends in the order they were
// made. The functions below never modify the List they are given.
type List []Message

// Index returns the position of the message with the ID, or -1.
func (l List) Index(id string) int {
	for i := range l {
		if l[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns the message with the ID.
func (l List) Get(id string) (Message, bool) {
	if i := l.Index(id); i >= 0 {
		return l[i], true
	}
	return Message{}, false
}

// IDs returns the message IDs in order.
func (l List) IDs() []string {
	ids := make([]string, len(l))
	for i := range l {
		ids[i] = l[i].ID
	}
	return ids
}

// Pending returns the number of optimistic entries.
func (l List) Pending() int {
	n := 0
	for i := range l {
		if l[i].Optimistic {
			n++
		}
	}
	return n
}

// Append adds a local send to the tail.
func Append(l List, m Message) List {
	out := make(List, len(l), len(l)+1)
	copy(out, l)
	return append(out, m)
}

// Reconcile replaces every confirmed entry with the server rows and keeps
// each optimistic entry whose ID the server has not returned yet. Server rows
// are deduplicated by ID and ordered by creation time; surviving optimistic
// entries follow in their existing order. Reconciling twice with the same
// rows gives the same list.
func Reconcile(l List, rows []Message) List {
	seen := make(map[string]struct{}, len(rows))
	out := make(List, 0, len(rows)+l.Pending())
	for _, r := range rows {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		r.Optimistic = false
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	for _, m := range l {
		if !m.Optimistic {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Confirm clears the optimistic flag of the message. The list is returned
// unchanged if no such message exists.
func Confirm(l List, id string) List {
	i := l.Index(id)
	if i < 0 || !l[i].Optimistic {
		return l
	}
	out := make(List, len(l))
	copy(out, l)
	out[i].Optimistic = false
	return out
}

// Remove drops the message.
func Remove(l List, id string) List {
	i := l.Index(id)
	if i < 0 {
		return l
	}
	out := make(List, 0, len(l)-1)
	out = append(out, l[:i]...)
	return append(out, l[i+1:]...)
}

// Insert adds a message received from the change feed. A message already
// present is not added again; if the present copy is optimistic it is
// confirmed instead.
func Insert(l List, m Message) List {
	if i := l.Index(m.ID); i >= 0 {
		return Confirm(l, m.ID)
	}
	m.Optimistic = false
	return Append(l, m)
}

// Patch overwrites the mutable fields of the message in place. The position
// does not change. Later updates win.
func Patch(l List, u Update) List {
	i := l.Index(u.ID)
	if i < 0 {
		return l
	}
	out := make(List, len(l))
	copy(out, l)
	m := &out[i]
	m.Content = u.Content
	m.IsRead = u.IsRead
	m.Reactions = u.Reactions
	m.FileURL = u.FileURL
	m.FileType = u.FileType
	m.FileName = u.FileName
	return out
}

// MarkRead sets the read flag on every message not sent by the viewer.
func MarkRead(l List, viewerID string) List {
	var out List
	for i := range l {
		if l[i].IsRead || l[i].SenderID == viewerID {
			continue
		}
		if out == nil {
			out = make(List, len(l))
			copy(out, l)
		}
		out[i].IsRead = true
	}
	if out == nil {
		return l
	}
	return out
}

// React toggles the user's reaction on the message.
func React(l List, id, emoji, user string) List {
	i := l.Index(id)
	if i < 0 {
		return l
	}
	out := make(List, len(l))
	copy(out, l)
	out[i].Reactions = out[i].Reactions.Toggle(emoji, user)
	return out
}

// CountUnread returns, for each conversation, the number of rows that are
// unread and were not sent by the viewer. Conversations without such rows
// are absent. A row listed twice is counted once.
func CountUnread(rows []Message, viewerID string) map[string]int {
	counts := make(map[string]int)
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r.IsRead || r.SenderID == viewerID {
			continue
		}
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		counts[r.ConversationID]++
	}
	return counts
}

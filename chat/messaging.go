////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/emoji"
	"github.com/chatwave/client/messages"
)

// Previews stored as a conversation's last message for attachments.
const (
	filePreview  = "📎 "
	voicePreview = "🎤 Voice message"
)

// SendMessage sends text to the open chat, optionally as a reply. The
// message is shown at once and removed again if the backend refuses it.
func (s *Session) SendMessage(ctx context.Context, text,
	replyTo string) (messages.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return messages.Message{}, errors.New(emptyMessageErr)
	}
	m, err := s.newMessage(text, replyTo)
	if err != nil {
		return messages.Message{}, err
	}
	return s.send(ctx, m, text)
}

// SendAttachment uploads a file and sends it to the open chat with an
// optional caption. Nothing is sent if the upload fails.
func (s *Session) SendAttachment(ctx context.Context, fileName string,
	data []byte, caption string) (messages.Message, error) {
	m, err := s.newMessage(strings.TrimSpace(caption), "")
	if err != nil {
		return messages.Message{}, err
	}

	a, err := s.files.UploadFile(ctx, s.self, fileName, data)
	if err != nil {
		return messages.Message{}, s.fail(ActionUpload, err)
	}
	m.Attach(a)
	return s.send(ctx, m, filePreview+a.FileName)
}

// SendVoice uploads a voice recording and sends it to the open chat.
func (s *Session) SendVoice(ctx context.Context,
	data []byte) (messages.Message, error) {
	m, err := s.newMessage("", "")
	if err != nil {
		return messages.Message{}, err
	}

	a, err := s.files.UploadVoice(ctx, s.self, data)
	if err != nil {
		return messages.Message{}, s.fail(ActionUpload, err)
	}
	m.Attach(a)
	return s.send(ctx, m, voicePreview)
}

func (s *Session) newMessage(text, replyTo string) (messages.Message, error) {
	scope := s.store.Scope()
	if scope.IsZero() {
		return messages.Message{}, errors.New(noOpenChatErr)
	}
	if replyTo != "" {
		if _, ok := s.store.List().Get(replyTo); !ok {
			return messages.Message{}, errors.Errorf(unknownMsgErr, replyTo)
		}
	}

	m := messages.Message{
		ID:         messages.NewID(),
		SenderID:   s.self,
		Content:    text,
		ReplyTo:    replyTo,
		CreatedAt:  time.Now().UTC(),
		Optimistic: true,
	}
	if scope.Group {
		m.GroupID = scope.ID
	} else {
		m.ConversationID = scope.ID
	}
	return m, nil
}

// send shows m optimistically, writes it and confirms or rolls it back.
func (s *Session) send(ctx context.Context, m messages.Message,
	preview string) (messages.Message, error) {
	scope := m.Scope()
	s.seen.add(m.ID)
	s.store.Append(scope, m)

	if err := s.repo.InsertMessage(ctx, m); err != nil {
		s.store.Remove(scope, m.ID)
		return messages.Message{}, s.fail(ActionSend, err)
	}
	s.store.Confirm(scope, m.ID)
	m.Optimistic = false

	if !scope.Group {
		err := s.repo.TouchConversation(ctx, scope.ID, preview, m.CreatedAt)
		if err != nil {
			jww.WARN.Printf("[CHAT] Failed to update last message of %s: %+v",
				scope, err)
		}
	}
	jww.DEBUG.Printf("[CHAT] Sent %s to %s", m.ID, scope)
	return m, nil
}

// React toggles the user's reaction on a message in the open chat. A user
// has at most one reaction per message.
func (s *Session) React(ctx context.Context, messageID, reaction string) error {
	if err := emoji.ValidateReaction(reaction); err != nil {
		return err
	}
	scope := s.store.Scope()
	if scope.IsZero() {
		return errors.New(noOpenChatErr)
	}
	before, ok := s.store.List().Get(messageID)
	if !ok {
		return errors.Errorf(unknownMsgErr, messageID)
	}
	return s.react(ctx, scope, before, reaction)
}

// react applies the toggle to before in scope and writes the result. Nothing
// is written if scope is no longer the open chat.
func (s *Session) react(ctx context.Context, scope messages.Scope,
	before messages.Message, reaction string) error {
	messageID := before.ID
	var after messages.Reactions
	applied := s.store.Apply(scope, func(l messages.List) messages.List {
		l = messages.React(l, messageID, reaction, s.self)
		if m, ok := l.Get(messageID); ok {
			after = m.Reactions
		}
		return l
	})
	if !applied {
		return errors.New(noOpenChatErr)
	}

	err := s.repo.SetReactions(ctx, scope, messageID, after)
	if err != nil {
		s.restore(scope, messageID, func(u *messages.Update) {
			u.Reactions = before.Reactions
		})
		return s.fail(ActionReact, err)
	}
	return nil
}

// DeleteMessage replaces the content of one of the user's own messages with
// a deletion marker and drops its attachment.
func (s *Session) DeleteMessage(ctx context.Context, messageID string) error {
	scope := s.store.Scope()
	if scope.IsZero() {
		return errors.New(noOpenChatErr)
	}
	before, ok := s.store.List().Get(messageID)
	if !ok {
		return errors.Errorf(unknownMsgErr, messageID)
	}
	if before.SenderID != s.self {
		return errors.Errorf(notOwnMessageErr, messageID, before.SenderID)
	}

	deleted := messages.UpdateOf(before)
	deleted.Content = messages.DeletedContent
	deleted.FileURL, deleted.FileType, deleted.FileName = "", "", ""
	s.store.Patch(scope, deleted)

	if err := s.repo.SoftDelete(ctx, scope, messageID, s.self); err != nil {
		s.restore(scope, messageID, func(u *messages.Update) {
			u.Content = before.Content
			u.FileURL = before.FileURL
			u.FileType = before.FileType
			u.FileName = before.FileName
		})
		return s.fail(ActionDelete, err)
	}
	return nil
}

// restore rolls back a local edit of a message that the backend refused.
func (s *Session) restore(scope messages.Scope, id string,
	undo func(u *messages.Update)) {
	s.store.Apply(scope, func(l messages.List) messages.List {
		m, ok := l.Get(id)
		if !ok {
			return l
		}
		u := messages.UpdateOf(m)
		undo(&u)
		return messages.Patch(l, u)
	})
}

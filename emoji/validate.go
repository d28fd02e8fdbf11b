////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package emoji

import (
	"github.com/forPelevin/gomoji"
	"github.com/pkg/errors"
)

var (
	// InvalidReaction is returned if the passed reaction string is an invalid
	// emoji.
	InvalidReaction = errors.New(
		"the reaction is not valid, it must be a single emoji")
)

// QuickReactions is the ordered set offered by the reaction picker.
var QuickReactions = []string{"👍", "❤️", "😂", "😮", "😢", "🙏"}

// IsQuickReaction returns true if the reaction is one of QuickReactions.
func IsQuickReaction(reaction string) bool {
	for _, r := range QuickReactions {
		if r == reaction {
			return true
		}
	}
	return false
}

// ValidateReaction checks that the reaction is exactly one emoji. Quick
// reactions are always accepted. Returns InvalidReaction otherwise.
func ValidateReaction(reaction string) error {
	if IsQuickReaction(reaction) {
		return nil
	}

	if len(gomoji.RemoveEmojis(reaction)) > 0 {
		// Non-emoji characters found alongside an emoji
		return InvalidReaction
	}

	emojisList := gomoji.FindAll(reaction)
	if len(emojisList) != 1 {
		return InvalidReaction
	} else if emojisList[0].Character != reaction {
		// The same emoji repeated
		return InvalidReaction
	}

	return nil
}

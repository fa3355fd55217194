package relay

import (
	"fmt"
	"unicode/utf8"
)

// Message size limits, adapted from the teacher's chat message validator:
// a best-effort guard against oversized or malformed frames, applied before
// a message ever reaches the Moderator.
const (
	maxMessageBytes = 4096 // 4KB max frame size
	maxMessageChars = 2000 // max character count
)

// validateMessage checks that chat text meets content requirements. A
// failure here is a malformed-event case (spec section 7): the caller drops
// and logs it, it is never surfaced to the client as a moderation veto.
func validateMessage(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("message text is empty")
	}
	if len(text) > maxMessageBytes {
		return fmt.Errorf("message exceeds %d byte limit", maxMessageBytes)
	}
	if utf8.RuneCountInString(text) > maxMessageChars {
		return fmt.Errorf("message exceeds %d character limit", maxMessageChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}

package wa

import (
	"errors"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// ErrEmptyJID is returned when the input contains no address at all.
var ErrEmptyJID = errors.New("empty jid")

// ParseJID accepts full JIDs ("1555...@s.whatsapp.net", "...@g.us") as well as
// loose phone numbers ("+1 (555) 123-4567"), which become user JIDs. Legacy
// "@c.us" addresses are rewritten to the current user server.
func ParseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, ErrEmptyJID
	}

	if strings.ContainsRune(s, '@') {
		jid, err := types.ParseJID(s)
		if err != nil {
			return types.JID{}, fmt.Errorf("parse jid %q: %w", s, err)
		}
		if jid.Server == types.LegacyUserServer {
			jid.Server = types.DefaultUserServer
		}
		return jid, nil
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return types.JID{}, fmt.Errorf("parse jid %q: no digits", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

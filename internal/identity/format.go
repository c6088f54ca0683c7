package identity

import (
	"fmt"
	"strconv"
)

// DefaultTeam is used whenever no team is known.
const DefaultTeam = "All"

// contextPrefix scopes the context to this game so that players of other
// games on the same voice server are never grouped with ours.
const contextPrefix = "TM"

// Details is the player and server state an identity/context pair is built
// from.
type Details struct {
	PlayerName  string
	PlayerLogin string
	Server      string
	Team        string
}

// FormatIdentity renders "name|login|nonce".
func FormatIdentity(name, login string, nonce uint64) string {
	return name + "|" + login + "|" + strconv.FormatUint(nonce, 10)
}

// FormatContext renders "TM|server|team".
func FormatContext(server, team string) string {
	return fmt.Sprintf("%s|%s|%s", contextPrefix, server, team)
}

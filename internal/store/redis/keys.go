package redis

import (
	"fmt"
	"strings"
)

type keys struct{ prefix string }

// player returns the key holding a PlayerState JSON blob.
func (k keys) player(id string) string {
	return fmt.Sprintf("%s:player:%s", k.prefix, id)
}

// account returns the key for a username (case-insensitive).
func (k keys) account(username string) string {
	return fmt.Sprintf("%s:account:%s", k.prefix, strings.ToLower(username))
}

// friends returns the SET of friend ids for a player.
func (k keys) friends(playerID string) string {
	return fmt.Sprintf("%s:idx:friends:%s", k.prefix, playerID)
}

// friendship returns the key holding one edge; a < b.
func (k keys) friendship(a, b string) string {
	return fmt.Sprintf("%s:friendship:%s:%s", k.prefix, a, b)
}

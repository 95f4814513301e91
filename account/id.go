package account

import "github.com/google/uuid"

// newID generates a caller-side unique id for positions minted internally
// by netting (spec §4.2 calls order ids "UUID-like" and caller-provided;
// positions mint their own the same way).
func newID() string {
	return uuid.NewString()
}

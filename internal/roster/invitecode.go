package roster

import (
	"crypto/rand"
	"fmt"

	"proctor/pkg/types"
)

// newInviteCode returns a random code from the invite alphabet.
// FUNCTIONAL DISCOVERY: crypto/rand rather than math/rand - invite codes
// gate exam access and must not be guessable from earlier codes
func newInviteCode() (string, error) {
	buf := make([]byte, types.InviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = types.InviteCodeAlphabet[int(b)%len(types.InviteCodeAlphabet)]
	}
	return string(buf), nil
}

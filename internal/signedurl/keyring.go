package signedurl

import (
	"errors"
	"sync/atomic"
)

// ErrEmptySecret is returned when a keyring is given an empty secret.
var ErrEmptySecret = errors.New("signedurl: signing secret must not be empty")

// Keyring holds the server secret shared by an Issuer and its Verifier.
// Rotation is immediate: URLs signed with the previous secret stop
// verifying as soon as Rotate returns.
type Keyring struct {
	secret atomic.Pointer[[]byte]
}

// NewKeyring returns a keyring holding secret.
func NewKeyring(secret string) (*Keyring, error) {
	k := &Keyring{}
	if err := k.Rotate(secret); err != nil {
		return nil, err
	}
	return k, nil
}

// Rotate replaces the active secret.
func (k *Keyring) Rotate(secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}
	b := []byte(secret)
	k.secret.Store(&b)
	return nil
}

func (k *Keyring) current() []byte {
	return *k.secret.Load()
}

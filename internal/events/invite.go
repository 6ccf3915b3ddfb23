package events

import (
	"errors"
	"time"

	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/uid"
)

// ErrInviteExpired is returned when accepting an Invite past its expiry.
var ErrInviteExpired = errors.New("events: invite expired")

// ErrInviteSignatureInvalid is returned when an Invite's signature does not
// verify against its claimed inviter_key.
var ErrInviteSignatureInvalid = errors.New("events: invite signature invalid")

// OwnedInvite is the inviter's private half of an invite: the x25519
// private key paired with the Invite they handed out, kept locally by the
// inviter (§3.2 system entities, supplementing spec.md's Invite/OwnedInvite
// pair). internal/syncproto's handshake does not consult it.
type OwnedInvite struct {
	DefaultRoom  uid.Uid
	ExchangeKeys identity.ExchangeKeyPair
	Expire       time.Time
}

// Invite is the portable half handed to the invitee out of band (QR code,
// link, etc): the room being offered, the inviter's identity, the x25519
// public key, and a signature binding the two together.
type Invite struct {
	DefaultRoom    uid.Uid
	InviterKey     identity.VerifyingKey
	ExchangePublic [identity.ExchangeKeySize]byte
	Signature      [identity.SignatureSize]byte
}

func inviteSigningMessage(room uid.Uid, exchangePublic [identity.ExchangeKeySize]byte) []byte {
	out := make([]byte, 0, uid.Size+identity.ExchangeKeySize)
	out = append(out, room.Bytes()...)
	out = append(out, exchangePublic[:]...)
	return out
}

// CreateInvite generates a fresh x25519 pair, signs it with the inviter's
// identity key, and returns both halves: OwnedInvite to keep, Invite to
// hand out.
func CreateInvite(inviter *identity.SigningKey, room uid.Uid, expire time.Time) (*OwnedInvite, *Invite, error) {
	kp, err := identity.GenerateExchangeKeyPair()
	if err != nil {
		return nil, nil, err
	}
	sig := inviter.Sign(inviteSigningMessage(room, kp.Public))
	owned := &OwnedInvite{DefaultRoom: room, ExchangeKeys: *kp, Expire: expire}
	invite := &Invite{
		DefaultRoom:    room,
		InviterKey:     inviter.Public(),
		ExchangePublic: kp.Public,
		Signature:      sig,
	}
	return owned, invite, nil
}

// AcceptInvite verifies an Invite's signature and, if valid and unexpired,
// materialises the AllowedPeer record the room's admin should countersign
// to actually admit the new peer. The caller supplies `now` explicitly
// since invite expiry must be evaluated against wall-clock time, not a
// replicated mdate.
func AcceptInvite(invite *Invite, accepter identity.VerifyingKey, now time.Time, expire time.Time) (*AllowedPeer, error) {
	if !now.Before(expire) {
		return nil, ErrInviteExpired
	}
	msg := inviteSigningMessage(invite.DefaultRoom, invite.ExchangePublic)
	if !identity.Verify(invite.InviterKey, msg, invite.Signature[:]) {
		return nil, ErrInviteSignatureInvalid
	}
	return &AllowedPeer{VerifyingKey: accepter, DefaultRoom: invite.DefaultRoom}, nil
}

// AllowedPeer mirrors the system entity of the same name: a peer the local
// node will accept a synchronisation connection from, and the room it
// should be introduced to by default.
type AllowedPeer struct {
	VerifyingKey identity.VerifyingKey
	DefaultRoom  uid.Uid
}

package syncproto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/discretlib/discret/internal/events"
	"github.com/discretlib/discret/internal/identity"
	"github.com/discretlib/discret/internal/transport"
)

// ErrIdentityMismatch is returned when the peer's proof does not match an
// expected verifying key (known from an invite or allow-list entry).
var ErrIdentityMismatch = errors.New("syncproto: peer identity does not match expected key")

// Handshake performs the mutual identity proof of §4.7 step "handshake":
// each side sends a random challenge, signs the challenge it received, and
// checks the other's signature. expected, if non-zero, pins the peer to a
// known verifying key (e.g. from an Invite or the room's allow-list);
// pass the zero VerifyingKey to accept whichever key proves itself, as a
// listener does before it has looked the peer up.
func (s *Session) Handshake(ctx context.Context, expected identity.VerifyingKey) error {
	challenge, err := randomChallenge()
	if err != nil {
		return fmt.Errorf("syncproto: generate challenge: %w", err)
	}
	ourReqPayload, err := json.Marshal(ProveIdentityRequest{Challenge: challenge})
	if err != nil {
		return err
	}
	if err := s.conn.SendQuery(transport.Query{ID: 0, Op: string(OpProveIdentity), Payload: ourReqPayload}); err != nil {
		return fmt.Errorf("syncproto: send challenge: %w", err)
	}

	theirQuery, err := s.conn.RecvQuery()
	if err != nil {
		return fmt.Errorf("syncproto: recv challenge: %w", err)
	}
	var theirReq ProveIdentityRequest
	if err := json.Unmarshal(theirQuery.Payload, &theirReq); err != nil {
		return fmt.Errorf("syncproto: decode challenge: %w", err)
	}
	sig := s.node.Identity.Sign(theirReq.Challenge)
	resp := ProveIdentityResponse{VerifyingKey: s.node.Identity.Public().String(), Signature: sig[:]}
	respPayload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := s.conn.SendAnswer(transport.Answer{ID: theirQuery.ID, Payload: respPayload}); err != nil {
		return fmt.Errorf("syncproto: send proof: %w", err)
	}

	theirAnswer, err := s.conn.RecvAnswer()
	if err != nil {
		return fmt.Errorf("syncproto: recv proof: %w", err)
	}
	if theirAnswer.Err != "" {
		return fmt.Errorf("syncproto: peer rejected handshake: %s", theirAnswer.Err)
	}
	var proof ProveIdentityResponse
	if err := json.Unmarshal(theirAnswer.Payload, &proof); err != nil {
		return fmt.Errorf("syncproto: decode proof: %w", err)
	}
	remoteKey, err := identity.ParseVerifyingKey(proof.VerifyingKey)
	if err != nil {
		return fmt.Errorf("syncproto: invalid peer key: %w", err)
	}
	if !identity.Verify(remoteKey, challenge, proof.Signature) {
		return fmt.Errorf("syncproto: peer signature does not verify")
	}
	if !expected.IsZero() && expected != remoteKey {
		return ErrIdentityMismatch
	}

	s.remoteKey = remoteKey
	if s.node.Bus != nil {
		s.node.Bus.Publish(events.Event{
			Kind:   events.PeerConnected,
			Peer:   remoteKey,
			Time:   time.Now().UnixMilli(),
			ConnID: s.connID,
		})
	}
	return nil
}

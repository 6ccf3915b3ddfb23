package transport

import "encoding/json"

// Query is a request sent on the query stream: one of internal/syncproto's
// synchronisation requests (§6.4), named by Op. Payload is the JSON-encoded
// request body specific to Op; internal/syncproto owns decoding it.
type Query struct {
	ID      uint64 `json:"id"`
	Op      string `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

// Answer is the response to a Query with the same ID.
type Answer struct {
	ID      uint64          `json:"id"`
	Err     string          `json:"err,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RemoteEvent is the frame type of the dedicated event stream (§6.2, §6.4).
// Conn.SendEvent and Conn.RecvEvent encode and decode it, but no package of
// this module calls them: local events are not forwarded to peers.
type RemoteEvent struct {
	Kind   string `json:"kind"`
	Room   string `json:"room,omitempty"`
	Entity string `json:"entity,omitempty"`
}

// EncodeQuery marshals q for WriteFrame(KindQuery, ...).
func EncodeQuery(q Query) ([]byte, error) { return json.Marshal(q) }

// DecodeQuery unmarshals a query-stream frame payload.
func DecodeQuery(b []byte) (Query, error) {
	var q Query
	err := json.Unmarshal(b, &q)
	return q, err
}

// EncodeAnswer marshals a for WriteFrame(KindAnswer, ...).
func EncodeAnswer(a Answer) ([]byte, error) { return json.Marshal(a) }

// DecodeAnswer unmarshals an answer-stream frame payload.
func DecodeAnswer(b []byte) (Answer, error) {
	var a Answer
	err := json.Unmarshal(b, &a)
	return a, err
}

// EncodeEvent marshals e for WriteFrame(KindEvent, ...).
func EncodeEvent(e RemoteEvent) ([]byte, error) { return json.Marshal(e) }

// DecodeEvent unmarshals an event-stream frame payload.
func DecodeEvent(b []byte) (RemoteEvent, error) {
	var e RemoteEvent
	err := json.Unmarshal(b, &e)
	return e, err
}

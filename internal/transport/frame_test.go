package transport

import (
	"bytes"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello room")
	if err := WriteFrame(&buf, KindQuery, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	kind, got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if kind != KindQuery {
		t.Fatalf("kind = %v, want KindQuery", kind)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
}

func TestReadFrameRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{byte(KindEvent), 0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(header)
	if _, _, err := ReadFrame(&buf); err != ErrFrameTooLarge {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestQueryEncodeDecodeRoundTrip(t *testing.T) {
	q := Query{ID: 7, Op: "mutate", Payload: []byte(`{"a":1}`)}
	b, err := EncodeQuery(q)
	if err != nil {
		t.Fatalf("EncodeQuery: %v", err)
	}
	got, err := DecodeQuery(b)
	if err != nil {
		t.Fatalf("DecodeQuery: %v", err)
	}
	if got.ID != q.ID || got.Op != q.Op {
		t.Fatalf("got %+v, want %+v", got, q)
	}
}

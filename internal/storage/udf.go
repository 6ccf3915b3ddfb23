package storage

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/klauspost/compress/zstd"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/discretlib/discret/internal/identity"
)

const zstdLevel = zstd.SpeedDefault // level 3 equivalent (§6.3)

// registerUDFs wires the scalar and aggregate user-defined functions
// required by §6.3 onto a freshly opened sqlite connection.
func registerUDFs(conn *sqlite3.SQLiteConn) error {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel))
	if err != nil {
		return err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return err
	}

	if err := conn.RegisterFunc("compress", func(data []byte) ([]byte, error) {
		return enc.EncodeAll(data, nil), nil
	}, true); err != nil {
		return err
	}
	if err := conn.RegisterFunc("decompress", func(data []byte) ([]byte, error) {
		return dec.DecodeAll(data, nil)
	}, true); err != nil {
		return err
	}
	if err := conn.RegisterFunc("decompress_text", func(data []byte) (string, error) {
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}, true); err != nil {
		return err
	}
	if err := conn.RegisterFunc("json_data", func(raw string) (string, error) {
		return jsonData(raw)
	}, true); err != nil {
		return err
	}
	if err := conn.RegisterAggregator("hash", newHashAggregator, true); err != nil {
		return err
	}
	return nil
}

// jsonData recursively extracts every string value from a JSON document,
// newline-joined, for use by the full-text index builder (§6.3).
func jsonData(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return "", err
	}
	var out []string
	collectStrings(v, &out)
	return strings.Join(out, "\n"), nil
}

func collectStrings(v interface{}, out *[]string) {
	switch t := v.(type) {
	case string:
		*out = append(*out, t)
	case []interface{}:
		for _, e := range t {
			collectStrings(e, out)
		}
	case map[string]interface{}:
		for _, e := range t {
			collectStrings(e, out)
		}
	}
}

// hashAggregator implements the `hash(text) -> text` aggregate UDF: a
// blake3 digest over every row's text, truncated to 16 bytes and rendered
// base64url-unpadded — the same encoding as a Uid (§6.3).
type hashAggregator struct {
	buf bytes.Buffer
}

func newHashAggregator() *hashAggregator {
	return &hashAggregator{}
}

// Step accumulates one row's text into the running buffer.
func (a *hashAggregator) Step(text string) {
	a.buf.WriteString(text)
}

// Done finalises the aggregate and returns the encoded digest.
func (a *hashAggregator) Done() string {
	return identity.ShortHashB16(a.buf.Bytes())
}

// Package signature builds and parses the canonical request fingerprint
// used as the preimage for both the response cache and the bind cache
// keys (SPEC_FULL.md §3).
package signature

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
)

const (
	fieldSep  = 0x00
	headerSep = 0x01
)

// Request is the decoded form of a canonical signature.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Query   string
	Body    []byte
}

// Encode renders the canonical byte signature:
//
//	method \0 path \0 header_lines \0 query \0 body
//
// where header_lines joins "k:v" pairs in key-sorted order with \x01.
func Encode(method, path string, headers map[string]string, query string, body []byte) []byte {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var headerBlob bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			headerBlob.WriteByte(headerSep)
		}
		headerBlob.WriteString(k)
		headerBlob.WriteByte(':')
		headerBlob.WriteString(headers[k])
	}

	var buf bytes.Buffer
	buf.WriteString(method)
	buf.WriteByte(fieldSep)
	buf.WriteString(path)
	buf.WriteByte(fieldSep)
	buf.Write(headerBlob.Bytes())
	buf.WriteByte(fieldSep)
	buf.WriteString(query)
	buf.WriteByte(fieldSep)
	buf.Write(body)
	return buf.Bytes()
}

// Decode is the inverse of Encode. It splits on the first four field
// separators, so it round-trips only when no NUL byte appears inside
// method, path, headers or query (the body may contain NULs) and no \x01
// appears inside header keys or values.
func Decode(data []byte) (Request, error) {
	parts := bytes.SplitN(data, []byte{fieldSep}, 5)
	if len(parts) != 5 {
		return Request{}, fmt.Errorf("signature: expected 5 fields, got %d", len(parts))
	}

	headers := map[string]string{}
	if len(parts[2]) > 0 {
		for _, kv := range bytes.Split(parts[2], []byte{headerSep}) {
			idx := bytes.IndexByte(kv, ':')
			if idx < 0 {
				return Request{}, fmt.Errorf("signature: malformed header pair %q", kv)
			}
			headers[string(kv[:idx])] = string(kv[idx+1:])
		}
	}

	return Request{
		Method:  string(parts[0]),
		Path:    string(parts[1]),
		Headers: headers,
		Query:   string(parts[3]),
		Body:    parts[4],
	}, nil
}

// Key hashes a signature with blake2b (8-byte digest) and prefixes it
// "k:", matching the reserved response-cache key namespace.
func Key(sig []byte) string {
	h, err := blake2b.New(8, nil)
	if err != nil {
		// blake2b.New only fails for an invalid key or out-of-range size;
		// neither applies to our fixed nil-key, 8-byte call.
		panic(err)
	}
	h.Write(sig)
	return "k:" + hex.EncodeToString(h.Sum(nil))
}

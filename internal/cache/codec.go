package cache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Entry is the (status, headers, body) triple stored under a
// ResponseCache key (SPEC_FULL.md §4.2/§10.3).
type Entry struct {
	Status  int
	Headers map[string][]string
	Body    []byte
}

// EncodeEntry serializes e into a portable length-prefixed layout:
// 4-byte status, 4-byte headers-length + JSON-encoded headers, 4-byte
// body-length + raw body. Plain length-prefixing is chosen over a
// language-specific pickle so the cache survives process upgrades and is
// shared safely between router instances (SPEC_FULL.md §4.2).
func EncodeEntry(e Entry) ([]byte, error) {
	headersJSON, err := json.Marshal(e.Headers)
	if err != nil {
		return nil, fmt.Errorf("cache: encode headers: %w", err)
	}

	buf := make([]byte, 4+4+len(headersJSON)+4+len(e.Body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(int32(e.Status)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(headersJSON)))
	off := 8
	copy(buf[off:], headersJSON)
	off += len(headersJSON)
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(e.Body)))
	off += 4
	copy(buf[off:], e.Body)
	return buf, nil
}

// DecodeEntry is the inverse of EncodeEntry.
func DecodeEntry(data []byte) (Entry, error) {
	if len(data) < 8 {
		return Entry{}, fmt.Errorf("cache: entry too short: %d bytes", len(data))
	}
	status := int32(binary.BigEndian.Uint32(data[0:4]))
	headersLen := int(binary.BigEndian.Uint32(data[4:8]))
	off := 8
	if off+headersLen+4 > len(data) {
		return Entry{}, fmt.Errorf("cache: truncated headers section")
	}
	var headers map[string][]string
	if err := json.Unmarshal(data[off:off+headersLen], &headers); err != nil {
		return Entry{}, fmt.Errorf("cache: decode headers: %w", err)
	}
	off += headersLen
	bodyLen := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if off+bodyLen > len(data) {
		return Entry{}, fmt.Errorf("cache: truncated body section")
	}
	body := append([]byte(nil), data[off:off+bodyLen]...)
	return Entry{Status: int(status), Headers: headers, Body: body}, nil
}

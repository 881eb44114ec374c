package mapclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/transparency-dev/merkle/rfc6962"
	"golang.org/x/exp/slices"
)

// Format is the encoding of an entry. The set of formats is fixed by the protocol.
type Format int

const (
	// RawFormat stores the bytes as they are.
	RawFormat Format = iota
	// JSONFormat stores a JSON document; it is hashed as an object hash by the server.
	JSONFormat
	// RedactableJSONFormat stores a JSON document whose fields can be redacted on read.
	// Reading it returns the redacted form.
	RedactableJSONFormat
)

// ErrLeafHashUnsupported: the leaf hash of JSON formats is an object hash, not computed here.
var ErrLeafHashUnsupported = errors.New("leaf hash not supported for format")

func (f Format) String() string {
	switch f {
	case RawFormat:
		return "raw"
	case JSONFormat:
		return "json"
	case RedactableJSONFormat:
		return "redactable-json"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat is the inverse of Format.String.
func ParseFormat(s string) (Format, error) {
	for _, f := range []Format{RawFormat, JSONFormat, RedactableJSONFormat} {
		if f.String() == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown entry format %q", s)
}

// uploadSuffix is appended to the key path when writing.
func (f Format) uploadSuffix() string {
	switch f {
	case JSONFormat:
		return "/xjson"
	case RedactableJSONFormat:
		return "/xjson/redactable"
	}
	return ""
}

// readSuffix is appended to the key path when reading.
func (f Format) readSuffix() string {
	switch f {
	case JSONFormat, RedactableJSONFormat:
		return "/xjson"
	}
	return ""
}

func (f Format) valid() bool {
	return f >= RawFormat && f <= RedactableJSONFormat
}

// Entry is a value stored in the map, together with its format.
type Entry struct {
	format Format
	data   []byte
}

// NewRawEntry returns an entry storing data verbatim.
func NewRawEntry(data []byte) Entry {
	return Entry{format: RawFormat, data: slices.Clone(data)}
}

// NewJSONEntry returns an entry storing a JSON document.
func NewJSONEntry(data []byte) (Entry, error) {
	return newJSONEntry(JSONFormat, data)
}

// NewRedactableJSONEntry returns an entry storing a JSON object whose fields the server
// can redact.
func NewRedactableJSONEntry(data []byte) (Entry, error) {
	return newJSONEntry(RedactableJSONFormat, data)
}

func newJSONEntry(f Format, data []byte) (Entry, error) {
	e, err := f.FromBytes(data)
	if err != nil {
		return Entry{}, err
	}
	if len(e.data) == 0 {
		return Entry{}, fmt.Errorf("%w: empty %s entry", ErrEntryFormat, f)
	}
	return e, nil
}

// FromBytes reconstructs an entry of this format from downloaded bytes. Empty data is the
// value of an absent key and is accepted by all formats.
func (f Format) FromBytes(data []byte) (Entry, error) {
	if !f.valid() {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryFormat, f)
	}
	e := Entry{format: f, data: slices.Clone(data)}
	if f == RawFormat || len(data) == 0 {
		return e, nil
	}

	if !json.Valid(data) {
		return Entry{}, fmt.Errorf("%w: %s entry is not valid JSON", ErrEntryFormat, f)
	}
	if f == RedactableJSONFormat {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return Entry{}, fmt.Errorf("%w: %s entry is not a JSON object", ErrEntryFormat, f)
		}
	}
	return e, nil
}

func (e Entry) Format() Format {
	return e.format
}

// Data returns a copy of the stored bytes.
func (e Entry) Data() []byte {
	return slices.Clone(e.data)
}

// IsEmpty is true for the value of an absent key.
func (e Entry) IsEmpty() bool {
	return len(e.data) == 0
}

// UploadBody returns the bytes sent to the server when writing this entry.
func (e Entry) UploadBody() ([]byte, error) {
	if e.format == RawFormat {
		return slices.Clone(e.data), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, e.data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntryFormat, err)
	}
	return buf.Bytes(), nil
}

// LeafHash returns the hash of the entry as a leaf of the map. The empty value of an absent
// key hashes the same for all formats.
func (e Entry) LeafHash() ([]byte, error) {
	if e.format != RawFormat && len(e.data) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrLeafHashUnsupported, e.format)
	}
	return rfc6962.DefaultHasher.HashLeaf(e.data), nil
}

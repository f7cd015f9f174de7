package utils

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// SixIDHookFunc lets tests pin the ids produced by NewSixID.
type SixIDHookFunc func() (id SixID, override bool)

// NewSixIDHook is consulted by NewSixID when set.
var NewSixIDHook SixIDHookFunc

// SixIDSubtype is the BSON binary subtype SixIDs are stored under.
const SixIDSubtype byte = 0x80

// SixID is a 6-byte random identifier. It is stored as BSON binary
// (subtype 0x80) and rendered as 10 characters of Crockford base32.
type SixID [6]byte

var (
	ErrInvalidSixID = errors.New("invalid SixID")

	crockford = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

	// Crockford decoding is lenient about case, separators and look-alike letters.
	crockfordNormalizer = strings.NewReplacer("-", "", " ", "", "O", "0", "I", "1", "L", "1")
)

// NewSixID returns a random SixID.
func NewSixID() SixID {
	if NewSixIDHook != nil {
		if id, override := NewSixIDHook(); override {
			return id
		}
	}
	var id SixID
	if _, err := rand.Read(id[:]); err != nil {
		panic(fmt.Sprintf("sixid: crypto/rand failed: %v", err))
	}
	return id
}

// ParseSixID decodes the Crockford base32 form produced by String.
func ParseSixID(s string) (SixID, error) {
	var id SixID
	norm := crockfordNormalizer.Replace(strings.ToUpper(strings.TrimSpace(s)))
	if len(norm) != 10 {
		return id, fmt.Errorf("%w: %q must be 10 characters", ErrInvalidSixID, s)
	}
	raw, err := crockford.DecodeString(norm)
	if err != nil || len(raw) != len(id) {
		return id, fmt.Errorf("%w: %q", ErrInvalidSixID, s)
	}
	copy(id[:], raw)
	return id, nil
}

// MustParseSixID is ParseSixID for literals in tests and fixtures.
func MustParseSixID(s string) SixID {
	id, err := ParseSixID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (u SixID) String() string {
	return crockford.EncodeToString(u[:])
}

// IsZero reports whether the id is unset. The BSON encoder uses it for omitempty.
func (u SixID) IsZero() bool {
	return u == SixID{}
}

// Ptr returns a pointer to a copy of u.
func (u SixID) Ptr() *SixID {
	return &u
}

func (u SixID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *SixID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*u = SixID{}
		return nil
	}
	parsed, err := ParseSixID(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// MarshalBSONValue stores the id as binary subtype 0x80.
func (u SixID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bsontype.Binary, bsoncore.AppendBinary(nil, SixIDSubtype, u[:]), nil
}

// UnmarshalBSONValue accepts binary subtype 0x80 of length 6, or null.
func (u *SixID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*u = SixID{}
		return nil
	case bsontype.Binary:
		subtype, bin, _, ok := bsoncore.ReadBinary(data)
		if !ok || subtype != SixIDSubtype || len(bin) != len(u) {
			return fmt.Errorf("%w: bad binary subtype or length", ErrInvalidSixID)
		}
		copy(u[:], bin)
		return nil
	default:
		return fmt.Errorf("%w: unexpected BSON type %s", ErrInvalidSixID, t)
	}
}

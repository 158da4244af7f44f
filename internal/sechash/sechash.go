// Package sechash provides the canonical hashing primitives bisque builds
// provenance keys from: a SHA-256 digest of file contents and a
// deterministic encoding of structured values.
//
// Every value is written as a one-byte type tag followed by an 8-byte
// big-endian length and the payload, so adjacent fields can never run into
// each other ("ab","c" and "a","bc" hash differently). Numbers are formatted
// with strconv and map keys are sorted, which keeps digests identical across
// runs, machines and architectures.
package sechash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"
	"strconv"
)

// ErrUnhashable is returned when a value has no canonical encoding.
var ErrUnhashable = errors.New("sechash: unhashable value")

// Digest is a lowercase hex SHA-256 sum.
type Digest string

// String returns the digest as hex text.
func (d Digest) String() string {
	return string(d)
}

// Short returns the first 12 characters, for display only.
func (d Digest) Short() string {
	if len(d) <= 12 {
		return string(d)
	}
	return string(d[:12])
}

// Hashable is implemented by values that know how to encode themselves.
type Hashable interface {
	EncodeHash(enc *Encoder) error
}

// Field tags.
const (
	tagNil    byte = 'n'
	tagBool   byte = 'b'
	tagInt    byte = 'i'
	tagUint   byte = 'u'
	tagFloat  byte = 'f'
	tagString byte = 's'
	tagBytes  byte = 'y'
	tagDigest byte = 'd'
	tagList   byte = 'l'
	tagMap    byte = 'm'
	tagSub    byte = 'h'
)

// Encoder writes canonical fields into a SHA-256 state. The first error
// sticks: later writes are ignored and Sum reports it.
type Encoder struct {
	h   hash.Hash
	err error
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{h: sha256.New()}
}

func (e *Encoder) field(tag byte, payload []byte) {
	if e.err != nil {
		return
	}
	var hdr [9]byte
	hdr[0] = tag
	binary.BigEndian.PutUint64(hdr[1:], uint64(len(payload)))
	e.h.Write(hdr[:])
	e.h.Write(payload)
}

// Fail records err as the encoder's error if none is set yet.
func (e *Encoder) Fail(err error) {
	if e.err == nil && err != nil {
		e.err = err
	}
}

// Err returns the first error recorded.
func (e *Encoder) Err() error {
	return e.err
}

// Nil writes an explicit null.
func (e *Encoder) Nil() { e.field(tagNil, nil) }

// String writes a UTF-8 string.
func (e *Encoder) String(s string) { e.field(tagString, []byte(s)) }

// Bytes writes raw bytes.
func (e *Encoder) Bytes(b []byte) { e.field(tagBytes, b) }

// Digest writes another digest.
func (e *Encoder) Digest(d Digest) { e.field(tagDigest, []byte(d)) }

// Int writes a signed integer in base 10.
func (e *Encoder) Int(i int64) { e.field(tagInt, strconv.AppendInt(nil, i, 10)) }

// Uint writes an unsigned integer in base 10.
func (e *Encoder) Uint(u uint64) { e.field(tagUint, strconv.AppendUint(nil, u, 10)) }

// Float writes f in the shortest 'g' form that round-trips.
func (e *Encoder) Float(f float64) { e.field(tagFloat, strconv.AppendFloat(nil, f, 'g', -1, 64)) }

// List writes a list header; the caller writes n elements after it.
func (e *Encoder) List(n int) { e.field(tagList, strconv.AppendInt(nil, int64(n), 10)) }

func (e *Encoder) mapHeader(n int) { e.field(tagMap, strconv.AppendInt(nil, int64(n), 10)) }

// Bool writes a boolean.
func (e *Encoder) Bool(b bool) {
	if b {
		e.field(tagBool, []byte{1})
		return
	}
	e.field(tagBool, []byte{0})
}

// Digests writes a counted list of digests in the given order.
func (e *Encoder) Digests(ds []Digest) {
	e.List(len(ds))
	for _, d := range ds {
		e.Digest(d)
	}
}

// Strings writes a counted list of strings in the given order.
func (e *Encoder) Strings(ss []string) {
	e.List(len(ss))
	for _, s := range ss {
		e.String(s)
	}
}

// StringMap writes m with its keys sorted.
func (e *Encoder) StringMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.mapHeader(len(keys))
	for _, k := range keys {
		e.String(k)
		e.String(m[k])
	}
}

// Sub encodes fn's fields into a nested encoder and writes the nested digest
// as a single field. Use it to frame variable-shaped content such as job
// parameters.
func (e *Encoder) Sub(fn func(*Encoder) error) {
	if e.err != nil {
		return
	}
	sub := NewEncoder()
	if err := fn(sub); err != nil {
		e.Fail(err)
		return
	}
	d, err := sub.Sum()
	if err != nil {
		e.Fail(err)
		return
	}
	e.field(tagSub, []byte(d))
}

// Value writes v using its canonical encoding. Supported: nil, bool, all
// integer and float kinds, string, []byte, Digest, Hashable, []any,
// []string, []Digest, map[string]any and map[string]string, nested freely.
func (e *Encoder) Value(v any) error {
	if e.err != nil {
		return e.err
	}
	switch x := v.(type) {
	case nil:
		e.Nil()
	case Hashable:
		e.Sub(x.EncodeHash)
	case bool:
		e.Bool(x)
	case int:
		e.Int(int64(x))
	case int8:
		e.Int(int64(x))
	case int16:
		e.Int(int64(x))
	case int32:
		e.Int(int64(x))
	case int64:
		e.Int(x)
	case uint:
		e.Uint(uint64(x))
	case uint8:
		e.Uint(uint64(x))
	case uint16:
		e.Uint(uint64(x))
	case uint32:
		e.Uint(uint64(x))
	case uint64:
		e.Uint(x)
	case float32:
		e.Float(float64(x))
	case float64:
		e.Float(x)
	case string:
		e.String(x)
	case []byte:
		e.Bytes(x)
	case Digest:
		e.Digest(x)
	case []Digest:
		e.Digests(x)
	case []string:
		e.Strings(x)
	case []any:
		e.List(len(x))
		for _, item := range x {
			if err := e.Value(item); err != nil {
				return err
			}
		}
	case map[string]string:
		e.StringMap(x)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.mapHeader(len(keys))
		for _, k := range keys {
			e.String(k)
			if err := e.Value(x[k]); err != nil {
				return err
			}
		}
	default:
		e.Fail(fmt.Errorf("%w: %T", ErrUnhashable, v))
	}
	return e.err
}

// Sum returns the digest of everything written so far.
func (e *Encoder) Sum() (Digest, error) {
	if e.err != nil {
		return "", e.err
	}
	return Digest(hex.EncodeToString(e.h.Sum(nil))), nil
}

// HashValue returns the canonical digest of v.
func HashValue(v any) (Digest, error) {
	enc := NewEncoder()
	if err := enc.Value(v); err != nil {
		return "", err
	}
	return enc.Sum()
}

// HashBytes returns the SHA-256 digest of b.
func HashBytes(b []byte) Digest {
	sum := sha256.Sum256(b)
	return Digest(hex.EncodeToString(sum[:]))
}

// HashFile returns the SHA-256 digest of the file's contents.
func HashFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("sechash: hash file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("sechash: hash file %s: %w", path, err)
	}
	return Digest(hex.EncodeToString(h.Sum(nil))), nil
}

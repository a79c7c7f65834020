// Package gguf reads the metadata block at the head of a GGUF model file:
// the architecture, the model name and the embedded chat template. Tensor
// info and tensor data are never read.
package gguf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const magic = "GGUF"

var ErrNotGGUF = errors.New("not a GGUF file")

type ValueType uint32

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

// size of a fixed-width value, 0 for strings and arrays.
func (t ValueType) size() int {
	switch t {
	case TypeUint8, TypeInt8, TypeBool:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat32:
		return 4
	case TypeUint64, TypeInt64, TypeFloat64:
		return 8
	default:
		return 0
	}
}

// Keys the chat front-end cares about.
const (
	KeyArchitecture = "general.architecture"
	KeyName         = "general.name"
	KeyChatTemplate = "tokenizer.chat_template"
)

// Metadata holds the scalar and string values of a file's key/value block.
// Arrays are skipped; ArrayLen records their element counts.
type Metadata struct {
	Version     uint32
	TensorCount uint64
	KV          map[string]any
	ArrayLen    map[string]uint64
}

func (m Metadata) StringValue(key string) (string, bool) {
	s, ok := m.KV[key].(string)
	return s, ok
}

func (m Metadata) Uint(key string) (uint64, bool) {
	switch v := m.KV[key].(type) {
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	case int32:
		if v >= 0 {
			return uint64(v), true
		}
	case int64:
		if v >= 0 {
			return uint64(v), true
		}
	}
	return 0, false
}

func (m Metadata) Architecture() string {
	s, _ := m.StringValue(KeyArchitecture)
	return s
}

func (m Metadata) Name() string {
	s, _ := m.StringValue(KeyName)
	return s
}

func (m Metadata) ChatTemplate() string {
	s, _ := m.StringValue(KeyChatTemplate)
	return s
}

// ContextLength is <architecture>.context_length, or 0.
func (m Metadata) ContextLength() uint64 {
	arch := m.Architecture()
	if arch == "" {
		return 0
	}
	n, _ := m.Uint(arch + ".context_length")
	return n
}

// ReadFile reads the metadata of the GGUF file at path.
func ReadFile(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()
	md, err := Read(f)
	if err != nil {
		return Metadata{}, fmt.Errorf("%s: %w", path, err)
	}
	return md, nil
}

// Read parses a GGUF header and key/value block from r.
func Read(rd io.Reader) (Metadata, error) {
	r := newReader(rd)

	head, err := r.readN(4)
	if err != nil {
		return Metadata{}, err
	}
	if string(head) != magic {
		return Metadata{}, fmt.Errorf("%w: magic %q", ErrNotGGUF, string(head))
	}
	version, err := r.readU32()
	if err != nil {
		return Metadata{}, err
	}
	if version < 2 {
		return Metadata{}, fmt.Errorf("unsupported GGUF version %d", version)
	}
	tensorCount, err := r.readU64()
	if err != nil {
		return Metadata{}, err
	}
	kvCount, err := r.readU64()
	if err != nil {
		return Metadata{}, err
	}

	md := Metadata{
		Version:     version,
		TensorCount: tensorCount,
		KV:          make(map[string]any, min(kvCount, 1024)),
		ArrayLen:    make(map[string]uint64),
	}
	for i := range kvCount {
		key, err := r.readString()
		if err != nil {
			return Metadata{}, fmt.Errorf("read key %d: %w", i, err)
		}
		vt, err := r.readU32()
		if err != nil {
			return Metadata{}, fmt.Errorf("read value type for %s: %w", key, err)
		}
		if ValueType(vt) == TypeArray {
			n, err := skipArray(r)
			if err != nil {
				return Metadata{}, fmt.Errorf("skip array %s: %w", key, err)
			}
			md.ArrayLen[key] = n
			continue
		}
		v, err := readScalar(r, ValueType(vt))
		if err != nil {
			return Metadata{}, fmt.Errorf("read value for %s: %w", key, err)
		}
		md.KV[key] = v
	}
	return md, nil
}

func readScalar(r *reader, t ValueType) (any, error) {
	if t == TypeString {
		return r.readString()
	}
	n := t.size()
	if n == 0 {
		return nil, fmt.Errorf("unsupported value type %d", uint32(t))
	}
	b, err := r.readN(n)
	if err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	switch t {
	case TypeUint8:
		return b[0], nil
	case TypeInt8:
		return int8(b[0]), nil
	case TypeBool:
		return b[0] != 0, nil
	case TypeUint16:
		return le.Uint16(b), nil
	case TypeInt16:
		return int16(le.Uint16(b)), nil
	case TypeUint32:
		return le.Uint32(b), nil
	case TypeInt32:
		return int32(le.Uint32(b)), nil
	case TypeFloat32:
		return math.Float32frombits(le.Uint32(b)), nil
	case TypeUint64:
		return le.Uint64(b), nil
	case TypeInt64:
		return int64(le.Uint64(b)), nil
	default:
		return math.Float64frombits(le.Uint64(b)), nil
	}
}

// skipArray consumes an array value and returns its element count.
func skipArray(r *reader) (uint64, error) {
	et, err := r.readU32()
	if err != nil {
		return 0, err
	}
	count, err := r.readU64()
	if err != nil {
		return 0, err
	}
	elem := ValueType(et)
	switch {
	case elem == TypeString:
		for range count {
			if err := r.skipString(); err != nil {
				return 0, err
			}
		}
	case elem == TypeArray:
		for range count {
			if _, err := skipArray(r); err != nil {
				return 0, err
			}
		}
	case elem.size() > 0:
		if count > math.MaxInt64/uint64(elem.size()) {
			return 0, fmt.Errorf("array too large: %d", count)
		}
		if err := r.skip(count * uint64(elem.size())); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("unsupported array element type %d", et)
	}
	return count, nil
}

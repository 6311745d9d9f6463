// Package gguf decodes the header of GGUF model files: the metadata
// key/value pairs and the tensor descriptors, but not the tensor data
// itself. That is enough to identify a model and report on the artifacts
// a quantization run produces.
package gguf

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

// "GGUF" in little endian.
const fileMagic = 0x46554747

const (
	typeUint8 uint32 = iota
	typeInt8
	typeUint16
	typeInt16
	typeUint32
	typeInt32
	typeFloat32
	typeBool
	typeString
	typeArray
	typeUint64
	typeInt64
	typeFloat64
)

// KV holds the metadata key/value pairs of a GGUF file.
type KV map[string]any

func (kv KV) Architecture() string {
	return keyValue(kv, "general.architecture", "unknown")
}

func (kv KV) Name() string {
	return keyValue(kv, "general.name", "")
}

func (kv KV) FileType() FileType {
	if t, ok := kv["general.file_type"].(uint32); ok {
		return FileType(t)
	}
	return FileTypeUnknown
}

func (kv KV) ParameterCount() uint64 {
	return keyValue(kv, "general.parameter_count", uint64(0))
}

func (kv KV) String(key string, defaults ...string) string {
	return keyValue(kv, key, append(defaults, "")...)
}

func (kv KV) Uint(key string, defaults ...uint32) uint32 {
	return keyValue(kv, key, append(defaults, 0)...)
}

func keyValue[T any](kv KV, key string, defaultValue ...T) T {
	if !strings.HasPrefix(key, "general.") && !strings.HasPrefix(key, "tokenizer.") {
		key = kv.Architecture() + "." + key
	}

	if v, ok := kv[key].(T); ok {
		return v
	}

	return defaultValue[0]
}

// Tensor describes a single tensor entry from the file header.
type Tensor struct {
	Name   string
	Kind   uint32
	Offset uint64
	Shape  []uint64
}

func (t Tensor) Elements() uint64 {
	count := uint64(1)
	for _, n := range t.Shape {
		count *= n
	}
	return count
}

// File is the decoded header of a GGUF file.
type File struct {
	Version uint32
	KV      KV
	Tensors []Tensor
}

// DecodeFile opens path and decodes its GGUF header.
func DecodeFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads a GGUF header from r. Version 1 files, which use 32 bit
// counts and a different string encoding, are not supported; every
// toolchain this project drives writes version 3.
func Decode(r io.Reader) (*File, error) {
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}

	if magic != fileMagic {
		return nil, fmt.Errorf("invalid file magic %#x", magic)
	}

	f := File{KV: make(KV)}
	if err := binary.Read(r, binary.LittleEndian, &f.Version); err != nil {
		return nil, err
	}

	switch f.Version {
	case 2, 3:
	default:
		return nil, fmt.Errorf("unsupported version %d", f.Version)
	}

	var numTensors, numKV uint64
	if err := binary.Read(r, binary.LittleEndian, &numTensors); err != nil {
		return nil, err
	}

	if err := binary.Read(r, binary.LittleEndian, &numKV); err != nil {
		return nil, err
	}

	for i := uint64(0); i < numKV; i++ {
		key, err := readString(r)
		if err != nil {
			return nil, err
		}

		var typ uint32
		if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
			return nil, err
		}

		v, err := readValue(r, typ)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", key, err)
		}

		f.KV[key] = v
	}

	var parameters uint64
	for i := uint64(0); i < numTensors; i++ {
		t, err := readTensor(r)
		if err != nil {
			return nil, err
		}

		f.Tensors = append(f.Tensors, t)
		parameters += t.Elements()
	}

	if _, ok := f.KV["general.parameter_count"]; !ok {
		f.KV["general.parameter_count"] = parameters
	}

	return &f, nil
}

func readValue(r io.Reader, typ uint32) (any, error) {
	var v any
	var err error

	switch typ {
	case typeUint8:
		v, err = read[uint8](r)
	case typeInt8:
		v, err = read[int8](r)
	case typeUint16:
		v, err = read[uint16](r)
	case typeInt16:
		v, err = read[int16](r)
	case typeUint32:
		v, err = read[uint32](r)
	case typeInt32:
		v, err = read[int32](r)
	case typeUint64:
		v, err = read[uint64](r)
	case typeInt64:
		v, err = read[int64](r)
	case typeFloat32:
		v, err = read[float32](r)
	case typeFloat64:
		v, err = read[float64](r)
	case typeBool:
		v, err = read[bool](r)
	case typeString:
		v, err = readString(r)
	case typeArray:
		v, err = readArray(r)
	default:
		return nil, fmt.Errorf("unknown value type %d", typ)
	}

	return v, err
}

func read[T any](r io.Reader) (T, error) {
	var t T
	err := binary.Read(r, binary.LittleEndian, &t)
	return t, err
}

func readString(r io.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}

	return string(buf), nil
}

func readArray(r io.Reader) ([]any, error) {
	var typ uint32
	if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
		return nil, err
	}

	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	var values []any
	for i := uint64(0); i < n; i++ {
		v, err := readValue(r, typ)
		if err != nil {
			return nil, err
		}

		values = append(values, v)
	}

	return values, nil
}

func readTensor(r io.Reader) (Tensor, error) {
	var t Tensor

	name, err := readString(r)
	if err != nil {
		return t, err
	}
	t.Name = name

	var dims uint32
	if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
		return t, err
	}

	t.Shape = make([]uint64, dims)
	for i := range t.Shape {
		if err := binary.Read(r, binary.LittleEndian, &t.Shape[i]); err != nil {
			return t, err
		}
	}

	if err := binary.Read(r, binary.LittleEndian, &t.Kind); err != nil {
		return t, err
	}

	if err := binary.Read(r, binary.LittleEndian, &t.Offset); err != nil {
		return t, err
	}

	return t, nil
}

// Package schema is the seam between wire bytes and the structured
// payloads carried by TOPIC_HAPTIC, TOPIC_AUDIO_CONTROL,
// TOPIC_INPUT_CONTROL, and RIPC method calls/replies. A real deployment
// binds these to the device's own schema compiler/runtime; this package's
// reflective codec exists so anything in Go tagged with field widths can
// be sent or parsed before that binding exists.
package schema

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// Codec encodes a tagged Go struct into its wire representation and
// decodes wire bytes back into one. Segmentation across multiple topic
// frames happens below this layer (the framer and RIPC's preamble
// NextSize already handle reassembly); Codec always sees one concatenated
// buffer.
type Codec interface {
	Encode(message interface{}) ([]byte, error)
	Decode(data []byte, out interface{}) error
}

// ReflectCodec implements Codec by walking a struct's fields in
// declaration order and packing/unpacking each one little-endian
// according to its `schema:"..."` tag, generalizing the field-by-field
// manual Parse/Encode convention used for the protocol's fixed-layout
// messages (handshake.OKSecondPayload, ripc.Preamble, and similar) to
// arbitrary tagged structs.
//
// Supported tags: u8, u16, u32, u64, i8, i16, i32, i64, f32, f64. A
// []byte field tagged `schema:"bytes"` consumes the remainder of the
// buffer on decode and is appended as-is on encode; it may only appear
// as the last field.
type ReflectCodec struct{}

// Encode packs message's fields into a little-endian byte buffer in
// declaration order.
func (ReflectCodec) Encode(message interface{}) ([]byte, error) {
	v := reflect.Indirect(reflect.ValueOf(message))
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: Encode requires a struct, got %s", v.Kind())
	}

	var out []byte
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("schema")
		if tag == "" {
			continue
		}
		fv := v.Field(i)

		buf, err := encodeField(tag, fv)
		if err != nil {
			return nil, fmt.Errorf("schema: field %s: %w", field.Name, err)
		}
		out = append(out, buf...)
	}
	return out, nil
}

// Decode unpacks data into out's fields in declaration order. out must be
// a non-nil pointer to a struct.
func (ReflectCodec) Decode(data []byte, out interface{}) error {
	ptr := reflect.ValueOf(out)
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() {
		return fmt.Errorf("schema: Decode requires a non-nil pointer")
	}
	v := ptr.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("schema: Decode requires a struct, got %s", v.Kind())
	}

	t := v.Type()
	off := 0
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("schema")
		if tag == "" {
			continue
		}
		fv := v.Field(i)

		n, err := decodeField(tag, data[off:], fv)
		if err != nil {
			return fmt.Errorf("schema: field %s: %w", field.Name, err)
		}
		off += n
	}
	return nil
}

func encodeField(tag string, fv reflect.Value) ([]byte, error) {
	switch tag {
	case "u8":
		return []byte{byte(fv.Uint())}, nil
	case "i8":
		return []byte{byte(fv.Int())}, nil
	case "u16":
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(fv.Uint()))
		return buf, nil
	case "i16":
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(fv.Int()))
		return buf, nil
	case "u32":
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(fv.Uint()))
		return buf, nil
	case "i32":
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(fv.Int()))
		return buf, nil
	case "u64":
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, fv.Uint())
		return buf, nil
	case "i64":
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(fv.Int()))
		return buf, nil
	case "f32":
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(fv.Float())))
		return buf, nil
	case "f64":
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(fv.Float()))
		return buf, nil
	case "bytes":
		return fv.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown schema tag %q", tag)
	}
}

func decodeField(tag string, data []byte, fv reflect.Value) (int, error) {
	need := fieldSize(tag, data)
	if len(data) < need {
		return 0, fmt.Errorf("buffer too short for tag %q: need %d, have %d", tag, need, len(data))
	}

	switch tag {
	case "u8":
		fv.SetUint(uint64(data[0]))
	case "i8":
		fv.SetInt(int64(int8(data[0])))
	case "u16":
		fv.SetUint(uint64(binary.LittleEndian.Uint16(data)))
	case "i16":
		fv.SetInt(int64(int16(binary.LittleEndian.Uint16(data))))
	case "u32":
		fv.SetUint(uint64(binary.LittleEndian.Uint32(data)))
	case "i32":
		fv.SetInt(int64(int32(binary.LittleEndian.Uint32(data))))
	case "u64":
		fv.SetUint(binary.LittleEndian.Uint64(data))
	case "i64":
		fv.SetInt(int64(binary.LittleEndian.Uint64(data)))
	case "f32":
		fv.SetFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(data))))
	case "f64":
		fv.SetFloat(math.Float64frombits(binary.LittleEndian.Uint64(data)))
	case "bytes":
		cp := make([]byte, need)
		copy(cp, data[:need])
		fv.SetBytes(cp)
	default:
		return 0, fmt.Errorf("unknown schema tag %q", tag)
	}
	return need, nil
}

func fieldSize(tag string, remaining []byte) int {
	switch tag {
	case "u8", "i8":
		return 1
	case "u16", "i16":
		return 2
	case "u32", "i32", "f32":
		return 4
	case "u64", "i64", "f64":
		return 8
	case "bytes":
		return len(remaining)
	default:
		return 0
	}
}

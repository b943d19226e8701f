// ABOUTME: Tagged value type produced by field reads
// ABOUTME: Formatting and write-back encoding for editable fields

package typesys

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode/utf16"

	"github.com/clrlens/clrlens/target"
)

// ErrNotValueField is returned when write-back is attempted on a
// reference-typed field. The core only supports editing value fields;
// rewriting references is rejected at this boundary.
var ErrNotValueField = errors.New("field is not a value kind; reference writes are not supported")

// Value is the result of one field read, tagged by element kind.
// Primitive kinds populate Bits (sign-extended for signed integers) or
// Float; reference and inline kinds populate Ref.
type Value struct {
	Kind  ElemKind
	Bits  uint64
	Float float64
	Ref   uint64
}

// Format renders the value for display. Integer kinds honor useHex;
// references and inline struct addresses always render as hex because
// they are addresses, not quantities.
func (v Value) Format(useHex bool) string {
	switch v.Kind {
	case KindBool:
		if v.Bits != 0 {
			return "true"
		}
		return "false"
	case KindChar:
		runes := utf16.Decode([]uint16{uint16(v.Bits)})
		return strconv.QuoteRune(runes[0])
	case KindI1, KindI2, KindI4, KindI8:
		if useHex {
			return fmt.Sprintf("0x%X", v.Bits)
		}
		return strconv.FormatInt(int64(v.Bits), 10)
	case KindU1, KindU2, KindU4, KindU8:
		if useHex {
			return fmt.Sprintf("0x%X", v.Bits)
		}
		return strconv.FormatUint(v.Bits, 10)
	case KindR4, KindR8:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindPtr:
		return fmt.Sprintf("0x%X", v.Bits)
	case KindClass, KindObject, KindString, KindArray, KindSZArray, KindStruct:
		return fmt.Sprintf("0x%X", v.Ref)
	default:
		return "?"
	}
}

// ParseValue parses user input into an encoded field payload for the
// given kind and pointer size. Only value kinds parse; reference kinds
// return ErrNotValueField.
func ParseValue(kind ElemKind, ptrSize int, text string) ([]byte, error) {
	width := kind.FixedSize(ptrSize)
	switch kind {
	case KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("parsing bool %q: %w", text, err)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case KindChar:
		r, err := parseRune(text)
		if err != nil {
			return nil, err
		}
		units := utf16.Encode([]rune{r})
		return leBytes(uint64(units[0]), 2), nil
	case KindI1, KindI2, KindI4, KindI8:
		n, err := strconv.ParseInt(text, 0, width*8)
		if err != nil {
			return nil, fmt.Errorf("parsing integer %q: %w", text, err)
		}
		return leBytes(uint64(n), width), nil
	case KindU1, KindU2, KindU4, KindU8, KindPtr:
		n, err := strconv.ParseUint(text, 0, width*8)
		if err != nil {
			return nil, fmt.Errorf("parsing integer %q: %w", text, err)
		}
		return leBytes(n, width), nil
	case KindR4:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing float %q: %w", text, err)
		}
		return leBytes(uint64(math.Float32bits(float32(f))), 4), nil
	case KindR8:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing float %q: %w", text, err)
		}
		return leBytes(math.Float64bits(f), 8), nil
	default:
		return nil, ErrNotValueField
	}
}

// WriteFieldValue parses text per the field's kind and writes it into
// the object at objAddr. Reference-typed fields are rejected.
func WriteFieldValue(w target.Writer, ptrSize int, f *Field, objAddr uint64, text string) error {
	if !f.IsValueKind() {
		return ErrNotValueField
	}
	payload, err := ParseValue(f.Kind, ptrSize, text)
	if err != nil {
		return err
	}
	if _, err := w.WriteMemory(objAddr+f.Offset, payload); err != nil {
		return fmt.Errorf("writing field %s: %w", f.Name, err)
	}
	return nil
}

func parseRune(text string) (rune, error) {
	if len(text) >= 2 && text[0] == '\'' {
		r, _, _, err := strconv.UnquoteChar(text[1:len(text)-1], '\'')
		if err != nil {
			return 0, fmt.Errorf("parsing char %q: %w", text, err)
		}
		return r, nil
	}
	runes := []rune(text)
	if len(runes) != 1 {
		return 0, fmt.Errorf("parsing char %q: want a single character", text)
	}
	return runes[0], nil
}

func leUint(buf []byte) uint64 {
	var v uint64
	for i := len(buf) - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

func leBytes(v uint64, width int) []byte {
	out := make([]byte, width)
	for i := 0; i < width; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

func f32frombits(b uint32) float32 { return math.Float32frombits(b) }
func f64frombits(b uint64) float64 { return math.Float64frombits(b) }

// ABOUTME: Type and field descriptors with lazy field resolution
// ABOUTME: Size computation handles fixed, array and string layouts

package typesys

import (
	"fmt"
	"strings"

	"github.com/clrlens/clrlens/target"
)

// Type describes one managed type. Identity is the (method table,
// component method table) pair, never the name: names are not unique.
// Types are created by the Resolver and shared by every object of the
// type; they are immutable after construction.
type Type struct {
	MethodTable uint64
	Component   uint64 // element method table for arrays, else 0
	Name        string // fully qualified
	Token       uint32
	Module      string

	BaseSize         uint64
	ComponentSize    uint64
	IsArray          bool
	IsString         bool
	ContainsPointers bool

	r      *Resolver
	fields []*Field // resolved on first Fields call
}

// SimpleName collapses a fully qualified name to the substring after
// the last dot.
func (t *Type) SimpleName() string {
	if i := strings.LastIndexByte(t.Name, '.'); i >= 0 {
		return t.Name[i+1:]
	}
	return t.Name
}

// Size returns the byte size of the object at addr. Fixed-size types
// report BaseSize without touching memory; arrays and strings read the
// element count stored after the method table.
func (t *Type) Size(addr uint64, r target.Reader) (uint64, error) {
	if !t.IsArray && !t.IsString {
		return t.BaseSize, nil
	}
	buf := make([]byte, 4)
	if _, err := r.ReadMemory(addr+uint64(r.PointerSize()), buf); err != nil {
		return 0, fmt.Errorf("reading element count at %#x: %w", addr, err)
	}
	count := uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24
	return t.BaseSize + count*t.ComponentSize, nil
}

// Fields returns the type's declared instance fields, resolving them
// from the provider on first use. Field declared types stay lazy to
// avoid unbounded recursive resolution at load time.
func (t *Type) Fields() ([]*Field, error) {
	if t.fields != nil {
		return t.fields, nil
	}
	raw, err := t.r.provider.FieldData(t.MethodTable)
	if err != nil {
		return nil, fmt.Errorf("field data for %s: %w", t.Name, err)
	}
	fields := make([]*Field, 0, len(raw))
	for _, fd := range raw {
		fields = append(fields, &Field{
			Name:    fd.Name,
			Offset:  fd.Offset,
			Kind:    ElemKind(fd.Kind),
			fieldMT: fd.FieldMethodTable,
			r:       t.r,
		})
	}
	t.fields = fields
	return t.fields, nil
}

// Field describes one declared instance field. A field belongs to
// exactly one declaring type but is applied against many objects.
type Field struct {
	Name   string
	Offset uint64
	Kind   ElemKind

	fieldMT uint64
	r       *Resolver
}

// DeclaredType resolves the field's declared type. Nil when the method
// table is unknown to the provider.
func (f *Field) DeclaredType() *Type {
	if f.fieldMT == 0 {
		return nil
	}
	t, _ := f.r.GetTypeByMethodTable(f.fieldMT, 0)
	return t
}

// IsValueKind reports whether the field holds a directly editable value
// rather than a reference. Only these fields accept write-back.
func (f *Field) IsValueKind() bool { return f.Kind.IsPrimitive() || f.Kind == KindPtr }

// GetValue reads the field out of the object at objAddr. Primitive
// kinds read fixed-width values; reference kinds read one pointer-sized
// reference; struct kinds yield the inline address with no read. A
// failed read is returned as an error scoped to this one field/object
// pair and never aborts a surrounding traversal.
func (f *Field) GetValue(r target.Reader, objAddr uint64) (Value, error) {
	addr := objAddr + f.Offset

	if f.Kind.IsInline() {
		return Value{Kind: f.Kind, Ref: addr}, nil
	}

	width := f.Kind.FixedSize(r.PointerSize())
	if width == 0 {
		return Value{}, fmt.Errorf("field %s: unreadable kind %s", f.Name, f.Kind)
	}
	buf := make([]byte, width)
	if _, err := r.ReadMemory(addr, buf); err != nil {
		return Value{}, fmt.Errorf("field %s at %#x: %w", f.Name, addr, err)
	}

	bits := leUint(buf)
	v := Value{Kind: f.Kind}
	switch f.Kind {
	case KindI1:
		v.Bits = uint64(int64(int8(bits)))
	case KindI2:
		v.Bits = uint64(int64(int16(bits)))
	case KindI4:
		v.Bits = uint64(int64(int32(bits)))
	case KindI8:
		v.Bits = bits
	case KindR4:
		v.Float = float64(f32frombits(uint32(bits)))
	case KindR8:
		v.Float = f64frombits(bits)
	case KindClass, KindObject, KindString, KindArray, KindSZArray:
		v.Ref = bits
	default:
		v.Bits = bits
	}
	return v, nil
}

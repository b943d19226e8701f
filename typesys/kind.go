// ABOUTME: Element-kind enumeration driving all field value reads
// ABOUTME: Explicit tagged variant instead of runtime reflection

// Package typesys resolves method tables to type descriptors and reads
// typed field values out of a target's memory. All layout decisions are
// dispatched over the explicit ElemKind tag; nothing here reflects.
package typesys

// ElemKind classifies a field's declared type for layout purposes. The
// values are stable and shared with the metadata provider's raw field
// records.
type ElemKind uint8

const (
	KindUnknown ElemKind = iota
	KindBool
	KindChar // UTF-16 code unit
	KindI1
	KindU1
	KindI2
	KindU2
	KindI4
	KindU4
	KindI8
	KindU8
	KindR4
	KindR8
	KindPtr    // unmanaged pointer, pointer-sized
	KindStruct // inline value type, embedded in the owner
	KindClass
	KindObject
	KindString
	KindArray
	KindSZArray
)

var kindNames = map[ElemKind]string{
	KindUnknown: "unknown",
	KindBool:    "bool",
	KindChar:    "char",
	KindI1:      "i1",
	KindU1:      "u1",
	KindI2:      "i2",
	KindU2:      "u2",
	KindI4:      "i4",
	KindU4:      "u4",
	KindI8:      "i8",
	KindU8:      "u8",
	KindR4:      "r4",
	KindR8:      "r8",
	KindPtr:     "ptr",
	KindStruct:  "struct",
	KindClass:   "class",
	KindObject:  "object",
	KindString:  "string",
	KindArray:   "array",
	KindSZArray: "szarray",
}

func (k ElemKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsPrimitive reports whether the kind is a fixed-width numeric, boolean
// or character value read directly from the owner's memory.
func (k ElemKind) IsPrimitive() bool {
	switch k {
	case KindBool, KindChar, KindI1, KindU1, KindI2, KindU2,
		KindI4, KindU4, KindI8, KindU8, KindR4, KindR8:
		return true
	}
	return false
}

// IsReference reports whether the kind is read as one pointer-sized
// reference to another heap object.
func (k ElemKind) IsReference() bool {
	switch k {
	case KindClass, KindObject, KindString, KindArray, KindSZArray:
		return true
	}
	return false
}

// IsInline reports whether the kind is embedded in the owning object
// with no pointer dereference.
func (k ElemKind) IsInline() bool { return k == KindStruct }

// Expandable reports whether a field of this kind may lead to another
// heap object the graph collector should try to expand.
func (k ElemKind) Expandable() bool { return k.IsReference() || k.IsInline() }

// FixedSize returns the read width in bytes for the kind, using ptrSize
// for pointer-shaped kinds. Struct returns 0: inline values have no
// fixed width of their own.
func (k ElemKind) FixedSize(ptrSize int) int {
	switch k {
	case KindBool, KindI1, KindU1:
		return 1
	case KindChar, KindI2, KindU2:
		return 2
	case KindI4, KindU4, KindR4:
		return 4
	case KindI8, KindU8, KindR8:
		return 8
	case KindPtr, KindClass, KindObject, KindString, KindArray, KindSZArray:
		return ptrSize
	default:
		return 0
	}
}

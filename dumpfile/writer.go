// ABOUTME: Snapshot writer emitting the same record stream the parser reads
// ABOUTME: Serializes an in-memory target plus its metadata provider

package dumpfile

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/clrlens/clrlens/dac"
	"github.com/clrlens/clrlens/target/memtarget"
)

// Write serializes a loaded target and provider as a snapshot stream.
// Fixtures use it to produce test snapshots; a live-process backend can
// use it to capture a paused target to disk.
func Write(w io.Writer, t *memtarget.Target, p *dac.MemProvider) error {
	bw := bufio.NewWriterSize(w, 1<<20)
	e := &encoder{w: bw}

	e.raw([]byte(Magic))

	e.varint(tagParams)
	e.str(string(t.Architecture()))
	e.varint(uint64(p.Flavor()))

	modules, err := t.EnumerateModules()
	if err != nil {
		return errors.Wrap(err, "enumerating modules")
	}
	for _, m := range modules {
		e.varint(tagModule)
		e.str(m.Path)
		e.varint(m.Base)
		e.varint(m.Size)
	}

	for _, r := range t.Regions() {
		e.varint(tagRegion)
		e.varint(r.Base)
		e.blob(r.Data)
	}

	segments, err := p.HeapSegments()
	if err != nil {
		return errors.Wrap(err, "enumerating segments")
	}
	for _, s := range segments {
		var flags uint64
		if s.Ephemeral {
			flags |= segFlagEphemeral
		}
		if s.Large {
			flags |= segFlagLarge
		}
		e.varint(tagSegment)
		e.varints(s.Start, s.End, s.Committed, s.Reserved, s.Gen0Start, s.Gen1Start, flags, uint64(s.HeapIndex))
	}

	var typeErr error
	p.EnumerateTypes(func(td *dac.TypeData) bool {
		var flags uint64
		if td.IsArray {
			flags |= typeFlagArray
		}
		if td.IsString {
			flags |= typeFlagString
		}
		if td.ContainsPointers {
			flags |= typeFlagContainsPointers
		}
		e.varint(tagType)
		e.varint(td.MethodTable)
		e.str(td.Name)
		e.varint(uint64(td.Token))
		e.str(td.Module)
		e.varints(td.BaseSize, td.ComponentSize, flags)

		fields, err := p.FieldData(td.MethodTable)
		if err != nil {
			typeErr = errors.Wrapf(err, "fields of %s", td.Name)
			return false
		}
		if len(fields) > 0 {
			e.varint(tagFields)
			e.varint(td.MethodTable)
			e.varint(uint64(len(fields)))
			for _, f := range fields {
				e.str(f.Name)
				e.varints(f.Offset, uint64(f.Kind), f.FieldMethodTable)
			}
		}
		return true
	})
	if typeErr != nil {
		return typeErr
	}

	roots, err := p.Roots()
	if err != nil {
		return errors.Wrap(err, "enumerating roots")
	}
	for _, r := range roots {
		e.varint(tagRoot)
		e.varint(uint64(r.Kind))
		e.str(r.Name)
		e.varints(r.Address, r.Object, uint64(r.Flags))
	}

	e.varint(tagEOF)
	if e.err != nil {
		return errors.Wrap(e.err, "writing snapshot")
	}
	return bw.Flush()
}

// encoder writes varint records, remembering the first error.
type encoder struct {
	w   *bufio.Writer
	buf [binary.MaxVarintLen64]byte
	err error
}

func (e *encoder) raw(data []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(data)
}

func (e *encoder) varint(v uint64) {
	n := binary.PutUvarint(e.buf[:], v)
	e.raw(e.buf[:n])
}

func (e *encoder) varints(vs ...uint64) {
	for _, v := range vs {
		e.varint(v)
	}
}

func (e *encoder) str(s string) {
	e.varint(uint64(len(s)))
	e.raw([]byte(s))
}

func (e *encoder) blob(data []byte) {
	e.varint(uint64(len(data)))
	e.raw(data)
}

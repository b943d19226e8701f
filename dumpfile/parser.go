// ABOUTME: Snapshot parser registered as a target backend
// ABOUTME: Loads records into an in-memory target and metadata provider

package dumpfile

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/clrlens/clrlens/dac"
	"github.com/clrlens/clrlens/target"
	"github.com/clrlens/clrlens/target/memtarget"
)

// Opener implements target.Opener for snapshot files.
type Opener struct{}

var _ target.Opener = (*Opener)(nil)

// CanOpen checks the magic header.
func (Opener) CanOpen(r io.Reader) bool {
	header := make([]byte, len(Magic))
	n, err := io.ReadFull(r, header)
	if err != nil || n < len(Magic) {
		return false
	}
	return string(header) == Magic
}

// Open parses a snapshot stream.
func (Opener) Open(r io.Reader) (target.Reader, interface{}, error) {
	t, p, err := Parse(r)
	if err != nil {
		return nil, nil, err
	}
	return t, p, nil
}

func init() {
	target.RegisterOpener(Opener{})
}

// Parse reads a full snapshot and returns the loaded target and
// metadata provider. The provider's revision follows the target's, so
// fixtures can simulate resumed execution by bumping the target.
func Parse(r io.Reader) (*memtarget.Target, *dac.MemProvider, error) {
	p := &parser{r: bufio.NewReaderSize(r, 1<<20)}
	if err := p.parse(); err != nil {
		return nil, nil, errors.Wrap(err, "parsing snapshot")
	}
	p.provider.SetRevisionSource(p.target.Revision)
	return p.target, p.provider, nil
}

type parser struct {
	r        *bufio.Reader
	target   *memtarget.Target
	provider *dac.MemProvider
}

func (p *parser) parse() error {
	header := make([]byte, len(Magic))
	if _, err := io.ReadFull(p.r, header); err != nil {
		return errors.Wrap(err, "reading header")
	}
	if string(header) != Magic {
		return errors.Errorf("invalid header: %q", header)
	}

	for {
		tag, err := p.readVarint()
		if err != nil {
			if err == io.EOF {
				return p.finish()
			}
			return errors.Wrap(err, "reading tag")
		}

		switch tag {
		case tagEOF:
			return p.finish()
		case tagParams:
			err = p.parseParams()
		case tagModule:
			err = p.parseModule()
		case tagRegion:
			err = p.parseRegion()
		case tagSegment:
			err = p.parseSegment()
		case tagType:
			err = p.parseType()
		case tagFields:
			err = p.parseFields()
		case tagRoot:
			err = p.parseRoot()
		default:
			// Unknown tags are fatal: there is no record framing to
			// skip over safely.
			return errors.Errorf("unknown record tag: %d", tag)
		}
		if err != nil {
			return errors.Wrapf(err, "parsing record tag %d", tag)
		}
	}
}

// finish validates that the mandatory params record arrived.
func (p *parser) finish() error {
	if p.target == nil {
		return errors.New("snapshot has no params record")
	}
	return nil
}

// ready reports whether records that need the params record may parse.
func (p *parser) ready() error {
	if p.target == nil {
		return errors.New("record before params record")
	}
	return nil
}

func (p *parser) readVarint() (uint64, error) {
	return binary.ReadUvarint(p.r)
}

func (p *parser) readString() (string, error) {
	n, err := p.readVarint()
	if err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", errors.Errorf("string too long: %d", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(p.r, data); err != nil {
		return "", err
	}
	return string(data), nil
}

func (p *parser) readBytes() ([]byte, error) {
	n, err := p.readVarint()
	if err != nil {
		return nil, err
	}
	if n > maxBlobLen {
		return nil, errors.Errorf("blob too long: %d", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(p.r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// readVarints fills dst from consecutive varints.
func (p *parser) readVarints(dst ...*uint64) error {
	for _, d := range dst {
		v, err := p.readVarint()
		if err != nil {
			return err
		}
		*d = v
	}
	return nil
}

func (p *parser) parseParams() error {
	arch, err := p.readString()
	if err != nil {
		return err
	}
	flavor, err := p.readVarint()
	if err != nil {
		return err
	}
	p.target = memtarget.New(target.Arch(arch))
	p.provider = dac.NewMemProvider(dac.Flavor(flavor))
	return nil
}

func (p *parser) parseModule() error {
	if err := p.ready(); err != nil {
		return err
	}
	path, err := p.readString()
	if err != nil {
		return err
	}
	var base, size uint64
	if err := p.readVarints(&base, &size); err != nil {
		return err
	}
	p.target.AddModule(target.Module{Path: path, Base: base, Size: size})
	return nil
}

func (p *parser) parseRegion() error {
	if err := p.ready(); err != nil {
		return err
	}
	base, err := p.readVarint()
	if err != nil {
		return err
	}
	data, err := p.readBytes()
	if err != nil {
		return err
	}
	p.target.AddRegion(base, data)
	return nil
}

func (p *parser) parseSegment() error {
	if err := p.ready(); err != nil {
		return err
	}
	var start, end, committed, reserved, gen0, gen1, flags, heapIndex uint64
	if err := p.readVarints(&start, &end, &committed, &reserved, &gen0, &gen1, &flags, &heapIndex); err != nil {
		return err
	}
	p.provider.AddSegment(dac.SegmentData{
		Start:     start,
		End:       end,
		Committed: committed,
		Reserved:  reserved,
		Gen0Start: gen0,
		Gen1Start: gen1,
		Ephemeral: flags&segFlagEphemeral != 0,
		Large:     flags&segFlagLarge != 0,
		HeapIndex: int(heapIndex),
	})
	return nil
}

func (p *parser) parseType() error {
	if err := p.ready(); err != nil {
		return err
	}
	mt, err := p.readVarint()
	if err != nil {
		return err
	}
	name, err := p.readString()
	if err != nil {
		return err
	}
	token, err := p.readVarint()
	if err != nil {
		return err
	}
	module, err := p.readString()
	if err != nil {
		return err
	}
	var baseSize, componentSize, flags uint64
	if err := p.readVarints(&baseSize, &componentSize, &flags); err != nil {
		return err
	}
	p.provider.AddType(&dac.TypeData{
		MethodTable:      mt,
		Name:             name,
		Token:            uint32(token),
		Module:           module,
		BaseSize:         baseSize,
		ComponentSize:    componentSize,
		IsArray:          flags&typeFlagArray != 0,
		IsString:         flags&typeFlagString != 0,
		ContainsPointers: flags&typeFlagContainsPointers != 0,
	})
	return nil
}

func (p *parser) parseFields() error {
	if err := p.ready(); err != nil {
		return err
	}
	var owner, count uint64
	if err := p.readVarints(&owner, &count); err != nil {
		return err
	}
	if count > maxStringLen {
		return errors.Errorf("field count too large: %d", count)
	}
	fields := make([]dac.FieldData, 0, count)
	for i := uint64(0); i < count; i++ {
		name, err := p.readString()
		if err != nil {
			return err
		}
		var offset, kind, fieldMT uint64
		if err := p.readVarints(&offset, &kind, &fieldMT); err != nil {
			return err
		}
		fields = append(fields, dac.FieldData{
			Name:             name,
			Offset:           offset,
			Kind:             uint8(kind),
			FieldMethodTable: fieldMT,
		})
	}
	p.provider.SetFields(owner, fields)
	return nil
}

func (p *parser) parseRoot() error {
	if err := p.ready(); err != nil {
		return err
	}
	kind, err := p.readVarint()
	if err != nil {
		return err
	}
	name, err := p.readString()
	if err != nil {
		return err
	}
	var addr, obj, flags uint64
	if err := p.readVarints(&addr, &obj, &flags); err != nil {
		return err
	}
	p.provider.AddRoot(dac.RootData{
		Kind:    uint8(kind),
		Name:    name,
		Address: addr,
		Object:  obj,
		Flags:   uint8(flags),
	})
	return nil
}

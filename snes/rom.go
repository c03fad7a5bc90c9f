package snes

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
	"strings"
)

// CopierHeaderSize is the size of the header some backup units prepend to dumps.
const CopierHeaderSize = 512

type ROM struct {
	Name     string
	Contents []byte // without any copier header

	CopierHeader    bool
	HiROM           bool
	HeaderOffset    uint32
	Header          Header
	NativeVectors   NativeVectors
	EmulatedVectors EmulatedVectors
}

// $FFB0
type Header struct {
	MakerCode          uint16
	GameCode           uint32
	Fixed1             [7]byte
	ExpansionRAMSize   byte
	SpecialVersion     byte
	CartridgeSubType   byte
	Title              [21]byte
	MapMode            byte
	CartridgeType      byte
	ROMSize            byte
	RAMSize            byte
	DestinationCode    byte
	Fixed2             byte
	MaskROMVersion     byte
	ComplementCheckSum uint16
	CheckSum           uint16
}

type NativeVectors struct {
	Unused1 [4]byte
	COP     uint16
	BRK     uint16
	ABORT   uint16
	NMI     uint16
	Unused2 uint16
	IRQ     uint16
}

type EmulatedVectors struct {
	Unused1 [4]byte
	COP     uint16
	Unused2 uint16
	ABORT   uint16
	NMI     uint16
	RESET   uint16
	IRQBRK  uint16
}

var RegionNames = map[byte]string{
	0x00: "Japan",
	0x01: "USA",
	0x02: "Europe",
	0x03: "Sweden",
	0x04: "Finland",
	0x05: "Denmark",
	0x06: "France",
	0x07: "Netherlands",
	0x08: "Spain",
	0x09: "Germany",
	0x0A: "Italy",
	0x0B: "China",
	0x0C: "Indonesia",
	0x0D: "Korea",
	0x0E: "International",
	0x0F: "Canada",
	0x10: "Brazil",
	0x11: "Australia",
}

// HasCopierHeader reports whether a dump of the given size carries a copier header.
func HasCopierHeader(size int64) bool {
	return size > CopierHeaderSize && size%1024 == CopierHeaderSize
}

// StripCopierHeader returns contents without a leading copier header, if present.
func StripCopierHeader(contents []byte) ([]byte, bool) {
	if HasCopierHeader(int64(len(contents))) {
		return contents[CopierHeaderSize:], true
	}
	return contents, false
}

func NewROM(name string, contents []byte) (r *ROM, err error) {
	contents, copier := StripCopierHeader(contents)
	if len(contents) < 0x8000 {
		return nil, fmt.Errorf("ROM file not big enough to contain SNES header")
	}

	r = &ROM{
		Name:         name,
		Contents:     contents,
		CopierHeader: copier,
		HeaderOffset: 0x007FB0,
	}
	// prefer the HiROM header location when its checksum pair is consistent and LoROM's is not:
	if len(contents) >= 0x10000 && !checksumPairValid(contents, 0x007FB0) && checksumPairValid(contents, 0x00FFB0) {
		r.HiROM = true
		r.HeaderOffset = 0x00FFB0
	}

	// Read SNES header:
	b := bytes.NewReader(contents[r.HeaderOffset : r.HeaderOffset+0x50])
	if err = readBinaryStruct(b, &r.Header); err != nil {
		return
	}
	if err = readBinaryStruct(b, &r.NativeVectors); err != nil {
		return
	}
	if err = readBinaryStruct(b, &r.EmulatedVectors); err != nil {
		return
	}

	return
}

func checksumPairValid(contents []byte, headerOffset uint32) bool {
	o := headerOffset + 0x2C
	complement := binary.LittleEndian.Uint16(contents[o:])
	checksum := binary.LittleEndian.Uint16(contents[o+2:])
	return complement^checksum == 0xFFFF
}

func readBinaryStruct(b *bytes.Reader, into interface{}) (err error) {
	hv := reflect.ValueOf(into).Elem()
	for i := 0; i < hv.NumField(); i++ {
		f := hv.Field(i)
		if !f.CanAddr() {
			panic(fmt.Errorf("error handling struct field %s of type %s; cannot take address of field", hv.Type().Field(i).Name, hv.Type().Name()))
		}

		err = binary.Read(b, binary.LittleEndian, f.Addr().Interface())
		if err != nil {
			return fmt.Errorf("error reading struct field %s of type %s: %w", hv.Type().Field(i).Name, hv.Type().Name(), err)
		}
	}
	return
}

// Title is the header title with padding removed.
func (r *ROM) Title() string {
	return strings.TrimRight(string(bytes.TrimRight(r.Header.Title[:], "\x00")), " ")
}

func (r *ROM) Region() string {
	return RegionNames[r.Header.DestinationCode]
}

func (r *ROM) Version() string {
	return fmt.Sprintf("1.%d", r.Header.MaskROMVersion)
}

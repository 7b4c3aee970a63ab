package container

import (
	"bytes"
	"encoding/binary"

	"github.com/jmallory/cloak/internal/carrier"
)

// Info is the container header metadata readable without the secret.
type Info struct {
	Family        carrier.Family
	Version       byte
	Type          PayloadType
	Compressed    bool
	Filename      string
	CiphertextLen int
}

// Inspect parses the container header through read without
// decrypting. The family is recognized from the magic itself.
func Inspect(read ReadFunc) (*Info, error) {
	head, err := read(fixedHeaderSize)
	if err != nil {
		return nil, ErrBadMagic
	}

	info := &Info{}
	for family, magic := range familyMagic {
		if bytes.Equal(head[:4], magic[:]) {
			info.Family = family
			break
		}
	}
	if info.Family == carrier.FamilyUnknown {
		return nil, ErrBadMagic
	}

	info.Version = head[4]
	if info.Version != version {
		return nil, ErrBadMagic
	}
	info.Type = PayloadType(head[5])
	if info.Type != TypeText && info.Type != TypeFile {
		return nil, ErrBadMagic
	}
	info.Compressed = head[6]&flagCompressed != 0

	nameLen := int(binary.BigEndian.Uint16(head[8:10]))
	if nameLen > maxFilename {
		return nil, ErrBadMagic
	}

	mid, err := read(nameLen + saltSize + 4)
	if err != nil {
		return nil, ErrTruncated
	}
	info.Filename = string(mid[:nameLen])
	info.CiphertextLen = int(binary.BigEndian.Uint32(mid[nameLen+saltSize:]))
	return info, nil
}

package container

import (
	"bytes"
	"encoding/binary"
)

// Layered-container sizes considered plausible. Anything smaller
// cannot hold a real container; anything larger than the cap is
// assumed to be ordinary extracted content.
const (
	minLayeredSize = 64
	maxLayeredSize = 256 << 20
)

// LooksLayered reports whether data plausibly wraps another container
// (a stego file embedded inside a stego file). The check is
// deliberately conservative and fails closed: it requires the family
// magic, a known version, a valid type tag AND internally consistent
// length fields all at once. A stray signature-like substring in
// ordinary extracted text must never trip it.
func LooksLayered(data []byte) bool {
	if len(data) < minLayeredSize || len(data) > maxLayeredSize {
		return false
	}

	match := false
	for _, magic := range familyMagic {
		if bytes.HasPrefix(data, magic[:]) {
			match = true
			break
		}
	}
	if !match {
		return false
	}

	if data[4] != version {
		return false
	}
	ptype := PayloadType(data[5])
	if ptype != TypeText && ptype != TypeFile {
		return false
	}

	nameLen := int(binary.BigEndian.Uint16(data[8:10]))
	if nameLen > maxFilename {
		return false
	}
	if ptype == TypeText && nameLen != 0 {
		return false
	}

	lengthOff := fixedHeaderSize + nameLen + saltSize
	if lengthOff+4 > len(data) {
		return false
	}
	length := int(binary.BigEndian.Uint32(data[lengthOff : lengthOff+4]))

	// The outer structure must be exactly one well-formed container:
	// header + ciphertext + digest, nothing dangling.
	return lengthOff+4+length+digestSize == len(data)
}

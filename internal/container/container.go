// Package container implements the self-describing payload container
// placed inside a carrier: magic, version, type tag, length, encrypted
// bytes and an integrity digest.
package container

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"

	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/credential"
)

// PayloadType tags what the container carries.
type PayloadType byte

const (
	TypeText PayloadType = 1
	TypeFile PayloadType = 2
)

const (
	version = 1

	flagCompressed = 1 << 0

	saltSize   = 16
	digestSize = sha256.Size

	// fixedHeaderSize covers magic(4) version(1) type(1) flags(1)
	// reserved(1) nameLen(2).
	fixedHeaderSize = 10

	// maxFilename bounds the embedded filename so a corrupt nameLen
	// cannot drag the decoder past the carrier.
	maxFilename = 255
)

// Family magics. The first byte is outside printable ASCII so plain
// text is never mistaken for a container; the last byte keeps a video
// container from being parsed by the image path and vice versa.
var familyMagic = map[carrier.Family][4]byte{
	carrier.FamilyImage:    {0xC1, 'L', 'K', 'I'},
	carrier.FamilyAudio:    {0xC1, 'L', 'K', 'A'},
	carrier.FamilyVideo:    {0xC1, 'L', 'K', 'V'},
	carrier.FamilyDocument: {0xC1, 'L', 'K', 'D'},
}

var (
	// ErrBadMagic means the bytes read are not a container for the
	// family being probed. Callers treat it as "nothing embedded".
	ErrBadMagic = errors.New("no container signature found")

	// ErrTruncated means a length field points past the available
	// bytes. The decoder must never read out of bounds.
	ErrTruncated = errors.New("container truncated")

	// ErrAuth means the structure parsed but decryption failed. A
	// wrong password and a corrupted carrier are indistinguishable
	// here, intentionally.
	ErrAuth = errors.New("wrong password or corrupted carrier")

	// ErrDigest means decryption succeeded but the plaintext digest
	// does not match what was embedded.
	ErrDigest = errors.New("payload digest mismatch")
)

// Payload is the decoded result of a container.
type Payload struct {
	Type     PayloadType
	Filename string
	Data     []byte
}

// Overhead returns the container byte count added around a payload of
// the given filename length. Used by the capacity estimators.
func Overhead(filenameLen int) int {
	const nonceSize = 12
	const gcmTag = 16
	return fixedHeaderSize + filenameLen + saltSize + 4 + nonceSize + gcmTag + digestSize
}

// Encode builds the flat container byte sequence for bit-level
// placement:
//
//	magic | version | type | flags | reserved | nameLen | name |
//	salt | length | ciphertext | digest
//
// Multi-byte fields are big-endian. The digest covers the original
// payload bytes so extraction can prove the password was right rather
// than merely that bits decoded.
func Encode(family carrier.Family, p Payload, secret credential.Secret, compress bool) ([]byte, error) {
	magic, ok := familyMagic[family]
	if !ok {
		return nil, fmt.Errorf("no container magic for family %s", family)
	}
	if p.Type == TypeFile && len(p.Filename) > maxFilename {
		return nil, fmt.Errorf("filename longer than %d bytes", maxFilename)
	}

	digest := sha256.Sum256(p.Data)

	plain := p.Data
	var flags byte
	if compress {
		packed, err := xzCompress(p.Data)
		if err != nil {
			return nil, err
		}
		// Keep the compressed form only when it actually shrinks;
		// the flag records which form went in.
		if len(packed) < len(plain) {
			plain = packed
			flags |= flagCompressed
		}
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	ciphertext, err := seal(plain, secret.Key(salt))
	if err != nil {
		return nil, err
	}

	name := []byte(nil)
	if p.Type == TypeFile {
		name = []byte(p.Filename)
	}

	buf := bytes.NewBuffer(make([]byte, 0, Overhead(len(name))+len(p.Data)))
	buf.Write(magic[:])
	buf.WriteByte(version)
	buf.WriteByte(byte(p.Type))
	buf.WriteByte(flags)
	buf.WriteByte(0)
	binary.Write(buf, binary.BigEndian, uint16(len(name)))
	buf.Write(name)
	buf.Write(salt)
	binary.Write(buf, binary.BigEndian, uint32(len(ciphertext)))
	buf.Write(ciphertext)
	buf.Write(digest[:])

	return buf.Bytes(), nil
}

// ReadFunc supplies the next n container bytes from the carrier.
// Engines hand the decoder a closure over their bit cursor so the
// decoder can stop exactly at the container boundary and never read
// past the carrier's capacity.
type ReadFunc func(n int) ([]byte, error)

// DecodeFrom parses a container incrementally through read. It fails
// with ErrBadMagic before touching anything beyond the fixed header,
// so probing a carrier with nothing embedded is cheap and clean.
func DecodeFrom(read ReadFunc, family carrier.Family, secret credential.Secret) (*Payload, error) {
	head, err := read(fixedHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	magic := familyMagic[family]
	if !bytes.Equal(head[:4], magic[:]) {
		return nil, ErrBadMagic
	}
	if head[4] != version {
		return nil, fmt.Errorf("%w: unknown container version %d", ErrBadMagic, head[4])
	}

	ptype := PayloadType(head[5])
	if ptype != TypeText && ptype != TypeFile {
		return nil, fmt.Errorf("%w: unknown payload type %d", ErrBadMagic, head[5])
	}
	flags := head[6]

	nameLen := int(binary.BigEndian.Uint16(head[8:10]))
	if nameLen > maxFilename {
		return nil, fmt.Errorf("%w: filename length %d", ErrTruncated, nameLen)
	}
	if ptype == TypeText && nameLen != 0 {
		return nil, fmt.Errorf("%w: text payload with filename", ErrBadMagic)
	}

	mid, err := read(nameLen + saltSize + 4)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	name := string(mid[:nameLen])
	salt := mid[nameLen : nameLen+saltSize]
	length := binary.BigEndian.Uint32(mid[nameLen+saltSize:])

	tail, err := read(int(length) + digestSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	ciphertext := tail[:length]
	digest := tail[length:]

	plain, err := open(ciphertext, secret.Key(salt))
	if err != nil {
		return nil, ErrAuth
	}

	if flags&flagCompressed != 0 {
		plain, err = xzDecompress(plain)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDigest, err)
		}
	}

	sum := sha256.Sum256(plain)
	if !bytes.Equal(sum[:], digest) {
		return nil, ErrDigest
	}

	return &Payload{Type: ptype, Filename: name, Data: plain}, nil
}

// Decode parses a container from a flat byte slice.
func Decode(raw []byte, family carrier.Family, secret credential.Secret) (*Payload, error) {
	off := 0
	return DecodeFrom(func(n int) ([]byte, error) {
		if off+n > len(raw) {
			return nil, io.ErrUnexpectedEOF
		}
		b := raw[off : off+n]
		off += n
		return b, nil
	}, family, secret)
}

func seal(plain, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func open(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func xzCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func xzDecompress(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

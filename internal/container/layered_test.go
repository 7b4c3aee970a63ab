package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmallory/cloak/internal/carrier"
	"github.com/jmallory/cloak/internal/credential"
)

func TestLooksLayeredOnRealContainer(t *testing.T) {
	inner, err := Encode(carrier.FamilyImage,
		Payload{Type: TypeText, Data: []byte("an inner message long enough to clear the floor")},
		credential.Normalize("inner"), false)
	require.NoError(t, err)

	assert.True(t, LooksLayered(inner))
}

func TestLooksLayeredRejectsOrdinaryText(t *testing.T) {
	cases := [][]byte{
		[]byte("just some extracted text, definitely nothing layered about it"),
		[]byte("a message that happens to contain the word type and a colon: type 2"),
		[]byte(""),
		[]byte("short"),
	}
	for _, data := range cases {
		assert.False(t, LooksLayered(data), "%q", data)
	}
}

func TestLooksLayeredRejectsMagicPrefixAlone(t *testing.T) {
	// The family magic followed by junk must not pass: the structural
	// fields have to be internally consistent too.
	data := append([]byte{0xC1, 'L', 'K', 'I'}, make([]byte, 100)...)
	assert.False(t, LooksLayered(data))
}

func TestLooksLayeredRejectsDanglingBytes(t *testing.T) {
	inner, err := Encode(carrier.FamilyImage,
		Payload{Type: TypeText, Data: []byte("padding sensitivity check payload body")},
		credential.Normalize(""), false)
	require.NoError(t, err)

	assert.False(t, LooksLayered(append(inner, 0x00)))
	assert.False(t, LooksLayered(inner[:len(inner)-1]))
}

func TestLooksLayeredRejectsTooSmall(t *testing.T) {
	data := []byte{0xC1, 'L', 'K', 'I', 1, 1, 0, 0, 0, 0}
	assert.False(t, LooksLayered(data))
}

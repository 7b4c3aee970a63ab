package container

import (
	"encoding/binary"
	"errors"

	"github.com/klauspost/reedsolomon"
)

// Reed-Solomon shard layout for the armored form: four data shards,
// two parity shards. The armor protects containers travelling through
// the video direct path, where single-frame damage is survivable.
const (
	rsDataShards   = 4
	rsParityShards = 2
)

// Armor wraps container bytes in Reed-Solomon shards with a length
// prefix so padding can be stripped on the way back out.
func Armor(data []byte) ([]byte, error) {
	enc, err := reedsolomon.New(rsDataShards, rsParityShards)
	if err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))
	payload := append(header, data...)

	shards, err := enc.Split(payload)
	if err != nil {
		return nil, err
	}
	if err := enc.Encode(shards); err != nil {
		return nil, err
	}

	var out []byte
	for _, shard := range shards {
		out = append(out, shard...)
	}
	return out, nil
}

// Unarmor verifies the shards, reconstructing from parity when
// needed, and returns the original container bytes.
func Unarmor(data []byte) ([]byte, error) {
	enc, err := reedsolomon.New(rsDataShards, rsParityShards)
	if err != nil {
		return nil, err
	}

	shards, err := enc.Split(data)
	if err != nil {
		return nil, err
	}
	if ok, _ := enc.Verify(shards); !ok {
		if err := enc.Reconstruct(shards); err != nil {
			return nil, err
		}
	}

	var joined []byte
	for i := 0; i < rsDataShards; i++ {
		joined = append(joined, shards[i]...)
	}

	if len(joined) < 4 {
		return nil, errors.New("recovered data too short")
	}
	length := binary.BigEndian.Uint32(joined[:4])
	if uint32(len(joined)-4) < length {
		return nil, errors.New("recovered data length mismatch")
	}
	return joined[4 : 4+length], nil
}

// ArmorOverhead returns the armored size for a container of n bytes:
// length prefix, shard padding and parity expansion.
func ArmorOverhead(n int) int {
	perShard := (n + 4 + rsDataShards - 1) / rsDataShards
	return perShard * (rsDataShards + rsParityShards)
}

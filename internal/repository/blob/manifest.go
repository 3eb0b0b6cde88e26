package blob

import (
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"vaultgc/internal/repository/ids"
)

// manifest is the on-the-wire shape of an archive: an ordered chunk list
// plus creator and creation-instant metadata. Encoded with msgpack and
// compressed with zstd before upload to keep archive objects small.
type manifest struct {
	Creator ids.ClientID    `msgpack:"creator"`
	Created time.Time       `msgpack:"created"`
	Chunks  []ids.ChunkID   `msgpack:"chunks"`
}

func encodeManifest(m manifest) ([]byte, error) {
	raw, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()

	return enc.EncodeAll(raw, nil), nil
}

func decodeManifest(data []byte) (manifest, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return manifest{}, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return manifest{}, fmt.Errorf("decompress manifest: %w", err)
	}

	var m manifest
	if err := msgpack.Unmarshal(raw, &m); err != nil {
		return manifest{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return m, nil
}

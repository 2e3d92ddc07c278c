package frame

import (
	"bytes"
	"io"
	"sync"

	"github.com/gobwas/ws/wsflate"
	"github.com/klauspost/compress/flate"
)

const compressionThreshold = 256 // only compress frames larger than this

// DeflateParameters are offered during the handshake. No context takeover on
// either side keeps every message independently (de)compressible.
var DeflateParameters = wsflate.Parameters{
	ServerNoContextTakeover: true,
	ClientNoContextTakeover: true,
}

var (
	// syncTail ends every flushed deflate block; permessage-deflate strips it.
	syncTail = []byte{0x00, 0x00, 0xff, 0xff}

	// readTail restores syncTail and appends an empty final block so the
	// inflater sees a complete stream.
	readTail = []byte{0x00, 0x00, 0xff, 0xff, 0x01, 0x00, 0x00, 0xff, 0xff}
)

var writerPool = sync.Pool{
	New: func() any {
		fw, _ := flate.NewWriter(nil, flate.BestSpeed)
		return fw
	},
}

// Compress deflates an encoded frame if it exceeds the threshold.
// Returns (compressed data, true) if compression helped, or (original, false).
func Compress(data []byte) ([]byte, bool) {
	if len(data) <= compressionThreshold {
		return data, false
	}

	var buf bytes.Buffer
	fw := writerPool.Get().(*flate.Writer)
	defer writerPool.Put(fw)
	fw.Reset(&buf)

	// Flush, never Close: a final block would break the message framing.
	if _, err := fw.Write(data); err != nil {
		return data, false
	}
	if err := fw.Flush(); err != nil {
		return data, false
	}

	out := buf.Bytes()
	if !bytes.HasSuffix(out, syncTail) {
		return data, false
	}
	out = out[:len(out)-len(syncTail)]
	if len(out) >= len(data) {
		return data, false
	}
	return out, true
}

// Decompress inflates a permessage-deflate message body. Output larger than
// MaxFrameLen is ErrFrameTooLarge.
func Decompress(data []byte) ([]byte, error) {
	fr := flate.NewReader(io.MultiReader(bytes.NewReader(data), bytes.NewReader(readTail)))
	defer fr.Close()

	out, err := io.ReadAll(io.LimitReader(fr, MaxFrameLen+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxFrameLen {
		return nil, ErrFrameTooLarge
	}
	return out, nil
}

package internal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// WebP is a RIFF container. Metadata lives in dedicated chunks (ICCP, EXIF,
// XMP) whose presence must be announced by flag bits in a VP8X header chunk.
// The pixel encoder only emits the image chunks, so embedding metadata means
// rewriting the container at chunk level.

const (
	fourCCVP8X  = "VP8X"
	fourCCICCP  = "ICCP"
	fourCCEXIF  = "EXIF"
	fourCCXMP   = "XMP "
	fourCCAlpha = "ALPH"
)

const (
	vp8xFlagICC   = 0x20
	vp8xFlagAlpha = 0x10
	vp8xFlagEXIF  = 0x08
	vp8xFlagXMP   = 0x04
)

type riffChunk struct {
	fourCC string
	data   []byte
}

var errNotWebP = errors.New("not a webp file")

// parseWebPChunks splits a WebP file into its chunks.
func parseWebPChunks(data []byte) ([]riffChunk, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil, errNotWebP
	}

	var chunks []riffChunk
	off := 12
	for off+8 <= len(data) {
		fourCC := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8
		if off+size > len(data) {
			return nil, fmt.Errorf("truncated %q chunk", fourCC)
		}
		chunks = append(chunks, riffChunk{fourCC: fourCC, data: data[off : off+size]})
		off += size
		if size%2 == 1 {
			off++ // chunks are padded to even sizes
		}
	}
	return chunks, nil
}

// writeWebPChunks assembles chunks back into a WebP file.
func writeWebPChunks(chunks []riffChunk) []byte {
	var body bytes.Buffer
	body.WriteString("WEBP")
	for _, c := range chunks {
		body.WriteString(c.fourCC)
		var sz [4]byte
		binary.LittleEndian.PutUint32(sz[:], uint32(len(c.data)))
		body.Write(sz[:])
		body.Write(c.data)
		if len(c.data)%2 == 1 {
			body.WriteByte(0)
		}
	}

	out := make([]byte, 0, body.Len()+8)
	out = append(out, "RIFF"...)
	var sz [4]byte
	binary.LittleEndian.PutUint32(sz[:], uint32(body.Len()))
	out = append(out, sz[:]...)
	return append(out, body.Bytes()...)
}

func newVP8XChunk(flags byte, width, height int) riffChunk {
	data := make([]byte, 10)
	data[0] = flags
	putUint24(data[4:7], uint32(width-1))
	putUint24(data[7:10], uint32(height-1))
	return riffChunk{fourCC: fourCCVP8X, data: data}
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// EmbedWebPMetadata inserts ICC, EXIF and XMP chunks into an encoded WebP
// file. width and height describe the canvas, needed when a VP8X header has
// to be synthesized. Empty blobs are skipped; with nothing to embed the input
// is returned unchanged.
func EmbedWebPMetadata(encoded []byte, icc, exifData, xmp []byte, width, height int) ([]byte, error) {
	if len(icc) == 0 && len(exifData) == 0 && len(xmp) == 0 {
		return encoded, nil
	}

	chunks, err := parseWebPChunks(encoded)
	if err != nil {
		return nil, err
	}

	var flags byte
	var body []riffChunk
	for _, c := range chunks {
		switch c.fourCC {
		case fourCCVP8X:
			if len(c.data) > 0 {
				flags |= c.data[0] // keep alpha/animation bits
			}
		case fourCCICCP, fourCCEXIF, fourCCXMP:
			// re-encoded below from the extracted metadata
		default:
			if c.fourCC == fourCCAlpha {
				flags |= vp8xFlagAlpha
			}
			body = append(body, c)
		}
	}

	if len(icc) > 0 {
		flags |= vp8xFlagICC
	}
	if len(exifData) > 0 {
		flags |= vp8xFlagEXIF
	}
	if len(xmp) > 0 {
		flags |= vp8xFlagXMP
	}

	out := []riffChunk{newVP8XChunk(flags, width, height)}
	if len(icc) > 0 {
		out = append(out, riffChunk{fourCC: fourCCICCP, data: icc})
	}
	out = append(out, body...)
	if len(exifData) > 0 {
		out = append(out, riffChunk{fourCC: fourCCEXIF, data: exifData})
	}
	if len(xmp) > 0 {
		out = append(out, riffChunk{fourCC: fourCCXMP, data: xmp})
	}

	return writeWebPChunks(out), nil
}

// ReadWebPMetadata pulls the ICC, EXIF and XMP chunk payloads out of a WebP
// file. Absent chunks come back nil.
func ReadWebPMetadata(data []byte) (icc, exifData, xmp []byte, err error) {
	chunks, err := parseWebPChunks(data)
	if err != nil {
		return nil, nil, nil, err
	}

	for _, c := range chunks {
		switch c.fourCC {
		case fourCCICCP:
			icc = bytes.Clone(c.data)
		case fourCCEXIF:
			// Some writers prefix the chunk with the JPEG-style EXIF header.
			exifData = bytes.Clone(bytes.TrimPrefix(c.data, []byte("Exif\x00\x00")))
		case fourCCXMP:
			xmp = bytes.Clone(c.data)
		}
	}
	return icc, exifData, xmp, nil
}

package media

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
)

// wavFormat mirrors the fixed part of a WAVE fmt chunk.
type wavFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

var wavFormatNames = map[uint16]string{
	1:      "PCM",
	3:      "IEEE Float",
	6:      "A-law",
	7:      "Mu-law",
	0xFFFE: "Extensible",
}

// analyzeRIFF walks a RIFF container: full format parse for WAVE audio,
// stream detection for AVI.
func analyzeRIFF(res *analyze.Result, f *os.File) {
	if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
		res.SetError(fmt.Sprintf("seek media file: %v", seekErr))

		return
	}

	header := make([]byte, 12)
	if _, readErr := io.ReadFull(f, header); readErr != nil {
		res.SetError(fmt.Sprintf("read riff header: %v", readErr))

		return
	}

	if !bytes.Equal(header[:4], []byte("RIFF")) {
		res.SetError("not a RIFF container")

		return
	}

	res.Metadata["riff_size"] = binary.LittleEndian.Uint32(header[4:8])

	switch {
	case bytes.Equal(header[8:12], []byte("WAVE")):
		res.Metadata["container"] = "WAVE"
		analyzeWAVChunks(res, f)
	case bytes.Equal(header[8:12], []byte("AVI ")):
		res.Metadata["container"] = "AVI"
		analyzeAVIStreams(res, f)
	default:
		res.Metadata["container"] = fmt.Sprintf("RIFF (%s)", header[8:12])
	}
}

func analyzeWAVChunks(res *analyze.Result, f *os.File) {
	var (
		format    wavFormat
		fmtFound  bool
		dataBytes uint32
	)

	chunkHeader := make([]byte, 8)

	for {
		if _, readErr := io.ReadFull(f, chunkHeader); readErr != nil {
			break
		}

		chunkID := string(chunkHeader[:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			if parseErr := binary.Read(f, binary.LittleEndian, &format); parseErr != nil {
				res.SetError(fmt.Sprintf("parse wav format chunk: %v", parseErr))

				return
			}

			fmtFound = true

			if remaining := int64(chunkSize) - 16; remaining > 0 {
				if _, seekErr := f.Seek(remaining, io.SeekCurrent); seekErr != nil {
					break
				}
			}
		case "data":
			dataBytes = chunkSize

			if _, seekErr := f.Seek(paddedSize(chunkSize), io.SeekCurrent); seekErr != nil {
				break
			}
		default:
			if _, seekErr := f.Seek(paddedSize(chunkSize), io.SeekCurrent); seekErr != nil {
				break
			}
		}
	}

	if !fmtFound {
		res.SetError("wav file has no format chunk")

		return
	}

	res.Metadata["audio_format"] = wavFormatName(format.AudioFormat)
	res.Metadata["channels"] = int(format.Channels)
	res.Metadata["sample_rate"] = int(format.SampleRate)
	res.Metadata["bits_per_sample"] = int(format.BitsPerSample)
	res.Metadata["data_bytes"] = dataBytes

	if format.ByteRate > 0 && dataBytes > 0 {
		res.Metadata["duration_seconds"] = round2(float64(dataBytes) / float64(format.ByteRate))
	}
}

// analyzeAVIStreams scans the header region for stream type markers
// instead of walking the nested LIST tree.
func analyzeAVIStreams(res *analyze.Result, f *os.File) {
	head := make([]byte, 4096)

	n, readErr := f.Read(head)
	if readErr != nil && n == 0 {
		return
	}

	head = head[:n]
	res.Metadata["has_video"] = bytes.Contains(head, []byte("vids"))
	res.Metadata["has_audio"] = bytes.Contains(head, []byte("auds"))
}

func wavFormatName(code uint16) string {
	if name, known := wavFormatNames[code]; known {
		return name
	}

	return fmt.Sprintf("unknown (0x%04X)", code)
}

func paddedSize(size uint32) int64 {
	return int64(size) + int64(size&1)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

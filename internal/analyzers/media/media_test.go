package media_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensiq/filescope/internal/analyzers/media"
)

// writeWAV builds one second of 16-bit stereo PCM header with an empty
// payload claim of the right size.
func writeWAV(t *testing.T, dir string) string {
	t.Helper()

	var buf bytes.Buffer

	dataSize := uint32(176400)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))      // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(2))      // channels
	binary.Write(&buf, binary.LittleEndian, uint32(44100))  // sample rate
	binary.Write(&buf, binary.LittleEndian, uint32(176400)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(4))      // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))     // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)

	path := filepath.Join(dir, "recording.wav")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	return path
}

// writeID3MP3 builds an ID3v2.3 header carrying a single TIT2 frame.
func writeID3MP3(t *testing.T, dir string) string {
	t.Helper()

	title := "Test Title"
	frameBody := append([]byte{0x00}, []byte(title)...)

	var frame bytes.Buffer

	frame.WriteString("TIT2")
	binary.Write(&frame, binary.BigEndian, uint32(len(frameBody)))
	frame.Write([]byte{0x00, 0x00})
	frame.Write(frameBody)

	body := frame.Bytes()

	var buf bytes.Buffer

	buf.WriteString("ID3")
	buf.Write([]byte{0x03, 0x00, 0x00})
	buf.Write(syncSafe(len(body)))
	buf.Write(body)

	path := filepath.Join(dir, "track.mp3")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	return path
}

// syncSafe encodes a length as four 7-bit bytes.
func syncSafe(n int) []byte {
	return []byte{
		byte(n >> 21 & 0x7F),
		byte(n >> 14 & 0x7F),
		byte(n >> 7 & 0x7F),
		byte(n & 0x7F),
	}
}

func TestAnalyzer_Identity(t *testing.T) {
	t.Parallel()

	a := media.New()

	assert.Equal(t, "media", a.Name())
	assert.True(t, a.CanAnalyze("Clip.MP4"))
	assert.False(t, a.CanAnalyze("notes.txt"))
}

func TestAnalyze_WAVFormat(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, t.TempDir())

	res := media.New().Analyze(context.Background(), path)

	require.True(t, res.Success, "error: %s", res.ErrorMessage)
	assert.Equal(t, "WAVE", res.Metadata["container"])
	assert.Equal(t, "PCM", res.Metadata["audio_format"])
	assert.Equal(t, 2, res.Metadata["channels"])
	assert.Equal(t, 44100, res.Metadata["sample_rate"])
	assert.Equal(t, 16, res.Metadata["bits_per_sample"])
	assert.InDelta(t, 1.0, res.Metadata["duration_seconds"], 0.001)
}

func TestAnalyze_WAVTruncatedHeaderFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIF"), 0o644))

	res := media.New().Analyze(context.Background(), path)

	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "read riff header")
}

func TestAnalyze_ID3Tags(t *testing.T) {
	t.Parallel()

	path := writeID3MP3(t, t.TempDir())

	res := media.New().Analyze(context.Background(), path)

	require.True(t, res.Success, "error: %s", res.ErrorMessage)
	assert.Equal(t, true, res.Metadata["has_tags"])
	assert.Equal(t, "Test Title", res.Metadata["title"])
	assert.Contains(t, res.Metadata["format"], "ID3v2")
	assert.Equal(t, false, res.Metadata["has_artwork"])
}

func TestAnalyze_UntaggedMP3(t *testing.T) {
	t.Parallel()

	// Big enough for the trailing ID3v1 probe to seek backwards.
	path := filepath.Join(t.TempDir(), "raw.mp3")
	payload := append([]byte{0xFF, 0xFB, 0x90, 0x00}, make([]byte, 196)...)
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	res := media.New().Analyze(context.Background(), path)

	require.True(t, res.Success, "error: %s", res.ErrorMessage)
	assert.Equal(t, false, res.Metadata["has_tags"])
}

func TestAnalyze_MatroskaDoctype(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	mkv := filepath.Join(dir, "capture.mkv")
	content := append([]byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}, []byte("B\x82\x88matroska")...)
	require.NoError(t, os.WriteFile(mkv, content, 0o644))

	res := media.New().Analyze(context.Background(), mkv)

	require.True(t, res.Success)
	assert.Equal(t, "EBML (Matroska)", res.Metadata["container"])
	assert.Equal(t, "matroska", res.Metadata["doctype"])
}

func TestAnalyze_AVIStreams(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(2048))
	buf.WriteString("AVI ")
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(512))
	buf.WriteString("hdrlavih")
	buf.WriteString("strlvids")

	path := filepath.Join(t.TempDir(), "clip.avi")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	res := media.New().Analyze(context.Background(), path)

	require.True(t, res.Success)
	assert.Equal(t, "AVI", res.Metadata["container"])
	assert.Equal(t, true, res.Metadata["has_video"])
	assert.Equal(t, false, res.Metadata["has_audio"])
}

func TestAnalyze_BareFTYPBrand(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	binary.Write(&buf, binary.BigEndian, uint32(16))
	buf.WriteString("ftyp")
	buf.WriteString("isom")
	binary.Write(&buf, binary.BigEndian, uint32(512))

	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	res := media.New().Analyze(context.Background(), path)

	require.True(t, res.Success, "error: %s", res.ErrorMessage)
	assert.Equal(t, "ISO Base Media", res.Metadata["container"])
	assert.Equal(t, "isom", res.Metadata["major_brand"])
}

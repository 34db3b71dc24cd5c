package media

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
)

var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// analyzeEBML detects Matroska-family containers and their doctype. The
// doctype string sits in the small EBML header, so a prefix scan finds it
// without a full element parse.
func analyzeEBML(res *analyze.Result, f *os.File) {
	if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
		res.SetError(fmt.Sprintf("seek media file: %v", seekErr))

		return
	}

	head := make([]byte, 128)

	n, readErr := f.Read(head)
	if readErr != nil && n == 0 {
		res.SetError(fmt.Sprintf("read ebml header: %v", readErr))

		return
	}

	head = head[:n]

	if !bytes.HasPrefix(head, ebmlMagic) {
		res.SetError("not an EBML container")

		return
	}

	res.Metadata["container"] = "EBML (Matroska)"

	switch {
	case bytes.Contains(head, []byte("webm")):
		res.Metadata["doctype"] = "webm"
	case bytes.Contains(head, []byte("matroska")):
		res.Metadata["doctype"] = "matroska"
	}
}

// analyzeFTYP reads the ISO base media file brand; the fallback for MP4
// containers without tag atoms.
func analyzeFTYP(res *analyze.Result, f *os.File) {
	if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
		res.SetError(fmt.Sprintf("seek media file: %v", seekErr))

		return
	}

	header := make([]byte, 12)
	if _, readErr := io.ReadFull(f, header); readErr != nil {
		res.SetError(fmt.Sprintf("read mp4 header: %v", readErr))

		return
	}

	if !bytes.Equal(header[4:8], []byte("ftyp")) {
		res.SetError("no ftyp box at file start")

		return
	}

	res.Metadata["container"] = "ISO Base Media"
	res.Metadata["major_brand"] = string(bytes.TrimSpace(header[8:12]))
	res.Metadata["has_tags"] = false
}

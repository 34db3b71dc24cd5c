package security

import (
	"math"
	"os"
)

const (
	// suspiciousEntropy is the bits-per-byte threshold above which content
	// looks packed or encrypted.
	suspiciousEntropy = 7.0

	sectionSize = 512

	// minSectionedSize is the smallest file that yields three disjoint
	// entropy sections.
	minSectionedSize = 3 * sectionSize
)

// shannonEntropy returns the byte-distribution entropy in bits per byte,
// between 0 (uniform content) and 8 (every byte value equally likely).
func shannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	var counts [256]int
	for _, b := range data {
		counts[b]++
	}

	total := float64(len(data))
	entropy := 0.0

	for _, c := range counts {
		if c == 0 {
			continue
		}

		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}

	return entropy
}

// sectionEntropies samples the start, middle, and end of the file so packed
// payloads hiding behind a low-entropy header still register.
func sectionEntropies(f *os.File, size int64) (map[string]float64, error) {
	offsets := map[string]int64{
		"start":  0,
		"middle": size/2 - sectionSize/2,
		"end":    size - sectionSize,
	}

	sections := make(map[string]float64, len(offsets))
	buf := make([]byte, sectionSize)

	for name, off := range offsets {
		n, readErr := f.ReadAt(buf, off)
		if readErr != nil {
			return nil, readErr
		}

		sections[name] = round3(shannonEntropy(buf[:n]))
	}

	return sections, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

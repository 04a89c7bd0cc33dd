package feed

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
)

// zipMagic is the local file header signature of a zip archive. The looser
// two-byte "PK" prefix is accepted when gating fetch attempts, since some
// relays truncate or re-wrap responses.
var zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}

func looksLikeArchive(payload []byte) bool {
	return len(payload) >= 2 && payload[0] == 'P' && payload[1] == 'K'
}

// ExtractMarkup validates the payload as a zip archive and returns the raw
// bytes of the first non-directory entry named with an .xml extension.
func ExtractMarkup(payload []byte) ([]byte, error) {
	if !bytes.HasPrefix(payload, zipMagic) {
		return nil, &FormatError{Reason: "not an archive"}
	}

	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, &FormatError{Reason: "corrupt archive", Err: err}
	}

	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(entry.Name), ".xml") {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return nil, &FormatError{Reason: "open archive entry " + entry.Name, Err: err}
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, &FormatError{Reason: "read archive entry " + entry.Name, Err: err}
		}
		return raw, nil
	}

	return nil, &FormatError{Reason: "no markup entry"}
}

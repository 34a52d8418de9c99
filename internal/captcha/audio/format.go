package audio

import (
	"bytes"
	"path"
	"strings"
)

// Format is the recognized audio container, detected from the URL extension,
// or from magic bytes when the extension is not recognized (spec section 4.7
// step 2).
type Format string

const (
	FormatMP3     Format = "mp3"
	FormatWAV     Format = "wav"
	FormatOGG     Format = "ogg"
	FormatUnknown Format = "unknown"
)

// DetectFormat tries the URL extension first, then falls back to magic-byte
// sniffing when the extension is absent or ambiguous.
func DetectFormat(sourceURL string, data []byte) Format {
	if f := formatFromExtension(sourceURL); f != FormatUnknown {
		return f
	}
	return formatFromMagicBytes(data)
}

func formatFromExtension(sourceURL string) Format {
	ext := strings.ToLower(path.Ext(strings.SplitN(sourceURL, "?", 2)[0]))
	switch ext {
	case ".mp3":
		return FormatMP3
	case ".wav":
		return FormatWAV
	case ".ogg":
		return FormatOGG
	default:
		return FormatUnknown
	}
}

func formatFromMagicBytes(data []byte) Format {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && (data[1]&0xE0) == 0xE0:
		return FormatMP3 // MPEG sync word
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("RIFF")):
		return FormatWAV
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("OggS")):
		return FormatOGG
	default:
		return FormatUnknown
	}
}

// RequiresFileBasedProcessing reports whether format needs a persisted temp
// file before preprocessing/transcription (spec 4.7 step 3: "anything not
// already WAV").
func RequiresFileBasedProcessing(f Format) bool {
	return f != FormatWAV
}

// Extension returns the canonical file extension (including the leading dot)
// for f, used when naming temp files.
func Extension(f Format) string {
	switch f {
	case FormatMP3:
		return ".mp3"
	case FormatWAV:
		return ".wav"
	case FormatOGG:
		return ".ogg"
	default:
		return ".bin"
	}
}

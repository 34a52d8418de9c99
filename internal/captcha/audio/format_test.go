package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectFormatPrefersExtension(t *testing.T) {
	require.Equal(t, FormatMP3, DetectFormat("https://example.com/audio.mp3?x=1", []byte("RIFF....")))
	require.Equal(t, FormatWAV, DetectFormat("https://example.com/audio.wav", nil))
	require.Equal(t, FormatOGG, DetectFormat("https://example.com/audio.ogg", nil))
}

func TestDetectFormatFallsBackToMagicBytes(t *testing.T) {
	require.Equal(t, FormatMP3, DetectFormat("blob:abcd", []byte("ID3\x03\x00")))
	require.Equal(t, FormatWAV, DetectFormat("blob:abcd", []byte("RIFF1234WAVEfmt ")))
	require.Equal(t, FormatOGG, DetectFormat("blob:abcd", []byte("OggS\x00")))
	require.Equal(t, FormatUnknown, DetectFormat("blob:abcd", []byte("????")))
}

func TestRequiresFileBasedProcessingExceptWAV(t *testing.T) {
	require.True(t, RequiresFileBasedProcessing(FormatMP3))
	require.True(t, RequiresFileBasedProcessing(FormatOGG))
	require.False(t, RequiresFileBasedProcessing(FormatWAV))
}

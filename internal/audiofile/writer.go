package audiofile

import (
	"encoding/binary"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WritePCM16 encodes little-endian 16-bit mono/stereo PCM into a WAV file at
// path. The capture pipeline uses it to turn the buffered microphone stream
// into the audio reference handed to the transcription engines.
func WritePCM16(path string, pcm []byte, sampleRate int, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm byte length %d is not 16-bit aligned", len(pcm))
	}
	if channels <= 0 {
		channels = 1
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create wav %q: %w", path, err)
	}
	defer file.Close()

	const bitDepth = 16
	encoder := wav.NewEncoder(file, sampleRate, bitDepth, channels, 1)

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	if err := encoder.Write(buffer); err != nil {
		return fmt.Errorf("encode wav %q: %w", path, err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finalize wav %q: %w", path, err)
	}
	return nil
}

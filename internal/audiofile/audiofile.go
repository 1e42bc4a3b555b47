// Package audiofile validates imported audio before it enters the
// transcription pipeline and probes WAV metadata for request annotation.
package audiofile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

// supportedExtensions is what both transcription engines accept.
var supportedExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".ogg":  true,
	".flac": true,
	".m4a":  true,
	".webm": true,
}

// Info describes a validated audio file. Duration and SampleRate are only
// populated for WAV input; other containers are validated but not probed.
type Info struct {
	Path       string
	SizeBytes  int64
	Duration   time.Duration
	SampleRate int
}

// Validate checks that path names a readable, non-empty audio file with a
// supported extension, probing WAV metadata when possible.
func Validate(path string) (Info, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return Info{}, fmt.Errorf("unsupported audio extension %q (supported: %s)", ext, supportedList())
	}

	stat, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("audio file: %w", err)
	}
	if stat.IsDir() {
		return Info{}, fmt.Errorf("audio file %q is a directory", path)
	}
	if stat.Size() == 0 {
		return Info{}, fmt.Errorf("audio file %q is empty", path)
	}

	info := Info{Path: path, SizeBytes: stat.Size()}
	if ext == ".wav" {
		duration, sampleRate, err := probeWAV(path)
		if err != nil {
			return Info{}, err
		}
		info.Duration = duration
		info.SampleRate = sampleRate
	}
	return info, nil
}

// probeWAV decodes just enough of the container to report duration and rate.
func probeWAV(path string) (time.Duration, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open wav: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return 0, 0, fmt.Errorf("%q is not a valid wav file", path)
	}

	duration, err := decoder.Duration()
	if err != nil {
		return 0, 0, fmt.Errorf("wav duration: %w", err)
	}
	return duration, int(decoder.SampleRate), nil
}

func supportedList() string {
	exts := make([]string, 0, len(supportedExtensions))
	for ext := range supportedExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ", ")
}

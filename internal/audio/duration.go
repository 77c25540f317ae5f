// Package audio derives metadata from encoded audio.
package audio

import (
	"bytes"
	"errors"
	"fmt"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// The decoder emits 16-bit stereo PCM regardless of the source channel count.
const bytesPerFrame = 4

// MP3DurationSeconds computes the playback duration of an MP3 payload.
func MP3DurationSeconds(data []byte) (float64, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode mp3: %w", err)
	}
	if dec.SampleRate() <= 0 {
		return 0, errors.New("mp3 reports no sample rate")
	}
	frames := dec.Length() / bytesPerFrame
	return float64(frames) / float64(dec.SampleRate()), nil
}

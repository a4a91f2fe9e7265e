package samples

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"
)

// resampleQuality is the beep resampler quality (1 fast .. 6 best).
const resampleQuality = 4

// maxSampleDuration bounds decoded one-shots.
const maxSampleDuration = 30 * time.Second

// Format is a supported container.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// DetectFormat guesses the container from the URI extension and, failing
// that, from the leading bytes of r.
func DetectFormat(uri string, r *bufio.Reader) (Format, error) {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	switch strings.ToLower(path.Ext(uri)) {
	case ".wav", ".wave":
		return FormatWAV, nil
	case ".mp3":
		return FormatMP3, nil
	}

	head, _ := r.Peek(4)
	switch {
	case bytes.HasPrefix(head, []byte("RIFF")):
		return FormatWAV, nil
	case bytes.HasPrefix(head, []byte("ID3")),
		len(head) >= 2 && head[0] == 0xff && head[1]&0xe0 == 0xe0:
		return FormatMP3, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, uri)
}

// Decode decodes a WAV or MP3 stream into a mono buffer at sampleRate.
func Decode(uri string, rc io.ReadCloser, sampleRate float64) ([]float64, error) {
	br := bufio.NewReader(rc)
	format, err := DetectFormat(uri, br)
	if err != nil {
		rc.Close()
		return nil, err
	}

	var (
		stream beep.StreamSeekCloser
		bf     beep.Format
	)
	switch format {
	case FormatWAV:
		stream, bf, err = wav.Decode(br)
	case FormatMP3:
		stream, bf, err = mp3.Decode(readCloser{Reader: br, Closer: rc})
	}
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("samples: decode %s: %w", uri, err)
	}
	defer stream.Close()
	if format == FormatWAV {
		// The wav decoder only sees the bufio reader, so it cannot close rc.
		defer rc.Close()
	}

	target := beep.SampleRate(int(sampleRate))
	var src beep.Streamer = stream
	if bf.SampleRate != target {
		src = beep.Resample(resampleQuality, bf.SampleRate, target, stream)
	}

	data, err := readMono(src, target.N(maxSampleDuration))
	if err != nil {
		return nil, fmt.Errorf("samples: decode %s: %w", uri, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("samples: %s: %w", uri, ErrEmpty)
	}
	return data, nil
}

// readMono drains s into a mono slice of at most limit frames.
func readMono(s beep.Streamer, limit int) ([]float64, error) {
	var (
		out []float64
		buf = make([][2]float64, 512)
	)
	for len(out) < limit {
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			out = append(out, (frame[0]+frame[1])/2)
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out[:min(len(out), limit)], nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

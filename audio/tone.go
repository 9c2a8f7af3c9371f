package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	cfg "github.com/vidhhya1/Conversational-Emotion-Recognizer/config"
)

// ToneAnalyzer estimates the average fundamental frequency of an utterance
// from the dominant frequency of each analysis frame.
type ToneAnalyzer struct {
	sampleRate   int
	silenceFloor float64
	minPitchHz   float64
	frameSize    int
	hopSize      int
	log          logrus.FieldLogger
}

func NewToneAnalyzer(c cfg.Audio, log logrus.FieldLogger) *ToneAnalyzer {
	return &ToneAnalyzer{
		sampleRate:   c.SampleRate,
		silenceFloor: c.SilenceFloor,
		minPitchHz:   c.MinPitchHz,
		frameSize:    c.FrameSize,
		hopSize:      c.HopSize,
		log:          log,
	}
}

// EstimateTone returns the mean pitch in Hz, or ok=false when the audio is
// silent, undecodable, or has no frame above the voiced-speech floor.
// WAV input is decoded from its header. Compressed containers (WebM, Ogg,
// MP3, FLAC, MP4) are not decoded here and yield no pitch. Anything else is
// read as 16-bit little-endian mono PCM at the configured sample rate.
func (a *ToneAnalyzer) EstimateTone(data []byte) (hz float64, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.log.WithField("panic", r).Warn("tone analysis failed")
			hz, ok = 0, false
		}
	}()

	samples, rate, err := a.decode(data)
	if err != nil {
		a.log.WithError(err).Debug("tone decode failed")
		return 0, false
	}
	if len(samples) == 0 || meanAbs(samples) < a.silenceFloor {
		return 0, false
	}

	pitches := a.framePitches(samples, rate)
	if len(pitches) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, p := range pitches {
		sum += p
	}
	return sum / float64(len(pitches)), true
}

func (a *ToneAnalyzer) decode(data []byte) ([]float64, int, error) {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return decodeWAV(data)
	}
	if c := compressedContainer(data); c != "" {
		return nil, 0, fmt.Errorf("%s audio is not decoded for tone analysis", c)
	}
	return decodePCM16(data), a.sampleRate, nil
}

// compressedContainer names the container format in the leading magic
// bytes, or returns "" for anything that could be raw PCM. Bare MPEG frame
// sync is not checked: 0xFFFx is also a valid run of small negative samples.
func compressedContainer(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "webm"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(data, []byte("ID3")):
		return "mp3"
	case bytes.HasPrefix(data, []byte("fLaC")):
		return "flac"
	case len(data) >= 8 && string(data[4:8]) == "ftyp":
		return "mp4"
	}
	return ""
}

func decodeWAV(data []byte) ([]float64, int, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid wav header")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("wav pcm: %w", err)
	}
	return mixdown(buf, int(d.BitDepth)), int(d.SampleRate), nil
}

// mixdown averages interleaved channels and scales to [-1,1].
func mixdown(buf *goaudio.IntBuffer, bitDepth int) []float64 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := math.Pow(2, float64(bitDepth-1))
	ch := 1
	if buf.Format != nil && buf.Format.NumChannels > 1 {
		ch = buf.Format.NumChannels
	}
	out := make([]float64, len(buf.Data)/ch)
	for i := range out {
		s := 0.0
		for c := 0; c < ch; c++ {
			s += float64(buf.Data[i*ch+c])
		}
		out[i] = s / float64(ch) / scale
	}
	return out
}

func decodePCM16(data []byte) []float64 {
	n := len(data) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[2*i:]))
		out[i] = float64(v) / 32768
	}
	return out
}

func meanAbs(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += math.Abs(x)
	}
	return s / float64(len(xs))
}

func (a *ToneAnalyzer) framePitches(samples []float64, rate int) []float64 {
	n := a.frameSize
	fft := fourier.NewFFT(n)
	frame := make([]float64, n)
	var coeffs []complex128
	var out []float64

	for start := 0; start == 0 || start+n <= len(samples); start += a.hopSize {
		for i := range frame {
			frame[i] = 0
		}
		copy(frame, samples[start:min(start+n, len(samples))])
		window.Hann(frame)
		coeffs = fft.Coefficients(coeffs, frame)

		peak, peakMag := 0, 0.0
		for k := 1; k < len(coeffs); k++ {
			if m := cmplxAbs(coeffs[k]); m > peakMag {
				peak, peakMag = k, m
			}
		}
		if peakMag == 0 {
			continue
		}
		f := fft.Freq(peak) * float64(rate)
		if peak > 1 && peak < len(coeffs)-1 {
			f += interpolate(cmplxAbs(coeffs[peak-1]), peakMag, cmplxAbs(coeffs[peak+1])) * float64(rate) / float64(n)
		}
		if f > a.minPitchHz {
			out = append(out, f)
		}
		if start+n >= len(samples) {
			break
		}
	}
	return out
}

// interpolate returns the parabolic offset of the true peak from the centre bin.
func interpolate(l, c, r float64) float64 {
	den := l - 2*c + r
	if den == 0 {
		return 0
	}
	return 0.5 * (l - r) / den
}

func cmplxAbs(c complex128) float64 { return math.Hypot(real(c), imag(c)) }

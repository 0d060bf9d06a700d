package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// wavWriter appends 16-bit PCM samples to a RIFF/WAV file. The header is
// written up front with zero sizes and patched on Close.
type wavWriter struct {
	f          *os.File
	sampleRate int
	channels   int
	dataBytes  int
}

const wavHeaderSize = 44

func newWavWriter(path string, sampleRate, channels int) (*wavWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := &wavWriter{f: f, sampleRate: sampleRate, channels: channels}
	if err := w.writeHeader(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

func (w *wavWriter) writeHeader() error {
	var hdr [wavHeaderSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+w.dataBytes))
	copy(hdr[8:12], "WAVE")

	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(hdr[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(w.sampleRate))
	byteRate := w.sampleRate * w.channels * 2
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(w.channels*2)) // block align
	binary.LittleEndian.PutUint16(hdr[34:36], 16)                   // bits per sample

	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(w.dataBytes))

	_, err := w.f.WriteAt(hdr[:], 0)
	return err
}

// WriteSamples appends interleaved float32 samples as little-endian int16.
func (w *wavWriter) WriteSamples(samples []float32) error {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v)))
	}

	if _, err := w.f.Write(buf); err != nil {
		return err
	}
	w.dataBytes += len(buf)
	return nil
}

// Seconds returns the recorded duration so far.
func (w *wavWriter) Seconds() float64 {
	frames := w.dataBytes / (w.channels * 2)
	return float64(frames) / float64(w.sampleRate)
}

// Close patches the RIFF sizes and closes the file.
func (w *wavWriter) Close() error {
	if err := w.writeHeader(); err != nil {
		w.f.Close()
		return fmt.Errorf("finalize wav header: %w", err)
	}
	return w.f.Close()
}

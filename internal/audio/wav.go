package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const wavHeaderSize = 44

// EncodeWAV writes the clip as a 16-bit PCM mono RIFF/WAVE stream.
func EncodeWAV(w io.Writer, c Clip) error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", c.SampleRate)
	}

	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataSize := len(c.Samples) * bitsPerSample / 8
	byteRate := c.SampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	var header bytes.Buffer
	header.WriteString("RIFF")
	binary.Write(&header, binary.LittleEndian, uint32(36+dataSize))
	header.WriteString("WAVE")
	header.WriteString("fmt ")
	binary.Write(&header, binary.LittleEndian, uint32(16))
	binary.Write(&header, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&header, binary.LittleEndian, uint16(channels))
	binary.Write(&header, binary.LittleEndian, uint32(c.SampleRate))
	binary.Write(&header, binary.LittleEndian, uint32(byteRate))
	binary.Write(&header, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&header, binary.LittleEndian, uint16(bitsPerSample))
	header.WriteString("data")
	binary.Write(&header, binary.LittleEndian, uint32(dataSize))

	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}

	buf := make([]byte, 2*len(c.Samples))
	for i, s := range c.Samples {
		v := int16(math.Round(clamp(s, -1, 1) * math.MaxInt16))
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	_, err := w.Write(buf)
	return err
}

// DecodeWAV parses a 16-bit PCM mono RIFF/WAVE stream into a clip.
func DecodeWAV(r io.Reader) (Clip, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Clip{}, fmt.Errorf("read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Clip{}, fmt.Errorf("not a RIFF/WAVE stream")
	}

	format := binary.LittleEndian.Uint16(header[20:22])
	channels := int(binary.LittleEndian.Uint16(header[22:24]))
	sampleRate := int(binary.LittleEndian.Uint32(header[24:28]))
	bitsPerSample := int(binary.LittleEndian.Uint16(header[34:36]))
	if format != 1 || bitsPerSample != 16 {
		return Clip{}, fmt.Errorf("unsupported wav encoding: format=%d bits=%d", format, bitsPerSample)
	}
	if channels != 1 {
		return Clip{}, fmt.Errorf("unsupported channel count: %d", channels)
	}
	if sampleRate <= 0 {
		return Clip{}, fmt.Errorf("invalid sample rate in header: %d", sampleRate)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Clip{}, fmt.Errorf("read wav data: %w", err)
	}

	samples := DecodePCM16(data)
	return Clip{SampleRate: sampleRate, Samples: samples}, nil
}

// DecodePCM16 converts raw little-endian signed 16-bit mono PCM bytes to
// normalized samples. A trailing odd byte is ignored.
func DecodePCM16(data []byte) []float64 {
	n := len(data) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[2*i:]))
		samples[i] = float64(v) / math.MaxInt16
	}
	return samples
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

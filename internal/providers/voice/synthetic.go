package voice

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"reelforge/internal/domain"
	"reelforge/internal/storage"
)

const (
	syntheticSampleRate = 8000
	syntheticMaxSeconds = 60
	wordsPerSecond      = 2.5
)

// SyntheticGenerator writes a silent WAV sized to the narration length. It
// stands in for a text-to-speech service in development and tests.
type SyntheticGenerator struct {
	store storage.Store
}

func NewSyntheticGenerator(store storage.Store) (*SyntheticGenerator, error) {
	if store == nil {
		return nil, errors.New("voice: artifact store is required")
	}
	return &SyntheticGenerator{store: store}, nil
}

func (g *SyntheticGenerator) GenerateVoice(ctx context.Context, req domain.VoiceRequest) (string, error) {
	words := len(strings.Fields(req.Script))
	if words == 0 {
		return "", errors.New("voice: script is empty")
	}
	seconds := int(float64(words)/wordsPerSecond) + 1
	if seconds > syntheticMaxSeconds {
		seconds = syntheticMaxSeconds
	}
	return g.store.Put(ctx, fmt.Sprintf("audio/%s.wav", req.VideoID), "audio/wav", silentWAV(seconds))
}

// silentWAV encodes 8-bit mono PCM silence.
func silentWAV(seconds int) []byte {
	dataLen := uint32(seconds * syntheticSampleRate)
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(syntheticSampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(syntheticSampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(8))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(bytes.Repeat([]byte{0x80}, int(dataLen)))
	return buf.Bytes()
}

package audio

import (
	"encoding/binary"
	"io"
	"os"
)

// RIFF + fmt + data preamble for the fixed session format.
const wavHeaderSize = 44

// WriteWAVPCM16LEFile writes a session's played audio as a WAV file.
func WriteWAVPCM16LEFile(path string, pcm []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteWAVPCM16LETo(f, pcm)
}

// WriteWAVPCM16LETo wraps raw PCM16LE mono 24kHz bytes in a WAV container.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte) error {
	hdr := make([]byte, wavHeaderSize)
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(wavHeaderSize-8+len(pcm)))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], 1) // mono
	binary.LittleEndian.PutUint32(hdr[24:28], SampleRate)
	binary.LittleEndian.PutUint32(hdr[28:32], BytesPerSecond)
	binary.LittleEndian.PutUint16(hdr[32:34], BytesPerSample)
	binary.LittleEndian.PutUint16(hdr[34:36], 8*BytesPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(len(pcm)))

	if _, err := out.Write(hdr); err != nil {
		return err
	}
	_, err := out.Write(pcm)
	return err
}

package encoder

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// MimeType describes the payload of every Frame.
const MimeType = "audio/pcm;rate=16000"

// Frame is one encoded block of capture audio, ready for the wire.
type Frame struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// BytesPerBlock is the size of one encoded block before base64.
func BytesPerBlock() int {
	return BlockSize * BitsPerSample / 8
}

package audio

const (
	// DefaultSampleRate is the rate the realtime endpoint expects for pcm16.
	DefaultSampleRate = 24000
	DefaultFormat     = "linear16"
	DefaultChannels   = 1
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// WireFormat returns the realtime API name of the format, or an empty string
// when the endpoint does not accept it.
func (e EncodingInfo) WireFormat() string {
	switch e.Format {
	case EncodingLinear16:
		return "pcm16"
	case EncodingMulaw:
		return "g711_ulaw"
	case EncodingALaw:
		return "g711_alaw"
	}
	return ""
}

// BytesPerMillisecond is the size of one millisecond of mono audio.
func (e EncodingInfo) BytesPerMillisecond() int {
	return e.SampleRate * e.Format.ByteSize() / 1000
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case encodingFormat("mulaw"), encodingFormat("alaw"):
		return 1
	case encodingFormat("linear16"):
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)

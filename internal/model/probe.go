package model

// ProbeResult mirrors the ffprobe JSON document (-show_streams -show_format).
// Numeric fields that ffprobe prints as strings are kept as strings.
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

type ProbeStream struct {
	Index         int    `json:"index"`
	CodecName     string `json:"codec_name"`
	CodecType     string `json:"codec_type"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	RFrameRate    string `json:"r_frame_rate,omitempty"`
	AvgFrameRate  string `json:"avg_frame_rate,omitempty"`
	BitRate       string `json:"bit_rate,omitempty"`
	Duration      string `json:"duration,omitempty"`
	NbFrames      string `json:"nb_frames,omitempty"`
	Channels      int    `json:"channels,omitempty"`
	SampleRate    string `json:"sample_rate,omitempty"`
	PixFmt        string `json:"pix_fmt,omitempty"`
	ChannelLayout string `json:"channel_layout,omitempty"`
}

type ProbeFormat struct {
	Filename       string `json:"filename"`
	NbStreams      int    `json:"nb_streams"`
	FormatName     string `json:"format_name"`
	FormatLongName string `json:"format_long_name,omitempty"`
	Duration       string `json:"duration,omitempty"`
	Size           string `json:"size,omitempty"`
	BitRate        string `json:"bit_rate,omitempty"`
}

// VideoStream returns the first video stream, if any.
func (p *ProbeResult) VideoStream() (ProbeStream, bool) {
	return p.firstOfType("video")
}

// AudioStream returns the first audio stream, if any.
func (p *ProbeResult) AudioStream() (ProbeStream, bool) {
	return p.firstOfType("audio")
}

func (p *ProbeResult) firstOfType(t string) (ProbeStream, bool) {
	for _, s := range p.Streams {
		if s.CodecType == t {
			return s, true
		}
	}
	return ProbeStream{}, false
}

// Package audio converts between the Twilio telephony format (μ-law mono
// at 8kHz) and the agent's linear PCM formats (16-bit little-endian,
// 48kHz in, 24kHz out).
//
// The converters are pure functions of (input, prior state); each call
// returns the next state so every call leg carries its own independent
// continuation. State must never be shared between directions or calls.
package audio

import (
	"github.com/zaf/g711"

	servizio "github.com/dfordp/Servizio"
)

const (
	inboundUpFactor    = servizio.AgentInputSampleRate / servizio.TelephonySampleRate  // 8k -> 48k
	outboundDownFactor = servizio.AgentOutputSampleRate / servizio.TelephonySampleRate // 24k -> 8k
)

// RateState is the resampler continuation threaded through successive
// conversion calls. The zero value (or nil) starts a fresh stream.
type RateState struct {
	last   int16  // previous output-side anchor sample
	primed bool   // last is valid
	rem    []byte // undecoded tail: bytes short of a full input sample group
}

// DecodeInbound converts one μ-law 8kHz telephony payload to linear16
// PCM at the agent input rate. A nil state starts a new stream.
func DecodeInbound(ulaw []byte, st *RateState) ([]byte, *RateState) {
	if st == nil {
		st = &RateState{}
	}
	// 2 bytes per sample, upFactor samples out per sample in.
	out := make([]byte, 0, len(ulaw)*2*inboundUpFactor)

	for _, b := range ulaw {
		s := g711.DecodeUlawFrame(b)
		if !st.primed {
			st.last = s
			st.primed = true
		}
		// Linear interpolation from the previous sample to this one.
		prev := int32(st.last)
		delta := int32(s) - prev
		for j := 1; j <= inboundUpFactor; j++ {
			v := int16(prev + delta*int32(j)/inboundUpFactor)
			out = append(out, byte(v), byte(v>>8))
		}
		st.last = s
	}
	return out, st
}

// EncodeOutbound converts agent linear16 PCM at the output rate back to
// μ-law 8kHz. Input bytes that do not fill a whole downsample group are
// buffered in the state and consumed on the next call.
func EncodeOutbound(pcm []byte, st *RateState) ([]byte, *RateState) {
	if st == nil {
		st = &RateState{}
	}
	data := pcm
	if len(st.rem) > 0 {
		data = append(append([]byte{}, st.rem...), pcm...)
		st.rem = nil
	}

	const groupBytes = 2 * outboundDownFactor
	full := len(data) / groupBytes * groupBytes
	out := make([]byte, 0, full/groupBytes)

	for i := 0; i+groupBytes <= len(data); i += groupBytes {
		// Average each group of samples; cheap low-pass before decimation.
		var sum int32
		for j := 0; j < outboundDownFactor; j++ {
			o := i + 2*j
			sum += int32(int16(uint16(data[o]) | uint16(data[o+1])<<8))
		}
		out = append(out, g711.EncodeUlawFrame(int16(sum/outboundDownFactor)))
	}

	if full < len(data) {
		st.rem = append(st.rem, data[full:]...)
	}
	return out, st
}

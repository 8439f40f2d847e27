package telephony

import "encoding/binary"

// G.711 mu-law as used by Twilio media streams (8 kHz, mono).

const (
	muLawBias = 0x84
	muLawClip = 32635
)

var muLawToPCM [256]int16

func init() {
	for i := range muLawToPCM {
		muLawToPCM[i] = decodeMuLaw(byte(i))
	}
}

func decodeMuLaw(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	sample := ((int32(mantissa) << 3) + muLawBias) << exponent
	sample -= muLawBias
	if sign != 0 {
		return int16(-sample)
	}
	return int16(sample)
}

func encodeMuLaw(pcm int16) byte {
	v := int32(pcm)
	var sign byte
	if v < 0 {
		sign = 0x80
		v = -v
	}
	if v > muLawClip {
		v = muLawClip
	}
	v += muLawBias

	exponent := 7
	for mask := int32(0x4000); v&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte(v>>(exponent+3)) & 0x0F
	return ^(sign | byte(exponent)<<4 | mantissa)
}

// MuLawToPCM16k decodes 8 kHz mu-law into 16 kHz 16-bit little-endian PCM,
// the input format of the live model. Each sample is doubled.
func MuLawToPCM16k(mulaw []byte) []byte {
	out := make([]byte, len(mulaw)*4)
	for i, b := range mulaw {
		s := uint16(muLawToPCM[b])
		binary.LittleEndian.PutUint16(out[i*4:], s)
		binary.LittleEndian.PutUint16(out[i*4+2:], s)
	}
	return out
}

// PCM24kToMuLaw converts 24 kHz 16-bit little-endian PCM from the live model
// into 8 kHz mu-law. Every three samples are averaged into one.
func PCM24kToMuLaw(pcm []byte) []byte {
	samples := len(pcm) / 2
	out := make([]byte, 0, samples/3+1)
	for i := 0; i < samples; i += 3 {
		var sum, n int32
		for j := i; j < i+3 && j < samples; j++ {
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[j*2:])))
			n++
		}
		out = append(out, encodeMuLaw(int16(sum/n)))
	}
	return out
}

package blackbox

// Variable-length and prefix codecs for the blackbox field encodings. The
// VB, Elias and TAG8_8SVB decoders return zero values when the stream runs
// out mid-read; TAG2_3S32 and TAG8_4S16 decode the EOF sentinel as a 0xFF
// byte and so may yield non-zero values. Either way the caller detects
// truncation through the stream's eof flag.

// readUnsignedVB decodes up to 5 bytes; each byte's low 7 bits contribute at
// shift 0,7,14,21,28, with the high bit as a continuation flag. Overlong
// encodings (5 continuation bytes) yield 0.
func (s *stream) readUnsignedVB() uint32 {
	var result uint32
	shift := uint(0)
	for i := 0; i < 5; i++ {
		c := s.readByte()
		if c == streamEOF {
			return 0
		}
		result |= uint32(c&0x7f) << shift
		if c < 128 {
			return result
		}
		shift += 7
	}
	return 0
}

// zigZagDecode maps a non-negative wire value back to its signed original.
func zigZagDecode(u uint32) int32 {
	return int32(u>>1) ^ -int32(u&1)
}

func zigZagEncode(v int32) uint32 {
	return uint32((v << 1) ^ (v >> 31))
}

func (s *stream) readSignedVB() int32 {
	return zigZagDecode(s.readUnsignedVB())
}

// signExtend14Bit treats the low 14 bits of u as a signed quantity.
func signExtend14Bit(u uint32) int32 {
	v := u & 0x3FFF
	if v&0x2000 != 0 {
		return int32(v) - 0x4000
	}
	return int32(v)
}

// readNeg14Bit decodes an unsigned VB, sign-extends its low 14 bits, negates.
func (s *stream) readNeg14Bit() int32 {
	return -signExtend14Bit(s.readUnsignedVB())
}

// readEliasGammaU32 counts leading zero bits k, then reads k+1 bits (the
// first implicitly 1) to form the value.
func (s *stream) readEliasGammaU32() uint32 {
	leadingZeros := 0
	for {
		b := s.readBit()
		if b == streamEOF {
			return 0
		}
		if b == 1 {
			break
		}
		leadingZeros++
	}

	value := uint32(1)
	for i := 0; i < leadingZeros; i++ {
		b := s.readBit()
		if b == streamEOF {
			return 0
		}
		value = (value << 1) | uint32(b)
	}
	return value
}

func (s *stream) readEliasGammaS32() int32 {
	return zigZagDecode(s.readEliasGammaU32())
}

// readEliasDeltaU32 decodes an Elias-gamma length L, then reads L-1 more
// bits, prepending an implicit 1, to form the value.
func (s *stream) readEliasDeltaU32() uint32 {
	length := s.readEliasGammaU32()
	if length == 0 {
		return 0
	}
	value := uint32(1)
	for i := uint32(0); i+1 < length; i++ {
		b := s.readBit()
		if b == streamEOF {
			return 0
		}
		value = (value << 1) | uint32(b)
	}
	return value
}

func (s *stream) readEliasDeltaS32() int32 {
	return zigZagDecode(s.readEliasDeltaU32())
}

// readTag8_8SVB reads one header byte of up to 8 bits; for each of the n
// fields, a clear bit means zero, a set bit means "read a signed VB".
func (s *stream) readTag8_8SVB(values []int32, n int) {
	if n <= 0 {
		return
	}
	header := s.readByte()
	if header == streamEOF {
		for i := 0; i < n; i++ {
			values[i] = 0
		}
		return
	}
	for i := 0; i < n; i++ {
		if header&(1<<uint(i))&0xff != 0 {
			values[i] = s.readSignedVB()
		} else {
			values[i] = 0
		}
	}
}

func signExtendBits(v int, bits int) int32 {
	shift := uint(32 - bits)
	return int32(uint32(v)<<shift) >> shift
}

// readTag2_3S32 reads one header byte whose top two bits select a uniform
// per-field width (2, 4 or 6 bits) or raw signed-VB encoding for the three
// values that follow.
func (s *stream) readTag2_3S32(values []int32) {
	header := byte(s.readByte())

	switch header >> 6 {
	case 0:
		values[0] = signExtendBits(int((header>>4)&0x03), 2)
		values[1] = signExtendBits(int((header>>2)&0x03), 2)
		values[2] = signExtendBits(int(header&0x03), 2)
	case 1:
		values[0] = signExtendBits(int(header&0x0f), 4)
		b1 := byte(s.readByte())
		values[1] = signExtendBits(int(b1>>4), 4)
		values[2] = signExtendBits(int(b1&0x0f), 4)
	case 2:
		values[0] = signExtendBits(int(header&0x3f), 6)
		b1 := byte(s.readByte())
		values[1] = signExtendBits(int(b1&0x3f), 6)
		b2 := byte(s.readByte())
		values[2] = signExtendBits(int(b2&0x3f), 6)
	default:
		values[0] = s.readSignedVB()
		values[1] = s.readSignedVB()
		values[2] = s.readSignedVB()
	}
}

// readTag8_4S16V2 reads one header byte whose four 2-bit selectors (lowest
// pair first) choose per-field widths from {0,4,8,16}, producing four
// signed values. 4-bit fields are sign-extended to -8..7.
func (s *stream) readTag8_4S16V2(values []int32) {
	s.readTag8_4S16(values, true)
}

// readTag8_4S16V1 is the v1 dialect: identical layout, but the 4-bit field
// is NOT sign-extended (left as an unsigned 0..15 nibble).
func (s *stream) readTag8_4S16V1(values []int32) {
	s.readTag8_4S16(values, false)
}

func (s *stream) readTag8_4S16(values []int32, signExtendNibble bool) {
	selector := byte(s.readByte())
	nibbleIndex := 0
	var nibbleBuf byte

	for i := 0; i < 4; i++ {
		switch (selector >> uint(2*i)) & 0x03 {
		case 0:
			values[i] = 0
		case 1:
			if nibbleIndex == 0 {
				nibbleBuf = byte(s.readByte())
				if signExtendNibble {
					values[i] = signExtendBits(int(nibbleBuf>>4), 4)
				} else {
					values[i] = int32(nibbleBuf >> 4)
				}
				nibbleIndex = 1
			} else {
				if signExtendNibble {
					values[i] = signExtendBits(int(nibbleBuf&0x0f), 4)
				} else {
					values[i] = int32(nibbleBuf & 0x0f)
				}
				nibbleIndex = 0
			}
		case 2:
			values[i] = int32(int8(s.readByte()))
		case 3:
			lo := s.readByte()
			hi := s.readByte()
			values[i] = int32(int16(uint16(lo) | uint16(hi)<<8))
		}
	}
}

package device

// remix converts frames interleaved frames from srcCh to dstCh channels.
// Mono to many duplicates, many to mono averages, and any other mismatch
// copies the leading channels and zero-fills the rest.
func remix(dst []int16, dstCh int, src []int16, srcCh, frames int) {
	switch {
	case dstCh == srcCh:
		copy(dst[:frames*dstCh], src[:frames*srcCh])
	case srcCh == 1:
		for f := 0; f < frames; f++ {
			s := src[f]
			for c := 0; c < dstCh; c++ {
				dst[f*dstCh+c] = s
			}
		}
	case dstCh == 1:
		for f := 0; f < frames; f++ {
			var sum int32
			for c := 0; c < srcCh; c++ {
				sum += int32(src[f*srcCh+c])
			}
			dst[f] = int16(sum / int32(srcCh))
		}
	default:
		for f := 0; f < frames; f++ {
			for c := 0; c < dstCh; c++ {
				if c < srcCh {
					dst[f*dstCh+c] = src[f*srcCh+c]
				} else {
					dst[f*dstCh+c] = 0
				}
			}
		}
	}
}

// optimumFrameCount picks how many frames to hand the driver: the preferred
// period when the driver allows it, otherwise the nearest bound.
func optimumFrameCount(preferred, minFrames, maxFrames int) int {
	n := preferred
	if n < minFrames {
		n = minFrames
	}
	if n > maxFrames {
		n = maxFrames
	}
	return n
}

package continuousflow

// Fragment is a contiguous run of samples within one channel's buffer,
// expressed as a sample offset/length pair (not bytes).
type Fragment struct {
	Offset int
	Length int
}

// Window is the result of resolving a sample range against a circular
// per-channel buffer: it may wrap, in which case Second.Length > 0 and the
// logical range is First followed by Second.
type Window struct {
	First  Fragment
	Second Fragment
}

// resolveWindow computes the (possibly wrapping) fragment pair for a
// request ending at index (inclusive) with length count samples against a
// buffer of bufferLength samples, mirroring
// PosixContinuousFlowWriter::openSamples's offset arithmetic.
func resolveWindow(index uint64, count int, bufferLength int) Window {
	bl := uint64(bufferLength)
	c := uint64(count)
	startOffset := (index + 1 + bl - c) % bl

	var firstLength uint64
	if startOffset+c <= bl {
		firstLength = c
	} else {
		firstLength = bl - startOffset
	}
	secondLength := c - firstLength

	return Window{
		First:  Fragment{Offset: int(startOffset), Length: int(firstLength)},
		Second: Fragment{Offset: 0, Length: int(secondLength)},
	}
}

// fragmentBytes returns the bytes of fragment f within channel's buffer,
// given sampleWordSize bytes per sample.
func (d *Data) fragmentBytes(channel uint32, sampleWordSize int, f Fragment) []byte {
	buf := d.channelBytes(channel)
	start := f.Offset * sampleWordSize
	end := start + f.Length*sampleWordSize
	return buf[start:end]
}

// ChannelSlices returns the byte slices for w on the given channel, in
// playback order. The second slice is empty when the window doesn't wrap.
func (d *Data) ChannelSlices(channel uint32, w Window) (first, second []byte) {
	h := d.FlowInfo()
	wordSize := int(h.SampleWordSize)
	first = d.fragmentBytes(channel, wordSize, w.First)
	if w.Second.Length > 0 {
		second = d.fragmentBytes(channel, wordSize, w.Second)
	}
	return first, second
}

package safetime

// TimeSample is a validated clock reading: the offset between the local
// clock and server time, the corrected wall clock at the moment the
// response arrived, and the tick counter reading captured at that moment.
// Raw carries the parsed packet for fresh samples and is nil for samples
// loaded back from a persistent cache.
type TimeSample struct {
	// OffsetMs is the signed clock offset in milliseconds. Positive means
	// the local clock is behind the server.
	OffsetMs int64

	// CorrectedMs is the corrected wall clock, in Unix milliseconds, at
	// the moment the response was received.
	CorrectedMs int64

	// ResponseTicks is the TickSource reading captured at reception
	ResponseTicks int64

	// Raw is the parsed response this sample was derived from, if any
	Raw *Packet
}

// NowMs extrapolates the sample to the given tick reading. currentTicks
// must come from the same TickSource that produced ResponseTicks.
func (s TimeSample) NowMs(currentTicks int64) int64 {
	return s.CorrectedMs + (currentTicks - s.ResponseTicks)
}

// ComputeSample applies the standard NTP four-timestamp offset formula to a
// parsed response and the local readings of its exchange:
//
//	offset = ((t1 - t0) + (t2 - t3)) / 2
//
// where t0 is the originate time, t1 the server receive time, t2 the server
// transmit time, and t3 the local wall clock at reception (request wall
// clock advanced by the elapsed ticks).
func ComputeSample(p *Packet, ex *Exchange) TimeSample {
	t0 := p.OriginateMs()
	t1 := p.ReceiveMs()
	t2 := p.TransmitMs()
	t3 := ex.ResponseWallMs()

	offset := ((t1 - t0) + (t2 - t3)) / 2

	return TimeSample{
		OffsetMs:      offset,
		CorrectedMs:   t3 + offset,
		ResponseTicks: ex.ResponseTicks,
		Raw:           p,
	}
}

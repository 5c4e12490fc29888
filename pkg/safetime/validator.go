package safetime

import (
	"time"

	"github.com/maximewewer/safetime/pkg/logger"
	"github.com/maximewewer/safetime/pkg/mathutil"
)

// maxRequestAgeMs bounds how old the originate timestamp may be at
// validation time. A request older than this usually means the goroutine
// was suspended mid-exchange and the tick pair can no longer be trusted.
const maxRequestAgeMs = 10_000

// Validator applies the defensive sanity rules to a parsed response and the
// local readings of its exchange. Any rejection is terminal for that
// request; the retry controller decides whether another attempt follows.
//
// RootDelayMax and RootDispersionMax are compared against the raw 16.16
// fixed-point field values from the packet, not seconds. The thresholds are
// small integers (100 by default) for compatibility with existing
// deployments; the comparison is strict (reject on greater-than).
type Validator struct {
	rootDelayMax           int64
	rootDispersionMax      int64
	serverResponseDelayMax time.Duration
	nowMs                  func() int64
}

// NewValidator creates a validator with the given thresholds
func NewValidator(rootDelayMax, rootDispersionMax int64, serverResponseDelayMax time.Duration) *Validator {
	return &Validator{
		rootDelayMax:           rootDelayMax,
		rootDispersionMax:      rootDispersionMax,
		serverResponseDelayMax: serverResponseDelayMax,
		nowMs:                  wallNowMs,
	}
}

// Validate checks a parsed response against all rules and returns nil when
// every rule holds, or an *UntrustedResponseError naming the first rule
// that failed.
func (v *Validator) Validate(p *Packet, ex *Exchange) error {
	if err := v.check(p, ex); err != nil {
		logger.SafeWarn("validator", "NTP response rejected", map[string]interface{}{
			"host":     ex.Host,
			"field":    err.Field,
			"actual":   err.Actual,
			"expected": err.Expected,
		})
		return err
	}
	return nil
}

func (v *Validator) check(p *Packet, ex *Exchange) *UntrustedResponseError {
	if int64(p.RootDelay) > v.rootDelayMax {
		return &UntrustedResponseError{Field: FieldRootDelay, Actual: int64(p.RootDelay), Expected: v.rootDelayMax}
	}

	if int64(p.RootDispersion) > v.rootDispersionMax {
		return &UntrustedResponseError{Field: FieldRootDispersion, Actual: int64(p.RootDispersion), Expected: v.rootDispersionMax}
	}

	if p.Mode != ModeServer && p.Mode != ModeBroadcast {
		return &UntrustedResponseError{Field: FieldMode, Actual: int64(p.Mode), Expected: ModeServer}
	}

	if p.Stratum < 1 || p.Stratum > 15 {
		return &UntrustedResponseError{Field: FieldStratum, Actual: int64(p.Stratum), Expected: 1}
	}

	if p.LeapIndicator == LeapAlarm {
		return &UntrustedResponseError{Field: FieldLeapIndicator, Actual: LeapAlarm, Expected: LeapNoWarning}
	}

	t0 := p.OriginateMs()
	t1 := p.ReceiveMs()
	t2 := p.TransmitMs()
	t3 := ex.ResponseWallMs()

	delayMaxMs := v.serverResponseDelayMax.Milliseconds()
	if delay := mathutil.AbsInt64((t3 - t0) - (t2 - t1)); delay >= delayMaxMs {
		return &UntrustedResponseError{Field: FieldServerResponseDelay, Actual: delay, Expected: delayMaxMs}
	}

	if age := mathutil.AbsInt64(t0 - v.nowMs()); age >= maxRequestAgeMs {
		return &UntrustedResponseError{Field: FieldRequestAge, Actual: age, Expected: maxRequestAgeMs}
	}

	return nil
}

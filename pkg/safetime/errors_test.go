package safetime

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureReason(t *testing.T) {
	cases := []struct {
		err    error
		reason string
	}{
		{fmt.Errorf("%w: pool.ntp.org", ErrTimeout), "timeout"},
		{fmt.Errorf("%w: nowhere", ErrUnresolvedHost), "unresolved_host"},
		{fmt.Errorf("%w: denied", ErrSecurity), "security"},
		{fmt.Errorf("%w: 12 bytes", ErrMalformedResponse), "malformed_response"},
		{fmt.Errorf("%w: refused", ErrIo), "io"},
		{&UntrustedResponseError{Field: FieldStratum}, "untrusted_response"},
		{fmt.Errorf("something else"), "unknown"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.reason, failureReason(tc.err), "error: %v", tc.err)
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "failed to sync time", ErrSyncFailed.Error())
	assert.Equal(t, "no valid cached time", ErrNoValidCache.Error())
}

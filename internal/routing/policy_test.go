package routing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    Policy
		wantErr bool
	}{
		{input: "auto", want: PolicyAuto},
		{input: "remote", want: PolicyForceRemote},
		{input: "local", want: PolicyForceLocal},
		{input: "", wantErr: true},
		{input: "Auto", wantErr: true},
		{input: "gemini", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParsePolicy(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "unknown routing policy")
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestRemoteErrorFallbackEligibility(t *testing.T) {
	eligible := map[RemoteErrorKind]bool{
		RemoteNetwork: true,
		RemoteAuth:    false,
		RemoteQuota:   false,
		RemoteService: false,
	}

	for kind, want := range eligible {
		err := &RemoteError{Kind: kind}
		require.Equal(t, want, err.FallbackEligible(), "kind %s", kind)
	}
}

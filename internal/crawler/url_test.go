package crawler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "root", input: "https://shop.example.com", want: "https://shop.example.com"},
		{name: "path dropped", input: "https://shop.example.com/a/b?q=1#x", want: "https://shop.example.com"},
		{name: "case folded", input: "HTTPS://Shop.Example.com/A", want: "https://shop.example.com"},
		{name: "port kept", input: "http://127.0.0.1:8080/x", want: "http://127.0.0.1:8080"},
		{name: "default https port dropped", input: "https://shop.example.com:443/x", want: "https://shop.example.com"},
		{name: "default http port dropped", input: "http://shop.example.com:80", want: "http://shop.example.com"},
		{name: "https on port 80 kept", input: "https://shop.example.com:80/", want: "https://shop.example.com:80"},
		{name: "ipv6", input: "http://[::1]:80/x", want: "http://[::1]"},
		{name: "ipv6 port kept", input: "http://[::1]:8080/x", want: "http://[::1]:8080"},
		{name: "relative", input: "/products/1", wantErr: true},
		{name: "garbage", input: "http://%zz", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Origin(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSite(t *testing.T) {
	t.Parallel()

	require.Equal(t, "shop.example.com", Site("https://Shop.Example.com/x"))
	require.Equal(t, "unknown", Site("not a url"))
	require.Equal(t, "unknown", Site("http://%zz"))
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	err := error(NewValidationError("urls", "jobId"))
	require.True(t, IsValidation(err))
	require.Equal(t, "missing parameters: urls, jobId", err.Error())

	var v *ValidationError
	require.True(t, errors.As(err, &v))
	require.Equal(t, []string{"urls", "jobId"}, v.Missing)
	require.False(t, IsValidation(ErrJobNotFound))
}

func TestJobStateTerminal(t *testing.T) {
	t.Parallel()

	require.True(t, JobStateCompleted.Terminal())
	require.True(t, JobStateFailed.Terminal())
	require.False(t, JobStateWaiting.Terminal())
	require.False(t, JobStateDelayed.Terminal())
	require.False(t, JobStateActive.Terminal())
}

func TestIsBlank(t *testing.T) {
	t.Parallel()

	for _, v := range []string{"", "   ", "NULL", "null", " Null "} {
		require.True(t, IsBlank(v), "%q", v)
	}
	for _, v := range []string{"https://shop.example.com", "nullable", "0"} {
		require.False(t, IsBlank(v), "%q", v)
	}
}

package mqlerrors

import (
	"fmt"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"
)

type testNode string

func (n testNode) String() string { return string(n) }

func TestUnsupportedError(t *testing.T) {
	tests := []struct {
		err  *UnsupportedError
		want string
	}{
		{Unsupported(testNode("x.Name[i]"), ""), "expression x.Name[i] is not supported"},
		{Unsupported(testNode("x.F"), "no member"), "expression x.F is not supported: no member"},
		{Unsupportedf(nil, "%d args", 3), "unsupported expression: 3 args"},
	}
	for i, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("Test%d", i+1), func(t *testing.T) {
			require.EqualError(t, tt.err, tt.want)
		})
	}

	wrapped := errors.Wrap(Unsupported(testNode("x"), ""), "translate")
	require.True(t, IsUnsupported(wrapped))
	require.False(t, IsUnsupported(errors.New("other")))
}

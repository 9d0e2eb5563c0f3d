package pathenc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeStable(t *testing.T) {
	a := Encode("src/foo/bar.py")
	b := Encode("src/foo/bar.py")
	require.Equal(t, a, b)
	require.Len(t, a, 3)
}

func TestEncodeDistinguishesSameBasenameDifferentParent(t *testing.T) {
	a := Encode("src/foo/bar.py")
	b := Encode("src/baz/bar.py")
	require.NotEqual(t, a[2], b[2])
}

func TestEncodeSillyStemUsesParentDir(t *testing.T) {
	enc := Encode("pkg/widgets/__init__.py")
	require.Equal(t, "widgets", enc[0])
}

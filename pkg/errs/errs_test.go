package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIncludesDetailWhenCausePresent(t *testing.T) {
	cause := errors.New("disk full")
	e := NewInternal("cannot write index", cause)
	require.Equal(t, "cannot write index: disk full", e.Error())
	require.Equal(t, Internal, e.Kind)
}

func TestErrorOmitsDetailWithNoCause(t *testing.T) {
	e := NewInput("missing argument", nil)
	require.Equal(t, "missing argument", e.Error())
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	e := NewPermission("cannot open data dir", cause)
	require.ErrorIs(t, e, cause)
}

func TestWithHintChainsOnConstruction(t *testing.T) {
	e := NewInput("bad flag", nil).WithHint("see --help")
	require.Equal(t, "see --help", e.Hint)
}

package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDictionary(t *testing.T) {
	d := NewDictionary(
		DictionaryItem{Key: "b", Value: "1"},
		DictionaryItem{Key: "a", Value: "2"},
	)
	d.Set("b", "3")
	require.Equal(t, []string{"b", "a"}, d.Keys())
	v, ok := d.Get("b")
	require.True(t, ok)
	require.Equal(t, "3", v)
	require.Equal(t, "b=3:a=2", d.String())

	cpy := d.Clone()
	require.True(t, cpy.Delete("a"))
	require.False(t, cpy.Delete("a"))
	require.Equal(t, 2, d.Len())
	require.Equal(t, 1, cpy.Len())

	cpy.CopyFrom(d)
	require.Equal(t, d.Items(), cpy.Items())

	var nilDict *Dictionary
	require.Zero(t, nilDict.Len())
	_, ok = nilDict.Get("a")
	require.False(t, ok)
	require.NotNil(t, nilDict.Clone())
}

func TestErrorKinds(t *testing.T) {
	require.ErrorIs(t, InvalidStatef("x"), ErrInvalidArgument)
	require.ErrorIs(t, InvalidStatef("x"), ErrInvalidState)
	require.NotErrorIs(t, InvalidArgumentf("x"), ErrInvalidState)

	var err error = NewNativeError("open", -22, "Invalid argument")
	require.ErrorIs(t, err, ErrNative)
	var nerr *NativeError
	require.True(t, errors.As(err, &nerr))
	require.Equal(t, -22, nerr.Code)
}

package convert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefOf(t *testing.T) {
	value := RefOf("contoso")
	require.NotNil(t, value)
	require.Equal(t, "contoso", *value)
}

func TestToValueWithDefault(t *testing.T) {
	require.Equal(t, "value", ToValueWithDefault(RefOf("value"), "default"))
	require.Equal(t, "default", ToValueWithDefault[string](nil, "default"))
	require.Equal(t, "default", ToValueWithDefault(RefOf(""), "default"))
	require.Equal(t, 5, ToValueWithDefault(RefOf(5), 1))
}

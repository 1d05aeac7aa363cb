package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONObject(t *testing.T) {
	regions, err := DecodeJSONObject[map[string]string](strings.NewReader(`{"01": "Республика Адыгея", "77": "Москва"}`))
	require.NoError(t, err)
	assert.Equal(t, "Москва", (*regions)["77"])

	_, err = DecodeJSONObject[map[string]string](strings.NewReader(`[1,2]`))
	assert.ErrorContains(t, err, "json: decode object")
}

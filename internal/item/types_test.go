package item

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericSize_RejectsNonNumeric(t *testing.T) {
	_, err := NumericSize("EU-42")
	require.Error(t, err)

	k, err := NumericSize("42.5")
	require.NoError(t, err)
	assert.True(t, k.IsNumeric())
	assert.Equal(t, "42.5", k.String())
}

func TestSizeKey_JSON_PreservesKind(t *testing.T) {
	num, err := NumericSize("38")
	require.NoError(t, err)
	text := TextSize("XL")

	rawNum, err := json.Marshal(num)
	require.NoError(t, err)
	assert.Equal(t, "38", string(rawNum), "numeric sizes serialize as bare numbers")

	rawText, err := json.Marshal(text)
	require.NoError(t, err)
	assert.Equal(t, `"XL"`, string(rawText), "textual sizes serialize as strings")

	var backNum, backText SizeKey
	require.NoError(t, json.Unmarshal(rawNum, &backNum))
	require.NoError(t, json.Unmarshal(rawText, &backText))
	assert.Equal(t, num, backNum)
	assert.Equal(t, text, backText)
	assert.True(t, backNum.IsNumeric())
	assert.False(t, backText.IsNumeric())
}

func TestSizeKey_NumericAndText_AreDistinctKeys(t *testing.T) {
	num, err := NumericSize("38")
	require.NoError(t, err)
	text := TextSize("38")

	m := map[SizeKey]int{num: 1, text: 2}
	assert.Len(t, m, 2, "38 the number and \"38\" the label must not collapse")
}

func TestSizeKey_Less_NumericBeforeText(t *testing.T) {
	n36, _ := NumericSize("36")
	n42, _ := NumericSize("42")
	s := TextSize("S")
	xl := TextSize("XL")

	assert.True(t, n36.Less(n42))
	assert.True(t, n42.Less(s), "numeric sizes order before textual ones")
	assert.True(t, s.Less(xl))
	assert.False(t, xl.Less(s))
}

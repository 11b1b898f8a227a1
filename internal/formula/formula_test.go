package formula

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chain() Formula {
	leaf := Leaf("Leaf", "1")
	mid := Formula{Type: "Mid", Version: "1", Inputs: map[string]Formula{"Leaf": leaf}}
	return Formula{Type: "Root", Version: "1", Inputs: map[string]Formula{"Mid": mid}}
}

func TestMarshalCanonical_Leaf(t *testing.T) {
	b, err := MarshalCanonical(Leaf("GeneInfo", "2020-09-01"))
	require.NoError(t, err)
	assert.Equal(t, `{"inputs":{},"type":"GeneInfo","version":"2020-09-01"}`, string(b))
}

func TestMarshalCanonical_NilAndEmptyInputsMatch(t *testing.T) {
	a := Formula{Type: "T", Version: "1"}
	b := Formula{Type: "T", Version: "1", Inputs: map[string]Formula{}}
	assert.Equal(t, MustMarshalCanonical(a), MustMarshalCanonical(b))
	assert.Equal(t, Signature(a), Signature(b))
}

func TestMarshalCanonical_Nested(t *testing.T) {
	b, err := MarshalCanonical(chain())
	require.NoError(t, err)
	assert.Equal(t,
		`{"inputs":{"Mid":{"inputs":{"Leaf":{"inputs":{},"type":"Leaf","version":"1"}},"type":"Mid","version":"1"}},"type":"Root","version":"1"}`,
		string(b))
}

func TestMarshalCanonical_InputOrderIrrelevant(t *testing.T) {
	a := Formula{Type: "T", Version: "1", Inputs: map[string]Formula{}}
	b := Formula{Type: "T", Version: "1", Inputs: map[string]Formula{}}

	keys := []string{"zeta", "alpha", "Mid", "beta"}
	for _, k := range keys {
		a.Inputs[k] = Leaf(k, "1")
	}
	for i := len(keys) - 1; i >= 0; i-- {
		b.Inputs[keys[i]] = Leaf(keys[i], "1")
	}

	assert.Equal(t, MustMarshalCanonical(a), MustMarshalCanonical(b))
	assert.Equal(t, []string{"Mid", "alpha", "beta", "zeta"}, a.InputKeys())
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	b, err := MarshalCanonical(Leaf("a<b>&c", "1"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"a<b>&c"`)
}

func TestMarshalCanonical_NFC(t *testing.T) {
	decomposed := Leaf("Cafe\u0301", "1")
	composed := Leaf("Caf\u00e9", "1")
	assert.Equal(t, MustMarshalCanonical(composed), MustMarshalCanonical(decomposed))
}

func TestMarshalCanonical_LineSeparators(t *testing.T) {
	b, err := MarshalCanonical(Leaf("a\u2028b", `c\u2029d`))
	require.NoError(t, err)
	// the literal separator survives, the escaped backslash stays escaped
	assert.Contains(t, string(b), "\"a\u2028b\"")
	assert.Contains(t, string(b), `"c\\u2029d"`)
}

func TestCompareKeysRFC8785_SupplementaryPlane(t *testing.T) {
	// U+1F600 encodes to surrogates 0xD83D..., which sort before U+FB01 in UTF-16
	// but after it in UTF-8.
	assert.Equal(t, -1, compareKeysRFC8785("\U0001F600", "\uFB01"))
	assert.Equal(t, 1, compareKeysRFC8785("\uFB01", "\U0001F600"))
	assert.Equal(t, 0, compareKeysRFC8785("abc", "abc"))
	assert.Equal(t, -1, compareKeysRFC8785("ab", "abc"))
}

func TestParse_RoundTrip(t *testing.T) {
	f := chain()
	parsed, err := Parse(MustMarshalCanonical(f))
	require.NoError(t, err)
	assert.True(t, Equal(f, parsed))
	assert.Equal(t, f.Signature(), parsed.Signature())
}

func TestParse_AcceptsNonCanonicalOrder(t *testing.T) {
	parsed, err := Parse([]byte(`{"version":"1","type":"T","inputs":{}}`))
	require.NoError(t, err)
	assert.Equal(t, Leaf("T", "1").Signature(), parsed.Signature())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `{`},
		{"missing type", `{"version":"1","inputs":{}}`},
		{"missing version", `{"type":"T","inputs":{}}`},
		{"numeric version", `{"type":"T","version":1,"inputs":{}}`},
		{"unknown field", `{"type":"T","version":"1","inputs":{},"extra":true}`},
		{"bad nested", `{"type":"T","version":"1","inputs":{"A":{"type":"A"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestFormula_JSONEmbedding(t *testing.T) {
	doc := struct {
		Formula Formula `json:"formula"`
	}{Formula: chain()}

	b, err := json.Marshal(doc)
	require.NoError(t, err)

	var back struct {
		Formula Formula `json:"formula"`
	}
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, Equal(doc.Formula, back.Formula))
}

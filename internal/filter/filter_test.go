package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guiraud/gallery-dl/internal/extractor"
)

func mustCompile(t *testing.T, expr string) Predicate {
	t.Helper()
	pred, err := Compile(expr)
	require.NoError(t, err)
	return pred
}

func chapterRec(n float64) *extractor.Record {
	return extractor.RecordFrom("chapter", n)
}

func TestChainedComparisonBoundaries(t *testing.T) {
	pred := mustCompile(t, "10 <= chapter < 20")

	tests := []struct {
		chapter float64
		want    bool
	}{
		{9, false},
		{10, true},
		{19, true},
		{19.5, true},
		{20, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pred(chapterRec(tt.chapter)), "chapter %v", tt.chapter)
	}
}

func TestComparisonOperators(t *testing.T) {
	tests := []struct {
		expr string
		rec  *extractor.Record
		want bool
	}{
		{"chapter == 5", chapterRec(5), true},
		{"chapter != 5", chapterRec(5), false},
		{"chapter > 4", chapterRec(5), true},
		{"chapter >= 5", chapterRec(5), true},
		{"chapter < 5", chapterRec(5), false},
		{`lang == "en"`, extractor.RecordFrom("lang", "en"), true},
		{`lang != 'en'`, extractor.RecordFrom("lang", "fr"), true},
		{`title < "b"`, extractor.RecordFrom("title", "aardvark"), true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, mustCompile(t, tt.expr)(tt.rec))
		})
	}
}

func TestNumericStringComparesNumerically(t *testing.T) {
	// extractors often carry numbers as strings; "9" < "10" must hold
	pred := mustCompile(t, "chapter < 10")
	assert.True(t, pred(extractor.RecordFrom("chapter", "9")))
}

func TestBooleanCombinators(t *testing.T) {
	rec := extractor.RecordFrom("chapter", 5, "lang", "en")

	tests := []struct {
		expr string
		want bool
	}{
		{`chapter > 3 && lang == "en"`, true},
		{`chapter > 9 && lang == "en"`, false},
		{`chapter > 9 || lang == "en"`, true},
		{`!(chapter > 9)`, true},
		{`(chapter > 3 || chapter < 1) && lang == "en"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, mustCompile(t, tt.expr)(rec))
		})
	}
}

func TestMissingFieldMakesComparisonFalse(t *testing.T) {
	rec := extractor.RecordFrom("lang", "en")

	assert.False(t, mustCompile(t, "chapter >= 1")(rec))
	assert.False(t, mustCompile(t, "chapter < 1")(rec))
	// negation of a false comparison is still reachable
	assert.True(t, mustCompile(t, "!(chapter >= 1)")(rec))
}

func TestTruthyOperands(t *testing.T) {
	tests := []struct {
		name string
		expr string
		rec  *extractor.Record
		want bool
	}{
		{"present non-empty string", "title", extractor.RecordFrom("title", "x"), true},
		{"present empty string", "title", extractor.RecordFrom("title", ""), false},
		{"missing field", "title", extractor.NewRecord(), false},
		{"zero number", "chapter", chapterRec(0), false},
		{"non-zero number", "chapter", chapterRec(3), true},
		{"true literal", "true", extractor.NewRecord(), true},
		{"false literal", "false", extractor.NewRecord(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mustCompile(t, tt.expr)(tt.rec))
		})
	}
}

func TestNestedFieldReference(t *testing.T) {
	rec := extractor.RecordFrom("author", map[string]any{"id": 42})
	assert.True(t, mustCompile(t, "author.id == 42")(rec))
}

func TestNegativeNumbers(t *testing.T) {
	pred := mustCompile(t, "offset >= -5")
	assert.True(t, pred(extractor.RecordFrom("offset", -3)))
	assert.False(t, pred(extractor.RecordFrom("offset", -9)))
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"unterminated string", `lang == "en`},
		{"invalid operator", "chapter =< 5"},
		{"missing paren", "(chapter > 5"},
		{"trailing garbage", "chapter > 5 )"},
		{"dangling operator", "chapter >"},
		{"unexpected character", "chapter @ 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.expr)
			assert.Error(t, err)
		})
	}
}

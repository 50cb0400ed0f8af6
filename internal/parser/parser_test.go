package parser

import (
	"bytes"
	"errors"
	"testing"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseFileCSVSemicolonAndBOM(t *testing.T) {
	fsys := afero.NewMemMapFs()
	data := "\ufeffS1;1,5;2\n\n S2 ; 3;4;\n"
	require.NoError(t, afero.WriteFile(fsys, "/in/run.CSV", []byte(data), 0o644))

	recs, err := ParseFile(fsys, "/in/run.CSV")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"S1", "1,5", "2"}, {"S2", "3", "4"}}, recs)
}

func TestParseFileTXT(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/run.txt", []byte("1 2\t3\n\n4,5 ,6\n"), 0o644))

	recs, err := ParseFile(fsys, "/run.txt")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2", "3"}, {"4", "5", "6"}}, recs)
}

func TestParseFileXLSX(t *testing.T) {
	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	require.NoError(t, wb.SetSheetRow(sheet, "A1", &[]any{"Name", "A", "B"}))
	require.NoError(t, wb.SetSheetRow(sheet, "A2", &[]any{"S1", 1.5, 2}))
	require.NoError(t, wb.SetSheetRow(sheet, "A4", &[]any{"S2", 3, 4}))
	var buf bytes.Buffer
	require.NoError(t, wb.Write(&buf))
	require.NoError(t, wb.Close())

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/run.xlsx", buf.Bytes(), 0o644))

	recs, err := ParseFile(fsys, "/run.xlsx")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Name", "A", "B"}, {"S1", "1.5", "2"}, {"S2", "3", "4"}}, recs)
}

func TestParseFileUnsupported(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/run.json", []byte("{}"), 0o644))

	_, err := ParseFile(fsys, "/run.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupported))
	assert.Equal(t, apperr.KindUnsupportedFormat, apperr.KindOf(err))
}

func TestParseLabelsFlattens(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/labels.csv", []byte("a,b\nc\n"), 0o644))

	labels, err := ParseLabels(fsys, "/labels.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, labels)
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, '\t', sniffDelimiter([]byte("a\tb\tc\n")))
	assert.Equal(t, ';', sniffDelimiter([]byte("\n1;2;3")))
	assert.Equal(t, ',', sniffDelimiter([]byte("")))
}

func TestParseNumber(t *testing.T) {
	v, err := ParseNumber("1,5")
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	v, err = ParseNumber(" -2e3 ")
	require.NoError(t, err)
	assert.Equal(t, -2000.0, v)

	_, err = ParseNumber("1,000.5")
	assert.Error(t, err)
	assert.False(t, IsNumeric([]string{"1", "x"}))
}

func TestParseNumberRejectsNonFinite(t *testing.T) {
	for _, cell := range []string{"NaN", "nan", "Inf", "-Inf", "+Infinity", "0x1p-2"} {
		_, err := ParseNumber(cell)
		assert.ErrorIs(t, err, ErrNotFinite, cell)
	}
	assert.True(t, IsNumeric([]string{"1", "NaN", "Inf"}))
}

package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identrisk/internal/verification/imaging"
	"identrisk/internal/verification/imaging/imagingtest"
	"identrisk/internal/verification/models"
)

type stubRecognizer struct {
	lines []Line
	err   error
	calls int
}

func (s *stubRecognizer) Recognize(context.Context, []byte) ([]Line, error) {
	s.calls++
	return s.lines, s.err
}

func ktpLines(conf float64) []Line {
	texts := []string{
		"PROVINSI DKI JAKARTA",
		"KOTA JAKARTA SELATAN",
		"NIK : 3171O12345678901",
		"Nama : BUDI SANTOSO",
		"Tempat/Tgl Lahir : JAKARTA, 17-08-1990",
		"Jenis Kelamin : LAKI-LAKI Gol. Darah : O",
		"Alamat : JL. MERDEKA NO. 1",
		"RT/RW : 001/002",
		"Kel/Desa : GANDARIA UTARA",
		"Kecamatan : KEBAYORAN BARU",
		"Agama : ISLAM",
		"Status Perkawinan : KAWIN",
		"Pekerjaan : KARYAWAN SWASTA",
		"Kewarganegaraan : WNI",
	}
	lines := make([]Line, len(texts))
	for i, t := range texts {
		lines[i] = Line{Text: t, Confidence: conf}
	}
	return lines
}

var validImage = imagingtest.PNG(imagingtest.Textured(40, 25, 1))

func TestExtractFullCard(t *testing.T) {
	rec := &stubRecognizer{lines: ktpLines(0.9)}
	doc, err := New(rec).Extract(context.Background(), validImage)
	require.NoError(t, err)

	want := map[models.FieldName]string{
		models.FieldProvince:      "DKI JAKARTA",
		models.FieldCity:          "KOTA JAKARTA SELATAN",
		models.FieldNIK:           "3171012345678901",
		models.FieldFullName:      "BUDI SANTOSO",
		models.FieldBirthPlace:    "JAKARTA",
		models.FieldBirthDate:     "1990-08-17",
		models.FieldGender:        "LAKI-LAKI",
		models.FieldBloodType:     "O",
		models.FieldAddress:       "JL. MERDEKA NO. 1",
		models.FieldRTRW:          "001/002",
		models.FieldVillage:       "GANDARIA UTARA",
		models.FieldDistrict:      "KEBAYORAN BARU",
		models.FieldReligion:      "ISLAM",
		models.FieldMaritalStatus: "KAWIN",
		models.FieldOccupation:    "KARYAWAN SWASTA",
		models.FieldNationality:   "WNI",
	}
	for name, value := range want {
		got, ok := doc.Value(name)
		assert.True(t, ok, "field %s missing", name)
		assert.Equal(t, value, got, "field %s", name)
	}
	assert.InDelta(t, 0.9, doc.Confidence, 1e-9)
}

func TestExtractMissingFieldsLowerConfidence(t *testing.T) {
	rec := &stubRecognizer{lines: []Line{
		{Text: "NIK : 12345", Confidence: 0.99},
		{Text: "Nama : SITI", Confidence: 0.9},
	}}
	doc, err := New(rec).Extract(context.Background(), validImage)
	require.NoError(t, err)

	_, hasNIK := doc.Value(models.FieldNIK)
	assert.False(t, hasNIK, "malformed NIK is absent, not guessed")

	province := doc.Fields[models.FieldProvince]
	assert.Equal(t, "Unknown", province.Value)
	assert.Equal(t, models.SourceDefaulted, province.Source)
	assert.Equal(t, "UNSPECIFIED", doc.Fields[models.FieldGender].Value)
	assert.Equal(t, "WNI", doc.Fields[models.FieldNationality].Value)
	_, hasOccupation := doc.Value(models.FieldOccupation)
	assert.False(t, hasOccupation)

	assert.InDelta(t, 0.9/9, doc.Confidence, 1e-9)
}

func TestExtractIsIdempotent(t *testing.T) {
	rec := &stubRecognizer{lines: ktpLines(0.8)}
	ex := New(rec)

	first, err := ex.Extract(context.Background(), validImage)
	require.NoError(t, err)
	second, err := ex.Extract(context.Background(), validImage)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtractErrors(t *testing.T) {
	t.Run("undecodable bytes never reach the engine", func(t *testing.T) {
		rec := &stubRecognizer{}
		_, err := New(rec).Extract(context.Background(), []byte("not an image"))
		assert.ErrorIs(t, err, imaging.ErrDecode)
		assert.Zero(t, rec.calls)
	})

	t.Run("engine failure", func(t *testing.T) {
		rec := &stubRecognizer{err: errors.New("gpu lost")}
		_, err := New(rec).Extract(context.Background(), validImage)
		assert.ErrorIs(t, err, ErrEngine)
	})
}

func TestNormalizeNIK(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"3171234567890123", "3171234567890123", true},
		{"3l7I23456789O123", "3171234567890123", true},
		{"3171 2345 6789 0123", "3171234567890123", true},
		{"317123456789012", "", false},
		{"31712345678901234", "", false},
		{"3171X34567890123", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeNIK(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestDefaultPolicyKeepsRecognizedValues(t *testing.T) {
	fields := map[models.FieldName]models.ExtractedField{
		models.FieldProvince: {Value: "JAWA BARAT", Confidence: 0.8, Source: models.SourceRecognized},
	}
	applied := KTPDefaults().Apply(fields)

	assert.Equal(t, "JAWA BARAT", fields[models.FieldProvince].Value)
	assert.NotContains(t, applied, models.FieldProvince)
	assert.Contains(t, applied, models.FieldCity)
}

package extractor

import (
	"regexp"
	"strings"
	"time"

	"identrisk/internal/verification/models"
)

var (
	nikPattern       = regexp.MustCompile(`^\d{16}$`)
	bloodTypeSplit   = regexp.MustCompile(`(?i)\s*gol\.?\s*darah\s*:?\s*`)
	birthDatePattern = regexp.MustCompile(`(\d{1,2})[-/.](\d{1,2})[-/.](\d{4})`)
)

type labelRule struct {
	field   models.FieldName
	pattern *regexp.Regexp
}

// Order matters: more specific labels come first.
var labelRules = []labelRule{
	{models.FieldNIK, regexp.MustCompile(`(?i)^nik\b`)},
	{models.FieldFullName, regexp.MustCompile(`(?i)^nama\b`)},
	{models.FieldBirthPlace, regexp.MustCompile(`(?i)^tempat\s*/?\s*tgl\.?\s*lahir\b`)},
	{models.FieldGender, regexp.MustCompile(`(?i)^jenis\s*kelamin\b`)},
	{models.FieldAddress, regexp.MustCompile(`(?i)^alamat\b`)},
	{models.FieldRTRW, regexp.MustCompile(`(?i)^rt\s*/\s*rw\b`)},
	{models.FieldVillage, regexp.MustCompile(`(?i)^kel\s*/\s*desa\b`)},
	{models.FieldDistrict, regexp.MustCompile(`(?i)^kecamatan\b`)},
	{models.FieldReligion, regexp.MustCompile(`(?i)^agama\b`)},
	{models.FieldMaritalStatus, regexp.MustCompile(`(?i)^status\s*perkawinan\b`)},
	{models.FieldOccupation, regexp.MustCompile(`(?i)^pekerjaan\b`)},
	{models.FieldNationality, regexp.MustCompile(`(?i)^kewarganegaraan\b`)},
}

var (
	provincePrefix = regexp.MustCompile(`(?i)^provinsi\s+`)
	cityPrefix     = regexp.MustCompile(`(?i)^(kota|kabupaten)\s+`)
)

// ParseKTP maps recognised lines to fields. Fields whose value cannot be read
// are left out of the map.
func ParseKTP(lines []Line) map[models.FieldName]models.ExtractedField {
	fields := make(map[models.FieldName]models.ExtractedField)
	set := func(name models.FieldName, value string, conf float64) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if _, exists := fields[name]; exists {
			return
		}
		fields[name] = models.ExtractedField{Value: value, Confidence: clampConfidence(conf), Source: models.SourceRecognized}
	}

	for _, line := range lines {
		text := strings.TrimSpace(line.Text)
		if text == "" {
			continue
		}
		if loc := provincePrefix.FindStringIndex(text); loc != nil {
			set(models.FieldProvince, strings.ToUpper(text[loc[1]:]), line.Confidence)
			continue
		}
		if cityPrefix.MatchString(text) && !strings.Contains(text, ":") {
			set(models.FieldCity, strings.ToUpper(text), line.Confidence)
			continue
		}

		for _, rule := range labelRules {
			loc := rule.pattern.FindStringIndex(text)
			if loc == nil {
				continue
			}
			value := labelValue(text[loc[1]:])
			switch rule.field {
			case models.FieldNIK:
				if nik, ok := NormalizeNIK(value); ok {
					set(models.FieldNIK, nik, line.Confidence)
				}
			case models.FieldBirthPlace:
				place, date := splitBirth(value)
				set(models.FieldBirthPlace, place, line.Confidence)
				set(models.FieldBirthDate, date, line.Confidence)
			case models.FieldGender:
				parts := bloodTypeSplit.Split(value, 2)
				set(models.FieldGender, normalizeGender(parts[0]), line.Confidence)
				if len(parts) == 2 {
					set(models.FieldBloodType, strings.Trim(parts[1], " -"), line.Confidence)
				}
			default:
				set(rule.field, value, line.Confidence)
			}
			break
		}
	}
	return fields
}

// NormalizeNIK applies common OCR digit confusions and checks the 16-digit format.
func NormalizeNIK(raw string) (string, bool) {
	replacer := strings.NewReplacer(
		"O", "0", "o", "0", "D", "0",
		"I", "1", "l", "1", "|", "1",
		"S", "5", "B", "8", "Z", "2",
		" ", "", "-", "", ".", "",
	)
	nik := replacer.Replace(strings.TrimSpace(raw))
	if !nikPattern.MatchString(nik) {
		return "", false
	}
	return nik, true
}

func labelValue(rest string) string {
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, ":")
	return strings.TrimSpace(rest)
}

// splitBirth parses "JAKARTA, 17-08-1990" into the place and an ISO date.
// An unreadable date is dropped rather than guessed.
func splitBirth(value string) (place, isoDate string) {
	place = value
	if idx := strings.Index(value, ","); idx >= 0 {
		place = value[:idx]
	}
	m := birthDatePattern.FindStringSubmatch(value)
	if m == nil {
		return strings.TrimSpace(place), ""
	}
	if idx := strings.Index(value, m[0]); idx >= 0 && !strings.Contains(value, ",") {
		place = value[:idx]
	}
	t, err := time.Parse("2-1-2006", m[1]+"-"+m[2]+"-"+m[3])
	if err != nil {
		return strings.TrimSpace(place), ""
	}
	return strings.TrimSpace(place), t.Format("2006-01-02")
}

func normalizeGender(v string) string {
	up := strings.ToUpper(strings.TrimSpace(v))
	switch {
	case strings.HasPrefix(up, "LAKI"):
		return "LAKI-LAKI"
	case strings.HasPrefix(up, "PEREMPUAN"), strings.HasPrefix(up, "WANITA"):
		return "PEREMPUAN"
	default:
		return ""
	}
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

package extractor

import "identrisk/internal/verification/models"

// DefaultPolicy fills fields the document did not yield. Defaulted fields carry
// SourceDefaulted and zero confidence, so they never raise the document score.
type DefaultPolicy struct {
	Region      string
	Gender      string
	Nationality string
}

// KTPDefaults is the policy for Indonesian identity cards.
func KTPDefaults() DefaultPolicy {
	return DefaultPolicy{
		Region:      "Unknown",
		Gender:      "UNSPECIFIED",
		Nationality: "WNI",
	}
}

var regionFields = []models.FieldName{
	models.FieldProvince, models.FieldCity, models.FieldDistrict, models.FieldVillage,
}

// Apply sets the defaults on missing fields and returns which ones it set.
// Marital status and occupation have no default and stay absent.
func (p DefaultPolicy) Apply(fields map[models.FieldName]models.ExtractedField) []models.FieldName {
	var applied []models.FieldName
	fill := func(name models.FieldName, value string) {
		if value == "" {
			return
		}
		if _, ok := fields[name]; ok {
			return
		}
		fields[name] = models.ExtractedField{Value: value, Source: models.SourceDefaulted}
		applied = append(applied, name)
	}
	for _, f := range regionFields {
		fill(f, p.Region)
	}
	fill(models.FieldGender, p.Gender)
	fill(models.FieldNationality, p.Nationality)
	return applied
}

package models

import "time"

// FieldName is a KTP label.
type FieldName string

const (
	FieldNIK           FieldName = "nik"
	FieldFullName      FieldName = "name"
	FieldBirthPlace    FieldName = "birthPlace"
	FieldBirthDate     FieldName = "birthDate"
	FieldGender        FieldName = "gender"
	FieldBloodType     FieldName = "bloodType"
	FieldAddress       FieldName = "address"
	FieldRTRW          FieldName = "rtRw"
	FieldVillage       FieldName = "village"
	FieldDistrict      FieldName = "district"
	FieldCity          FieldName = "city"
	FieldProvince      FieldName = "province"
	FieldReligion      FieldName = "religion"
	FieldMaritalStatus FieldName = "maritalStatus"
	FieldOccupation    FieldName = "occupation"
	FieldNationality   FieldName = "nationality"
)

// ScoredFields contribute to the document confidence. Absent or defaulted ones count 0.
var ScoredFields = []FieldName{
	FieldNIK, FieldFullName, FieldBirthDate, FieldGender, FieldAddress,
	FieldProvince, FieldCity, FieldDistrict, FieldVillage,
}

// FieldSource records where a field value came from.
type FieldSource string

const (
	SourceRecognized FieldSource = "recognized"
	SourceDefaulted  FieldSource = "defaulted"
)

// ExtractedField is one field with its provenance.
type ExtractedField struct {
	Value      string      `json:"value"`
	Confidence float64     `json:"confidence"`
	Source     FieldSource `json:"source"`
}

// DocumentExtraction is the field extractor output. A field missing from Fields
// was not read and had no default.
type DocumentExtraction struct {
	Fields     map[FieldName]ExtractedField `json:"fields"`
	Confidence float64                      `json:"confidence"`
	ImageKey   string                       `json:"imageKey,omitempty"`
}

// Value returns a field value and whether it is present.
func (d *DocumentExtraction) Value(name FieldName) (string, bool) {
	if d == nil {
		return "", false
	}
	f, ok := d.Fields[name]
	return f.Value, ok
}

// NIK returns the recognised id number, or "".
func (d *DocumentExtraction) NIK() string {
	v, _ := d.Value(FieldNIK)
	return v
}

// LivenessResult is the liveness detector output.
type LivenessResult struct {
	IsLive       bool    `json:"isLive"`
	FaceDetected bool    `json:"faceDetected"`
	Confidence   float64 `json:"confidence"`
	QualityScore float64 `json:"qualityScore"`
}

// MatchOutcome tags the face comparison result.
type MatchOutcome string

const (
	MatchCompared        MatchOutcome = "COMPARED"
	MatchNoFace          MatchOutcome = "NO_FACE"
	MatchDocumentMissing MatchOutcome = "DOCUMENT_IMAGE_MISSING"
)

// FaceMatchResult is the face matcher output.
type FaceMatchResult struct {
	Outcome           MatchOutcome `json:"outcome"`
	IsMatch           bool         `json:"isMatch"`
	Similarity        float64      `json:"similarity"`
	Threshold         float64      `json:"threshold"`
	DocumentFaceFound bool         `json:"documentFaceFound"`
	SelfieFaceFound   bool         `json:"selfieFaceFound"`
}

// RegistryStatus is the registry answer class.
type RegistryStatus string

const (
	RegistryActive        RegistryStatus = "ACTIVE"
	RegistryInactive      RegistryStatus = "INACTIVE"
	RegistryDeceased      RegistryStatus = "DECEASED"
	RegistryNotFound      RegistryStatus = "NOT_FOUND"
	RegistryInvalidFormat RegistryStatus = "INVALID_FORMAT"
	RegistryError         RegistryStatus = "ERROR"
)

// RegistryResult is the registry verifier output. ERROR means the registry could
// not be consulted; it is never a valid result.
type RegistryResult struct {
	IDNumber   string         `json:"idNumber"`
	IsValid    bool           `json:"isValid"`
	Name       string         `json:"name,omitempty"`
	BirthDate  string         `json:"birthDate,omitempty"`
	Gender     string         `json:"gender,omitempty"`
	Status     RegistryStatus `json:"status"`
	MatchScore *float64       `json:"matchScore,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	CheckedAt  time.Time      `json:"checkedAt"`
}

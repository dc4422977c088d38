package report

import (
	"errors"
	"fmt"

	"regvil_tracker_backend/platform/apperr"
	"regvil_tracker_backend/platform/validator"

	playground "github.com/go-playground/validator/v10"
)

// FlatRecord is one row of the seeding input: prefill content in flat
// column form, as exported from the campaign spreadsheet.
type FlatRecord struct {
	ReportID            string `json:"ReportId" validate:"required,uuid4"`
	DepartmentName      string `json:"AnsvarligDepartementNavn" validate:"required"`
	DepartmentOrgNumber string `json:"AnsvarligDepartementOrganisasjonsnummer" validate:"required,orgnum"`
	CompanyName         string `json:"AnsvarligVirksomhetNavn" validate:"required"`
	CompanyOrgNumber    string `json:"AnsvarligVirksomhetOrganisasjonsnummer" validate:"required,orgnum"`
	ContactName         string `json:"KontaktpersonNavn" validate:"required"`
	ContactEmail        string `json:"KontaktpersonEpost" validate:"required,email"`
	ContactPhone        string `json:"KontaktpersonTelefon" validate:"omitempty,nophone"`
	MeasureNumber       string `json:"TiltakNummer" validate:"required"`
	MeasureText         string `json:"TiltakTekst" validate:"required"`
	IsSubMeasure        bool   `json:"ErDeltiltak"`
	ChapterNumber       string `json:"KapittelNummer" validate:"required"`
	ChapterText         string `json:"KapittelTekst"`
	GoalNumber          string `json:"MaalNummer" validate:"required"`
	GoalText            string `json:"MaalTekst"`
}

// ValidateRecord checks a flat record and returns a validation error
// naming the offending fields.
func ValidateRecord(val *validator.Validator, rec FlatRecord) error {
	err := val.Struct(rec)
	if err == nil {
		return nil
	}

	var verrs playground.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
		return apperr.Validation("invalid prefill record").
			WithOp("report.ValidateRecord").
			WithDetails(fields)
	}
	return apperr.Wrap(apperr.KindValidation, "invalid prefill record", err).WithOp("report.ValidateRecord")
}

// BuildPrefill converts a validated flat record into the nested prefill
// structure the form apps expect.
func BuildPrefill(rec FlatRecord) Prefill {
	return Prefill{
		ReportID: rec.ReportID,
		AnsvarligDepartement: Unit{
			Navn:                rec.DepartmentName,
			Organisasjonsnummer: rec.DepartmentOrgNumber,
		},
		AnsvarligVirksomhet: Unit{
			Navn:                rec.CompanyName,
			Organisasjonsnummer: rec.CompanyOrgNumber,
		},
		Kontaktperson: Contact{
			Navn:          rec.ContactName,
			EPostadresse:  rec.ContactEmail,
			Telefonnummer: rec.ContactPhone,
		},
		Tiltak: Measure{
			Nummer:      rec.MeasureNumber,
			Tekst:       rec.MeasureText,
			ErDeltiltak: rec.IsSubMeasure,
		},
		Kapittel: Reference{
			Nummer: rec.ChapterNumber,
			Tekst:  rec.ChapterText,
		},
		Maal: Reference{
			Nummer: rec.GoalNumber,
			Tekst:  rec.GoalText,
		},
	}
}

package report

import (
	"testing"

	"regvil_tracker_backend/platform/apperr"
	"regvil_tracker_backend/platform/validator"
)

func validRecord() FlatRecord {
	return FlatRecord{
		ReportID:            "7f6f9ed5-53e8-4e8f-95b2-c0a1c9a4d8a3",
		DepartmentName:      "Digitaliseringsdepartementet",
		DepartmentOrgNumber: "991825827",
		CompanyName:         "Testvirksomhet AS",
		CompanyOrgNumber:    "310075728",
		ContactName:         "Kari Nordmann",
		ContactEmail:        "kari.nordmann@example.no",
		ContactPhone:        "+47 99 88 77 66",
		MeasureNumber:       "T-12",
		MeasureText:         "Felles datakatalog",
		ChapterNumber:       "4",
		GoalNumber:          "4.2",
	}
}

func TestValidateRecordAccepts(t *testing.T) {
	val := validator.New()
	if err := ValidateRecord(val, validRecord()); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}
}

func TestValidateRecordRejections(t *testing.T) {
	val := validator.New()

	tests := []struct {
		name   string
		mutate func(*FlatRecord)
	}{
		{"bad org number control digit", func(r *FlatRecord) { r.CompanyOrgNumber = "310075729" }},
		{"org number too short", func(r *FlatRecord) { r.CompanyOrgNumber = "12345678" }},
		{"bad email", func(r *FlatRecord) { r.ContactEmail = "not-an-address" }},
		{"bad phone", func(r *FlatRecord) { r.ContactPhone = "12" }},
		{"bad report id", func(r *FlatRecord) { r.ReportID = "not-a-uuid" }},
		{"missing contact name", func(r *FlatRecord) { r.ContactName = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(&rec)
			err := ValidateRecord(val, rec)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation kind, got %v", err)
			}
		})
	}
}

func TestBuildPrefill(t *testing.T) {
	rec := validRecord()
	p := BuildPrefill(rec)

	if p.ReportID != rec.ReportID {
		t.Fatalf("report id not carried over")
	}
	if p.AnsvarligVirksomhet.Organisasjonsnummer != "310075728" {
		t.Fatalf("company org number not carried over")
	}
	if p.Kontaktperson.EPostadresse != rec.ContactEmail {
		t.Fatalf("contact email not carried over")
	}
	if p.Tiltak.Nummer != "T-12" || p.Maal.Nummer != "4.2" {
		t.Fatalf("measure references not carried over")
	}
}

func TestPickDataModelElement(t *testing.T) {
	elems := []DataElement{
		{ID: "a", DataType: "ref-data-as-pdf"},
		{ID: "b", DataType: "DataModel", CreatedBy: "system", LastChangedBy: "user-17"},
	}
	elem, err := PickDataModelElement(elems)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elem.ID != "b" {
		t.Fatalf("picked wrong element %q", elem.ID)
	}
	if !elem.Answered() {
		t.Fatalf("element changed by another actor should count as answered")
	}

	if _, err := PickDataModelElement([]DataElement{{DataType: "attachment"}}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

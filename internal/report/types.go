// Package report holds the typed records exchanged with the reporting
// platform: the survey data model, prefill content, and instance metadata.
package report

import (
	"strings"

	"regvil_tracker_backend/platform/apperr"
)

// ReportData is the accumulated survey payload. Each stage fills its own
// section; earlier sections ride along unchanged. JSON field names follow
// the upstream data model.
type ReportData struct {
	Prefill *Prefill        `json:"Prefill,omitempty"`
	Initial *InitialSection `json:"Initiell,omitempty"`
	Startup *StartupSection `json:"Oppstart,omitempty"`
	Status  *StatusSection  `json:"Status,omitempty"`
	Final   *FinalSection   `json:"Slutt,omitempty"`
}

// InitialSection is filled by the initial-stage form.
type InitialSection struct {
	ErTiltaketPaabegynt   bool   `json:"ErTiltaketPaabegynt"`
	DatoPaabegynt         string `json:"DatoPaabegynt,omitempty"`
	VetOppstartsdato      bool   `json:"VetOppstartsdato"`
	DatoForventetOppstart string `json:"DatoForventetOppstart,omitempty"`
}

// StartupSection is filled by the startup-stage form.
type StartupSection struct {
	StemmerTidligereInfo bool   `json:"StemmerTidligereInfo"`
	DatoOppstart         string `json:"DatoOppstart,omitempty"`
	ForventetSluttdato   string `json:"ForventetSluttdato,omitempty"`
}

// StatusSection is filled by the recurring status form.
type StatusSection struct {
	ErTiltaketAvsluttet bool   `json:"ErTiltaketAvsluttet"`
	ForventetSluttdato  string `json:"ForventetSluttdato,omitempty"`
}

// FinalSection is filled by the final form.
type FinalSection struct {
	DatoAvsluttet  string `json:"DatoAvsluttet,omitempty"`
	ErMaalOppnaadd bool   `json:"ErMaalOppnaadd"`
}

// Prefill is the seeded content every stage's form starts from. It
// identifies the measure being reported on and who to contact about it.
type Prefill struct {
	ReportID             string    `json:"ReportId"`
	AnsvarligDepartement Unit      `json:"AnsvarligDepartement"`
	AnsvarligVirksomhet  Unit      `json:"AnsvarligVirksomhet"`
	Kontaktperson        Contact   `json:"Kontaktperson"`
	Tiltak               Measure   `json:"Tiltak"`
	Kapittel             Reference `json:"Kapittel"`
	Maal                 Reference `json:"Maal"`
}

// Unit is a named organisation with its registry number.
type Unit struct {
	Navn                string `json:"Navn"`
	Organisasjonsnummer string `json:"Organisasjonsnummer"`
}

// Contact is the person notified about pending forms.
type Contact struct {
	Navn          string `json:"Navn"`
	EPostadresse  string `json:"EPostadresse"`
	Telefonnummer string `json:"Telefonnummer,omitempty"`
}

// Measure identifies the digitalisation measure under report.
type Measure struct {
	Nummer      string `json:"Nummer"`
	Tekst       string `json:"Tekst"`
	ErDeltiltak bool   `json:"ErDeltiltak"`
}

// Reference is a numbered reference into the governing plan document.
type Reference struct {
	Nummer string `json:"Nummer"`
	Tekst  string `json:"Tekst,omitempty"`
}

// PrefillDocument is the data model payload posted when instantiating a
// new stage: the prefill carried forward, nothing else filled in yet.
type PrefillDocument struct {
	Prefill Prefill `json:"Prefill"`
}

// Instance is the platform's instance metadata record.
type Instance struct {
	ID            string         `json:"id"` // "{partyId}/{instanceGuid}"
	AppID         string         `json:"appId"`
	Org           string         `json:"org"`
	InstanceOwner Owner          `json:"instanceOwner"`
	VisibleAfter  string         `json:"visibleAfter,omitempty"`
	DueBefore     string         `json:"dueBefore,omitempty"`
	Created       string         `json:"created"`
	CreatedBy     string         `json:"createdBy"`
	LastChanged   string         `json:"lastChanged"`
	LastChangedBy string         `json:"lastChangedBy"`
	Status        InstanceStatus `json:"status"`
	Data          []DataElement  `json:"data"`
}

// IDParts splits the combined instance id into party id and instance guid.
func (i Instance) IDParts() (partyID, instanceGUID string) {
	if idx := strings.IndexByte(i.ID, '/'); idx >= 0 {
		return i.ID[:idx], i.ID[idx+1:]
	}
	return "", i.ID
}

// Owner is the instance owner block.
type Owner struct {
	PartyID            string `json:"partyId"`
	OrganisationNumber string `json:"organisationNumber"`
	PersonNumber       string `json:"personNumber,omitempty"`
	Party              Party  `json:"party"`
}

// Party carries the display name of the owning party.
type Party struct {
	Name string `json:"name"`
}

// InstanceStatus carries the platform's lifecycle flags.
type InstanceStatus struct {
	IsArchived    bool   `json:"isArchived"`
	IsSoftDeleted bool   `json:"isSoftDeleted"`
	IsHardDeleted bool   `json:"isHardDeleted"`
	Archived      string `json:"archived,omitempty"`
}

// DataElement is one attached data blob on an instance.
type DataElement struct {
	ID            string   `json:"id"`
	DataType      string   `json:"dataType"`
	ContentType   string   `json:"contentType"`
	Created       string   `json:"created"`
	CreatedBy     string   `json:"createdBy"`
	LastChanged   string   `json:"lastChanged"`
	LastChangedBy string   `json:"lastChangedBy"`
	Tags          []string `json:"tags"`
}

// Answered reports whether the form behind this element was edited by
// someone other than the service account that created it.
func (e DataElement) Answered() bool {
	return e.LastChangedBy != "" && e.LastChangedBy != e.CreatedBy
}

// PickDataModelElement finds the survey data model element among an
// instance's attachments. The platform names the type "model" or
// "DataModel" depending on app version.
func PickDataModelElement(elems []DataElement) (DataElement, error) {
	for _, e := range elems {
		if strings.EqualFold(e.DataType, "model") || strings.EqualFold(e.DataType, "datamodel") {
			return e, nil
		}
	}
	return DataElement{}, apperr.NotFound("instance has no data model element").WithOp("report.PickDataModelElement")
}

package core

import "context"

// PatientIdentifierSystem namespaces patient identifiers in FHIR resources.
const PatientIdentifierSystem = "http://cocaresync.za/patient-id"

// FHIRSearchLimit caps a FHIR Patient search.
const FHIRSearchLimit = 100

// FHIR R4 shapes, limited to the Patient fields this service exposes.
type (
	FHIRBundle struct {
		ResourceType string            `json:"resourceType"`
		ID           string            `json:"id"`
		Type         string            `json:"type"`
		Total        int               `json:"total"`
		Entry        []FHIRBundleEntry `json:"entry"`
	}

	FHIRBundleEntry struct {
		Resource FHIRPatient `json:"resource"`
	}

	FHIRPatient struct {
		ResourceType string           `json:"resourceType"`
		ID           string           `json:"id"`
		Identifier   []FHIRIdentifier `json:"identifier"`
		Name         []FHIRHumanName  `json:"name"`
		Gender       string           `json:"gender"`
		BirthDate    string           `json:"birthDate"`
		Telecom      []FHIRContact    `json:"telecom"`
		Address      []FHIRAddress    `json:"address"`
	}

	FHIRIdentifier struct {
		System string `json:"system"`
		Value  string `json:"value"`
	}

	FHIRHumanName struct {
		Family string   `json:"family"`
		Given  []string `json:"given"`
	}

	FHIRContact struct {
		System string `json:"system"`
		Value  string `json:"value"`
	}

	FHIRAddress struct {
		Text     string `json:"text"`
		State    string `json:"state,omitempty"`
		District string `json:"district,omitempty"`
	}
)

// FHIRPatients returns up to FHIRSearchLimit active patients as a searchset bundle.
func (s *Service) FHIRPatients(ctx context.Context) (*FHIRBundle, error) {
	patients, err := s.store.ListPatients(ctx, PatientFilter{Limit: FHIRSearchLimit})
	if err != nil {
		return nil, err
	}

	bundle := &FHIRBundle{
		ResourceType: "Bundle",
		ID:           "patient-search-results",
		Type:         "searchset",
		Total:        len(patients),
		Entry:        make([]FHIRBundleEntry, 0, len(patients)),
	}
	for _, p := range patients {
		bundle.Entry = append(bundle.Entry, FHIRBundleEntry{Resource: toFHIRPatient(p)})
	}
	return bundle, nil
}

func toFHIRPatient(p Patient) FHIRPatient {
	r := FHIRPatient{
		ResourceType: "Patient",
		ID:           p.ID.String(),
		Identifier:   []FHIRIdentifier{{System: PatientIdentifierSystem, Value: p.PatientID}},
		Name:         []FHIRHumanName{{Family: p.LastName, Given: []string{p.FirstName}}},
		Gender:       p.Gender,
		BirthDate:    p.DateOfBirth.String(),
		Telecom:      []FHIRContact{},
		Address:      []FHIRAddress{},
	}
	if r.Gender != "male" && r.Gender != "female" {
		r.Gender = "other"
	}
	if p.PhoneNumber != "" {
		r.Telecom = append(r.Telecom, FHIRContact{System: "phone", Value: p.PhoneNumber})
	}
	if p.Address != "" {
		r.Address = append(r.Address, FHIRAddress{Text: p.Address, State: p.Province, District: p.District})
	}
	return r
}

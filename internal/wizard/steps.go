package wizard

import (
	"fmt"
	"regexp"
	"strconv"
)

// Step indices of the patient access form
const (
	StepDisclaimer = iota
	StepPhysician
	StepDemographics
	StepDiagnostics
	StepTreatment
	StepDeclaration

	StepCount
)

// Field keys read by visibility predicates and submission validation
const (
	FieldTCellDiagnosis = "tcell_diagnosis"
	FieldPTCLSubtype    = "ptcl_subtype"
	FieldCTCLSubtype    = "ctcl_subtype"
	FieldNumTherapies   = "num_therapies"
	FieldPrevTransplant = "prev_transplant"
	FieldAgreeDecl      = "agree_decl"
	FieldPhysSignature  = "phys_signature"
	FieldSignDate       = "sign_date"
	FieldPhysicianEmail = "phys_email"
	FieldSpecimensAvail = "specimens_avail"
	FieldCytogenetics   = "cytogenetics"
)

const (
	otherOption          = "Other"
	yesOption            = "Yes"
	emailFormatMessage   = "Please enter a valid email address."
	diagnosisPTCL        = "PTCL"
	diagnosisCTCL        = "CTCL"
	transplantAutologous = "Autologous"
	transplantAllogenic  = "Allogenic"
)

// StepDefinition is one view of the wizard.
type StepDefinition struct {
	Index   int
	Section string
	Title   string
	Fields  []FieldDefinition
	// Render gates the whole step; nil means always rendered
	Render Predicate
}

// Field looks up a field of the step by key
func (s StepDefinition) Field(key string) (FieldDefinition, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

var emailPattern = regexp.MustCompile(`[^@]+@[^@]+\.[^@]+`)

func equals(key, want string) Predicate {
	return func(a AnswerSet) bool { return a.Text(key) == want }
}

func oneOf(key string, want ...string) Predicate {
	return func(a AnswerSet) bool {
		got := a.Text(key)
		for _, w := range want {
			if got == w {
				return true
			}
		}
		return false
	}
}

func selected(key, item string) Predicate {
	return func(a AnswerSet) bool { return a[key].Contains(item) }
}

func all(preds ...Predicate) Predicate {
	return func(a AnswerSet) bool {
		for _, p := range preds {
			if !p(a) {
				return false
			}
		}
		return true
	}
}

// therapyLines returns the declared number of prior systemic therapies, 0 when unset
func therapyLines(a AnswerSet) int {
	n, err := strconv.Atoi(a.Text(FieldNumTherapies))
	if err != nil {
		return 0
	}
	return n
}

func atLeastTherapies(line int) Predicate {
	return func(a AnswerSet) bool { return therapyLines(a) >= line }
}

func adviseEmail(v Value) string {
	s, _ := v.AsText()
	if s != "" && !emailPattern.MatchString(s) {
		return emailFormatMessage
	}
	return ""
}

func text(key, label string) FieldDefinition {
	return FieldDefinition{Key: key, Label: label, Kind: FieldText}
}

func choice(key, label string, options ...string) FieldDefinition {
	return FieldDefinition{Key: key, Label: label, Kind: FieldSingleChoice, Domain: Domain{Options: options}}
}

func multi(key, label string, options ...string) FieldDefinition {
	return FieldDefinition{Key: key, Label: label, Kind: FieldMultiChoice, Domain: Domain{Options: options}}
}

func intRange(key, label string, lo, hi int) FieldDefinition {
	return FieldDefinition{Key: key, Label: label, Kind: FieldIntRange, Domain: Domain{Min: lo, Max: hi}}
}

func yearRange(key, label string, from int) FieldDefinition {
	return FieldDefinition{Key: key, Label: label, Kind: FieldIntRange, Domain: Domain{Min: from, MaxCurrentYear: true}}
}

func required(f FieldDefinition) FieldDefinition {
	f.Required = true
	return f
}

func when(p Predicate, f FieldDefinition) FieldDefinition {
	f.Visible = p
	return f
}

func therapyBlock(line int, ordinal string) []FieldDefinition {
	visible := atLeastTherapies(line)
	regimen := "Type of therapy"
	if line == 1 {
		regimen = "Type of therapy (regimen)"
	}
	prefix := fmt.Sprintf("therapy%d_", line)
	return []FieldDefinition{
		when(visible, text(prefix+"type", ordinal+" Line Therapy: "+regimen)),
		when(visible, intRange(prefix+"cycles", ordinal+" Line Therapy: Number of cycles", 1, 20)),
		when(visible, choice(prefix+"outcome", ordinal+" Line Therapy: Outcome", "CR", "PR", "SD", "PD")),
		when(visible, intRange(prefix+"duration", ordinal+" Line Therapy: Duration of therapy (months)", 1, 60)),
	}
}

// PatientAccessSteps returns the step table of the Belinostat & Pralatrexate
// MAP patient access form.
func PatientAccessSteps() []StepDefinition {
	emailField := text(FieldPhysicianEmail, "Email Address")
	emailField.Advise = adviseEmail

	ptcl := equals(FieldTCellDiagnosis, diagnosisPTCL)
	ctcl := equals(FieldTCellDiagnosis, diagnosisCTCL)

	treatment := []FieldDefinition{
		required(choice(FieldNumTherapies, "Number of Prior Systemic Therapies", "0", "1", "2", "3")),
	}
	treatment = append(treatment, therapyBlock(1, "1st")...)
	treatment = append(treatment, therapyBlock(2, "2nd")...)
	treatment = append(treatment, therapyBlock(3, "3rd")...)
	treatment = append(treatment,
		required(choice(FieldPrevTransplant, "Previous Stem Cell Transplantation?", transplantAutologous, transplantAllogenic, "No")),
		when(equals(FieldPrevTransplant, transplantAutologous), text("auto_regimen", "Autologous Transplant – Conditioning Regimen")),
		when(equals(FieldPrevTransplant, transplantAllogenic), text("allo_regimen", "Allogenic Transplant – Conditioning Regimen")),
		when(equals(FieldPrevTransplant, transplantAllogenic), text("allo_bridging", "Allogenic Transplant – Bridging Therapy")),
	)

	return []StepDefinition{
		{
			Index:   StepDisclaimer,
			Section: "Disclaimer",
			Title:   "Are you a Healthcare Professional (HCP)?",
		},
		{
			Index:   StepPhysician,
			Section: "Section A",
			Title:   "Prescribing Physician Information",
			Fields: []FieldDefinition{
				choice("phys_country", "Country", "Switzerland", "France", "Germany", "United Kingdom"),
				text("phys_name", "Physician Name"),
				emailField,
				text("phys_hospital", "Hospital/Treatment Center"),
			},
		},
		{
			Index:   StepDemographics,
			Section: "Section B",
			Title:   "Patient Information – Demographics & Clinical Characteristics",
			Fields: []FieldDefinition{
				required(choice("patient_sex", "Sex", "Male", "Female")),
				required(yearRange("birth_year", "Birth Year", 1920)),
				required(intRange("height", "Height (cm)", 100, 220)),
				required(intRange("weight", "Weight (kg)", 20, 200)),
				required(yearRange("diag_year", "Initial Diagnosis Year", 1950)),
				required(choice(FieldTCellDiagnosis, "Diagnosis of T-Cell Lymphoma", diagnosisPTCL, diagnosisCTCL)),
				when(ptcl, required(choice(FieldPTCLSubtype, "Subtype (PTCL)", "PTCL-NOS", "AITL", "ALCL", "Extra-nodal", otherOption))),
				when(all(ptcl, oneOf(FieldPTCLSubtype, "Extra-nodal", otherOption)), text("ptcl_extra_other", "Specify subtype (PTCL)")),
				when(ctcl, required(choice(FieldCTCLSubtype, "Subtype (CTCL)", "Mycosis Fungoides", "Sezary Syndrome", otherOption))),
				when(all(ctcl, equals(FieldCTCLSubtype, otherOption)), text("ctcl_other", "Specify subtype (CTCL)")),
			},
		},
		{
			Index:   StepDiagnostics,
			Section: "Section C",
			Title:   "Patient Information – Diagnostic Algorithm",
			Fields: []FieldDefinition{
				{Key: "time_to_diagnosis", Label: "Time to Diagnosis", Kind: FieldIntRange, Domain: Domain{Min: 0, Unbounded: true}},
				choice("time_to_diagnosis_unit", "Unit", "weeks", "months"),
				required(multi("diag_tests", "Diagnostic Tests Used", "Flow Cytometry", "Genetic Testing", "Immunohistochemistry", otherOption)),
				when(selected("diag_tests", otherOption), text("diag_test_other_text", "Other test")),
				multi("specimen_type", "Types of Specimens Used", "Bone Marrow", "Whole Blood", "Biopsy", otherOption),
				when(selected("specimen_type", otherOption), text("specimen_other_text", "Other specimen")),
				multi("biomarkers", "Biomarkers Considered",
					"Immunophenotypic Markers", "Genetic Markers", "Transcription Factors", "Serum Markers",
					"Metabolic Markers", "Cell Proliferation Markers", "EBV", "HIV", "HTLV-1", "TFH Markers", otherOption),
				when(selected("biomarkers", otherOption), text("biom_other_text", "Other biomarkers")),
				choice(FieldCytogenetics, "Cytogenetic Abnormalities?", yesOption, "No"),
				when(equals(FieldCytogenetics, yesOption), text("cytogenetic_text", "If yes, specify")),
				choice(FieldSpecimensAvail, "Biological Specimens Available for research?", yesOption, "No"),
				when(equals(FieldSpecimensAvail, yesOption), multi("specimen_available_type", "Available Specimens", "FFPE", "Frozen Tissue", otherOption)),
				when(all(equals(FieldSpecimensAvail, yesOption), selected("specimen_available_type", otherOption)),
					text("spec_avail_other_text", "Other specimen type")),
			},
		},
		{
			Index:   StepTreatment,
			Section: "Section D",
			Title:   "Patient Information – Treatment Algorithm",
			Fields:  treatment,
		},
		{
			Index:   StepDeclaration,
			Section: "Sections E & F",
			Title:   "Data Privacy Disclaimer & Physician Declaration",
			Fields: []FieldDefinition{
				required(FieldDefinition{Key: FieldAgreeDecl, Label: "Declaration Agreement", Kind: FieldBoolean}),
				required(text(FieldPhysSignature, "Physician Signature (Full Name)")),
				required(FieldDefinition{Key: FieldSignDate, Label: "Date", Kind: FieldDate}),
			},
		},
	}
}

// DisclaimerText is shown on the gate step.
const DisclaimerText = "Are you a Healthcare Professional (HCP)? By proceeding, you confirm that you are a licensed healthcare provider."

// PrivacyText is the data privacy disclaimer of Section E.
const PrivacyText = "The personal information provided in this form will be processed by Ideogen AG (Switzerland) " +
	"to supply Belinostat-Pralatrexate per your request, in compliance with EU GDPR, Swiss FADP, and other applicable " +
	"privacy laws. It may be shared with the sponsor to: (1) verify patient eligibility, (2) inform regulatory " +
	"authorities if required, (3) manage pharmacovigilance and quality reporting. The data will not be retained " +
	"longer than necessary for these purposes and as required by law."

// DeclarationText is the physician declaration of Section F.
const DeclarationText = "By signing below, I confirm that I am a licensed healthcare provider knowledgeable in PTCL/CTCL " +
	"treatment, and that I will prescribe Belinostat-Pralatrexate under the MAP in my country. I will take " +
	"responsibility for patient safety, adhere to all pharmacovigilance reporting requirements (reporting any serious " +
	"adverse events within 24 hours), and ensure the patient (or caregiver) has been informed and consented to the " +
	"conditions of this program. I have read and agree to the Data Privacy Disclaimer (Section E)."

package onboarding

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/onboardly/application-pdf/internal/pdf"
)

// ErrIncompleteForm はフォームの必須セクションが欠けていることを示します。
var ErrIncompleteForm = errors.New("form data incomplete")

// テンプレート（npt-india-application-form-fillable.pdf）のフィールド名
const (
	FieldFirstName              = "personal.firstName"
	FieldLastName               = "personal.lastName"
	FieldEmail                  = "personal.email"
	FieldGenderMale             = "personal.gender.male"
	FieldGenderFemale           = "personal.gender.female"
	FieldDateOfBirth            = "personal.dateOfBirth"
	FieldProofOfAge             = "personal.canProvideProofOfAge"
	FieldAddressLine1           = "personal.address.line1"
	FieldAddressCity            = "personal.address.city"
	FieldAddressState           = "personal.address.state"
	FieldAddressPostalCode      = "personal.address.postalCode"
	FieldAddressFrom            = "personal.address.fromDate"
	FieldAddressTo              = "personal.address.toDate"
	FieldPhoneHome              = "personal.phoneHome"
	FieldPhoneMobile            = "personal.phoneMobile"
	FieldEmergencyContactName   = "personal.emergencyContact.name"
	FieldEmergencyContactNumber = "personal.emergencyContact.number"

	FieldAadhaarNumber = "ids.aadhaarNumber"

	FieldEducationLevel        = "education.level"
	FieldEducationInstitution  = "education.institution"
	FieldEducationLocation     = "education.location"
	FieldEducationBoard        = "education.board"
	FieldEducationFieldOfStudy = "education.fieldOfStudy"
	FieldEducationStartYear    = "education.startYear"
	FieldEducationEndYear      = "education.endYear"
	FieldEducationGrade        = "education.grade"

	FieldPreviousEmploymentYes = "employment.previous.yes"
	FieldPreviousEmploymentNo  = "employment.previous.no"

	FieldBankName          = "bank.name"
	FieldBankBranch        = "bank.branch"
	FieldBankAccountHolder = "bank.accountHolder"
	FieldBankAccountNumber = "bank.accountNumber"
	FieldBankIFSC          = "bank.ifsc"
	FieldBankUPI           = "bank.upi"

	FieldDeclarationAccepted = "declaration.accepted"
	FieldDeclarationDate     = "declaration.date"
	FieldSignedAt            = "declaration.signedAt"
)

// employmentField は職歴 n 件目（1始まり）のフィールド名です。
func employmentField(n int, name string) string {
	return fmt.Sprintf("employment.%d.%s", n, name)
}

// BuildFieldValues はインドのフォームからテンプレートに書き込む値を作ります。
func BuildFieldValues(form *IndiaForm) ([]pdf.FieldValue, error) {
	if form == nil {
		return nil, fmt.Errorf("%w: indiaFormData is missing", ErrIncompleteForm)
	}
	switch {
	case form.PersonalInfo == nil:
		return nil, fmt.Errorf("%w: personalInfo is missing", ErrIncompleteForm)
	case form.GovernmentIDs == nil:
		return nil, fmt.Errorf("%w: governmentIds is missing", ErrIncompleteForm)
	case form.BankDetails == nil:
		return nil, fmt.Errorf("%w: bankDetails is missing", ErrIncompleteForm)
	case form.Declaration == nil:
		return nil, fmt.Errorf("%w: declaration is missing", ErrIncompleteForm)
	}

	var b valueBuilder
	p := form.PersonalInfo
	b.required(FieldFirstName, p.FirstName)
	b.required(FieldLastName, p.LastName)
	b.text(FieldEmail, p.Email)
	b.check(FieldGenderMale, p.Gender == GenderMale)
	b.check(FieldGenderFemale, p.Gender == GenderFemale)
	b.date(FieldDateOfBirth, p.DateOfBirth, true)
	b.check(FieldProofOfAge, p.CanProvideProofOfAge)
	b.text(FieldAddressLine1, p.ResidentialAddress.AddressLine1)
	b.text(FieldAddressCity, p.ResidentialAddress.City)
	b.text(FieldAddressState, p.ResidentialAddress.State)
	b.text(FieldAddressPostalCode, p.ResidentialAddress.PostalCode)
	b.date(FieldAddressFrom, p.ResidentialAddress.FromDate, false)
	b.date(FieldAddressTo, p.ResidentialAddress.ToDate, false)
	b.text(FieldPhoneHome, p.PhoneHome)
	b.text(FieldPhoneMobile, p.PhoneMobile)
	b.text(FieldEmergencyContactName, p.EmergencyContactName)
	b.text(FieldEmergencyContactNumber, p.EmergencyContactNumber)

	b.text(FieldAadhaarNumber, form.GovernmentIDs.Aadhaar.AadhaarNumber)

	if len(form.Education) > 0 {
		addEducation(&b, form.Education[0])
	}

	hasPrevious := form.HasPreviousEmployment != nil && *form.HasPreviousEmployment
	b.check(FieldPreviousEmploymentYes, hasPrevious)
	b.check(FieldPreviousEmploymentNo, form.HasPreviousEmployment != nil && !hasPrevious)
	if hasPrevious {
		for i, e := range form.EmploymentHistory {
			if i >= MaxEmploymentEntries {
				break
			}
			n := i + 1
			b.text(employmentField(n, "organization"), e.OrganizationName)
			b.text(employmentField(n, "designation"), e.Designation)
			b.date(employmentField(n, "startDate"), e.StartDate, false)
			b.date(employmentField(n, "endDate"), e.EndDate, false)
			b.text(employmentField(n, "reasonForLeaving"), e.ReasonForLeaving)
		}
	}

	bank := form.BankDetails
	b.text(FieldBankName, bank.BankName)
	b.text(FieldBankBranch, bank.BranchName)
	b.text(FieldBankAccountHolder, bank.AccountHolderName)
	b.text(FieldBankAccountNumber, bank.AccountNumber)
	b.text(FieldBankIFSC, bank.IFSCCode)
	b.text(FieldBankUPI, bank.UPIID)

	d := form.Declaration
	b.check(FieldDeclarationAccepted, d.HasAcceptedDeclaration)
	b.date(FieldDeclarationDate, d.DeclarationDate, true)
	if d.Signature != nil {
		b.date(FieldSignedAt, d.Signature.SignedAt, false)
	}

	return b.values, nil
}

func addEducation(b *valueBuilder, e EducationEntry) {
	b.text(FieldEducationLevel, educationLabel(e.HighestLevel))
	switch e.HighestLevel {
	case EducationPrimarySchool:
		b.text(FieldEducationInstitution, e.SchoolName)
		b.text(FieldEducationLocation, e.SchoolLocation)
		b.text(FieldEducationEndYear, year(e.PrimaryYearCompleted))
	case EducationHighSchool:
		b.text(FieldEducationInstitution, e.HighSchoolInstitutionName)
		b.text(FieldEducationBoard, e.HighSchoolBoard)
		b.text(FieldEducationFieldOfStudy, e.HighSchoolStream)
		b.text(FieldEducationEndYear, year(e.HighSchoolYearCompleted))
		b.text(FieldEducationGrade, e.HighSchoolGradeOrPercentage)
	default:
		b.text(FieldEducationInstitution, e.InstitutionName)
		b.text(FieldEducationBoard, e.UniversityOrBoard)
		b.text(FieldEducationFieldOfStudy, e.FieldOfStudy)
		b.text(FieldEducationStartYear, year(e.StartYear))
		b.text(FieldEducationEndYear, year(e.EndYear))
		b.text(FieldEducationGrade, e.GradeOrCGPA)
	}
}

// educationLabel は HIGH_SCHOOL を "High School" のような表示名にします。
func educationLabel(level EducationLevel) string {
	words := strings.Split(strings.ToLower(string(level)), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func year(y *int) string {
	if y == nil || *y <= 0 {
		return ""
	}
	return strconv.Itoa(*y)
}

// FormatDate は ISO 形式の日付を DD/MM/YYYY にします。解釈できない値はそのまま返します。
func FormatDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(pdf.DateLayout)
		}
	}
	return s
}

type valueBuilder struct {
	values []pdf.FieldValue
}

func (b *valueBuilder) text(name, value string) {
	b.values = append(b.values, pdf.FieldValue{Name: name, Kind: pdf.FieldText, Text: strings.TrimSpace(value)})
}

func (b *valueBuilder) required(name, value string) {
	b.values = append(b.values, pdf.FieldValue{Name: name, Kind: pdf.FieldText, Text: strings.TrimSpace(value), Required: true})
}

func (b *valueBuilder) date(name, value string, required bool) {
	b.values = append(b.values, pdf.FieldValue{Name: name, Kind: pdf.FieldDate, Text: FormatDate(value), Required: required})
}

func (b *valueBuilder) check(name string, checked bool) {
	b.values = append(b.values, pdf.FieldValue{Name: name, Kind: pdf.FieldCheckbox, Checked: checked})
}

// Package onboarding はオンボーディング記録の読み取り専用ビューと、そこから PDF 生成に必要な値を導く処理を提供します。
package onboarding

import "errors"

// Subsidiary は子会社の識別子です。
type Subsidiary string

const (
	SubsidiaryIndia Subsidiary = "INDIA"
)

// Gender は性別です。
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// EducationLevel は最終学歴の区分です。
type EducationLevel string

const (
	EducationPrimarySchool EducationLevel = "PRIMARY_SCHOOL"
	EducationHighSchool    EducationLevel = "HIGH_SCHOOL"
	EducationDiploma       EducationLevel = "DIPLOMA"
	EducationBachelors     EducationLevel = "BACHELORS"
	EducationMasters       EducationLevel = "MASTERS"
	EducationDoctorate     EducationLevel = "DOCTORATE"
)

// MaxEmploymentEntries は職歴の最大件数です。
const MaxEmploymentEntries = 3

var (
	// ErrNotFound は記録が存在しないことを示します。
	ErrNotFound = errors.New("onboarding not found")
)

// Record はオンボーディング記録のうち、このワーカーが読む部分です。
type Record struct {
	ID             string
	Subsidiary     Subsidiary
	IsFormComplete bool
	IndiaForm      *IndiaForm
}

// FileAsset はストレージ上のファイル参照です。バイト列は持ちません。
type FileAsset struct {
	URL          string `json:"url"`
	StorageKey   string `json:"s3Key"`
	MimeType     string `json:"mimeType"`
	OriginalName string `json:"originalName,omitempty"`
	SizeBytes    *int64 `json:"sizeBytes,omitempty"`
}

// Attachment は結合対象の添付です。
type Attachment struct {
	Label string
	Asset FileAsset
}

// IndiaForm はインド子会社のフォームのスナップショットです。
type IndiaForm struct {
	PersonalInfo          *PersonalInfo     `json:"personalInfo"`
	GovernmentIDs         *GovernmentIDs    `json:"governmentIds"`
	Education             []EducationEntry  `json:"education"`
	HasPreviousEmployment *bool             `json:"hasPreviousEmployment"`
	EmploymentHistory     []EmploymentEntry `json:"employmentHistory"`
	BankDetails           *BankDetails      `json:"bankDetails"`
	Declaration           *Declaration      `json:"declaration"`
}

type PersonalInfo struct {
	FirstName              string             `json:"firstName"`
	LastName               string             `json:"lastName"`
	Email                  string             `json:"email"`
	Gender                 Gender             `json:"gender"`
	DateOfBirth            string             `json:"dateOfBirth"`
	CanProvideProofOfAge   bool               `json:"canProvideProofOfAge"`
	ResidentialAddress     ResidentialAddress `json:"residentialAddress"`
	PhoneHome              string             `json:"phoneHome"`
	PhoneMobile            string             `json:"phoneMobile"`
	EmergencyContactName   string             `json:"emergencyContactName"`
	EmergencyContactNumber string             `json:"emergencyContactNumber"`
}

type ResidentialAddress struct {
	AddressLine1 string `json:"addressLine1"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode"`
	FromDate     string `json:"fromDate"`
	ToDate       string `json:"toDate"`
}

type GovernmentIDs struct {
	Aadhaar        Aadhaar         `json:"aadhaar"`
	PanCard        PanCard         `json:"panCard"`
	Passport       Passport        `json:"passport"`
	DriversLicense *DriversLicense `json:"driversLicense,omitempty"`
}

type Aadhaar struct {
	AadhaarNumber string     `json:"aadhaarNumber"`
	File          *FileAsset `json:"file"`
}

type PanCard struct {
	File *FileAsset `json:"file"`
}

type Passport struct {
	FrontFile *FileAsset `json:"frontFile"`
	BackFile  *FileAsset `json:"backFile"`
}

type DriversLicense struct {
	FrontFile *FileAsset `json:"frontFile,omitempty"`
	BackFile  *FileAsset `json:"backFile,omitempty"`
}

// EducationEntry は学歴です。入力される項目は HighestLevel によって異なります。
type EducationEntry struct {
	HighestLevel EducationLevel `json:"highestLevel"`

	SchoolName           string `json:"schoolName,omitempty"`
	SchoolLocation       string `json:"schoolLocation,omitempty"`
	PrimaryYearCompleted *int   `json:"primaryYearCompleted,omitempty"`

	HighSchoolInstitutionName   string `json:"highSchoolInstitutionName,omitempty"`
	HighSchoolBoard             string `json:"highSchoolBoard,omitempty"`
	HighSchoolStream            string `json:"highSchoolStream,omitempty"`
	HighSchoolYearCompleted     *int   `json:"highSchoolYearCompleted,omitempty"`
	HighSchoolGradeOrPercentage string `json:"highSchoolGradeOrPercentage,omitempty"`

	InstitutionName   string `json:"institutionName,omitempty"`
	UniversityOrBoard string `json:"universityOrBoard,omitempty"`
	FieldOfStudy      string `json:"fieldOfStudy,omitempty"`
	StartYear         *int   `json:"startYear,omitempty"`
	EndYear           *int   `json:"endYear,omitempty"`
	GradeOrCGPA       string `json:"gradeOrCgpa,omitempty"`
}

type EmploymentEntry struct {
	OrganizationName          string     `json:"organizationName"`
	Designation               string     `json:"designation"`
	StartDate                 string     `json:"startDate"`
	EndDate                   string     `json:"endDate"`
	ReasonForLeaving          string     `json:"reasonForLeaving"`
	ExperienceCertificateFile *FileAsset `json:"experienceCertificateFile,omitempty"`
}

type BankDetails struct {
	BankName          string     `json:"bankName"`
	BranchName        string     `json:"branchName"`
	AccountHolderName string     `json:"accountHolderName"`
	AccountNumber     string     `json:"accountNumber"`
	IFSCCode          string     `json:"ifscCode"`
	UPIID             string     `json:"upiId"`
	VoidCheque        *FileAsset `json:"voidCheque,omitempty"`
}

type Declaration struct {
	HasAcceptedDeclaration bool       `json:"hasAcceptedDeclaration"`
	Signature              *Signature `json:"signature"`
	DeclarationDate        string     `json:"declarationDate"`
}

type Signature struct {
	File     *FileAsset `json:"file"`
	SignedAt string     `json:"signedAt"`
}

// SignatureAsset は署名画像の参照を返します。ない場合は nil です。
func (f *IndiaForm) SignatureAsset() *FileAsset {
	if f == nil || f.Declaration == nil || f.Declaration.Signature == nil {
		return nil
	}
	asset := f.Declaration.Signature.File
	if asset == nil || asset.StorageKey == "" {
		return nil
	}
	return asset
}

package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onboardly/application-pdf/internal/pdf"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func asset(key, mime string) *FileAsset {
	return &FileAsset{URL: "https://example.test/" + key, StorageKey: key, MimeType: mime}
}

func boolPtr(v bool) *bool { return &v }

func sampleForm() *IndiaForm {
	return &IndiaForm{
		PersonalInfo: &PersonalInfo{
			FirstName:            "Asha",
			LastName:             "Rao",
			Email:                "asha@example.test",
			Gender:               GenderFemale,
			DateOfBirth:          "1994-03-07",
			CanProvideProofOfAge: true,
			ResidentialAddress: ResidentialAddress{
				AddressLine1: "12 MG Road",
				City:         "Bengaluru",
				State:        "KA",
				PostalCode:   "560001",
				FromDate:     "2020-01-01T00:00:00.000Z",
				ToDate:       "present",
			},
			PhoneMobile: "9876543210",
		},
		GovernmentIDs: &GovernmentIDs{
			Aadhaar:  Aadhaar{AadhaarNumber: "123412341234", File: asset("ids/aadhaar.pdf", "application/pdf")},
			PanCard:  PanCard{File: asset("ids/pan.jpg", "image/jpg")},
			Passport: Passport{FrontFile: asset("ids/pp-front.png", "image/png"), BackFile: asset("ids/pp-back.png", "IMAGE/PNG")},
		},
		Education: []EducationEntry{{
			HighestLevel:    EducationBachelors,
			InstitutionName: "IISc",
			FieldOfStudy:    "Physics",
		}},
		HasPreviousEmployment: boolPtr(true),
		EmploymentHistory: []EmploymentEntry{
			{OrganizationName: "Acme", Designation: "Engineer", StartDate: "2018-06-01", EndDate: "2021-05-31", ReasonForLeaving: "Growth",
				ExperienceCertificateFile: asset("emp/acme.pdf", "application/pdf")},
			{OrganizationName: "Globex", Designation: "Lead", StartDate: "2021-06-01", EndDate: "2024-01-31", ReasonForLeaving: "Relocation",
				ExperienceCertificateFile: &FileAsset{StorageKey: "", MimeType: "application/pdf"}},
		},
		BankDetails: &BankDetails{
			BankName:          "HDFC",
			AccountHolderName: "Asha Rao",
			AccountNumber:     "000123456789",
			IFSCCode:          "HDFC0001234",
			UPIID:             "asha@hdfc",
			VoidCheque:        asset("bank/cheque.jpeg", "image/jpeg"),
		},
		Declaration: &Declaration{
			HasAcceptedDeclaration: true,
			Signature:              &Signature{File: asset("sig/asha.png", "image/png"), SignedAt: "2026-09-30T10:00:00Z"},
			DeclarationDate:        "2026-09-30",
		},
	}
}

func labels(atts []Attachment) []string {
	out := make([]string, 0, len(atts))
	for _, a := range atts {
		out = append(out, a.Label)
	}
	return out
}

func TestSelectAttachmentsOrderAndFilter(t *testing.T) {
	record := &Record{ID: "ob-1", Subsidiary: SubsidiaryIndia, IsFormComplete: true, IndiaForm: sampleForm()}

	got := SelectAttachments(record)
	assert.Equal(t, []string{
		"Aadhaar Card",
		"PAN Card",
		"Passport (Front)",
		"Passport (Back)",
		"Void Cheque",
		"Experience Certificate (1)",
	}, labels(got))

	assert.Equal(t, "image/jpeg", got[1].Asset.MimeType)
	assert.Equal(t, "image/png", got[3].Asset.MimeType)
	for _, a := range got {
		assert.NotEqual(t, "sig/asha.png", a.Asset.StorageKey)
	}
}

func TestSelectAttachmentsDedupAndUnsupported(t *testing.T) {
	form := sampleForm()
	form.GovernmentIDs.Passport.BackFile = asset("ids/pp-front.png", "image/png")
	form.GovernmentIDs.DriversLicense = &DriversLicense{
		FrontFile: asset("ids/dl-front.heic", "image/heic"),
		BackFile:  asset("ids/dl-back.jpg", "image/JPG"),
	}
	form.BankDetails.VoidCheque = nil

	got := SelectIndiaAttachments(form)
	assert.Equal(t, []string{
		"Aadhaar Card",
		"PAN Card",
		"Passport (Front)",
		"Driver's License (Back)",
		"Experience Certificate (1)",
	}, labels(got))
}

func TestSelectAttachmentsUnsupportedSubsidiary(t *testing.T) {
	record := &Record{ID: "ob-1", Subsidiary: Subsidiary("CANADA"), IndiaForm: sampleForm()}
	assert.Empty(t, SelectAttachments(record))
	assert.Empty(t, SelectAttachments(nil))
}

func TestSelectAttachmentsCapsEmploymentEntries(t *testing.T) {
	form := sampleForm()
	form.EmploymentHistory = nil
	for _, k := range []string{"a", "b", "c", "d"} {
		form.EmploymentHistory = append(form.EmploymentHistory, EmploymentEntry{
			ExperienceCertificateFile: asset("emp/"+k+".pdf", "application/pdf"),
		})
	}
	got := SelectIndiaAttachments(form)
	assert.Equal(t, "Experience Certificate (3)", got[len(got)-1].Label)
	assert.Len(t, got, 8)
}

func valuesByName(values []pdf.FieldValue) map[string]pdf.FieldValue {
	out := make(map[string]pdf.FieldValue, len(values))
	for _, v := range values {
		out[v.Name] = v
	}
	return out
}

func TestBuildFieldValues(t *testing.T) {
	values, err := BuildFieldValues(sampleForm())
	require.NoError(t, err)
	byName := valuesByName(values)

	assert.Equal(t, "Asha", byName[FieldFirstName].Text)
	assert.True(t, byName[FieldFirstName].Required)
	assert.Equal(t, "07/03/1994", byName[FieldDateOfBirth].Text)
	assert.Equal(t, "01/01/2020", byName[FieldAddressFrom].Text)
	assert.Equal(t, "present", byName[FieldAddressTo].Text)
	assert.True(t, byName[FieldGenderFemale].Checked)
	assert.False(t, byName[FieldGenderMale].Checked)
	assert.True(t, byName[FieldPreviousEmploymentYes].Checked)
	assert.False(t, byName[FieldPreviousEmploymentNo].Checked)
	assert.Equal(t, "Globex", byName["employment.2.organization"].Text)
	assert.Equal(t, "Bachelors", byName[FieldEducationLevel].Text)
	assert.Equal(t, "IISc", byName[FieldEducationInstitution].Text)
	assert.Equal(t, "30/09/2026", byName[FieldSignedAt].Text)
	assert.Equal(t, pdf.FieldDate, byName[FieldDeclarationDate].Kind)
}

func TestBuildFieldValuesSkipsEmploymentWhenNone(t *testing.T) {
	form := sampleForm()
	form.HasPreviousEmployment = boolPtr(false)
	values, err := BuildFieldValues(form)
	require.NoError(t, err)
	byName := valuesByName(values)

	_, ok := byName["employment.1.organization"]
	assert.False(t, ok)
	assert.True(t, byName[FieldPreviousEmploymentNo].Checked)
}

func TestBuildFieldValuesIncomplete(t *testing.T) {
	form := sampleForm()
	form.BankDetails = nil
	_, err := BuildFieldValues(form)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncompleteForm))
	assert.Contains(t, err.Error(), "bankDetails")

	_, err = BuildFieldValues(nil)
	assert.True(t, errors.Is(err, ErrIncompleteForm))
}

func TestEducationLabel(t *testing.T) {
	assert.Equal(t, "High School", educationLabel(EducationHighSchool))
	assert.Equal(t, "Primary School", educationLabel(EducationPrimarySchool))
}

func TestFieldCipherRoundTrip(t *testing.T) {
	c, err := NewFieldCipher(testKey)
	require.NoError(t, err)

	sealed, err := c.Encrypt("HDFC0001234")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "enc:v1:"))

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "HDFC0001234", plain)

	passthrough, err := c.Decrypt("already-plain")
	require.NoError(t, err)
	assert.Equal(t, "already-plain", passthrough)

	_, err = c.Decrypt(sealed[:len(sealed)-4] + "AAAA")
	assert.True(t, errors.Is(err, ErrDecrypt))
}

func TestNewFieldCipherRejectsShortKey(t *testing.T) {
	_, err := NewFieldCipher("abcd")
	require.Error(t, err)
}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakeDB struct {
	row  pgx.Row
	sql  string
	args []any
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.sql = sql
	db.args = args
	return db.row
}

func TestReaderDecryptsForm(t *testing.T) {
	c, err := NewFieldCipher(testKey)
	require.NoError(t, err)

	form := sampleForm()
	form.GovernmentIDs.Aadhaar.AadhaarNumber, err = c.Encrypt("123412341234")
	require.NoError(t, err)
	form.BankDetails.AccountNumber, err = c.Encrypt("000123456789")
	require.NoError(t, err)
	raw, err := json.Marshal(form)
	require.NoError(t, err)

	db := &fakeDB{row: fakeRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "ob-1"
		*dest[1].(*string) = "INDIA"
		*dest[2].(*bool) = true
		*dest[3].(*[]byte) = raw
		return nil
	}}}

	record, err := NewReader(db, c).Get(context.Background(), "ob-1")
	require.NoError(t, err)
	assert.Equal(t, []any{"ob-1"}, db.args)
	assert.Contains(t, db.sql, "FROM onboardings WHERE id = $1")
	assert.Equal(t, SubsidiaryIndia, record.Subsidiary)
	assert.True(t, record.IsFormComplete)
	require.NotNil(t, record.IndiaForm)
	assert.Equal(t, "123412341234", record.IndiaForm.GovernmentIDs.Aadhaar.AadhaarNumber)
	assert.Equal(t, "000123456789", record.IndiaForm.BankDetails.AccountNumber)
	assert.Equal(t, "sig/asha.png", record.IndiaForm.SignatureAsset().StorageKey)
}

func TestReaderNotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}}
	_, err := NewReader(db, nil).Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestReaderWithoutForm(t *testing.T) {
	db := &fakeDB{row: fakeRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "ob-2"
		*dest[1].(*string) = "INDIA"
		*dest[2].(*bool) = false
		*dest[3].(*[]byte) = nil
		return nil
	}}}
	record, err := NewReader(db, nil).Get(context.Background(), "ob-2")
	require.NoError(t, err)
	assert.Nil(t, record.IndiaForm)
	assert.False(t, record.IsFormComplete)
}

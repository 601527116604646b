package onboarding

import (
	"fmt"
	"strings"

	"github.com/onboardly/application-pdf/internal/pdf"
)

// SelectAttachments は結合する添付を固定順で返します。
// ストレージキーが空のもの、PDF/PNG/JPEG 以外のもの、既に選ばれたキーは除きます。
// 署名は含めません。未対応の子会社では空を返します。
func SelectAttachments(record *Record) []Attachment {
	if record == nil || record.Subsidiary != SubsidiaryIndia {
		return nil
	}
	return SelectIndiaAttachments(record.IndiaForm)
}

// SelectIndiaAttachments はインドのフォームから添付を選びます。
func SelectIndiaAttachments(form *IndiaForm) []Attachment {
	if form == nil {
		return nil
	}

	var s selector
	if ids := form.GovernmentIDs; ids != nil {
		s.add("Aadhaar Card", ids.Aadhaar.File)
		s.add("PAN Card", ids.PanCard.File)
		s.add("Passport (Front)", ids.Passport.FrontFile)
		s.add("Passport (Back)", ids.Passport.BackFile)
		if dl := ids.DriversLicense; dl != nil {
			s.add("Driver's License (Front)", dl.FrontFile)
			s.add("Driver's License (Back)", dl.BackFile)
		}
	}
	if bank := form.BankDetails; bank != nil {
		s.add("Void Cheque", bank.VoidCheque)
	}
	for i, e := range form.EmploymentHistory {
		if i >= MaxEmploymentEntries {
			break
		}
		s.add(fmt.Sprintf("Experience Certificate (%d)", i+1), e.ExperienceCertificateFile)
	}
	return s.out
}

type selector struct {
	out  []Attachment
	seen map[string]bool
}

func (s *selector) add(label string, asset *FileAsset) {
	if asset == nil {
		return
	}
	key := strings.TrimSpace(asset.StorageKey)
	if key == "" || s.seen[key] {
		return
	}
	mime := pdf.NormalizeMime(asset.MimeType)
	if !IsSupportedMime(mime) {
		return
	}
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	s.seen[key] = true

	normalized := *asset
	normalized.StorageKey = key
	normalized.MimeType = mime
	s.out = append(s.out, Attachment{Label: label, Asset: normalized})
}

// IsSupportedMime は結合できる MIME かどうかを返します。
func IsSupportedMime(mime string) bool {
	switch pdf.NormalizeMime(mime) {
	case "application/pdf", "image/png", "image/jpeg":
		return true
	}
	return false
}

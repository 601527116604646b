package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const (
	// SignatureFieldName は宣誓欄の署名フィールド名です。
	SignatureFieldName = "declaration.signature"
	// SignaturePageIndex は宣誓欄のページ（0始まり）です。
	SignaturePageIndex = 4

	signatureMaxWidth  = 140
	signatureMaxHeight = 30
)

var (
	ErrSignatureFieldMissing = errors.New("signature field not found")
	ErrSignatureImageType    = errors.New("signature image must be PNG or JPEG")
)

// SignatureOverlay は署名画像を宣誓ページのフィールド位置に描画します。
type SignatureOverlay struct {
	conf      *model.Configuration
	fieldName string
	pageIndex int
}

// NewSignatureOverlay は既定のフィールド名とページで SignatureOverlay を作成します。
func NewSignatureOverlay() *SignatureOverlay {
	return &SignatureOverlay{
		conf:      newConfiguration(),
		fieldName: SignatureFieldName,
		pageIndex: SignaturePageIndex,
	}
}

// Apply は doc に署名画像をスタンプした PDF を返します。
// 呼び出し側はエラーを致命的に扱わず、署名なしで処理を続けます。
func (o *SignatureOverlay) Apply(ctx context.Context, doc, img []byte, declaredMime string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(img) == 0 {
		return nil, newError(CodeSignatureFailed, "signature image is empty", nil)
	}
	if !isImageMime(NormalizeMime(declaredMime)) || !isImageMime(mimetype.Detect(img).String()) {
		return nil, newError(CodeSignatureFailed, "unsupported signature image", ErrSignatureImageType)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, newError(CodeSignatureFailed, "failed to decode signature image", err)
	}

	pdfCtx, err := readContext(doc, o.conf)
	if err != nil {
		return nil, newError(CodeSignatureFailed, "failed to read filled form", err)
	}
	r, err := o.locate(pdfCtx)
	if err != nil {
		return nil, newError(CodeSignatureFailed, "failed to locate signature field", err)
	}

	scale, err := fitSignature(float64(cfg.Width), float64(cfg.Height), r.Width(), r.Height())
	if err != nil {
		return nil, newError(CodeSignatureFailed, "failed to size signature", err)
	}

	wm, err := pdfapi.ImageWatermarkForReader(bytes.NewReader(img), signatureStampDesc(r, scale), true, false, types.POINTS)
	if err != nil {
		return nil, newError(CodeSignatureFailed, "failed to prepare signature stamp", err)
	}
	var out bytes.Buffer
	pages := []string{strconv.Itoa(o.pageIndex + 1)}
	if err := pdfapi.AddWatermarks(bytes.NewReader(doc), &out, pages, wm, o.conf); err != nil {
		return nil, newError(CodeSignatureFailed, "failed to stamp signature", err)
	}
	return out.Bytes(), nil
}

// locate は署名フィールドのうち対象ページにあるウィジェットの矩形を返します。
func (o *SignatureOverlay) locate(pdfCtx *model.Context) (rect, error) {
	if pdfCtx.PageCount <= o.pageIndex {
		return rect{}, fmt.Errorf("page %d: %w", o.pageIndex+1, ErrSignatureFieldMissing)
	}
	fields, err := collectFields(pdfCtx)
	if err != nil {
		return rect{}, err
	}
	for _, field := range fields {
		if field.name != o.fieldName {
			continue
		}
		for _, w := range field.widgets {
			if w.pageIndex == o.pageIndex && w.rect.Width() > 0 && w.rect.Height() > 0 {
				return w.rect, nil
			}
		}
	}
	return rect{}, fmt.Errorf("%s: %w", o.fieldName, ErrSignatureFieldMissing)
}

// signatureStampDesc はフィールド左下を原点にした pdfcpu のスタンプ記述を作ります。
func signatureStampDesc(r rect, scale float64) string {
	return fmt.Sprintf("pos:bl, off:%.2f %.2f, scalefactor:%.4f abs, rot:0, op:1", r.LLX, r.LLY, scale)
}

// NormalizeMime は宣言された MIME を小文字化し、image/jpg を image/jpeg に揃えます。
func NormalizeMime(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	if m == "image/jpg" || m == "image/pjpeg" {
		return "image/jpeg"
	}
	return m
}

func isImageMime(m string) bool {
	return m == "image/png" || m == "image/jpeg"
}

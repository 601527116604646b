package pdf

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const (
	autoFontSizeMax = 12.0
	autoFontSizeMin = 6.0
	textPadding     = 2.0
)

// helveticaFont は /DR /Font /Helv の Helvetica フォントを返し、なければ登録します。
func helveticaFont(ctx *model.Context, form types.Dict) (types.IndirectRef, error) {
	dr, err := ensureDict(ctx, form, "DR")
	if err != nil {
		return types.IndirectRef{}, err
	}
	fonts, err := ensureDict(ctx, dr, "Font")
	if err != nil {
		return types.IndirectRef{}, err
	}
	if ref, ok := fonts[helveticaResource].(types.IndirectRef); ok {
		d, err := ctx.DereferenceDict(ref)
		if err == nil && d != nil {
			if base, ok := d["BaseFont"].(types.Name); ok && base == "Helvetica" {
				return ref, nil
			}
		}
	}
	ref, err := ctx.IndRefForNewObject(types.Dict(map[string]types.Object{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name("Helvetica"),
		"Encoding": types.Name("WinAnsiEncoding"),
	}))
	if err != nil {
		return types.IndirectRef{}, err
	}
	fonts[helveticaResource] = *ref
	return *ref, nil
}

// regenerateAppearances は全テキストフィールドの通常外観を /V から Helvetica で作り直します。
// 値のないフィールドも空の外観に置き換えます。ボタンはテンプレートの外観を使います。
func regenerateAppearances(ctx *model.Context) error {
	form, err := acroForm(ctx)
	if err != nil || form == nil {
		return err
	}
	font, err := helveticaFont(ctx, form)
	if err != nil {
		return err
	}

	fields, err := collectFields(ctx)
	if err != nil {
		return err
	}
	for _, field := range fields {
		if field.kind != "Tx" {
			continue
		}
		value := decodeText(field.dict["V"])
		for _, w := range field.widgets {
			if w.rect.Width() <= 0 || w.rect.Height() <= 0 {
				continue
			}
			size := fontSize(w.rect.Height(), decodeText(w.dict["DA"]), decodeText(field.dict["DA"]))
			ref, err := newTextAppearance(ctx, font, w.rect, size, value)
			if err != nil {
				return fmt.Errorf("field %s: %w", field.name, err)
			}
			w.dict["AP"] = types.Dict(map[string]types.Object{"N": *ref})
			w.dict["DA"] = types.StringLiteral(fmt.Sprintf("/%s %s Tf 0 g", helveticaResource, formatNumber(size)))
		}
	}
	delete(form, "NeedAppearances")
	return nil
}

// fontSize は最初に見つかった DA のサイズを使います。0（自動）や指定なしは矩形の高さから決めます。
func fontSize(height float64, das ...string) float64 {
	for _, da := range das {
		m := daFontPattern.FindStringSubmatch(da)
		if m == nil {
			continue
		}
		if size, err := strconv.ParseFloat(m[1], 64); err == nil && size > 0 {
			return size
		}
	}
	return min(autoFontSizeMax, max(autoFontSizeMin, (height-2*textPadding)*0.8))
}

func newTextAppearance(ctx *model.Context, font types.IndirectRef, r rect, size float64, value string) (*types.IndirectRef, error) {
	w, h := r.Width(), r.Height()

	var content bytes.Buffer
	content.WriteString("/Tx BMC\n")
	if text := singleLine(value); text != "" {
		baseline := max(textPadding, (h-size*0.72)/2)
		fmt.Fprintf(&content, "q 0 0 %s %s re W n\nBT\n/%s %s Tf\n0 g\n%s %s Td\n(%s) Tj\nET\nQ\n",
			formatNumber(w), formatNumber(h),
			helveticaResource, formatNumber(size),
			formatNumber(textPadding), formatNumber(baseline),
			escapeWinAnsi(text))
	}
	content.WriteString("EMC\n")

	sd, err := ctx.NewStreamDictForBuf(content.Bytes())
	if err != nil {
		return nil, err
	}
	sd.Dict["Type"] = types.Name("XObject")
	sd.Dict["Subtype"] = types.Name("Form")
	sd.Dict["BBox"] = types.Array{types.Float(0), types.Float(0), types.Float(w), types.Float(h)}
	sd.Dict["Resources"] = types.Dict(map[string]types.Object{
		"Font": types.Dict(map[string]types.Object{helveticaResource: font}),
	})
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return ctx.IndRefForNewObject(*sd)
}

func singleLine(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

// escapeWinAnsi は文字列を WinAnsi に変換し、PDF 文字列リテラルとしてエスケープします。
// WinAnsi で表せない文字は置換されます。
func escapeWinAnsi(s string) string {
	enc := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	encoded, err := enc.Bytes([]byte(s))
	if err != nil {
		encoded = []byte(s)
	}
	var b strings.Builder
	for _, c := range encoded {
		switch {
		case c == '(' || c == ')' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(&b, "\\%03o", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}

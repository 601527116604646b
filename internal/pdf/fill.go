package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog"
)

// FieldKind はフィールド値の種別です。
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldCheckbox
	FieldDate
)

// DateLayout は日付フィールドの表示形式（DD/MM/YYYY）です。
const DateLayout = "02/01/2006"

const (
	helveticaResource = "Helv"
	defaultFontSize   = "10"
)

// FieldValue はテンプレートの1フィールドに書き込む値です。
type FieldValue struct {
	Name     string
	Kind     FieldKind
	Text     string
	Checked  bool
	Required bool
}

func (v FieldValue) empty() bool {
	if v.Kind == FieldCheckbox {
		return false
	}
	return strings.TrimSpace(v.Text) == ""
}

// FilledForm は入力済みのフォームです。ページ構成はテンプレートと同じです。
type FilledForm struct {
	Bytes     []byte
	PageCount int
	Fields    int
}

// FormFiller はテンプレートの名前付きフィールドに値を書き込みます。
type FormFiller struct {
	conf   *model.Configuration
	logger zerolog.Logger
}

// NewFormFiller は FormFiller を作成します。
func NewFormFiller(logger zerolog.Logger) *FormFiller {
	return &FormFiller{
		conf:   newConfiguration(),
		logger: logger,
	}
}

// Fill はテンプレートに値を書き込みます。
// テンプレートに存在しない名前は無視し、Required の値が空または書き込み先がない場合はエラーにします。
// 書き込み後、全テキストフィールドの外観を Helvetica で作り直します。
func (f *FormFiller) Fill(ctx context.Context, template []byte, values []FieldValue) (*FilledForm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pdfCtx, err := readContext(template, f.conf)
	if err != nil {
		return nil, newError(CodeInvalidTemplate, "failed to read form template", err)
	}

	fields, err := collectFields(pdfCtx)
	if err != nil {
		return nil, newError(CodeInvalidTemplate, "failed to read form fields", err)
	}
	known := make(map[string]*formField, len(fields))
	for _, field := range fields {
		known[field.name] = field
	}

	group, written, err := f.buildFormGroup(values, known)
	if err != nil {
		return nil, err
	}

	if err := useHelvetica(pdfCtx); err != nil {
		return nil, newError(CodeFillFailed, "failed to prepare field appearances", err)
	}

	if written > 0 {
		payload, err := json.Marshal(group)
		if err != nil {
			return nil, newError(CodeFillFailed, "failed to encode form values", err)
		}
		var prepared, filled bytes.Buffer
		if err := pdfapi.WriteContext(pdfCtx, &prepared); err != nil {
			return nil, newError(CodeFillFailed, "failed to write form template", err)
		}
		if err := pdfapi.FillForm(bytes.NewReader(prepared.Bytes()), bytes.NewReader(payload), &filled, f.conf); err != nil {
			return nil, newError(CodeFillFailed, "failed to fill form", err)
		}
		if pdfCtx, err = readContext(filled.Bytes(), f.conf); err != nil {
			return nil, newError(CodeFillFailed, "failed to read filled form", err)
		}
	}

	if err := regenerateAppearances(pdfCtx); err != nil {
		return nil, newError(CodeFillFailed, "failed to build field appearances", err)
	}
	var out bytes.Buffer
	if err := pdfapi.WriteContext(pdfCtx, &out); err != nil {
		return nil, newError(CodeFillFailed, "failed to write filled form", err)
	}

	return &FilledForm{
		Bytes:     out.Bytes(),
		PageCount: pdfCtx.PageCount,
		Fields:    written,
	}, nil
}

// formGroup は pdfcpu のフォーム JSON です。
type formGroup struct {
	Forms []formValues `json:"forms"`
}

type formValues struct {
	TextFields []textFieldValue `json:"textfield,omitempty"`
	CheckBoxes []checkBoxValue  `json:"checkbox,omitempty"`
}

type textFieldValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type checkBoxValue struct {
	Name  string `json:"name"`
	Value bool   `json:"value"`
}

func (f *FormFiller) buildFormGroup(values []FieldValue, known map[string]*formField) (*formGroup, int, error) {
	var form formValues
	written := 0
	for _, v := range values {
		field, ok := known[v.Name]
		if v.Required && (!ok || v.empty()) {
			return nil, 0, newError(CodeMissingRequiredField, fmt.Sprintf("required field %s is missing", v.Name), nil)
		}
		if !ok {
			f.logger.Debug().Str("field", v.Name).Msg("pdf: field not in template, skipped")
			continue
		}

		switch v.Kind {
		case FieldCheckbox:
			if field.kind != "Btn" {
				f.logger.Debug().Str("field", v.Name).Str("type", field.kind).Msg("pdf: checkbox value for non-button field, skipped")
				continue
			}
			form.CheckBoxes = append(form.CheckBoxes, checkBoxValue{Name: v.Name, Value: v.Checked})
		default:
			if field.kind != "Tx" {
				f.logger.Debug().Str("field", v.Name).Str("type", field.kind).Msg("pdf: text value for non-text field, skipped")
				continue
			}
			if v.empty() {
				continue
			}
			form.TextFields = append(form.TextFields, textFieldValue{Name: v.Name, Value: v.Text})
		}
		written++
	}
	return &formGroup{Forms: []formValues{form}}, written, nil
}

var daFontPattern = regexp.MustCompile(`/[^\s/]+\s+([\d.]+)\s+Tf`)

// rewriteDA は既定外観文字列のフォント指定を /Helv に置き換え、サイズは維持します。
func rewriteDA(da string) string {
	if !daFontPattern.MatchString(da) {
		return fmt.Sprintf("/%s %s Tf 0 g", helveticaResource, defaultFontSize)
	}
	return daFontPattern.ReplaceAllString(da, "/"+helveticaResource+" $1 Tf")
}

// useHelvetica は AcroForm の /DR に Helvetica を登録し、全フィールドの /DA をそれに向けます。
// 日付の書式スクリプト（/AA）は出力をフラット化するため取り除きます。
func useHelvetica(ctx *model.Context) error {
	form, err := acroForm(ctx)
	if err != nil {
		return err
	}
	if form == nil {
		return nil
	}

	if _, err := helveticaFont(ctx, form); err != nil {
		return err
	}
	form["DA"] = types.StringLiteral(rewriteDA(decodeText(form["DA"])))

	fields, err := collectFields(ctx)
	if err != nil {
		return err
	}
	for _, field := range fields {
		if field.kind != "Tx" && field.kind != "Ch" {
			continue
		}
		field.dict["DA"] = types.StringLiteral(rewriteDA(decodeText(field.dict["DA"])))
		delete(field.dict, "AA")
		for _, w := range field.widgets {
			if _, ok := w.dict["DA"]; ok {
				w.dict["DA"] = types.StringLiteral(rewriteDA(decodeText(w.dict["DA"])))
			}
		}
	}
	return nil
}

// ensureDict は parent[key] の辞書を返し、なければ作成します。
func ensureDict(ctx *model.Context, parent types.Dict, key string) (types.Dict, error) {
	if obj, ok := parent[key]; ok {
		d, err := ctx.DereferenceDict(obj)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}
	}
	d := types.NewDict()
	parent[key] = d
	return d, nil
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func readContext(data []byte, conf *model.Configuration) (*model.Context, error) {
	pdfCtx, err := pdfapi.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, err
	}
	if err := pdfapi.ValidateContext(pdfCtx); err != nil {
		return nil, err
	}
	return pdfCtx, nil
}

package pdf

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// rect は PDF の矩形（左下, 右上）です。
type rect struct {
	LLX, LLY, URX, URY float64
}

func (r rect) Width() float64  { return r.URX - r.LLX }
func (r rect) Height() float64 { return r.URY - r.LLY }

// widget はフィールドのウィジェット注釈です。
type widget struct {
	ref       *types.IndirectRef
	dict      types.Dict
	pageIndex int // 0始まり、不明なら -1
	rect      rect
}

// formField はテンプレート上のフィールドです。
type formField struct {
	name    string // 完全修飾名
	kind    string // Tx, Btn, Ch, Sig
	dict    types.Dict
	widgets []widget
}

// hidden は注釈フラグの Hidden / NoView を見ます。
func (w widget) hidden() bool {
	f, ok := number(w.dict["F"])
	if !ok {
		return false
	}
	flags := int(f)
	return flags&2 != 0 || flags&32 != 0
}

// acroForm はカタログの AcroForm 辞書を返します。フォームがない場合は nil です。
func acroForm(ctx *model.Context) (types.Dict, error) {
	catalog, err := ctx.Catalog()
	if err != nil {
		return nil, err
	}
	obj, ok := catalog["AcroForm"]
	if !ok {
		return nil, nil
	}
	return ctx.DereferenceDict(obj)
}

// collectFields は AcroForm の全フィールドを Kids をたどって集めます。
func collectFields(ctx *model.Context) ([]*formField, error) {
	form, err := acroForm(ctx)
	if err != nil {
		return nil, err
	}
	if form == nil {
		return nil, nil
	}

	pageOf, err := annotationPages(ctx)
	if err != nil {
		return nil, err
	}

	arr, err := ctx.DereferenceArray(form["Fields"])
	if err != nil {
		return nil, err
	}

	var fields []*formField
	var walk func(obj types.Object, parentName, parentKind string, parent *formField, depth int) error
	walk = func(obj types.Object, parentName, parentKind string, parent *formField, depth int) error {
		if depth > 32 {
			return fmt.Errorf("field tree too deep at %q", parentName)
		}
		d, err := ctx.DereferenceDict(obj)
		if err != nil {
			return err
		}
		if d == nil {
			return nil
		}

		kind := parentKind
		if ft, ok := d["FT"].(types.Name); ok {
			kind = string(ft)
		}

		current := parent
		name := parentName
		if t, ok := d["T"]; ok {
			partial := decodeText(t)
			if parentName != "" {
				name = parentName + "." + partial
			} else {
				name = partial
			}
			current = &formField{name: name, kind: kind, dict: d}
			fields = append(fields, current)
		}

		if sub, ok := d["Subtype"].(types.Name); ok && sub == "Widget" && current != nil {
			w := widget{dict: d, pageIndex: -1}
			if ref, ok := obj.(types.IndirectRef); ok {
				w.ref = &ref
				if idx, found := pageOf[ref.ObjectNumber.Value()]; found {
					w.pageIndex = idx
				}
			}
			if r, ok := parseRect(ctx, d["Rect"]); ok {
				w.rect = r
			}
			current.widgets = append(current.widgets, w)
		}

		kids, err := ctx.DereferenceArray(d["Kids"])
		if err != nil {
			return err
		}
		for _, kid := range kids {
			if err := walk(kid, name, kind, current, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, obj := range arr {
		if err := walk(obj, "", "", nil, 0); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// annotationPages は注釈のオブジェクト番号から0始まりのページ番号を引く表を作ります。
func annotationPages(ctx *model.Context) (map[int]int, error) {
	out := map[int]int{}
	for i := 1; i <= ctx.PageCount; i++ {
		pageDict, _, _, err := ctx.PageDict(i, false)
		if err != nil {
			return nil, err
		}
		annots, err := ctx.DereferenceArray(pageDict["Annots"])
		if err != nil {
			return nil, err
		}
		for _, a := range annots {
			if ref, ok := a.(types.IndirectRef); ok {
				out[ref.ObjectNumber.Value()] = i - 1
			}
		}
	}
	return out, nil
}

func parseRect(ctx *model.Context, obj types.Object) (rect, bool) {
	arr, err := ctx.DereferenceArray(obj)
	if err != nil || len(arr) != 4 {
		return rect{}, false
	}
	var v [4]float64
	for i, o := range arr {
		resolved, err := ctx.Dereference(o)
		if err != nil {
			return rect{}, false
		}
		f, ok := number(resolved)
		if !ok {
			return rect{}, false
		}
		v[i] = f
	}
	return rect{
		LLX: min(v[0], v[2]),
		LLY: min(v[1], v[3]),
		URX: max(v[0], v[2]),
		URY: max(v[1], v[3]),
	}, true
}

func number(obj types.Object) (float64, bool) {
	switch v := obj.(type) {
	case types.Integer:
		return float64(v.Value()), true
	case types.Float:
		return v.Value(), true
	}
	return 0, false
}

func decodeText(obj types.Object) string {
	switch v := obj.(type) {
	case types.StringLiteral:
		if s, err := types.StringLiteralToString(v); err == nil {
			return s
		}
		return v.Value()
	case types.HexLiteral:
		if s, err := types.HexLiteralToString(v); err == nil {
			return s
		}
		return v.Value()
	case types.Name:
		return string(v)
	}
	return ""
}

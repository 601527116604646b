package pdf

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Flattener はフォームの外観をページ内容に焼き込み、編集できない PDF にします。
type Flattener struct {
	conf *model.Configuration
}

// NewFlattener は Flattener を作成します。
func NewFlattener() *Flattener {
	return &Flattener{conf: newConfiguration()}
}

// Flatten は各ウィジェットの通常外観をページに描画し、ウィジェットと AcroForm を削除します。
// 元に戻せないため、結合の前に一度だけ呼びます。
func (f *Flattener) Flatten(ctx context.Context, doc []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pdfCtx, err := readContext(doc, f.conf)
	if err != nil {
		return nil, newError(CodeFlattenFailed, "failed to read filled form", err)
	}
	if err := flattenContext(pdfCtx); err != nil {
		return nil, newError(CodeFlattenFailed, "failed to flatten form", err)
	}
	var out bytes.Buffer
	if err := pdfapi.WriteContext(pdfCtx, &out); err != nil {
		return nil, newError(CodeFlattenFailed, "failed to write flattened form", err)
	}
	return out.Bytes(), nil
}

func flattenContext(ctx *model.Context) error {
	fields, err := collectFields(ctx)
	if err != nil {
		return err
	}

	byPage := map[int][]widget{}
	for _, field := range fields {
		for _, w := range field.widgets {
			if w.pageIndex < 0 || w.ref == nil {
				continue
			}
			byPage[w.pageIndex] = append(byPage[w.pageIndex], w)
		}
	}

	pageIndexes := make([]int, 0, len(byPage))
	for idx := range byPage {
		pageIndexes = append(pageIndexes, idx)
	}
	sort.Ints(pageIndexes)

	for _, idx := range pageIndexes {
		if err := flattenPage(ctx, idx, byPage[idx]); err != nil {
			return fmt.Errorf("page %d: %w", idx+1, err)
		}
	}

	catalog, err := ctx.Catalog()
	if err != nil {
		return err
	}
	delete(catalog, "AcroForm")
	return nil
}

func flattenPage(ctx *model.Context, pageIndex int, widgets []widget) error {
	pageDict, _, inherited, err := ctx.PageDict(pageIndex+1, false)
	if err != nil {
		return err
	}

	resources, err := pageResources(ctx, pageDict, inherited)
	if err != nil {
		return err
	}
	xobjects, err := ensureDict(ctx, resources, "XObject")
	if err != nil {
		return err
	}

	var content bytes.Buffer
	removed := map[int]bool{}
	for i, w := range widgets {
		removed[w.ref.ObjectNumber.Value()] = true
		if w.hidden() {
			continue
		}
		apRef, bbox, ok, err := normalAppearance(ctx, w.dict)
		if err != nil {
			return err
		}
		if !ok || bbox.Width() <= 0 || bbox.Height() <= 0 {
			continue
		}

		name := fmt.Sprintf("FlatFm%d_%d", pageIndex, i)
		xobjects[name] = apRef

		sx := w.rect.Width() / bbox.Width()
		sy := w.rect.Height() / bbox.Height()
		tx := w.rect.LLX - bbox.LLX*sx
		ty := w.rect.LLY - bbox.LLY*sy
		fmt.Fprintf(&content, "q %.4f 0 0 %.4f %.4f %.4f cm /%s Do Q\n", sx, sy, tx, ty, name)
	}

	if content.Len() > 0 {
		if err := appendContent(ctx, pageDict, content.Bytes()); err != nil {
			return err
		}
	}
	return removeAnnotations(ctx, pageDict, removed)
}

// pageResources はページの Resources 辞書を返します。継承されている場合はページにコピーします。
func pageResources(ctx *model.Context, pageDict types.Dict, inherited *model.InheritedPageAttrs) (types.Dict, error) {
	if obj, ok := pageDict["Resources"]; ok {
		d, err := ctx.DereferenceDict(obj)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}
	}
	d := types.NewDict()
	if inherited != nil {
		for k, v := range inherited.Resources {
			d[k] = v
		}
	}
	pageDict["Resources"] = d
	return d, nil
}

// normalAppearance は /AP /N の外観ストリームを返します。ボタンは /AS で状態を選びます。
func normalAppearance(ctx *model.Context, d types.Dict) (types.IndirectRef, rect, bool, error) {
	ap, err := ctx.DereferenceDict(d["AP"])
	if err != nil || ap == nil {
		return types.IndirectRef{}, rect{}, false, err
	}

	n := ap["N"]
	ref, isRef := n.(types.IndirectRef)
	if isRef {
		obj, err := ctx.Dereference(ref)
		if err != nil {
			return types.IndirectRef{}, rect{}, false, err
		}
		if states, ok := obj.(types.Dict); ok {
			n = states
			isRef = false
		}
	}
	if !isRef {
		states, ok := n.(types.Dict)
		if !ok {
			return types.IndirectRef{}, rect{}, false, nil
		}
		as, ok := d["AS"].(types.Name)
		if !ok {
			return types.IndirectRef{}, rect{}, false, nil
		}
		ref, isRef = states[string(as)].(types.IndirectRef)
		if !isRef {
			return types.IndirectRef{}, rect{}, false, nil
		}
	}

	obj, err := ctx.Dereference(ref)
	if err != nil {
		return types.IndirectRef{}, rect{}, false, err
	}
	sd, ok := obj.(types.StreamDict)
	if !ok {
		return types.IndirectRef{}, rect{}, false, nil
	}
	bbox, ok := parseRect(ctx, sd.Dict["BBox"])
	if !ok {
		return types.IndirectRef{}, rect{}, false, nil
	}
	sd.Dict["Type"] = types.Name("XObject")
	sd.Dict["Subtype"] = types.Name("Form")
	return ref, bbox, true, nil
}

// appendContent は既存の内容を q/Q で囲み、その後ろに新しい内容ストリームを追加します。
func appendContent(ctx *model.Context, pageDict types.Dict, content []byte) error {
	var existing types.Array
	switch c := pageDict["Contents"].(type) {
	case types.IndirectRef:
		obj, err := ctx.Dereference(c)
		if err != nil {
			return err
		}
		if arr, ok := obj.(types.Array); ok {
			existing = append(existing, arr...)
		} else {
			existing = types.Array{c}
		}
	case types.Array:
		existing = append(existing, c...)
	}

	contents := types.Array{}
	if len(existing) > 0 {
		open, err := newContentStream(ctx, []byte("q\n"))
		if err != nil {
			return err
		}
		closeRef, err := newContentStream(ctx, []byte("\nQ\n"))
		if err != nil {
			return err
		}
		contents = append(contents, *open)
		contents = append(contents, existing...)
		contents = append(contents, *closeRef)
	}
	flat, err := newContentStream(ctx, content)
	if err != nil {
		return err
	}
	contents = append(contents, *flat)
	pageDict["Contents"] = contents
	return nil
}

func newContentStream(ctx *model.Context, content []byte) (*types.IndirectRef, error) {
	sd, err := ctx.NewStreamDictForBuf(content)
	if err != nil {
		return nil, err
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return ctx.IndRefForNewObject(*sd)
}

// removeAnnotations はフラット化したウィジェットをページの /Annots から外します。
func removeAnnotations(ctx *model.Context, pageDict types.Dict, removed map[int]bool) error {
	annots, err := ctx.DereferenceArray(pageDict["Annots"])
	if err != nil {
		return err
	}
	kept := types.Array{}
	for _, a := range annots {
		if ref, ok := a.(types.IndirectRef); ok && removed[ref.ObjectNumber.Value()] {
			continue
		}
		kept = append(kept, a)
	}
	if len(kept) == 0 {
		delete(pageDict, "Annots")
		return nil
	}
	pageDict["Annots"] = kept
	return nil
}

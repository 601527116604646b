package pdf

import (
	"context"

	"github.com/rs/zerolog"
)

// Engine はフォーム入力から結合までの PDF 処理をまとめたものです。
type Engine struct {
	filler    *FormFiller
	overlay   *SignatureOverlay
	flattener *Flattener
	geometry  PageGeometry
}

// NewEngine は A4 を添付ページとする Engine を作成します。
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{
		filler:    NewFormFiller(logger),
		overlay:   NewSignatureOverlay(),
		flattener: NewFlattener(),
		geometry:  A4,
	}
}

// Fill はテンプレートに値を書き込みます。
func (e *Engine) Fill(ctx context.Context, template []byte, values []FieldValue) (*FilledForm, error) {
	return e.filler.Fill(ctx, template, values)
}

// StampSignature は署名画像を宣誓ページに描画します。
func (e *Engine) StampSignature(ctx context.Context, doc, img []byte, declaredMime string) ([]byte, error) {
	return e.overlay.Apply(ctx, doc, img, declaredMime)
}

// Flatten はフォームをフラット化します。
func (e *Engine) Flatten(ctx context.Context, doc []byte) ([]byte, error) {
	return e.flattener.Flatten(ctx, doc)
}

// NewMerger はフォームのページで初期化した Merger を返します。
func (e *Engine) NewMerger(seed []byte) (*Merger, error) {
	return NewMerger(seed, e.geometry)
}

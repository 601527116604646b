package pdf

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/gabriel-vasile/mimetype"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Merger は出力文書のページ列を組み立てます。
// 先頭はフラット化済みフォームで、以降は添付を追加順に並べます。
type Merger struct {
	conf     *model.Configuration
	geometry PageGeometry
	parts    [][]byte
	pages    int
}

// NewMerger はフォームのページで初期化した Merger を作成します。
func NewMerger(seed []byte, geometry PageGeometry) (*Merger, error) {
	m := &Merger{
		conf:     newConfiguration(),
		geometry: geometry,
	}
	n, err := m.countPages(seed)
	if err != nil {
		return nil, newError(CodeMergeFailed, "failed to read form pages", err)
	}
	m.parts = append(m.parts, seed)
	m.pages = n
	return m, nil
}

// Append は添付を追加し、増えたページ数を返します。
// 種別は内容から判定し、判定できない場合は宣言された MIME を使います。
func (m *Merger) Append(data []byte, declaredMime string) (int, error) {
	switch detectKind(data, declaredMime) {
	case "application/pdf":
		return m.AppendDocument(data)
	case "image/png", "image/jpeg":
		if err := m.AppendImage(data); err != nil {
			return 0, err
		}
		return 1, nil
	default:
		return 0, newError(CodeUnsupportedFile, fmt.Sprintf("unsupported attachment type %s", NormalizeMime(declaredMime)), nil)
	}
}

// AppendDocument は PDF の全ページを順に追加します。
func (m *Merger) AppendDocument(data []byte) (int, error) {
	n, err := m.countPages(data)
	if err != nil {
		return 0, newError(CodeMergeFailed, "failed to read attached document", err)
	}
	m.parts = append(m.parts, data)
	m.pages += n
	return n, nil
}

// AppendImage は画像を1ページに収めて追加します。
func (m *Merger) AppendImage(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return newError(CodeInvalidImage, "failed to decode attached image", err)
	}
	placement, err := FitToPage(float64(cfg.Width), float64(cfg.Height), m.geometry)
	if err != nil {
		return newError(CodeInvalidImage, "failed to place attached image", err)
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.PageDim = &types.Dim{Width: m.geometry.Width, Height: m.geometry.Height}
	imp.PageSize = ""
	imp.UserDim = true
	imp.Pos = types.Center
	imp.Scale = placement.Scale
	imp.ScaleAbs = true
	imp.DPI = 72
	imp.InpUnit = types.POINTS

	var page bytes.Buffer
	if err := pdfapi.ImportImages(nil, &page, []io.Reader{bytes.NewReader(data)}, imp, m.conf); err != nil {
		return newError(CodeInvalidImage, "failed to convert image to page", err)
	}
	m.parts = append(m.parts, page.Bytes())
	m.pages++
	return nil
}

// PageCount は現在のページ数を返します。
func (m *Merger) PageCount() int {
	return m.pages
}

// WriteTo は全パーツを1つの PDF に結合して w に書き出します。
func (m *Merger) WriteTo(w io.Writer) (int64, error) {
	if len(m.parts) == 1 {
		n, err := w.Write(m.parts[0])
		return int64(n), err
	}
	readers := make([]io.ReadSeeker, 0, len(m.parts))
	for _, part := range m.parts {
		readers = append(readers, bytes.NewReader(part))
	}
	cw := &countingWriter{w: w}
	if err := pdfapi.MergeRaw(readers, cw, false, m.conf); err != nil {
		return cw.n, newError(CodeMergeFailed, "failed to merge documents", err)
	}
	return cw.n, nil
}

func (m *Merger) countPages(data []byte) (int, error) {
	n, err := pdfapi.PageCount(bytes.NewReader(data), m.conf)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("document has no pages")
	}
	return n, nil
}

// detectKind は内容から種別を判定します。
func detectKind(data []byte, declaredMime string) string {
	detected := mimetype.Detect(data)
	for _, kind := range []string{"application/pdf", "image/png", "image/jpeg"} {
		if detected.Is(kind) {
			return kind
		}
	}
	return NormalizeMime(declaredMime)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

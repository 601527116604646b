package pdf

import "fmt"

// PageGeometry は画像を配置するページの大きさと余白（pt）です。
type PageGeometry struct {
	Width  float64
	Height float64
	Margin float64
}

// A4 は添付画像用の既定ページです。
var A4 = PageGeometry{Width: 595.28, Height: 841.89, Margin: 36}

// Placement はページ上の画像の配置です。X, Y は左下原点です。
type Placement struct {
	Scale  float64
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// FitToPage は w×h の画像を余白の内側に収まるよう縮小し、中央に配置します。
// 拡大はしません。
func FitToPage(w, h float64, g PageGeometry) (Placement, error) {
	if w <= 0 || h <= 0 {
		return Placement{}, fmt.Errorf("invalid image dimensions %gx%g", w, h)
	}
	usableW := g.Width - 2*g.Margin
	usableH := g.Height - 2*g.Margin
	if usableW <= 0 || usableH <= 0 {
		return Placement{}, fmt.Errorf("page %gx%g has no usable area with margin %g", g.Width, g.Height, g.Margin)
	}

	scale := min(usableW/w, usableH/h, 1)
	placedW := w * scale
	placedH := h * scale
	return Placement{
		Scale:  scale,
		X:      (g.Width - placedW) / 2,
		Y:      (g.Height - placedH) / 2,
		Width:  placedW,
		Height: placedH,
	}, nil
}

// fitSignature は署名画像をフィールド矩形と 140×30 の上限に収まる倍率を返します。
func fitSignature(imgW, imgH, rectW, rectH float64) (float64, error) {
	if imgW <= 0 || imgH <= 0 {
		return 0, fmt.Errorf("invalid signature dimensions %gx%g", imgW, imgH)
	}
	capW := min(rectW, signatureMaxWidth)
	capH := min(rectH, signatureMaxHeight)
	if capW <= 0 || capH <= 0 {
		return 0, fmt.Errorf("signature field has no area")
	}
	return min(capW/imgW, capH/imgH, 1), nil
}

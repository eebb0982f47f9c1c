// Package imgutil は生成画像の後処理（アスペクト比の調整）を提供します。
package imgutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
)

const (
	// DefaultAspectRatio はストーリーボードの標準フレーム比（16:9）です。
	DefaultAspectRatio = 16.0 / 9.0

	// cropJPEGQuality は再エンコード時の固定品質です。
	cropJPEGQuality = 90
)

// ErrImageProcessing は画像のデコードまたは再エンコードの失敗を表します。
var ErrImageProcessing = errors.New("image processing failed")

// CenterCropToAspect は画像データ（PNG, GIF, JPEG等）を目標アスペクト比に
// センタークロップし、JPEGとして再エンコードして返します。
// 幅か高さのどちらか一方だけを縮めるため、出力サイズが入力を超えることはありません。
func CenterCropToAspect(data []byte, targetRatio float64) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrImageProcessing, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var crop image.Rectangle
	if float64(width)/float64(height) > targetRatio {
		// 横長すぎる場合は幅を詰める
		newWidth := int(float64(height) * targetRatio)
		left := (width - newWidth) / 2
		crop = image.Rect(bounds.Min.X+left, bounds.Min.Y, bounds.Min.X+left+newWidth, bounds.Max.Y)
	} else {
		// 縦長すぎる場合は高さを詰める
		newHeight := int(float64(width) / targetRatio)
		top := (height - newHeight) / 2
		crop = image.Rect(bounds.Min.X, bounds.Min.Y+top, bounds.Max.X, bounds.Min.Y+top+newHeight)
	}

	dst := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(dst, dst.Bounds(), img, crop.Min, draw.Src)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, dst, &jpeg.Options{Quality: cropJPEGQuality}); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrImageProcessing, err)
	}
	return buf.Bytes(), nil
}

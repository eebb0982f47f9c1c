// Package wavutil は、ヘッダを持たないリニアPCMデータを
// 標準的なWAVコンテナに変換するためのユーティリティです。
package wavutil

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// Gemini TTS が返す生PCMのデフォルト仕様です。
const (
	DefaultSampleRate    = 24000
	DefaultChannels      = 1
	DefaultBitsPerSample = 16
)

// headerSize は RIFF/WAVE ヘッダの固定長（バイト）です。
const headerSize = 44

// WrapPCM は、生のPCMサンプル列を44バイトのWAVヘッダで包んで返します。
// ヘッダのフィールドはすべて引数から導出されるため、変換は決定的で、
// ヘッダを読み戻せば元のPCMペイロードを完全に復元できます。
func WrapPCM(samples []byte, sampleRate, channels, bitsPerSample int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(samples)

	buf := make([]byte, 0, headerSize+dataSize)
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataSize))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16) // fmt チャンク長
	buf = binary.LittleEndian.AppendUint16(buf, 1)  // 1 = 無圧縮PCM
	buf = binary.LittleEndian.AppendUint16(buf, uint16(channels))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(byteRate))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(blockAlign))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(bitsPerSample))
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataSize))
	buf = append(buf, samples...)
	return buf
}

// SampleRateFromMIME は "audio/L16;codec=pcm;rate=24000" のような
// MIMEパラメータ文字列からサンプルレートを取り出します。
// rate= が無い、または解釈できない場合は DefaultSampleRate を返します。
func SampleRateFromMIME(mimeType string) int {
	_, params, ok := strings.Cut(mimeType, "rate=")
	if !ok {
		return DefaultSampleRate
	}
	if semi := strings.IndexByte(params, ';'); semi >= 0 {
		params = params[:semi]
	}
	rate, err := strconv.Atoi(strings.TrimSpace(params))
	if err != nil || rate <= 0 {
		return DefaultSampleRate
	}
	return rate
}

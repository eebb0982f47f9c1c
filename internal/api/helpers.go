package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shouni/go-storyboard-kit/internal/gemini"
)

// writeJSON はJSONレスポンスを書き出します。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError はエラーレスポンスを書き出します。
// ボディの形はフロントエンドが期待する {"detail": ...} です。
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// decodeJSON はリクエストボディをデコードし、失敗時は 400 を書き出します。
// 呼び出し元は戻り値が false のとき即 return してください。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeUpstreamError は生成クライアントの失敗をHTTP応答に写します。
// 上流の非成功応答はステータスとメッセージをそのまま透過させます。
func writeUpstreamError(w http.ResponseWriter, err error) {
	var upstream *gemini.UpstreamError
	if errors.As(err, &upstream) {
		writeError(w, upstream.StatusCode, upstream.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

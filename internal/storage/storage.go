// Package storage はオブジェクトストレージの抽象化レイヤーを提供します。
// 本番は S3、ローカル開発はファイルシステムを使います。
package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// ErrNotFound はキーに対応するオブジェクトが存在しないことを示します。
var ErrNotFound = errors.New("storage: object not found")

// Backend はキー単位でバイト列を読み書きするストレージです。
// Get はアセット取得（AssetFetcher）として、Put はストリーミング書き込みとして使います。
type Backend interface {
	// Get はオブジェクトを丸ごと読み込みます。存在しない場合は ErrNotFound を返します。
	Get(ctx context.Context, key string) ([]byte, error)
	// Put は body を最後まで読み、保存が確定してから戻ります。
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	// URL はキーに対応する公開ダウンロードURLを返します。
	URL(key string) string
}

// JoinKey はキーの要素をスラッシュで連結し、各要素の前後のスラッシュを取り除きます。
func JoinKey(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		cleaned = append(cleaned, p)
	}
	return strings.Join(cleaned, "/")
}

// sanitizeKey はキーを正規化し、ストレージのルートから抜け出せないようにします。
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

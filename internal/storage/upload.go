package storage

import (
	"context"
	"errors"
	"io"
)

// Upload はストリーミング書き込みのセッションです。
// BeginUpload の時点でバックエンドへの書き込みが始まり、Write したバイトがそのまま流れます。
type Upload struct {
	pw   *io.PipeWriter
	done chan struct{}
	err  error
}

// BeginUpload は key へのアップロードを開始します。
// 呼び出し側は Write → Close の後に Wait で確定を待ちます。
func BeginUpload(ctx context.Context, backend Backend, key, contentType string) *Upload {
	pr, pw := io.Pipe()
	u := &Upload{
		pw:   pw,
		done: make(chan struct{}),
	}
	go func() {
		defer close(u.done)
		err := backend.Put(ctx, key, pr, contentType)
		if err == nil {
			// 残りを読まずに戻った場合でも書き込み側を止める
			pr.CloseWithError(io.ErrClosedPipe)
		} else {
			pr.CloseWithError(err)
		}
		u.err = err
	}()
	return u
}

// Write はバイト列をアップロードに流します。
func (u *Upload) Write(p []byte) (int, error) {
	return u.pw.Write(p)
}

// Close は入力の終わりを通知します。
func (u *Upload) Close() error {
	return u.pw.Close()
}

// Abort は入力を打ち切り、アップロードを失敗させます。
func (u *Upload) Abort(cause error) {
	if cause == nil {
		cause = errors.New("upload aborted")
	}
	u.pw.CloseWithError(cause)
}

// Wait はバックエンドが保存を確定する（または失敗する）まで待ちます。
func (u *Upload) Wait() error {
	<-u.done
	return u.err
}

package assembly

import "context"

// Decision はステップ後に処理を続けるかどうかです。
type Decision int

const (
	Continue Decision = iota
	Abort
)

// StepResult は各ステップの結果です。
// Continue で Err があるものは劣化扱いで、警告を残して続行します。
type StepResult struct {
	Decision Decision
	Err      error
}

func proceed() StepResult {
	return StepResult{Decision: Continue}
}

func degrade(err error) StepResult {
	return StepResult{Decision: Continue, Err: err}
}

func abort(err error) StepResult {
	return StepResult{Decision: Abort, Err: err}
}

type step struct {
	name string
	run  func(ctx context.Context, job *jobState) StepResult
}

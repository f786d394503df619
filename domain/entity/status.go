package entity

import "time"

type PollState int

const (
	PollIdle PollState = iota
	PollLoading
	PollSuccess
	PollFailure
)

func (s PollState) String() string {
	switch s {
	case PollLoading:
		return "loading"
	case PollSuccess:
		return "success"
	case PollFailure:
		return "failure"
	}
	return "idle"
}

// Status はポーリングの状態。エラー時も直前のスナップショットは保持される
type Status struct {
	State         PollState
	Err           error
	SucceededOnce bool
	LastSuccessAt time.Time
	LastAttemptAt time.Time
}

// FullScreenError は一覧の代わりにエラーだけを表示するかどうか
func (s Status) FullScreenError() bool {
	return s.State == PollFailure && !s.SucceededOnce
}

// Banner は前回のデータの上にエラーを出すかどうか
func (s Status) Banner() bool {
	return s.State == PollFailure && s.SucceededOnce
}

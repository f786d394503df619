package incident

import (
	"slices"
	"sync"
	"time"

	"github.com/pyama86/dlpwatch/domain/entity"
	"golang.org/x/text/collate"
)

type StoreOption func(*Store)

// WithLocale は文字列キーの照合に使うロケールを指定する
func WithLocale(locale string) StoreOption {
	return func(s *Store) { s.collator = NewCollator(locale) }
}

// WithPruneOnMerge が true なら新しいスナップショットに無い選択は外す
func WithPruneOnMerge(prune bool) StoreOption {
	return func(s *Store) { s.prune = prune }
}

func WithSort(cfg entity.SortConfig) StoreOption {
	return func(s *Store) { s.sort = cfg }
}

func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// Store は現在のスナップショットと並び順、選択、取得状態を持つ。
// 表示側はメソッド経由でのみ変更する
type Store struct {
	mu        sync.Mutex
	incidents []entity.Incident
	index     map[string]int
	sort      entity.SortConfig
	selected  map[string]struct{}
	status    entity.Status
	prune     bool
	collator  *collate.Collator
	view      []entity.Incident
	now       func() time.Time
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		index:    map[string]int{},
		sort:     entity.DefaultSortConfig(),
		selected: map[string]struct{}{},
		prune:    true,
		collator: NewCollator("und"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ReplaceSnapshot は取得に成功した一覧で丸ごと置き換える
func (s *Store) ReplaceSnapshot(incidents []entity.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.incidents = make([]entity.Incident, 0, len(incidents))
	s.index = make(map[string]int, len(incidents))
	for _, inc := range incidents {
		if i, dup := s.index[inc.ID]; dup {
			s.incidents[i] = inc
			continue
		}
		s.index[inc.ID] = len(s.incidents)
		s.incidents = append(s.incidents, inc)
	}
	if s.prune {
		for id := range s.selected {
			if _, ok := s.index[id]; !ok {
				delete(s.selected, id)
			}
		}
	}
	s.view = nil

	now := s.now()
	s.status.State = entity.PollSuccess
	s.status.Err = nil
	s.status.SucceededOnce = true
	s.status.LastSuccessAt = now
	s.status.LastAttemptAt = now
}

func (s *Store) MarkLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = entity.PollLoading
	s.status.LastAttemptAt = s.now()
}

// MarkFailure は失敗を記録する。前回のスナップショットは残す
func (s *Store) MarkFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = entity.PollFailure
	s.status.Err = err
	s.status.LastAttemptAt = s.now()
}

func (s *Store) Status() entity.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// View は現在の並び順で並べた一覧を返す。
// 一覧か並び順が変わるまでキャッシュする
func (s *Store) View() []entity.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == nil {
		s.view = SortIncidents(s.incidents, s.sort, s.collator)
	}
	return slices.Clone(s.view)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.incidents)
}

func (s *Store) Find(id string) (entity.Incident, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return entity.Incident{}, false
	}
	return s.incidents[i], true
}

func (s *Store) SetSort(key entity.SortKey) entity.SortConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sort = s.sort.Next(key)
	s.view = nil
	return s.sort
}

func (s *Store) Sort() entity.SortConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sort
}

// ToggleSelect は選択を反転し、反転後に選択されているかを返す
func (s *Store) ToggleSelect(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
		return false
	}
	s.selected[id] = struct{}{}
	return true
}

// ToggleSelectAll は表示中のものが全て選択済みなら選択を全て外し、
// そうでなければ表示中のものを全て選択する
func (s *Store) ToggleSelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := true
	for _, inc := range s.incidents {
		if _, ok := s.selected[inc.ID]; !ok {
			all = false
			break
		}
	}
	if all {
		s.selected = map[string]struct{}{}
		return
	}
	for _, inc := range s.incidents {
		s.selected[inc.ID] = struct{}{}
	}
}

func (s *Store) IsSelected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.selected[id]
	return ok
}

func (s *Store) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SelectedIncidents は一覧にある選択中のインシデントを表示順で返す
func (s *Store) SelectedIncidents() []entity.Incident {
	view := s.View()
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]entity.Incident, 0, len(s.selected))
	for _, inc := range view {
		if _, ok := s.selected[inc.ID]; ok {
			res = append(res, inc)
		}
	}
	return res
}

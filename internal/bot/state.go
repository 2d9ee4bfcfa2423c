package bot

import "sync"

type chatMode int

const (
	modeIdle chatMode = iota
	modeTrain
	modeNote
)

// userState tracks what a sender is currently doing. Training and note
// editing are sticky until /done or completion.
type userState struct {
	mode  chatMode
	label string
}

type stateStore struct {
	mu     sync.Mutex
	states map[int64]userState
}

func newStateStore() *stateStore {
	return &stateStore{states: make(map[int64]userState)}
}

func (s *stateStore) Get(userID int64) userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[userID]
}

func (s *stateStore) SetTrain(userID int64, label string) {
	s.set(userID, userState{mode: modeTrain, label: label})
}

func (s *stateStore) SetNote(userID int64, label string) {
	s.set(userID, userState{mode: modeNote, label: label})
}

func (s *stateStore) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
}

func (s *stateStore) set(userID int64, st userState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = st
}

// Package session holds per-call mutable state so two concurrent calls
// never clobber each other.
package session

import "sync"

// CallSession is the per-call state shared between the bridge's protocol
// readers and tool handlers running concurrently. Mu guards every field;
// both sides mutate the session.
type CallSession struct {
	Mu sync.Mutex

	CallSID   string
	StreamSID string

	// Assigned at checkout, immutable afterwards.
	OrderNumber string

	Phone          string
	PhoneConfirmed bool

	// Guards against a duplicate confirmation SMS.
	NotificationSent bool
}

// ResetTransient clears the order and phone fields for a new media
// stream while keeping the session itself.
func (s *CallSession) ResetTransient() {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.OrderNumber = ""
	s.Phone = ""
	s.PhoneConfirmed = false
	s.NotificationSent = false
}

// Store is a concurrent-safe registry of call sessions keyed by call SID.
// A single store-level lock keeps creation atomic; it is held only for
// map operations, never across I/O.
type Store struct {
	mu     sync.Mutex
	byCall map[string]*CallSession
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{byCall: make(map[string]*CallSession)}
}

// GetOrCreate returns the session for callSID, creating it with defaults
// if absent.
func (st *Store) GetOrCreate(callSID string) *CallSession {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.byCall[callSID]
	if !ok {
		s = &CallSession{CallSID: callSID}
		st.byCall[callSID] = s
	}
	return s
}

// Get returns the session for callSID, or nil if absent.
func (st *Store) Get(callSID string) *CallSession {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.byCall[callSID]
}

// SetStreamSID records the media stream id on an existing session.
func (st *Store) SetStreamSID(callSID, streamSID string) {
	st.mu.Lock()
	s := st.byCall[callSID]
	st.mu.Unlock()

	if s != nil {
		s.Mu.Lock()
		s.StreamSID = streamSID
		s.Mu.Unlock()
	}
}

// Remove deletes the session for callSID.
func (st *Store) Remove(callSID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.byCall, callSID)
}

// Len reports the number of active sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.byCall)
}

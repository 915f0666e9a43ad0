package davfs

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/webdav"
)

// Sweeper is implemented by lock systems that keep records needing periodic
// expiry.
type Sweeper interface {
	// Sweep drops records that expired before now and returns how many.
	Sweep(now time.Time) int
}

// fakeLS grants every lock and every confirmation. Clients that refuse to
// write without LOCK (macOS Finder, Windows Explorer) work against it, while
// nothing is actually locked. Tokens are remembered only so that REFRESH can
// echo the original details back.
type fakeLS struct {
	mu    sync.Mutex
	locks map[string]fakeLock
}

type fakeLock struct {
	details webdav.LockDetails
	// zero means the lock never expires
	expires time.Time
}

// NewFakeLS returns a lock system that always succeeds. The returned value
// also implements Sweeper.
func NewFakeLS() webdav.LockSystem {
	return &fakeLS{locks: make(map[string]fakeLock)}
}

func (l *fakeLS) Confirm(now time.Time, name0, name1 string, conditions ...webdav.Condition) (func(), error) {
	return func() {}, nil
}

func (l *fakeLS) Create(now time.Time, details webdav.LockDetails) (string, error) {
	token := "opaquelocktoken:" + uuid.NewString()
	l.mu.Lock()
	l.locks[token] = fakeLock{details: details, expires: expiry(now, details.Duration)}
	l.mu.Unlock()
	return token, nil
}

func (l *fakeLS) Refresh(now time.Time, token string, duration time.Duration) (webdav.LockDetails, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[token]
	if !ok {
		// unknown tokens are refreshed too; they may predate a restart
		lk.details = webdav.LockDetails{Root: "/"}
	}
	lk.details.Duration = duration
	lk.expires = expiry(now, duration)
	l.locks[token] = lk
	return lk.details, nil
}

func (l *fakeLS) Unlock(now time.Time, token string) error {
	l.mu.Lock()
	delete(l.locks, token)
	l.mu.Unlock()
	return nil
}

func (l *fakeLS) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for token, lk := range l.locks {
		if !lk.expires.IsZero() && lk.expires.Before(now) {
			delete(l.locks, token)
			n++
		}
	}
	return n
}

func (l *fakeLS) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// expiry follows webdav.LockDetails: a negative duration is infinite.
func expiry(now time.Time, d time.Duration) time.Time {
	if d < 0 {
		return time.Time{}
	}
	return now.Add(d)
}

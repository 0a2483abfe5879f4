// Package vault implements the persistent, session-scoped, TTL-bounded,
// LRU-capped token vault (spec §4.2): a bidirectional store from placeholder
// to original value, with per-session per-category monotonic counters.
//
// The live backing store is go.etcd.io/bbolt, keyed by session and token;
// ExportJSON/ImportJSON additionally produce and consume the flat
// token-vault.json array documented in spec §6, for operator inspection and
// migration.
package vault

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/sys/unix"

	"github.com/google/uuid"

	"moltguard/internal/logger"
	"moltguard/internal/pii"
)

var entriesBucket = []byte("vault_entries")

type entryKey struct {
	sessionID string
	token     string
}

// Vault is the live token vault: in-memory session projections backed by a
// debounced, atomically-flushed bbolt database.
type Vault struct {
	mu       sync.Mutex
	db       *bolt.DB
	lockFile *os.File

	sessions map[string]*SessionState

	maxEntries int
	ttl        time.Duration

	pendingPuts    map[entryKey]*VaultEntry
	pendingDeletes map[entryKey]bool
	flushTimer     *time.Timer
	debounce       time.Duration

	purgeEvery time.Duration
	stopPurge  chan struct{}
	purgeDone  chan struct{}

	log     *logger.Logger
	closed  bool
	metrics MetricsHook
}

// MetricsHook receives vault activity counters. Implemented by
// *metrics.Metrics; optional — a nil hook (the zero Options.Metrics) simply
// skips instrumentation.
type MetricsHook interface {
	RecordVaultStore()
	IncVaultEvictions()
	IncVaultPurged(n int)
}

// Options configures a new Vault.
type Options struct {
	Dir        string
	MaxEntries int
	TTL        time.Duration
	PurgeEvery time.Duration
	Debounce   time.Duration
	Metrics    MetricsHook
}

// Open creates the vault directory (mode 0700) if needed, takes an advisory
// exclusive lock on it, opens the backing bbolt database (mode 0600), and
// hydrates in-memory session state from any live (non-expired) entries.
func Open(opts Options) (*Vault, error) {
	if opts.Debounce == 0 {
		opts.Debounce = 100 * time.Millisecond
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("vault: create dir: %w", err)
	}

	lockFile, err := acquireDirLock(opts.Dir)
	if err != nil {
		return nil, err
	}

	dbPath := filepath.Join(opts.Dir, "token-vault.db")
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("vault: open db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	})
	if err != nil {
		db.Close()
		lockFile.Close()
		return nil, fmt.Errorf("vault: init bucket: %w", err)
	}

	v := &Vault{
		db:             db,
		lockFile:       lockFile,
		sessions:       make(map[string]*SessionState),
		maxEntries:     opts.MaxEntries,
		ttl:            opts.TTL,
		pendingPuts:    make(map[entryKey]*VaultEntry),
		pendingDeletes: make(map[entryKey]bool),
		debounce:       opts.Debounce,
		purgeEvery:     opts.PurgeEvery,
		stopPurge:      make(chan struct{}),
		purgeDone:      make(chan struct{}),
		log:            logger.New("VAULT", "info"),
		metrics:        opts.Metrics,
	}

	if err := v.loadLocked(); err != nil {
		v.log.Warnf("load", "vault file unreadable, starting empty: %v", err)
	}

	if opts.PurgeEvery > 0 {
		go v.purgeLoop()
	} else {
		close(v.purgeDone)
	}

	return v, nil
}

func acquireDirLock(dir string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(dir, ".lock"), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("vault: open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("vault: directory already locked by another process: %w", err)
	}
	return f, nil
}

// loadLocked reads every persisted entry, skipping expired ones, rebuilding
// in-memory sessions and per-category counters from the maximum observed n.
func (v *Vault) loadLocked() error {
	now := time.Now()
	return v.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		return b.ForEach(func(_, val []byte) error {
			var e VaultEntry
			if err := json.Unmarshal(val, &e); err != nil {
				return nil // corrupt record: skip, not fatal
			}
			if e.expired(now) {
				return nil
			}
			sess := v.sessions[e.SessionID]
			if sess == nil {
				sess = newSessionState(e.SessionID, v.ttl)
				v.sessions[e.SessionID] = sess
			}
			sess.order = append(sess.order, e.Token)
			entryCopy := e
			sess.entries[e.Token] = &entryCopy
			sess.reverse[e.OriginalValue] = e.Token
			if cat, n, ok := pii.ParsePlaceholder(e.Token); ok && cat == e.Category {
				if n > sess.counters[cat] {
					sess.counters[cat] = n
				}
			}
			return nil
		})
	})
}

// CreateSession allocates a new, empty session with a random UUID-v4 id.
func (v *Vault) CreateSession() string {
	id := uuid.NewString()
	v.mu.Lock()
	v.sessions[id] = newSessionState(id, v.ttl)
	v.mu.Unlock()
	return id
}

// SessionState returns the session's in-memory projection, creating an
// empty one on demand if it does not already exist.
func (v *Vault) SessionState(sessionID string) *SessionState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.getOrCreateLocked(sessionID)
}

func (v *Vault) getOrCreateLocked(sessionID string) *SessionState {
	s, ok := v.sessions[sessionID]
	if !ok {
		s = newSessionState(sessionID, v.ttl)
		v.sessions[sessionID] = s
	}
	return s
}

// Resolve returns the original value for token within sessionID, refreshing
// last_accessed_at. ok is false if the session or token is unknown or the
// entry has expired.
func (v *Vault) Resolve(sessionID, token string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	sess, ok := v.sessions[sessionID]
	if !ok {
		return "", false
	}
	e, ok := sess.entries[token]
	if !ok {
		return "", false
	}
	if e.expired(time.Now()) {
		return "", false
	}
	e.LastAccessedAt = time.Now()
	v.markPutLocked(sessionID, token, e)
	return e.OriginalValue, true
}

// Store allocates a placeholder for original under category cat within
// sessionID, or reuses the existing one if original is already mapped in
// this session (idempotent — spec §4.2/§4.3). The Vault owns counter
// allocation so the idempotent-reuse check and the counter increment happen
// under the same lock, which is what keeps counters gap-free; this is a
// deliberate consolidation of the two systems-language-adjacent contract
// verbs "session_state supplies counters" and "store is idempotent" into one
// call.
func (v *Vault) Store(sessionID, original string, cat pii.Category) string {
	v.mu.Lock()
	defer v.mu.Unlock()

	sess := v.getOrCreateLocked(sessionID)
	if token, ok := sess.tokenFor(original); ok {
		if e := sess.entries[token]; e != nil {
			e.LastAccessedAt = time.Now()
			v.markPutLocked(sessionID, token, e)
		}
		return token
	}

	n := sess.counters[cat] + 1
	sess.counters[cat] = n
	token := pii.Placeholder(cat, n)
	sess.Set(token, original)
	sess.entries[token].Category = cat
	v.markPutLocked(sessionID, token, sess.entries[token])
	if v.metrics != nil {
		v.metrics.RecordVaultStore()
	}

	v.evictIfOverCapLocked()
	return token
}

// PurgeExpired removes every entry whose expires_at has passed, across all
// sessions, and returns the count removed.
func (v *Vault) PurgeExpired() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.purgeExpiredLocked()
}

func (v *Vault) purgeExpiredLocked() int {
	now := time.Now()
	n := 0
	for sid, sess := range v.sessions {
		for _, token := range append([]string(nil), sess.order...) {
			e, ok := sess.entries[token]
			if !ok || !e.expired(now) {
				continue
			}
			sess.Delete(token)
			v.markDeleteLocked(sid, token)
			n++
		}
	}
	if n > 0 && v.metrics != nil {
		v.metrics.IncVaultPurged(n)
	}
	return n
}

// DestroySession removes every entry belonging to sessionID and returns the
// count removed.
func (v *Vault) DestroySession(sessionID string) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	sess, ok := v.sessions[sessionID]
	if !ok {
		return 0
	}
	n := len(sess.order)
	for _, token := range sess.order {
		v.markDeleteLocked(sessionID, token)
	}
	delete(v.sessions, sessionID)
	return n
}

// Close flushes any pending writes, stops the purge loop, and releases the
// directory lock.
func (v *Vault) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	if v.purgeEvery > 0 {
		close(v.stopPurge)
	}
	v.mu.Unlock()

	if v.purgeEvery > 0 {
		<-v.purgeDone
	}

	v.flushNow()

	if err := v.db.Close(); err != nil {
		return err
	}
	unix.Flock(int(v.lockFile.Fd()), unix.LOCK_UN)
	return v.lockFile.Close()
}

func (v *Vault) purgeLoop() {
	defer close(v.purgeDone)
	ticker := time.NewTicker(v.purgeEvery)
	defer ticker.Stop()
	for {
		select {
		case <-v.stopPurge:
			return
		case <-ticker.C:
			if n := v.PurgeExpired(); n > 0 {
				v.log.Infof("purge", "removed %d expired entries", n)
			}
		}
	}
}

// evictIfOverCapLocked evicts the globally oldest-last-accessed entry,
// repeatedly, until the total entry count is at or under maxEntries. This
// may cross sessions (spec §4.2). A plain linear scan is used rather than a
// heap or the teacher's S3-FIFO cache: the spec's eviction policy is "evict
// the single oldest last_accessed_at", not a frequency-aware admission
// policy, so the simpler structure is the faithful one.
func (v *Vault) evictIfOverCapLocked() {
	if v.maxEntries <= 0 {
		return
	}
	for v.totalEntriesLocked() > v.maxEntries {
		oldestSession, oldestToken, found := v.findOldestLocked()
		if !found {
			return
		}
		v.sessions[oldestSession].Delete(oldestToken)
		v.markDeleteLocked(oldestSession, oldestToken)
		v.log.Debugf("evict", "session=%s token=%s", oldestSession, oldestToken)
		if v.metrics != nil {
			v.metrics.IncVaultEvictions()
		}
	}
}

func (v *Vault) totalEntriesLocked() int {
	n := 0
	for _, sess := range v.sessions {
		n += sess.entryCount()
	}
	return n
}

func (v *Vault) findOldestLocked() (sessionID, token string, found bool) {
	var oldest time.Time
	for sid, sess := range v.sessions {
		for tok, e := range sess.entries {
			if !found || e.LastAccessedAt.Before(oldest) {
				oldest = e.LastAccessedAt
				sessionID = sid
				token = tok
				found = true
			}
		}
	}
	return
}

func (v *Vault) markPutLocked(sessionID, token string, e *VaultEntry) {
	key := entryKey{sessionID, token}
	delete(v.pendingDeletes, key)
	copyE := *e
	v.pendingPuts[key] = &copyE
	v.scheduleFlushLocked()
}

func (v *Vault) markDeleteLocked(sessionID, token string) {
	key := entryKey{sessionID, token}
	delete(v.pendingPuts, key)
	v.pendingDeletes[key] = true
	v.scheduleFlushLocked()
}

func (v *Vault) scheduleFlushLocked() {
	if v.flushTimer != nil {
		return
	}
	v.flushTimer = time.AfterFunc(v.debounce, v.flushNow)
}

// flushNow commits every buffered mutation to bbolt in one transaction. On
// failure it re-buffers the mutations and reschedules — vault I/O failures
// are logged and retried, never surfaced to the caller (spec §7).
func (v *Vault) flushNow() {
	v.mu.Lock()
	if v.flushTimer != nil {
		v.flushTimer.Stop()
		v.flushTimer = nil
	}
	puts := v.pendingPuts
	dels := v.pendingDeletes
	v.pendingPuts = make(map[entryKey]*VaultEntry)
	v.pendingDeletes = make(map[entryKey]bool)
	v.mu.Unlock()

	if len(puts) == 0 && len(dels) == 0 {
		return
	}

	err := v.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		for k, e := range puts {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put(boltKey(k), data); err != nil {
				return err
			}
		}
		for k := range dels {
			if err := b.Delete(boltKey(k)); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		v.log.Errorf("flush", "vault flush failed, will retry: %v", err)
		v.mu.Lock()
		for k, e := range puts {
			v.pendingPuts[k] = e
		}
		for k := range dels {
			v.pendingDeletes[k] = true
		}
		v.scheduleFlushLocked()
		v.mu.Unlock()
	}
}

func boltKey(k entryKey) []byte {
	sidLen := make([]byte, 2)
	binary.BigEndian.PutUint16(sidLen, uint16(len(k.sessionID)))
	out := make([]byte, 0, 2+len(k.sessionID)+len(k.token))
	out = append(out, sidLen...)
	out = append(out, k.sessionID...)
	out = append(out, k.token...)
	return out
}

// ExportJSON flushes pending writes and emits the §6-documented flat array
// of every live VaultEntry across all sessions.
func (v *Vault) ExportJSON(w io.Writer) error {
	v.flushNow()

	v.mu.Lock()
	var all []*VaultEntry
	for _, sess := range v.sessions {
		for _, token := range sess.order {
			if e, ok := sess.entries[token]; ok {
				all = append(all, e)
			}
		}
	}
	v.mu.Unlock()

	enc := json.NewEncoder(w)
	return enc.Encode(all)
}

// ImportJSON loads a §6-documented flat array of VaultEntry records,
// skipping any already expired, merging them into the live in-memory state
// and scheduling a flush.
func (v *Vault) ImportJSON(r io.Reader) error {
	var entries []VaultEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("vault: import: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now()
	for _, e := range entries {
		if e.expired(now) {
			continue
		}
		sess := v.getOrCreateLocked(e.SessionID)
		sess.Set(e.Token, e.OriginalValue)
		sess.entries[e.Token].Category = e.Category
		sess.entries[e.Token].CreatedAt = e.CreatedAt
		sess.entries[e.Token].ExpiresAt = e.ExpiresAt
		if cat, n, ok := pii.ParsePlaceholder(e.Token); ok && cat == e.Category {
			if n > sess.counters[cat] {
				sess.counters[cat] = n
			}
		}
		v.markPutLocked(e.SessionID, e.Token, sess.entries[e.Token])
	}
	return nil
}

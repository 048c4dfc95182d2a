package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"

	"github.com/atmx/adledger/internal/model"
)

// EventLogSuffix is appended to the snapshot path to name the event log.
const EventLogSuffix = ".events"

// SnapshotStore persists the ledger in two files. The snapshot holds every
// part of the state except the event history, as a deterministic CBOR
// document rewritten atomically (temp file + rename) on every commit. Events
// are appended to a CBOR sequence next to it, so a commit never re-encodes
// the history.
//
// The snapshot records how many events it covers. A log entry past that count
// was written by a commit whose snapshot never landed and is discarded on open.
type SnapshotStore struct {
	mu      sync.Mutex
	path    string
	enc     cbor.EncMode
	state   *model.State
	log     *os.File
	logSize int64
}

// snapshotFile is the on-disk snapshot document. State.Events is always empty.
type snapshotFile struct {
	State  *model.State `cbor:"1,keyasint"`
	Events uint64       `cbor:"2,keyasint"`
}

// NewSnapshotStore opens (or creates on first commit) the snapshot at path and
// its event log. Close releases the log.
func NewSnapshotStore(path string) (*SnapshotStore, error) {
	enc, err := cbor.EncOptions{
		Sort: cbor.SortCoreDeterministic,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}

	s := &SnapshotStore{path: path, enc: enc}
	st, count, err := s.read()
	if err != nil {
		return nil, err
	}

	log, err := os.OpenFile(path+EventLogSuffix, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	events, size, err := readEvents(log, count)
	if err != nil {
		log.Close()
		return nil, err
	}
	if err := log.Truncate(size); err != nil {
		log.Close()
		return nil, fmt.Errorf("trim event log: %w", err)
	}

	st.Events = events
	s.state = st
	s.log = log
	s.logSize = size
	return s, nil
}

func (s *SnapshotStore) Load(_ context.Context) (*model.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), nil
}

func (s *SnapshotStore) Commit(ctx context.Context, change model.Change, hook Hook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body := *s.state
	body.Events = nil
	next := body.Clone()
	next.Apply(change)
	next.Events = nil

	count := uint64(len(s.state.Events))
	if change.Event.Name != "" {
		count++
	}
	data, err := s.enc.Marshal(snapshotFile{State: next, Events: count})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}

	prevSize := s.logSize
	if change.Event.Name != "" {
		if err := s.appendEvent(change.Event); err != nil {
			return err
		}
	}
	if err := s.write(data); err != nil {
		if terr := s.truncateLog(prevSize); terr != nil {
			return errors.Join(err, terr)
		}
		return err
	}

	s.state.Apply(change)
	return nil
}

// Close releases the event log.
func (s *SnapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Close()
}

func (s *SnapshotStore) read() (*model.State, uint64, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.NewState(), 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read snapshot: %w", err)
	}

	var file snapshotFile
	if err := cbor.Unmarshal(data, &file); err != nil {
		return nil, 0, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	st := file.State
	if st == nil {
		st = model.NewState()
	}
	if st.Registered == nil {
		st.Registered = make(map[model.Address]bool)
	}
	if st.Balances == nil {
		st.Balances = make(map[model.Address]decimal.Decimal)
	}
	return st, file.Events, nil
}

// readEvents decodes the first count events of the log and returns them with
// the byte length they occupy.
func readEvents(f *os.File, count uint64) ([]model.Event, int64, error) {
	dec := cbor.NewDecoder(f)
	events := make([]model.Event, 0, count)
	for uint64(len(events)) < count {
		var ev model.Event
		if err := dec.Decode(&ev); err != nil {
			return nil, 0, fmt.Errorf("event log holds %d of %d events: %w", len(events), count, err)
		}
		events = append(events, ev)
	}
	return events, int64(dec.NumBytesRead()), nil
}

func (s *SnapshotStore) appendEvent(ev model.Event) error {
	data, err := s.enc.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := s.log.Write(data); err != nil {
		return errors.Join(fmt.Errorf("append event: %w", err), s.truncateLog(s.logSize))
	}
	if err := s.log.Sync(); err != nil {
		return errors.Join(fmt.Errorf("sync event log: %w", err), s.truncateLog(s.logSize))
	}
	s.logSize += int64(len(data))
	return nil
}

func (s *SnapshotStore) truncateLog(size int64) error {
	if err := s.log.Truncate(size); err != nil {
		return fmt.Errorf("trim event log: %w", err)
	}
	s.logSize = size
	return nil
}

func (s *SnapshotStore) write(data []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

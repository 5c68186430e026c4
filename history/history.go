// Package history persists before/after snapshots of flattening
// operations so that dashboards can offer diff and revert views.
//
// Snapshots are stored in a local bbolt database under ULID keys, which
// sort chronologically, and are encoded as MessagePack maps. The store
// is an optional collaborator: the analysis core never depends on it.
package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/tinylib/msgp/msgp"
	bolt "go.etcd.io/bbolt"
)

var snapshotBucket = []byte("snapshots")

// ErrNotFound is returned when a snapshot ID does not exist.
var ErrNotFound = fmt.Errorf("history: snapshot not found")

// Snapshot captures one flattening of one domain.
type Snapshot struct {
	// ID is the ULID assigned by Put.
	ID string

	// Domain is the flattened domain.
	Domain string

	// Before and After are the record texts around the operation.
	Before string
	After  string

	// LookupsBefore and LookupsAfter are the static DNS costs of the
	// two records.
	LookupsBefore int
	LookupsAfter  int

	// TotalIPs is the size of the resolved IP set.
	TotalIPs int

	// CreatedAt is when the snapshot was taken.
	CreatedAt time.Time
}

// Store is a bbolt-backed snapshot store. Safe for concurrent use.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the snapshot database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("history: initializing buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores a snapshot, assigning and returning its ID. CreatedAt is
// filled in when zero.
func (s *Store) Put(snap *Snapshot) (string, error) {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	snap.ID = ulid.Make().String()

	data := encodeSnapshot(snap)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put([]byte(snap.ID), data)
	})
	if err != nil {
		return "", fmt.Errorf("history: storing snapshot: %w", err)
	}
	return snap.ID, nil
}

// Get retrieves a snapshot by ID.
func (s *Store) Get(id string) (*Snapshot, error) {
	var snap *Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(snapshotBucket).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var err error
		snap, err = decodeSnapshot(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// List returns snapshots newest first, filtered by domain when domain is
// non-empty. ULID keys sort chronologically, so a reverse cursor scan
// yields creation order without a secondary index.
func (s *Store) List(domain string) ([]*Snapshot, error) {
	var out []*Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(snapshotBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			snap, err := decodeSnapshot(v)
			if err != nil {
				return err
			}
			if domain != "" && !strings.EqualFold(snap.Domain, domain) {
				continue
			}
			out = append(out, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Snapshot field names for the MessagePack encoding. Hand-rolled with
// the msgp primitives; the struct is small and stable enough that
// generated code would be more noise than help.
const (
	fieldID            = "id"
	fieldDomain        = "domain"
	fieldBefore        = "before"
	fieldAfter         = "after"
	fieldLookupsBefore = "lookups_before"
	fieldLookupsAfter  = "lookups_after"
	fieldTotalIPs      = "total_ips"
	fieldCreatedAt     = "created_at"
)

func encodeSnapshot(snap *Snapshot) []byte {
	b := msgp.AppendMapHeader(nil, 8)
	b = msgp.AppendString(b, fieldID)
	b = msgp.AppendString(b, snap.ID)
	b = msgp.AppendString(b, fieldDomain)
	b = msgp.AppendString(b, snap.Domain)
	b = msgp.AppendString(b, fieldBefore)
	b = msgp.AppendString(b, snap.Before)
	b = msgp.AppendString(b, fieldAfter)
	b = msgp.AppendString(b, snap.After)
	b = msgp.AppendString(b, fieldLookupsBefore)
	b = msgp.AppendInt(b, snap.LookupsBefore)
	b = msgp.AppendString(b, fieldLookupsAfter)
	b = msgp.AppendInt(b, snap.LookupsAfter)
	b = msgp.AppendString(b, fieldTotalIPs)
	b = msgp.AppendInt(b, snap.TotalIPs)
	b = msgp.AppendString(b, fieldCreatedAt)
	b = msgp.AppendTime(b, snap.CreatedAt)
	return b
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	sz, rest, err := msgp.ReadMapHeaderBytes(data)
	if err != nil {
		return nil, fmt.Errorf("history: decoding snapshot: %w", err)
	}

	snap := &Snapshot{}
	for i := uint32(0); i < sz; i++ {
		var key string
		key, rest, err = msgp.ReadStringBytes(rest)
		if err != nil {
			return nil, fmt.Errorf("history: decoding snapshot key: %w", err)
		}

		switch key {
		case fieldID:
			snap.ID, rest, err = msgp.ReadStringBytes(rest)
		case fieldDomain:
			snap.Domain, rest, err = msgp.ReadStringBytes(rest)
		case fieldBefore:
			snap.Before, rest, err = msgp.ReadStringBytes(rest)
		case fieldAfter:
			snap.After, rest, err = msgp.ReadStringBytes(rest)
		case fieldLookupsBefore:
			snap.LookupsBefore, rest, err = msgp.ReadIntBytes(rest)
		case fieldLookupsAfter:
			snap.LookupsAfter, rest, err = msgp.ReadIntBytes(rest)
		case fieldTotalIPs:
			snap.TotalIPs, rest, err = msgp.ReadIntBytes(rest)
		case fieldCreatedAt:
			snap.CreatedAt, rest, err = msgp.ReadTimeBytes(rest)
		default:
			rest, err = msgp.Skip(rest)
		}
		if err != nil {
			return nil, fmt.Errorf("history: decoding snapshot field %q: %w", key, err)
		}
	}

	return snap, nil
}

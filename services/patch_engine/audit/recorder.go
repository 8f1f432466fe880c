// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit records validate and apply decisions in a local BadgerDB
// journal.
//
// Every event stores reason codes, counts, and a hash of the touched file
// list. Patch content and file content are never written to the journal,
// so the audit trail can be retained and shipped without leaking source.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/futurianh1k/cursorclone-sub001/services/patch_engine/storage/badger"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrRecorderClosed is returned when operations are called on a closed recorder.
	ErrRecorderClosed = errors.New("audit recorder is closed")

	// ErrEventCorrupted is returned when a stored event fails integrity check.
	ErrEventCorrupted = errors.New("audit event corrupted (CRC mismatch)")

	// ErrNilContext is returned when a nil context is passed to an operation.
	ErrNilContext = errors.New("context must not be nil")
)

// -----------------------------------------------------------------------------
// Event Model
// -----------------------------------------------------------------------------

// Operation identifies which engine entry point produced an event.
type Operation string

const (
	// OperationValidate is a call to the patch validator.
	OperationValidate Operation = "validate"

	// OperationApply is a call to the patch applier.
	OperationApply Operation = "apply"
)

// Outcome is the terminal result of an operation.
type Outcome string

const (
	// OutcomeAccepted means validation passed all checks.
	OutcomeAccepted Outcome = "accepted"

	// OutcomeRejected means validation failed; Event.Reason carries the code.
	OutcomeRejected Outcome = "rejected"

	// OutcomeApplied means every hunk applied and content was committed.
	OutcomeApplied Outcome = "applied"

	// OutcomeConflict means one or more hunks conflicted and nothing was committed.
	OutcomeConflict Outcome = "conflict"

	// OutcomeError means the operation failed for a non-patch reason (I/O, storage).
	OutcomeError Outcome = "error"
)

// Event is one audited engine decision.
//
// Description:
//
//	Events carry enough to answer "who patched what, when, and how it
//	went" without retaining the patch itself. FilesHash is a SHA-256
//	over the sorted normalized file list, so identical patch targets
//	can be correlated across events without storing paths' contents.
type Event struct {
	// ID uniquely identifies this event.
	ID string `json:"id"`

	// Time is when the event was recorded (UTC).
	Time time.Time `json:"time"`

	// WorkspaceID scopes the event. Empty for validations run without
	// a workspace.
	WorkspaceID string `json:"workspace_id,omitempty"`

	// Operation is the engine entry point (validate or apply).
	Operation Operation `json:"operation"`

	// Outcome is the terminal result.
	Outcome Outcome `json:"outcome"`

	// Reason is the rejection or conflict reason code, if any.
	Reason string `json:"reason,omitempty"`

	// FilesHash is the SHA-256 of the sorted normalized file list.
	FilesHash string `json:"files_hash,omitempty"`

	// FileCount is how many files the patch touched.
	FileCount int `json:"file_count"`

	// AppliedHunks is how many hunks applied cleanly (apply only).
	AppliedHunks int `json:"applied_hunks,omitempty"`

	// ConflictCount is how many conflicts were reported (apply only).
	ConflictCount int `json:"conflict_count,omitempty"`

	// PatchBytes is the raw patch size. Size only; content is never stored.
	PatchBytes int `json:"patch_bytes,omitempty"`

	// DryRun marks an apply that staged everything but wrote nothing.
	DryRun bool `json:"dry_run,omitempty"`
}

// HashFileList returns the SHA-256 hex digest of a file list.
//
// Description:
//
//	Sorts a copy of the paths and hashes them newline-joined, so the
//	digest is independent of the order files appear in the patch.
//
// Inputs:
//
//	paths - Normalized file paths. May be empty.
//
// Outputs:
//
//	string - 64-character lowercase hex digest. Empty input hashes too.
func HashFileList(paths []string) string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}

// -----------------------------------------------------------------------------
// Recorder Configuration
// -----------------------------------------------------------------------------

// RecorderConfig configures the audit recorder.
type RecorderConfig struct {
	// Path is the directory for BadgerDB files.
	// Required for persistent mode.
	Path string

	// InMemory uses in-memory BadgerDB (for testing).
	// Default: false.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true.
	SyncWrites bool

	// GCInterval is how often value log GC runs. Default: 5 minutes.
	GCInterval time.Duration

	// Logger for recorder operations.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultRecorderConfig returns sensible defaults for production use.
//
// Outputs:
//
//	RecorderConfig - Ready-to-use production configuration.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		SyncWrites: true,
		GCInterval: 5 * time.Minute,
		Logger:     slog.Default(),
	}
}

// Validate checks if the configuration is valid.
func (c *RecorderConfig) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("path is required for persistent recorder")
	}
	if c.GCInterval < 0 {
		return errors.New("gc_interval must be non-negative")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Recorder
// -----------------------------------------------------------------------------

// Recorder persists audit events to BadgerDB.
//
// Description:
//
//	Events are keyed by workspace and nanosecond timestamp, so listing
//	a workspace's history is a single prefix scan and pruning old
//	entries never touches live ones. Each stored value carries a CRC32
//	checksum that is verified on read.
//
// Key format: "event:{workspace_id}:{unix_nano:020d}:{id_prefix}"
// Value format: [4-byte CRC32][JSON-encoded event]
//
// Thread Safety: Safe for concurrent use from multiple goroutines.
type Recorder struct {
	db     *badger.DB
	logger *slog.Logger
	closed atomic.Bool
}

// NewRecorder opens the audit journal.
//
// Inputs:
//
//	config - Recorder configuration. Must pass Validate().
//
// Outputs:
//
//	*Recorder - Ready-to-use recorder. Caller must Close() when done.
//	error - Non-nil if configuration is invalid or BadgerDB fails to open.
//
// Thread Safety: Safe for concurrent use.
func NewRecorder(config RecorderConfig) (*Recorder, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With(slog.String("component", "audit"))

	dbConfig := badger.DefaultConfig()
	dbConfig.Path = config.Path
	dbConfig.InMemory = config.InMemory
	dbConfig.SyncWrites = config.SyncWrites
	dbConfig.GCInterval = config.GCInterval
	dbConfig.Logger = config.Logger

	db, err := badger.OpenDB(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	logger.Info("audit recorder opened",
		slog.String("path", config.Path),
		slog.Bool("in_memory", config.InMemory),
		slog.Bool("sync_writes", config.SyncWrites))

	return &Recorder{
		db:     db,
		logger: logger,
	}, nil
}

// Record persists a single audit event.
//
// Description:
//
//	Fills in ID and Time if the caller left them zero, then writes the
//	event with a CRC32 checksum. The write is synchronous when the
//	recorder was opened with SyncWrites.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	event - The event to record. Operation must be set.
//
// Outputs:
//
//	error - Non-nil if the event is invalid or the write fails.
//
// Thread Safety: Safe for concurrent use.
func (r *Recorder) Record(ctx context.Context, event Event) error {
	if ctx == nil {
		return ErrNilContext
	}
	if event.Operation == "" {
		return errors.New("event operation must not be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if r.closed.Load() {
		return ErrRecorderClosed
	}

	ctx, span := otel.Tracer("audit").Start(ctx, "audit.Record",
		trace.WithAttributes(
			attribute.String("workspace_id", event.WorkspaceID),
			attribute.String("operation", string(event.Operation)),
			attribute.String("outcome", string(event.Outcome)),
		),
	)
	defer span.End()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	data, err := encodeEvent(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return fmt.Errorf("encode event: %w", err)
	}

	key := eventKey(event.WorkspaceID, event.Time, event.ID)
	err = r.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return fmt.Errorf("write event: %w", err)
	}

	r.logger.Debug("audit event recorded",
		slog.String("event_id", event.ID),
		slog.String("workspace_id", event.WorkspaceID),
		slog.String("operation", string(event.Operation)),
		slog.String("outcome", string(event.Outcome)),
		slog.String("reason", event.Reason))

	return nil
}

// List returns a workspace's events, newest first.
//
// Description:
//
//	Scans the workspace's key prefix in reverse timestamp order.
//	Corrupted entries are logged and skipped rather than failing the
//	whole read; an audit viewer should see everything that survives.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	workspaceID - Workspace to list. Empty string lists events that
//	    were recorded without a workspace.
//	limit - Maximum events to return. Zero or negative means no limit.
//
// Outputs:
//
//	[]Event - Events newest-first. Empty if none exist.
//	error - Non-nil if the read fails or context is cancelled.
//
// Thread Safety: Safe for concurrent use.
func (r *Recorder) List(ctx context.Context, workspaceID string, limit int) ([]Event, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if r.closed.Load() {
		return nil, ErrRecorderClosed
	}

	ctx, span := otel.Tracer("audit").Start(ctx, "audit.List",
		trace.WithAttributes(
			attribute.String("workspace_id", workspaceID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	prefix := []byte(workspaceKeyPrefix(workspaceID))
	events := make([]Event, 0, 16)
	corrupted := 0

	err := r.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true // Newest first

		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the highest possible key with our prefix
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if limit > 0 && len(events) >= limit {
				break
			}

			err := it.Item().Value(func(val []byte) error {
				event, err := decodeEvent(val)
				if err != nil {
					corrupted++
					r.logger.Warn("skipping corrupted audit event",
						slog.String("key", string(it.Item().Key())),
						slog.String("error", err.Error()))
					return nil
				}
				events = append(events, event)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, fmt.Errorf("list events: %w", err)
	}

	span.SetAttributes(
		attribute.Int("event_count", len(events)),
		attribute.Int("corrupted_count", corrupted),
	)

	return events, nil
}

// Prune deletes events older than the cutoff across all workspaces.
//
// Description:
//
//	Walks the whole event keyspace and deletes entries whose key
//	timestamp precedes the cutoff. The timestamp lives in the key, so
//	pruning never decodes values.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	olderThan - Events recorded before this time are deleted.
//
// Outputs:
//
//	int - Number of events deleted.
//	error - Non-nil if the delete transaction fails.
//
// Thread Safety: Safe for concurrent use.
func (r *Recorder) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	if ctx == nil {
		return 0, ErrNilContext
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	if r.closed.Load() {
		return 0, ErrRecorderClosed
	}

	ctx, span := otel.Tracer("audit").Start(ctx, "audit.Prune",
		trace.WithAttributes(
			attribute.String("older_than", olderThan.UTC().Format(time.RFC3339)),
		),
	)
	defer span.End()

	cutoffNanos := olderThan.UnixNano()
	deleted := 0

	prefix := []byte(eventKeyPrefix)
	err := r.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			nanos, ok := keyTimestamp(key)
			if !ok {
				continue // Skip malformed keys
			}

			if nanos < cutoffNanos {
				if err := txn.Delete(key); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prune failed")
		return 0, fmt.Errorf("prune events: %w", err)
	}

	span.SetAttributes(attribute.Int("deleted_count", deleted))

	if deleted > 0 {
		r.logger.Info("audit events pruned",
			slog.Int("deleted", deleted),
			slog.Time("older_than", olderThan))
	}

	return deleted, nil
}

// Close releases the underlying store.
//
// Outputs:
//
//	error - Non-nil if the database close fails.
//
// Thread Safety: Safe for concurrent use. Subsequent calls are no-ops.
func (r *Recorder) Close() error {
	if r.closed.Swap(true) {
		return nil // Already closed
	}

	r.logger.Info("closing audit recorder")
	return r.db.Close()
}

// -----------------------------------------------------------------------------
// Key Scheme and Encoding
// -----------------------------------------------------------------------------

const eventKeyPrefix = "event:"

// workspaceKeyPrefix returns the key prefix for one workspace's events.
func workspaceKeyPrefix(workspaceID string) string {
	return fmt.Sprintf("%s%s:", eventKeyPrefix, workspaceID)
}

// eventKey builds the storage key for an event.
//
// Workspace IDs never contain ':' (the store rejects them), so the
// colon-delimited layout parses unambiguously. The zero-padded
// nanosecond timestamp keeps keys in chronological byte order, and the
// ID prefix disambiguates events recorded in the same nanosecond.
func eventKey(workspaceID string, t time.Time, id string) []byte {
	idPrefix := id
	if len(idPrefix) > 8 {
		idPrefix = idPrefix[:8]
	}
	return []byte(fmt.Sprintf("%s%020d:%s", workspaceKeyPrefix(workspaceID), t.UnixNano(), idPrefix))
}

// keyTimestamp extracts the nanosecond timestamp from an event key.
func keyTimestamp(key []byte) (int64, bool) {
	rest := strings.TrimPrefix(string(key), eventKeyPrefix)
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		return 0, false
	}

	var nanos int64
	if _, err := fmt.Sscanf(parts[1], "%020d", &nanos); err != nil {
		return 0, false
	}
	return nanos, true
}

// encodeEvent encodes an event with a CRC32 checksum.
//
// Value layout: [4-byte CRC32 of JSON][JSON data].
func encodeEvent(event Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}

	crc := crc32.ChecksumIEEE(payload)

	result := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(result[:4], crc)
	copy(result[4:], payload)

	return result, nil
}

// decodeEvent decodes an event and validates its CRC32 checksum.
func decodeEvent(data []byte) (Event, error) {
	if len(data) < 5 { // 4-byte CRC + at least 1 byte data
		return Event{}, fmt.Errorf("%w: entry too short", ErrEventCorrupted)
	}

	storedCRC := binary.BigEndian.Uint32(data[:4])
	payload := data[4:]
	computedCRC := crc32.ChecksumIEEE(payload)

	if storedCRC != computedCRC {
		return Event{}, fmt.Errorf("%w: stored=%08x computed=%08x", ErrEventCorrupted, storedCRC, computedCRC)
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, fmt.Errorf("json decode: %w", err)
	}

	return event, nil
}

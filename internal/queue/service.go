package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ferrex-media/ferrex/internal/backoff"
	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ids"
)

// Service wraps *sql.DB the way every other repository in this codebase
// does. Dequeue uses FOR UPDATE SKIP LOCKED so concurrent workers never
// collide on a row.
type Service struct {
	db    *sql.DB
	retry backoff.Policy
}

func NewService(db *sql.DB, retry backoff.Policy) *Service {
	return &Service{db: db, retry: retry}
}

// activeStatesText renders activeStates as a parenthesised SQL list usable
// in `state IN (...)`; built once rather than per-query since it never changes.
var activeStatesText = func() string {
	s := "("
	for i, st := range activeStates {
		if i > 0 {
			s += ","
		}
		s += "'" + string(st) + "'"
	}
	return s + ")"
}()

// Enqueue implements the enqueue contract: merge into an existing active
// row sharing the dedupe key, or insert Ready. A unique-violation on insert
// (lost the race to a concurrent inserter) degrades to a merge lookup.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (JobHandle, error) {
	dedupe := req.DedupeKey
	if dedupe == "" {
		dedupe = ids.DedupeKey(string(req.Payload.Kind), req.Payload.LibraryID, "")
	}

	payloadJSON, err := json.Marshal(req.Payload)
	if err != nil {
		return JobHandle{}, ferrors.Wrap(ferrors.Internal, "marshal job payload", err)
	}

	if existingID, merged, err := s.tryMerge(ctx, s.db, dedupe, req.Priority); err != nil {
		return JobHandle{}, err
	} else if merged {
		return JobHandle{ID: existingID, Outcome: Merged}, nil
	}

	jobID := ids.NewJobID()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orchestrator_jobs (
			id, library_id, kind, payload, priority, state,
			attempts, available_at, lease_owner, lease_id, lease_expires_at,
			dedupe_key, last_error, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, 'ready', 0, NOW(), NULL, NULL, NULL, $6, NULL, NOW(), NOW())
	`, uuid.UUID(jobID), uuid.UUID(req.Payload.LibraryID), string(req.Payload.Kind), payloadJSON, int16(req.Priority), dedupe)

	if err == nil {
		return JobHandle{ID: jobID, Outcome: Accepted}, nil
	}

	if !isUniqueViolation(err) {
		return JobHandle{}, ferrors.Wrap(ferrors.Database, "enqueue insert", err)
	}

	// Lost the race: the winner is now visible to the merge lookup.
	existingID, merged, mergeErr := s.tryMerge(ctx, s.db, dedupe, req.Priority)
	if mergeErr != nil {
		return JobHandle{}, mergeErr
	}
	if merged {
		return JobHandle{ID: existingID, Outcome: Merged}, nil
	}
	return JobHandle{}, ferrors.New(ferrors.Internal, "enqueue conflict: could not resolve existing row")
}

// EnqueueMany is transactional: either every request ends Accepted/Merged,
// or the whole batch aborts.
func (s *Service) EnqueueMany(ctx context.Context, reqs []EnqueueRequest) ([]JobHandle, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "begin enqueue_many tx", err)
	}
	defer tx.Rollback()

	handles := make([]JobHandle, 0, len(reqs))
	for _, req := range reqs {
		dedupe := req.DedupeKey
		if dedupe == "" {
			dedupe = ids.DedupeKey(string(req.Payload.Kind), req.Payload.LibraryID, "")
		}

		payloadJSON, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.Internal, "marshal job payload", err)
		}

		if existingID, merged, err := s.tryMerge(ctx, tx, dedupe, req.Priority); err != nil {
			return nil, err
		} else if merged {
			handles = append(handles, JobHandle{ID: existingID, Outcome: Merged})
			continue
		}

		jobID := ids.NewJobID()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO orchestrator_jobs (
				id, library_id, kind, payload, priority, state,
				attempts, available_at, lease_owner, lease_id, lease_expires_at,
				dedupe_key, last_error, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, 'ready', 0, NOW(), NULL, NULL, NULL, $6, NULL, NOW(), NOW())
		`, uuid.UUID(jobID), uuid.UUID(req.Payload.LibraryID), string(req.Payload.Kind), payloadJSON, int16(req.Priority), dedupe)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "enqueue_many insert", err)
		}
		handles = append(handles, JobHandle{ID: jobID, Outcome: Accepted})
	}

	if err := tx.Commit(); err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "commit enqueue_many", err)
	}
	return handles, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// tryMerge looks for an active row with the same dedupe key and, if found,
// elevates its priority when the incoming priority is strictly higher and
// the row is not leased: a leased row's effective availability is never
// elevated out from under its current owner.
func (s *Service) tryMerge(ctx context.Context, q execer, dedupe string, priority Priority) (ids.JobID, bool, error) {
	var existingID uuid.UUID
	var existingPriority int16
	err := q.QueryRowContext(ctx, `
		SELECT id, priority
		FROM orchestrator_jobs
		WHERE dedupe_key = $1 AND state IN `+activeStatesText+`
		ORDER BY created_at ASC
		LIMIT 1
	`, dedupe).Scan(&existingID, &existingPriority)
	if err == sql.ErrNoRows {
		return ids.JobID{}, false, nil
	}
	if err != nil {
		return ids.JobID{}, false, ferrors.Wrap(ferrors.Database, "enqueue merge lookup", err)
	}

	if int16(priority) < existingPriority {
		if _, err := q.ExecContext(ctx, `
			UPDATE orchestrator_jobs
			SET priority = $1, available_at = LEAST(available_at, NOW()), updated_at = NOW()
			WHERE id = $2 AND state IN ('ready','deferred')
		`, int16(priority), existingID); err != nil {
			return ids.JobID{}, false, ferrors.Wrap(ferrors.Database, "enqueue merge elevation", err)
		}
	}
	return ids.JobID(existingID), true, nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// Dequeue selects one ready job. With a selector, an exact-match row is
// preferred; the fallback row is only considered when no exact-selector row
// exists.
func (s *Service) Dequeue(ctx context.Context, req DequeueRequest) (*Lease, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "begin dequeue tx", err)
	}
	defer tx.Rollback()

	var row JobRecord
	var jobID uuid.UUID
	var libraryID uuid.UUID
	var priority int16
	var payloadJSON []byte

	if req.Selector != nil {
		err = tx.QueryRowContext(ctx, `
			WITH next AS (
				SELECT id
				FROM orchestrator_jobs
				WHERE state = 'ready' AND kind = $1 AND available_at <= NOW()
				  AND library_id = $2 AND priority = $3
				ORDER BY available_at, attempts, created_at
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			), fallback AS (
				SELECT id
				FROM orchestrator_jobs
				WHERE state = 'ready' AND kind = $1 AND available_at <= NOW()
				  AND NOT EXISTS (SELECT 1 FROM next)
				ORDER BY priority, available_at, attempts, created_at
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			SELECT j.id, j.library_id, j.payload, j.priority, j.attempts,
			       j.available_at, j.dedupe_key, j.created_at, j.updated_at
			FROM orchestrator_jobs j
			JOIN (
				SELECT id FROM next
				UNION ALL
				SELECT id FROM fallback
				LIMIT 1
			) pick ON pick.id = j.id
		`, string(req.Kind), uuid.UUID(req.Selector.LibraryID), int16(req.Selector.Priority)).
			Scan(&jobID, &libraryID, &payloadJSON, &priority, &row.Attempts,
				&row.AvailableAt, &row.DedupeKey, &row.CreatedAt, &row.UpdatedAt)
	} else {
		err = tx.QueryRowContext(ctx, `
			SELECT id, library_id, payload, priority, attempts, available_at,
			       dedupe_key, created_at, updated_at
			FROM orchestrator_jobs
			WHERE kind = $1 AND state = 'ready' AND available_at <= NOW()
			ORDER BY priority ASC, available_at ASC, attempts ASC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, string(req.Kind)).
			Scan(&jobID, &libraryID, &payloadJSON, &priority, &row.Attempts,
				&row.AvailableAt, &row.DedupeKey, &row.CreatedAt, &row.UpdatedAt)
	}

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "dequeue select", err)
	}

	leaseID := ids.NewLeaseID()
	expiresAt := time.Now().Add(req.LeaseTTL)

	res, err := tx.ExecContext(ctx, `
		UPDATE orchestrator_jobs
		SET state='leased', lease_owner=$1, lease_id=$2, lease_expires_at=$3, updated_at=NOW()
		WHERE id = $4 AND state = 'ready'
	`, req.WorkerID, uuid.UUID(leaseID), expiresAt, jobID)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "dequeue update->leased", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Raced with a concurrent state change; treat as nothing ready.
		return nil, nil
	}

	var payload Payload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return nil, ferrors.Wrap(ferrors.Internal, "unmarshal job payload", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "commit dequeue tx", err)
	}

	row.ID = ids.JobID(jobID)
	row.LibraryID = ids.LibraryID(libraryID)
	row.Kind = req.Kind
	row.Payload = payload
	row.Priority = Priority(priority)
	row.State = StateLeased
	owner := req.WorkerID
	row.LeaseOwner = &owner
	row.LeaseID = &leaseID
	row.LeaseExpiresAt = &expiresAt

	return &Lease{LeaseID: leaseID, Job: row, WorkerID: req.WorkerID, ExpiresAt: expiresAt}, nil
}

// Renew extends lease_expires_at by extendBy if the lease is current.
func (s *Service) Renew(ctx context.Context, leaseID ids.LeaseID, extendBy time.Duration) (*Lease, error) {
	var jobID uuid.UUID
	var libraryID uuid.UUID
	var payloadJSON []byte
	var priority int16
	var row JobRecord
	var workerID string
	var expiresAt time.Time

	err := s.db.QueryRowContext(ctx, `
		UPDATE orchestrator_jobs
		SET lease_expires_at = lease_expires_at + ($1 || ' milliseconds')::interval, updated_at = NOW()
		WHERE lease_id = $2 AND state = 'leased' AND lease_expires_at > NOW()
		RETURNING id, library_id, payload, priority, attempts, available_at,
		          dedupe_key, created_at, updated_at, lease_owner, lease_expires_at
	`, extendBy.Milliseconds(), uuid.UUID(leaseID)).
		Scan(&jobID, &libraryID, &payloadJSON, &priority, &row.Attempts, &row.AvailableAt,
			&row.DedupeKey, &row.CreatedAt, &row.UpdatedAt, &workerID, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, ferrors.New(ferrors.NotFound, "lease not found or expired")
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "renew lease", err)
	}

	var payload Payload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return nil, ferrors.Wrap(ferrors.Internal, "unmarshal job payload", err)
	}

	row.ID = ids.JobID(jobID)
	row.LibraryID = ids.LibraryID(libraryID)
	row.Payload = payload
	row.Kind = payload.Kind
	row.Priority = Priority(priority)
	row.State = StateLeased
	row.LeaseID = &leaseID
	row.LeaseOwner = &workerID
	row.LeaseExpiresAt = &expiresAt

	return &Lease{LeaseID: leaseID, Job: row, WorkerID: workerID, ExpiresAt: expiresAt}, nil
}

// Complete is idempotent as a no-op: a lease that is no longer Leased simply
// affects zero rows.
func (s *Service) Complete(ctx context.Context, leaseID ids.LeaseID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orchestrator_jobs
		SET state='completed', lease_owner=NULL, lease_id=NULL, lease_expires_at=NULL, updated_at=NOW()
		WHERE lease_id = $1 AND state='leased'
	`, uuid.UUID(leaseID))
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "complete", err)
	}
	return nil
}

// Fail implements the fail contract: retry with backoff while attempts
// remain, else transition to a terminal state.
func (s *Service) Fail(ctx context.Context, leaseID ids.LeaseID, retryable bool, errMsg *string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "begin fail tx", err)
	}
	defer tx.Rollback()

	var jobID uuid.UUID
	var attemptsBefore int
	err = tx.QueryRowContext(ctx, `
		SELECT id, attempts FROM orchestrator_jobs WHERE lease_id = $1 FOR UPDATE
	`, uuid.UUID(leaseID)).Scan(&jobID, &attemptsBefore)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "fail select", err)
	}

	out := resolveFailure(attemptsBefore, int(s.retry.MaxAttempts), retryable)

	if out.retry {
		delay := s.retry.Jittered(uint16(out.attempts))
		_, err = tx.ExecContext(ctx, `
			UPDATE orchestrator_jobs
			SET attempts = $2, state = 'ready', lease_owner = NULL, lease_id = NULL,
			    lease_expires_at = NULL, last_error = $3,
			    available_at = NOW() + ($4 || ' milliseconds')::interval, updated_at = NOW()
			WHERE id = $1
		`, jobID, out.attempts, errMsg, delay.Milliseconds())
		if err != nil {
			return ferrors.Wrap(ferrors.Database, "fail retry update", err)
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE orchestrator_jobs
			SET attempts = $2, state = $3, lease_owner = NULL, lease_id = NULL,
			    lease_expires_at = NULL, last_error = $4, updated_at = NOW()
			WHERE id = $1
		`, jobID, out.attempts, string(out.state), errMsg)
		if err != nil {
			return ferrors.Wrap(ferrors.Database, "fail terminal update", err)
		}
	}

	return tx.Commit()
}

// failureOutcome is the decided transition for one failed or expired
// attempt: the state to land in, the post-increment attempts count to
// stamp, and whether the job goes back to Ready with backoff.
type failureOutcome struct {
	state    State
	attempts int
	retry    bool
}

// resolveFailure records attempt attemptsBefore+1 and decides its fate: a
// retryable failure returns to Ready only while the new count is still
// below maxAttempts — the moment it reaches maxAttempts the job
// dead-letters in the same call, not one cycle later. Non-retryable
// failures are terminal regardless of the count.
func resolveFailure(attemptsBefore, maxAttempts int, retryable bool) failureOutcome {
	attempts := attemptsBefore + 1
	if !retryable {
		return failureOutcome{state: StateFailed, attempts: attempts}
	}
	if attempts < maxAttempts {
		return failureOutcome{state: StateReady, attempts: attempts, retry: true}
	}
	return failureOutcome{state: StateDeadLetter, attempts: attempts}
}

// DeadLetter is the explicit terminal transition.
func (s *Service) DeadLetter(ctx context.Context, leaseID ids.LeaseID, errMsg *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orchestrator_jobs
		SET state='dead_letter', lease_owner=NULL, lease_id=NULL, lease_expires_at=NULL,
		    last_error=$2, updated_at=NOW()
		WHERE lease_id = $1
	`, uuid.UUID(leaseID), errMsg)
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "dead_letter", err)
	}
	return nil
}

// CancelJob deletes a job only if it is Ready or Deferred; leased jobs must
// complete or fail naturally.
func (s *Service) CancelJob(ctx context.Context, jobID ids.JobID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM orchestrator_jobs WHERE id = $1 AND state IN ('ready','deferred')
	`, uuid.UUID(jobID))
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "cancel_job", err)
	}
	return nil
}

func (s *Service) QueueDepth(ctx context.Context, kind Kind) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orchestrator_jobs WHERE kind = $1 AND state = 'ready'
	`, string(kind)).Scan(&count)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.Database, "queue_depth", err)
	}
	return count, nil
}

// ReadyCountsGrouped primes in-memory schedulers after cold start.
func (s *Service) ReadyCountsGrouped(ctx context.Context) ([]ReadyCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, library_id, priority, COUNT(*)
		FROM orchestrator_jobs
		WHERE state = 'ready'
		GROUP BY kind, library_id, priority
	`)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "ready_counts_grouped", err)
	}
	defer rows.Close()

	var out []ReadyCount
	for rows.Next() {
		var kind string
		var libraryID uuid.UUID
		var priority int16
		var count int
		if err := rows.Scan(&kind, &libraryID, &priority, &count); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "ready_counts_grouped scan", err)
		}
		out = append(out, ReadyCount{
			Kind: Kind(kind), LibraryID: ids.LibraryID(libraryID),
			Priority: Priority(priority), Ready: count,
		})
	}
	return out, rows.Err()
}

// MetricsSnapshot reports per-(kind, state) counts across the whole table,
// not just Ready; housekeeping logs it for operator visibility.
func (s *Service) MetricsSnapshot(ctx context.Context) ([]StateCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, state, COUNT(*) FROM orchestrator_jobs GROUP BY kind, state
	`)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "metrics_snapshot", err)
	}
	defer rows.Close()

	var out []StateCount
	for rows.Next() {
		var kind, state string
		var count int
		if err := rows.Scan(&kind, &state, &count); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "metrics_snapshot scan", err)
		}
		out = append(out, StateCount{Kind: Kind(kind), State: State(state), Count: count})
	}
	return out, rows.Err()
}

// ScanExpiredLeases is the lease-expiry scanner: leased rows whose
// lease has expired are resurrected with backoff, or dead-lettered once
// attempts are exhausted. Returns the number of jobs resurrected.
func (s *Service) ScanExpiredLeases(ctx context.Context, maxAttempts uint16) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, attempts FROM orchestrator_jobs
		WHERE state = 'leased' AND lease_expires_at IS NOT NULL AND lease_expires_at < NOW()
	`)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.Database, "scan_expired_leases select", err)
	}

	type expired struct {
		id       uuid.UUID
		attempts int
	}
	var candidates []expired
	for rows.Next() {
		var e expired
		if err := rows.Scan(&e.id, &e.attempts); err != nil {
			rows.Close()
			return 0, ferrors.Wrap(ferrors.Database, "scan_expired_leases scan", err)
		}
		candidates = append(candidates, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, ferrors.Wrap(ferrors.Database, "scan_expired_leases rows", err)
	}

	resurrected := 0
	for _, c := range candidates {
		out := resolveFailure(c.attempts, int(maxAttempts), true)
		if out.retry {
			delay := s.retry.Jittered(uint16(out.attempts))
			_, err := s.db.ExecContext(ctx, `
				UPDATE orchestrator_jobs
				SET attempts = $2, state = 'ready', lease_owner = NULL, lease_id = NULL,
				    lease_expires_at = NULL,
				    available_at = NOW() + ($3 || ' milliseconds')::interval,
				    last_error = COALESCE(last_error, 'lease expired'), updated_at = NOW()
				WHERE id = $1 AND state = 'leased'
			`, c.id, out.attempts, delay.Milliseconds())
			if err != nil {
				return resurrected, ferrors.Wrap(ferrors.Database, "lease resurrection", err)
			}
			resurrected++
		} else {
			_, err := s.db.ExecContext(ctx, `
				UPDATE orchestrator_jobs
				SET attempts = $2, state = 'dead_letter', lease_owner = NULL, lease_id = NULL,
				    lease_expires_at = NULL, updated_at = NOW(),
				    last_error = COALESCE(last_error, 'lease expired (max attempts)')
				WHERE id = $1 AND state = 'leased'
			`, c.id, out.attempts)
			if err != nil {
				return resurrected, ferrors.Wrap(ferrors.Database, "lease expiry dead-letter", err)
			}
		}
	}

	if resurrected > 0 {
		log.Printf("queue: resurrected %d job(s) after lease expiry", resurrected)
	}
	return resurrected, nil
}

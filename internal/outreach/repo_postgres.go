package outreach

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"outreach-dialer/internal/calls"
	"outreach-dialer/pkg/utils"
)

// PostgresRepo implements Repository on database/sql with the pgx stdlib driver.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

// Queue ordering: fewest attempts first, then queue_order. With household
// grouping the household's lowest queue_order stands in for every member so
// the members are claimed back to back.
const claimQueueEntrySQL = `
WITH next AS (
    SELECT q.id
    FROM campaign_queue q
    JOIN contact c ON c.id = q.contact_id
    WHERE q.campaign_id = $1
      AND q.status = 'queued'
      AND COALESCE(btrim(c.phone), '') <> ''
    ORDER BY q.attempts ASC,
             CASE WHEN $3 AND c.household_key <> '' THEN (
                 SELECT MIN(h.queue_order)
                 FROM campaign_queue h
                 JOIN contact hc ON hc.id = h.contact_id
                 WHERE h.campaign_id = q.campaign_id AND hc.household_key = c.household_key
             ) ELSE q.queue_order END ASC,
             q.queue_order ASC,
             q.id ASC
    LIMIT 1
    FOR UPDATE OF q SKIP LOCKED
)
UPDATE campaign_queue q
SET status = $2, attempts = q.attempts + 1
FROM next, contact c
WHERE q.id = next.id
  AND q.status = 'queued'
  AND c.id = q.contact_id
RETURNING q.id, q.campaign_id, q.contact_id, q.status, q.attempts, q.queue_order,
          q.dequeued_by, q.dequeued_at, q.dequeued_reason,
          c.id, c.workspace_id, c.firstname, c.surname, c.phone, c.address, c.household_key
`

const queueEntryColumns = `
q.id, q.campaign_id, q.contact_id, q.status, q.attempts, q.queue_order,
q.dequeued_by, q.dequeued_at, q.dequeued_reason,
c.id, c.workspace_id, c.firstname, c.surname, c.phone, c.address, c.household_key`

func scanQueueEntry(row rowScanner) (QueueEntry, error) {
	var (
		e          QueueEntry
		by, reason sql.NullString
		at         sql.NullTime
		phone      sql.NullString
	)
	if err := row.Scan(
		&e.ID, &e.CampaignID, &e.ContactID, &e.Status, &e.Attempts, &e.QueueOrder,
		&by, &at, &reason,
		&e.Contact.ID, &e.Contact.WorkspaceID, &e.Contact.Firstname, &e.Contact.Surname,
		&phone, &e.Contact.Address, &e.Contact.HouseholdKey,
	); err != nil {
		return QueueEntry{}, err
	}
	e.DequeuedBy = by.String
	e.DequeuedReason = reason.String
	e.DequeuedAt = timePtr(at)
	e.Contact.Phone = phone.String
	return e, nil
}

func (r *PostgresRepo) ClaimQueueEntry(ctx context.Context, req ClaimRequest) (QueueEntry, bool, error) {
	if req.CampaignID == 0 || strings.TrimSpace(req.AgentID) == "" {
		return QueueEntry{}, false, &StoreError{Kind: KindConstraint, Op: "claim queue entry", Err: ErrInvalidArgument}
	}
	row := r.db.QueryRowContext(ctx, claimQueueEntrySQL, req.CampaignID, req.AgentID, req.GroupByHousehold)
	e, err := scanQueueEntry(row)
	if err != nil {
		if IsNotFound(storeError("claim queue entry", err)) {
			return QueueEntry{}, false, nil
		}
		return QueueEntry{}, false, storeError("claim queue entry", err)
	}
	return e, true, nil
}

func (r *PostgresRepo) GetQueueEntry(ctx context.Context, campaignID, contactID int64) (QueueEntry, error) {
	q := `SELECT ` + queueEntryColumns + `
FROM campaign_queue q
JOIN contact c ON c.id = q.contact_id
WHERE q.campaign_id = $1 AND q.contact_id = $2`
	e, err := scanQueueEntry(r.db.QueryRowContext(ctx, q, campaignID, contactID))
	if err != nil {
		return QueueEntry{}, storeError("get queue entry", err)
	}
	return e, nil
}

func (r *PostgresRepo) ListQueued(ctx context.Context, campaignID int64, exclude []int64, limit int) ([]QueueEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	skip := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	// Over-fetch by the excluded count so filtering cannot starve the page.
	q := `SELECT ` + queueEntryColumns + `
FROM campaign_queue q
JOIN contact c ON c.id = q.contact_id
WHERE q.campaign_id = $1 AND q.status = 'queued'
ORDER BY q.attempts ASC, q.queue_order ASC, q.id ASC
LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, campaignID, limit+len(skip))
	if err != nil {
		return nil, storeError("list queued", err)
	}
	defer rows.Close()

	var out []QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, storeError("list queued", err)
		}
		if _, ok := skip[e.ContactID]; ok {
			continue
		}
		if len(out) < limit {
			out = append(out, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list queued", err)
	}
	return out, nil
}

const dequeueEntriesSQL = `
UPDATE campaign_queue q
SET status = 'dequeued', dequeued_by = $3, dequeued_at = $4, dequeued_reason = $5
FROM contact c
WHERE c.id = q.contact_id
  AND q.campaign_id = $1
  AND q.status <> 'dequeued'
  AND (
      q.contact_id = $2
      OR ($6 AND c.household_key <> '' AND c.household_key = (
          SELECT household_key FROM contact WHERE id = $2
      ))
  )`

func (r *PostgresRepo) DequeueEntries(ctx context.Context, req DequeueRequest) (int64, error) {
	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, dequeueEntriesSQL,
		req.CampaignID, req.ContactID, req.By, at, req.Reason, req.Household)
	if err != nil {
		return 0, storeError("dequeue entries", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("dequeue entries", err)
	}
	return n, nil
}

func (r *PostgresRepo) RequeueClaimed(ctx context.Context, campaignID int64, agentID string) (int64, error) {
	const q = `
UPDATE campaign_queue
SET status = 'queued'
WHERE campaign_id = $1 AND status = $2`
	if strings.TrimSpace(agentID) == "" || agentID == QueueStatusQueued || agentID == QueueStatusDequeued {
		return 0, &StoreError{Kind: KindConstraint, Op: "requeue claimed", Err: ErrInvalidArgument}
	}
	res, err := r.db.ExecContext(ctx, q, campaignID, agentID)
	if err != nil {
		return 0, storeError("requeue claimed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("requeue claimed", err)
	}
	return n, nil
}

func (r *PostgresRepo) ReleaseClaim(ctx context.Context, entryID int64, agentID string) (bool, error) {
	const q = `
UPDATE campaign_queue
SET status = 'queued'
WHERE id = $1 AND status = $2`
	if strings.TrimSpace(agentID) == "" || agentID == QueueStatusQueued || agentID == QueueStatusDequeued {
		return false, &StoreError{Kind: KindConstraint, Op: "release claim", Err: ErrInvalidArgument}
	}
	res, err := r.db.ExecContext(ctx, q, entryID, agentID)
	if err != nil {
		return false, storeError("release claim", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeError("release claim", err)
	}
	return n == 1, nil
}

const attemptColumns = `id, contact_id, campaign_id, workspace_id, user_id, state, disposition,
current_step, result, answered_at, ended_at, created_at`

func scanAttempt(row rowScanner) (Attempt, error) {
	var (
		a               Attempt
		state           string
		disposition     sql.NullString
		result          []byte
		answered, ended sql.NullTime
	)
	if err := row.Scan(
		&a.ID, &a.ContactID, &a.CampaignID, &a.WorkspaceID, &a.UserID, &state, &disposition,
		&a.CurrentStep, &result, &answered, &ended, &a.CreatedAt,
	); err != nil {
		return Attempt{}, err
	}
	st, err := ParseAttemptState(state)
	if err != nil {
		return Attempt{}, err
	}
	a.State = st
	a.Disposition = disposition.String
	if len(result) > 0 {
		a.Result = json.RawMessage(result)
	}
	a.AnsweredAt = timePtr(answered)
	a.EndedAt = timePtr(ended)
	return a, nil
}

func (r *PostgresRepo) CreateAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	q := `
INSERT INTO outreach_attempt (contact_id, campaign_id, workspace_id, user_id, state, disposition, current_step)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
RETURNING ` + attemptColumns
	if a.State == "" {
		a.State = StatePending
	}
	out, err := scanAttempt(r.db.QueryRowContext(ctx, q,
		a.ContactID, a.CampaignID, a.WorkspaceID, a.UserID, string(a.State), a.State.Disposition(), a.CurrentStep))
	if err != nil {
		return Attempt{}, storeError("create attempt", err)
	}
	return out, nil
}

func (r *PostgresRepo) GetAttempt(ctx context.Context, id int64) (Attempt, error) {
	q := `SELECT ` + attemptColumns + ` FROM outreach_attempt WHERE id = $1`
	a, err := scanAttempt(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return Attempt{}, storeError("get attempt", err)
	}
	return a, nil
}

// updateAttemptSQL only matches rows whose current state ranks strictly below
// the target, so a replayed or late event updates nothing.
const updateAttemptSQL = `
UPDATE outreach_attempt
SET state = $2,
    disposition = NULLIF($3, ''),
    answered_at = COALESCE(answered_at, $4),
    ended_at = COALESCE($5, ended_at)
WHERE id = $1
  AND (CASE state
        WHEN 'pending' THEN 0
        WHEN 'dialing' THEN 1
        WHEN 'connected' THEN 2
        ELSE 3 END) < $6
RETURNING ` + attemptColumns

func (r *PostgresRepo) UpdateAttempt(ctx context.Context, id int64, upd AttemptUpdate) (Attempt, bool, error) {
	rank := upd.State.rank()
	if rank == rankUnknown {
		return Attempt{}, false, &StoreError{Kind: KindConstraint, Op: "update attempt", Err: ErrInvalidArgument}
	}
	a, err := scanAttempt(r.db.QueryRowContext(ctx, updateAttemptSQL,
		id, string(upd.State), upd.State.Disposition(), nullTime(upd.AnsweredAt), nullTime(upd.EndedAt), rank))
	if err == nil {
		return a, true, nil
	}
	if !IsNotFound(storeError("update attempt", err)) {
		return Attempt{}, false, storeError("update attempt", err)
	}

	// Nothing matched: either the attempt is gone or it already moved past upd.State.
	cur, err := r.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, false, err
	}
	return cur, false, nil
}

func (r *PostgresRepo) LatestAttempt(ctx context.Context, campaignID, contactID int64, since time.Time) (Attempt, error) {
	q := `SELECT ` + attemptColumns + `
FROM outreach_attempt
WHERE campaign_id = $1 AND contact_id = $2 AND created_at >= $3
ORDER BY created_at DESC, id DESC
LIMIT 1`
	a, err := scanAttempt(r.db.QueryRowContext(ctx, q, campaignID, contactID, since))
	if err != nil {
		return Attempt{}, storeError("latest attempt", err)
	}
	return a, nil
}

func (r *PostgresRepo) CountAttemptsByState(ctx context.Context, campaignID int64) (StateCounts, error) {
	const q = `
SELECT state, COUNT(*)
FROM outreach_attempt
WHERE campaign_id = $1
GROUP BY state`
	rows, err := r.db.QueryContext(ctx, q, campaignID)
	if err != nil {
		return nil, storeError("count attempts", err)
	}
	defer rows.Close()

	out := StateCounts{}
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, storeError("count attempts", err)
		}
		st, err := ParseAttemptState(state)
		if err != nil {
			return nil, storeError("count attempts", err)
		}
		out[st] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("count attempts", err)
	}
	return out, nil
}

const callColumns = `sid, parent_call_sid, outreach_attempt_id, campaign_id, contact_id, workspace_id,
conference_id, conference_tag, direction, "to", "from", status, answered_by, start_time, end_time, updated_at`

func scanCall(row rowScanner) (calls.Call, error) {
	var (
		c                                            calls.Call
		parent, workspace, confID, confTag, answered sql.NullString
		attempt, campaign, contact                   sql.NullInt64
		status                                       string
		start, end                                   sql.NullTime
	)
	if err := row.Scan(
		&c.Sid, &parent, &attempt, &campaign, &contact, &workspace,
		&confID, &confTag, &c.Direction, &c.To, &c.From, &status, &answered, &start, &end, &c.UpdatedAt,
	); err != nil {
		return calls.Call{}, err
	}
	c.ParentCallSid = parent.String
	c.AttemptID = attempt.Int64
	c.CampaignID = campaign.Int64
	c.ContactID = contact.Int64
	c.WorkspaceID = workspace.String
	c.ConferenceID = confID.String
	c.ConferenceTag = confTag.String
	c.Status = calls.CallStatus(status)
	c.AnsweredBy = answered.String
	c.StartTime = timePtr(start)
	c.EndTime = timePtr(end)
	return c, nil
}

const upsertCallSQL = `
INSERT INTO call (sid, parent_call_sid, outreach_attempt_id, campaign_id, contact_id, workspace_id,
                  conference_id, conference_tag, direction, "to", "from", status, answered_by,
                  start_time, end_time, updated_at)
VALUES ($1, NULLIF($2, ''), NULLIF($3, 0), NULLIF($4, 0), NULLIF($5, 0), NULLIF($6, ''),
        NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11, COALESCE(NULLIF($12, ''), 'queued'), NULLIF($13, ''),
        $14, $15, now())
ON CONFLICT (sid) DO UPDATE SET
    parent_call_sid     = COALESCE(EXCLUDED.parent_call_sid, call.parent_call_sid),
    outreach_attempt_id = COALESCE(EXCLUDED.outreach_attempt_id, call.outreach_attempt_id),
    campaign_id         = COALESCE(EXCLUDED.campaign_id, call.campaign_id),
    contact_id          = COALESCE(EXCLUDED.contact_id, call.contact_id),
    workspace_id        = COALESCE(EXCLUDED.workspace_id, call.workspace_id),
    conference_id       = COALESCE(EXCLUDED.conference_id, call.conference_id),
    conference_tag      = COALESCE(EXCLUDED.conference_tag, call.conference_tag),
    direction           = COALESCE(NULLIF(EXCLUDED.direction, ''), call.direction),
    "to"                = COALESCE(NULLIF(EXCLUDED."to", ''), call."to"),
    "from"              = COALESCE(NULLIF(EXCLUDED."from", ''), call."from"),
    status              = CASE
        WHEN NULLIF($12, '') IS NULL THEN call.status
        WHEN call.status IN ('completed', 'failed', 'busy', 'no-answer', 'canceled')
         AND EXCLUDED.status NOT IN ('completed', 'failed', 'busy', 'no-answer', 'canceled')
        THEN call.status
        ELSE EXCLUDED.status END,
    answered_by         = COALESCE(EXCLUDED.answered_by, call.answered_by),
    start_time          = COALESCE(call.start_time, EXCLUDED.start_time),
    end_time            = COALESCE(EXCLUDED.end_time, call.end_time),
    updated_at          = now()
RETURNING ` + callColumns

func (r *PostgresRepo) UpsertCall(ctx context.Context, c calls.Call) (calls.Call, error) {
	if strings.TrimSpace(c.Sid) == "" {
		return calls.Call{}, &StoreError{Kind: KindConstraint, Op: "upsert call", Err: ErrInvalidArgument}
	}
	out, err := scanCall(r.db.QueryRowContext(ctx, upsertCallSQL,
		c.Sid, c.ParentCallSid, c.AttemptID, c.CampaignID, c.ContactID, c.WorkspaceID,
		c.ConferenceID, c.ConferenceTag, c.Direction, c.To, c.From, string(c.Status), c.AnsweredBy,
		nullTime(c.StartTime), nullTime(c.EndTime),
	))
	if err != nil {
		return calls.Call{}, storeError("upsert call", err)
	}
	return out, nil
}

func (r *PostgresRepo) GetCall(ctx context.Context, sid string) (calls.Call, error) {
	q := `SELECT ` + callColumns + ` FROM call WHERE sid = $1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, sid))
	if err != nil {
		return calls.Call{}, storeError("get call", err)
	}
	return c, nil
}

func (r *PostgresRepo) SetCallConference(ctx context.Context, sid, conferenceID string) error {
	const q = `UPDATE call SET conference_id = $2, updated_at = now() WHERE sid = $1`
	res, err := r.db.ExecContext(ctx, q, sid, conferenceID)
	if err != nil {
		return storeError("set call conference", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError("set call conference", err)
	}
	if n == 0 {
		return notFound("set call conference")
	}
	return nil
}

func (r *PostgresRepo) ListActiveCalls(ctx context.Context, campaignID int64, conferenceTag string) ([]calls.Call, error) {
	q := `SELECT ` + callColumns + `
FROM call
WHERE campaign_id = $1
  AND conference_tag = $2
  AND status NOT IN ('completed', 'failed', 'busy', 'no-answer', 'canceled')
ORDER BY sid`
	rows, err := r.db.QueryContext(ctx, q, campaignID, conferenceTag)
	if err != nil {
		return nil, storeError("list active calls", err)
	}
	defer rows.Close()

	var out []calls.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, storeError("list active calls", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list active calls", err)
	}
	return out, nil
}

func (r *PostgresRepo) GetCampaign(ctx context.Context, id int64) (Campaign, error) {
	const q = `
SELECT id, workspace_id, title, dial_type, caller_id, group_household_queue, voicemail_url, dial_ratio, status
FROM campaign
WHERE id = $1`
	var (
		c        Campaign
		dialType string
	)
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&c.ID, &c.WorkspaceID, &c.Title, &dialType, &c.CallerID,
		&c.GroupHouseholdQueue, &c.VoicemailURL, &c.DialRatio, &c.Status,
	); err != nil {
		return Campaign{}, storeError("get campaign", err)
	}
	c.DialType = DialType(dialType)
	return c, nil
}

func (r *PostgresRepo) ListVerifiedDevices(ctx context.Context, userID string) ([]string, error) {
	const q = `SELECT phone FROM agent_device WHERE user_id = $1 AND verified ORDER BY phone`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, storeError("list verified devices", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, storeError("list verified devices", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list verified devices", err)
	}
	return out, nil
}

// EnqueueContacts admits contacts into a campaign queue in one transaction,
// appending after the current highest queue_order. Already-queued contacts are skipped.
func (r *PostgresRepo) EnqueueContacts(ctx context.Context, campaignID int64, contactIDs []int64) (int64, error) {
	var added int64
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var maxOrder int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(queue_order), 0) FROM campaign_queue WHERE campaign_id = $1`,
			campaignID,
		).Scan(&maxOrder); err != nil {
			return err
		}
		for _, id := range contactIDs {
			res, err := tx.ExecContext(ctx, `
INSERT INTO campaign_queue (campaign_id, contact_id, status, queue_order)
VALUES ($1, $2, 'queued', $3)
ON CONFLICT (campaign_id, contact_id) DO NOTHING`, campaignID, id, maxOrder+1)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n > 0 {
				maxOrder++
				added += n
			}
		}
		return nil
	})
	if err != nil {
		return 0, storeError("enqueue contacts", err)
	}
	return added, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ Repository = (*PostgresRepo)(nil)

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/simplyinspect/permwatch/internal/domain/notification"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) notification.Repository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Enqueue(ctx context.Context, msg *notification.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Status == "" {
		msg.Status = notification.StatusPending
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.ScheduledFor.IsZero() {
		msg.ScheduledFor = msg.CreatedAt
	}

	changeIDs, err := json.Marshal(msg.ChangeIDs)
	if err != nil {
		return errors.InternalError("Failed to encode change IDs", err)
	}

	query := `INSERT INTO notification_queue
	          (id, type, site_id, recipient, subject, body, html_body, priority,
	           change_ids, rule_id, status, retry_count, max_retries, scheduled_for, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = r.db.ExecContext(ctx, query,
		msg.ID, msg.Type, msg.SiteID, msg.Recipient, msg.Subject, msg.Body, msg.HTMLBody,
		msg.Priority, string(changeIDs), msg.RuleID, string(msg.Status), msg.RetryCount, msg.MaxRetries,
		msg.ScheduledFor.UTC().Format(time.RFC3339), msg.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return errors.DatabaseError("Failed to enqueue notification", err)
	}

	return nil
}

// ClaimPending selects due pending messages and claims each with a
// conditional update. The status check in the UPDATE makes the claim
// atomic: a message grabbed by a concurrent worker yields zero affected
// rows here and is skipped.
func (r *NotificationRepository) ClaimPending(ctx context.Context, now time.Time, limit int) ([]*notification.Message, error) {
	nowStr := now.UTC().Format(time.RFC3339)

	query := selectMessageColumns +
		` WHERE status = 'pending' AND scheduled_for <= $1
		  ORDER BY priority ASC, scheduled_for ASC
		  LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, nowStr, limit)
	if err != nil {
		return nil, errors.DatabaseError("Failed to select pending notifications", err)
	}
	candidates, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	var claimed []*notification.Message
	for _, msg := range candidates {
		res, err := r.db.ExecContext(ctx,
			`UPDATE notification_queue SET status = 'sending', claimed_at = $1
			 WHERE id = $2 AND status = 'pending'`, nowStr, msg.ID)
		if err != nil {
			return nil, errors.DatabaseError("Failed to claim notification", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return nil, errors.DatabaseError("Failed to check claim result", err)
		}
		if affected == 0 {
			continue
		}

		claimedAt := now.UTC()
		msg.Status = notification.StatusSending
		msg.ClaimedAt = &claimedAt
		claimed = append(claimed, msg)
	}

	return claimed, nil
}

func (r *NotificationRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notification_queue
		 SET status = 'sent', sent_at = $1, claimed_at = NULL, last_error = NULL
		 WHERE id = $2 AND status = 'sending'`, sentAt.UTC().Format(time.RFC3339), id)
	if err != nil {
		return errors.DatabaseError("Failed to mark notification sent", err)
	}
	return requireAffected(res, "Notification")
}

func (r *NotificationRepository) Reschedule(ctx context.Context, id string, retryCount int, nextAttempt time.Time, lastError string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notification_queue
		 SET status = 'pending', retry_count = $1, scheduled_for = $2, claimed_at = NULL, last_error = $3
		 WHERE id = $4 AND status = 'sending'`,
		retryCount, nextAttempt.UTC().Format(time.RFC3339), lastError, id)
	if err != nil {
		return errors.DatabaseError("Failed to reschedule notification", err)
	}
	return requireAffected(res, "Notification")
}

func (r *NotificationRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notification_queue
		 SET status = 'failed', claimed_at = NULL, last_error = $1
		 WHERE id = $2 AND status = 'sending'`, lastError, id)
	if err != nil {
		return errors.DatabaseError("Failed to mark notification failed", err)
	}
	return requireAffected(res, "Notification")
}

// ReclaimStale rescues messages whose worker died mid-delivery. At
// least-once semantics: a message reclaimed here may already have been
// delivered.
func (r *NotificationRepository) ReclaimStale(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	cutoff := now.Add(-timeout).UTC().Format(time.RFC3339)

	res, err := r.db.ExecContext(ctx,
		`UPDATE notification_queue
		 SET status = 'pending', claimed_at = NULL
		 WHERE status = 'sending' AND claimed_at < $1`, cutoff)
	if err != nil {
		return 0, errors.DatabaseError("Failed to reclaim stale notifications", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.DatabaseError("Failed to check reclaim result", err)
	}

	return int(affected), nil
}

// CancelMessage withdraws a message that has not been claimed yet. A
// message already sending, sent, or failed is reported as a conflict
// rather than silently left alone.
func (r *NotificationRepository) CancelMessage(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notification_queue SET status = 'cancelled'
		 WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return errors.DatabaseError("Failed to cancel notification", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.DatabaseError("Failed to check cancel result", err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := r.GetMessage(ctx, id); err != nil {
		return err
	}
	return errors.Conflict("Only pending notifications can be cancelled")
}

func (r *NotificationRepository) HasUndelivered(ctx context.Context, recipient, msgType string) (bool, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notification_queue
		 WHERE recipient = $1 AND type = $2 AND status IN ('pending', 'sending')`,
		recipient, msgType).Scan(&count)
	if err != nil {
		return false, errors.DatabaseError("Failed to check undelivered notifications", err)
	}
	return count > 0, nil
}

func (r *NotificationRepository) GetMessage(ctx context.Context, id string) (*notification.Message, error) {
	row := r.db.QueryRowContext(ctx, selectMessageColumns+` WHERE id = $1`, id)

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Notification")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get notification", err)
	}

	return msg, nil
}

func (r *NotificationRepository) ListMessages(ctx context.Context, status notification.Status, limit, offset int) ([]*notification.Message, int64, error) {
	var total int64
	var rows *sql.Rows
	var err error

	if status == "" {
		if err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM notification_queue`).Scan(&total); err != nil {
			return nil, 0, errors.DatabaseError("Failed to count notifications", err)
		}
		rows, err = r.db.QueryContext(ctx,
			selectMessageColumns+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	} else {
		if err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM notification_queue WHERE status = $1`, string(status)).Scan(&total); err != nil {
			return nil, 0, errors.DatabaseError("Failed to count notifications", err)
		}
		rows, err = r.db.QueryContext(ctx,
			selectMessageColumns+` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			string(status), limit, offset)
	}
	if err != nil {
		return nil, 0, errors.DatabaseError("Failed to list notifications", err)
	}

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}

	return msgs, total, nil
}

func (r *NotificationRepository) CountByStatus(ctx context.Context) (map[notification.Status]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM notification_queue GROUP BY status`)
	if err != nil {
		return nil, errors.DatabaseError("Failed to count queue depth", err)
	}
	defer rows.Close()

	counts := make(map[notification.Status]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.DatabaseError("Failed to scan queue depth", err)
		}
		counts[notification.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to read queue depth", err)
	}

	return counts, nil
}

// Recipient rules

func (r *NotificationRepository) UpsertRule(ctx context.Context, rule *notification.RecipientRule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	types, err := json.Marshal(rule.NotificationTypes)
	if err != nil {
		return errors.InternalError("Failed to encode notification types", err)
	}

	query := `INSERT INTO notification_recipients (email, name, site_id, frequency, notification_types, active, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (site_id, email) DO UPDATE
	          SET name = EXCLUDED.name, frequency = EXCLUDED.frequency,
	              notification_types = EXCLUDED.notification_types, active = EXCLUDED.active`

	_, err = r.db.ExecContext(ctx, query,
		rule.Email, rule.Name, rule.SiteID, string(rule.Frequency), string(types), rule.Active,
		rule.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return errors.DatabaseError("Failed to upsert recipient rule", err)
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT id FROM notification_recipients WHERE site_id = $1 AND email = $2`,
		rule.SiteID, rule.Email)
	if err := row.Scan(&rule.ID); err != nil {
		return errors.DatabaseError("Failed to read recipient rule ID", err)
	}

	return nil
}

func (r *NotificationRepository) DeactivateRule(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notification_recipients SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return errors.DatabaseError("Failed to deactivate recipient rule", err)
	}
	return requireAffected(res, "Recipient rule")
}

func (r *NotificationRepository) ListRules(ctx context.Context) ([]*notification.RecipientRule, error) {
	rows, err := r.db.QueryContext(ctx, selectRuleColumns+` ORDER BY email, site_id`)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list recipient rules", err)
	}
	return scanRules(rows)
}

func (r *NotificationRepository) RulesForSite(ctx context.Context, siteID string) ([]*notification.RecipientRule, error) {
	// Site-specific rules plus global rules (empty site_id)
	rows, err := r.db.QueryContext(ctx,
		selectRuleColumns+` WHERE active AND (site_id = $1 OR site_id = '') ORDER BY email`, siteID)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list site recipient rules", err)
	}
	return scanRules(rows)
}

func (r *NotificationRepository) ListRulesByFrequency(ctx context.Context, freq notification.Frequency) ([]*notification.RecipientRule, error) {
	rows, err := r.db.QueryContext(ctx,
		selectRuleColumns+` WHERE active AND frequency = $1 ORDER BY email`, string(freq))
	if err != nil {
		return nil, errors.DatabaseError("Failed to list recipient rules by frequency", err)
	}
	return scanRules(rows)
}

func (r *NotificationRepository) UpdateLastNotified(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notification_recipients SET last_notification_at = $1 WHERE id = $2`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return errors.DatabaseError("Failed to update last notification time", err)
	}
	return nil
}

const selectMessageColumns = `SELECT id, type, site_id, recipient, subject, body, html_body, priority,
       change_ids, rule_id, status, retry_count, max_retries, last_error, scheduled_for, claimed_at, sent_at, created_at
FROM notification_queue`

const selectRuleColumns = `SELECT id, email, name, site_id, frequency, notification_types, active, last_notification_at, created_at
FROM notification_recipients`

func scanMessage(row rowScanner) (*notification.Message, error) {
	var msg notification.Message
	var changeIDs, status, scheduledFor, createdAt string
	var lastError, claimedAt, sentAt sql.NullString

	err := row.Scan(&msg.ID, &msg.Type, &msg.SiteID, &msg.Recipient, &msg.Subject,
		&msg.Body, &msg.HTMLBody, &msg.Priority, &changeIDs, &msg.RuleID, &status,
		&msg.RetryCount, &msg.MaxRetries, &lastError, &scheduledFor, &claimedAt, &sentAt, &createdAt)
	if err != nil {
		return nil, err
	}

	msg.Status = notification.Status(status)
	msg.ScheduledFor, _ = time.Parse(time.RFC3339, scheduledFor)
	msg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if lastError.Valid {
		msg.LastError = lastError.String
	}
	if claimedAt.Valid {
		if t, err := time.Parse(time.RFC3339, claimedAt.String); err == nil {
			msg.ClaimedAt = &t
		}
	}
	if sentAt.Valid {
		if t, err := time.Parse(time.RFC3339, sentAt.String); err == nil {
			msg.SentAt = &t
		}
	}
	if changeIDs != "" && changeIDs != "null" {
		if err := json.Unmarshal([]byte(changeIDs), &msg.ChangeIDs); err != nil {
			return nil, err
		}
	}

	return &msg, nil
}

func scanMessages(rows *sql.Rows) ([]*notification.Message, error) {
	defer rows.Close()

	var msgs []*notification.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, errors.DatabaseError("Failed to scan notification", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to read notifications", err)
	}
	return msgs, nil
}

func scanRules(rows *sql.Rows) ([]*notification.RecipientRule, error) {
	defer rows.Close()

	var rules []*notification.RecipientRule
	for rows.Next() {
		var rule notification.RecipientRule
		var frequency, types, createdAt string
		var lastNotified sql.NullString

		err := rows.Scan(&rule.ID, &rule.Email, &rule.Name, &rule.SiteID,
			&frequency, &types, &rule.Active, &lastNotified, &createdAt)
		if err != nil {
			return nil, errors.DatabaseError("Failed to scan recipient rule", err)
		}

		rule.Frequency = notification.Frequency(frequency)
		if types != "" && types != "null" {
			if err := json.Unmarshal([]byte(types), &rule.NotificationTypes); err != nil {
				return nil, errors.DatabaseError("Failed to decode notification types", err)
			}
		}
		rule.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if lastNotified.Valid {
			if t, err := time.Parse(time.RFC3339, lastNotified.String); err == nil {
				rule.LastNotificationAt = &t
			}
		}

		rules = append(rules, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to read recipient rules", err)
	}

	return rules, nil
}

func requireAffected(res sql.Result, resource string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.DatabaseError("Failed to check update result", err)
	}
	if affected == 0 {
		return errors.NotFound(resource)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"amble/internal/database"
	"amble/internal/models"
)

// SQLStore implements Store and JobState on SQLite or MySQL.
type SQLStore struct {
	db *database.DB
}

// NewSQLStore wraps an initialized database.
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db}
}

// DB exposes the underlying connection (the local semantic index shares it on SQLite).
func (s *SQLStore) DB() *database.DB { return s.db }

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rangeClause appends created-at bounds and ordering to a user-scoped query.
func rangeClause(query string, args []interface{}, column string, r Range) (string, []interface{}) {
	if !r.Since.IsZero() {
		query += " AND " + column + " >= ?"
		args = append(args, millis(r.Since))
	}
	if !r.Until.IsZero() {
		query += " AND " + column + " <= ?"
		args = append(args, millis(r.Until))
	}
	query += " ORDER BY " + column + " DESC, id DESC"
	if r.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, r.Limit)
	}
	return query, args
}

// --- profiles ---

func (s *SQLStore) GetProfile(ctx context.Context, userKey string) (*models.UserProfile, error) {
	var (
		p         models.UserProfile
		prefs     string
		createdAt int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_key, name, age, location, timezone, preferred_language, preferences, created_at, updated_at
		FROM profiles WHERE user_key = ?`, userKey).
		Scan(&p.UserKey, &p.Name, &p.Age, &p.Location, &p.Timezone, &p.PreferredLanguage, &prefs, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if prefs != "" {
		if err := json.Unmarshal([]byte(prefs), &p.Preferences); err != nil {
			return nil, fmt.Errorf("failed to decode preferences: %w", err)
		}
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func (s *SQLStore) UpsertProfile(ctx context.Context, p *models.UserProfile) error {
	if p.Preferences == nil {
		p.Preferences = map[string]interface{}{}
	}
	prefs, err := json.Marshal(p.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	query := s.db.Upsert("profiles", []string{"user_key"},
		[]string{"name", "age", "location", "timezone", "preferred_language", "preferences", "updated_at"},
		[]string{"created_at"})

	_, err = s.db.ExecContext(ctx, query,
		p.UserKey, p.Name, p.Age, p.Location, p.Timezone, p.PreferredLanguage, string(prefs),
		millis(p.UpdatedAt), millis(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateProfileFields(ctx context.Context, userKey string, u ProfileUpdate) (*models.UserProfile, error) {
	var (
		sets []string
		args []interface{}
	)
	set := func(col string, v interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.Name != nil {
		set("name", *u.Name)
	}
	if u.Age != nil {
		set("age", *u.Age)
	}
	if u.Location != nil {
		set("location", *u.Location)
	}
	if u.Timezone != nil {
		set("timezone", *u.Timezone)
	}
	if u.PreferredLanguage != nil {
		set("preferred_language", *u.PreferredLanguage)
	}

	if len(u.Preferences) > 0 {
		keys := make([]string, 0, len(u.Preferences))
		for k := range u.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		// The merge happens inside the UPDATE so concurrent writers of
		// different keys never overwrite each other.
		fn, base, value := "json_set", `CASE WHEN json_valid(preferences) AND json_type(preferences) = 'object' THEN preferences ELSE '{}' END`, "json(?)"
		if s.db.Dialect == database.DialectMySQL {
			fn, base, value = "JSON_SET", `IF(JSON_VALID(preferences) AND JSON_TYPE(preferences) = 'OBJECT', preferences, '{}')`, "CAST(? AS JSON)"
		}
		parts := []string{base}
		for _, k := range keys {
			encoded, err := json.Marshal(u.Preferences[k])
			if err != nil {
				return nil, fmt.Errorf("failed to encode preference %s: %w", k, err)
			}
			parts = append(parts, "?", value)
			args = append(args, `$."`+k+`"`, string(encoded))
		}
		sets = append(sets, "preferences = "+fn+"("+strings.Join(parts, ", ")+")")
	}

	updatedAt := u.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	set("updated_at", millis(updatedAt))
	args = append(args, userKey)

	// A missing profile updates nothing and the read below reports ErrNotFound.
	if _, err := s.db.ExecContext(ctx, `UPDATE profiles SET `+strings.Join(sets, ", ")+` WHERE user_key = ?`, args...); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return s.GetProfile(ctx, userKey)
}

func (s *SQLStore) ListUserKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_key FROM profiles ORDER BY user_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- expenses ---

func (s *SQLStore) AddExpense(ctx context.Context, e *models.Expense) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, user_key, amount, category, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserKey, e.Amount, string(e.Category), e.Description, millis(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add expense: %w", err)
	}
	return nil
}

func (s *SQLStore) ListExpenses(ctx context.Context, userKey string, r Range) ([]models.Expense, error) {
	query, args := rangeClause(`
		SELECT id, user_key, amount, category, description, created_at
		FROM expenses WHERE user_key = ?`, []interface{}{userKey}, "created_at", r)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var out []models.Expense
	for rows.Next() {
		var (
			e  models.Expense
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.UserKey, &e.Amount, &e.Category, &e.Description, &ts); err != nil {
			return nil, err
		}
		e.CreatedAt = fromMillis(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- moods ---

func (s *SQLStore) AddMood(ctx context.Context, m *models.MoodEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO moods (id, user_key, mood, energy_level, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserKey, string(m.Mood), m.EnergyLevel, m.Details, millis(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add mood: %w", err)
	}
	return nil
}

func (s *SQLStore) ListMoods(ctx context.Context, userKey string, r Range) ([]models.MoodEntry, error) {
	query, args := rangeClause(`
		SELECT id, user_key, mood, energy_level, details, created_at
		FROM moods WHERE user_key = ?`, []interface{}{userKey}, "created_at", r)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list moods: %w", err)
	}
	defer rows.Close()

	var out []models.MoodEntry
	for rows.Next() {
		var (
			m  models.MoodEntry
			ts int64
		)
		if err := rows.Scan(&m.ID, &m.UserKey, &m.Mood, &m.EnergyLevel, &m.Details, &ts); err != nil {
			return nil, err
		}
		m.CreatedAt = fromMillis(ts)
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- activities ---

func (s *SQLStore) AddActivity(ctx context.Context, a *models.Activity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (id, user_key, name, activity_type, duration_minutes, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserKey, a.Name, string(a.Type), a.DurationMinutes, a.Notes, millis(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add activity: %w", err)
	}
	return nil
}

func (s *SQLStore) ListActivities(ctx context.Context, userKey string, r Range) ([]models.Activity, error) {
	query, args := rangeClause(`
		SELECT id, user_key, name, activity_type, duration_minutes, notes, created_at
		FROM activities WHERE user_key = ?`, []interface{}{userKey}, "created_at", r)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var out []models.Activity
	for rows.Next() {
		var (
			a  models.Activity
			ts int64
		)
		if err := rows.Scan(&a.ID, &a.UserKey, &a.Name, &a.Type, &a.DurationMinutes, &a.Notes, &ts); err != nil {
			return nil, err
		}
		a.CreatedAt = fromMillis(ts)
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- appointments ---

const appointmentColumns = `id, user_key, title, appointment_type, date_time, location, doctor_name, notes, status, reminded, created_at`

func scanAppointment(sc interface{ Scan(...interface{}) error }) (*models.Appointment, error) {
	var (
		a        models.Appointment
		dt, ts   int64
		reminded int
	)
	if err := sc.Scan(&a.ID, &a.UserKey, &a.Title, &a.Type, &dt, &a.Location, &a.DoctorName,
		&a.Notes, &a.Status, &reminded, &ts); err != nil {
		return nil, err
	}
	a.DateTime = fromMillis(dt)
	a.CreatedAt = fromMillis(ts)
	a.Reminded = reminded == 1
	return &a, nil
}

func (s *SQLStore) AddAppointment(ctx context.Context, a *models.Appointment) error {
	if a.Status == "" {
		a.Status = models.AppointmentScheduled
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserKey, a.Title, string(a.Type), millis(a.DateTime), a.Location, a.DoctorName,
		a.Notes, string(a.Status), boolInt(a.Reminded), millis(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add appointment: %w", err)
	}
	return nil
}

func (s *SQLStore) GetAppointment(ctx context.Context, userKey, id string) (*models.Appointment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE user_key = ? AND id = ?`, userKey, id)
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return a, nil
}

func (s *SQLStore) ListAppointments(ctx context.Context, userKey string, f AppointmentFilter) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE user_key = ?`
	args := []interface{}{userKey}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		query += " AND date_time >= ?"
		args = append(args, millis(f.From))
	}
	if !f.To.IsZero() {
		query += " AND date_time <= ?"
		args = append(args, millis(f.To))
	}
	if f.Newest {
		query += " ORDER BY created_at DESC, id DESC"
	} else {
		query += " ORDER BY date_time ASC, id ASC"
	}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *SQLStore) CancelAppointment(ctx context.Context, userKey, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE appointments SET status = ?
		WHERE user_key = ? AND id = ? AND status = ?`,
		string(models.AppointmentCancelled), userKey, id, string(models.AppointmentScheduled))
	if err != nil {
		return false, fmt.Errorf("failed to cancel appointment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}

	if _, err := s.GetAppointment(ctx, userKey, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *SQLStore) ClaimReminder(ctx context.Context, userKey, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE appointments SET reminded = 1
		WHERE user_key = ? AND id = ? AND reminded = 0 AND status = ?`,
		userKey, id, string(models.AppointmentScheduled))
	if err != nil {
		return false, fmt.Errorf("failed to claim reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// --- alerts ---

func (s *SQLStore) AddAlert(ctx context.Context, a *models.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, user_key, message, urgency, category, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserKey, a.Message, string(a.Urgency), a.Category, boolInt(a.Read), millis(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add alert: %w", err)
	}
	return nil
}

func (s *SQLStore) ListAlerts(ctx context.Context, userKey string, r Range) ([]models.Alert, error) {
	query, args := rangeClause(`
		SELECT id, user_key, message, urgency, category, is_read, created_at
		FROM alerts WHERE user_key = ?`, []interface{}{userKey}, "created_at", r)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		var (
			a    models.Alert
			read int
			ts   int64
		)
		if err := rows.Scan(&a.ID, &a.UserKey, &a.Message, &a.Urgency, &a.Category, &read, &ts); err != nil {
			return nil, err
		}
		a.Read = read == 1
		a.CreatedAt = fromMillis(ts)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) MarkAlertRead(ctx context.Context, userKey, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET is_read = 1 WHERE user_key = ? AND id = ?`, userKey, id)
	if err != nil {
		return fmt.Errorf("failed to mark alert read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports 0 rows for a no-op update, so check existence before calling it missing.
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM alerts WHERE user_key = ? AND id = ?`, userKey, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check alert: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// --- facts ---

func (s *SQLStore) AddFact(ctx context.Context, f *models.Fact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facts (id, user_key, fact, category, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.UserKey, f.Fact, string(f.Category), millis(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add fact: %w", err)
	}
	return nil
}

// likeEscaper makes terms match literally under ESCAPE '!'. A backslash
// escape would need different quoting on MySQL and SQLite.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func (s *SQLStore) SearchFacts(ctx context.Context, userKey string, q FactQuery) ([]models.Fact, error) {
	query := `SELECT id, user_key, fact, category, created_at FROM facts WHERE user_key = ?`
	args := []interface{}{userKey}
	if q.Category != "" {
		query += " AND category = ?"
		args = append(args, string(q.Category))
	}
	if len(q.Terms) > 0 {
		likes := make([]string, len(q.Terms))
		for i, term := range q.Terms {
			likes[i] = "LOWER(fact) LIKE ? ESCAPE '!'"
			args = append(args, "%"+likeEscaper.Replace(strings.ToLower(term))+"%")
		}
		query += " AND (" + strings.Join(likes, " OR ") + ")"
	}
	query += " ORDER BY created_at DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search facts: %w", err)
	}
	defer rows.Close()

	var out []models.Fact
	for rows.Next() {
		var (
			f  models.Fact
			ts int64
		)
		if err := rows.Scan(&f.ID, &f.UserKey, &f.Fact, &f.Category, &ts); err != nil {
			return nil, err
		}
		f.CreatedAt = fromMillis(ts)
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- transcripts ---

func (s *SQLStore) AddTurn(ctx context.Context, t *models.TurnRecord) error {
	actions, err := json.Marshal(t.Actions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transcripts (id, user_key, session_id, user_text, response, actions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserKey, t.SessionID, t.UserText, t.Response, string(actions), millis(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add transcript: %w", err)
	}
	return nil
}

func (s *SQLStore) ListTurns(ctx context.Context, userKey string, r Range) ([]models.TurnRecord, error) {
	query, args := rangeClause(`
		SELECT id, user_key, session_id, user_text, response, actions, created_at
		FROM transcripts WHERE user_key = ?`, []interface{}{userKey}, "created_at", r)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()

	var out []models.TurnRecord
	for rows.Next() {
		var (
			t       models.TurnRecord
			actions string
			ts      int64
		)
		if err := rows.Scan(&t.ID, &t.UserKey, &t.SessionID, &t.UserText, &t.Response, &actions, &ts); err != nil {
			return nil, err
		}
		if actions != "" {
			_ = json.Unmarshal([]byte(actions), &t.Actions)
		}
		t.CreatedAt = fromMillis(ts)
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- job state ---

func (s *SQLStore) LastRun(ctx context.Context, job, userKey string) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_run FROM job_runs WHERE job_name = ? AND user_key = ?`, job, userKey).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read job state: %w", err)
	}
	return fromMillis(ms), true, nil
}

func (s *SQLStore) SetLastRun(ctx context.Context, job, userKey string, at time.Time) error {
	query := s.db.Upsert("job_runs", []string{"job_name", "user_key"}, []string{"last_run"}, nil)
	if _, err := s.db.ExecContext(ctx, query, job, userKey, millis(at)); err != nil {
		return fmt.Errorf("failed to write job state: %w", err)
	}
	return nil
}

var (
	_ Store    = (*SQLStore)(nil)
	_ JobState = (*SQLStore)(nil)
)

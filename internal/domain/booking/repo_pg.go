package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospital/portal/internal/platform/db"
)

// whereBuilder accumulates positional predicates for list queries.
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// page appends LIMIT/OFFSET; a zero limit returns everything.
func (w *whereBuilder) page(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	w.args = append(w.args, limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, doctor_id, event_type, date_from, date_to, registration_mandatory, created_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.EventType, &a.DateFrom, &a.DateTo, &a.RegistrationMandatory, &a.CreatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (doctor_id, event_type, date_from, date_to, registration_mandatory)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		a.DoctorID, a.EventType, a.DateFrom, a.DateTo, a.RegistrationMandatory,
	).Scan(&a.ID, &a.CreatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) List(ctx context.Context, f AppointmentFilter) ([]*Appointment, int, error) {
	var w whereBuilder
	if f.DoctorID != nil {
		w.add("doctor_id = $%d", *f.DoctorID)
	}
	if f.From != nil {
		w.add("date_from >= $%d", *f.From)
	}
	if f.To != nil {
		w.add("date_from < $%d", *f.To)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	query := `SELECT ` + apptCols + ` FROM appointment` + w.String() + ` ORDER BY date_from, id`
	query += w.page(f.Limit, f.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// =========== Request Repository ===========

type requestRepoPG struct{ pool *pgxpool.Pool }

func NewRequestRepoPG(pool *pgxpool.Pool) RequestRepository {
	return &requestRepoPG{pool: pool}
}

func (r *requestRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const reqCols = `id, state, description, patient_id, doctor_id, nurse_id, appointment_id,
	request_type_id, version, created_at, updated_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var (
		req   Request
		state string
	)
	err := row.Scan(&req.ID, &state, &req.Description, &req.PatientID, &req.DoctorID, &req.NurseID,
		&req.AppointmentID, &req.RequestTypeID, &req.Version, &req.CreatedAt, &req.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	req.State = RequestState(state)
	return &req, nil
}

func (r *requestRepoPG) Create(ctx context.Context, req *Request) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO request (state, description, patient_id, doctor_id, nurse_id, appointment_id, request_type_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, version, created_at, updated_at`,
		string(req.State), req.Description, req.PatientID, req.DoctorID, req.NurseID,
		req.AppointmentID, req.RequestTypeID,
	).Scan(&req.ID, &req.Version, &req.CreatedAt, &req.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrActiveRequestExists
	}
	return err
}

func (r *requestRepoPG) GetByID(ctx context.Context, id int64) (*Request, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx, `SELECT `+reqCols+` FROM request WHERE id = $1`, id))
}

func (r *requestRepoPG) GetForUpdate(ctx context.Context, id int64) (*Request, error) {
	if db.TxFromContext(ctx) == nil {
		return r.GetByID(ctx, id)
	}
	return scanRequest(r.conn(ctx).QueryRow(ctx, `SELECT `+reqCols+` FROM request WHERE id = $1 FOR UPDATE`, id))
}

func (r *requestRepoPG) List(ctx context.Context, f RequestFilter) ([]*Request, int, error) {
	var w whereBuilder
	if f.DoctorID != nil {
		w.add("doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		w.add("patient_id = $%d", *f.PatientID)
	}
	if f.AppointmentID != nil {
		w.add("appointment_id = $%d", *f.AppointmentID)
	}
	if len(f.States) > 0 {
		states := make([]string, len(f.States))
		for i, s := range f.States {
			states[i] = string(s)
		}
		w.add("state = ANY($%d)", states)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM request`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	query := `SELECT ` + reqCols + ` FROM request` + w.String() + ` ORDER BY created_at, id`
	query += w.page(f.Limit, f.Offset)

	items, err := r.query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	return items, total, nil
}

func (r *requestRepoPG) ListByAppointment(ctx context.Context, appointmentID int64) ([]*Request, error) {
	return r.query(ctx, `SELECT `+reqCols+` FROM request WHERE appointment_id = $1 ORDER BY created_at, id`, appointmentID)
}

func (r *requestRepoPG) UpdateState(ctx context.Context, id int64, state RequestState, expectedVersion int) (*Request, error) {
	updated, err := scanRequest(r.conn(ctx).QueryRow(ctx, `
		UPDATE request SET state = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $3
		RETURNING `+reqCols,
		id, string(state), expectedVersion))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ErrNotFound) {
		if db.IsUniqueViolation(err) {
			return nil, ErrActiveRequestExists
		}
		return nil, fmt.Errorf("update request %d: %w", id, err)
	}

	// No row matched: either the request is gone or the version moved on.
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &ConflictError{RequestID: id, Expected: expectedVersion, Current: current.Version}
}

func (r *requestRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Request, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, req)
	}
	return items, rows.Err()
}

// =========== Request Type Repository ===========

type requestTypeRepoPG struct{ pool *pgxpool.Pool }

func NewRequestTypeRepoPG(pool *pgxpool.Pool) RequestTypeRepository {
	return &requestTypeRepoPG{pool: pool}
}

func (r *requestTypeRepoPG) Create(ctx context.Context, rt *RequestType) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO request_type (name, description, length) VALUES ($1, $2, $3)
		RETURNING id`, rt.Name, rt.Description, rt.Length).Scan(&rt.ID)
	if db.IsUniqueViolation(err) {
		return invalidf("request type %q already exists", rt.Name)
	}
	return err
}

func (r *requestTypeRepoPG) GetByID(ctx context.Context, id int64) (*RequestType, error) {
	var rt RequestType
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT id, name, description, length FROM request_type WHERE id = $1`, id).
		Scan(&rt.ID, &rt.Name, &rt.Description, &rt.Length)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *requestTypeRepoPG) List(ctx context.Context) ([]*RequestType, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, name, description, length FROM request_type ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*RequestType
	for rows.Next() {
		var rt RequestType
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.Description, &rt.Length); err != nil {
			return nil, err
		}
		items = append(items, &rt)
	}
	return items, rows.Err()
}

package booking

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospital/portal/internal/platform/db"
)

type patientResolverPG struct{ pool *pgxpool.Pool }

func NewPatientResolverPG(pool *pgxpool.Pool) PatientResolver {
	return &patientResolverPG{pool: pool}
}

// Resolve returns the id registered for the personal number, inserting the
// patient on first contact. Stored details of a known patient are kept.
func (r *patientResolverPG) Resolve(ctx context.Context, p PatientDetails) (int64, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (personal_number, name, surname, phone_number)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (personal_number) DO UPDATE SET personal_number = EXCLUDED.personal_number
		RETURNING id`,
		p.PersonalNumber, p.Name, p.Surname, p.PhoneNumber,
	).Scan(&id)
	return id, err
}

type nurseDirectoryPG struct{ pool *pgxpool.Pool }

func NewNurseDirectoryPG(pool *pgxpool.Pool) NurseDirectory {
	return &nurseDirectoryPG{pool: pool}
}

// NurseFor picks the lowest nurse id when a doctor has several.
func (r *nurseDirectoryPG) NurseFor(ctx context.Context, doctorID int64) (int64, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT nurse_id FROM doctor_nurse WHERE doctor_id = $1 ORDER BY nurse_id LIMIT 1`, doctorID,
	).Scan(&id)
	if db.IsNoRows(err) {
		return 0, ErrNotFound
	}
	return id, err
}

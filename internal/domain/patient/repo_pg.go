package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/patients/internal/platform/db"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// patientRow is the patient table row with its foreign keys.
type patientRow struct {
	patient     Patient
	nameID      int32
	addressID   int32
	birthdateID int32
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	q := r.conn(ctx)

	var nameID, addressID, birthdateID int32
	err := q.QueryRow(ctx,
		`INSERT INTO name (first, middle, surname) VALUES ($1, $2, $3) RETURNING id`,
		p.Name.First, p.Name.Middle, p.Name.Surname,
	).Scan(&nameID)
	if err != nil {
		return fmt.Errorf("insert name: %w", err)
	}

	err = q.QueryRow(ctx, `
		INSERT INTO address (address_lines, sublocality, locality, administrative_area, postal_code, country_region)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.Address.AddressLines, p.Address.Sublocality, p.Address.Locality,
		p.Address.AdministrativeArea, p.Address.PostalCode, p.Address.CountryRegion,
	).Scan(&addressID)
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}

	err = q.QueryRow(ctx,
		`INSERT INTO birthdate (day, month, year) VALUES ($1, $2, $3) RETURNING id`,
		p.Birthdate.Day, p.Birthdate.Month, p.Birthdate.Year,
	).Scan(&birthdateID)
	if err != nil {
		return fmt.Errorf("insert birthdate: %w", err)
	}

	err = q.QueryRow(ctx, `
		INSERT INTO patient (patient_id, name_id, address_id, birthdate_id)
		VALUES ($1, $2, $3, $4) RETURNING created_at`,
		p.PatientID, nameID, addressID, birthdateID,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

const patientRowSQL = `SELECT patient_id, created_at, name_id, address_id, birthdate_id
	FROM patient WHERE patient_id = $1 AND active_flag`

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.get(ctx, patientRowSQL, id)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.get(ctx, patientRowSQL+` FOR UPDATE`, id)
}

func (r *repoPG) get(ctx context.Context, sql string, id uuid.UUID) (*Patient, error) {
	q := r.conn(ctx)

	var row patientRow
	err := q.QueryRow(ctx, sql, id).Scan(
		&row.patient.PatientID, &row.patient.CreatedAt, &row.nameID, &row.addressID, &row.birthdateID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select patient: %w", err)
	}

	p := &row.patient
	err = q.QueryRow(ctx, `SELECT first, middle, surname FROM name WHERE id = $1`, row.nameID).
		Scan(&p.Name.First, &p.Name.Middle, &p.Name.Surname)
	if err != nil {
		return nil, partErr("name", id, err)
	}
	if p.Address, err = scanAddress(q.QueryRow(ctx, `SELECT `+addressCols+` FROM address WHERE id = $1`, row.addressID)); err != nil {
		return nil, partErr("address", id, err)
	}
	err = q.QueryRow(ctx, `SELECT day, month, year FROM birthdate WHERE id = $1`, row.birthdateID).
		Scan(&p.Birthdate.Day, &p.Birthdate.Month, &p.Birthdate.Year)
	if err != nil {
		return nil, partErr("birthdate", id, err)
	}
	return p, nil
}

func partErr(part string, id uuid.UUID, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s row missing for patient %s", ErrIntegrity, part, id)
	}
	return fmt.Errorf("select %s: %w", part, err)
}

const addressCols = `address_lines, sublocality, locality, administrative_area, postal_code, country_region`

func scanAddress(row pgx.Row) (Address, error) {
	var a Address
	err := row.Scan(&a.AddressLines, &a.Sublocality, &a.Locality, &a.AdministrativeArea, &a.PostalCode, &a.CountryRegion)
	return a, err
}

// List inner-joins patient with name and birthdate, so a patient missing
// either row is left out. Addresses are loaded afterwards in one query and
// patients whose address row is missing are left out too.
func (r *repoPG) List(ctx context.Context, f Filter) ([]*Patient, error) {
	q := r.conn(ctx)

	where, args := buildFilter(f)
	rows, err := q.Query(ctx, `
		SELECT p.patient_id, p.created_at, p.address_id,
			n.first, n.middle, n.surname, b.day, b.month, b.year
		FROM patient p
		JOIN name n ON n.id = p.name_id
		JOIN birthdate b ON b.id = p.birthdate_id
		WHERE `+where+`
		ORDER BY p.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}

	var patients []*Patient
	var addressIDs []int32
	for rows.Next() {
		var p Patient
		var addressID int32
		if err := rows.Scan(&p.PatientID, &p.CreatedAt, &addressID,
			&p.Name.First, &p.Name.Middle, &p.Name.Surname,
			&p.Birthdate.Day, &p.Birthdate.Month, &p.Birthdate.Year,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, &p)
		addressIDs = append(addressIDs, addressID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	if len(patients) == 0 {
		return []*Patient{}, nil
	}

	addresses, err := r.addressesByID(ctx, q, addressIDs)
	if err != nil {
		return nil, err
	}
	out := make([]*Patient, 0, len(patients))
	for i, p := range patients {
		a, ok := addresses[addressIDs[i]]
		if !ok {
			continue
		}
		p.Address = a
		out = append(out, p)
	}
	return out, nil
}

func (r *repoPG) addressesByID(ctx context.Context, q querier, ids []int32) (map[int32]Address, error) {
	rows, err := q.Query(ctx, `SELECT id, `+addressCols+` FROM address WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	out := make(map[int32]Address, len(ids))
	for rows.Next() {
		var id int32
		var a Address
		if err := rows.Scan(&id, &a.AddressLines, &a.Sublocality, &a.Locality, &a.AdministrativeArea, &a.PostalCode, &a.CountryRegion); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		out[id] = a
	}
	return out, rows.Err()
}

// buildFilter returns the WHERE clause for f and its positional arguments.
func buildFilter(f Filter) (string, []interface{}) {
	clauses := []string{"p.active_flag"}
	var args []interface{}
	add := func(column string, v interface{}) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if f.FirstName != nil {
		add("n.first", *f.FirstName)
	}
	if f.Surname != nil {
		add("n.surname", *f.Surname)
	}
	if f.BirthYear != nil {
		add("b.year", *f.BirthYear)
	}
	return strings.Join(clauses, " AND "), args
}

func (r *repoPG) UpdateName(ctx context.Context, id uuid.UUID, n Name) error {
	// first and surname are immutable; only middle is written.
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE name SET middle = $2
		FROM patient p
		WHERE p.name_id = name.id AND p.patient_id = $1 AND p.active_flag`,
		id, n.Middle)
	if err != nil {
		return fmt.Errorf("update name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) UpdateAddress(ctx context.Context, id uuid.UUID, a Address) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE address SET address_lines = $2, sublocality = $3, locality = $4,
			administrative_area = $5, postal_code = $6, country_region = $7
		FROM patient p
		WHERE p.address_id = address.id AND p.patient_id = $1 AND p.active_flag`,
		id, a.AddressLines, a.Sublocality, a.Locality, a.AdministrativeArea, a.PostalCode, a.CountryRegion)
	if err != nil {
		return fmt.Errorf("update address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient SET active_flag = FALSE WHERE patient_id = $1 AND active_flag`, id)
	if err != nil {
		return fmt.Errorf("deactivate patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

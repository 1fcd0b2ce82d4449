package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"cratekeeper/internal/workflow/models"
	id "cratekeeper/pkg/domain"
	"cratekeeper/pkg/platform/sentinel"
	"cratekeeper/pkg/platform/tx"
)

// PostgresRequestStore persists requests in PostgreSQL. All statements
// resolve the active transaction from context so transition writes join the
// service's transaction.
type PostgresRequestStore struct {
	db *sql.DB
}

func NewPostgresRequestStore(db *sql.DB) *PostgresRequestStore {
	return &PostgresRequestStore{db: db}
}

const requestColumns = `id, type, status, unit_id, crate_id, version,
	purpose, expected_return_date,
	submitted_by, approved_by, allocated_by, issued_by, returned_by,
	submitted_at, approved_at, allocated_at, issued_at, returned_at, completed_at,
	created_at, updated_at`

func (s *PostgresRequestStore) Create(ctx context.Context, request *models.Request) error {
	q := tx.Resolve(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		request.ID.String(), string(request.Type), string(request.Status),
		request.UnitID.String(), crateIDValue(request.CrateID), request.Version,
		request.Purpose, request.ExpectedReturnDate,
		request.SubmittedBy.String(), userIDValue(request.ApprovedBy),
		userIDValue(request.AllocatedBy), userIDValue(request.IssuedBy),
		userIDValue(request.ReturnedBy),
		request.SubmittedAt, request.ApprovedAt, request.AllocatedAt,
		request.IssuedAt, request.ReturnedAt, request.CompletedAt,
		request.CreatedAt, request.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (s *PostgresRequestStore) Get(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	q := tx.Resolve(ctx, s.db)
	row := q.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = $1`, requestID.String())
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	return request, nil
}

// Update writes the request only when its stored version still matches
// expectedVersion. Zero rows affected means another transition committed
// first.
func (s *PostgresRequestStore) Update(ctx context.Context, request *models.Request, expectedVersion int64) error {
	q := tx.Resolve(ctx, s.db)
	result, err := q.ExecContext(ctx, `
		UPDATE requests SET
			status = $1, crate_id = $2, version = $3,
			approved_by = $4, allocated_by = $5, issued_by = $6, returned_by = $7,
			submitted_at = $8, approved_at = $9, allocated_at = $10,
			issued_at = $11, returned_at = $12, completed_at = $13,
			updated_at = $14
		WHERE id = $15 AND version = $16
	`,
		string(request.Status), crateIDValue(request.CrateID), request.Version,
		userIDValue(request.ApprovedBy), userIDValue(request.AllocatedBy),
		userIDValue(request.IssuedBy), userIDValue(request.ReturnedBy),
		request.SubmittedAt, request.ApprovedAt, request.AllocatedAt,
		request.IssuedAt, request.ReturnedAt, request.CompletedAt,
		request.UpdatedAt,
		request.ID.String(), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request: rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresRequestStore) List(ctx context.Context, filter RequestFilter) ([]*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests`
	var conds []string
	var args []any
	if filter.UnitID != nil {
		args = append(args, filter.UnitID.String())
		conds = append(conds, fmt.Sprintf("unit_id = $%d", len(args)))
	}
	if filter.Type != nil {
		args = append(args, string(*filter.Type))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if len(filter.Statuses) == 1 {
		args = append(args, string(filter.Statuses[0]))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	} else if len(filter.Statuses) > 1 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	q := tx.Resolve(ctx, s.db)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []*models.Request
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("list requests: %w", err)
		}
		out = append(out, request)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var (
		request            models.Request
		rawID, rawUnit     string
		rawType, rawStatus string
		rawCrate           sql.NullString
		rawSubmittedBy     string
		rawApprovedBy      sql.NullString
		rawAllocatedBy     sql.NullString
		rawIssuedBy        sql.NullString
		rawReturnedBy      sql.NullString
		expectedReturn     sql.NullTime
		approvedAt         sql.NullTime
		allocatedAt        sql.NullTime
		issuedAt           sql.NullTime
		returnedAt         sql.NullTime
		completedAt        sql.NullTime
	)
	err := row.Scan(
		&rawID, &rawType, &rawStatus, &rawUnit, &rawCrate, &request.Version,
		&request.Purpose, &expectedReturn,
		&rawSubmittedBy, &rawApprovedBy, &rawAllocatedBy, &rawIssuedBy, &rawReturnedBy,
		&request.SubmittedAt, &approvedAt, &allocatedAt, &issuedAt, &returnedAt, &completedAt,
		&request.CreatedAt, &request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if request.ID, err = id.ParseRequestID(rawID); err != nil {
		return nil, err
	}
	if request.UnitID, err = id.ParseUnitID(rawUnit); err != nil {
		return nil, err
	}
	if request.SubmittedBy, err = id.ParseUserID(rawSubmittedBy); err != nil {
		return nil, err
	}
	request.Type = id.RequestType(rawType)
	request.Status = id.RequestStatus(rawStatus)

	if rawCrate.Valid {
		crateID, err := id.ParseCrateID(rawCrate.String)
		if err != nil {
			return nil, err
		}
		request.CrateID = &crateID
	}
	if request.ApprovedBy, err = parseNullUserID(rawApprovedBy); err != nil {
		return nil, err
	}
	if request.AllocatedBy, err = parseNullUserID(rawAllocatedBy); err != nil {
		return nil, err
	}
	if request.IssuedBy, err = parseNullUserID(rawIssuedBy); err != nil {
		return nil, err
	}
	if request.ReturnedBy, err = parseNullUserID(rawReturnedBy); err != nil {
		return nil, err
	}
	request.ExpectedReturnDate = nullTimePtr(expectedReturn)
	request.ApprovedAt = nullTimePtr(approvedAt)
	request.AllocatedAt = nullTimePtr(allocatedAt)
	request.IssuedAt = nullTimePtr(issuedAt)
	request.ReturnedAt = nullTimePtr(returnedAt)
	request.CompletedAt = nullTimePtr(completedAt)
	return &request, nil
}

func parseNullUserID(raw sql.NullString) (*id.UserID, error) {
	if !raw.Valid {
		return nil, nil
	}
	userID, err := id.ParseUserID(raw.String)
	if err != nil {
		return nil, err
	}
	return &userID, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func crateIDValue(crateID *id.CrateID) any {
	if crateID == nil {
		return nil
	}
	return crateID.String()
}

func userIDValue(userID *id.UserID) any {
	if userID == nil {
		return nil
	}
	return userID.String()
}

// PostgresCrateStore persists crates in PostgreSQL.
type PostgresCrateStore struct {
	db *sql.DB
}

func NewPostgresCrateStore(db *sql.DB) *PostgresCrateStore {
	return &PostgresCrateStore{db: db}
}

func (s *PostgresCrateStore) Create(ctx context.Context, crate *models.Crate) error {
	q := tx.Resolve(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO crates (id, status, storage_location, unit_id, to_central, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		crate.ID.String(), string(crate.Status), crate.StorageLocation,
		crate.UnitID.String(), crate.ToCentral, crate.CreatedAt, crate.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create crate: %w", err)
	}
	return nil
}

func (s *PostgresCrateStore) Get(ctx context.Context, crateID id.CrateID) (*models.Crate, error) {
	q := tx.Resolve(ctx, s.db)
	var (
		crate           models.Crate
		rawID, rawUnit  string
		rawStatus       string
		storageLocation sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, status, storage_location, unit_id, to_central, created_at, updated_at
		FROM crates WHERE id = $1
	`, crateID.String()).Scan(
		&rawID, &rawStatus, &storageLocation, &rawUnit, &crate.ToCentral,
		&crate.CreatedAt, &crate.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get crate: %w", err)
	}
	if crate.ID, err = id.ParseCrateID(rawID); err != nil {
		return nil, err
	}
	if crate.UnitID, err = id.ParseUnitID(rawUnit); err != nil {
		return nil, err
	}
	crate.Status = id.CrateStatus(rawStatus)
	if storageLocation.Valid {
		crate.StorageLocation = &storageLocation.String
	}
	return &crate, nil
}

func (s *PostgresCrateStore) Update(ctx context.Context, crate *models.Crate) error {
	q := tx.Resolve(ctx, s.db)
	result, err := q.ExecContext(ctx, `
		UPDATE crates SET status = $1, storage_location = $2, updated_at = $3
		WHERE id = $4
	`, string(crate.Status), crate.StorageLocation, crate.UpdatedAt, crate.ID.String())
	if err != nil {
		return fmt.Errorf("update crate: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update crate: rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresCrateStore) List(ctx context.Context, unitID *id.UnitID) ([]*models.Crate, error) {
	query := `SELECT id, status, storage_location, unit_id, to_central, created_at, updated_at FROM crates`
	var args []any
	if unitID != nil {
		query += ` WHERE unit_id = $1`
		args = append(args, unitID.String())
	}
	query += ` ORDER BY created_at DESC`

	q := tx.Resolve(ctx, s.db)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list crates: %w", err)
	}
	defer rows.Close()

	var out []*models.Crate
	for rows.Next() {
		var (
			crate           models.Crate
			rawID, rawUnit  string
			rawStatus       string
			storageLocation sql.NullString
		)
		if err := rows.Scan(&rawID, &rawStatus, &storageLocation, &rawUnit,
			&crate.ToCentral, &crate.CreatedAt, &crate.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list crates: %w", err)
		}
		if crate.ID, err = id.ParseCrateID(rawID); err != nil {
			return nil, err
		}
		if crate.UnitID, err = id.ParseUnitID(rawUnit); err != nil {
			return nil, err
		}
		crate.Status = id.CrateStatus(rawStatus)
		if storageLocation.Valid {
			crate.StorageLocation = &storageLocation.String
		}
		out = append(out, &crate)
	}
	return out, rows.Err()
}

// PostgresSendBackStore persists send-back records in PostgreSQL.
type PostgresSendBackStore struct {
	db *sql.DB
}

func NewPostgresSendBackStore(db *sql.DB) *PostgresSendBackStore {
	return &PostgresSendBackStore{db: db}
}

func (s *PostgresSendBackStore) Create(ctx context.Context, sendBack *models.SendBack) error {
	q := tx.Resolve(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO send_backs (id, request_id, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		sendBack.ID.String(), sendBack.RequestID.String(), sendBack.Reason,
		sendBack.CreatedBy.String(), sendBack.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create send-back: %w", err)
	}
	return nil
}

func (s *PostgresSendBackStore) ListByRequest(ctx context.Context, requestID id.RequestID) ([]*models.SendBack, error) {
	q := tx.Resolve(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT id, request_id, reason, created_by, created_at
		FROM send_backs WHERE request_id = $1 ORDER BY created_at
	`, requestID.String())
	if err != nil {
		return nil, fmt.Errorf("list send-backs: %w", err)
	}
	defer rows.Close()

	var out []*models.SendBack
	for rows.Next() {
		var (
			record                      models.SendBack
			rawID, rawRequest, rawActor string
		)
		if err := rows.Scan(&rawID, &rawRequest, &record.Reason, &rawActor, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("list send-backs: %w", err)
		}
		var err error
		if record.ID, err = id.ParseSendBackID(rawID); err != nil {
			return nil, err
		}
		if record.RequestID, err = id.ParseRequestID(rawRequest); err != nil {
			return nil, err
		}
		if record.CreatedBy, err = id.ParseUserID(rawActor); err != nil {
			return nil, err
		}
		out = append(out, &record)
	}
	return out, rows.Err()
}

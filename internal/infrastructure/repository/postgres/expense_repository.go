package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

var expenseColumns = []string{
	"id", "source", "processing_status", "amount", "currency", "merchant", "category", "date",
	"notes", "receipt_url", "raw_input", "confidence", "is_user_verified", "created_at", "updated_at",
}

var expenseColumnList = strings.Join(expenseColumns, ", ")

type ExpenseRepository struct {
	db *sql.DB
}

func NewExpenseRepository(db *sql.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) Create(ctx context.Context, expense *domain.Expense) error {
	if err := insertExpense(ctx, r.db, expense); err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id string) (*domain.Expense, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+expenseColumnList+` FROM expenses WHERE id = $1`, id)
	expense, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrExpenseNotFound, "get expense", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan expense: %w", err)
	}
	return &expense, nil
}

func (r *ExpenseRepository) List(ctx context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	builder := psql.Select(expenseColumns...).From("expenses").OrderBy("created_at DESC")
	if len(filter.Statuses) > 0 {
		builder = builder.Where(sq.Eq{"processing_status": statusStrings(filter.Statuses)})
	}
	if len(filter.ExcludeStatuses) > 0 {
		builder = builder.Where(sq.NotEq{"processing_status": statusStrings(filter.ExcludeStatuses)})
	}
	if filter.Source != "" {
		builder = builder.Where(sq.Eq{"source": string(filter.Source)})
	}
	if filter.From != nil {
		builder = builder.Where(sq.GtOrEq{"date": *filter.From})
	}
	if filter.To != nil {
		builder = builder.Where(sq.LtOrEq{"date": *filter.To})
	}
	if filter.RequireAmount {
		builder = builder.Where(sq.NotEq{"amount": nil})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build expense list query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Expense, 0)
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

// Update applies the patch and, when it verifies the expense, moves the linked
// job to verified in the same transaction.
func (r *ExpenseRepository) Update(ctx context.Context, id string, patch domain.ExpensePatch, now time.Time) (*domain.Expense, error) {
	builder := psql.Update("expenses").
		Set("updated_at", now).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + expenseColumnList)
	if patch.Amount != nil {
		builder = builder.Set("amount", *patch.Amount)
	}
	if patch.Currency != nil {
		builder = builder.Set("currency", *patch.Currency)
	}
	if patch.Merchant != nil {
		builder = builder.Set("merchant", *patch.Merchant)
	}
	if patch.Category != nil {
		builder = builder.Set("category", *patch.Category)
	}
	if patch.Date != nil {
		builder = builder.Set("date", *patch.Date)
	}
	if patch.Notes != nil {
		builder = builder.Set("notes", *patch.Notes)
	}
	if patch.Verifies() {
		builder = builder.
			Set("is_user_verified", true).
			Set("processing_status", string(domain.StatusVerified))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build expense update: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	expense, err := scanExpense(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrExpenseNotFound, "update expense", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("update expense: %w", err)
	}

	if patch.Verifies() {
		// Manual expenses have no job; zero rows is fine here.
		if _, err := tx.ExecContext(ctx, `
UPDATE processing_jobs
SET status = $2, locked_until = NULL, updated_at = $3
WHERE expense_id = $1
`, id, string(domain.StatusVerified), now); err != nil {
			return nil, fmt.Errorf("verify processing job: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update tx: %w", err)
	}
	return &expense, nil
}

func (r *ExpenseRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrExpenseNotFound, "delete expense", fmt.Errorf("id=%s", id))
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertExpense(ctx context.Context, db execer, expense *domain.Expense) error {
	rawInput, err := json.Marshal(expense.RawInput)
	if err != nil {
		return fmt.Errorf("marshal raw input: %w", err)
	}
	_, err = db.ExecContext(ctx, `
INSERT INTO expenses (
	id, source, processing_status, amount, currency, merchant, category, date,
	notes, receipt_url, raw_input, confidence, is_user_verified, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		expense.ID, string(expense.Source), string(expense.ProcessingStatus), expense.Amount, expense.Currency,
		expense.Merchant, expense.Category, expense.Date, expense.Notes, expense.ReceiptURL, rawInput,
		expense.Confidence, expense.IsUserVerified, expense.CreatedAt, expense.UpdatedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (domain.Expense, error) {
	var expense domain.Expense
	var source, status string
	var rawInput []byte
	err := row.Scan(
		&expense.ID,
		&source,
		&status,
		&expense.Amount,
		&expense.Currency,
		&expense.Merchant,
		&expense.Category,
		&expense.Date,
		&expense.Notes,
		&expense.ReceiptURL,
		&rawInput,
		&expense.Confidence,
		&expense.IsUserVerified,
		&expense.CreatedAt,
		&expense.UpdatedAt,
	)
	if err != nil {
		return domain.Expense{}, err
	}
	expense.Source = domain.ExpenseSource(source)
	expense.ProcessingStatus = domain.ProcessingStatus(status)
	if len(rawInput) > 0 {
		if err := json.Unmarshal(rawInput, &expense.RawInput); err != nil {
			return domain.Expense{}, fmt.Errorf("unmarshal raw input: %w", err)
		}
	}
	return expense, nil
}

func statusStrings(statuses []domain.ProcessingStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/projecthub/internal/model"
)

// execer は*sql.DBと*sql.Txの共通部分。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresLearnerRepo はPostgreSQLを使用したラーナーリポジトリ。
type PostgresLearnerRepo struct {
	db *sql.DB
}

// NewPostgresLearnerRepo はPostgresLearnerRepoを生成する。
func NewPostgresLearnerRepo(db *sql.DB) *PostgresLearnerRepo {
	return &PostgresLearnerRepo{db: db}
}

const selectLearnerColumns = `SELECT id, name, email, cohort, phone, class_type,
	enrolled_modules, completed_modules, current_module, progress_percentage,
	registered_at, last_login_at FROM learners`

// FindByID は指定IDのラーナーを取得する。見つからない場合はnilを返す。
func (r *PostgresLearnerRepo) FindByID(ctx context.Context, id string) (*model.Learner, error) {
	learner, err := scanLearner(r.db.QueryRowContext(ctx, selectLearnerColumns+` WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("ラーナーの取得に失敗しました: %w", err)
	}
	return learner, nil
}

// FindByEmail はメールアドレスでラーナーを取得する。見つからない場合はnilを返す。
func (r *PostgresLearnerRepo) FindByEmail(ctx context.Context, email string) (*model.Learner, error) {
	learner, err := scanLearner(r.db.QueryRowContext(ctx, selectLearnerColumns+` WHERE email = $1`, email))
	if err != nil {
		return nil, fmt.Errorf("ラーナーの取得に失敗しました: %w", err)
	}
	return learner, nil
}

// Create はラーナーを作成する。emailが重複する場合はErrDuplicateを返す。
func (r *PostgresLearnerRepo) Create(ctx context.Context, l *model.Learner) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO learners (id, name, email, cohort, phone, class_type,
		  enrolled_modules, completed_modules, current_module, progress_percentage, registered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ID, l.Name, l.Email, string(l.Cohort), l.Phone, string(l.ClassType),
		pq.Array(nonNil(l.EnrolledModules)), pq.Array(nonNil(l.CompletedModules)),
		l.CurrentModule, l.ProgressPercentage, l.RegisteredAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ラーナーの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はパッチのnilでないフィールドのみ更新する。
// 対象が存在しない場合はErrNotFoundを返す。
func (r *PostgresLearnerRepo) Update(ctx context.Context, id string, patch model.LearnerPatch) error {
	return updateLearner(ctx, r.db, id, patch)
}

// ListModuleProgress はラーナーのモジュール別進捗を返す。
func (r *PostgresLearnerRepo) ListModuleProgress(ctx context.Context, learnerID string) ([]model.ModuleProgress, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT learner_id, module_id, completed_lessons, completed, last_accessed_at
		 FROM learner_module_progress
		 WHERE learner_id = $1
		 ORDER BY module_id`,
		learnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("モジュール進捗の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []model.ModuleProgress
	for rows.Next() {
		var p model.ModuleProgress
		if err := rows.Scan(&p.LearnerID, &p.ModuleID, &p.CompletedLessons, &p.Completed, &p.LastAccessedAt); err != nil {
			return nil, fmt.Errorf("モジュール進捗の読み取りに失敗しました: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("モジュール進捗の走査に失敗しました: %w", err)
	}
	return result, nil
}

// ApplyProgress はモジュール別進捗の保存とラーナーの更新を同一トランザクションで行う。
func (r *PostgresLearnerRepo) ApplyProgress(ctx context.Context, p *model.ModuleProgress, patch model.LearnerPatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertProgress(ctx, tx, p); err != nil {
		return err
	}
	if !patch.Empty() {
		if err := updateLearner(ctx, tx, p.LearnerID, patch); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// upsertProgress はモジュール別進捗を冪等に保存する。
// UNIQUE(learner_id, module_id)制約を利用したINSERT ON CONFLICTで実装する。
func upsertProgress(ctx context.Context, db execer, p *model.ModuleProgress) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO learner_module_progress (learner_id, module_id, completed_lessons, completed, last_accessed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (learner_id, module_id) DO UPDATE SET
		   completed_lessons = EXCLUDED.completed_lessons,
		   completed = EXCLUDED.completed,
		   last_accessed_at = EXCLUDED.last_accessed_at`,
		p.LearnerID, p.ModuleID, p.CompletedLessons, p.Completed, p.LastAccessedAt,
	)
	if err != nil {
		return fmt.Errorf("モジュール進捗の保存に失敗しました: %w", err)
	}
	return nil
}

// updateLearner はパッチからSET句を組み立ててUPDATEを実行する。
func updateLearner(ctx context.Context, db execer, id string, patch model.LearnerPatch) error {
	if patch.Empty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.CompletedModules != nil {
		add("completed_modules", pq.Array(patch.CompletedModules))
	}
	if patch.CurrentModule != nil {
		add("current_module", *patch.CurrentModule)
	}
	if patch.ProgressPercentage != nil {
		add("progress_percentage", *patch.ProgressPercentage)
	}
	if patch.LastLoginAt != nil {
		add("last_login_at", *patch.LastLoginAt)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE learners SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("ラーナーの更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanLearner は1行をLearnerに変換する。行がない場合はnil, nilを返す。
func scanLearner(row *sql.Row) (*model.Learner, error) {
	var (
		l             model.Learner
		cohort        string
		classType     string
		phone         sql.NullString
		currentModule sql.NullString
		lastLoginAt   sql.NullTime
		enrolled      pq.StringArray
		completed     pq.StringArray
	)
	err := row.Scan(
		&l.ID, &l.Name, &l.Email, &cohort, &phone, &classType,
		&enrolled, &completed, &currentModule, &l.ProgressPercentage,
		&l.RegisteredAt, &lastLoginAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.Cohort = model.Cohort(cohort)
	l.ClassType = model.ClassType(classType)
	l.EnrolledModules = []string(enrolled)
	l.CompletedModules = []string(completed)
	if phone.Valid {
		l.Phone = &phone.String
	}
	if currentModule.Valid {
		l.CurrentModule = &currentModule.String
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		l.LastLoginAt = &t
	}
	return &l, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// compile-time interface check
var _ LearnerRepository = (*PostgresLearnerRepo)(nil)

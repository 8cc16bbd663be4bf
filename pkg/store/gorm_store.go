package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"libraryhub/pkg/domain"
)

const migrateLockID int64 = 51720413

// pgForeignKeyViolation is the SQLSTATE for foreign_key_violation.
const pgForeignKeyViolation = "23503"

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db   *gorm.DB
	opts Options
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...Option) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&AuthorModel{}, &BookModel{}, &BorrowModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, opts: buildOptions(options)}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// InTx runs fn in a database transaction bound to ctx.
func (s *GormStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, opts: s.opts})
	})
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// resetSequenceIfEmpty restarts the id sequence of table when it holds no rows.
func (s *GormStore) resetSequenceIfEmpty(ctx context.Context, model any, table string) error {
	if !s.opts.ResetSequenceWhenEmpty {
		return nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Exec("SELECT setval(pg_get_serial_sequence(?, 'id'), 1, false)", table).Error
}

// CreateAuthor inserts a and sets its id.
func (s *GormStore) CreateAuthor(ctx context.Context, a *domain.Author) error {
	if err := s.resetSequenceIfEmpty(ctx, &AuthorModel{}, AuthorModel{}.TableName()); err != nil {
		return fmt.Errorf("reset author sequence: %w", err)
	}
	model := authorToModel(*a)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return translateError(err)
	}
	a.ID = model.ID
	return nil
}

// ListAuthors returns all authors ordered by id.
func (s *GormStore) ListAuthors(ctx context.Context) ([]domain.Author, error) {
	var models []AuthorModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Author, 0, len(models))
	for _, m := range models {
		res = append(res, authorFromModel(m))
	}
	return res, nil
}

// GetAuthor returns an author by ID.
func (s *GormStore) GetAuthor(ctx context.Context, id int64) (domain.Author, bool, error) {
	var model AuthorModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Author{}, false, nil
		}
		return domain.Author{}, false, err
	}
	return authorFromModel(model), true, nil
}

// UpdateAuthor overwrites the mutable author fields.
func (s *GormStore) UpdateAuthor(ctx context.Context, a domain.Author) error {
	model := authorToModel(a)
	return s.db.WithContext(ctx).Model(&AuthorModel{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{
			"name":          model.Name,
			"surname":       model.Surname,
			"date_of_birth": model.DateOfBirth,
		}).Error
}

// DeleteAuthor removes an author; books and borrows go with it through FK cascade.
func (s *GormStore) DeleteAuthor(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&AuthorModel{}, "id = ?", id).Error
}

// CreateBook inserts b and sets its id.
func (s *GormStore) CreateBook(ctx context.Context, b *domain.Book) error {
	if err := s.resetSequenceIfEmpty(ctx, &BookModel{}, BookModel{}.TableName()); err != nil {
		return fmt.Errorf("reset book sequence: %w", err)
	}
	model := bookToModel(*b)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return translateError(err)
	}
	b.ID = model.ID
	return nil
}

// ListBooks returns all books ordered by id.
func (s *GormStore) ListBooks(ctx context.Context) ([]domain.Book, error) {
	return s.listBooks(ctx)
}

// ListBooksByAuthor returns the books written by one author.
func (s *GormStore) ListBooksByAuthor(ctx context.Context, authorID int64) ([]domain.Book, error) {
	return s.listBooks(ctx, "author_id = ?", authorID)
}

func (s *GormStore) listBooks(ctx context.Context, conds ...any) ([]domain.Book, error) {
	var models []BookModel
	tx := s.db.WithContext(ctx).Order("id ASC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(ctx context.Context, id int64) (domain.Book, bool, error) {
	return s.getBook(s.db.WithContext(ctx), id)
}

// GetBookForUpdate retrieves a book with SELECT ... FOR UPDATE.
func (s *GormStore) GetBookForUpdate(ctx context.Context, id int64) (domain.Book, bool, error) {
	return s.getBook(s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (s *GormStore) getBook(db *gorm.DB, id int64) (domain.Book, bool, error) {
	var model BookModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// UpdateBook overwrites the mutable book fields.
func (s *GormStore) UpdateBook(ctx context.Context, b domain.Book) error {
	err := s.db.WithContext(ctx).Model(&BookModel{}).
		Where("id = ?", b.ID).
		Updates(map[string]any{
			"title":            b.Title,
			"description":      b.Description,
			"author_id":        b.AuthorID,
			"available_copies": b.AvailableCopies,
			"cover_key":        b.CoverKey,
			"updated_at":       time.Now().UTC(),
		}).Error
	return translateError(err)
}

// DeleteBook removes a book; its borrows go with it through FK cascade.
func (s *GormStore) DeleteBook(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&BookModel{}, "id = ?", id).Error
}

// CreateBorrow inserts b and sets its id.
func (s *GormStore) CreateBorrow(ctx context.Context, b *domain.Borrow) error {
	if err := s.resetSequenceIfEmpty(ctx, &BorrowModel{}, BorrowModel{}.TableName()); err != nil {
		return fmt.Errorf("reset borrow sequence: %w", err)
	}
	model := borrowToModel(*b)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return translateError(err)
	}
	b.ID = model.ID
	return nil
}

// ListBorrows returns all borrows ordered by id.
func (s *GormStore) ListBorrows(ctx context.Context) ([]domain.Borrow, error) {
	var models []BorrowModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Borrow, 0, len(models))
	for _, m := range models {
		res = append(res, borrowFromModel(m))
	}
	return res, nil
}

// GetBorrow retrieves a borrow.
func (s *GormStore) GetBorrow(ctx context.Context, id int64) (domain.Borrow, bool, error) {
	return s.getBorrow(s.db.WithContext(ctx), id)
}

// GetBorrowForUpdate retrieves a borrow with SELECT ... FOR UPDATE.
func (s *GormStore) GetBorrowForUpdate(ctx context.Context, id int64) (domain.Borrow, bool, error) {
	return s.getBorrow(s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (s *GormStore) getBorrow(db *gorm.DB, id int64) (domain.Borrow, bool, error) {
	var model BorrowModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Borrow{}, false, nil
		}
		return domain.Borrow{}, false, err
	}
	return borrowFromModel(model), true, nil
}

// UpdateBorrow records the return fields of a borrow.
func (s *GormStore) UpdateBorrow(ctx context.Context, b domain.Borrow) error {
	model := borrowToModel(b)
	return s.db.WithContext(ctx).Model(&BorrowModel{}).
		Where("id = ?", b.ID).
		Updates(map[string]any{
			"reader_name": model.ReaderName,
			"borrow_date": model.BorrowDate,
			"return_date": model.ReturnDate,
			"is_returned": model.IsReturned,
		}).Error
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("%w: %s", ErrForeignKey, pgErr.ConstraintName)
	}
	return err
}

func toDBDate(d domain.Date) datatypes.Date {
	return datatypes.Date(d.Time())
}

func toDBDatePtr(d *domain.Date) *datatypes.Date {
	if d == nil {
		return nil
	}
	v := toDBDate(*d)
	return &v
}

func fromDBDate(d datatypes.Date) domain.Date {
	return domain.DateOf(time.Time(d))
}

func fromDBDatePtr(d *datatypes.Date) *domain.Date {
	if d == nil {
		return nil
	}
	v := fromDBDate(*d)
	return &v
}

func authorToModel(a domain.Author) AuthorModel {
	return AuthorModel{
		ID:          a.ID,
		Name:        a.Name,
		Surname:     a.Surname,
		DateOfBirth: toDBDatePtr(a.DateOfBirth),
	}
}

func authorFromModel(m AuthorModel) domain.Author {
	return domain.Author{
		ID:          m.ID,
		Name:        m.Name,
		Surname:     m.Surname,
		DateOfBirth: fromDBDatePtr(m.DateOfBirth),
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:              b.ID,
		Title:           b.Title,
		Description:     b.Description,
		AuthorID:        b.AuthorID,
		AvailableCopies: b.AvailableCopies,
		CoverKey:        b.CoverKey,
		UpdatedAt:       time.Now().UTC(),
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:              m.ID,
		Title:           m.Title,
		Description:     m.Description,
		AuthorID:        m.AuthorID,
		AvailableCopies: m.AvailableCopies,
		CoverKey:        m.CoverKey,
		HasCover:        m.CoverKey != "",
	}
}

func borrowToModel(b domain.Borrow) BorrowModel {
	return BorrowModel{
		ID:         b.ID,
		BookID:     b.BookID,
		ReaderName: b.ReaderName,
		BorrowDate: toDBDate(b.BorrowDate),
		ReturnDate: toDBDatePtr(b.ReturnDate),
		IsReturned: b.IsReturned,
	}
}

func borrowFromModel(m BorrowModel) domain.Borrow {
	return domain.Borrow{
		ID:         m.ID,
		BookID:     m.BookID,
		ReaderName: m.ReaderName,
		BorrowDate: fromDBDate(m.BorrowDate),
		ReturnDate: fromDBDatePtr(m.ReturnDate),
		IsReturned: m.IsReturned,
	}
}

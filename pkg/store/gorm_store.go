package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AniketChoudhary834/LMS/pkg/domain"
)

const migrateLockID int64 = 51807314

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrently starting services do not race on DDL.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &CourseModel{}, &LedgerModel{}, &ProgressModel{}, &QuizResultModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
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

// users

// CreateUser inserts a new user; unique email or name collisions map to ErrDuplicate.
func (s *GormStore) CreateUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// SaveUser updates a user's mutable fields.
func (s *GormStore) SaveUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "password_hash", "updated_at"}),
	}).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// HasUserEmailOrName reports whether either value belongs to a registered user.
func (s *GormStore) HasUserEmailOrName(ctx context.Context, email, name string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("email = ? OR name = ?", email, name).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// courses

// CreateCourse inserts a course.
func (s *GormStore) CreateCourse(ctx context.Context, c domain.Course) error {
	model, err := courseToModel(c)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetCourse retrieves a course.
func (s *GormStore) GetCourse(ctx context.Context, id string) (domain.Course, bool, error) {
	var model CourseModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Course{}, false, nil
		}
		return domain.Course{}, false, err
	}
	c, err := courseFromModel(model)
	if err != nil {
		return domain.Course{}, false, err
	}
	return c, true, nil
}

// UpdateCourse applies fn to the row-locked course.
func (s *GormStore) UpdateCourse(ctx context.Context, id string, fn func(*domain.Course) error) (domain.Course, error) {
	var out domain.Course
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model CourseModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		course, err := courseFromModel(model)
		if err != nil {
			return err
		}
		if err := fn(&course); err != nil {
			return err
		}
		course.ID = id
		course.UpdatedAt = time.Now().UTC()
		updated, err := courseToModel(course)
		if err != nil {
			return err
		}
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		out = course
		return nil
	})
	return out, err
}

// ListPublishedCourses lists published courses matching filter.
func (s *GormStore) ListPublishedCourses(ctx context.Context, filter CourseFilter) ([]domain.Course, error) {
	tx := s.db.WithContext(ctx).Where("is_published = ?", true)
	if len(filter.Categories) > 0 {
		tx = tx.Where("category IN ?", filter.Categories)
	}
	if len(filter.Levels) > 0 {
		tx = tx.Where("level IN ?", filter.Levels)
	}
	if len(filter.Languages) > 0 {
		tx = tx.Where("language IN ?", filter.Languages)
	}
	switch filter.Sort {
	case SortTitleDesc:
		tx = tx.Order("title DESC")
	case SortNewest:
		tx = tx.Order("created_at DESC")
	case SortOldest:
		tx = tx.Order("created_at ASC")
	default:
		tx = tx.Order("title ASC")
	}
	return findCourses(tx)
}

// ListCoursesByInstructor returns an instructor's courses, newest first.
func (s *GormStore) ListCoursesByInstructor(ctx context.Context, instructorID string) ([]domain.Course, error) {
	return findCourses(s.db.WithContext(ctx).Where("instructor_id = ?", instructorID).Order("created_at DESC"))
}

func findCourses(tx *gorm.DB) ([]domain.Course, error) {
	var models []CourseModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Course, 0, len(models))
	for _, m := range models {
		c, err := courseFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

// ledgers

// GetLedger returns a student's ledger.
func (s *GormStore) GetLedger(ctx context.Context, studentID string) (domain.EnrollmentLedger, bool, error) {
	var model LedgerModel
	if err := s.db.WithContext(ctx).First(&model, "student_id = ?", studentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.EnrollmentLedger{StudentID: studentID}, false, nil
		}
		return domain.EnrollmentLedger{}, false, err
	}
	l, err := ledgerFromModel(model)
	if err != nil {
		return domain.EnrollmentLedger{}, false, err
	}
	return l, true, nil
}

// UpdateLedger applies fn to the row-locked ledger, creating it if needed.
// A rollback from fn also drops a ledger row created by this call.
func (s *GormStore) UpdateLedger(ctx context.Context, studentID string, fn func(*domain.EnrollmentLedger) error) (domain.EnrollmentLedger, error) {
	var out domain.EnrollmentLedger
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := LedgerModel{StudentID: studentID, Courses: datatypes.JSON("[]"), UpdatedAt: time.Now().UTC()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}
		var model LedgerModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "student_id = ?", studentID).Error; err != nil {
			return err
		}
		ledger, err := ledgerFromModel(model)
		if err != nil {
			return err
		}
		if err := fn(&ledger); err != nil {
			return err
		}
		ledger.StudentID = studentID
		ledger.UpdatedAt = time.Now().UTC()
		updated, err := ledgerToModel(ledger)
		if err != nil {
			return err
		}
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		out = ledger
		return nil
	})
	return out, err
}

// progress

// GetProgress returns the progress record for a student and course.
func (s *GormStore) GetProgress(ctx context.Context, studentID, courseID string) (domain.ProgressRecord, bool, error) {
	var model ProgressModel
	err := s.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ProgressRecord{}, false, nil
		}
		return domain.ProgressRecord{}, false, err
	}
	p, err := progressFromModel(model)
	if err != nil {
		return domain.ProgressRecord{}, false, err
	}
	return p, true, nil
}

// UpdateProgress applies fn to the row-locked progress record. The insert
// that claims the (student, course) slot decides exists; a failing fn rolls
// the insert back so no empty record is left behind.
func (s *GormStore) UpdateProgress(ctx context.Context, studentID, courseID string, fn func(*domain.ProgressRecord, bool) error) (domain.ProgressRecord, error) {
	var out domain.ProgressRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := ProgressModel{
			ID:        uuid.NewString(),
			StudentID: studentID,
			CourseID:  courseID,
			Lectures:  datatypes.JSON("[]"),
			UpdatedAt: time.Now().UTC(),
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "course_id"}},
			DoNothing: true,
		}).Create(&seed)
		if res.Error != nil {
			return res.Error
		}
		exists := res.RowsAffected == 0

		var model ProgressModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("student_id = ? AND course_id = ?", studentID, courseID).
			First(&model).Error; err != nil {
			return err
		}
		record, err := progressFromModel(model)
		if err != nil {
			return err
		}
		if err := fn(&record, exists); err != nil {
			return err
		}
		record.ID = model.ID
		record.StudentID = studentID
		record.CourseID = courseID
		record.UpdatedAt = time.Now().UTC()
		updated, err := progressToModel(record)
		if err != nil {
			return err
		}
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		out = record
		return nil
	})
	return out, err
}

// quiz results

// AppendQuizResult stores a quiz result.
func (s *GormStore) AppendQuizResult(ctx context.Context, r domain.QuizResult) error {
	model, err := quizResultToModel(r)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListQuizResults returns a user's results, newest first.
func (s *GormStore) ListQuizResults(ctx context.Context, userID string) ([]domain.QuizResult, error) {
	var models []QuizResultModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.QuizResult, 0, len(models))
	for _, m := range models {
		r, err := quizResultFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, nil
}

// converters

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func courseToModel(c domain.Course) (CourseModel, error) {
	curriculum, err := marshalJSON(c.Curriculum)
	if err != nil {
		return CourseModel{}, fmt.Errorf("encode curriculum: %w", err)
	}
	students, err := marshalJSON(c.Students)
	if err != nil {
		return CourseModel{}, fmt.Errorf("encode roster: %w", err)
	}
	return CourseModel{
		ID:             c.ID,
		InstructorID:   c.InstructorID,
		InstructorName: c.InstructorName,
		Title:          c.Title,
		Category:       c.Category,
		Level:          c.Level,
		Language:       c.Language,
		Subtitle:       c.Subtitle,
		Description:    c.Description,
		Image:          c.Image,
		WelcomeMessage: c.WelcomeMessage,
		Pricing:        c.Pricing,
		Objectives:     c.Objectives,
		Curriculum:     curriculum,
		Students:       students,
		IsPublished:    c.IsPublished,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}, nil
}

func courseFromModel(m CourseModel) (domain.Course, error) {
	c := domain.Course{
		ID:             m.ID,
		InstructorID:   m.InstructorID,
		InstructorName: m.InstructorName,
		Title:          m.Title,
		Category:       m.Category,
		Level:          m.Level,
		Language:       m.Language,
		Subtitle:       m.Subtitle,
		Description:    m.Description,
		Image:          m.Image,
		WelcomeMessage: m.WelcomeMessage,
		Pricing:        m.Pricing,
		Objectives:     m.Objectives,
		IsPublished:    m.IsPublished,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if err := unmarshalJSON(m.Curriculum, &c.Curriculum); err != nil {
		return domain.Course{}, fmt.Errorf("decode curriculum: %w", err)
	}
	if err := unmarshalJSON(m.Students, &c.Students); err != nil {
		return domain.Course{}, fmt.Errorf("decode roster: %w", err)
	}
	return c, nil
}

func ledgerToModel(l domain.EnrollmentLedger) (LedgerModel, error) {
	courses, err := marshalJSON(l.Courses)
	if err != nil {
		return LedgerModel{}, fmt.Errorf("encode ledger: %w", err)
	}
	return LedgerModel{StudentID: l.StudentID, Courses: courses, UpdatedAt: l.UpdatedAt}, nil
}

func ledgerFromModel(m LedgerModel) (domain.EnrollmentLedger, error) {
	l := domain.EnrollmentLedger{StudentID: m.StudentID, UpdatedAt: m.UpdatedAt}
	if err := unmarshalJSON(m.Courses, &l.Courses); err != nil {
		return domain.EnrollmentLedger{}, fmt.Errorf("decode ledger: %w", err)
	}
	return l, nil
}

func progressToModel(p domain.ProgressRecord) (ProgressModel, error) {
	lectures, err := marshalJSON(p.LectureProgress)
	if err != nil {
		return ProgressModel{}, fmt.Errorf("encode lecture progress: %w", err)
	}
	return ProgressModel{
		ID:             p.ID,
		StudentID:      p.StudentID,
		CourseID:       p.CourseID,
		Completed:      p.Completed,
		CompletionDate: p.CompletionDate,
		Lectures:       lectures,
		UpdatedAt:      p.UpdatedAt,
	}, nil
}

func progressFromModel(m ProgressModel) (domain.ProgressRecord, error) {
	p := domain.ProgressRecord{
		ID:             m.ID,
		StudentID:      m.StudentID,
		CourseID:       m.CourseID,
		Completed:      m.Completed,
		CompletionDate: m.CompletionDate,
		UpdatedAt:      m.UpdatedAt,
	}
	if err := unmarshalJSON(m.Lectures, &p.LectureProgress); err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("decode lecture progress: %w", err)
	}
	return p, nil
}

func quizResultToModel(r domain.QuizResult) (QuizResultModel, error) {
	answers, err := marshalJSON(r.Answers)
	if err != nil {
		return QuizResultModel{}, fmt.Errorf("encode answers: %w", err)
	}
	return QuizResultModel{
		ID:             r.ID,
		UserID:         r.UserID,
		Topic:          r.Topic,
		Score:          r.Score,
		TotalQuestions: r.TotalQuestions,
		Answers:        answers,
		CreatedAt:      r.CreatedAt,
	}, nil
}

func quizResultFromModel(m QuizResultModel) (domain.QuizResult, error) {
	r := domain.QuizResult{
		ID:             m.ID,
		UserID:         m.UserID,
		Topic:          m.Topic,
		Score:          m.Score,
		TotalQuestions: m.TotalQuestions,
		CreatedAt:      m.CreatedAt,
	}
	if err := unmarshalJSON(m.Answers, &r.Answers); err != nil {
		return domain.QuizResult{}, fmt.Errorf("decode answers: %w", err)
	}
	return r, nil
}

func marshalJSON(v any) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func unmarshalJSON(raw datatypes.JSON, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, out)
}

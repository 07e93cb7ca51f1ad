package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AniketChoudhary834/LMS/pkg/domain"
)

// MemoryStore keeps every collection in-process. It backs tests and local
// runs without Postgres; a single mutex gives the same per-document
// atomicity as the row locks in GormStore.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]domain.User // key: user ID
	emails   map[string]string      // email -> user ID
	names    map[string]string      // name -> user ID
	courses  map[string]domain.Course
	order    []string
	ledgers  map[string]domain.EnrollmentLedger
	progress map[string]domain.ProgressRecord // key: student|course
	results  map[string][]domain.QuizResult
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		emails:   make(map[string]string),
		names:    make(map[string]string),
		courses:  make(map[string]domain.Course),
		ledgers:  make(map[string]domain.EnrollmentLedger),
		progress: make(map[string]domain.ProgressRecord),
		results:  make(map[string][]domain.QuizResult),
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := m.emails[u.Email]; ok {
		return ErrDuplicate
	}
	if _, ok := m.names[u.Name]; ok {
		return ErrDuplicate
	}
	m.users[u.ID] = u
	m.emails[u.Email] = u.ID
	m.names[u.Name] = u.ID
	return nil
}

func (m *MemoryStore) SaveUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := m.names[u.Name]; taken && owner != u.ID {
		return ErrDuplicate
	}
	delete(m.names, prev.Name)
	prev.Name = u.Name
	prev.PasswordHash = u.PasswordHash
	prev.UpdatedAt = u.UpdatedAt
	m.users[u.ID] = prev
	m.names[prev.Name] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.emails[email]
	if !ok {
		return domain.User{}, false, nil
	}
	return m.users[id], true, nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) HasUserEmailOrName(_ context.Context, email, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, byEmail := m.emails[email]
	_, byName := m.names[name]
	return byEmail || byName, nil
}

func (m *MemoryStore) CreateCourse(_ context.Context, c domain.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[c.ID]; ok {
		return ErrDuplicate
	}
	m.courses[c.ID] = cloneCourse(c)
	m.order = append(m.order, c.ID)
	return nil
}

func (m *MemoryStore) GetCourse(_ context.Context, id string) (domain.Course, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return domain.Course{}, false, nil
	}
	return cloneCourse(c), true, nil
}

func (m *MemoryStore) UpdateCourse(_ context.Context, id string, fn func(*domain.Course) error) (domain.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.courses[id]
	if !ok {
		return domain.Course{}, ErrNotFound
	}
	working := cloneCourse(current)
	if err := fn(&working); err != nil {
		return domain.Course{}, err
	}
	working.ID = id
	working.UpdatedAt = time.Now().UTC()
	m.courses[id] = cloneCourse(working)
	return working, nil
}

func (m *MemoryStore) ListPublishedCourses(_ context.Context, filter CourseFilter) ([]domain.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.Course, 0, len(m.order))
	for _, id := range m.order {
		c := m.courses[id]
		if !c.IsPublished {
			continue
		}
		if !matchesAny(filter.Categories, c.Category) || !matchesAny(filter.Levels, c.Level) || !matchesAny(filter.Languages, c.Language) {
			continue
		}
		res = append(res, cloneCourse(c))
	}
	sortCourses(res, filter.Sort)
	return res, nil
}

func (m *MemoryStore) ListCoursesByInstructor(_ context.Context, instructorID string) ([]domain.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.Course, 0)
	for _, id := range m.order {
		if c := m.courses[id]; c.InstructorID == instructorID {
			res = append(res, cloneCourse(c))
		}
	}
	sortCourses(res, SortNewest)
	return res, nil
}

func (m *MemoryStore) GetLedger(_ context.Context, studentID string) (domain.EnrollmentLedger, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ledgers[studentID]
	if !ok {
		return domain.EnrollmentLedger{StudentID: studentID}, false, nil
	}
	return cloneLedger(l), true, nil
}

func (m *MemoryStore) UpdateLedger(_ context.Context, studentID string, fn func(*domain.EnrollmentLedger) error) (domain.EnrollmentLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	working := cloneLedger(m.ledgers[studentID])
	if err := fn(&working); err != nil {
		return domain.EnrollmentLedger{}, err
	}
	working.StudentID = studentID
	working.UpdatedAt = time.Now().UTC()
	m.ledgers[studentID] = cloneLedger(working)
	return working, nil
}

func (m *MemoryStore) GetProgress(_ context.Context, studentID, courseID string) (domain.ProgressRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[progressKey(studentID, courseID)]
	if !ok {
		return domain.ProgressRecord{}, false, nil
	}
	return cloneProgress(p), true, nil
}

func (m *MemoryStore) UpdateProgress(_ context.Context, studentID, courseID string, fn func(*domain.ProgressRecord, bool) error) (domain.ProgressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := progressKey(studentID, courseID)
	current, exists := m.progress[key]
	if !exists {
		current = domain.ProgressRecord{ID: uuid.NewString(), LectureProgress: []domain.LectureProgress{}}
	}
	working := cloneProgress(current)
	if err := fn(&working, exists); err != nil {
		return domain.ProgressRecord{}, err
	}
	working.ID = current.ID
	working.StudentID = studentID
	working.CourseID = courseID
	working.UpdatedAt = time.Now().UTC()
	m.progress[key] = cloneProgress(working)
	return working, nil
}

func (m *MemoryStore) AppendQuizResult(_ context.Context, r domain.QuizResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.UserID] = append(m.results[r.UserID], cloneQuizResult(r))
	return nil
}

func (m *MemoryStore) ListQuizResults(_ context.Context, userID string) ([]domain.QuizResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.results[userID]
	res := make([]domain.QuizResult, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		res = append(res, cloneQuizResult(stored[i]))
	}
	return res, nil
}

func progressKey(studentID, courseID string) string {
	return studentID + "|" + courseID
}

func matchesAny(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

func sortCourses(courses []domain.Course, by CourseSort) {
	sort.SliceStable(courses, func(i, j int) bool {
		switch by {
		case SortTitleDesc:
			return courses[i].Title > courses[j].Title
		case SortNewest:
			return courses[i].CreatedAt.After(courses[j].CreatedAt)
		case SortOldest:
			return courses[i].CreatedAt.Before(courses[j].CreatedAt)
		default:
			return courses[i].Title < courses[j].Title
		}
	})
}

func cloneCourse(c domain.Course) domain.Course {
	c.Curriculum = append([]domain.Lecture(nil), c.Curriculum...)
	c.Students = append([]domain.RosterEntry(nil), c.Students...)
	return c
}

func cloneLedger(l domain.EnrollmentLedger) domain.EnrollmentLedger {
	l.Courses = append([]domain.LedgerEntry(nil), l.Courses...)
	return l
}

func cloneQuizResult(r domain.QuizResult) domain.QuizResult {
	r.Answers = maps.Clone(r.Answers)
	return r
}

func cloneProgress(p domain.ProgressRecord) domain.ProgressRecord {
	lectures := make([]domain.LectureProgress, len(p.LectureProgress))
	copy(lectures, p.LectureProgress)
	p.LectureProgress = lectures
	if p.CompletionDate != nil {
		ts := *p.CompletionDate
		p.CompletionDate = &ts
	}
	return p
}

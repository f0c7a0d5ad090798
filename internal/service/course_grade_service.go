package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-ledger-api/internal/models"
	appErrors "github.com/noah-isme/campus-ledger-api/pkg/errors"
	"github.com/noah-isme/campus-ledger-api/pkg/export"
	"github.com/noah-isme/campus-ledger-api/pkg/jobs"
)

// JobGradebookWarmup refetches and caches a course gradebook.
const JobGradebookWarmup = "gradebook.warmup"

type gradebookSource interface {
	Gradebook(ctx context.Context, courseID int64) (*models.Gradebook, error)
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

// StudentGradesRequest identifies one student of a course.
type StudentGradesRequest struct {
	CourseID  int64 `validate:"required,gt=0"`
	StudentID int64 `validate:"required,gt=0"`
}

// ExportGradesRequest selects the class sheet export encoding.
type ExportGradesRequest struct {
	CourseID int64  `validate:"required,gt=0"`
	Format   string `validate:"omitempty,oneof=csv pdf"`
}

// ExportFile is a rendered class sheet.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// CourseGradeConfig tunes the course grade service.
type CourseGradeConfig struct {
	CacheTTL       time.Duration
	ExportsEnabled bool
}

// CourseGradeService serves per-student and per-class grade aggregates.
type CourseGradeService struct {
	source    gradebookSource
	cache     *CacheService
	metrics   *MetricsService
	warmups   jobEnqueuer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       CourseGradeConfig
}

// NewCourseGradeService constructs the service. cache, metrics and warmups are optional.
func NewCourseGradeService(source gradebookSource, cache *CacheService, metrics *MetricsService, warmups jobEnqueuer, validate *validator.Validate, logger *zap.Logger, cfg CourseGradeConfig) *CourseGradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseGradeService{
		source:    source,
		cache:     cache,
		metrics:   metrics,
		warmups:   warmups,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// SetWarmupQueue attaches the queue used by Refresh once it has been created.
func (s *CourseGradeService) SetWarmupQueue(q jobEnqueuer) {
	s.warmups = q
}

func gradebookCacheKey(courseID int64) string {
	return fmt.Sprintf("grades:course:%d", courseID)
}

// StudentSummary returns one student's module averages and course average.
func (s *CourseGradeService) StudentSummary(ctx context.Context, courseID, studentID int64) (*models.CourseAverage, error) {
	if err := s.validator.Struct(StudentGradesRequest{CourseID: courseID, StudentID: studentID}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course or student id")
	}
	book, err := s.gradebook(ctx, courseID)
	if err != nil {
		return nil, err
	}

	student, ok := findStudent(book, studentID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not enrolled in course")
	}
	summary := s.studentAverage(book, student)
	return &summary, nil
}

// ClassSheet returns every student's standing plus per-task class averages.
func (s *CourseGradeService) ClassSheet(ctx context.Context, courseID int64) (*models.ClassSheet, error) {
	if courseID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid course id")
	}
	book, err := s.gradebook(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return s.classSheet(book), nil
}

// Export renders the class sheet as CSV or PDF.
func (s *CourseGradeService) Export(ctx context.Context, req ExportGradesRequest) (*ExportFile, error) {
	if !s.cfg.ExportsEnabled {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "grade exports are disabled")
	}
	req.Format = strings.ToLower(strings.TrimSpace(req.Format))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	sheet, err := s.ClassSheet(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	body, err := export.Render(format, classSheetDataset(sheet, moduleCatalog(sheet)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render export")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("course-%d-grades.%s", req.CourseID, format),
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}

// Refresh drops the cached gradebook and schedules a background refetch.
func (s *CourseGradeService) Refresh(ctx context.Context, courseID int64) error {
	if courseID <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "invalid course id")
	}
	if err := s.cache.Invalidate(ctx, gradebookCacheKey(courseID)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalidate gradebook cache")
	}
	if s.warmups == nil {
		return nil
	}
	job := jobs.Job{Type: JobGradebookWarmup, Key: strconv.FormatInt(courseID, 10)}
	if err := s.warmups.Enqueue(ctx, job); err != nil {
		s.logger.Warn("gradebook warmup not scheduled", zap.Int64("course_id", courseID), zap.Error(err))
	}
	return nil
}

// WarmGradebook is the job handler that refetches and caches a gradebook.
func (s *CourseGradeService) WarmGradebook(ctx context.Context, job jobs.Job) error {
	courseID, err := strconv.ParseInt(job.Key, 10, 64)
	if err != nil || courseID <= 0 {
		return jobs.Permanent(fmt.Errorf("invalid course key %q", job.Key))
	}
	book, err := s.fetchGradebook(ctx, courseID)
	if err == nil {
		s.cache.Set(ctx, gradebookCacheKey(courseID), book, s.cfg.CacheTTL)
	}
	s.metrics.RecordJob(JobGradebookWarmup, err)
	return err
}

func (s *CourseGradeService) gradebook(ctx context.Context, courseID int64) (*models.Gradebook, error) {
	book, _, err := readThrough(ctx, s.cache, gradebookCacheKey(courseID), s.cfg.CacheTTL,
		func(ctx context.Context) (*models.Gradebook, error) {
			return s.fetchGradebook(ctx, courseID)
		})
	return book, err
}

func (s *CourseGradeService) fetchGradebook(ctx context.Context, courseID int64) (*models.Gradebook, error) {
	start := time.Now()
	book, err := s.source.Gradebook(ctx, courseID)
	s.metrics.ObserveUpstream("gradebook", err, time.Since(start))
	if err != nil {
		s.logger.Warn("gradebook fetch failed", zap.Int64("course_id", courseID), zap.Error(err))
		return nil, err
	}
	return book, nil
}

func (s *CourseGradeService) weightPerModule(book *models.Gradebook) float64 {
	if book.WeightPerModule != nil && *book.WeightPerModule > 0 {
		return *book.WeightPerModule
	}
	return DefaultWeightPerModule(len(book.Modules))
}

func (s *CourseGradeService) studentAverage(book *models.Gradebook, student models.Student) models.CourseAverage {
	var records []models.ScoreRecord
	for _, r := range book.Records {
		if r.StudentID == student.ID {
			records = append(records, r)
		}
	}
	modules := ComputeModuleAverages(records, book.Modules)
	s.reportIssues(book.CourseID, modules)

	summary := BuildCourseAverage(book.CourseID, student.ID, modules, s.weightPerModule(book))
	summary.StudentName = student.FullName()
	return summary
}

func (s *CourseGradeService) classSheet(book *models.Gradebook) *models.ClassSheet {
	sheet := &models.ClassSheet{
		CourseID:     book.CourseID,
		CourseName:   book.CourseName,
		Students:     make([]models.CourseAverage, 0, len(book.Students)),
		TaskAverages: ComputeTaskAverages(book.Records),
	}
	for _, student := range book.Students {
		summary := s.studentAverage(book, student)
		for _, m := range summary.PerModule {
			sheet.DataIssues += len(m.DataIssues)
		}
		sheet.Students = append(sheet.Students, summary)
	}

	titles := make(map[int64]string, len(book.Tasks))
	for _, task := range book.Tasks {
		titles[task.ID] = task.Title
	}
	for i := range sheet.TaskAverages {
		sheet.TaskAverages[i].Title = titles[sheet.TaskAverages[i].TaskID]
	}
	return sheet
}

func (s *CourseGradeService) reportIssues(courseID int64, modules []models.ModuleAverage) {
	for _, m := range modules {
		if len(m.DataIssues) == 0 {
			continue
		}
		s.metrics.RecordDataIssues(m.DataIssues)
		for _, issue := range m.DataIssues {
			s.logger.Warn("malformed score neutralised",
				zap.Int64("course_id", courseID),
				zap.Int64("module_id", issue.ModuleID),
				zap.Int64("task_id", issue.TaskID),
				zap.Int64("student_id", issue.StudentID),
				zap.String("field", issue.Field),
				zap.String("reason", issue.Reason),
			)
		}
	}
}

func findStudent(book *models.Gradebook, studentID int64) (models.Student, bool) {
	for _, student := range book.Students {
		if student.ID == studentID {
			return student, true
		}
	}
	for _, record := range book.Records {
		if record.StudentID == studentID {
			return models.Student{ID: studentID}, true
		}
	}
	return models.Student{}, false
}

// moduleCatalog lists the modules of a sheet in display order.
func moduleCatalog(sheet *models.ClassSheet) []models.ModuleAverage {
	for _, student := range sheet.Students {
		if len(student.PerModule) > 0 {
			return student.PerModule
		}
	}
	return nil
}

func classSheetDataset(sheet *models.ClassSheet, modules []models.ModuleAverage) export.Dataset {
	headers := []string{"Student"}
	for _, m := range modules {
		headers = append(headers, moduleLabel(m))
	}
	headers = append(headers, "Average", "Status")

	rows := make([]map[string]string, 0, len(sheet.Students))
	for _, student := range sheet.Students {
		row := map[string]string{"Student": student.StudentName, "Status": string(student.Status)}
		if row["Student"] == "" {
			row["Student"] = strconv.FormatInt(student.StudentID, 10)
		}
		for _, m := range student.PerModule {
			row[moduleLabel(m)] = strconv.FormatFloat(m.WeightedAverage, 'f', 2, 64)
		}
		if student.GlobalAverage != nil {
			row["Average"] = strconv.FormatFloat(*student.GlobalAverage, 'f', 2, 64)
		} else {
			row["Average"] = "hidden"
		}
		rows = append(rows, row)
	}

	title := sheet.CourseName
	if title == "" {
		title = fmt.Sprintf("Course %d", sheet.CourseID)
	}
	return export.Dataset{Title: title + " grades", Headers: headers, Rows: rows}
}

func moduleLabel(m models.ModuleAverage) string {
	if m.Name != "" {
		return m.Name
	}
	if m.ModuleID == models.UnassignedModuleID {
		return "Unassigned"
	}
	return fmt.Sprintf("Module %d", m.ModuleID)
}

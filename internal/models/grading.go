package models

// UnassignedModuleID groups score records that arrive without a module.
const UnassignedModuleID int64 = 0

// GradeStatus is the pass/fail verdict shown for a course average.
type GradeStatus string

const (
	// GradeStatusApproved means the visible global average reached the pass threshold.
	GradeStatusApproved GradeStatus = "APPROVED"
	// GradeStatusFailed means the visible global average is below the pass threshold.
	GradeStatusFailed GradeStatus = "FAILED"
	// GradeStatusHidden means at least one module is unpublished and no value may be shown.
	GradeStatusHidden GradeStatus = "HIDDEN"
)

// ScoreRecord is one task score for one student as delivered by the backend.
type ScoreRecord struct {
	TaskID        int64    `json:"task_id"`
	ModuleID      int64    `json:"module_id"`
	StudentID     int64    `json:"student_id"`
	ScoreObtained *float64 `json:"score_obtained"`
	ScoreMax      float64  `json:"score_max"`
	Weight        float64  `json:"weight"`
}

// ModuleInfo is the catalog entry for a graded module of a course.
type ModuleInfo struct {
	ModuleID  int64  `json:"module_id"`
	Name      string `json:"name"`
	Order     int    `json:"order"`
	Published bool   `json:"published"`
}

// DataIssue flags a malformed numeric field that was neutralised during aggregation.
type DataIssue struct {
	TaskID    int64  `json:"task_id"`
	ModuleID  int64  `json:"module_id"`
	StudentID int64  `json:"student_id"`
	Field     string `json:"field"`
	Reason    string `json:"reason"`
}

// ModuleAverage is the weighted point accumulation of one module.
type ModuleAverage struct {
	ModuleID        int64       `json:"module_id"`
	Name            string      `json:"name"`
	Order           int         `json:"order"`
	WeightedAverage float64     `json:"weighted_average"`
	TaskCount       int         `json:"task_count"`
	GradedCount     int         `json:"graded_count"`
	Published       bool        `json:"published"`
	DataIssues      []DataIssue `json:"data_issues,omitempty"`
}

// GlobalAverage is the course-level value with its visibility.
type GlobalAverage struct {
	Value   float64 `json:"value"`
	Visible bool    `json:"visible"`
}

// CourseAverage summarises one student's standing in a course. GlobalAverage is nil
// whenever Visible is false.
type CourseAverage struct {
	CourseID      int64           `json:"course_id"`
	StudentID     int64           `json:"student_id"`
	StudentName   string          `json:"student_name,omitempty"`
	GlobalAverage *float64        `json:"global_average,omitempty"`
	Visible       bool            `json:"visible"`
	Status        GradeStatus     `json:"status"`
	PerModule     []ModuleAverage `json:"per_module"`
}

// TaskAverage is the class-wide average of one task on a 0-10 scale.
type TaskAverage struct {
	TaskID      int64   `json:"task_id"`
	ModuleID    int64   `json:"module_id"`
	Title       string  `json:"title,omitempty"`
	Average     float64 `json:"average"`
	GradedCount int     `json:"graded_count"`
	RecordCount int     `json:"record_count"`
}

// Student is the canonical roster entry of a course.
type Student struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// FullName joins first and last names.
func (s Student) FullName() string {
	switch {
	case s.FirstName == "":
		return s.LastName
	case s.LastName == "":
		return s.FirstName
	default:
		return s.FirstName + " " + s.LastName
	}
}

// Task is the canonical catalog entry of a graded task.
type Task struct {
	ID       int64  `json:"id"`
	ModuleID int64  `json:"module_id"`
	Title    string `json:"title"`
}

// Gradebook is a normalised course payload: catalog, roster and flat score records.
type Gradebook struct {
	CourseID        int64         `json:"course_id"`
	CourseName      string        `json:"course_name"`
	Modules         []ModuleInfo  `json:"modules"`
	Tasks           []Task        `json:"tasks"`
	Students        []Student     `json:"students"`
	Records         []ScoreRecord `json:"records"`
	WeightPerModule *float64      `json:"weight_per_module,omitempty"`
}

// ClassSheet is the teacher view of a course.
type ClassSheet struct {
	CourseID     int64           `json:"course_id"`
	CourseName   string          `json:"course_name"`
	Students     []CourseAverage `json:"students"`
	TaskAverages []TaskAverage   `json:"task_averages"`
	DataIssues   int             `json:"data_issues"`
}

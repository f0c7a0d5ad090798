package service

import (
	"math"
	"sort"

	"github.com/noah-isme/campus-ledger-api/internal/models"
)

// PassThreshold is the minimum visible global average counted as approved.
const PassThreshold = 7.0

// fullScale is the theoretical maximum of a global average.
const fullScale = 10.0

func roundScore(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ComputeModuleAverages groups score records by module and accumulates weighted points.
//
// Each record contributes (score or 0) / scoreMax * weight. The result is a point
// accumulation, not a mean. Records with a non-positive or non-finite scoreMax, or a
// non-finite score or weight, contribute nothing and are reported as data issues.
// Catalog entries supply name, order and published state; catalogued modules without
// records are still returned. Modules absent from the catalog are treated as unpublished.
// GradedCount only counts scored records that contributed. Sums are left unrounded.
// Output is ordered by Order then ModuleID.
func ComputeModuleAverages(records []models.ScoreRecord, catalog []models.ModuleInfo) []models.ModuleAverage {
	groups := make(map[int64]*models.ModuleAverage, len(catalog))
	for _, info := range catalog {
		if _, ok := groups[info.ModuleID]; ok {
			continue
		}
		groups[info.ModuleID] = &models.ModuleAverage{
			ModuleID:  info.ModuleID,
			Name:      info.Name,
			Order:     info.Order,
			Published: info.Published,
		}
	}

	for _, record := range records {
		group, ok := groups[record.ModuleID]
		if !ok {
			group = &models.ModuleAverage{ModuleID: record.ModuleID}
			groups[record.ModuleID] = group
		}
		group.TaskCount++
		contribution, issue := recordContribution(record)
		if issue != nil {
			group.DataIssues = append(group.DataIssues, *issue)
			continue
		}
		if record.ScoreObtained != nil {
			group.GradedCount++
		}
		group.WeightedAverage += contribution
	}

	result := make([]models.ModuleAverage, 0, len(groups))
	for _, group := range groups {
		result = append(result, *group)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].ModuleID < result[j].ModuleID
	})
	return result
}

func recordContribution(record models.ScoreRecord) (float64, *models.DataIssue) {
	issue := func(field, reason string) *models.DataIssue {
		return &models.DataIssue{
			TaskID:    record.TaskID,
			ModuleID:  record.ModuleID,
			StudentID: record.StudentID,
			Field:     field,
			Reason:    reason,
		}
	}

	if !finite(record.ScoreMax) || record.ScoreMax <= 0 {
		return 0, issue("score_max", "score max must be a positive number")
	}
	if !finite(record.Weight) {
		return 0, issue("weight", "weight must be a finite number")
	}
	score := 0.0
	if record.ScoreObtained != nil {
		score = *record.ScoreObtained
	}
	if !finite(score) {
		return 0, issue("score_obtained", "score must be a finite number")
	}
	return score / record.ScoreMax * record.Weight, nil
}

// ComputeGlobalAverage sums module points and rescales them onto a 0-10 range when the
// modules' combined allocation (weightPerModule * N) is not already 10.
// The average is visible only when there is at least one module and all of them are published.
// The value is unrounded so the pass threshold sees the exact average.
func ComputeGlobalAverage(moduleAverages []models.ModuleAverage, weightPerModule float64) models.GlobalAverage {
	if len(moduleAverages) == 0 {
		return models.GlobalAverage{}
	}

	visible := true
	var sum float64
	for _, m := range moduleAverages {
		sum += m.WeightedAverage
		if !m.Published {
			visible = false
		}
	}

	allocation := weightPerModule * float64(len(moduleAverages))
	if finite(allocation) && allocation > 0 && math.Abs(allocation-fullScale) > 1e-9 {
		sum = sum * fullScale / allocation
	}

	return models.GlobalAverage{Value: sum, Visible: visible}
}

// GradeStatusFor maps a global average to its verdict. Hidden averages never pass or fail.
func GradeStatusFor(avg models.GlobalAverage) models.GradeStatus {
	switch {
	case !avg.Visible:
		return models.GradeStatusHidden
	case avg.Value >= PassThreshold:
		return models.GradeStatusApproved
	default:
		return models.GradeStatusFailed
	}
}

// DefaultWeightPerModule splits the 10 point scale evenly across modules.
func DefaultWeightPerModule(moduleCount int) float64 {
	if moduleCount <= 0 {
		return fullScale
	}
	return fullScale / float64(moduleCount)
}

// BuildCourseAverage assembles one student's standing. The status is decided on exact
// values; module points and the global average are rounded to 2 decimals only for display.
// The numeric average is withheld unless it is visible.
func BuildCourseAverage(courseID, studentID int64, modules []models.ModuleAverage, weightPerModule float64) models.CourseAverage {
	global := ComputeGlobalAverage(modules, weightPerModule)
	summary := models.CourseAverage{
		CourseID:  courseID,
		StudentID: studentID,
		Visible:   global.Visible,
		Status:    GradeStatusFor(global),
		PerModule: make([]models.ModuleAverage, len(modules)),
	}
	for i, m := range modules {
		m.WeightedAverage = roundScore(m.WeightedAverage)
		summary.PerModule[i] = m
	}
	if global.Visible {
		value := roundScore(global.Value)
		summary.GlobalAverage = &value
	}
	return summary
}

// ComputeTaskAverages returns the class-wide average of every task on a 0-10 scale,
// computed over graded records with a valid score max. Output is ordered by ModuleID then TaskID.
func ComputeTaskAverages(records []models.ScoreRecord) []models.TaskAverage {
	type accumulator struct {
		avg models.TaskAverage
		sum float64
	}
	byTask := make(map[int64]*accumulator)
	for _, record := range records {
		acc, ok := byTask[record.TaskID]
		if !ok {
			acc = &accumulator{avg: models.TaskAverage{TaskID: record.TaskID, ModuleID: record.ModuleID}}
			byTask[record.TaskID] = acc
		}
		acc.avg.RecordCount++
		if record.ScoreObtained == nil || !finite(*record.ScoreObtained) {
			continue
		}
		if !finite(record.ScoreMax) || record.ScoreMax <= 0 {
			continue
		}
		acc.avg.GradedCount++
		acc.sum += *record.ScoreObtained / record.ScoreMax * fullScale
	}

	result := make([]models.TaskAverage, 0, len(byTask))
	for _, acc := range byTask {
		if acc.avg.GradedCount > 0 {
			acc.avg.Average = roundScore(acc.sum / float64(acc.avg.GradedCount))
		}
		result = append(result, acc.avg)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ModuleID != result[j].ModuleID {
			return result[i].ModuleID < result[j].ModuleID
		}
		return result[i].TaskID < result[j].TaskID
	})
	return result
}

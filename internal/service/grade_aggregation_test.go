package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-ledger-api/internal/models"
)

func score(v float64) *float64 { return &v }

func sampleRecords() []models.ScoreRecord {
	return []models.ScoreRecord{
		{TaskID: 3, ModuleID: 2, StudentID: 1, ScoreObtained: score(8), ScoreMax: 10, Weight: 5},
		{TaskID: 1, ModuleID: 1, StudentID: 1, ScoreObtained: score(15), ScoreMax: 20, Weight: 2},
		{TaskID: 2, ModuleID: 1, StudentID: 1, ScoreObtained: nil, ScoreMax: 10, Weight: 3},
		{TaskID: 4, ModuleID: 2, StudentID: 1, ScoreObtained: score(10), ScoreMax: 10, Weight: 0},
	}
}

func TestComputeModuleAveragesEmpty(t *testing.T) {
	result := ComputeModuleAverages(nil, nil)
	require.NotNil(t, result)
	assert.Empty(t, result)
}

func TestComputeModuleAveragesAccumulatesPoints(t *testing.T) {
	catalog := []models.ModuleInfo{
		{ModuleID: 2, Name: "Tablas", Order: 1, Published: true},
		{ModuleID: 1, Name: "Fórmulas", Order: 1, Published: false},
		{ModuleID: 9, Name: "Macros", Order: 0, Published: true},
	}

	result := ComputeModuleAverages(sampleRecords(), catalog)
	require.Len(t, result, 3)

	assert.Equal(t, int64(9), result[0].ModuleID)
	assert.Equal(t, 0.0, result[0].WeightedAverage)
	assert.Equal(t, 0, result[0].TaskCount)

	// Same order: ties broken by module id.
	assert.Equal(t, int64(1), result[1].ModuleID)
	assert.Equal(t, "Fórmulas", result[1].Name)
	assert.InDelta(t, 1.5, result[1].WeightedAverage, 1e-9)
	assert.Equal(t, 2, result[1].TaskCount)
	assert.Equal(t, 1, result[1].GradedCount)
	assert.False(t, result[1].Published)

	assert.Equal(t, int64(2), result[2].ModuleID)
	assert.InDelta(t, 4.0, result[2].WeightedAverage, 1e-9)
	assert.Equal(t, 2, result[2].GradedCount)
}

func TestComputeModuleAveragesIsDeterministic(t *testing.T) {
	records := append(sampleRecords(), models.ScoreRecord{TaskID: 7, ModuleID: 0, StudentID: 1, ScoreObtained: score(5), ScoreMax: 10, Weight: 1})
	first := ComputeModuleAverages(records, nil)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ComputeModuleAverages(records, nil))
	}
	require.Len(t, first, 3)
	assert.Equal(t, models.UnassignedModuleID, first[0].ModuleID)
	assert.False(t, first[0].Published)
}

func TestComputeModuleAveragesFlagsDataIssues(t *testing.T) {
	records := []models.ScoreRecord{
		{TaskID: 1, ModuleID: 1, StudentID: 4, ScoreObtained: score(5), ScoreMax: 0, Weight: 1},
		{TaskID: 2, ModuleID: 1, StudentID: 4, ScoreObtained: score(5), ScoreMax: -3, Weight: 1},
		{TaskID: 3, ModuleID: 1, StudentID: 4, ScoreObtained: score(math.NaN()), ScoreMax: 10, Weight: 1},
		{TaskID: 4, ModuleID: 1, StudentID: 4, ScoreObtained: score(10), ScoreMax: 10, Weight: math.Inf(1)},
		{TaskID: 5, ModuleID: 1, StudentID: 4, ScoreObtained: score(10), ScoreMax: 10, Weight: 2},
	}

	result := ComputeModuleAverages(records, nil)
	require.Len(t, result, 1)
	assert.Equal(t, 2.0, result[0].WeightedAverage)
	assert.False(t, math.IsNaN(result[0].WeightedAverage))
	assert.Equal(t, 1, result[0].GradedCount)
	assert.Equal(t, 5, result[0].TaskCount)
	require.Len(t, result[0].DataIssues, 4)
	assert.Equal(t, "score_max", result[0].DataIssues[0].Field)
	assert.Equal(t, int64(4), result[0].DataIssues[0].StudentID)
	assert.Equal(t, "score_obtained", result[0].DataIssues[2].Field)
	assert.Equal(t, "weight", result[0].DataIssues[3].Field)
}

func TestComputeModuleAveragesNullScoresActAsZero(t *testing.T) {
	nulls := []models.ScoreRecord{
		{TaskID: 1, ModuleID: 1, ScoreMax: 10, Weight: 2},
		{TaskID: 2, ModuleID: 1, ScoreMax: 10, Weight: 3},
	}
	zeros := []models.ScoreRecord{
		{TaskID: 1, ModuleID: 1, ScoreObtained: score(0), ScoreMax: 10, Weight: 2},
		{TaskID: 2, ModuleID: 1, ScoreObtained: score(0), ScoreMax: 10, Weight: 3},
	}

	a := ComputeModuleAverages(nulls, nil)
	b := ComputeModuleAverages(zeros, nil)
	assert.Equal(t, a[0].WeightedAverage, b[0].WeightedAverage)
	assert.Equal(t, 0, a[0].GradedCount)
	assert.Equal(t, 2, b[0].GradedCount)
}

func TestComputeGlobalAverageVisibilityIsExhaustive(t *testing.T) {
	for n := 1; n <= 4; n++ {
		for mask := 0; mask < 1<<n; mask++ {
			modules := make([]models.ModuleAverage, n)
			allPublished := true
			for i := range modules {
				published := mask&(1<<i) != 0
				modules[i] = models.ModuleAverage{ModuleID: int64(i + 1), WeightedAverage: 2, Published: published}
				allPublished = allPublished && published
			}
			avg := ComputeGlobalAverage(modules, DefaultWeightPerModule(n))
			assert.Equal(t, allPublished, avg.Visible, "n=%d mask=%b", n, mask)
		}
	}
}

func TestComputeGlobalAverageEmptyIsHidden(t *testing.T) {
	avg := ComputeGlobalAverage(nil, 5)
	assert.False(t, avg.Visible)
	assert.Equal(t, models.GradeStatusHidden, GradeStatusFor(avg))
}

func TestComputeGlobalAverageScaling(t *testing.T) {
	modules := []models.ModuleAverage{
		{ModuleID: 1, WeightedAverage: 4.5, Published: true},
		{ModuleID: 2, WeightedAverage: 3.5, Published: true},
	}

	// 2 modules x 5 points already spans 0-10.
	assert.Equal(t, 8.0, ComputeGlobalAverage(modules, 5).Value)

	// 2 modules x 10 points is rescaled onto 0-10.
	assert.Equal(t, 4.0, ComputeGlobalAverage(modules, 10).Value)

	// A non-positive allocation leaves the sum untouched.
	assert.Equal(t, 8.0, ComputeGlobalAverage(modules, 0).Value)
}

func TestGradeStatusThreshold(t *testing.T) {
	assert.Equal(t, models.GradeStatusApproved, GradeStatusFor(models.GlobalAverage{Value: 7.0, Visible: true}))
	assert.Equal(t, models.GradeStatusFailed, GradeStatusFor(models.GlobalAverage{Value: 6.99, Visible: true}))
	assert.Equal(t, models.GradeStatusHidden, GradeStatusFor(models.GlobalAverage{Value: 9.5, Visible: false}))
}

func TestBuildCourseAverageWithholdsHiddenValue(t *testing.T) {
	modules := []models.ModuleAverage{
		{ModuleID: 1, WeightedAverage: 5, Published: true},
		{ModuleID: 2, WeightedAverage: 4, Published: false},
	}
	hidden := BuildCourseAverage(7, 1, modules, 5)
	assert.Nil(t, hidden.GlobalAverage)
	assert.False(t, hidden.Visible)
	assert.Equal(t, models.GradeStatusHidden, hidden.Status)

	modules[1].Published = true
	shown := BuildCourseAverage(7, 1, modules, 5)
	require.NotNil(t, shown.GlobalAverage)
	assert.Equal(t, 9.0, *shown.GlobalAverage)
	assert.Equal(t, models.GradeStatusApproved, shown.Status)
}

func TestPassThresholdUsesUnroundedAverage(t *testing.T) {
	catalog := []models.ModuleInfo{{ModuleID: 1, Published: true}}
	records := []models.ScoreRecord{{TaskID: 1, ModuleID: 1, StudentID: 1, ScoreObtained: score(6.996), ScoreMax: 10, Weight: 10}}

	modules := ComputeModuleAverages(records, catalog)
	require.Len(t, modules, 1)
	assert.InDelta(t, 6.996, modules[0].WeightedAverage, 1e-9)

	global := ComputeGlobalAverage(modules, 10)
	assert.InDelta(t, 6.996, global.Value, 1e-9)
	assert.Equal(t, models.GradeStatusFailed, GradeStatusFor(global))

	summary := BuildCourseAverage(7, 1, modules, 10)
	assert.Equal(t, models.GradeStatusFailed, summary.Status)
	require.NotNil(t, summary.GlobalAverage)
	assert.Equal(t, 7.0, *summary.GlobalAverage)
	assert.Equal(t, 7.0, summary.PerModule[0].WeightedAverage)
	assert.InDelta(t, 6.996, modules[0].WeightedAverage, 1e-9, "caller's modules are not rounded in place")
}

func TestBuildCourseAverageRoundsForDisplay(t *testing.T) {
	modules := []models.ModuleAverage{
		{ModuleID: 1, WeightedAverage: 10.0 / 3, Published: true},
		{ModuleID: 2, WeightedAverage: 10.0 / 3, Published: true},
	}
	summary := BuildCourseAverage(7, 1, modules, 5)
	assert.Equal(t, 3.33, summary.PerModule[0].WeightedAverage)
	require.NotNil(t, summary.GlobalAverage)
	assert.Equal(t, 6.67, *summary.GlobalAverage)
	assert.Equal(t, models.GradeStatusFailed, summary.Status)
}

func TestComputeTaskAverages(t *testing.T) {
	records := []models.ScoreRecord{
		{TaskID: 2, ModuleID: 1, StudentID: 1, ScoreObtained: score(8), ScoreMax: 10},
		{TaskID: 2, ModuleID: 1, StudentID: 2, ScoreObtained: score(6), ScoreMax: 10},
		{TaskID: 2, ModuleID: 1, StudentID: 3},
		{TaskID: 1, ModuleID: 3, StudentID: 1, ScoreObtained: score(15), ScoreMax: 20},
		{TaskID: 5, ModuleID: 1, StudentID: 1, ScoreObtained: score(3), ScoreMax: 0},
	}

	result := ComputeTaskAverages(records)
	require.Len(t, result, 3)

	assert.Equal(t, int64(2), result[0].TaskID)
	assert.Equal(t, 7.0, result[0].Average)
	assert.Equal(t, 2, result[0].GradedCount)
	assert.Equal(t, 3, result[0].RecordCount)

	assert.Equal(t, int64(5), result[1].TaskID)
	assert.Equal(t, 0, result[1].GradedCount)

	assert.Equal(t, int64(1), result[2].TaskID)
	assert.Equal(t, 7.5, result[2].Average)
}

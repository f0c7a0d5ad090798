package dto

import (
	"sort"
	"strings"

	"github.com/noah-isme/campus-ledger-api/internal/models"
)

// PersonPayload accepts both singular and plural name fields used across backend endpoints.
type PersonPayload struct {
	ID        FlexID `json:"id"`
	Nombre    string `json:"nombre"`
	Nombres   string `json:"nombres"`
	Apellido  string `json:"apellido"`
	Apellidos string `json:"apellidos"`
}

// Normalize collapses the alternate name fields into one Student.
func (p PersonPayload) Normalize() models.Student {
	return models.Student{
		ID:        int64(p.ID),
		FirstName: firstNonEmpty(p.Nombres, p.Nombre),
		LastName:  firstNonEmpty(p.Apellidos, p.Apellido),
	}
}

// ModulePayload is a module entry of the gradebook.
type ModulePayload struct {
	ID        FlexID   `json:"id"`
	Nombre    string   `json:"nombre"`
	Titulo    string   `json:"titulo"`
	Orden     int      `json:"orden"`
	Publicado FlexBool `json:"publicado"`
}

// TaskPayload is a task entry of the gradebook.
type TaskPayload struct {
	ID            FlexID    `json:"id"`
	ModuloID      FlexID    `json:"modulo_id"`
	Titulo        string    `json:"titulo"`
	Nombre        string    `json:"nombre"`
	PuntajeMaximo FlexFloat `json:"puntaje_maximo"`
	Ponderacion   FlexFloat `json:"ponderacion"`
}

// ScorePayload is one graded (or pending) delivery.
type ScorePayload struct {
	TareaID       FlexID    `json:"tarea_id"`
	ModuloID      FlexID    `json:"modulo_id"`
	EstudianteID  FlexID    `json:"estudiante_id"`
	Nota          FlexFloat `json:"nota"`
	PuntajeMaximo FlexFloat `json:"puntaje_maximo"`
	Ponderacion   FlexFloat `json:"ponderacion"`
}

// GradebookPayload mirrors GET /api/calificaciones/curso/:id/completo.
type GradebookPayload struct {
	CursoID           FlexID          `json:"curso_id"`
	NombreCurso       string          `json:"nombre_curso"`
	PonderacionModulo FlexFloat       `json:"ponderacion_modulo"`
	Modulos           []ModulePayload `json:"modulos"`
	Tareas            []TaskPayload   `json:"tareas"`
	Estudiantes       []PersonPayload `json:"estudiantes"`
	Calificaciones    []ScorePayload  `json:"calificaciones"`
}

// Normalize converts the backend payload into the canonical gradebook.
//
// Records missing a score max or weight inherit them from their task; weight defaults to 1.
// Every student gets a record for every task, so tasks without a delivery count as ungraded.
func (p GradebookPayload) Normalize() models.Gradebook {
	book := models.Gradebook{
		CourseID:        int64(p.CursoID),
		CourseName:      p.NombreCurso,
		WeightPerModule: p.PonderacionModulo.Ptr(),
	}

	for _, m := range p.Modulos {
		book.Modules = append(book.Modules, models.ModuleInfo{
			ModuleID:  int64(m.ID),
			Name:      firstNonEmpty(m.Nombre, m.Titulo),
			Order:     m.Orden,
			Published: bool(m.Publicado),
		})
	}

	tasks := make(map[int64]TaskPayload, len(p.Tareas))
	for _, t := range p.Tareas {
		tasks[int64(t.ID)] = t
		book.Tasks = append(book.Tasks, models.Task{
			ID:       int64(t.ID),
			ModuleID: int64(t.ModuloID),
			Title:    firstNonEmpty(t.Titulo, t.Nombre),
		})
	}

	for _, s := range p.Estudiantes {
		book.Students = append(book.Students, s.Normalize())
	}

	type key struct{ student, task int64 }
	seen := make(map[key]bool, len(p.Calificaciones))
	for _, c := range p.Calificaciones {
		task := tasks[int64(c.TareaID)]
		moduleID := int64(c.ModuloID)
		if moduleID == models.UnassignedModuleID {
			moduleID = int64(task.ModuloID)
		}
		book.Records = append(book.Records, models.ScoreRecord{
			TaskID:        int64(c.TareaID),
			ModuleID:      moduleID,
			StudentID:     int64(c.EstudianteID),
			ScoreObtained: c.Nota.Ptr(),
			ScoreMax:      c.PuntajeMaximo.Or(task.PuntajeMaximo.Value),
			Weight:        c.Ponderacion.Or(task.Ponderacion.Or(1)),
		})
		seen[key{int64(c.EstudianteID), int64(c.TareaID)}] = true
	}

	for _, s := range book.Students {
		for _, t := range p.Tareas {
			if seen[key{s.ID, int64(t.ID)}] {
				continue
			}
			book.Records = append(book.Records, models.ScoreRecord{
				TaskID:    int64(t.ID),
				ModuleID:  int64(t.ModuloID),
				StudentID: s.ID,
				ScoreMax:  t.PuntajeMaximo.Value,
				Weight:    t.Ponderacion.Or(1),
			})
		}
	}

	sort.SliceStable(book.Records, func(i, j int) bool {
		a, b := book.Records[i], book.Records[j]
		if a.StudentID != b.StudentID {
			return a.StudentID < b.StudentID
		}
		return a.TaskID < b.TaskID
	})

	return book
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

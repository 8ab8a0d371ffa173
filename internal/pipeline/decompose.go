// Package pipeline turns a requirements document into a scored,
// dependency-ordered task list, expanding complex tasks into subtasks.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ShayCichocki/pairline/internal/apperr"
	"github.com/ShayCichocki/pairline/internal/llm"
	"github.com/ShayCichocki/pairline/pkg/models"
)

// decomposedTask is the JSON structure the backend returns for a single task.
type decomposedTask struct {
	ID           flexInt   `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Dependencies []flexInt `json:"dependencies"`
	Priority     string    `json:"priority"`
	Details      string    `json:"details"`
	TestStrategy string    `json:"testStrategy"`
}

type decompositionResponse struct {
	Tasks *[]decomposedTask `json:"tasks"`
}

// flexInt accepts 3 as well as "3".
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid id %s", data)
	}
	*f = flexInt(n)
	return nil
}

// Decompose asks the backend for exactly n tasks and returns them normalized.
func (p *Pipeline) Decompose(ctx context.Context, prd string, n int) ([]models.Task, error) {
	response, err := p.gen.Generate(ctx, p.decompositionRequest(prd, n))
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}
	return ParseResponse(response, n)
}

// DecomposeStream is Decompose with the response streamed to onChunk as it
// arrives. The raw response is returned even when parsing fails so callers
// can fall back to showing it.
func (p *Pipeline) DecomposeStream(ctx context.Context, prd string, n int, onChunk func(string)) ([]models.Task, string, error) {
	if err := validateInput(prd, n); err != nil {
		return nil, "", err
	}

	var raw strings.Builder
	for fragment, err := range p.gen.GenerateStream(ctx, p.decompositionRequest(prd, n)) {
		if err != nil {
			return nil, raw.String(), fmt.Errorf("decompose: %w", err)
		}
		raw.WriteString(fragment)
		if onChunk != nil {
			onChunk(fragment)
		}
	}

	tasks, err := ParseResponse(raw.String(), n)
	return tasks, raw.String(), err
}

// DecompositionPrompt returns the prompt sent for prd and n.
func DecompositionPrompt(prd string, n int) string {
	return fmt.Sprintf(decompositionPrompt, n, n, prd)
}

func (p *Pipeline) decompositionRequest(prd string, n int) llm.Request {
	temperature := 0.2
	return llm.Request{
		Prompt:      DecompositionPrompt(prd, n),
		System:      decompositionSystem,
		Temperature: &temperature,
	}
}

// ParseResponse parses a decomposition response holding exactly n tasks.
//
// Ids are reassigned 1..n in response order. Dependencies are translated to
// the new ids and anything not strictly lower than the task's own id is
// dropped. Unknown priorities become medium and every task starts pending.
func ParseResponse(response string, n int) ([]models.Task, error) {
	var decoded decompositionResponse
	if err := llm.DecodeObject(response, &decoded); err != nil {
		return nil, err
	}
	if decoded.Tasks == nil {
		return nil, apperr.New(apperr.KindSchema, "pipeline.ParseResponse", "response has no tasks field")
	}
	raw := *decoded.Tasks
	if len(raw) != n {
		return nil, apperr.New(apperr.KindSchema, "pipeline.ParseResponse",
			"expected %d tasks, got %d", n, len(raw))
	}

	// Map the backend's ids to positions; duplicates keep their first position.
	idMap := make(map[int]int, len(raw))
	for i, dt := range raw {
		if _, dup := idMap[int(dt.ID)]; !dup {
			idMap[int(dt.ID)] = i + 1
		}
	}

	tasks := make([]models.Task, len(raw))
	for i, dt := range raw {
		id := i + 1
		deps := []int{}
		seen := make(map[int]bool)
		for _, d := range dt.Dependencies {
			dep, ok := idMap[int(d)]
			if !ok || dep >= id || seen[dep] {
				continue
			}
			seen[dep] = true
			deps = append(deps, dep)
		}

		priority := models.Priority(strings.ToLower(strings.TrimSpace(dt.Priority)))
		if !priority.Valid() {
			priority = models.PriorityMedium
		}

		tasks[i] = models.Task{
			ID:           id,
			Title:        dt.Title,
			Description:  dt.Description,
			Status:       models.TaskStatusPending,
			Dependencies: deps,
			Priority:     priority,
			Details:      dt.Details,
			TestStrategy: dt.TestStrategy,
		}
	}
	return tasks, nil
}

// ValidateDependencies checks that every dependency names an earlier task.
func ValidateDependencies(tasks []models.Task) error {
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if dep < 1 || dep >= t.ID {
				return fmt.Errorf("task %d depends on %d, which is not an earlier task", t.ID, dep)
			}
		}
	}
	return nil
}

// Bounds on the number of subtasks an expansion must produce.
const (
	minSubtasks = 3
	maxSubtasks = 5
)

// expansionResponse is the JSON the backend returns for stage 3.
type expansionResponse struct {
	Subtasks *[]struct {
		Title          string  `json:"title"`
		Description    string  `json:"description"`
		Details        string  `json:"details"`
		EstimatedHours float64 `json:"estimatedHours"`
	} `json:"subtasks"`
}

// ParseSubtasks parses an expansion response for the task with parentID. It
// fails with a schema error unless there are 3 to 5 subtasks. Subtask ids
// are rewritten to "<parent>.<n>".
func ParseSubtasks(response string, parentID int) ([]models.Subtask, error) {
	var decoded expansionResponse
	if err := llm.DecodeObject(response, &decoded); err != nil {
		return nil, err
	}
	if decoded.Subtasks == nil {
		return nil, apperr.New(apperr.KindSchema, "pipeline.ParseSubtasks", "response has no subtasks field")
	}
	if n := len(*decoded.Subtasks); n < minSubtasks || n > maxSubtasks {
		return nil, apperr.New(apperr.KindSchema, "pipeline.ParseSubtasks",
			"expected %d to %d subtasks, got %d", minSubtasks, maxSubtasks, n)
	}

	subtasks := make([]models.Subtask, 0, len(*decoded.Subtasks))
	for i, st := range *decoded.Subtasks {
		subtasks = append(subtasks, models.Subtask{
			ID:             fmt.Sprintf("%d.%d", parentID, i+1),
			Title:          st.Title,
			Description:    st.Description,
			Details:        st.Details,
			EstimatedHours: st.EstimatedHours,
		})
	}
	return subtasks, nil
}

func (p *Pipeline) expand(ctx context.Context, t models.Task) ([]models.Subtask, error) {
	response, err := p.gen.Generate(ctx, llm.Request{
		Prompt: fmt.Sprintf(expansionPrompt, t.Title, t.Description, t.Details),
		System: decompositionSystem,
	})
	if err != nil {
		return nil, err
	}
	return ParseSubtasks(response, t.ID)
}

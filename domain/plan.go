package domain

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// PlanStatus mirrors spec.md §3's plan lifecycle.
type PlanStatus string

const (
	PlanInProgress PlanStatus = "in_progress"
	PlanCompleted  PlanStatus = "completed"
	PlanAbandoned  PlanStatus = "abandoned"
)

// TaskStatus mirrors spec.md §3's task lifecycle, grounded on the status
// enum shape of domain/task.go in the teacher (TaskStatus there covers the
// whole task manager; a plan task only needs this narrower set).
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// Task is one row of a Plan's structured task list.
type Task struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	Status       TaskStatus `json:"status"`
	ParentID     string     `json:"parentId,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Seq          int        `json:"seq"`
}

// Plan is attached 1:1 to a Session (storage-enforced, see store/sqlite).
type Plan struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId"`
	Title     string     `json:"title"`
	Status    PlanStatus `json:"status"`
	Tasks     []Task     `json:"tasks"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Ready reports whether every dependency of the task is completed.
func (p *Plan) Ready(taskID string) bool {
	byID := make(map[string]Task, len(p.Tasks))
	for _, t := range p.Tasks {
		byID[t.ID] = t
	}
	t, ok := byID[taskID]
	if !ok {
		return false
	}
	for _, dep := range t.Dependencies {
		if d, ok := byID[dep]; !ok || d.Status != TaskCompleted {
			return false
		}
	}
	return true
}

var checklistLine = regexp.MustCompile(`^(\s*)- \[([ x~])\] (?:(\S+): )?(.*)$`)

// RenderMarkdown produces the human-readable rendering described in
// spec.md §6 ("Plan markdown format"): a heading, a status tag, and a
// checklist with indentation for subtasks. Round-trippable through
// ParsePlanMarkdown.
func (p *Plan) RenderMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Title)
	fmt.Fprintf(&b, "Status: %s\n\n", p.Status)

	children := map[string][]Task{}
	var roots []Task
	for _, t := range p.Tasks {
		if t.ParentID == "" {
			roots = append(roots, t)
		} else {
			children[t.ParentID] = append(children[t.ParentID], t)
		}
	}

	var writeTask func(t Task, depth int)
	writeTask = func(t Task, depth int) {
		mark := " "
		switch t.Status {
		case TaskCompleted:
			mark = "x"
		case TaskInProgress:
			mark = "~"
		}
		indent := strings.Repeat("  ", depth)
		depSuffix := ""
		if len(t.Dependencies) > 0 {
			depSuffix = fmt.Sprintf(" (depends on: %s)", strings.Join(t.Dependencies, ", "))
		}
		fmt.Fprintf(&b, "%s- [%s] %s: %s%s\n", indent, mark, t.ID, t.Description, depSuffix)
		for _, c := range children[t.ID] {
			writeTask(c, depth+1)
		}
	}
	for _, t := range roots {
		writeTask(t, 0)
	}
	return b.String()
}

var depSuffixRe = regexp.MustCompile(`\s*\(depends on: ([^)]*)\)\s*$`)

// ParsePlanMarkdown parses the format RenderMarkdown produces. Indentation
// (2 spaces per level) establishes parent/child relationships.
func ParsePlanMarkdown(md string) (*Plan, error) {
	scanner := bufio.NewScanner(strings.NewReader(md))
	p := &Plan{}
	var parentStack []struct {
		depth int
		id    string
	}
	seq := 0

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "# "):
			p.Title = strings.TrimPrefix(line, "# ")
		case strings.HasPrefix(line, "Status: "):
			p.Status = PlanStatus(strings.TrimSpace(strings.TrimPrefix(line, "Status: ")))
		default:
			m := checklistLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			indent, mark, id, rest := m[1], m[2], m[3], m[4]
			depth := len(indent) / 2

			var deps []string
			if dm := depSuffixRe.FindStringSubmatch(rest); dm != nil {
				rest = depSuffixRe.ReplaceAllString(rest, "")
				for _, d := range strings.Split(dm[1], ",") {
					if d = strings.TrimSpace(d); d != "" {
						deps = append(deps, d)
					}
				}
			}

			status := TaskPending
			switch mark {
			case "x":
				status = TaskCompleted
			case "~":
				status = TaskInProgress
			}

			for len(parentStack) > 0 && parentStack[len(parentStack)-1].depth >= depth {
				parentStack = parentStack[:len(parentStack)-1]
			}
			parentID := ""
			if len(parentStack) > 0 {
				parentID = parentStack[len(parentStack)-1].id
			}
			if id == "" {
				id = fmt.Sprintf("task-%d", seq+1)
			}

			seq++
			p.Tasks = append(p.Tasks, Task{
				ID:           id,
				Description:  strings.TrimSpace(rest),
				Status:       status,
				ParentID:     parentID,
				Dependencies: deps,
				Seq:          seq,
			})
			parentStack = append(parentStack, struct {
				depth int
				id    string
			}{depth, id})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

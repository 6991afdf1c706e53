package kanban

import (
	"sort"

	"github.com/CrowderSoup/begtask/database"
)

// State is the ordered in-memory view of one board.
type State struct {
	Board   database.Board
	Columns []database.Column
	Tasks   map[string][]database.Task
}

// NewState groups a snapshot's tasks under their columns, each list ordered
// by position.
func NewState(data *database.KanbanData) *State {
	s := &State{
		Board:   data.Board,
		Columns: append([]database.Column(nil), data.Columns...),
		Tasks:   make(map[string][]database.Task, len(data.Columns)),
	}
	sort.SliceStable(s.Columns, func(i, j int) bool { return s.Columns[i].Position < s.Columns[j].Position })

	for _, c := range s.Columns {
		s.Tasks[c.ID] = []database.Task{}
	}
	for _, t := range data.Tasks {
		s.Tasks[t.ColumnID] = append(s.Tasks[t.ColumnID], t)
	}
	for id := range s.Tasks {
		tasks := s.Tasks[id]
		sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Position < tasks[j].Position })
	}
	return s
}

// Clone copies the state so it can be handed out without sharing slices.
func (s *State) Clone() *State {
	out := &State{
		Board:   s.Board,
		Columns: append([]database.Column(nil), s.Columns...),
		Tasks:   make(map[string][]database.Task, len(s.Tasks)),
	}
	for id, tasks := range s.Tasks {
		out.Tasks[id] = append([]database.Task(nil), tasks...)
	}
	return out
}

// Data flattens the state back into a snapshot, columns in order and tasks
// grouped by column.
func (s *State) Data() *database.KanbanData {
	data := &database.KanbanData{
		Board:   s.Board,
		Columns: append([]database.Column{}, s.Columns...),
		Tasks:   []database.Task{},
	}
	for _, c := range s.Columns {
		data.Tasks = append(data.Tasks, s.Tasks[c.ID]...)
	}
	return data
}

// Column returns the column with the given id.
func (s *State) Column(id string) (database.Column, bool) {
	for _, c := range s.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return database.Column{}, false
}

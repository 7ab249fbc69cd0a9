package domain

// Task is a claimed unit of work.
type Task struct {
	ID       string
	Family   string
	Cursor   Cursor
	Attempts int
}

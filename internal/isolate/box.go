package isolate

import (
	"errors"
	"os"
	"path/filepath"
)

type Box struct {
	id      int
	path    string
	isolate *Isolate
}

func newIsolateBox(isolate *Isolate, id int, path string) *Box {
	return &Box{
		id:      id,
		path:    path,
		isolate: isolate,
	}
}

func (box *Box) Id() int {
	return box.id
}

func (box *Box) Path() string {
	return box.path
}

// Close wipes the box and returns its id to the pool.
func (box *Box) Close() error {
	return box.isolate.eraseBox(box.id)
}

// Command prepares a shell command line to run inside the box. A nil
// constraints pointer means DefaultConstraints.
func (box *Box) Command(command string, constraints *Constraints) *Cmd {
	if constraints == nil {
		c := DefaultConstraints()
		constraints = &c
	}
	return &Cmd{
		box:         box,
		command:     command,
		Constraints: *constraints,
	}
}

func (box *Box) AddFile(name string, content []byte) error {
	return os.WriteFile(box.filePath(name), content, 0644)
}

func (box *Box) AddExecutable(name string, content []byte) error {
	return os.WriteFile(box.filePath(name), content, 0755)
}

func (box *Box) HasFile(name string) bool {
	_, err := os.Stat(box.filePath(name))
	return !errors.Is(err, os.ErrNotExist)
}

func (box *Box) GetFile(name string) ([]byte, error) {
	return os.ReadFile(box.filePath(name))
}

func (box *Box) filePath(name string) string {
	return filepath.Join(box.path, "box", name)
}

package isolate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// ErrNoFreeBox is returned when every box id is taken.
var ErrNoFreeBox = errors.New("no free isolate box")

// Isolate hands out sandbox boxes. Each box id is used by at most one
// caller at a time; a box is wiped before it is handed out and after it is
// closed.
type Isolate struct {
	bin      string
	maxBoxes int

	mutex    sync.Mutex
	idsInUse mapset.Set[int]
}

func New(bin string, maxBoxes int) *Isolate {
	if bin == "" {
		bin = "isolate"
	}
	if maxBoxes <= 0 {
		maxBoxes = 1000
	}
	return &Isolate{
		bin:      bin,
		maxBoxes: maxBoxes,
		idsInUse: mapset.NewThreadUnsafeSet[int](),
	}
}

func (i *Isolate) NewBox(ctx context.Context) (*Box, error) {
	id, err := i.reserveId()
	if err != nil {
		return nil, err
	}

	if err := i.cleanupBox(ctx, id); err != nil {
		i.releaseId(id)
		return nil, fmt.Errorf("failed to clean up box %d: %w", id, err)
	}

	path, err := i.initBox(ctx, id)
	if err != nil {
		i.releaseId(id)
		return nil, fmt.Errorf("failed to init box %d: %w", id, err)
	}

	return newIsolateBox(i, id, path), nil
}

// InUse returns the number of boxes currently handed out.
func (i *Isolate) InUse() int {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.idsInUse.Cardinality()
}

func (i *Isolate) reserveId() (int, error) {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	for id := 0; id < i.maxBoxes; id++ {
		if !i.idsInUse.Contains(id) {
			i.idsInUse.Add(id)
			return id, nil
		}
	}
	return 0, ErrNoFreeBox
}

func (i *Isolate) releaseId(id int) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	i.idsInUse.Remove(id)
}

func (i *Isolate) eraseBox(id int) error {
	defer i.releaseId(id)
	return i.cleanupBox(context.Background(), id)
}

func (i *Isolate) cleanupBox(ctx context.Context, boxId int) error {
	cmd := exec.CommandContext(ctx, i.bin, "--cg", "--cleanup", "--box-id", strconv.Itoa(boxId))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// initBox initializes a new box with the given id and returns the path to the box
func (i *Isolate) initBox(ctx context.Context, boxId int) (string, error) {
	cmd := exec.CommandContext(ctx, i.bin, "--cg", "--init", "--box-id", strconv.Itoa(boxId))
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}

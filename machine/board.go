package machine

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/andreyvit/tinyjson"
	pkgerrors "github.com/pkg/errors"

	"machinesim-go/errcode"
	"machinesim-go/gpio"
)

// board maps user-facing pin names to GPIO numbers. In magic mode any
// name resolves to a named pin with shared identity; in strict mode
// only listed names resolve, and names marked hidden fail lookup even
// though the underlying GPIO number stays reachable by number.
type board struct {
	strict bool
	names  map[string]int
	hidden map[string]bool
}

func magicBoard() *board {
	return &board{}
}

// resolve maps a pin name to a PinID or explains why it cannot.
func (b *board) resolve(name string) (gpio.PinID, error) {
	if name == "" {
		return gpio.PinID{}, errcode.New(errcode.UnknownPin, "machine.PinByName", "empty name")
	}
	if !b.strict {
		return gpio.Name(name), nil
	}
	if b.hidden[name] {
		return gpio.PinID{}, errcode.New(errcode.UnknownPin, "machine.PinByName",
			fmt.Sprintf("pin %q is hidden on this board", name))
	}
	if n, ok := b.names[name]; ok {
		return gpio.Number(n), nil
	}
	// CPU-level aliases (GP7) stay usable unless explicitly hidden.
	if n, ok := cpuPin(name); ok {
		return gpio.Number(n), nil
	}
	return gpio.PinID{}, errcode.New(errcode.UnknownPin, "machine.PinByName",
		fmt.Sprintf("pin %q not defined on this board", name))
}

func cpuPin(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "GP")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// parseBoardJSON reads a board definition of the form
// {"LED": 25, "-SPARE": 7}. A leading '-' hides the name. tinyjson
// panics on malformed input, so the parse is fenced.
func parseBoardJSON(raw []byte) (b *board, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errcode.New(errcode.InvalidConfig, "machine.WithBoard",
				fmt.Sprintf("bad board JSON: %v", r))
		}
	}()

	r := tinyjson.Raw(raw)
	val := r.Value()
	r.EnsureEOF()

	m, ok := val.(map[string]any)
	if !ok {
		return nil, errcode.New(errcode.InvalidConfig, "machine.WithBoard",
			"board JSON is not an object")
	}

	b = &board{strict: true, names: make(map[string]int), hidden: make(map[string]bool)}
	for k, v := range m {
		num, ok := jsonInt(v)
		if !ok {
			return nil, errcode.New(errcode.InvalidConfig, "machine.WithBoard",
				fmt.Sprintf("pin %q: value %v is not a GPIO number", k, v))
		}
		b.addEntry(k, num)
	}
	return b, nil
}

// parseBoardCSV reads `name,gpio` lines. Blank lines and lines
// starting with '#' are skipped. A missing file falls back to magic
// resolution, matching how a bare dev board behaves without a pinout
// definition.
func parseBoardCSV(path string) (*board, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return magicBoard(), nil
		}
		return nil, pkgerrors.Wrap(err, "machine: reading board pinout")
	}

	b := &board{strict: true, names: make(map[string]int), hidden: make(map[string]bool)}
	for i, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, numStr, ok := strings.Cut(line, ",")
		if !ok {
			return nil, errcode.New(errcode.InvalidConfig, "machine.WithPinsCSV",
				fmt.Sprintf("%s:%d: want name,gpio", path, i+1))
		}
		name = strings.TrimSpace(name)
		num, err := strconv.Atoi(strings.TrimSpace(numStr))
		if err != nil {
			return nil, errcode.New(errcode.InvalidConfig, "machine.WithPinsCSV",
				fmt.Sprintf("%s:%d: bad GPIO number %q", path, i+1, numStr))
		}
		b.addEntry(name, num)
	}
	return b, nil
}

func (b *board) addEntry(name string, num int) {
	if rest, ok := strings.CutPrefix(name, "-"); ok {
		b.hidden[rest] = true
		// Hide the CPU-level alias too, so GP7-style names cannot
		// sidestep the board definition.
		b.hidden[fmt.Sprintf("GP%d", num)] = true
		return
	}
	b.names[name] = num
}

func jsonInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

// Package models - Label sets for detection model outputs.
package models

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet is the ordered list of labels a model was trained on.
type OutputClassSet struct {
	// Where the labels were loaded from.
	Source string
	// Classes indexed by class id.
	Classes []OutputClass
}

// NewOutputClassSet builds a set from names, assigning ids in order.
func NewOutputClassSet(source string, names []string) *OutputClassSet {
	s := &OutputClassSet{Source: source, Classes: make([]OutputClass, len(names))}
	for i, name := range names {
		s.Classes[i] = OutputClass{Index: i, Name: name}
	}
	return s
}

// LoadClassSet reads a label file with one class name per line.
//
// Leading and trailing whitespace is trimmed from each line. Blank lines keep their position
// so that class ids stay aligned with the model output.
//
// Arguments:
//   - path: The path to the label file.
//
// Returns:
//   - *OutputClassSet: The loaded labels.
//   - error: An error if the file cannot be read or holds no labels.
func LoadClassSet(path string) (*OutputClassSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening label file")
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		names = append(names, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "error reading label file %s", path)
	}

	// Trailing blank lines carry no class.
	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	if len(names) == 0 {
		return nil, errors.Errorf("label file %s contains no labels", path)
	}

	return NewOutputClassSet(path, names), nil
}

// Len returns the number of classes.
func (s *OutputClassSet) Len() int { return len(s.Classes) }

// Name returns the label for a class id, or "class <id>" when the id is out of range.
func (s *OutputClassSet) Name(idx int) string {
	if idx < 0 || idx >= len(s.Classes) || s.Classes[idx].Name == "" {
		return fmt.Sprintf("class %d", idx)
	}
	return s.Classes[idx].Name
}

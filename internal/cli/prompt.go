package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter reads answers to interactive prompts line by line.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Line prints label and returns the trimmed reply. io.EOF is returned once
// input is exhausted and nothing was typed.
func (p *Prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	input, err := p.in.ReadString('\n')
	input = strings.TrimSpace(input)
	if err != nil && input == "" {
		return "", err
	}
	return input, nil
}

// Paths prompts for a space-separated list of files or directories. An empty
// reply returns def.
func (p *Prompter) Paths(def string) ([]string, error) {
	label := "Images or directories: "
	if def != "" {
		label = fmt.Sprintf("Images or directories [%s]: ", def)
	}
	input, err := p.Line(label)
	if err != nil {
		return nil, err
	}
	if input == "" {
		if def == "" {
			return nil, nil
		}
		return []string{def}, nil
	}
	return strings.Fields(input), nil
}

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type fieldSpec struct {
	label  string
	value  string
	secret bool
}

type formField struct {
	label string
	input textinput.Model
}

// form is a column of text inputs. Enter advances to the next field and submits from the last.
type form struct {
	title  string
	fields []formField
	focus  int
	submit func(values []string) tea.Cmd
}

func newForm(title string, submit func([]string) tea.Cmd, specs ...fieldSpec) *form {
	f := &form{title: title, submit: submit}
	for _, s := range specs {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 255
		in.SetValue(s.value)
		if s.secret {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		f.fields = append(f.fields, formField{label: s.label, input: in})
	}
	f.setFocus(0)
	return f
}

func (f *form) setFocus(i int) tea.Cmd {
	f.focus = i
	var cmd tea.Cmd
	for j := range f.fields {
		if j == i {
			cmd = f.fields[j].input.Focus()
		} else {
			f.fields[j].input.Blur()
		}
	}
	return cmd
}

func (f *form) values() []string {
	out := make([]string, len(f.fields))
	for i := range f.fields {
		out[i] = f.fields[i].input.Value()
	}
	return out
}

// clear empties the secret fields after a failed submit.
func (f *form) clear() {
	for i := range f.fields {
		if f.fields[i].input.EchoMode == textinput.EchoPassword {
			f.fields[i].input.SetValue("")
		}
	}
}

func (f *form) update(msg tea.Msg) tea.Cmd {
	if len(f.fields) == 0 {
		return nil
	}
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "tab", "down":
			return f.setFocus((f.focus + 1) % len(f.fields))
		case "shift+tab", "up":
			return f.setFocus((f.focus - 1 + len(f.fields)) % len(f.fields))
		case "enter":
			if f.focus < len(f.fields)-1 {
				return f.setFocus(f.focus + 1)
			}
			return f.submit(f.values())
		}
	}

	var cmd tea.Cmd
	f.fields[f.focus].input, cmd = f.fields[f.focus].input.Update(msg)
	return cmd
}

func (f *form) view() string {
	var b strings.Builder
	b.WriteString(styles.title.Render(f.title))
	b.WriteString("\n")
	for i := range f.fields {
		label := fmt.Sprintf("%-16s", f.fields[i].label)
		if i == f.focus {
			label = styles.tab.Render(label)
		}
		fmt.Fprintf(&b, "%s %s\n", label, f.fields[i].input.View())
	}
	return b.String()
}

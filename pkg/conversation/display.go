package conversation

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cline-tools/clinekit/pkg/coreclient"
)

// Renderer receives messages the processor decided to dispatch.
type Renderer interface {
	Render(msg coreclient.Message, index int)
}

// Printer renders conversation messages to a writer, one line-oriented
// block per message, with a styled tag identifying the message class.
type Printer struct {
	out io.Writer

	assistant  lipgloss.Style
	completion lipgloss.Style
	feedback   lipgloss.Style
	ask        lipgloss.Style
	meta       lipgloss.Style
}

// NewPrinter creates a Printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{
		out:        out,
		assistant:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		completion: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		feedback:   lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		ask:        lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		meta:       lipgloss.NewStyle().Faint(true),
	}
}

// Render writes one message.
func (p *Printer) Render(msg coreclient.Message, index int) {
	switch msg.Type {
	case "say":
		p.renderSay(msg)
	case "ask":
		p.renderAsk(msg)
	default:
		fmt.Fprintf(p.out, "%s %s\n", p.meta.Render("["+msg.Type+":"+msg.Say+msg.Ask+"]"), msg.Text)
	}
}

func (p *Printer) renderSay(msg coreclient.Message) {
	switch msg.Say {
	case coreclient.SayText:
		fmt.Fprintf(p.out, "%s %s\n", p.assistant.Render("assistant"), msg.Text)
	case coreclient.SayCompletionResult:
		fmt.Fprintf(p.out, "%s %s\n", p.completion.Render("done"), msg.Text)
	case coreclient.SayUserFeedback:
		fmt.Fprintf(p.out, "%s %s\n", p.feedback.Render("user"), msg.Text)
	default:
		fmt.Fprintf(p.out, "%s %s\n", p.meta.Render("["+msg.Say+"]"), msg.Text)
	}
}

func (p *Printer) renderAsk(msg coreclient.Message) {
	switch msg.Ask {
	case coreclient.AskTool:
		fmt.Fprintf(p.out, "%s %s\n", p.ask.Render("tool?"), truncate(msg.Text, 100))
	case coreclient.AskCommand:
		fmt.Fprintf(p.out, "%s %s\n", p.ask.Render("command?"), truncate(msg.Text, 100))
	default:
		fmt.Fprintf(p.out, "%s %s\n", p.ask.Render("["+msg.Ask+"]"), msg.Text)
	}
}

// Banner writes a dimmed section divider, used for history headers and
// session status lines.
func (p *Printer) Banner(text string) {
	fmt.Fprintln(p.out, p.meta.Render("--- "+text+" ---"))
}

// Notice writes a dimmed single-line status message.
func (p *Printer) Notice(text string) {
	fmt.Fprintln(p.out, p.meta.Render(text))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.ToValidUTF8(s[:max], "") + "..."
}

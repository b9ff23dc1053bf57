package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/rhasspy/larynx-setup/internal/provision"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var planCmd = &cobra.Command{
	Use:     "plan",
	Short:   "Show the provisioning steps without running them",
	Long:    paragraph(fmt.Sprintf("\n%s the steps a run would execute, in order, with the resolved paths.", keyword("Show"))),
	Example: paragraph(appName + " plan\n" + appName + " plan --sources submodule"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := newProvisioner(cmd)
		if err != nil {
			return err
		}

		out, err := renderMarkdown(planMarkdown(p.Layout(), p.Plan()))
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(os.Stdout, out)
		return err
	},
}

// planMarkdown describes the run as a markdown document.
func planMarkdown(l provision.Layout, steps []provision.StepInfo) string {
	var b strings.Builder
	b.WriteString("# Provisioning plan\n\n")
	fmt.Fprintf(&b, "- Source root: `%s`\n", l.Root)
	fmt.Fprintf(&b, "- Virtual environment: `%s`\n", l.Venv)
	fmt.Fprintf(&b, "- Download directory: `%s`\n", l.Download)
	for _, v := range l.Vendored() {
		fmt.Fprintf(&b, "- %s: `%s`", v.Name, v.Dir)
		if v.URL != "" {
			fmt.Fprintf(&b, " from <%s>", v.URL)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n## Steps\n\n")
	for i, s := range steps {
		fmt.Fprintf(&b, "%d. **%s** (`%s`)", i+1, s.Description, s.Name)
		if s.Optional {
			b.WriteString(", failure tolerated")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderMarkdown(md string) (string, error) {
	style := styles.AutoStyle
	width := 80
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) { //nolint:gosec
		if w, _, err := term.GetSize(fd); err == nil && w < 120 {
			width = w
		}
	} else {
		style = styles.NoTTYStyle
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("unable to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("unable to render markdown: %w", err)
	}
	return out, nil
}

package report

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/cgast/examiner/pkg/exam"
)

var langHints = map[string]string{
	"yml":  "yaml",
	"yaml": "yaml",
	"cfg":  "ini",
	"conf": "ini",
	"j2":   "jinja2",
}

// findCommand lists the learner's Ansible files under dir.
func findCommand(dir string) string {
	return fmt.Sprintf("find %s -maxdepth 5 -type f "+
		`\( -name '*.yml' -o -name '*.yaml' -o -name '*.cfg' `+
		`-o -name '*.j2' -o -name 'inventory' -o -name '*.conf' \) `+
		`! -path '*/examiner/*' ! -path '*/.git/*' `+
		"2>/dev/null | sort", shellQuote(dir))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func langHint(file string) string {
	ext := strings.TrimPrefix(path.Ext(file), ".")
	return langHints[ext]
}

func (x *Exporter) writeStudentFiles(ctx context.Context, b *strings.Builder, e *exam.Exam, control exam.Host) {
	rc, listing, err := x.pool.Run(ctx, ControlHost, control.IP, findCommand(e.WorkingDir), control.User)
	if err != nil {
		x.log.Warn("list student files", zap.String("host", ControlHost), zap.Error(err))
		fmt.Fprintf(b, "*Error connecting to control node: %v*\n\n", err)
		return
	}
	if rc != 0 || strings.TrimSpace(listing) == "" {
		b.WriteString("*No playbook files found on control node.*\n\n")
		return
	}

	for _, remote := range strings.Split(strings.TrimSpace(listing), "\n") {
		remote = strings.TrimSpace(remote)
		if remote == "" {
			continue
		}
		rc, content, err := x.pool.Run(ctx, ControlHost, control.IP, "cat "+shellQuote(remote), control.User)
		if err != nil {
			fmt.Fprintf(b, "*Error connecting to control node: %v*\n\n", err)
			return
		}

		fmt.Fprintf(b, "### `%s`\n\n", remote)
		fmt.Fprintf(b, "```%s\n", langHint(remote))
		if rc == 0 {
			b.WriteString(strings.TrimRight(content, " \t\r\n"))
		} else {
			fmt.Fprintf(b, "# Error reading file: rc=%d", rc)
		}
		b.WriteString("\n```\n\n")
	}
}

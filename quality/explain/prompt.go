package explain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/teranos/dataq/quality"
)

const instructions = `You are a data quality assistant. Review the dataset profile below and respond with one JSON object and nothing else:
{"summary": "<short plain-English explanation of the problems and their impact>", "plan": [{"operation_type": "<operation>", "column": "<column>", "parameters": {}}]}
Allowed operations:
- drop-duplicates: no column, no parameters
- fill-missing: column; parameters {"strategy": "mean|median|mode|constant", "value": <constant strategy only>}
- trim-whitespace: optional column; no parameters
- cast-type: column; parameters {"target": "numeric|integer|text|datetime|boolean"}
- clip-outliers: numeric column; parameters {"lower": <number>, "upper": <number>}
- drop-column: column; no parameters
Use only these operations and the listed columns. mean and median need numeric columns. Return an empty plan when no cleaning is needed.
`

// BuildPrompt renders in as a prompt of at most maxBytes bytes. Column and
// issue lines are cut with an omission line when the budget runs out; issues
// are guaranteed at least half of what is left after the header. No row
// values are included.
func BuildPrompt(in Input, maxBytes int) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n")
	b.WriteString(datasetLine(in))

	columnLines := make([]string, len(in.Columns))
	for i, c := range in.Columns {
		columnLines[i] = columnLine(c)
	}
	issueLines := make([]string, len(in.Issues))
	issuesSize := len("Issues:\n")
	for i, issue := range in.Issues {
		issueLines[i] = issueLine(issue)
		issuesSize += len(issueLines[i])
	}

	if maxBytes <= 0 {
		writeSection(&b, "Columns", columnLines, "columns", -1)
		writeSection(&b, "Issues", issueLines, "issues", -1)
		return b.String()
	}

	remaining := maxBytes - b.Len()
	if remaining <= 0 {
		return truncate(b.String(), maxBytes)
	}
	columnsBudget := remaining - min(issuesSize, remaining/2)
	writeSection(&b, "Columns", columnLines, "columns", columnsBudget)
	writeSection(&b, "Issues", issueLines, "issues", maxBytes-b.Len())
	return b.String()
}

// writeSection appends a titled list within budget bytes (negative = unbounded)
func writeSection(b *strings.Builder, title string, lines []string, noun string, budget int) {
	heading := title + ":\n"
	if len(lines) == 0 {
		if budget < 0 || len(heading)+len("- none\n") <= budget {
			b.WriteString(heading)
			b.WriteString("- none\n")
		}
		return
	}
	if budget >= 0 && len(heading) > budget {
		return
	}
	b.WriteString(heading)
	used := len(heading)
	for i, line := range lines {
		if budget >= 0 {
			omitted := fmt.Sprintf("- ... %d more %s omitted\n", len(lines)-i, noun)
			fitsWithNote := used+len(line)+len(omitted) <= budget
			isLastAndFits := i == len(lines)-1 && used+len(line) <= budget
			if !fitsWithNote && !isLastAndFits {
				if used+len(omitted) <= budget {
					b.WriteString(omitted)
				}
				return
			}
		}
		b.WriteString(line)
		used += len(line)
	}
}

func datasetLine(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dataset: %s (%d rows, %d columns", clean(in.Filename), in.RowCount, in.ColumnCount)
	if in.Sampled {
		b.WriteString(", profiled on a sample")
	}
	fmt.Fprintf(&b, "); quality score %.1f/100\n", in.QualityScore)
	return b.String()
}

func columnLine(c quality.ColumnProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s [%s] nulls=%d distinct=%d", clean(c.Name), c.Type, c.NullCount, c.DistinctCount)
	if c.DistinctCapped {
		b.WriteString("+")
	}
	if c.InvalidCount > 0 {
		fmt.Fprintf(&b, " invalid=%d", c.InvalidCount)
	}
	if c.OutlierCount > 0 {
		fmt.Fprintf(&b, " outliers=%d", c.OutlierCount)
	}
	if c.Min != nil && c.Max != nil {
		fmt.Fprintf(&b, " range=[%s, %s]", num(*c.Min), num(*c.Max))
	}
	if c.Mean != nil {
		fmt.Fprintf(&b, " mean=%s", num(*c.Mean))
	}
	if c.LowerFence != nil && c.UpperFence != nil {
		fmt.Fprintf(&b, " fences=[%s, %s]", num(*c.LowerFence), num(*c.UpperFence))
	}
	if c.Earliest != nil && c.Latest != nil {
		fmt.Fprintf(&b, " span=%s..%s", c.Earliest.Format("2006-01-02"), c.Latest.Format("2006-01-02"))
	}
	if c.MaxLength > 0 {
		fmt.Fprintf(&b, " max_len=%d", c.MaxLength)
	}
	b.WriteString("\n")
	return b.String()
}

func issueLine(issue quality.Issue) string {
	if issue.Column != "" {
		return fmt.Sprintf("- [%s] %s on %s: %s\n", issue.Severity, issue.Type, clean(issue.Column), clean(issue.Message))
	}
	return fmt.Sprintf("- [%s] %s: %s\n", issue.Severity, issue.Type, clean(issue.Message))
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}

// clean keeps user-controlled names on one line
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}

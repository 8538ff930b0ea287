package plan

import "github.com/teranos/dataq/quality"

// Suggest builds the offline plan used when no generation service is
// available: drop duplicates when present, fill numeric nulls with the median
// and other nulls with the mode, and clip outliers at the profiled fences.
// The result is raw so it passes through Validate like any other proposal.
func Suggest(issues []quality.Issue, columns []quality.ColumnProfile) []Raw {
	var out []Raw
	for _, issue := range issues {
		if issue.Type == quality.IssueDuplicateRows {
			out = append(out, Raw{OperationType: string(KindDropDuplicates)})
			break
		}
	}

	for _, issue := range issues {
		if issue.Type != quality.IssueMissingValues || issue.Column == "" {
			continue
		}
		col := quality.FindColumn(columns, issue.Column)
		if col == nil {
			continue
		}
		strategy := StrategyMode
		if col.Type == quality.TypeNumeric {
			strategy = StrategyMedian
		}
		out = append(out, Raw{
			OperationType: string(KindFillMissing),
			Column:        col.Name,
			Parameters:    map[string]any{"strategy": strategy},
		})
	}

	for _, issue := range issues {
		if issue.Type != quality.IssueOutlierValue || issue.Column == "" {
			continue
		}
		col := quality.FindColumn(columns, issue.Column)
		if col == nil || col.Type != quality.TypeNumeric || col.LowerFence == nil || col.UpperFence == nil {
			continue
		}
		if *col.LowerFence >= *col.UpperFence {
			continue
		}
		out = append(out, Raw{
			OperationType: string(KindClipOutliers),
			Column:        col.Name,
			Parameters:    map[string]any{"lower": *col.LowerFence, "upper": *col.UpperFence},
		})
	}
	return out
}

package usecase

import (
	"fmt"
	"strings"

	"ContentPipeline/internal/domain"
)

const digestArticleLimit = 10

// BuildDigest renders a short plain-text summary of a run. It returns an empty string
// when nothing was acquired.
func BuildDigest(report domain.RunReport) string {
	if len(report.Outcomes) == 0 && report.Cancelled == 0 && report.SourcesFailed == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\n", report.RunID)
	fmt.Fprintf(&b, "Recorded: %d, failed: %d, skipped: %d, cancelled: %d\n",
		report.Recorded(), report.Failed(), report.Skipped, report.Cancelled)
	if report.SourcesFailed > 0 {
		fmt.Fprintf(&b, "Sources failed: %d of %d\n", report.SourcesFailed, report.SourcesFailed+report.SourcesScanned)
	}
	fmt.Fprintf(&b, "Estimated revenue: %.2f\n", report.TotalRevenue())

	listed := 0
	for _, o := range report.Outcomes {
		if o.State != domain.StateRecorded {
			continue
		}
		if listed == digestArticleLimit {
			fmt.Fprintf(&b, "\n... and %d more\n", report.Recorded()-listed)
			break
		}
		fmt.Fprintf(&b, "\n- %s\n%.2f | %s\n%s\n", o.Article.Headline, o.Revenue.Total, o.Analysis.Topics, o.Article.Link)
		listed++
	}

	return b.String()
}

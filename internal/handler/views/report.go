// Package views renders the HTML report page.
package views

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/examstats/internal/i18n"
	"github.com/pavelanni/examstats/internal/model"
)

// ReportPage renders a localized summary of an exam report.
func ReportPage(rep *model.Report) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		title := appI18n.Td(ctx, "ReportTitle", map[string]any{"Name": rep.Name})

		p.raw(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`)
		p.text(title)
		p.raw(`</title><style>` + stylesheet + `</style></head><body>`)
		p.raw(`<header><h1>`)
		p.text(title)
		p.raw(`</h1><p class="muted">`)
		p.text(appI18n.Td(ctx, "GeneratedAt", map[string]any{"Time": rep.GeneratedAt.Format("2006-01-02 15:04")}))
		p.raw(`</p></header>`)

		summary(ctx, p, rep)
		histogram(ctx, p, rep.Cohort)
		for _, ka := range rep.AnswerKeys {
			keyTable(ctx, p, ka)
		}
		p.raw(`</body></html>`)
		return p.err
	})
}

func summary(ctx context.Context, p *printer, rep *model.Report) {
	p.raw(`<section><h2>`)
	p.text(appI18n.T(ctx, "Summary"))
	p.raw(`</h2><dl>`)
	p.term(appI18n.T(ctx, "Participants"), fmt.Sprint(rep.Cohort.Participants))
	p.term(appI18n.T(ctx, "Mean"), percent(rep.Cohort.Mean))
	p.term(appI18n.T(ctx, "Sigma"), percent(rep.Cohort.Sigma))
	p.term(appI18n.T(ctx, "MaxScore"), trim(rep.MaxScore))
	p.raw(`</dl>`)
	if n := len(rep.NoAnswerKey); n > 0 {
		p.raw(`<p class="warn">`)
		p.text(appI18n.Tp(ctx, "UnverifiedCount", n))
		p.raw(`</p>`)
	}
	p.raw(`</section>`)
}

func histogram(ctx context.Context, p *printer, cs model.CohortStatistics) {
	p.raw(`<section><h2>`)
	p.text(appI18n.T(ctx, "Histogram"))
	p.raw(`</h2><table><thead><tr>`)
	p.headers(appI18n.T(ctx, "Range"), appI18n.T(ctx, "Count"), appI18n.T(ctx, "Percent"))
	p.raw(`</tr></thead><tbody>`)
	for _, b := range cs.Histogram {
		p.raw(`<tr>`)
		p.cell(fmt.Sprintf("%s-%s", percent(b.Lower), percent(b.Upper)))
		p.cell(fmt.Sprint(b.Count))
		p.raw(fmt.Sprintf(`<td><span class="bar" style="width:%.0fpx"></span> `, b.Percent*200))
		p.text(percent(b.Percent))
		p.raw(`</td></tr>`)
	}
	p.raw(`</tbody></table></section>`)
}

func keyTable(ctx context.Context, p *printer, ka model.KeyAnalysis) {
	p.raw(`<section><h2>`)
	p.text(appI18n.Td(ctx, "AnswerKeyN", map[string]any{"ID": ka.ID}))
	p.raw(`</h2><p class="muted">`)
	p.text(appI18n.Tp(ctx, "StudentsCount", ka.Students))
	p.text(fmt.Sprintf(" | %s: %.3f", appI18n.T(ctx, "Reliability"), ka.Reliability))
	p.raw(`</p><table><thead><tr>`)
	p.headers(
		appI18n.T(ctx, "Question"),
		appI18n.T(ctx, "Expected"),
		appI18n.T(ctx, "Respondents"),
		appI18n.T(ctx, "Difficulty"),
		appI18n.T(ctx, "PointBiserial"),
		appI18n.T(ctx, "AlphaIfDeleted"),
		appI18n.T(ctx, "Class"),
	)
	p.raw(`</tr></thead><tbody>`)
	for _, it := range ka.Items {
		expected := ""
		if it.Index < len(ka.Questions) {
			q := ka.Questions[it.Index]
			expected = q.ExpectedLetters().String()
			if q.ExpectedLetters().Count() > 1 {
				expected += " (" + q.Operator.String() + ")"
			}
		}
		p.raw(fmt.Sprintf(`<tr class="%s">`, it.Class.Discrimination))
		p.cell(fmt.Sprint(it.Index + 1))
		p.cell(expected)
		p.cell(fmt.Sprint(it.Respondents))
		p.cell(percent(it.Difficulty))
		p.cell(fmt.Sprintf("%.3f", it.PointBiserial))
		p.cell(fmt.Sprintf("%.3f", it.AlphaIfDeleted))
		p.cell(appI18n.DifficultyLabel(ctx, it.Class.Difficulty) + " / " + appI18n.DiscriminationLabel(ctx, it.Class.Discrimination))
		p.raw(`</tr>`)
	}
	p.raw(`</tbody></table></section>`)
}

// printer writes HTML fragments and keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *printer) text(s string) { p.raw(templ.EscapeString(s)) }

func (p *printer) cell(s string) {
	p.raw(`<td>`)
	p.text(s)
	p.raw(`</td>`)
}

func (p *printer) headers(names ...string) {
	for _, n := range names {
		p.raw(`<th>`)
		p.text(n)
		p.raw(`</th>`)
	}
}

func (p *printer) term(name, value string) {
	p.raw(`<dt>`)
	p.text(name)
	p.raw(`</dt><dd>`)
	p.text(value)
	p.raw(`</dd>`)
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func trim(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

const stylesheet = `body{font-family:sans-serif;margin:2rem;color:#222}
table{border-collapse:collapse;margin:.5rem 0}
th,td{border:1px solid #ccc;padding:.25rem .5rem;text-align:left}
dl{display:grid;grid-template-columns:max-content auto;gap:.25rem 1rem}
.muted{color:#666}.warn{color:#a60}
.bar{display:inline-block;height:.6rem;background:#48c}
tr.poor{background:#fee}`

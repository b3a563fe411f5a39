package views

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	appI18n "github.com/pavelanni/examstats/internal/i18n"
	"github.com/pavelanni/examstats/internal/model"
	"github.com/pavelanni/examstats/internal/stats"
)

func testReport() *model.Report {
	return &model.Report{
		Name:        "Physics <final>",
		MaxScore:    2,
		GeneratedAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		NoAnswerKey: []model.ScoredStudent{{ResponseID: "x"}},
		Cohort:      model.CohortStatistics{Participants: 4, Mean: 0.5},
		AnswerKeys: []model.KeyAnalysis{{
			ID:        "A",
			Students:  4,
			Questions: []model.Question{{Expected: "AB", Operator: model.AllRequired}, {Expected: "C"}},
			Items: []model.ItemStatistic{
				{Index: 0, Difficulty: 0.25, Class: model.ItemClass{Difficulty: model.Hard, Discrimination: model.Poor}},
				{Index: 1, Difficulty: 0.9, PointBiserial: 0.4, Class: model.ItemClass{Difficulty: model.Easy, Discrimination: model.Good}},
			},
		}},
	}
}

func render(t *testing.T, lang string) string {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(lang))
	var buf bytes.Buffer
	if err := ReportPage(testReport()).Render(ctx, &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func TestReportPageEnglish(t *testing.T) {
	html := render(t, "en")
	for _, want := range []string{
		"Report: Physics &lt;final&gt;",
		"Answer key A",
		"AB (AND)",
		"Hard / Poor",
		"Easy / Good",
		"1 response is not assigned to an answer key.",
		"<dd>50.0%</dd>",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered page missing %q", want)
		}
	}
	if strings.Contains(html, "<final>") {
		t.Error("exam name was not escaped")
	}
}

func TestReportPageRussian(t *testing.T) {
	html := render(t, "ru")
	for _, want := range []string{"Сводка", "Трудный / Слабая", "4 студента"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered page missing %q", want)
		}
	}
}

func TestTrim(t *testing.T) {
	tests := map[float64]string{2: "2", 2.5: "2.5", 0.25: "0.25", 10: "10"}
	for in, want := range tests {
		if got := trim(in); got != want {
			t.Errorf("trim(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestHistogramShowsShareOfClass(t *testing.T) {
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	rep := testReport()
	rep.Cohort.Histogram = stats.Histogram([]model.ScoredStudent{
		{ResponseID: "r1", KeyID: "A", Score: 0.5},
		{ResponseID: "r2", KeyID: "A", Score: 0.5},
		{ResponseID: "r3", KeyID: "A", Score: 0.95},
		{ResponseID: "r4", KeyID: "A", Score: 0.55},
	})

	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer("en"))
	var buf bytes.Buffer
	if err := ReportPage(rep).Render(ctx, &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := buf.String()
	for _, want := range []string{
		`<td>50.0%-60.0%</td><td>3</td><td><span class="bar" style="width:150px"></span> 75.0%</td>`,
		`<td>90.0%-100.0%</td><td>1</td><td><span class="bar" style="width:50px"></span> 25.0%</td>`,
		`<td>0.0%-10.0%</td><td>0</td><td><span class="bar" style="width:0px"></span> 0.0%</td>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("histogram missing row %q", want)
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/examstats/internal/handler/views"
	appI18n "github.com/pavelanni/examstats/internal/i18n"
	"github.com/pavelanni/examstats/internal/llm"
	"github.com/pavelanni/examstats/internal/llm/prompts"
	"github.com/pavelanni/examstats/internal/model"
	"github.com/pavelanni/examstats/internal/report"
	"github.com/pavelanni/examstats/internal/store"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <exam.json>...",
		Short: "Import scanned exams from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	commonFlags(cmd)
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	v := setup(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		res, err := db.ImportExamFile(abs, data)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		if res.Duplicate {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: unchanged (exam %d)\n", path, res.ExamID)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: exam %d (%d keys, %d students)\n", path, res.ExamID, res.Keys, res.Students)
	}
	return nil
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build the statistics report for an exam",
		Long: `Build the statistics report for a stored exam (--exam-id) or directly
from an exam JSON file (--input) without touching the database.`,
		RunE: runReport,
	}
	commonFlags(cmd)
	f := cmd.Flags()
	f.Int64("exam-id", 0, "Stored exam ID")
	f.StringP("input", "i", "", "Exam JSON file to analyse instead of a stored exam")
	f.StringP("output", "o", "", "Output file (default: stdout)")
	f.String("format", "json", "Output format (json, html)")
	f.StringP("lang", "l", "en", "Language of the HTML report")
	f.Int("workers", 4, "Answer keys analysed in parallel (0 = unbounded)")
	cmd.MarkFlagsMutuallyExclusive("exam-id", "input")
	cmd.MarkFlagsOneRequired("exam-id", "input")
	return cmd
}

func runReport(cmd *cobra.Command, _ []string) error {
	v := setup(cmd)

	rep, err := loadReport(cmd.Context(), v)
	if err != nil {
		return err
	}

	w, closeFn, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeFn()

	return writeReport(cmd.Context(), w, rep, v.GetString("format"), v.GetString("lang"))
}

func loadReport(ctx context.Context, v *viper.Viper) (*model.Report, error) {
	workers := v.GetInt("workers")
	if input := v.GetString("input"); input != "" {
		data, err := os.ReadFile(input)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", input, err)
		}
		var imp model.ExamImport
		if err := json.Unmarshal(data, &imp); err != nil {
			return nil, fmt.Errorf("parse %s: %w", input, err)
		}
		imp.Normalize()
		if err := imp.Validate(); err != nil {
			return nil, err
		}
		return report.Build(ctx, report.ExamFromImport(imp), imp.AnswerKeys, imp.Students, workers)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	examID := v.GetInt64("exam-id")
	rep, err := report.NewService(db, report.WithWorkers(workers)).Report(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("report for exam %d: %w", examID, err)
	}
	return rep, nil
}

func writeReport(ctx context.Context, w io.Writer, rep *model.Report, format, lang string) error {
	switch format {
	case "html":
		if err := appI18n.Init(lang); err != nil {
			return fmt.Errorf("init i18n: %w", err)
		}
		ctx = appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang))
		return views.ReportPage(rep).Render(ctx, w)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func reviewItemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review-items",
		Short: "Ask an LLM to review poorly discriminating questions",
		RunE:  runReviewItems,
	}
	commonFlags(cmd)
	f := cmd.Flags()
	f.Int64("exam-id", 0, "Stored exam ID")
	f.StringP("output", "o", "", "Output file (default: stdout)")
	f.Int("workers", 4, "Answer keys analysed in parallel (0 = unbounded)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the LLM endpoint")
	f.String("llm-model", "", "Model name")
	f.String("prompt-variant", string(prompts.VariantBrief), "Prompt variant (brief, detailed)")
	_ = cmd.MarkFlagRequired("exam-id")
	return cmd
}

func runReviewItems(cmd *cobra.Command, _ []string) error {
	v := setup(cmd)

	if !prompts.IsValidVariant(v.GetString("prompt-variant")) {
		return fmt.Errorf("unknown prompt variant %q", v.GetString("prompt-variant"))
	}
	variant := prompts.Variant(v.GetString("prompt-variant"))
	if v.GetString("llm-model") == "" {
		return fmt.Errorf("--llm-model is required")
	}

	rep, err := loadReport(cmd.Context(), v)
	if err != nil {
		return err
	}

	client := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"), variant)
	reviews, err := client.ReviewReport(cmd.Context(), rep)
	if err != nil {
		return fmt.Errorf("review items: %w", err)
	}
	slog.Info("reviewed items", "exam", rep.ExamID, "items", len(reviews))

	w, closeFn, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeFn()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reviews)
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a stored exam, including corrections, as an import document",
		RunE:  runExport,
	}
	commonFlags(cmd)
	f := cmd.Flags()
	f.Int64("exam-id", 0, "Stored exam ID")
	f.StringP("output", "o", "", "Output file (default: stdout)")
	_ = cmd.MarkFlagRequired("exam-id")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := setup(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	examID := v.GetInt64("exam-id")
	exp, err := db.ExportExam(examID)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if exp == nil {
		return fmt.Errorf("exam %d not found", examID)
	}

	w, closeFn, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeFn()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exp); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	slog.Info("exported exam", "exam", examID, "students", len(exp.Students))
	return nil
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		RunE:  runUserAdd,
	}
	commonFlags(add)
	f := add.Flags()
	f.String("username", "", "Login name")
	f.String("display-name", "", "Display name (default: username)")
	f.String("password", "", "Password")
	f.String("role", string(model.UserRoleViewer), "Role (viewer, grader, admin)")
	_ = add.MarkFlagRequired("username")
	_ = add.MarkFlagRequired("password")
	cmd.AddCommand(add)
	return cmd
}

func runUserAdd(cmd *cobra.Command, _ []string) error {
	v := setup(cmd)

	role := model.UserRole(v.GetString("role"))
	switch role {
	case model.UserRoleViewer, model.UserRoleGrader, model.UserRoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := createUser(db, v.GetString("username"), v.GetString("display-name"), v.GetString("password"), role); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s\n", role, v.GetString("username"))
	return nil
}

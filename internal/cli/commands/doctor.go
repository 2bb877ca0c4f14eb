package commands

import (
	"context"
	"fmt"
	"image/color"
	"strings"

	"github.com/muesli/termenv"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/pxsort/internal/cli/config"
	"github.com/leapstack-labs/pxsort/internal/cli/output"
	"github.com/leapstack-labs/pxsort/internal/engine"
	"github.com/leapstack-labs/pxsort/internal/imageio"
	"github.com/leapstack-labs/pxsort/internal/keyscript"
	"github.com/leapstack-labs/pxsort/internal/sorter"
	"github.com/spf13/cobra"
)

// Check statuses.
const (
	checkPass  = "pass"
	checkWarn  = "warn"
	checkError = "error"
)

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, inputs and history",
		Long: `Check that the effective configuration is usable before sorting.

The doctor loads the configured mask and key script, opens the history
database and reports how output will be rendered. Problems are reported
per check with a score from 0 to 100.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  pxsort doctor
  pxsort doctor --key-script warm.star --mask mask.png
  pxsort doctor -o json`,
		Args: cobra.NoArgs,
		RunE: runDoctor,
	}
	AddSortFlags(cmd.Flags())
	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Checks     []HealthCheck `json:"checks"`
	Score      int           `json:"score"`
	IssueCount int           `json:"issue_count"`
}

// HealthCheck is a single check result.
type HealthCheck struct {
	Name   string `json:"name"`
	Group  string `json:"group"`
	Status string `json:"status"` // "pass", "warn", "error"
	Detail string `json:"detail,omitempty"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cmdCtx, err := NewCommandContextWithoutEngine(cmd)
	if err != nil {
		return err
	}

	checks := diagnose(cmd.Context(), cmdCtx)
	out := &DoctorOutput{Checks: checks, Score: healthScore(checks)}
	for _, c := range checks {
		if c.Status != checkPass {
			out.IssueCount++
		}
	}

	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeMarkdown:
		renderDoctorMarkdown(r, out)
	default:
		renderDoctorText(r, out)
	}
	return nil
}

func diagnose(ctx context.Context, cmdCtx *CommandContext) []HealthCheck {
	cfg := cmdCtx.Cfg
	var checks []HealthCheck
	add := func(group, name, status, detail string) {
		checks = append(checks, HealthCheck{Name: name, Group: group, Status: status, Detail: detail})
	}

	// Configuration
	if file := config.GetConfigFileUsed(); file != "" {
		add("configuration", "Config file", checkPass, file)
	} else {
		add("configuration", "Config file", checkWarn, "no pxsort.yaml found, using defaults")
	}
	if cfg.Preset != "" {
		add("configuration", "Preset", checkPass, cfg.Preset)
	}
	if _, err := cfg.Sort.Options(); err != nil {
		add("configuration", "Sort options", checkError, err.Error())
	} else {
		add("configuration", "Sort options", checkPass, describeSort(cfg))
	}

	// Inputs
	if cfg.Sort.Mask != "" {
		if m, _, err := imageio.Load(cfg.Sort.Mask); err != nil {
			add("inputs", "Mask", checkError, err.Error())
		} else {
			b := m.Bounds()
			add("inputs", "Mask", checkPass, fmt.Sprintf("%s (%dx%d)", cfg.Sort.Mask, b.Dx(), b.Dy()))
		}
	}
	if cfg.Sort.KeyScript != "" {
		status, detail := scriptStatus(cfg.Sort.KeyScript)
		add("inputs", "Key script", status, detail)
	}

	// History
	if cfg.NoHistory {
		add("history", "History database", checkWarn, "disabled")
	} else {
		status, detail := historyStatus(ctx, cmdCtx)
		add("history", "History database", status, detail)
	}

	// Terminal
	r := cmdCtx.Renderer
	mode := string(r.EffectiveMode())
	if r.IsTTY() {
		add("terminal", "Output", checkPass, fmt.Sprintf("%s, %s colour", mode, profileName(termenv.EnvColorProfile())))
	} else {
		add("terminal", "Output", checkPass, mode+", progress bars hidden")
	}

	return checks
}

func describeSort(cfg *config.Config) string {
	dir := cfg.Sort.Direction
	if dir == "" {
		dir = "horizontal"
	}
	return fmt.Sprintf("key %s, %s", cfg.Sort.Key, dir)
}

// scriptStatus loads the script and evaluates it on mid grey.
func scriptStatus(path string) (status, detail string) {
	script, err := keyscript.Load(path)
	if err != nil {
		return checkError, err.Error()
	}
	v, err := script.Eval(color.RGBA{R: 128, G: 128, B: 128, A: 255})
	if err != nil {
		return checkError, err.Error()
	}
	return checkPass, fmt.Sprintf("%s (key(128, 128, 128) = %d)", path, v)
}

// historyStatus opens the store through an engine without inputs so a
// broken script or mask does not mask a broken database.
func historyStatus(ctx context.Context, cmdCtx *CommandContext) (status, detail string) {
	ec, err := engineConfig(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		ec = engine.Config{StatePath: cmdCtx.Cfg.StatePath, Logger: cmdCtx.Logger}
	}
	ec.KeyScript = ""
	ec.MaskPath = ""
	ec.Sort.KeyFunc = nil
	if ec.Sort.Validate() != nil {
		ec.Sort = sorter.DefaultOptions()
	}

	eng, err := engine.New(ec)
	if err != nil {
		return checkError, err.Error()
	}
	defer func() { _ = eng.Close() }()

	if _, err := eng.Store().ListRuns(ctx, 1); err != nil {
		return checkError, err.Error()
	}
	return checkPass, cmdCtx.Cfg.StatePath
}

func profileName(p termenv.Profile) string {
	switch p {
	case termenv.TrueColor:
		return "true"
	case termenv.ANSI256:
		return "256"
	case termenv.ANSI:
		return "16"
	default:
		return "no"
	}
}

// healthScore starts at 100 and loses 10 points per warning and 25 per
// error.
func healthScore(checks []HealthCheck) int {
	score := 100
	for _, c := range checks {
		switch c.Status {
		case checkWarn:
			score -= 10
		case checkError:
			score -= 25
		}
	}
	return max(score, 0)
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) {
	styles := r.Styles()

	r.Println(styles.Header.Render("pxsort health report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 40)))

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.Checks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("")
			r.Println(styles.Bold.Render(titleCaser.String(currentGroup)))
		}
		status := "success"
		switch check.Status {
		case checkWarn:
			status = "warning"
		case checkError:
			status = "error"
		}
		r.StatusLine(check.Name, status, check.Detail)
	}
	r.Println("")

	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("Health score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) {
	r.Println(output.FormatHeader(1, "pxsort health report"))

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.Checks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("")
			r.Println(output.FormatHeader(2, titleCaser.String(currentGroup)))
			r.Println("")
		}
		line := fmt.Sprintf("- **[%s]** %s", strings.ToUpper(check.Status), check.Name)
		if check.Detail != "" {
			line += ": " + check.Detail
		}
		r.Println(line)
	}

	r.Println("")
	r.Println(output.FormatHeader(2, "Health score"))
	r.Println("")
	r.Printf("**%d/100**\n", out.Score)
}

package wizard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
)

// Run executes the interactive wizard and returns the user's answers.
func Run(detection DetectionResult) (*WizardAnswers, error) {
	answers := &WizardAnswers{
		Root:          "/opt/svcrunner",
		UtilsImage:    "svcrunner/rootutils",
		DockerBinary:  "docker",
		ProxyMode:     "none",
		PassphraseEnv: "PASS",
		WorkFactor:    18,
		LogLevel:      "info",
	}
	if detection.DockerBinary != "" {
		answers.DockerBinary = detection.DockerBinary
	}
	if detection.ExistingRoot != "" {
		answers.Root = detection.ExistingRoot
	}
	if detection.CaddyRunning {
		answers.ProxyMode = "caddy"
	}

	var hints []string
	if detection.DockerBinary != "" {
		hints = append(hints, fmt.Sprintf("docker found: %s", detection.DockerBinary))
	} else {
		hints = append(hints, "docker not found in PATH")
	}
	if detection.ExistingRoot != "" {
		hints = append(hints, fmt.Sprintf("existing installation: %s", detection.ExistingRoot))
	}

	desc := "Where svcrunner keeps service trees, host volumes and launch scripts."
	if len(hints) > 0 {
		desc += "\n\nAuto-detected:\n  " + strings.Join(hints, "\n  ")
	}

	workFactor := strconv.Itoa(answers.WorkFactor)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Installation root").
				Description(desc).
				Value(&answers.Root),
			huh.NewInput().
				Title("Utils image").
				Description("Privileged helper image used to chown and copy volumes").
				Value(&answers.UtilsImage),
			huh.NewInput().
				Title("Docker binary").
				Value(&answers.DockerBinary),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Reverse proxy").
				Options(
					huh.NewOption("None", "none"),
					huh.NewOption("Caddy (restarted when a service is removed)", "caddy"),
				).
				Value(&answers.ProxyMode),
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("Debug", "debug"),
					huh.NewOption("Info", "info"),
					huh.NewOption("Warn", "warn"),
					huh.NewOption("Error", "error"),
				).
				Value(&answers.LogLevel),
			huh.NewConfirm().
				Title("Show hook script output?").
				Value(&answers.ShowHookOutput),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Backup passphrase variable").
				Description("Environment variable holding the backup passphrase").
				Value(&answers.PassphraseEnv),
			huh.NewInput().
				Title("scrypt work factor").
				Description("10 to 22; every step doubles the time to seal and open a backup").
				Validate(validateWorkFactor).
				Value(&workFactor),
		),
	)
	if err := form.Run(); err != nil {
		return nil, err
	}

	answers.WorkFactor, _ = strconv.Atoi(strings.TrimSpace(workFactor))
	return answers, nil
}

func validateWorkFactor(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("not a number")
	}
	if n < 10 || n > 22 {
		return fmt.Errorf("must be between 10 and 22")
	}
	return nil
}

// Confirm asks a yes/no question, defaulting to no.
func Confirm(title, description string) (bool, error) {
	var ok bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Description(description).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	)).Run()
	return ok, err
}

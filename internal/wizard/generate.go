package wizard

import (
	"bytes"
	"text/template"
)

// WizardAnswers holds all user responses from the wizard.
type WizardAnswers struct {
	Root         string
	UtilsImage   string
	DockerBinary string

	ProxyMode      string
	ProxyContainer string

	PassphraseEnv string
	WorkFactor    int

	LogLevel       string
	ShowHookOutput bool
	MetricsFile    string
}

const configTemplate = `# svcrunner configuration
# Every key can be overridden with an SVCRUNNER_ environment variable,
# e.g. SVCRUNNER_LOG_LEVEL=debug.

root: {{ .Root }}
utils_image: {{ .UtilsImage }}

runtime:
  docker_binary: {{ .DockerBinary }}

log:
  level: {{ .LogLevel }}

hooks:
  show_output: {{ if .ShowHookOutput }}true{{ else }}false{{ end }}

proxy:
  mode: {{ .ProxyMode }}
{{- if .ProxyContainer }}
  container: {{ .ProxyContainer }}
{{- end }}

backup:
  # the passphrase itself is read from this environment variable
  passphrase_env: {{ .PassphraseEnv }}
  work_factor: {{ .WorkFactor }}
{{- if .MetricsFile }}

metrics:
  textfile: {{ .MetricsFile }}
{{- end }}
`

// GenerateConfig renders the YAML config from wizard answers.
func GenerateConfig(answers WizardAnswers) (string, error) {
	if answers.Root == "" {
		answers.Root = "/opt/svcrunner"
	}
	if answers.UtilsImage == "" {
		answers.UtilsImage = "svcrunner/rootutils"
	}
	if answers.DockerBinary == "" {
		answers.DockerBinary = "docker"
	}
	if answers.ProxyMode == "" {
		answers.ProxyMode = "none"
	}
	if answers.PassphraseEnv == "" {
		answers.PassphraseEnv = "PASS"
	}
	if answers.WorkFactor == 0 {
		answers.WorkFactor = 18
	}
	if answers.LogLevel == "" {
		answers.LogLevel = "info"
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, answers); err != nil {
		return "", err
	}

	return buf.String(), nil
}

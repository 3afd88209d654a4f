// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sigil-dev/wren/internal/config"
	"github.com/sigil-dev/wren/internal/provider"
	"github.com/sigil-dev/wren/internal/secrets"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// keyCheckClient validates provider keys for init and secret check. Tests swap it out.
var keyCheckClient = &http.Client{Timeout: 10 * time.Second}

type initWizardStep int

const (
	stepProvider initWizardStep = iota
	stepAPIKey
	stepValidateKey
	stepVoice
	stepDone
	stepError
)

type initResult struct {
	Provider provider.ProviderName
	APIKey   string
	Voice    string
}

type (
	validationSuccessMsg struct{}
	validationErrorMsg   struct{ err error }
	configWrittenMsg     struct{ path string }
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

var supportedProviders = []provider.ProviderName{
	provider.ProviderGoogle,
	provider.ProviderAnthropic,
	provider.ProviderOpenAI,
	provider.ProviderOpenRouter,
}

// Prebuilt Gemini TTS voices.
var supportedVoices = []string{"Kore", "Puck", "Charon", "Aoede", "Leda", "Orus"}

// picker is a single-choice vertical list.
type picker struct {
	title  string
	items  []string
	cursor int
}

func newPicker[T ~string](title string, items []T) picker {
	p := picker{title: title, items: make([]string, len(items))}
	for i, it := range items {
		p.items[i] = string(it)
	}
	return p
}

func (p *picker) move(key string) {
	switch key {
	case "up", "k":
		p.cursor = max(p.cursor-1, 0)
	case "down", "j":
		p.cursor = min(p.cursor+1, len(p.items)-1)
	}
}

func (p picker) chosen() string { return p.items[p.cursor] }

func (p picker) view() string {
	var b strings.Builder
	b.WriteString(promptStyle.Render(p.title) + "\n\n")
	for i, it := range p.items {
		if i == p.cursor {
			b.WriteString(selectedStyle.Render("  > "+it) + "\n")
			continue
		}
		b.WriteString(dimStyle.Render("    "+it) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))
	return b.String()
}

type initModel struct {
	step      initWizardStep
	providers picker
	voices    picker
	keyInput  textinput.Model
	spinner   spinner.Model

	result        initResult
	validationErr string
	configPath    string
	store         secrets.Store
	force         bool
	err           error
}

func newInitModel(store secrets.Store, configPath string) initModel {
	key := textinput.New()
	key.Placeholder = "paste API key here"
	key.EchoMode = textinput.EchoPassword
	key.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:       stepProvider,
		providers:  newPicker("Step 1/2: Choose the model provider", supportedProviders),
		voices:     newPicker("Step 2/2: Choose Eve's voice", supportedVoices),
		keyInput:   key,
		spinner:    sp,
		configPath: configPath,
		store:      store,
	}
}

func (m initModel) Init() tea.Cmd { return nil }

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case validationSuccessMsg:
		m.step = stepVoice
		return m, nil
	case validationErrorMsg:
		m.validationErr = msg.err.Error()
		m.step = stepAPIKey
		m.keyInput.Focus()
		return m, nil
	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit
	case error:
		m.step = stepError
		m.err = msg
		return m, tea.Quit
	}

	if m.step == stepAPIKey {
		var cmd tea.Cmd
		m.keyInput, cmd = m.keyInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.step {
	case stepProvider, stepVoice:
		list := &m.providers
		if m.step == stepVoice {
			list = &m.voices
		}
		switch key {
		case "q":
			return m, tea.Quit
		case "enter":
			return m.choose()
		}
		list.move(key)
	case stepAPIKey:
		if key == "enter" {
			return m.submitKey()
		}
		var cmd tea.Cmd
		m.keyInput, cmd = m.keyInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m initModel) choose() (tea.Model, tea.Cmd) {
	if m.step == stepVoice {
		m.result.Voice = m.voices.chosen()
		return m, writeConfigCmd(m.result, m.store, m.configPath, m.force)
	}
	m.result.Provider = provider.ProviderName(m.providers.chosen())
	m.step = stepAPIKey
	m.validationErr = ""
	m.keyInput.SetValue("")
	m.keyInput.Focus()
	return m, textinput.Blink
}

func (m initModel) submitKey() (tea.Model, tea.Cmd) {
	key := strings.TrimSpace(m.keyInput.Value())
	if key == "" {
		m.validationErr = "API key must not be empty"
		return m, nil
	}
	m.result.APIKey = key
	m.validationErr = ""
	m.step = stepValidateKey
	return m, tea.Batch(m.spinner.Tick, validateProviderKeyCmd(m.result.Provider, key))
}

func (m initModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("  Wren Setup  ") + "\n\n")

	switch m.step {
	case stepProvider:
		b.WriteString(m.providers.view())
	case stepVoice:
		b.WriteString(m.voices.view())
	case stepAPIKey:
		b.WriteString(promptStyle.Render("Step 1/2: "+string(m.result.Provider)+" API key") + "\n\n")
		b.WriteString(m.keyInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))
	case stepValidateKey:
		fmt.Fprintf(&b, "%s Validating %s API key…\n", m.spinner.View(), m.result.Provider)
	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		if m.result.Provider != provider.ProviderGoogle {
			b.WriteString("Speech runs on Gemini. Store a Google key with " +
				promptStyle.Render("wren secret set google") + ".\n")
		}
		b.WriteString("Run " + promptStyle.Render("wren serve") + " to start the server.\n")
	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.err.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

func validateProviderKeyCmd(p provider.ProviderName, key string) tea.Cmd {
	return func() tea.Msg {
		if err := provider.ValidateKey(context.Background(), keyCheckClient, p, key); err != nil {
			return validationErrorMsg{err: err}
		}
		return validationSuccessMsg{}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, path string, force bool) tea.Cmd {
	return func() tea.Msg {
		if err := storeSecretAndWriteConfig(result, store, path, force); err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

// Speech always runs on Gemini. SpeechKey is set when the chat provider is
// not Google and the voice backends need their own key.
var configTemplate = template.Must(template.New("wren.yaml").Parse(`# Wren configuration, generated by wren init

server:
  listen: "127.0.0.1:18790"

storage:
  backend: sqlite

providers:
  {{ .Provider }}:
    api_key: {{ printf "%q" .ProviderKey }}

models:
  default: {{ printf "%q" .Model }}

voice:
  stt:
    backend: gemini
{{- with .SpeechKey }}
    api_key: {{ printf "%q" . }}
{{- end }}
  tts:
    backend: gemini
    voice: {{ printf "%q" .Voice }}
{{- with .SpeechKey }}
    api_key: {{ printf "%q" . }}
{{- end }}
`))

var defaultModels = map[provider.ProviderName]string{
	provider.ProviderAnthropic:  "anthropic/claude-sonnet-4-5",
	provider.ProviderOpenAI:     "openai/gpt-4.1-mini",
	provider.ProviderGoogle:     "google/gemini-2.5-flash",
	provider.ProviderOpenRouter: "openrouter/anthropic/claude-sonnet-4-5",
}

// renderConfig produces wren.yaml for the wizard result. Keys only appear as
// keyring:// references.
func renderConfig(result initResult) ([]byte, error) {
	p := string(result.Provider)
	model, ok := defaultModels[result.Provider]
	if !ok {
		model = p + "/default"
	}
	data := struct {
		Provider, ProviderKey, Model, Voice, SpeechKey string
	}{
		Provider:    p,
		ProviderKey: secrets.ProviderKeyURI(p),
		Model:       model,
		Voice:       result.Voice,
	}
	if result.Provider != provider.ProviderGoogle {
		data.SpeechKey = secrets.ProviderKeyURI(string(provider.ProviderGoogle))
	}

	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, data); err != nil {
		return nil, wrenerr.Errorf(wrenerr.CodeCLISetupFailure, "rendering config: %w", err)
	}
	return buf.Bytes(), nil
}

// storeSecretAndWriteConfig saves the key in the keyring, then creates the
// config file. An existing file is only replaced when force is set.
func storeSecretAndWriteConfig(result initResult, store secrets.Store, path string, force bool) error {
	data, err := renderConfig(result)
	if err != nil {
		return err
	}

	if err := store.Store(secrets.DefaultService, secrets.ProviderKeyName(string(result.Provider)), result.APIKey); err != nil {
		return wrenerr.Errorf(wrenerr.CodeSecretStoreFailure, "storing %s API key: %w", result.Provider, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return wrenerr.Errorf(wrenerr.CodeConfigLoadReadFailure, "creating config directory: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return wrenerr.Errorf(wrenerr.CodeCLISetupFailure,
			"config file already exists at %s; use --force to overwrite", path)
	}
	if err != nil {
		return wrenerr.Errorf(wrenerr.CodeConfigLoadReadFailure, "opening %s: %w", path, err)
	}

	_, werr := f.Write(data)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return wrenerr.Errorf(wrenerr.CodeConfigLoadReadFailure, "writing config to %s: %w", path, werr)
	}
	return nil
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		Long: `Pick the model provider, store its API key in the OS keyring and
choose the voice Eve replies with.

With --defaults the commented default config is written without prompting.`,
		RunE: runInit,
	}
	cmd.Flags().Bool("defaults", false, "write the commented default config without prompting")
	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	path, _, err := resolveConfigPath(cmd)
	if err != nil {
		return err
	}
	if defaults, _ := cmd.Flags().GetBool("defaults"); defaults {
		return runInitDefaults(cmd, path)
	}

	if !isTerminal(cmd.InOrStdin()) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"wren init requires an interactive terminal.\n"+
				"Use wren init --defaults and edit the file instead.")
		return wrenerr.New(wrenerr.CodeCLISetupFailure, "wren init: not an interactive terminal")
	}

	m := newInitModel(secretStoreFactory(), path)
	m.force, _ = cmd.Flags().GetBool("force")

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return wrenerr.Errorf(wrenerr.CodeCLISetupFailure, "init wizard error: %w", err)
	}
	if fm, ok := final.(initModel); ok && fm.err != nil {
		return wrenerr.Errorf(wrenerr.CodeCLISetupFailure, "init failed: %w", fm.err)
	}
	return nil
}

func runInitDefaults(cmd *cobra.Command, path string) error {
	written, err := config.Bootstrap(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !written {
		_, _ = fmt.Fprintf(out, "Config already exists at %s\n", path)
		return nil
	}
	_, _ = fmt.Fprintf(out, "Wrote default config to %s\n", path)
	_, _ = fmt.Fprintln(out, "Store your Gemini key with: wren secret set google")
	return nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
